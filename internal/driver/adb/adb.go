// Package adb drives an Android device through the adb command line and
// uiautomator hierarchy dumps.
package adb

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/trailblaze/internal/driver"
	"github.com/ChamsBouzaiene/trailblaze/internal/maestro"
)

const (
	defaultEraseCount   = 50
	defaultAnimationMs  = 3000
	longPressDurationMs = 1000
	swipeDurationMs     = 400
)

// Runner executes one adb invocation and returns its stdout.
type Runner func(ctx context.Context, args ...string) ([]byte, error)

// Config configures a Driver.
type Config struct {
	ADBPath string
	// Serial selects the device when several are attached.
	Serial      string
	Classifiers []string
	// Timeout bounds every adb invocation; zero means no bound.
	Timeout time.Duration
	Logger  *zap.Logger
	// Run replaces the adb process, for tests.
	Run Runner
}

// Driver implements driver.Driver for Android.
type Driver struct {
	cfg Config
	run Runner
	log *zap.Logger

	mu   sync.Mutex
	info *driver.DeviceInfo
}

var _ driver.Driver = (*Driver)(nil)

// New creates a driver. No adb call is made until the first operation.
func New(cfg Config) *Driver {
	if cfg.ADBPath == "" {
		cfg.ADBPath = "adb"
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	d := &Driver{cfg: cfg, log: log.Named("adb")}
	d.run = cfg.Run
	if d.run == nil {
		d.run = d.exec
	}
	return d
}

func (d *Driver) exec(ctx context.Context, args ...string) ([]byte, error) {
	if d.cfg.Serial != "" {
		args = append([]string{"-s", d.cfg.Serial}, args...)
	}
	cmd := exec.CommandContext(ctx, d.cfg.ADBPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("adb %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

func (d *Driver) adb(ctx context.Context, args ...string) ([]byte, error) {
	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}
	d.log.Debug("adb", zap.Strings("args", args))
	return d.run(ctx, args...)
}

func (d *Driver) shell(ctx context.Context, args ...string) ([]byte, error) {
	return d.adb(ctx, append([]string{"shell"}, args...)...)
}

// CaptureHierarchy implements driver.Driver.
func (d *Driver) CaptureHierarchy(ctx context.Context) (*driver.ViewNode, error) {
	out, err := d.adb(ctx, "exec-out", "uiautomator", "dump", "/dev/tty")
	if err != nil {
		return nil, err
	}
	return ParseHierarchy(out)
}

// TakeScreenshot implements driver.Driver.
func (d *Driver) TakeScreenshot(ctx context.Context) ([]byte, error) {
	return d.adb(ctx, "exec-out", "screencap", "-p")
}

var sizePattern = regexp.MustCompile(`(\d+)x(\d+)`)

// DeviceInfo implements driver.Driver. The result is cached.
func (d *Driver) DeviceInfo(ctx context.Context) (driver.DeviceInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.info != nil {
		return *d.info, nil
	}

	out, err := d.shell(ctx, "wm", "size")
	if err != nil {
		return driver.DeviceInfo{}, err
	}
	// "Physical size: 1080x2400", possibly followed by an override line.
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	m := sizePattern.FindStringSubmatch(lines[len(lines)-1])
	if m == nil {
		return driver.DeviceInfo{}, fmt.Errorf("unexpected wm size output %q", string(out))
	}
	w, _ := strconv.Atoi(m[1])
	h, _ := strconv.Atoi(m[2])

	info := driver.DeviceInfo{ID: d.cfg.Serial, Platform: driver.PlatformAndroid, Width: w, Height: h}
	if info.ID == "" {
		if serial, err := d.adb(ctx, "get-serialno"); err == nil {
			info.ID = strings.TrimSpace(string(serial))
		}
	}
	info.Classifiers = append(info.Classifiers, d.cfg.Classifiers...)
	info.Classifiers = append(info.Classifiers, string(driver.PlatformAndroid))
	d.info = &info
	return info, nil
}

// Execute implements driver.Driver.
func (d *Driver) Execute(ctx context.Context, cmd maestro.Command) (driver.Result, error) {
	start := time.Now()
	res, err := d.execute(ctx, cmd)
	res.Duration = time.Since(start)
	if err == nil && res.Success && res.Message == "" {
		res.Message = "executed " + cmd.String()
	}
	return res, err
}

func (d *Driver) execute(ctx context.Context, cmd maestro.Command) (driver.Result, error) {
	if err := cmd.Validate(); err != nil {
		return driver.Result{Message: err.Error()}, nil
	}
	switch cmd.Type {
	case maestro.CmdLaunchApp:
		if cmd.ClearState {
			if _, err := d.shell(ctx, "pm", "clear", cmd.AppID); err != nil {
				return driver.Result{}, err
			}
		}
		return d.ok(d.shell(ctx, "monkey", "-p", cmd.AppID, "-c", "android.intent.category.LAUNCHER", "1"))
	case maestro.CmdStopApp:
		return d.ok(d.shell(ctx, "am", "force-stop", cmd.AppID))
	case maestro.CmdClearState:
		return d.ok(d.shell(ctx, "pm", "clear", cmd.AppID))

	case maestro.CmdTapOn, maestro.CmdLongPressOn, maestro.CmdAssertVisible:
		el, res, err := d.locate(ctx, cmd.Selector)
		if err != nil || el == nil {
			return res, err
		}
		if cmd.Type == maestro.CmdAssertVisible {
			return driver.Result{Success: true, Element: el}, nil
		}
		x, y := el.Bounds.Center()
		if cmd.Type == maestro.CmdLongPressOn {
			res, err = d.ok(d.swipe(ctx, x, y, x, y, longPressDurationMs))
		} else {
			res, err = d.ok(d.shell(ctx, "input", "tap", itoa(x), itoa(y)))
		}
		res.Element = el
		return res, err
	case maestro.CmdAssertNotVisible:
		root, err := d.CaptureHierarchy(ctx)
		if err != nil {
			return driver.Result{}, err
		}
		if len(root.Find(cmd.Selector)) > 0 {
			return driver.Result{Message: fmt.Sprintf("element is visible: %s", cmd.Selector)}, nil
		}
		return driver.Result{Success: true}, nil
	case maestro.CmdTapOnPoint:
		p, _ := maestro.ParsePoint(cmd.Selector.Point)
		return d.ok(d.shell(ctx, "input", "tap", itoa(p.X), itoa(p.Y)))

	case maestro.CmdInputText:
		return d.ok(d.shell(ctx, "input", "text", escapeText(cmd.Text)))
	case maestro.CmdEraseText:
		n := cmd.Count
		if n <= 0 {
			n = defaultEraseCount
		}
		args := []string{"input", "keyevent"}
		for range n {
			args = append(args, "67")
		}
		return d.ok(d.shell(ctx, args...))
	case maestro.CmdBack:
		return d.ok(d.shell(ctx, "input", "keyevent", "4"))
	case maestro.CmdHideKeyboard:
		return d.ok(d.shell(ctx, "input", "keyevent", "111"))
	case maestro.CmdPressKey:
		return d.ok(d.shell(ctx, "input", "keyevent", keyCode(cmd.Key)))

	case maestro.CmdSwipe, maestro.CmdScroll:
		info, err := d.DeviceInfo(ctx)
		if err != nil {
			return driver.Result{}, err
		}
		dir := cmd.Direction
		if dir == "" {
			dir = maestro.DirectionDown
		}
		if cmd.Type == maestro.CmdScroll {
			// Scrolling down moves the content up.
			dir = opposite(dir)
		}
		x1, y1, x2, y2 := swipeLine(info.Width, info.Height, dir)
		return d.ok(d.swipe(ctx, x1, y1, x2, y2, swipeDurationMs))

	case maestro.CmdOpenLink:
		return d.ok(d.shell(ctx, "am", "start", "-a", "android.intent.action.VIEW", "-d", cmd.Link))
	case maestro.CmdWaitForAnimationToEnd:
		return d.waitForStableScreen(ctx, cmd.TimeoutMs)
	}
	return driver.Result{Message: fmt.Sprintf("unsupported command %s", cmd.Type)}, nil
}

func (d *Driver) ok(_ []byte, err error) (driver.Result, error) {
	if err != nil {
		return driver.Result{}, err
	}
	return driver.Result{Success: true}, nil
}

func (d *Driver) swipe(ctx context.Context, x1, y1, x2, y2, ms int) ([]byte, error) {
	return d.shell(ctx, "input", "swipe", itoa(x1), itoa(y1), itoa(x2), itoa(y2), itoa(ms))
}

// locate finds the selector's element among those with on-screen bounds.
// A nil element with a nil error means the element was not found.
func (d *Driver) locate(ctx context.Context, sel maestro.Selector) (*driver.ViewNode, driver.Result, error) {
	root, err := d.CaptureHierarchy(ctx)
	if err != nil {
		return nil, driver.Result{}, err
	}
	var visible []*driver.ViewNode
	for _, n := range root.Find(sel) {
		if n.Bounds != nil && n.Bounds.Width > 0 && n.Bounds.Height > 0 {
			visible = append(visible, n)
		}
	}
	if len(visible) <= sel.Index {
		return nil, driver.Result{Message: fmt.Sprintf("element not found: %s", sel)}, nil
	}
	return visible[sel.Index], driver.Result{}, nil
}

func (d *Driver) waitForStableScreen(ctx context.Context, timeoutMs int) (driver.Result, error) {
	if timeoutMs <= 0 {
		timeoutMs = defaultAnimationMs
	}
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	prev, err := d.CaptureHierarchy(ctx)
	if err != nil {
		return driver.Result{}, err
	}
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return driver.Result{}, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
		cur, err := d.CaptureHierarchy(ctx)
		if err != nil {
			return driver.Result{}, err
		}
		if cur.Equal(prev) {
			return driver.Result{Success: true, Message: "screen is stable"}, nil
		}
		prev = cur
	}
	// A screen that never settles is not a failure.
	return driver.Result{Success: true, Message: "screen still changing after timeout"}, nil
}

func swipeLine(w, h int, dir maestro.Direction) (x1, y1, x2, y2 int) {
	cx, cy := w/2, h/2
	switch dir {
	case maestro.DirectionUp:
		return cx, h * 7 / 10, cx, h * 3 / 10
	case maestro.DirectionLeft:
		return w * 8 / 10, cy, w * 2 / 10, cy
	case maestro.DirectionRight:
		return w * 2 / 10, cy, w * 8 / 10, cy
	default:
		return cx, h * 3 / 10, cx, h * 7 / 10
	}
}

func opposite(d maestro.Direction) maestro.Direction {
	switch d {
	case maestro.DirectionUp:
		return maestro.DirectionDown
	case maestro.DirectionDown:
		return maestro.DirectionUp
	case maestro.DirectionLeft:
		return maestro.DirectionRight
	default:
		return maestro.DirectionLeft
	}
}

var keyCodes = map[string]string{
	"enter":       "66",
	"back":        "4",
	"home":        "3",
	"backspace":   "67",
	"delete":      "67",
	"tab":         "61",
	"volume up":   "24",
	"volume down": "25",
	"power":       "26",
	"escape":      "111",
}

func keyCode(key string) string {
	if code, ok := keyCodes[strings.ToLower(key)]; ok {
		return code
	}
	return "KEYCODE_" + strings.ToUpper(strings.ReplaceAll(key, " ", "_"))
}

// escapeText quotes text for "input text", which reads %s as a space and
// runs through the device shell.
func escapeText(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case ' ':
			b.WriteString("%s")
		case '\'', '"', '\\', '&', '|', ';', '<', '>', '(', ')', '$', '`', '*', '?', '#', '~', '!':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func itoa(n int) string { return strconv.Itoa(n) }
