// Package web drives a Chrome tab over the DevTools protocol. The page's
// visible DOM stands in for the view hierarchy.
package web

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/trailblaze/internal/driver"
	"github.com/ChamsBouzaiene/trailblaze/internal/maestro"
)

const (
	defaultWidth        = 1280
	defaultHeight       = 800
	defaultEraseCount   = 50
	defaultAnimationMs  = 3000
	longPressDuration   = time.Second
	scrollFraction      = 0.8
	stabilizePollPeriod = 200 * time.Millisecond
)

// Config configures a Driver.
type Config struct {
	// ExecPath is the Chrome binary; empty lets chromedp find one.
	ExecPath string
	// RemoteURL attaches to a running browser's DevTools websocket instead of
	// launching one.
	RemoteURL string
	Headless  bool
	Width     int
	Height    int
	// StartURL is opened once the tab exists.
	StartURL    string
	Classifiers []string
	// Timeout bounds every browser action; zero means no bound.
	Timeout time.Duration
	Logger  *zap.Logger
}

// Driver implements driver.Driver for a browser tab.
type Driver struct {
	cfg Config
	log *zap.Logger

	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc

	mu   sync.Mutex
	info *driver.DeviceInfo
}

var _ driver.Driver = (*Driver)(nil)

// New launches (or attaches to) a browser and opens a tab sized to the
// configured viewport. The browser lives until Close.
func New(ctx context.Context, cfg Config) (*Driver, error) {
	if cfg.Width <= 0 {
		cfg.Width = defaultWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = defaultHeight
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	d := &Driver{cfg: cfg, log: log.Named("web")}

	var allocCtx context.Context
	if cfg.RemoteURL != "" {
		allocCtx, d.cancelAlloc = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.WindowSize(cfg.Width, cfg.Height),
		)
		if cfg.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
		}
		allocCtx, d.cancelAlloc = chromedp.NewExecAllocator(context.Background(), opts...)
	}
	d.ctx, d.cancelTab = chromedp.NewContext(allocCtx, chromedp.WithLogf(d.log.Sugar().Debugf))
	// The first Run owns the browser; it must not use a derived context.
	if err := chromedp.Run(d.ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	tasks := chromedp.Tasks{
		emulation.SetDeviceMetricsOverride(int64(cfg.Width), int64(cfg.Height), 1, false),
	}
	if cfg.StartURL != "" {
		tasks = append(tasks, chromedp.Navigate(cfg.StartURL))
	}
	if err := d.run(ctx, tasks); err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	d.log.Info("browser ready", zap.Int("width", cfg.Width), zap.Int("height", cfg.Height))
	return d, nil
}

// Close shuts the tab and the browser.
func (d *Driver) Close() {
	d.cancelTab()
	d.cancelAlloc()
}

// run executes actions on the tab, bounded by both ctx and the tab lifetime.
func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(d.ctx)
	defer cancel()
	if d.cfg.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, d.cfg.Timeout)
		defer cancel()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// CaptureHierarchy implements driver.Driver.
func (d *Driver) CaptureHierarchy(ctx context.Context) (*driver.ViewNode, error) {
	var snap *domNode
	if err := d.run(ctx, chromedp.Evaluate(snapshotScript, &snap)); err != nil {
		return nil, fmt.Errorf("capture dom: %w", err)
	}
	root := toViewNode(snap)
	if root == nil {
		root = &driver.ViewNode{ClassName: "body", Enabled: true}
	}
	return root, nil
}

// TakeScreenshot implements driver.Driver.
func (d *Driver) TakeScreenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := d.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return buf, nil
}

// DeviceInfo implements driver.Driver. The result is cached.
func (d *Driver) DeviceInfo(ctx context.Context) (driver.DeviceInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.info != nil {
		return *d.info, nil
	}
	var size struct {
		W  int    `json:"w"`
		H  int    `json:"h"`
		UA string `json:"ua"`
	}
	err := d.run(ctx, chromedp.Evaluate(`({w: window.innerWidth, h: window.innerHeight, ua: navigator.userAgent})`, &size))
	if err != nil {
		return driver.DeviceInfo{}, fmt.Errorf("device info: %w", err)
	}
	info := driver.DeviceInfo{
		ID:       "chrome",
		Platform: driver.PlatformWeb,
		Width:    size.W,
		Height:   size.H,
	}
	if strings.Contains(size.UA, "HeadlessChrome") {
		info.ID = "chrome-headless"
	}
	info.Classifiers = append(info.Classifiers, d.cfg.Classifiers...)
	info.Classifiers = append(info.Classifiers, string(driver.PlatformWeb))
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
		// For the web an app id is the URL to open.
		actions := []chromedp.Action{chromedp.Navigate(cmd.AppID)}
		if cmd.ClearState {
			actions = append(clearStorage(), actions...)
		}
		return d.ok(d.run(ctx, actions...))
	case maestro.CmdStopApp:
		return d.ok(d.run(ctx, chromedp.Navigate("about:blank")))
	case maestro.CmdClearState:
		return d.ok(d.run(ctx, clearStorage()...))
	case maestro.CmdOpenLink:
		return d.ok(d.run(ctx, chromedp.Navigate(cmd.Link)))

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
			res, err = d.ok(d.run(ctx, longPress(float64(x), float64(y))...))
		} else {
			res, err = d.ok(d.run(ctx, chromedp.MouseClickXY(float64(x), float64(y))))
		}
		res.Element = el
		return res, err
	case maestro.CmdAssertNotVisible:
		root, err := d.CaptureHierarchy(ctx)
		if err != nil {
			return driver.Result{}, err
		}
		if len(visible(root, cmd.Selector)) > 0 {
			return driver.Result{Message: fmt.Sprintf("element is visible: %s", cmd.Selector)}, nil
		}
		return driver.Result{Success: true}, nil
	case maestro.CmdTapOnPoint:
		p, _ := maestro.ParsePoint(cmd.Selector.Point)
		return d.ok(d.run(ctx, chromedp.MouseClickXY(float64(p.X), float64(p.Y))))

	case maestro.CmdInputText:
		return d.ok(d.run(ctx, chromedp.KeyEvent(cmd.Text)))
	case maestro.CmdEraseText:
		n := cmd.Count
		if n <= 0 {
			n = defaultEraseCount
		}
		return d.ok(d.run(ctx, chromedp.KeyEvent(strings.Repeat(kb.Backspace, n))))
	case maestro.CmdBack:
		return d.ok(d.run(ctx, chromedp.NavigateBack()))
	case maestro.CmdHideKeyboard:
		return d.ok(d.run(ctx, chromedp.Evaluate(`document.activeElement && document.activeElement.blur()`, nil)))
	case maestro.CmdPressKey:
		return d.ok(d.run(ctx, chromedp.KeyEvent(keyFor(cmd.Key))))

	case maestro.CmdSwipe, maestro.CmdScroll:
		dir := cmd.Direction
		if dir == "" {
			dir = maestro.DirectionDown
		}
		if cmd.Type == maestro.CmdSwipe {
			// Swiping up reveals content below, like scrolling down.
			dir = opposite(dir)
		}
		return d.ok(d.run(ctx, chromedp.Evaluate(scrollScript(dir), nil)))

	case maestro.CmdWaitForAnimationToEnd:
		return d.waitForStableScreen(ctx, cmd.TimeoutMs)
	}
	return driver.Result{Message: fmt.Sprintf("unsupported command %s", cmd.Type)}, nil
}

func (d *Driver) ok(err error) (driver.Result, error) {
	if err != nil {
		return driver.Result{}, err
	}
	return driver.Result{Success: true}, nil
}

func (d *Driver) locate(ctx context.Context, sel maestro.Selector) (*driver.ViewNode, driver.Result, error) {
	root, err := d.CaptureHierarchy(ctx)
	if err != nil {
		return nil, driver.Result{}, err
	}
	matches := visible(root, sel)
	if len(matches) <= sel.Index {
		return nil, driver.Result{Message: fmt.Sprintf("element not found: %s", sel)}, nil
	}
	return matches[sel.Index], driver.Result{}, nil
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
		case <-time.After(stabilizePollPeriod):
		}
		cur, err := d.CaptureHierarchy(ctx)
		if err != nil {
			return driver.Result{}, err
		}
		if cur.Equal(prev) {
			return driver.Result{Success: true, Message: "page is stable"}, nil
		}
		prev = cur
	}
	return driver.Result{Success: true, Message: "page still changing after timeout"}, nil
}

// visible returns selector matches that have a non-empty box.
func visible(root *driver.ViewNode, sel maestro.Selector) []*driver.ViewNode {
	var out []*driver.ViewNode
	for _, n := range root.Find(sel) {
		if n.Bounds != nil && n.Bounds.Width > 0 && n.Bounds.Height > 0 {
			out = append(out, n)
		}
	}
	return out
}

func clearStorage() []chromedp.Action {
	return []chromedp.Action{
		network.ClearBrowserCookies(),
		chromedp.Evaluate(`try { localStorage.clear(); sessionStorage.clear(); } catch (e) {}`, nil),
	}
}

func longPress(x, y float64) []chromedp.Action {
	return []chromedp.Action{
		input.DispatchMouseEvent(input.MouseMoved, x, y),
		input.DispatchMouseEvent(input.MousePressed, x, y).WithButton(input.Left).WithClickCount(1),
		chromedp.Sleep(longPressDuration),
		input.DispatchMouseEvent(input.MouseReleased, x, y).WithButton(input.Left).WithClickCount(1),
	}
}

// scrollScript scrolls the page by most of a viewport. dir is the direction
// the viewport moves.
func scrollScript(dir maestro.Direction) string {
	dx, dy := "0", "0"
	switch dir {
	case maestro.DirectionUp:
		dy = fmt.Sprintf("-window.innerHeight * %g", scrollFraction)
	case maestro.DirectionDown:
		dy = fmt.Sprintf("window.innerHeight * %g", scrollFraction)
	case maestro.DirectionLeft:
		dx = fmt.Sprintf("-window.innerWidth * %g", scrollFraction)
	case maestro.DirectionRight:
		dx = fmt.Sprintf("window.innerWidth * %g", scrollFraction)
	}
	return fmt.Sprintf("window.scrollBy(%s, %s)", dx, dy)
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

var keys = map[string]string{
	"enter":     kb.Enter,
	"tab":       kb.Tab,
	"escape":    kb.Escape,
	"back":      kb.Escape,
	"backspace": kb.Backspace,
	"delete":    kb.Delete,
	"home":      kb.Home,
	"end":       kb.End,
	"up":        kb.ArrowUp,
	"down":      kb.ArrowDown,
	"left":      kb.ArrowLeft,
	"right":     kb.ArrowRight,
}

// keyFor maps a key name to chromedp's key text. Unknown names are typed
// literally.
func keyFor(name string) string {
	if k, ok := keys[strings.ToLower(name)]; ok {
		return k
	}
	return name
}
