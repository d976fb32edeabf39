// Package mock provides an in-memory driver for tests and dry runs.
package mock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ChamsBouzaiene/trailblaze/internal/driver"
	"github.com/ChamsBouzaiene/trailblaze/internal/maestro"
)

// PNG is a valid 1x1 transparent PNG.
var PNG = []byte{
	0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4, 0x89, 0x00, 0x00, 0x00,
	0x0A, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9C, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0D, 0x0A, 0x2D, 0xB4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4E, 0x44, 0xAE, 0x42, 0x60, 0x82,
}

// ErrTransport is returned by Execute when Config.FailTransport is set.
var ErrTransport = errors.New("mock transport failure")

// ExecuteFunc overrides command handling. Returning handled=false falls
// back to the default behavior.
type ExecuteFunc func(d *Driver, cmd maestro.Command) (res driver.Result, handled bool)

// Config configures mock driver behavior.
type Config struct {
	Info driver.DeviceInfo
	// Screens are returned by successive CaptureHierarchy calls; the last
	// one repeats. When empty, the tree set via SetScreen is returned.
	Screens []*driver.ViewNode
	// Screenshot defaults to PNG.
	Screenshot []byte
	// FailOnCommand makes the Nth executed command (1-indexed) fail.
	FailOnCommand int
	FailTransport bool
	OnExecute     ExecuteFunc
}

// Driver is a mock implementation of driver.Driver.
type Driver struct {
	cfg Config

	mu       sync.Mutex
	screen   *driver.ViewNode
	captures int
	shots    int
	executed []maestro.Command
}

var _ driver.Driver = (*Driver)(nil)

// New creates a new mock driver.
func New(cfg Config) *Driver {
	if cfg.Info.ID == "" {
		cfg.Info.ID = "mock-device"
	}
	if cfg.Info.Platform == "" {
		cfg.Info.Platform = driver.PlatformAndroid
	}
	if cfg.Info.Width == 0 {
		cfg.Info.Width = 1080
	}
	if cfg.Info.Height == 0 {
		cfg.Info.Height = 1920
	}
	if cfg.Screenshot == nil {
		cfg.Screenshot = PNG
	}
	return &Driver{cfg: cfg}
}

// SetScreen replaces the current hierarchy.
func (d *Driver) SetScreen(root *driver.ViewNode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.screen = root
}

// Screen returns the current hierarchy without counting a capture.
func (d *Driver) Screen() *driver.ViewNode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.screen
}

// Executed returns the commands run so far.
func (d *Driver) Executed() []maestro.Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]maestro.Command, len(d.executed))
	copy(out, d.executed)
	return out
}

// Captures returns how many times CaptureHierarchy was called.
func (d *Driver) Captures() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.captures
}

// Screenshots returns how many times TakeScreenshot was called.
func (d *Driver) Screenshots() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shots
}

func (d *Driver) CaptureHierarchy(ctx context.Context) (*driver.ViewNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.captures++
	if n := len(d.cfg.Screens); n > 0 {
		i := d.captures - 1
		if i >= n {
			i = n - 1
		}
		return d.cfg.Screens[i].Clone(), nil
	}
	return d.screen.Clone(), nil
}

func (d *Driver) TakeScreenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shots++
	out := make([]byte, len(d.cfg.Screenshot))
	copy(out, d.cfg.Screenshot)
	return out, nil
}

func (d *Driver) DeviceInfo(ctx context.Context) (driver.DeviceInfo, error) {
	return d.cfg.Info, nil
}

func (d *Driver) Execute(ctx context.Context, cmd maestro.Command) (driver.Result, error) {
	if err := ctx.Err(); err != nil {
		return driver.Result{}, err
	}
	start := time.Now()

	d.mu.Lock()
	d.executed = append(d.executed, cmd)
	n := len(d.executed)
	d.mu.Unlock()

	if d.cfg.FailTransport {
		return driver.Result{}, ErrTransport
	}
	if d.cfg.FailOnCommand > 0 && n == d.cfg.FailOnCommand {
		return driver.Result{
			Success:  false,
			Message:  fmt.Sprintf("simulated failure on command %d (%s)", n, cmd.Type),
			Duration: time.Since(start),
		}, nil
	}
	if d.cfg.OnExecute != nil {
		if res, handled := d.cfg.OnExecute(d, cmd); handled {
			res.Duration = time.Since(start)
			return res, nil
		}
	}

	res := d.defaultExecute(cmd)
	res.Duration = time.Since(start)
	return res, nil
}

func (d *Driver) defaultExecute(cmd maestro.Command) driver.Result {
	switch cmd.Type {
	case maestro.CmdTapOn, maestro.CmdLongPressOn, maestro.CmdAssertVisible:
		matches := d.Screen().Find(cmd.Selector)
		if len(matches) <= cmd.Selector.Index {
			return driver.Result{Success: false, Message: fmt.Sprintf("element not found: %s", cmd.Selector)}
		}
		return driver.Result{Success: true, Message: "mock executed: " + cmd.String(), Element: matches[cmd.Selector.Index]}
	case maestro.CmdAssertNotVisible:
		if len(d.Screen().Find(cmd.Selector)) > 0 {
			return driver.Result{Success: false, Message: fmt.Sprintf("element is visible: %s", cmd.Selector)}
		}
	}
	return driver.Result{Success: true, Message: "mock executed: " + cmd.String()}
}
