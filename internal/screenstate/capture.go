package screenstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/trailblaze/internal/driver"
)

// DefaultMaxAttempts bounds capture retries when Options.MaxAttempts is zero.
const DefaultMaxAttempts = 10

// ErrEmptyHierarchy is returned when the first hierarchy capture holds no
// element inside the screen bounds.
var ErrEmptyHierarchy = errors.New("view hierarchy is empty")

// Options controls Capture.
type Options struct {
	SetOfMark   bool
	MaxAttempts int
	// Backoff returns the delay after a failed attempt. Defaults to attempt*100ms.
	Backoff func(attempt int) time.Duration
	Logger  *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.Backoff == nil {
		o.Backoff = LinearBackoff
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// LinearBackoff waits attempt*100ms.
func LinearBackoff(attempt int) time.Duration {
	return time.Duration(attempt) * 100 * time.Millisecond
}

// Capture takes a snapshot whose hierarchy and screenshot are mutually
// consistent. Each attempt captures the hierarchy, takes a screenshot and
// captures the hierarchy again; the attempt is accepted when both
// hierarchies are structurally equal. When every attempt sees movement,
// the last snapshot is returned anyway.
func Capture(ctx context.Context, d driver.Driver, opts Options) (*ScreenState, error) {
	opts = opts.withDefaults()

	info, err := d.DeviceInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("device info: %w", err)
	}

	var last *ScreenState
	for attempt := 1; ; attempt++ {
		first, err := d.CaptureHierarchy(ctx)
		if err != nil {
			return nil, fmt.Errorf("capture hierarchy: %w", err)
		}
		filtered := filterInBounds(first, info.Width, info.Height)
		if filtered == nil && attempt == 1 {
			return nil, ErrEmptyHierarchy
		}

		shot, err := d.TakeScreenshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("take screenshot: %w", err)
		}

		second, err := d.CaptureHierarchy(ctx)
		if err != nil {
			return nil, fmt.Errorf("capture hierarchy: %w", err)
		}
		stable := filterInBounds(second, info.Width, info.Height).Equal(filtered)

		if filtered != nil || last == nil {
			last = newState(info, filtered, shot, attempt, stable)
		}
		if stable {
			break
		}
		if attempt >= opts.MaxAttempts {
			opts.Logger.Warn("screen did not settle, using last capture",
				zap.Int("attempts", attempt))
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opts.Backoff(attempt)):
		}
	}

	if opts.SetOfMark {
		marked, marks, err := DrawSetOfMark(last.screenshot, last.hierarchy, last.platform)
		if err != nil {
			opts.Logger.Warn("set-of-mark overlay failed", zap.Error(err))
		} else {
			last.screenshot = marked
			last.marks = marks
		}
	}
	return last, nil
}

func newState(info driver.DeviceInfo, root *driver.ViewNode, shot []byte, attempt int, stable bool) *ScreenState {
	relabel(root)
	return &ScreenState{
		width:      info.Width,
		height:     info.Height,
		platform:   info.Platform,
		hierarchy:  root,
		screenshot: shot,
		attempts:   attempt,
		stable:     stable,
		capturedAt: time.Now(),
	}
}
