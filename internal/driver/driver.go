// Package driver defines the device capability set the engine consumes and
// the view hierarchy model drivers report.
package driver

import (
	"context"
	"errors"
	"time"

	"github.com/ChamsBouzaiene/trailblaze/internal/maestro"
)

// Platform identifies the device family.
type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
	PlatformWeb     Platform = "web"
)

// Driver is the capability set required from a device. Implementations:
// adb (Android), web (Chrome DevTools), mock.
type Driver interface {
	// CaptureHierarchy returns the current view tree. Node ids are unset.
	CaptureHierarchy(ctx context.Context) (*ViewNode, error)

	// TakeScreenshot returns the current screen as PNG.
	TakeScreenshot(ctx context.Context) ([]byte, error)

	DeviceInfo(ctx context.Context) (DeviceInfo, error)

	// Execute runs a single command. A command that ran but did not achieve
	// its effect (element not found, assertion false) returns a Result with
	// Success=false and a nil error; err is reserved for transport failures.
	Execute(ctx context.Context, cmd maestro.Command) (Result, error)
}

// DeviceInfo describes the connected device.
type DeviceInfo struct {
	ID          string   `json:"id"`
	Platform    Platform `json:"platform"`
	Width       int      `json:"width"`
	Height      int      `json:"height"`
	Classifiers []string `json:"classifiers,omitempty"` // most specific first, e.g. ["pixel", "android"]
}

// Result is the outcome of a single command.
type Result struct {
	Success  bool          `json:"success"`
	Message  string        `json:"message,omitempty"`
	Element  *ViewNode     `json:"element,omitempty"`
	Duration time.Duration `json:"duration"`
}

// ErrElementNotFound is returned by hierarchy lookups.
var ErrElementNotFound = errors.New("element not found")

// Bounds is an element rectangle in device pixels.
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center returns the center point of the bounds.
func (b Bounds) Center() (int, int) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Contains checks if a point is within the bounds.
func (b Bounds) Contains(x, y int) bool {
	return x >= b.X && x < b.X+b.Width && y >= b.Y && y < b.Y+b.Height
}

// Area returns width*height.
func (b Bounds) Area() int {
	return b.Width * b.Height
}

// Within reports whether b lies at least partly inside a width x height screen.
func (b Bounds) Within(width, height int) bool {
	if b.Width <= 0 || b.Height <= 0 {
		return false
	}
	return b.X < width && b.Y < height && b.X+b.Width > 0 && b.Y+b.Height > 0
}

// ViewNode is one element of the view hierarchy.
type ViewNode struct {
	// NodeID is presentation-only: assigned fresh per capture and ignored by Equal.
	NodeID            int         `json:"nodeId,omitempty"`
	Text              string      `json:"text,omitempty"`
	AccessibilityText string      `json:"accessibilityText,omitempty"`
	ResourceID        string      `json:"resourceId,omitempty"`
	ClassName         string      `json:"className,omitempty"`
	Bounds            *Bounds     `json:"bounds,omitempty"`
	Clickable         bool        `json:"clickable,omitempty"`
	Enabled           bool        `json:"enabled,omitempty"`
	Focused           bool        `json:"focused,omitempty"`
	Selected          bool        `json:"selected,omitempty"`
	Scrollable        bool        `json:"scrollable,omitempty"`
	Children          []*ViewNode `json:"children,omitempty"`
}

// Walk visits n and its descendants depth first. Returning false from fn
// stops the descent into that node's children.
func (n *ViewNode) Walk(fn func(*ViewNode) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Clone returns a deep copy.
func (n *ViewNode) Clone() *ViewNode {
	if n == nil {
		return nil
	}
	cp := *n
	if n.Bounds != nil {
		b := *n.Bounds
		cp.Bounds = &b
	}
	if len(n.Children) > 0 {
		cp.Children = make([]*ViewNode, len(n.Children))
		for i, c := range n.Children {
			cp.Children[i] = c.Clone()
		}
	}
	return &cp
}

// Equal compares two trees structurally, ignoring NodeID.
func (n *ViewNode) Equal(o *ViewNode) bool {
	if n == nil || o == nil {
		return n == o
	}
	if n.Text != o.Text || n.AccessibilityText != o.AccessibilityText ||
		n.ResourceID != o.ResourceID || n.ClassName != o.ClassName ||
		n.Clickable != o.Clickable || n.Enabled != o.Enabled ||
		n.Focused != o.Focused || n.Selected != o.Selected ||
		n.Scrollable != o.Scrollable {
		return false
	}
	if (n.Bounds == nil) != (o.Bounds == nil) {
		return false
	}
	if n.Bounds != nil && *n.Bounds != *o.Bounds {
		return false
	}
	if len(n.Children) != len(o.Children) {
		return false
	}
	for i := range n.Children {
		if !n.Children[i].Equal(o.Children[i]) {
			return false
		}
	}
	return true
}

// FindByID returns the node carrying the given NodeID.
func (n *ViewNode) FindByID(id int) (*ViewNode, error) {
	var found *ViewNode
	n.Walk(func(v *ViewNode) bool {
		if found != nil {
			return false
		}
		if v.NodeID == id {
			found = v
			return false
		}
		return true
	})
	if found == nil {
		return nil, ErrElementNotFound
	}
	return found, nil
}

// Find returns all nodes matching the selector's text or resource id, in
// document order. Text matches either Text or AccessibilityText.
func (n *ViewNode) Find(sel maestro.Selector) []*ViewNode {
	var out []*ViewNode
	n.Walk(func(v *ViewNode) bool {
		if sel.ID != "" && v.ResourceID != sel.ID {
			return true
		}
		if sel.Text != "" && v.Text != sel.Text && v.AccessibilityText != sel.Text {
			return true
		}
		if sel.ID == "" && sel.Text == "" {
			return true
		}
		out = append(out, v)
		return true
	})
	return out
}
