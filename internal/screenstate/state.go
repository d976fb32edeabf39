// Package screenstate captures consistent snapshots of the device UI.
package screenstate

import (
	"time"

	"github.com/ChamsBouzaiene/trailblaze/internal/driver"
)

// Mark is one set-of-mark overlay label drawn onto the screenshot.
type Mark struct {
	NodeID int
	Bounds driver.Bounds
}

// ScreenState is an immutable view of the UI at one instant. Callers must
// not mutate the hierarchy or screenshot they obtain from it.
type ScreenState struct {
	width      int
	height     int
	platform   driver.Platform
	hierarchy  *driver.ViewNode
	screenshot []byte
	marks      []Mark
	attempts   int
	stable     bool
	capturedAt time.Time
}

// New builds a ScreenState directly. Used by drivers that already hold a
// consistent snapshot and by tests.
func New(info driver.DeviceInfo, hierarchy *driver.ViewNode, screenshot []byte) *ScreenState {
	root := hierarchy.Clone()
	relabel(root)
	return &ScreenState{
		width:      info.Width,
		height:     info.Height,
		platform:   info.Platform,
		hierarchy:  root,
		screenshot: screenshot,
		attempts:   1,
		stable:     true,
		capturedAt: time.Now(),
	}
}

func (s *ScreenState) DeviceWidth() int            { return s.width }
func (s *ScreenState) DeviceHeight() int           { return s.height }
func (s *ScreenState) Platform() driver.Platform   { return s.platform }
func (s *ScreenState) Hierarchy() *driver.ViewNode { return s.hierarchy }
func (s *ScreenState) Screenshot() []byte          { return s.screenshot }
func (s *ScreenState) Marks() []Mark               { return s.marks }
func (s *ScreenState) CapturedAt() time.Time       { return s.capturedAt }

// Attempts is the number of capture cycles used to produce this snapshot.
func (s *ScreenState) Attempts() int { return s.attempts }

// Stable reports whether the two hierarchy captures of the final attempt matched.
func (s *ScreenState) Stable() bool { return s.stable }

// relabel assigns fresh sequential NodeIDs in document order starting at 1.
func relabel(root *driver.ViewNode) {
	next := 1
	root.Walk(func(n *driver.ViewNode) bool {
		n.NodeID = next
		next++
		return true
	})
}

// filterInBounds returns a copy of root without the subtrees that lie
// entirely outside the screen. Nodes without bounds are kept only as
// containers of in-bounds descendants. Returns nil when nothing remains.
func filterInBounds(root *driver.ViewNode, width, height int) *driver.ViewNode {
	if root == nil {
		return nil
	}
	var kept []*driver.ViewNode
	for _, c := range root.Children {
		if fc := filterInBounds(c, width, height); fc != nil {
			kept = append(kept, fc)
		}
	}
	inside := root.Bounds != nil && root.Bounds.Within(width, height)
	if !inside && len(kept) == 0 {
		return nil
	}
	cp := *root
	if root.Bounds != nil {
		b := *root.Bounds
		cp.Bounds = &b
	}
	cp.Children = kept
	return &cp
}
