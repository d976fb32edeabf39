package driver

import (
	"testing"

	"github.com/ChamsBouzaiene/trailblaze/internal/maestro"
)

func sampleTree() *ViewNode {
	return &ViewNode{
		ClassName: "FrameLayout",
		Bounds:    &Bounds{Width: 100, Height: 200},
		Children: []*ViewNode{
			{Text: "OK", ResourceID: "ok", Clickable: true, Enabled: true, Bounds: &Bounds{X: 10, Y: 10, Width: 20, Height: 10}},
			{AccessibilityText: "Close", Clickable: true, Bounds: &Bounds{X: 50, Y: 10, Width: 20, Height: 10}},
		},
	}
}

func TestViewNodeEqualIgnoresNodeID(t *testing.T) {
	a := sampleTree()
	b := sampleTree()
	b.NodeID = 7
	b.Children[0].NodeID = 8
	if !a.Equal(b) {
		t.Error("trees differing only by NodeID should be equal")
	}

	b.Children[1].AccessibilityText = "Dismiss"
	if a.Equal(b) {
		t.Error("trees with different accessibility text should differ")
	}
}

func TestViewNodeCloneIsDeep(t *testing.T) {
	a := sampleTree()
	c := a.Clone()
	c.Children[0].Bounds.X = 99
	if a.Children[0].Bounds.X == 99 {
		t.Error("Clone shares bounds with the original")
	}
	if !a.Clone().Equal(a) {
		t.Error("clone should be structurally equal")
	}
}

func TestViewNodeFind(t *testing.T) {
	root := sampleTree()
	if got := root.Find(maestro.Selector{Text: "Close"}); len(got) != 1 {
		t.Errorf("Find by accessibility text: got %d matches, want 1", len(got))
	}
	if got := root.Find(maestro.Selector{ID: "ok", Text: "Cancel"}); len(got) != 0 {
		t.Errorf("Find with mismatched text: got %d matches, want 0", len(got))
	}
	if got := root.Find(maestro.Selector{}); len(got) != 0 {
		t.Errorf("empty selector should match nothing, got %d", len(got))
	}
}

func TestBoundsWithin(t *testing.T) {
	tests := []struct {
		name string
		b    Bounds
		want bool
	}{
		{"inside", Bounds{X: 1, Y: 1, Width: 10, Height: 10}, true},
		{"partly off screen", Bounds{X: -5, Y: 0, Width: 10, Height: 10}, true},
		{"fully off screen", Bounds{X: 200, Y: 0, Width: 10, Height: 10}, false},
		{"zero area", Bounds{X: 1, Y: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.b.Within(100, 100); got != tt.want {
				t.Errorf("Within() = %v, want %v", got, tt.want)
			}
		})
	}
}
