package web

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/trailblaze/internal/driver"
	"github.com/ChamsBouzaiene/trailblaze/internal/maestro"
)

func loginPage() *domNode {
	return &domNode{
		Tag: "body", W: 1280, H: 800,
		Children: []*domNode{
			{Tag: "input", ID: "email", Text: "Email", X: 40.4, Y: 100.6, W: 300, H: 40, Editable: true, Focused: true},
			{Tag: "div", Role: "button", Text: "  Sign\n   in ", X: 40, Y: 160, W: 120, H: 40, Clickable: true},
			{Tag: "img", Label: "Logo", W: 0, H: 0},
			{Tag: "button", Text: "Pay", Disabled: true, X: 200, Y: 160, W: 80, H: 40, Clickable: true},
		},
	}
}

func TestToViewNode(t *testing.T) {
	root := toViewNode(loginPage())
	require.Len(t, root.Children, 4)

	want := &driver.ViewNode{
		Text:       "Email",
		ResourceID: "email",
		ClassName:  "input",
		Bounds:     &driver.Bounds{X: 40, Y: 101, Width: 300, Height: 40},
		Clickable:  true,
		Enabled:    true,
		Focused:    true,
	}
	if diff := cmp.Diff(want, root.Children[0]); diff != "" {
		t.Errorf("input mismatch (-want +got):\n%s", diff)
	}

	button := root.Children[1]
	assert.Equal(t, "Sign in", button.Text, "whitespace is collapsed")
	assert.Equal(t, "button", button.ClassName, "role wins over tag")

	assert.Nil(t, root.Children[2].Bounds)
	assert.False(t, root.Children[3].Enabled)
	assert.Nil(t, toViewNode(nil))
}

func TestVisibleSkipsEmptyBoxes(t *testing.T) {
	root := toViewNode(loginPage())
	assert.Empty(t, visible(root, maestro.Selector{Text: "Logo"}))

	got := visible(root, maestro.Selector{Text: "Sign in"})
	require.Len(t, got, 1)
	x, y := got[0].Bounds.Center()
	assert.Equal(t, []int{100, 180}, []int{x, y})
}

func TestScrollScript(t *testing.T) {
	tests := []struct {
		dir  maestro.Direction
		want string
	}{
		{maestro.DirectionDown, "window.scrollBy(0, window.innerHeight * 0.8)"},
		{maestro.DirectionUp, "window.scrollBy(0, -window.innerHeight * 0.8)"},
		{maestro.DirectionLeft, "window.scrollBy(-window.innerWidth * 0.8, 0)"},
		{maestro.DirectionRight, "window.scrollBy(window.innerWidth * 0.8, 0)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, scrollScript(tt.dir), tt.dir)
	}
	assert.Equal(t, maestro.DirectionDown, opposite(maestro.DirectionUp))
}

func TestKeyFor(t *testing.T) {
	assert.Equal(t, "\r", keyFor("Enter"))
	assert.Equal(t, "x", keyFor("x"))
}
