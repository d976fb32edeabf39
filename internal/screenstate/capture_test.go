package screenstate

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/trailblaze/internal/driver"
	"github.com/ChamsBouzaiene/trailblaze/internal/driver/mock"
)

func screen(label string) *driver.ViewNode {
	return &driver.ViewNode{
		ClassName: "android.widget.FrameLayout",
		Bounds:    &driver.Bounds{Width: 200, Height: 400},
		Children: []*driver.ViewNode{
			{Text: label, ClassName: "android.widget.TextView", Bounds: &driver.Bounds{X: 10, Y: 10, Width: 80, Height: 20}},
			{Text: "Go", Clickable: true, Enabled: true, Bounds: &driver.Bounds{X: 10, Y: 50, Width: 80, Height: 40}},
			{AccessibilityText: "Settings", Enabled: true, Bounds: &driver.Bounds{X: 100, Y: 50, Width: 40, Height: 40}},
		},
	}
}

func noWait(int) time.Duration { return 0 }

func TestCaptureStableFirstAttempt(t *testing.T) {
	d := mock.New(mock.Config{Info: driver.DeviceInfo{Width: 200, Height: 400}})
	d.SetScreen(screen("Hello"))

	backoffCalls := 0
	st, err := Capture(context.Background(), d, Options{Backoff: func(a int) time.Duration {
		backoffCalls++
		return 0
	}})
	require.NoError(t, err)

	assert.Equal(t, 1, st.Attempts())
	assert.True(t, st.Stable())
	assert.Equal(t, 2, d.Captures())
	assert.Equal(t, 1, d.Screenshots())
	assert.Zero(t, backoffCalls, "a stable capture must not back off")
	assert.Equal(t, 200, st.DeviceWidth())
	assert.Equal(t, 400, st.DeviceHeight())
}

func TestCaptureRelabelsIDs(t *testing.T) {
	d := mock.New(mock.Config{Info: driver.DeviceInfo{Width: 200, Height: 400}})
	d.SetScreen(screen("Hello"))

	st, err := Capture(context.Background(), d, Options{})
	require.NoError(t, err)

	var ids []int
	st.Hierarchy().Walk(func(n *driver.ViewNode) bool {
		ids = append(ids, n.NodeID)
		return true
	})
	assert.Equal(t, []int{1, 2, 3, 4}, ids)
	assert.Zero(t, d.Screen().NodeID, "the driver's tree must not be relabelled")
}

func TestCaptureUnstableUsesLastSnapshot(t *testing.T) {
	screens := make([]*driver.ViewNode, 0, 8)
	for i := 0; i < 8; i++ {
		screens = append(screens, screen(string(rune('A'+i))))
	}
	d := mock.New(mock.Config{Info: driver.DeviceInfo{Width: 200, Height: 400}, Screens: screens})

	var waits []int
	st, err := Capture(context.Background(), d, Options{MaxAttempts: 3, Backoff: func(a int) time.Duration {
		waits = append(waits, a)
		return 0
	}})
	require.NoError(t, err)

	assert.Equal(t, 3, st.Attempts())
	assert.False(t, st.Stable())
	assert.Equal(t, []int{1, 2}, waits)
	assert.Equal(t, 6, d.Captures())
	// third attempt's first capture is screens[4]
	assert.Equal(t, "E", st.Hierarchy().Children[0].Text)
}

func TestCaptureEmptyFirstHierarchyIsFatal(t *testing.T) {
	offscreen := &driver.ViewNode{Bounds: &driver.Bounds{X: 5000, Y: 5000, Width: 10, Height: 10}}
	d := mock.New(mock.Config{Info: driver.DeviceInfo{Width: 200, Height: 400}})
	d.SetScreen(offscreen)

	_, err := Capture(context.Background(), d, Options{Backoff: noWait})
	assert.True(t, errors.Is(err, ErrEmptyHierarchy))
	assert.Equal(t, 1, d.Captures())
}

func TestLinearBackoff(t *testing.T) {
	assert.Equal(t, 300*time.Millisecond, LinearBackoff(3))
}

func blankPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestSetOfMarkPlatformRules(t *testing.T) {
	root := screen("Hello")
	relabel(root)

	android := MarkableNodes(root, driver.PlatformAndroid)
	require.Len(t, android, 1)
	assert.Equal(t, "Go", android[0].Text)

	ios := MarkableNodes(root, driver.PlatformIOS)
	require.Len(t, ios, 2)
	assert.Equal(t, "Settings", ios[1].AccessibilityText)
}

func TestCaptureWithSetOfMark(t *testing.T) {
	shot := blankPNG(t, 200, 400)
	d := mock.New(mock.Config{
		Info:       driver.DeviceInfo{Width: 200, Height: 400, Platform: driver.PlatformAndroid},
		Screenshot: shot,
	})
	d.SetScreen(screen("Hello"))

	st, err := Capture(context.Background(), d, Options{SetOfMark: true})
	require.NoError(t, err)

	require.Len(t, st.Marks(), 1)
	assert.Equal(t, 3, st.Marks()[0].NodeID)
	assert.NotEqual(t, shot, st.Screenshot())

	img, err := png.Decode(bytes.NewReader(st.Screenshot()))
	require.NoError(t, err)
	_, _, _, a := img.At(10, 50).RGBA()
	assert.NotZero(t, a, "mark outline should be painted at the element corner")
}

func TestDrawSetOfMarkLabel(t *testing.T) {
	root := screen("Hello")
	relabel(root)

	out, marks, err := DrawSetOfMark(blankPNG(t, 200, 400), root, driver.PlatformAndroid)
	require.NoError(t, err)
	require.Len(t, marks, 1)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)

	// The "3" label box is 7x13 glyph plus padding, anchored at (10, 50).
	var white, fill int
	for y := 50; y < 50+17; y++ {
		for x := 10; x < 10+11; x++ {
			switch color.RGBAModel.Convert(img.At(x, y)) {
			case color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}:
				white++
			case markPalette[0]:
				fill++
			}
		}
	}
	assert.Positive(t, white, "digit glyph pixels")
	assert.Positive(t, fill, "label background")

	_, _, _, a := img.At(30, 58).RGBA()
	assert.Zero(t, a, "label does not extend past the text")
}

func TestHierarchyText(t *testing.T) {
	st := New(driver.DeviceInfo{Width: 200, Height: 400}, screen("Hello"), nil)
	text := st.HierarchyText()
	assert.Contains(t, text, `[2] TextView text="Hello"`)
	assert.Contains(t, text, `[3] text="Go" clickable center=50,70`)
	assert.NotContains(t, text, "FrameLayout")
}
