package screenstate

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/ChamsBouzaiene/trailblaze/internal/driver"
)

// MarkableNodes returns the nodes that receive a set-of-mark label. Android
// and web label clickable enabled elements; iOS reports clickability less
// reliably, so any enabled element with accessibility text is labelled too.
func MarkableNodes(root *driver.ViewNode, platform driver.Platform) []*driver.ViewNode {
	var out []*driver.ViewNode
	root.Walk(func(n *driver.ViewNode) bool {
		if n.Bounds == nil || n.Bounds.Area() <= 0 {
			return true
		}
		var ok bool
		switch platform {
		case driver.PlatformIOS:
			ok = n.Enabled && (n.Clickable || n.AccessibilityText != "")
		default:
			ok = n.Clickable && n.Enabled
		}
		if ok {
			out = append(out, n)
		}
		return true
	})
	return out
}

var markPalette = []color.RGBA{
	{R: 0xE5, G: 0x39, B: 0x35, A: 0xFF},
	{R: 0x1E, G: 0x88, B: 0xE5, A: 0xFF},
	{R: 0x43, G: 0xA0, B: 0x47, A: 0xFF},
	{R: 0xFB, G: 0x8C, B: 0x00, A: 0xFF},
	{R: 0x8E, G: 0x24, B: 0xAA, A: 0xFF},
}

// DrawSetOfMark outlines every markable node on the PNG screenshot and
// labels it with its NodeID.
func DrawSetOfMark(screenshot []byte, root *driver.ViewNode, platform driver.Platform) ([]byte, []Mark, error) {
	src, err := png.Decode(bytes.NewReader(screenshot))
	if err != nil {
		return nil, nil, fmt.Errorf("decode screenshot: %w", err)
	}
	canvas := image.NewRGBA(src.Bounds())
	draw.Draw(canvas, canvas.Bounds(), src, src.Bounds().Min, draw.Src)

	nodes := MarkableNodes(root, platform)
	marks := make([]Mark, 0, len(nodes))
	for i, n := range nodes {
		c := markPalette[i%len(markPalette)]
		r := image.Rect(n.Bounds.X, n.Bounds.Y, n.Bounds.X+n.Bounds.Width, n.Bounds.Y+n.Bounds.Height)
		strokeRect(canvas, r, c, 2)
		drawLabel(canvas, r.Min, strconv.Itoa(n.NodeID), c)
		marks = append(marks, Mark{NodeID: n.NodeID, Bounds: *n.Bounds})
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, nil, fmt.Errorf("encode screenshot: %w", err)
	}
	return buf.Bytes(), marks, nil
}

func fillRect(img *image.RGBA, r image.Rectangle, c color.Color) {
	draw.Draw(img, r.Intersect(img.Bounds()), &image.Uniform{C: c}, image.Point{}, draw.Src)
}

func strokeRect(img *image.RGBA, r image.Rectangle, c color.Color, w int) {
	fillRect(img, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+w), c)
	fillRect(img, image.Rect(r.Min.X, r.Max.Y-w, r.Max.X, r.Max.Y), c)
	fillRect(img, image.Rect(r.Min.X, r.Min.Y, r.Min.X+w, r.Max.Y), c)
	fillRect(img, image.Rect(r.Max.X-w, r.Min.Y, r.Max.X, r.Max.Y), c)
}

// drawLabel paints text in white on a bg box anchored at the node's top-left.
func drawLabel(img *image.RGBA, at image.Point, text string, bg color.Color) {
	const pad = 2
	face := basicfont.Face7x13
	w := font.MeasureString(face, text).Ceil() + pad*2
	h := face.Metrics().Height.Ceil() + pad*2
	fillRect(img, image.Rect(at.X, at.Y, at.X+w, at.Y+h), bg)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.White,
		Face: face,
		Dot:  fixed.P(at.X+pad, at.Y+pad+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)
}
