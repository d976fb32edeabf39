package screenstate

import (
	"fmt"
	"strings"

	"github.com/ChamsBouzaiene/trailblaze/internal/driver"
)

// HierarchyText renders the hierarchy as an indented outline for the LLM.
// Nodes that carry no text, id or interaction flag are collapsed into
// their children.
func (s *ScreenState) HierarchyText() string {
	var b strings.Builder
	renderNode(&b, s.hierarchy, 0)
	return b.String()
}

func renderNode(b *strings.Builder, n *driver.ViewNode, depth int) {
	if n == nil {
		return
	}
	next := depth
	if interesting(n) {
		b.WriteString(strings.Repeat("  ", depth))
		fmt.Fprintf(b, "[%d]", n.NodeID)
		if n.ClassName != "" {
			b.WriteString(" " + shortClass(n.ClassName))
		}
		if n.Text != "" {
			fmt.Fprintf(b, " text=%q", n.Text)
		}
		if n.AccessibilityText != "" {
			fmt.Fprintf(b, " a11y=%q", n.AccessibilityText)
		}
		if n.ResourceID != "" {
			fmt.Fprintf(b, " id=%s", n.ResourceID)
		}
		if n.Clickable {
			b.WriteString(" clickable")
		}
		if n.Focused {
			b.WriteString(" focused")
		}
		if n.Selected {
			b.WriteString(" selected")
		}
		if n.Scrollable {
			b.WriteString(" scrollable")
		}
		if n.Bounds != nil && !n.Enabled {
			b.WriteString(" disabled")
		}
		if n.Bounds != nil {
			cx, cy := n.Bounds.Center()
			fmt.Fprintf(b, " center=%d,%d", cx, cy)
		}
		b.WriteByte('\n')
		next = depth + 1
	}
	for _, c := range n.Children {
		renderNode(b, c, next)
	}
}

func interesting(n *driver.ViewNode) bool {
	return n.Text != "" || n.AccessibilityText != "" || n.ResourceID != "" ||
		n.Clickable || n.Scrollable || n.Focused
}

func shortClass(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}
