package web

import (
	"math"
	"strings"

	"github.com/ChamsBouzaiene/trailblaze/internal/driver"
)

// snapshotScript serializes the visible DOM into domNode JSON. Invisible
// subtrees (display:none, visibility:hidden, zero-size leaves) are skipped.
const snapshotScript = `(() => {
  const clickableTags = new Set(["A", "BUTTON", "SELECT", "SUMMARY", "OPTION", "LABEL"]);
  const visit = (el) => {
    const style = window.getComputedStyle(el);
    if (style.display === "none" || style.visibility === "hidden") return null;
    const r = el.getBoundingClientRect();
    const children = [];
    for (const c of el.children) {
      const n = visit(c);
      if (n) children.push(n);
    }
    if (r.width === 0 && r.height === 0 && children.length === 0) return null;
    let text = "";
    if (el.tagName === "INPUT" || el.tagName === "TEXTAREA") {
      text = el.value || el.placeholder || "";
    } else {
      for (const n of el.childNodes) {
        if (n.nodeType === Node.TEXT_NODE) text += n.textContent;
      }
    }
    const role = el.getAttribute("role") || "";
    return {
      tag: el.tagName.toLowerCase(),
      text: text,
      label: el.getAttribute("aria-label") || el.getAttribute("alt") || el.getAttribute("title") || "",
      id: el.id || el.getAttribute("data-testid") || "",
      role: role,
      x: r.left, y: r.top, w: r.width, h: r.height,
      clickable: clickableTags.has(el.tagName) || role === "button" || role === "link" ||
        typeof el.onclick === "function" || style.cursor === "pointer",
      editable: el.tagName === "INPUT" || el.tagName === "TEXTAREA" || el.isContentEditable,
      disabled: !!el.disabled || el.getAttribute("aria-disabled") === "true",
      focused: document.activeElement === el,
      selected: !!el.checked || !!el.selected || el.getAttribute("aria-selected") === "true",
      scrollable: (el.scrollHeight > el.clientHeight + 1 && /(auto|scroll)/.test(style.overflowY)) ||
        (el.scrollWidth > el.clientWidth + 1 && /(auto|scroll)/.test(style.overflowX)),
      children: children,
    };
  };
  return document.body ? visit(document.body) : null;
})()`

// domNode is one element as reported by snapshotScript.
type domNode struct {
	Tag        string     `json:"tag"`
	Text       string     `json:"text"`
	Label      string     `json:"label"`
	ID         string     `json:"id"`
	Role       string     `json:"role"`
	X          float64    `json:"x"`
	Y          float64    `json:"y"`
	W          float64    `json:"w"`
	H          float64    `json:"h"`
	Clickable  bool       `json:"clickable"`
	Editable   bool       `json:"editable"`
	Disabled   bool       `json:"disabled"`
	Focused    bool       `json:"focused"`
	Selected   bool       `json:"selected"`
	Scrollable bool       `json:"scrollable"`
	Children   []*domNode `json:"children"`
}

// toViewNode converts a DOM snapshot into the shared view model. Class names
// are the ARIA role when present, otherwise the tag name.
func toViewNode(d *domNode) *driver.ViewNode {
	if d == nil {
		return nil
	}
	class := d.Tag
	if d.Role != "" {
		class = d.Role
	}
	n := &driver.ViewNode{
		Text:              strings.Join(strings.Fields(d.Text), " "),
		AccessibilityText: d.Label,
		ResourceID:        d.ID,
		ClassName:         class,
		Clickable:         d.Clickable || d.Editable,
		Enabled:           !d.Disabled,
		Focused:           d.Focused,
		Selected:          d.Selected,
		Scrollable:        d.Scrollable,
	}
	if d.W > 0 || d.H > 0 {
		n.Bounds = &driver.Bounds{
			X:      int(math.Round(d.X)),
			Y:      int(math.Round(d.Y)),
			Width:  int(math.Round(d.W)),
			Height: int(math.Round(d.H)),
		}
	}
	for _, c := range d.Children {
		if v := toViewNode(c); v != nil {
			n.Children = append(n.Children, v)
		}
	}
	return n
}
