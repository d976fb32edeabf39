package adb

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/ChamsBouzaiene/trailblaze/internal/driver"
)

// ParseHierarchy converts a uiautomator dump into a view tree. Both the
// <node> format and the class-named element format are accepted. Trailing
// text after the XML document, as printed by "uiautomator dump /dev/tty",
// is ignored.
func ParseHierarchy(data []byte) (*driver.ViewNode, error) {
	if end := bytes.LastIndexByte(data, '>'); end >= 0 {
		data = data[:end+1]
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("parse hierarchy: %w", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "hierarchy" {
		return nil, errors.New("parse hierarchy: no hierarchy element found")
	}

	out := &driver.ViewNode{ClassName: "hierarchy", Enabled: true}
	for _, el := range root.ChildElements() {
		out.Children = append(out.Children, parseNode(el))
	}
	return out, nil
}

func parseNode(el *etree.Element) *driver.ViewNode {
	attr := func(name string) string { return el.SelectAttrValue(name, "") }
	flag := func(name string) bool { return attr(name) == "true" }

	n := &driver.ViewNode{
		Text:              attr("text"),
		AccessibilityText: attr("content-desc"),
		ResourceID:        attr("resource-id"),
		ClassName:         attr("class"),
		Clickable:         flag("clickable") || flag("long-clickable"),
		Enabled:           flag("enabled"),
		Focused:           flag("focused"),
		Selected:          flag("selected"),
		Scrollable:        flag("scrollable"),
	}
	if n.ClassName == "" && el.Tag != "node" {
		n.ClassName = el.Tag
	}
	if n.Text == "" {
		// Empty EditText fields only carry their hint.
		n.Text = attr("hint")
	}
	if b, ok := parseBounds(attr("bounds")); ok {
		n.Bounds = &b
	}
	for _, c := range el.ChildElements() {
		n.Children = append(n.Children, parseNode(c))
	}
	return n
}

// parseBounds parses "[x1,y1][x2,y2]".
func parseBounds(s string) (driver.Bounds, bool) {
	s = strings.ReplaceAll(s, "][", ",")
	s = strings.Trim(s, "[]")
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return driver.Bounds{}, false
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return driver.Bounds{}, false
		}
		v[i] = n
	}
	return driver.Bounds{X: v[0], Y: v[1], Width: v[2] - v[0], Height: v[3] - v[1]}, true
}
