package dom

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// TagName returns the lower-case tag name.
func (e *Element) TagName() string {
	return e.node.Data
}

// Attr returns the value of an attribute and whether it is present.
func (e *Element) Attr(name string) (string, bool) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return getAttr(e.node, name)
}

// HasAttr reports whether the attribute is present.
func (e *Element) HasAttr(name string) bool {
	_, ok := e.Attr(name)
	return ok
}

// SetAttr sets an attribute and notifies observers.
func (e *Element) SetAttr(name, value string) {
	e.doc.mu.Lock()
	old, _ := getAttr(e.node, name)
	setAttr(e.node, name, value)
	notify := e.doc.connected(e.node)
	e.doc.mu.Unlock()

	if notify {
		e.doc.dispatch(Mutation{Type: Attributes, Target: e, AttributeName: name, OldValue: old})
	}
}

// SetAttrIfAbsent sets the attribute only when it is not present yet and
// reports whether it did. The check and the write are atomic.
func (e *Element) SetAttrIfAbsent(name, value string) bool {
	e.doc.mu.Lock()
	if _, ok := getAttr(e.node, name); ok {
		e.doc.mu.Unlock()
		return false
	}
	setAttr(e.node, name, value)
	notify := e.doc.connected(e.node)
	e.doc.mu.Unlock()

	if notify {
		e.doc.dispatch(Mutation{Type: Attributes, Target: e, AttributeName: name})
	}
	return true
}

// RemoveAttr removes an attribute if present.
func (e *Element) RemoveAttr(name string) {
	e.doc.mu.Lock()
	old, ok := getAttr(e.node, name)
	if ok {
		attrs := e.node.Attr[:0]
		for _, a := range e.node.Attr {
			if a.Namespace != "" || a.Key != name {
				attrs = append(attrs, a)
			}
		}
		e.node.Attr = attrs
	}
	notify := ok && e.doc.connected(e.node)
	e.doc.mu.Unlock()

	if notify {
		e.doc.dispatch(Mutation{Type: Attributes, Target: e, AttributeName: name, OldValue: old})
	}
}

// Src returns the src attribute resolved against the document base URL,
// the way HTMLImageElement.src does. Absolute URLs, including data: and
// blob: URIs, are returned unchanged.
func (e *Element) Src() string {
	raw, _ := e.Attr("src")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || e.doc.base == nil {
		return raw
	}
	return e.doc.base.ResolveReference(u).String()
}

// Style returns the value of one inline style property.
func (e *Element) Style(prop string) string {
	style, _ := e.Attr("style")
	for _, decl := range parseStyle(style) {
		if decl.prop == strings.ToLower(prop) {
			return decl.value
		}
	}
	return ""
}

// SetStyle sets one inline style property, keeping the others.
func (e *Element) SetStyle(prop, value string) {
	prop = strings.ToLower(strings.TrimSpace(prop))
	style, _ := e.Attr("style")
	decls := parseStyle(style)
	replaced := false
	for i := range decls {
		if decls[i].prop == prop {
			decls[i].value = value
			replaced = true
		}
	}
	if !replaced {
		decls = append(decls, styleDecl{prop: prop, value: value})
	}
	e.SetAttr("style", formatStyle(decls))
}

// AppendChild moves child under e and notifies observers with a childList
// mutation.
func (e *Element) AppendChild(child *Element) {
	e.doc.mu.Lock()
	if child.node.Parent != nil {
		child.node.Parent.RemoveChild(child.node)
	}
	e.node.AppendChild(child.node)
	notify := e.doc.connected(e.node)
	e.doc.mu.Unlock()

	if notify {
		e.doc.dispatch(Mutation{Type: ChildList, Target: e, AddedNodes: []*Element{child}})
	}
}

// QuerySelectorAll returns descendants with the given tag name in document order.
func (e *Element) QuerySelectorAll(tag string) []*Element {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.doc.collect(e.node, tag)
}

// Parent returns the parent element, or nil.
func (e *Element) Parent() *Element {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	p := e.node.Parent
	if p == nil || p.Type != html.ElementNode {
		return nil
	}
	return e.doc.wrap(p)
}

func setAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

type styleDecl struct {
	prop  string
	value string
}

func parseStyle(s string) []styleDecl {
	var decls []styleDecl
	for part := range strings.SplitSeq(s, ";") {
		prop, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		if prop == "" {
			continue
		}
		decls = append(decls, styleDecl{prop: prop, value: strings.TrimSpace(value)})
	}
	return decls
}

func formatStyle(decls []styleDecl) string {
	var sb strings.Builder
	for i, d := range decls {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(d.prop)
		sb.WriteString(": ")
		sb.WriteString(d.value)
		sb.WriteByte(';')
	}
	return sb.String()
}
