// Package dom is a small mutable HTML document model with mutation
// observation, built on golang.org/x/net/html. It is safe for concurrent
// use; observers are called synchronously after each mutation, outside the
// document lock.
package dom

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is a parsed HTML document.
type Document struct {
	base *url.URL

	mu       sync.Mutex
	root     *html.Node
	wrappers map[*html.Node]*Element

	obsMu     sync.Mutex
	observers map[int]*observer
	nextObsID int
}

// Element is an element node of a Document. The same node always maps to the
// same *Element.
type Element struct {
	doc  *Document
	node *html.Node
}

// Parse reads an HTML document. baseURL is used to resolve relative image
// sources and may be empty.
func Parse(r io.Reader, baseURL string) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}
	var base *url.URL
	if baseURL != "" {
		base, err = url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("parsing base url: %w", err)
		}
	}
	d := &Document{
		base:      base,
		root:      root,
		wrappers:  make(map[*html.Node]*Element),
		observers: make(map[int]*observer),
	}
	if b := d.findBaseHref(); b != nil {
		d.base = b
	}
	return d, nil
}

// ParseString is Parse for an in-memory document.
func ParseString(s, baseURL string) (*Document, error) {
	return Parse(strings.NewReader(s), baseURL)
}

// findBaseHref honours <base href>, resolved against the document URL.
func (d *Document) findBaseHref() *url.URL {
	var found *url.URL
	walk(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.Base {
			if href, ok := getAttr(n, "href"); ok && href != "" {
				if u, err := url.Parse(href); err == nil {
					if d.base != nil {
						u = d.base.ResolveReference(u)
					}
					found = u
					return false
				}
			}
		}
		return true
	})
	return found
}

// Render writes the document as HTML.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}

// String renders the document, ignoring write errors.
func (d *Document) String() string {
	var sb strings.Builder
	d.Render(&sb)
	return sb.String()
}

// Body returns the <body> element. html.Parse always creates one.
func (d *Document) Body() *Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	var body *html.Node
	walk(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.Body {
			body = n
			return false
		}
		return true
	})
	if body == nil {
		return nil
	}
	return d.wrap(body)
}

// QuerySelectorAll returns every element with the given tag name in
// document order.
func (d *Document) QuerySelectorAll(tag string) []*Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.collect(d.root, tag)
}

// CreateElement returns a new detached element.
func (d *Document) CreateElement(tag string) *Element {
	tag = strings.ToLower(tag)
	n := &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.wrap(n)
}

// CreateFragment parses markup in a <body> context and returns the detached
// top-level elements.
func (d *Document) CreateFragment(markup string) ([]*Element, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctx)
	if err != nil {
		return nil, fmt.Errorf("parsing fragment: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*Element
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			out = append(out, d.wrap(n))
		}
	}
	return out, nil
}

// wrap must be called with d.mu held.
func (d *Document) wrap(n *html.Node) *Element {
	if el, ok := d.wrappers[n]; ok {
		return el
	}
	el := &Element{doc: d, node: n}
	d.wrappers[n] = el
	return el
}

// collect must be called with d.mu held. The starting node itself is not included.
func (d *Document) collect(from *html.Node, tag string) []*Element {
	tag = strings.ToLower(tag)
	var out []*Element
	for c := from.FirstChild; c != nil; c = c.NextSibling {
		walk(c, func(n *html.Node) bool {
			if n.Type == html.ElementNode && n.Data == tag {
				out = append(out, d.wrap(n))
			}
			return true
		})
	}
	return out
}

// connected must be called with d.mu held.
func (d *Document) connected(n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == d.root {
			return true
		}
	}
	return false
}

// walk visits n and its descendants depth-first until fn returns false.
func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

func getAttr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}
