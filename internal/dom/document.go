package dom

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Document is an in-memory page. It mirrors the live client through the
// websocket bridge or is loaded from a saved snapshot. All methods are safe
// for concurrent use; observer callbacks run after the lock is released, on
// the goroutine that made the change.
type Document struct {
	mu   sync.RWMutex
	root *html.Node

	obsMu     sync.Mutex
	observers []*observer

	selectors sync.Map // string -> cascadia.Selector
}

type observer struct {
	doc    *Document
	target *html.Node
	fn     func(Mutation)
}

func (o *observer) Unsubscribe() {
	o.doc.obsMu.Lock()
	defer o.doc.obsMu.Unlock()
	for i, other := range o.doc.observers {
		if other == o {
			o.doc.observers = append(o.doc.observers[:i], o.doc.observers[i+1:]...)
			return
		}
	}
}

func NewDocument(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return &Document{root: root}, nil
}

func ParseString(s string) (*Document, error) {
	return NewDocument(strings.NewReader(s))
}

func (d *Document) selector(sel string) (cascadia.Selector, error) {
	if cached, ok := d.selectors.Load(sel); ok {
		return cached.(cascadia.Selector), nil
	}
	compiled, err := cascadia.Compile(sel)
	if err != nil {
		return nil, fmt.Errorf("compile selector %q: %w", sel, err)
	}
	d.selectors.Store(sel, compiled)
	return compiled, nil
}

// Query returns the first matching descendant. Invalid selectors match nothing.
func (d *Document) Query(root *html.Node, sel string) (*html.Node, bool) {
	m, err := d.selector(sel)
	if err != nil {
		return nil, false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if root == nil {
		root = d.root
	}
	n := cascadia.Query(root, m)
	return n, n != nil
}

func (d *Document) QueryAll(root *html.Node, sel string) []*html.Node {
	m, err := d.selector(sel)
	if err != nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if root == nil {
		root = d.root
	}
	return cascadia.QueryAll(root, m)
}

func (d *Document) Attr(el *html.Node, name string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return attr(el, name)
}

// SetAttr is not a structural change and notifies nobody.
func (d *Document) SetAttr(el *html.Node, name, value string) {
	if el == nil || el.Type != html.ElementNode {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, a := range el.Attr {
		if a.Namespace == "" && a.Key == name {
			el.Attr[i].Val = value
			return
		}
	}
	el.Attr = append(el.Attr, html.Attribute{Key: name, Val: value})
}

// ReadText concatenates every text node under el, like textContent.
func (d *Document) ReadText(el *html.Node) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var b strings.Builder
	collectText(&b, el)
	return b.String()
}

func collectText(b *strings.Builder, n *html.Node) {
	if n == nil {
		return
	}
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(b, c)
	}
}

// Append moves child under parent, detaching it first if needed.
func (d *Document) Append(parent, child *html.Node) {
	if parent == nil || child == nil {
		return
	}
	d.mu.Lock()
	var removed []*html.Node
	oldParent := child.Parent
	if oldParent != nil {
		oldParent.RemoveChild(child)
		removed = append(removed, child)
	}
	parent.AppendChild(child)
	d.mu.Unlock()

	if oldParent != nil {
		d.notify(oldParent, nil, removed)
	}
	d.notify(parent, []*html.Node{child}, nil)
}

func (d *Document) Remove(el *html.Node) {
	if el == nil {
		return
	}
	d.mu.Lock()
	parent := el.Parent
	if parent == nil {
		d.mu.Unlock()
		return
	}
	parent.RemoveChild(el)
	d.mu.Unlock()

	d.notify(parent, nil, []*html.Node{el})
}

// SetInnerHTML replaces the children of el with the parsed fragment as one
// mutation.
func (d *Document) SetInnerHTML(el *html.Node, fragment string) error {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), el)
	if err != nil {
		return fmt.Errorf("parse fragment: %w", err)
	}

	d.mu.Lock()
	var removed []*html.Node
	for c := el.FirstChild; c != nil; {
		next := c.NextSibling
		el.RemoveChild(c)
		removed = append(removed, c)
		c = next
	}
	for _, n := range nodes {
		el.AppendChild(n)
	}
	d.mu.Unlock()

	d.notify(el, nodes, removed)
	return nil
}

// AppendHTML parses fragment and appends the result to el as one mutation.
func (d *Document) AppendHTML(el *html.Node, fragment string) error {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), el)
	if err != nil {
		return fmt.Errorf("parse fragment: %w", err)
	}

	d.mu.Lock()
	for _, n := range nodes {
		el.AppendChild(n)
	}
	d.mu.Unlock()

	d.notify(el, nodes, nil)
	return nil
}

// UpdateRegion replaces the contents of the first element matching sel.
func (d *Document) UpdateRegion(sel, fragment string) error {
	el, ok := d.Query(nil, sel)
	if !ok {
		return fmt.Errorf("region %q not found", sel)
	}
	return d.SetInnerHTML(el, fragment)
}

// Observe calls fn for every structural change in el's subtree, or anywhere
// in the page when el is nil.
func (d *Document) Observe(el *html.Node, fn func(Mutation)) Subscription {
	if el == nil {
		d.mu.RLock()
		el = d.root
		d.mu.RUnlock()
	}
	o := &observer{doc: d, target: el, fn: fn}
	d.obsMu.Lock()
	d.observers = append(d.observers, o)
	d.obsMu.Unlock()
	return o
}

func (d *Document) notify(changed *html.Node, added, removed []*html.Node) {
	d.obsMu.Lock()
	observers := append([]*observer(nil), d.observers...)
	d.obsMu.Unlock()
	if len(observers) == 0 {
		return
	}

	type delivery struct {
		fn func(Mutation)
		m  Mutation
	}
	var pending []delivery
	d.mu.RLock()
	for _, o := range observers {
		if isInclusiveAncestor(o.target, changed) {
			pending = append(pending, delivery{fn: o.fn, m: Mutation{Target: o.target, Added: added, Removed: removed}})
		}
	}
	d.mu.RUnlock()

	for _, p := range pending {
		p.fn(p.m)
	}
}

// Contains reports whether el is still attached to the page. Nodes dropped by
// a region update are not.
func (d *Document) Contains(el *html.Node) bool {
	if el == nil {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return isInclusiveAncestor(d.root, el)
}

func isInclusiveAncestor(ancestor, n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == ancestor {
			return true
		}
	}
	return false
}

func (d *Document) Render(w io.Writer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return html.Render(w, d.root)
}

// OuterHTML renders n on its own. Use it on nodes no other goroutine mutates.
func OuterHTML(n *html.Node) string {
	var b strings.Builder
	if err := html.Render(&b, n); err != nil {
		return ""
	}
	return b.String()
}
