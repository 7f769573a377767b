// Package dom is the narrow view of the messaging client's page that the
// lookup pipeline works against: selector queries, text and attribute reads,
// child insertion and removal, and subtree change subscriptions.
package dom

import (
	"golang.org/x/net/html"
)

// OverlayMarker is set on every node the pipeline inserts. Mutations made up
// only of marked nodes are reported as self-originated.
const OverlayMarker = "data-crm-overlay"

// Page is implemented by Document. A nil root in Query/QueryAll means the
// whole page; otherwise only descendants of root are searched. Observe with a
// nil element watches the whole page.
type Page interface {
	Query(root *html.Node, selector string) (*html.Node, bool)
	QueryAll(root *html.Node, selector string) []*html.Node
	Attr(el *html.Node, name string) (string, bool)
	SetAttr(el *html.Node, name, value string)
	ReadText(el *html.Node) string
	Append(parent, child *html.Node)
	Remove(el *html.Node)
	Observe(el *html.Node, fn func(Mutation)) Subscription
	Contains(el *html.Node) bool
}

// Mutation describes one structural change under an observed element.
type Mutation struct {
	Target  *html.Node
	Added   []*html.Node
	Removed []*html.Node
}

// SelfOriginated reports whether every added and removed node is an overlay.
// An empty mutation is not self-originated.
func (m Mutation) SelfOriginated() bool {
	if len(m.Added) == 0 && len(m.Removed) == 0 {
		return false
	}
	for _, n := range m.Added {
		if !IsOverlay(n) {
			return false
		}
	}
	for _, n := range m.Removed {
		if !IsOverlay(n) {
			return false
		}
	}
	return true
}

type Subscription interface {
	Unsubscribe()
}

func IsOverlay(n *html.Node) bool {
	_, ok := attr(n, OverlayMarker)
	return ok
}

func attr(n *html.Node, name string) (string, bool) {
	if n == nil || n.Type != html.ElementNode {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}
