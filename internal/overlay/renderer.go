// Package overlay inserts the contact annotations into the chat page.
package overlay

import (
	"strings"

	"whatsapp-crm-lookup/internal/crm"
	"whatsapp-crm-lookup/internal/dom"
	"whatsapp-crm-lookup/internal/logging"
	"whatsapp-crm-lookup/internal/metrics"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	ListClass   = "ghl-contact-overlay"
	HeaderClass = "ghl-header-overlay"
)

type Kind string

const (
	KindList   Kind = "list"
	KindHeader Kind = "header"
)

// Event is what a Publisher receives after each render.
type Event struct {
	Kind  Kind   `json:"kind"`
	Phone string `json:"phone"`
	HTML  string `json:"html"`
}

// Publisher forwards rendered overlays, e.g. to the browser shim.
type Publisher interface {
	PublishOverlay(ev Event)
}

type Renderer struct {
	page      dom.Page
	tracker   *Tracker
	publisher Publisher
	logger    *zap.Logger
}

// NewRenderer accepts a nil publisher.
func NewRenderer(page dom.Page, tracker *Tracker, publisher Publisher, logger *zap.Logger) *Renderer {
	return &Renderer{
		page:      page,
		tracker:   tracker,
		publisher: publisher,
		logger:    logging.OrNop(logger),
	}
}

// RenderList replaces any list overlay under el with one for contact and
// records it against phone.
func (r *Renderer) RenderList(el *html.Node, contact *crm.Contact, phone string) *html.Node {
	overlay := element(atom.Div, ListClass,
		element(atom.Div, "ghl-contact-info",
			textElement("ghl-contact-name", contact.FullName()),
			textElement("ghl-contact-email", email(contact)),
			textElement("ghl-contact-tags", contact.TagList()),
		),
	)
	overlay.Attr = append(overlay.Attr, html.Attribute{Key: dom.OverlayMarker, Val: phone})

	r.replace(el, ListClass, overlay, KindList, phone)
	style, _ := r.page.Attr(el, "style")
	r.page.SetAttr(el, "style", withRelativePosition(style))
	r.tracker.Set(phone, overlay)
	return overlay
}

// RenderHeader replaces any header overlay under el. Header overlays are not
// tracked; the header is re-rendered on every change.
func (r *Renderer) RenderHeader(el *html.Node, contact *crm.Contact, phone string) *html.Node {
	overlay := element(atom.Div, HeaderClass,
		element(atom.Div, "ghl-header-info",
			textElement("ghl-header-name", contact.FullName()),
			textElement("ghl-header-email", email(contact)),
		),
	)
	overlay.Attr = append(overlay.Attr, html.Attribute{Key: dom.OverlayMarker, Val: phone})

	r.replace(el, HeaderClass, overlay, KindHeader, phone)
	return overlay
}

func (r *Renderer) replace(el *html.Node, class string, overlay *html.Node, kind Kind, phone string) {
	// Rendered before insertion so the markup is read while nothing else
	// can see the node.
	markup := dom.OuterHTML(overlay)

	if existing, ok := r.page.Query(el, "."+class); ok {
		r.page.Remove(existing)
	}
	r.page.Append(el, overlay)

	metrics.OverlaysRenderedTotal.WithLabelValues(string(kind)).Inc()
	r.logger.Debug("overlay rendered", zap.String("kind", string(kind)), zap.String("phone", phone))

	if r.publisher != nil {
		r.publisher.PublishOverlay(Event{Kind: kind, Phone: phone, HTML: markup})
	}
}

// withRelativePosition sets position to relative in an inline style and
// keeps every other declaration.
func withRelativePosition(style string) string {
	var decls []string
	for _, decl := range strings.Split(style, ";") {
		decl = strings.TrimSpace(decl)
		if decl == "" {
			continue
		}
		prop, _, _ := strings.Cut(decl, ":")
		if strings.EqualFold(strings.TrimSpace(prop), "position") {
			continue
		}
		decls = append(decls, decl)
	}
	return strings.Join(append(decls, "position: relative"), "; ")
}

func email(c *crm.Contact) string {
	if c == nil {
		return ""
	}
	return c.Email
}

func element(a atom.Atom, class string, children ...*html.Node) *html.Node {
	n := &html.Node{
		Type:     html.ElementNode,
		DataAtom: a,
		Data:     a.String(),
		Attr:     []html.Attribute{{Key: "class", Val: class}},
	}
	for _, c := range children {
		n.AppendChild(c)
	}
	return n
}

func textElement(class, text string) *html.Node {
	return element(atom.Div, class, &html.Node{Type: html.TextNode, Data: text})
}
