package overlay

import (
	"testing"

	"whatsapp-crm-lookup/internal/crm"
	"whatsapp-crm-lookup/internal/dom"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

type recordingPublisher struct {
	events []Event
}

func (p *recordingPublisher) PublishOverlay(ev Event) {
	p.events = append(p.events, ev)
}

func setup(t *testing.T) (*dom.Document, *Renderer, *Tracker, *recordingPublisher) {
	t.Helper()
	doc, err := dom.ParseString(`<html><body>
<div data-testid="chat-list"><div id="entry"><span>+1 555 123 4567</span></div></div>
<div id="main"><header data-testid="conversation-header"><span>+1 555 123 4567</span></header></div>
</body></html>`)
	require.NoError(t, err)
	tracker := NewTracker()
	pub := &recordingPublisher{}
	return doc, NewRenderer(doc, tracker, pub, zap.NewNop()), tracker, pub
}

func query(t *testing.T, doc *dom.Document, sel string) *html.Node {
	t.Helper()
	n, ok := doc.Query(nil, sel)
	require.True(t, ok, sel)
	return n
}

func TestRenderList(t *testing.T) {
	doc, r, tracker, pub := setup(t)
	entry := query(t, doc, "#entry")

	r.RenderList(entry, &crm.Contact{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Tags: []string{"vip", "lead"}}, "+15551234567")
	second := r.RenderList(entry, &crm.Contact{FirstName: "Grace"}, "+15551234567")

	overlays := doc.QueryAll(entry, "."+ListClass)
	require.Len(t, overlays, 1, "overlays are replaced, never stacked")
	assert.Same(t, second, overlays[0])

	name := query(t, doc, "#entry .ghl-contact-name")
	assert.Equal(t, "Grace", doc.ReadText(name))
	assert.Equal(t, "", doc.ReadText(query(t, doc, "#entry .ghl-contact-email")))
	assert.Equal(t, "", doc.ReadText(query(t, doc, "#entry .ghl-contact-tags")))

	style, _ := doc.Attr(entry, "style")
	assert.Equal(t, "position: relative", style)

	tracked, ok := tracker.Get("+15551234567")
	require.True(t, ok)
	assert.Same(t, second, tracked)

	require.Len(t, pub.events, 2)
	assert.Equal(t, KindList, pub.events[0].Kind)
	assert.Contains(t, pub.events[0].HTML, "vip, lead")
	assert.Contains(t, pub.events[0].HTML, "Ada Lovelace")
}

func TestRenderListKeepsInlineStyle(t *testing.T) {
	doc, r, _, _ := setup(t)
	entry := query(t, doc, "#entry")
	doc.SetAttr(entry, "style", "height: 72px; transform: translateY(144px);")

	r.RenderList(entry, &crm.Contact{FirstName: "Ada"}, "+15551234567")
	style, _ := doc.Attr(entry, "style")
	assert.Equal(t, "height: 72px; transform: translateY(144px); position: relative", style)

	// An existing position is replaced, not duplicated, and re-rendering is stable.
	doc.SetAttr(entry, "style", "Position: absolute; height: 72px")
	r.RenderList(entry, &crm.Contact{FirstName: "Ada"}, "+15551234567")
	r.RenderList(entry, &crm.Contact{FirstName: "Ada"}, "+15551234567")
	style, _ = doc.Attr(entry, "style")
	assert.Equal(t, "height: 72px; position: relative", style)
}

func TestTrackerPrune(t *testing.T) {
	doc, r, tracker, _ := setup(t)
	entry := query(t, doc, "#entry")
	r.RenderList(entry, &crm.Contact{FirstName: "Ada"}, "+15551234567")
	require.Equal(t, 1, tracker.Len())

	assert.Zero(t, tracker.Prune(doc.Contains))
	require.NoError(t, doc.UpdateRegion(`[data-testid="chat-list"]`, `<div id="entry2"></div>`))
	assert.Equal(t, 1, tracker.Prune(doc.Contains))
	assert.False(t, tracker.Has("+15551234567"))
}

func TestRenderHeader(t *testing.T) {
	doc, r, tracker, pub := setup(t)
	header := query(t, doc, `[data-testid="conversation-header"]`)

	r.RenderHeader(header, &crm.Contact{FirstName: "Ada", Email: "ada@example.com"}, "+15551234567")
	r.RenderHeader(header, &crm.Contact{LastName: "Hopper"}, "+15551234567")

	require.Len(t, doc.QueryAll(header, "."+HeaderClass), 1)
	assert.Equal(t, "Hopper", doc.ReadText(query(t, doc, ".ghl-header-name")))
	assert.Equal(t, "", doc.ReadText(query(t, doc, ".ghl-header-email")))
	assert.Zero(t, tracker.Len(), "header overlays are not tracked")
	require.Len(t, pub.events, 2)
	assert.Equal(t, KindHeader, pub.events[1].Kind)
}

func TestRenderEscapesContactData(t *testing.T) {
	doc, r, _, _ := setup(t)
	entry := query(t, doc, "#entry")

	r.RenderList(entry, &crm.Contact{FirstName: `<img src=x onerror="alert(1)">`}, "+15551234567")

	assert.Empty(t, doc.QueryAll(entry, "img"))
	assert.Contains(t, doc.ReadText(query(t, doc, ".ghl-contact-name")), "<img")
}

func TestRenderMutationsAreSelfOriginated(t *testing.T) {
	doc, r, _, _ := setup(t)
	list := query(t, doc, `[data-testid="chat-list"]`)
	entry := query(t, doc, "#entry")

	var got []dom.Mutation
	doc.Observe(list, func(m dom.Mutation) { got = append(got, m) })

	r.RenderList(entry, &crm.Contact{FirstName: "Ada"}, "+15551234567")
	r.RenderList(entry, &crm.Contact{FirstName: "Ada"}, "+15551234567")

	require.Len(t, got, 3) // append, then remove + append
	for _, m := range got {
		assert.True(t, m.SelfOriginated())
	}
}

func TestRenderWithoutPublisher(t *testing.T) {
	doc, err := dom.ParseString(`<div id="entry"></div>`)
	require.NoError(t, err)
	r := NewRenderer(doc, NewTracker(), nil, nil)
	entry, _ := doc.Query(nil, "#entry")

	assert.NotPanics(t, func() { r.RenderList(entry, nil, "123") })
}
