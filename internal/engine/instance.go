package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"whatsapp-crm-lookup/internal/cache"
	"whatsapp-crm-lookup/internal/dom"
	"whatsapp-crm-lookup/internal/overlay"
	"whatsapp-crm-lookup/internal/phone"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// instance is one lifetime of the pipeline, from credential load to Reset.
//
// Reactions (scans and post-lookup renders) hold mu, so they run one at a
// time. Lookups run outside mu; two scans can therefore miss on the same
// phone and both look it up.
//
// Renders change the observed subtrees. Those mutations contain only marked
// overlay nodes and are dropped before they reach the queue, so a render never
// schedules another scan.
type instance struct {
	e      *Engine
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	state  atomic.Int32

	mu       sync.Mutex
	cache    *cache.Cache
	tracker  *overlay.Tracker
	renderer *overlay.Renderer
	subs     []dom.Subscription

	// Owned by the run goroutine.
	list     *html.Node
	viewport *html.Node

	queue    *eventQueue
	inflight sync.WaitGroup
}

func (e *Engine) newInstance(parent context.Context) *instance {
	ctx, cancel := context.WithCancel(parent)
	tracker := overlay.NewTracker()
	return &instance{
		e:        e,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		tracker:  tracker,
		renderer: overlay.NewRenderer(e.page, tracker, e.publisher, e.logger),
		queue:    newEventQueue(),
	}
}

func (in *instance) run() {
	defer close(in.done)
	defer in.detach()

	if err := in.prepare(); err != nil {
		in.e.logger.Info("CRM lookups disabled", zap.Error(err))
		return
	}

	list, ok := in.waitForInterface()
	if !ok {
		return
	}
	in.attach(list)
	in.setState(Observing)
	in.e.logger.Info("observing chat list")

	in.scanList()
	in.scanHeader()

	for {
		select {
		case <-in.ctx.Done():
			return
		case <-in.queue.ready:
			if !in.react(in.queue.drain()) {
				return
			}
		}
	}
}

// react handles one batch of events. It returns false once the instance has
// been stopped.
func (in *instance) react(events []eventKind) bool {
	for _, ev := range events {
		switch ev {
		case listChanged:
			in.scanList()
		case viewportChanged:
			in.scanHeader()
		case pageChanged, reloadRequested:
			if ev == pageChanged && !in.stale() {
				continue
			}
			// reattach rescans everything, so the rest of the batch is moot.
			return in.reattach(ev == reloadRequested)
		}
	}
	return true
}

// stale reports whether an observed container left the page, or whether the
// viewport showed up after it was missing at attach time.
func (in *instance) stale() bool {
	page := in.e.page
	if !page.Contains(in.list) {
		return true
	}
	if in.viewport != nil {
		return !page.Contains(in.viewport)
	}
	_, ok := page.Query(nil, in.e.opts.ViewportSelector)
	return ok
}

// reattach drops the subscriptions and waits for the chat list again. The
// cache survives; tracked overlays that left the page are forgotten so their
// phones render on the new entries.
func (in *instance) reattach(reload bool) bool {
	in.detach()
	in.setState(AwaitingInterfaceReady)
	pruned := in.tracker.Prune(in.e.page.Contains)
	in.e.logger.Info("chat list replaced, reattaching",
		zap.Bool("reload", reload), zap.Int("pruned_overlays", pruned))

	list, ok := in.waitForInterface()
	if !ok {
		return false
	}
	in.attach(list)
	in.setState(Observing)

	in.scanList()
	in.scanHeader()
	return true
}

func (in *instance) stop() {
	in.cancel()
	<-in.done
	in.inflight.Wait()
}

// prepare loads credentials and builds the cache. Missing credentials leave
// the instance in AwaitingCredentials for good.
func (in *instance) prepare() error {
	in.setState(AwaitingCredentials)

	creds, err := in.e.settings.Get(in.ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if !creds.Complete() {
		return ErrInert
	}

	in.mu.Lock()
	in.cache = cache.New(in.e.newFinder(creds))
	in.mu.Unlock()

	in.setState(AwaitingInterfaceReady)
	return nil
}

// waitForInterface polls until the chat list exists. If the page never
// renders it, this polls until the instance is stopped.
func (in *instance) waitForInterface() (*html.Node, bool) {
	ticker := time.NewTicker(in.e.opts.PollInterval)
	defer ticker.Stop()

	for {
		if list, ok := in.e.page.Query(nil, in.e.opts.ListSelector); ok {
			return list, true
		}
		select {
		case <-in.ctx.Done():
			return nil, false
		case <-ticker.C:
		}
	}
}

func (in *instance) attach(list *html.Node) {
	page := in.e.page
	in.list = list
	in.viewport = nil
	subs := []dom.Subscription{
		page.Observe(list, in.enqueue(listChanged)),
		page.Observe(nil, in.enqueue(pageChanged)),
	}
	if viewport, ok := page.Query(nil, in.e.opts.ViewportSelector); ok {
		in.viewport = viewport
		subs = append(subs, page.Observe(viewport, in.enqueue(viewportChanged)))
	} else {
		in.e.logger.Warn("conversation viewport not found, header overlays disabled",
			zap.String("selector", in.e.opts.ViewportSelector))
	}

	in.mu.Lock()
	in.subs = subs
	in.mu.Unlock()
}

func (in *instance) detach() {
	in.mu.Lock()
	subs := in.subs
	in.subs = nil
	in.mu.Unlock()
	for _, s := range subs {
		s.Unsubscribe()
	}
}

func (in *instance) enqueue(kind eventKind) func(m dom.Mutation) {
	return func(m dom.Mutation) {
		if m.SelfOriginated() {
			return
		}
		in.queue.push(kind)
	}
}

// scanList enriches every visible entry whose phone has no tracked overlay.
func (in *instance) scanList() {
	in.mu.Lock()
	defer in.mu.Unlock()

	page := in.e.page
	for _, entry := range page.QueryAll(nil, in.e.opts.EntrySelector) {
		p, ok := phone.Extract(page, entry)
		if !ok || in.tracker.Has(p) {
			continue
		}
		in.resolveAndRender(entry, p, overlay.KindList)
	}
}

// scanHeader always re-extracts and re-renders; there is no skip check.
func (in *instance) scanHeader() {
	in.mu.Lock()
	defer in.mu.Unlock()

	page := in.e.page
	header, ok := page.Query(nil, in.e.opts.HeaderSelector)
	if !ok {
		return
	}
	p, ok := phone.Extract(page, header)
	if !ok {
		return
	}
	in.resolveAndRender(header, p, overlay.KindHeader)
}

// resolveAndRender must be called with mu held.
func (in *instance) resolveAndRender(el *html.Node, p string, kind overlay.Kind) {
	c := in.cache
	in.inflight.Add(1)
	go func() {
		defer in.inflight.Done()

		contact := c.Resolve(in.ctx, p)
		if contact == nil {
			return
		}

		in.mu.Lock()
		defer in.mu.Unlock()
		// The entry may have been replaced while the lookup ran.
		if in.ctx.Err() != nil || !in.e.page.Contains(el) {
			return
		}
		switch kind {
		case overlay.KindList:
			in.renderer.RenderList(el, contact, p)
		case overlay.KindHeader:
			in.renderer.RenderHeader(el, contact, p)
		}
	}()
}

func (in *instance) setState(s State) {
	in.state.Store(int32(s))
}

func (in *instance) currentState() State {
	return State(in.state.Load())
}

func (in *instance) status() Status {
	in.mu.Lock()
	c := in.cache
	in.mu.Unlock()

	st := Status{
		State:           in.currentState().String(),
		TrackedOverlays: in.tracker.Len(),
	}
	if c != nil {
		st.CachedContacts = c.Len()
	}
	return st
}
