// Package engine watches the chat page and drives extraction, contact
// resolution and overlay rendering for the conversation list and the open
// conversation's header.
//
// An Engine owns at most one running instance. Each instance has its own
// cache, overlay tracker and renderer; Reset throws the instance away and
// builds a new one, which is the only way cached lookups are forgotten.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"whatsapp-crm-lookup/internal/cache"
	"whatsapp-crm-lookup/internal/crm"
	"whatsapp-crm-lookup/internal/dom"
	"whatsapp-crm-lookup/internal/logging"
	"whatsapp-crm-lookup/internal/metrics"
	"whatsapp-crm-lookup/internal/overlay"
	"whatsapp-crm-lookup/internal/settings"

	"go.uber.org/zap"
)

type State int32

const (
	Uninitialized State = iota
	AwaitingCredentials
	AwaitingInterfaceReady
	Observing
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case AwaitingCredentials:
		return "awaiting_credentials"
	case AwaitingInterfaceReady:
		return "awaiting_interface_ready"
	case Observing:
		return "observing"
	default:
		return "unknown"
	}
}

// Signal is a control message from the browser side.
type Signal string

const (
	SignalPageReloaded    Signal = "pageReloaded"
	SignalSettingsUpdated Signal = "settingsUpdated"
)

func ParseSignal(s string) (Signal, bool) {
	switch Signal(s) {
	case SignalPageReloaded, SignalSettingsUpdated:
		return Signal(s), true
	}
	return "", false
}

// ErrInert is returned by ScanOnce when credentials are not configured.
var ErrInert = errors.New("CRM credentials are not configured")

type SettingsSource interface {
	Get(ctx context.Context) (settings.Credentials, error)
}

// FinderFactory binds a Finder to freshly loaded credentials.
type FinderFactory func(settings.Credentials) cache.Finder

func CRMFinder(opts crm.Options, logger *zap.Logger) FinderFactory {
	return func(c settings.Credentials) cache.Finder {
		return crm.NewClient(c.APIKey, c.LocationID, opts, logger)
	}
}

type Options struct {
	PollInterval     time.Duration
	ListSelector     string
	EntrySelector    string
	ViewportSelector string
	HeaderSelector   string
}

func DefaultOptions() Options {
	return Options{
		PollInterval:     time.Second,
		ListSelector:     `[data-testid="chat-list"]`,
		EntrySelector:    `[data-testid="chat-list"] > div`,
		ViewportSelector: `#main`,
		HeaderSelector:   `[data-testid="conversation-header"]`,
	}
}

type Status struct {
	State           string `json:"state"`
	CachedContacts  int    `json:"cachedContacts"`
	TrackedOverlays int    `json:"trackedOverlays"`
}

type Engine struct {
	page      dom.Page
	settings  SettingsSource
	newFinder FinderFactory
	publisher overlay.Publisher
	opts      Options
	logger    *zap.Logger

	mu      sync.Mutex
	base    context.Context
	current *instance
}

// New does not start anything; call Start. A nil publisher is allowed.
func New(page dom.Page, src SettingsSource, newFinder FinderFactory, publisher overlay.Publisher, opts Options, logger *zap.Logger) *Engine {
	defaults := DefaultOptions()
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaults.PollInterval
	}
	if opts.ListSelector == "" {
		opts.ListSelector = defaults.ListSelector
	}
	if opts.EntrySelector == "" {
		opts.EntrySelector = defaults.EntrySelector
	}
	if opts.ViewportSelector == "" {
		opts.ViewportSelector = defaults.ViewportSelector
	}
	if opts.HeaderSelector == "" {
		opts.HeaderSelector = defaults.HeaderSelector
	}

	return &Engine{
		page:      page,
		settings:  src,
		newFinder: newFinder,
		publisher: publisher,
		opts:      opts,
		logger:    logging.OrNop(logger),
	}
}

// Start launches an instance bound to ctx. It is a no-op if one is running.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil {
		return
	}
	e.base = ctx
	e.current = e.launch(ctx)
}

// Reset stops the running instance, dropping its cache, overlay tracking and
// subscriptions, and starts a fresh one.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current != nil {
		e.current.stop()
	}
	if e.base == nil {
		e.base = context.Background()
	}
	metrics.EngineResetsTotal.Inc()
	e.current = e.launch(e.base)
}

// Stop ends the running instance and waits for its lookups to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil {
		e.current.stop()
		e.current = nil
	}
}

func (e *Engine) HandleSignal(sig Signal) {
	switch sig {
	case SignalSettingsUpdated:
		e.logger.Info("settings updated, resetting engine")
		e.Reset()
	case SignalPageReloaded:
		e.reload()
	default:
		e.logger.Warn("unknown signal", zap.String("signal", string(sig)))
	}
}

// reload makes an observing instance drop its subscriptions, wait for the
// chat list again and rescan. Cache and surviving overlays are kept. Before
// Observing there is nothing attached yet, so the signal is ignored.
func (e *Engine) reload() {
	e.mu.Lock()
	in := e.current
	e.mu.Unlock()
	if in == nil || in.currentState() != Observing {
		e.logger.Debug("page reloaded before observing, ignoring")
		return
	}
	e.logger.Info("page reloaded, reattaching")
	in.queue.push(reloadRequested)
}

func (e *Engine) State() State {
	e.mu.Lock()
	in := e.current
	e.mu.Unlock()
	if in == nil {
		return Uninitialized
	}
	return in.currentState()
}

func (e *Engine) Snapshot() Status {
	e.mu.Lock()
	in := e.current
	e.mu.Unlock()
	if in == nil {
		return Status{State: Uninitialized.String()}
	}
	return in.status()
}

// ScanOnce runs one list pass and one header pass on a throwaway instance and
// waits for every lookup and render to finish. No subscriptions are made.
// The returned Status describes the throwaway instance.
func (e *Engine) ScanOnce(ctx context.Context) (Status, error) {
	in := e.newInstance(ctx)
	defer in.cancel()

	if err := in.prepare(); err != nil {
		return in.status(), err
	}
	in.scanList()
	in.scanHeader()
	in.inflight.Wait()
	return in.status(), nil
}

func (e *Engine) launch(ctx context.Context) *instance {
	in := e.newInstance(ctx)
	go in.run()
	return in
}
