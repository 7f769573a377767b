package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"whatsapp-crm-lookup/internal/config"
	"whatsapp-crm-lookup/internal/engine"
	"whatsapp-crm-lookup/internal/logging"
	"whatsapp-crm-lookup/internal/overlay"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	EventOverlay         = "overlay"
	EventRegion          = "region"
	EventPageReloaded    = string(engine.SignalPageReloaded)
	EventSettingsUpdated = string(engine.SignalSettingsUpdated)
)

// RegionUpdater applies page changes reported by the browser shim.
type RegionUpdater interface {
	UpdateRegion(selector, fragment string) error
}

// SignalHandler receives control signals from the browser side.
type SignalHandler interface {
	HandleSignal(sig engine.Signal)
}

// RegionUpdate replaces the inner html of the element matching Selector.
type RegionUpdate struct {
	Selector string `json:"selector"`
	HTML     string `json:"html"`
}

// Hub fans overlay events out to every shim and feeds their page updates and
// signals back into the pipeline.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.Mutex

	regions  RegionUpdater
	signals  SignalHandler
	origins  []string
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHub only accepts connections that carry no Origin header until
// AllowOrigins is called.
func NewHub(regions RegionUpdater, signals SignalHandler, logger *zap.Logger) *Hub {
	h := &Hub{
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		regions:    regions,
		signals:    signals,
		logger:     logging.OrNop(logger),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// AllowOrigins lets browser pages from origins open the bridge. Call it
// before serving.
func (h *Hub) AllowOrigins(origins ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.origins = append(h.origins, origins...)
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if config.OriginAllowed(h.origins, r.Header.Get("Origin")) {
		return true
	}
	h.logger.Warn("bridge connection from disallowed origin", zap.String("origin", r.Header.Get("Origin")))
	return false
}

// SetSignalHandler wires the engine after construction; the engine publishes
// through the hub, so one of them has to be set late.
func (h *Hub) SetSignalHandler(signals SignalHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.signals = signals
}

// Run owns the client set. It never returns.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("bridge client registered", zap.String("client", client.id))
		case client := <-h.unregister:
			h.mu.Lock()
			h.drop(client, "disconnected")
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					h.drop(client, "send buffer full")
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop must be called with mu held. Closing send makes writePump hang up.
func (h *Hub) drop(client *Client, reason string) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	h.logger.Info("bridge client unregistered", zap.String("client", client.id), zap.String("reason", reason))
}

// Clients reports how many shims are connected.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

type WSEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// BroadcastEvent never blocks; events are dropped when the buffer is full.
func (h *Hub) BroadcastEvent(eventType string, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("marshal ws event data", zap.String("type", eventType), zap.Error(err))
		return
	}
	payload, err := json.Marshal(WSEvent{Type: eventType, Data: raw})
	if err != nil {
		h.logger.Error("marshal ws event", zap.String("type", eventType), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		h.logger.Warn("ws broadcast buffer full, dropping event", zap.String("type", eventType))
	}
}

func (h *Hub) PublishOverlay(ev overlay.Event) {
	h.BroadcastEvent(EventOverlay, ev)
}

func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := &Client{id: uuid.NewString(), hub: h, conn: conn, send: make(chan []byte, 256)}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// handle applies one inbound message from a shim.
func (h *Hub) handle(clientID string, message []byte) {
	var event WSEvent
	if err := json.Unmarshal(message, &event); err != nil {
		h.logger.Warn("malformed bridge message", zap.String("client", clientID), zap.Error(err))
		return
	}

	switch event.Type {
	case EventRegion:
		var update RegionUpdate
		if err := json.Unmarshal(event.Data, &update); err != nil || update.Selector == "" {
			h.logger.Warn("malformed region update", zap.String("client", clientID), zap.Error(err))
			return
		}
		if err := h.regions.UpdateRegion(update.Selector, update.HTML); err != nil {
			h.logger.Debug("region update skipped", zap.String("selector", update.Selector), zap.Error(err))
		}
	case EventPageReloaded, EventSettingsUpdated:
		h.mu.Lock()
		signals := h.signals
		h.mu.Unlock()
		if signals != nil {
			signals.HandleSignal(engine.Signal(event.Type))
		}
	default:
		h.logger.Debug("ignoring bridge message", zap.String("type", event.Type))
	}
}
