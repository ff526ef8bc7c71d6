// Package feed pushes record changes to connected clients over WebSocket.
// Subscribers are scoped to one owner and only see that owner's changes.
package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/dmitrijs2005/herpsync/internal/common"
	"github.com/dmitrijs2005/herpsync/internal/logging"
	"github.com/dmitrijs2005/herpsync/internal/wire"
)

const (
	defaultBuffer = 64
	writeTimeout  = 5 * time.Second
)

type subscriber struct {
	owner  string
	events chan wire.FeedEvent
}

// Hub keeps the live subscriptions and fans published events out to them.
// Publish never blocks: a subscriber whose buffer is full misses the event
// and catches up on its next pull.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	buffer int
	logger logging.Logger
}

func NewHub(buffer int, logger logging.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		subs:   map[string]map[*subscriber]struct{}{},
		buffer: buffer,
		logger: logger.With("module", "feed_hub"),
	}
}

func (h *Hub) Publish(ownerID string, ev wire.FeedEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[ownerID] {
		select {
		case sub.events <- ev:
		default:
			h.logger.Warn(context.Background(), "feed subscriber is slow, dropping event",
				"owner", ownerID, "kind", ev.Kind, "id", ev.Record.ID)
		}
	}
}

func (h *Hub) subscribe(ownerID string) *subscriber {
	sub := &subscriber{owner: ownerID, events: make(chan wire.FeedEvent, h.buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[ownerID] == nil {
		h.subs[ownerID] = map[*subscriber]struct{}{}
	}
	h.subs[ownerID][sub] = struct{}{}
	return sub
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[sub.owner], sub)
	if len(h.subs[sub.owner]) == 0 {
		delete(h.subs, sub.owner)
	}
}

// Subscribers reports how many connections listen for ownerID.
func (h *Hub) Subscribers(ownerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[ownerID])
}

// ServeHTTP upgrades the request to a WebSocket and streams the owner's
// events as JSON text messages until either side goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get(common.FeedOwnerParam)
	if owner == "" {
		http.Error(w, "owner is required", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		h.logger.Warn(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer conn.CloseNow()

	sub := h.subscribe(owner)
	defer h.unsubscribe(sub)
	h.logger.Info(r.Context(), "feed client connected", "owner", owner)

	// Clients never send; CloseRead handles control frames and cancels
	// ctx once the peer disconnects.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			h.logger.Info(context.Background(), "feed client disconnected", "owner", owner)
			return
		case ev := <-sub.events:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, ev)
			cancel()
			if err != nil {
				h.logger.Warn(ctx, "feed write failed", "owner", owner, "error", err)
				return
			}
		}
	}
}

// Health reports the number of live subscriptions.
func (h *Hub) Health(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	h.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "subscribers": n})
}
