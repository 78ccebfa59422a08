// Package notify fans party events out to websocket subscribers.
package notify

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fitnessquest/server/internal/checkin"
	"github.com/fitnessquest/server/internal/logger"
)

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Subscriber is one connection listening to one party.
type Subscriber struct {
	partyID string
	conn    Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
}

// Hub tracks subscribers per party. PartyChanged never blocks: events for a
// subscriber whose queue is full are dropped.
type Hub struct {
	mu           sync.RWMutex
	parties      map[string]map[*Subscriber]struct{}
	buffer       int
	writeTimeout time.Duration
	dropped      atomic.Int64
}

// NewHub creates a hub queuing up to buffer events per subscriber.
func NewHub(buffer int, writeTimeout time.Duration) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		parties:      make(map[string]map[*Subscriber]struct{}),
		buffer:       buffer,
		writeTimeout: writeTimeout,
	}
}

// Subscribe registers conn for a party's events and starts its writer.
// The returned subscriber must be removed with Unsubscribe.
func (h *Hub) Subscribe(partyID string, conn Conn) *Subscriber {
	sub := &Subscriber{
		partyID: partyID,
		conn:    conn,
		send:    make(chan []byte, h.buffer),
		done:    make(chan struct{}),
	}

	h.mu.Lock()
	subs := h.parties[partyID]
	if subs == nil {
		subs = make(map[*Subscriber]struct{})
		h.parties[partyID] = subs
	}
	subs[sub] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(sub)
	logger.Debug("Subscriber added", "party", partyID)
	return sub
}

// Unsubscribe stops delivering events to sub. It does not close the connection.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	if subs := h.parties[sub.partyID]; subs != nil {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.parties, sub.partyID)
		}
	}
	h.mu.Unlock()
	sub.once.Do(func() { close(sub.done) })
}

// PartyChanged implements checkin.Notifier.
func (h *Hub) PartyChanged(_ context.Context, ev checkin.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Error("Failed to encode event", "kind", ev.Kind, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.parties[ev.PartyID] {
		select {
		case sub.send <- data:
		default:
			h.dropped.Add(1)
			logger.Warning("Subscriber queue full, event dropped", "party", ev.PartyID, "kind", ev.Kind)
		}
	}
}

// Subscribers returns the number of subscribers for a party.
func (h *Hub) Subscribers(partyID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.parties[partyID])
}

// Dropped returns how many events were discarded for full queues.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close unsubscribes everyone.
func (h *Hub) Close() {
	h.mu.Lock()
	var all []*Subscriber
	for _, subs := range h.parties {
		for sub := range subs {
			all = append(all, sub)
		}
	}
	h.parties = make(map[string]map[*Subscriber]struct{})
	h.mu.Unlock()

	for _, sub := range all {
		sub.once.Do(func() { close(sub.done) })
	}
}

func (h *Hub) writeLoop(sub *Subscriber) {
	for {
		select {
		case <-sub.done:
			return
		case data := <-sub.send:
			if h.writeTimeout > 0 {
				sub.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debug("Subscriber write failed", "party", sub.partyID, "error", err)
				h.Unsubscribe(sub)
				sub.conn.Close()
				return
			}
		}
	}
}
