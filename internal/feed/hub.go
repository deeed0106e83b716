// Package feed carries live traffic over websockets: the JSON event feed out
// to clients and PCM audio in from capture clients.
package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	ws "nhooyr.io/websocket"
)

// Message is one frame of the event feed.
type Message struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// subscriberBuffer messages are queued per client before new ones are dropped.
const subscriberBuffer = 32

const writeTimeout = 5 * time.Second

type subscriber struct {
	out chan []byte
}

// Hub broadcasts feed messages to every connected client.
type Hub struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
	log  *logrus.Entry
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[*subscriber]struct{}),
		log:  logrus.WithField("component", "feed"),
	}
}

// Publish never blocks; a client that falls behind loses messages.
func (h *Hub) Publish(sessionID, typ string, payload any) {
	b, err := json.Marshal(Message{Type: typ, SessionID: sessionID, Data: payload})
	if err != nil {
		h.log.WithError(err).WithField("type", typ).Error("marshal feed message")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.out <- b:
			metricPublished.Inc()
		default:
			metricDropped.Inc()
		}
	}
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) add() *subscriber {
	s := &subscriber{out: make(chan []byte, subscriberBuffer)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	metricSubscribers.Set(float64(n))
	return s
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	n := len(h.subs)
	h.mu.Unlock()
	metricSubscribers.Set(float64(n))
}

// HandleEvents upgrades the request and streams feed messages until the
// client goes away.
func (h *Hub) HandleEvents(w http.ResponseWriter, r *http.Request) {
	c, err := ws.Accept(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws accept")
		return
	}
	defer c.Close(ws.StatusInternalError, "closing")

	s := h.add()
	defer h.remove(s)

	// clients only listen; CloseRead handles their close frame
	ctx := c.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			c.Close(ws.StatusNormalClosure, "")
			return
		case b := <-s.out:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Write(wctx, ws.MessageText, b)
			cancel()
			if err != nil {
				h.log.WithError(err).Debug("feed client write failed")
				return
			}
		}
	}
}
