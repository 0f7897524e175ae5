// Package websocket pushes live results of a question to connected browsers.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"polls-backend/mq"
	"polls-backend/service"
)

// Message types sent to clients.
const (
	MessageResults = "results"
)

// Message is the JSON frame written to clients.
type Message struct {
	Type string           `json:"type"`
	Data *service.Results `json:"data"`
}

// ResultsFunc loads the current tallies of a question.
type ResultsFunc func(ctx context.Context, questionID uint) (*service.Results, error)

// Client is one browser watching one question.
type Client struct {
	QuestionID uint
	send       chan []byte

	// mu guards total, the highest vote total queued to send.
	mu    sync.Mutex
	total int64
}

// NewClient makes a client with a buffered outbox.
func NewClient(questionID uint) *Client {
	return &Client{QuestionID: questionID, send: make(chan []byte, 32), total: -1}
}

type offerResult int

const (
	offerQueued offerResult = iota
	offerStale
	offerFull
)

// offer queues a frame tallying total votes. Tallies only grow, so a frame
// below what the client already has is stale and skipped.
func (c *Client) offer(total int64, payload []byte) offerResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if total < c.total {
		return offerStale
	}
	select {
	case c.send <- payload:
		c.total = total
		return offerQueued
	default:
		return offerFull
	}
}

// Hub tracks clients per question and broadcasts tallies to them.
type Hub struct {
	results ResultsFunc

	mu      sync.RWMutex
	clients map[uint]map[*Client]struct{}
}

// NewHub builds an empty hub that loads tallies through results.
func NewHub(results ResultsFunc) *Hub {
	return &Hub{
		results: results,
		clients: make(map[uint]map[*Client]struct{}),
	}
}

// Register adds c. It is visible to the next broadcast once Register returns.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.QuestionID]; !ok {
		h.clients[c.QuestionID] = make(map[*Client]struct{})
	}
	h.clients[c.QuestionID][c] = struct{}{}
	slog.Debug("live results client registered", "question_id", c.QuestionID, "clients", len(h.clients[c.QuestionID]))
}

// Unregister removes c and closes its outbox. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(c)
}

// remove must be called with mu held for writing.
func (h *Hub) remove(c *Client) {
	set, ok := h.clients[c.QuestionID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.clients, c.QuestionID)
	}
}

// ClientCount returns the number of clients watching questionID.
func (h *Hub) ClientCount(questionID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[questionID])
}

// Enqueue queues a frame tallying total votes for one client. It returns
// false if the client is gone, the outbox is full or the frame is older
// than one already queued.
func (h *Hub) Enqueue(c *Client, total int64, payload []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c.QuestionID][c]; !ok {
		return false
	}
	return c.offer(total, payload) == offerQueued
}

// Broadcast sends a frame tallying total votes to every client of
// questionID. Clients whose outbox is full are dropped rather than stalling
// the others.
func (h *Hub) Broadcast(questionID uint, total int64, payload []byte) {
	var slow []*Client

	h.mu.RLock()
	sent := 0
	for c := range h.clients[questionID] {
		switch c.offer(total, payload) {
		case offerQueued:
			sent++
		case offerFull:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	if len(slow) > 0 {
		h.mu.Lock()
		for _, c := range slow {
			h.remove(c)
		}
		h.mu.Unlock()
		slog.Warn("dropped slow live results clients", "question_id", questionID, "count", len(slow))
	}
	if sent > 0 {
		slog.Debug("broadcast results", "question_id", questionID, "clients", sent)
	}
}

// BroadcastResults loads and sends the current tallies of questionID.
func (h *Hub) BroadcastResults(ctx context.Context, questionID uint) {
	if h.ClientCount(questionID) == 0 {
		return
	}
	payload, total, err := h.snapshot(ctx, questionID)
	if err != nil {
		slog.Error("loading live results", "question_id", questionID, "error", err)
		return
	}
	h.Broadcast(questionID, total, payload)
}

// HandleVoteEvent is an mq.Handler that refreshes watchers of the voted question.
func (h *Hub) HandleVoteEvent(ctx context.Context, ev mq.VoteEvent) {
	h.BroadcastResults(ctx, ev.QuestionID)
}

func (h *Hub) snapshot(ctx context.Context, questionID uint) ([]byte, int64, error) {
	r, err := h.results(ctx, questionID)
	if err != nil {
		return nil, 0, err
	}
	payload, err := json.Marshal(Message{Type: MessageResults, Data: r})
	if err != nil {
		return nil, 0, err
	}
	return payload, r.TotalVotes, nil
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.clients {
		for c := range set {
			h.remove(c)
		}
	}
}
