// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/pdiddy/equity-research/pkg/types"
)

const (
	defaultHistorySize = 100
	subscriberBuffer   = 64
)

// Hub fans status events out to websocket subscribers. It keeps the most
// recent events of each job so a subscriber that connects late still sees
// how the job got where it is.
type Hub struct {
	historySize int
	logger      *zap.Logger

	mu      sync.Mutex
	history map[string][]types.StatusEvent
	subs    map[string]map[*subscriber]struct{}
}

type subscriber struct {
	ch     chan types.StatusEvent
	closed bool
}

// NewHub returns a hub that replays up to historySize events per job.
func NewHub(historySize int, logger *zap.Logger) *Hub {
	if historySize <= 0 {
		historySize = defaultHistorySize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		historySize: historySize,
		logger:      logger.Named("hub"),
		history:     make(map[string][]types.StatusEvent),
		subs:        make(map[string]map[*subscriber]struct{}),
	}
}

// Send records ev and forwards it to every subscriber of its job. A
// subscriber whose buffer is full is disconnected.
func (h *Hub) Send(_ context.Context, ev types.StatusEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	hist := append(h.history[ev.JobID], ev)
	if len(hist) > h.historySize {
		hist = append([]types.StatusEvent(nil), hist[len(hist)-h.historySize:]...)
	}
	h.history[ev.JobID] = hist

	for sub := range h.subs[ev.JobID] {
		select {
		case sub.ch <- ev:
		default:
			h.logger.Warn("subscriber too slow, disconnecting", zap.String("job_id", ev.JobID))
			h.drop(ev.JobID, sub)
		}
	}
	return nil
}

// Subscribe returns the job's recorded events and a channel of the events
// that follow them. cancel must be called once the subscriber is done.
func (h *Hub) Subscribe(jobID string) (history []types.StatusEvent, events <-chan types.StatusEvent, cancel func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &subscriber{ch: make(chan types.StatusEvent, subscriberBuffer)}
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[*subscriber]struct{})
	}
	h.subs[jobID][sub] = struct{}{}

	history = append([]types.StatusEvent(nil), h.history[jobID]...)
	cancel = func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.drop(jobID, sub)
	}
	return history, sub.ch, cancel
}

// History returns the recorded events of a job.
func (h *Hub) History(jobID string) []types.StatusEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]types.StatusEvent(nil), h.history[jobID]...)
}

// Subscribers returns the number of live subscribers of a job.
func (h *Hub) Subscribers(jobID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[jobID])
}

// drop must be called with h.mu held.
func (h *Hub) drop(jobID string, sub *subscriber) {
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.ch)
	delete(h.subs[jobID], sub)
	if len(h.subs[jobID]) == 0 {
		delete(h.subs, jobID)
	}
}
