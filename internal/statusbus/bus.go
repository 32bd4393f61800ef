// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package statusbus delivers job progress events to external observers.
//
// Each job id gets its own FIFO queue drained by one worker goroutine, so
// events for a job reach every sink in publish order while jobs never wait
// on each other. Publishing is best-effort: a full queue drops the event
// after a bounded wait, and sink failures are logged and discarded.
package statusbus

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/equity-research/pkg/types"
)

// Publisher is the side channel analysts and the orchestrator report through.
type Publisher interface {
	Publish(jobID string, status types.JobStatus, message string, result types.StatusResult)
}

type discard struct{}

func (discard) Publish(string, types.JobStatus, string, types.StatusResult) {}

// Discard is a Publisher that drops every event.
var Discard Publisher = discard{}

const (
	defaultQueueSize      = 64
	defaultEnqueueTimeout = 2 * time.Second
	defaultSendTimeout    = 5 * time.Second
)

// Bus fans status events out to registered sinks with per-job ordering.
type Bus struct {
	logger *zap.Logger
	cfg    types.StatusConfig

	mu      sync.Mutex
	sinks   []Sink
	queues  map[string]*queue
	retired map[string]bool
	closed  bool
	wg      sync.WaitGroup
}

// queue is the FIFO for one job id.
type queue struct {
	jobID string
	ch    chan types.StatusEvent
	done  chan struct{}

	mu     sync.RWMutex // guards closed against concurrent sends on ch
	closed bool
}

// New creates a bus. A nil logger is replaced with a no-op logger; zero
// config values take defaults.
func New(cfg types.StatusConfig, logger *zap.Logger, sinks ...Sink) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = defaultEnqueueTimeout
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	return &Bus{
		logger:  logger.Named("statusbus"),
		cfg:     cfg,
		sinks:   append([]Sink(nil), sinks...),
		queues:  make(map[string]*queue),
		retired: make(map[string]bool),
	}
}

// AddSink registers another sink. It receives events published after the call.
func (b *Bus) AddSink(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

// Publish enqueues an event for jobID. It never returns an error and never
// blocks longer than the configured enqueue timeout.
func (b *Bus) Publish(jobID string, status types.JobStatus, message string, result types.StatusResult) {
	ev := types.StatusEvent{JobID: jobID, Status: status, Message: message, Result: result}

	q := b.queueFor(jobID)
	if q == nil {
		b.logger.Debug("dropping event for closed job",
			zap.String("job_id", jobID), zap.String("message", message))
		return
	}
	if !q.enqueue(ev, b.cfg.EnqueueTimeout) {
		b.logger.Warn("status queue full, event dropped",
			zap.String("job_id", jobID),
			zap.String("status", string(status)),
			zap.String("message", message))
	}
}

// queueFor returns the live queue for jobID, starting its worker on first
// use. It returns nil once the job or the bus has been closed.
func (b *Bus) queueFor(jobID string) *queue {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.retired[jobID] {
		return nil
	}
	if q, ok := b.queues[jobID]; ok {
		return q
	}
	q := &queue{
		jobID: jobID,
		ch:    make(chan types.StatusEvent, b.cfg.QueueSize),
		done:  make(chan struct{}),
	}
	b.queues[jobID] = q
	b.wg.Add(1)
	go b.drain(q)
	return q
}

func (q *queue) enqueue(ev types.StatusEvent, timeout time.Duration) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.ch <- ev:
		return true
	default:
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case q.ch <- ev:
		return true
	case <-timer.C:
		return false
	}
}

func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// drain delivers one job's events in order until its queue is closed.
func (b *Bus) drain(q *queue) {
	defer b.wg.Done()
	defer close(q.done)
	for ev := range q.ch {
		b.mu.Lock()
		sinks := append([]Sink(nil), b.sinks...)
		b.mu.Unlock()
		for _, s := range sinks {
			b.deliver(s, ev)
		}
	}
}

// deliver sends ev to one sink, recovering panics and logging failures.
func (b *Bus) deliver(s Sink, ev types.StatusEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.SendTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("status sink panicked",
				zap.String("job_id", ev.JobID),
				zap.String("panic", fmt.Sprint(r)),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	if err := s.Send(ctx, ev); err != nil {
		b.logger.Warn("status delivery failed",
			zap.String("job_id", ev.JobID),
			zap.String("status", string(ev.Status)),
			zap.Error(err))
	}
}

// CloseJob flushes and retires the queue for jobID. Events published for
// the job afterwards are dropped.
func (b *Bus) CloseJob(jobID string) {
	b.mu.Lock()
	q, ok := b.queues[jobID]
	delete(b.queues, jobID)
	b.retired[jobID] = true
	b.mu.Unlock()
	if !ok {
		return
	}
	q.close()
	<-q.done
}

// Close flushes every queue and stops accepting events.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	queues := make([]*queue, 0, len(b.queues))
	for id, q := range b.queues {
		queues = append(queues, q)
		delete(b.queues, id)
	}
	b.mu.Unlock()
	for _, q := range queues {
		q.close()
	}
	b.wg.Wait()
}
