// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package statusbus

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/pdiddy/equity-research/pkg/types"
)

// Sink receives status events from the bus. Send is called from one
// goroutine per job, so a sink sees each job's events in publish order but
// may be called concurrently for different jobs.
type Sink interface {
	Send(ctx context.Context, ev types.StatusEvent) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, ev types.StatusEvent) error

// Send calls f.
func (f SinkFunc) Send(ctx context.Context, ev types.StatusEvent) error { return f(ctx, ev) }

// LogSink writes every event to a zap logger at debug level, or at warn
// level for error events.
type LogSink struct {
	Logger *zap.Logger
}

// Send logs ev.
func (s LogSink) Send(_ context.Context, ev types.StatusEvent) error {
	fields := []zap.Field{
		zap.String("job_id", ev.JobID),
		zap.String("status", string(ev.Status)),
		zap.String("step", ev.Result.Step),
	}
	if ev.Result.AnalystType != "" {
		fields = append(fields, zap.String("analyst", ev.Result.AnalystType))
	}
	if ev.Result.DocumentsFound != nil {
		fields = append(fields, zap.Int("documents", *ev.Result.DocumentsFound))
	}
	if ev.Status == types.StatusError {
		s.Logger.Warn(ev.Message, fields...)
		return nil
	}
	s.Logger.Debug(ev.Message, fields...)
	return nil
}

// Recorder is a Sink that keeps every event in memory. It backs tests and
// the in-process job view of the server.
type Recorder struct {
	mu     sync.Mutex
	events []types.StatusEvent
}

// Send appends ev.
func (r *Recorder) Send(_ context.Context, ev types.StatusEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of every recorded event.
func (r *Recorder) Events() []types.StatusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.StatusEvent(nil), r.events...)
}

// ForJob returns the recorded events for one job in delivery order.
func (r *Recorder) ForJob(jobID string) []types.StatusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.StatusEvent
	for _, ev := range r.events {
		if ev.JobID == jobID {
			out = append(out, ev)
		}
	}
	return out
}
