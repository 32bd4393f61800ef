// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes research jobs over HTTP. Clients submit a company,
// follow the job's status events over a websocket and fetch the finished
// report.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pdiddy/equity-research/internal/jobstore"
	"github.com/pdiddy/equity-research/internal/orchestrator"
	"github.com/pdiddy/equity-research/pkg/types"
)

const (
	writeWait       = 10 * time.Second
	shutdownTimeout = 10 * time.Second
	maxRequestBytes = 1 << 20
)

// Runner submits and runs research jobs. *research.Service satisfies it.
type Runner interface {
	Submit(ctx context.Context, jobID string, c types.Company) error
	Run(ctx context.Context, jobID string, c types.Company) (*orchestrator.Result, error)
}

// JobLookup finds jobs this process did not run. *jobstore.Store
// satisfies it.
type JobLookup interface {
	Job(ctx context.Context, jobID string) (*jobstore.JobRecord, error)
}

// Options configures a Server.
type Options struct {
	Runner Runner
	Hub    *Hub

	// Jobs, when set, answers lookups for jobs run by earlier processes.
	Jobs JobLookup

	// NewID returns a fresh job id. Defaults to uuid.NewString.
	NewID func() string

	Logger *zap.Logger
}

// Server serves the research API.
type Server struct {
	runner Runner
	hub    *Hub
	jobs   JobLookup
	newID  func() string
	logger *zap.Logger

	upgrader websocket.Upgrader

	// ctx is the parent of every job; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu guards running and closed. A job is added to wg only while
	// holding mu with closed unset, so Close never races wg.Add.
	mu      sync.RWMutex
	running map[string]*jobEntry
	closed  bool
}

type jobEntry struct {
	company types.Company
	status  types.JobStatus
	result  *orchestrator.Result
	err     error
}

// JobView is the JSON shape of GET /research/{job_id}.
type JobView struct {
	JobID      string            `json:"job_id"`
	Status     types.JobStatus   `json:"status"`
	Phase      types.JobPhase    `json:"phase,omitempty"`
	Company    types.Company     `json:"company"`
	Report     string            `json:"report,omitempty"`
	References []string          `json:"references,omitempty"`
	Failed     map[string]string `json:"failed,omitempty"`
	Error      string            `json:"error,omitempty"`
}

type statusEnvelope struct {
	Type string            `json:"type"`
	Data types.StatusEvent `json:"data"`
}

// New returns a Server. Runner and Hub are required.
func New(opts Options) (*Server, error) {
	if opts.Runner == nil {
		return nil, errors.New("server requires a runner")
	}
	if opts.Hub == nil {
		return nil, errors.New("server requires a hub")
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		runner: opts.Runner,
		hub:    opts.Hub,
		jobs:   opts.Jobs,
		newID:  opts.NewID,
		logger: opts.Logger.Named("server"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		ctx:     ctx,
		cancel:  cancel,
		running: make(map[string]*jobEntry),
	}, nil
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /research", s.handleSubmit)
	mux.HandleFunc("GET /research/ws/{job_id}", s.handleStream)
	mux.HandleFunc("GET /research/{job_id}", s.handleJob)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

// ListenAndServe serves on addr until ctx is done, then shuts down and
// cancels running jobs.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.ctx },
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()
	s.logger.Info("listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errc:
		s.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Cancel jobs first so websocket handlers waiting on them return.
	s.Close()
	err := srv.Shutdown(shutdownCtx)
	if serveErr := <-errc; !errors.Is(serveErr, http.ErrServerClosed) && err == nil {
		err = serveErr
	}
	return err
}

// Close stops accepting jobs, cancels running ones and waits for them to
// return. It is safe to call more than once.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var c types.Company
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if c.Name == "" {
		writeError(w, http.StatusBadRequest, "company is required")
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}
	jobID := s.newID()
	s.wg.Add(1)
	s.running[jobID] = &jobEntry{company: c, status: types.StatusQueued}
	s.mu.Unlock()

	if err := s.runner.Submit(r.Context(), jobID, c); err != nil {
		s.mu.Lock()
		delete(s.running, jobID)
		s.mu.Unlock()
		s.wg.Done()
		s.logger.Error("submit failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not queue job")
		return
	}

	go func() {
		defer s.wg.Done()
		s.setStatus(jobID, types.StatusProcessing, nil, nil)
		res, err := s.runner.Run(s.ctx, jobID, c)
		if err != nil {
			s.logger.Warn("job failed", zap.String("job_id", jobID), zap.Error(err))
			s.setStatus(jobID, types.StatusError, nil, err)
			return
		}
		s.setStatus(jobID, types.StatusCompleted, res, nil)
	}()

	s.logger.Info("job queued", zap.String("job_id", jobID), zap.String("company", c.Name))
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": string(types.StatusQueued),
	})
}

func (s *Server) setStatus(jobID string, status types.JobStatus, res *orchestrator.Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.running[jobID]
	e.status = status
	e.result = res
	e.err = err
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")

	s.mu.RLock()
	e, ok := s.running[jobID]
	var view JobView
	if ok {
		view = JobView{JobID: jobID, Status: e.status, Company: e.company}
		if e.result != nil {
			view.Report = e.result.Report
			view.References = e.result.References
			view.Failed = failures(e.result.Failed)
			if e.result.State != nil {
				view.Phase = e.result.State.Phase()
			}
		}
		if e.err != nil {
			view.Error = e.err.Error()
			view.Phase = types.PhaseFailed
		}
	}
	s.mu.RUnlock()
	if ok {
		writeJSON(w, http.StatusOK, view)
		return
	}

	if s.jobs != nil {
		rec, err := s.jobs.Job(r.Context(), jobID)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, rec)
			return
		case !errors.Is(err, jobstore.ErrNotFound):
			s.logger.Error("job lookup failed", zap.String("job_id", jobID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "job lookup failed")
			return
		}
	}
	writeError(w, http.StatusNotFound, "job not found")
}

func failures(m map[types.AnalystKind]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}

// handleStream replays the job's recorded events and then streams new
// ones until the job reaches a terminal status or the client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	history, events, cancel := s.hub.Subscribe(jobID)
	defer cancel()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for _, ev := range history {
		if !s.write(conn, ev) || terminal(ev) {
			s.closeNormal(conn)
			return
		}
	}
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !s.write(conn, ev) || terminal(ev) {
				s.closeNormal(conn)
				return
			}
		case <-gone:
			return
		case <-s.ctx.Done():
			s.closeNormal(conn)
			return
		}
	}
}

func (s *Server) write(conn *websocket.Conn, ev types.StatusEvent) bool {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(statusEnvelope{Type: "status_update", Data: ev}); err != nil {
		s.logger.Debug("websocket write failed", zap.String("job_id", ev.JobID), zap.Error(err))
		return false
	}
	return true
}

func (s *Server) closeNormal(conn *websocket.Conn) {
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

func terminal(ev types.StatusEvent) bool {
	return ev.Status == types.StatusCompleted || ev.Status == types.StatusError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
