// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pdiddy/equity-research/internal/jobstore"
	"github.com/pdiddy/equity-research/internal/orchestrator"
	"github.com/pdiddy/equity-research/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeRunner plays a job by sending events straight to the hub.
type fakeRunner struct {
	hub     *Hub
	release chan struct{}
	fail    bool
	runs    atomic.Int32
}

func (f *fakeRunner) Submit(_ context.Context, jobID string, c types.Company) error {
	return f.hub.Send(context.Background(), types.StatusEvent{
		JobID: jobID, Status: types.StatusQueued, Message: "Research queued for " + c.Name,
		Result: types.StatusResult{Step: "Queued"},
	})
}

func (f *fakeRunner) Run(ctx context.Context, jobID string, _ types.Company) (*orchestrator.Result, error) {
	f.runs.Add(1)
	select {
	case <-f.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	f.hub.Send(ctx, types.StatusEvent{JobID: jobID, Status: types.StatusProcessing, Message: "Researching",
		Result: types.StatusResult{Step: "Research"}})
	if f.fail {
		f.hub.Send(ctx, types.StatusEvent{JobID: jobID, Status: types.StatusError, Message: "all analysts failed",
			Result: types.StatusResult{Step: "Error"}})
		return nil, &orchestrator.JobError{JobID: jobID, Phase: types.PhaseResearching}
	}
	f.hub.Send(ctx, types.StatusEvent{JobID: jobID, Status: types.StatusCompleted, Message: "Research complete",
		Result: types.StatusResult{Step: "Complete"}})
	return &orchestrator.Result{JobID: jobID, Report: "# Acme Corp Research Report", References: []string{"https://a.example"}}, nil
}

type fixture struct {
	srv    *Server
	hub    *Hub
	runner *fakeRunner
	ts     *httptest.Server
}

func newFixture(t *testing.T, jobs JobLookup) *fixture {
	t.Helper()
	hub := NewHub(0, nil)
	runner := &fakeRunner{hub: hub, release: make(chan struct{})}
	n := 0
	srv, err := New(Options{
		Runner: runner,
		Hub:    hub,
		Jobs:   jobs,
		NewID: func() string {
			n++
			return fmt.Sprintf("job-%d", n)
		},
	})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return &fixture{srv: srv, hub: hub, runner: runner, ts: ts}
}

func (f *fixture) submit(t *testing.T, body string) (*http.Response, map[string]string) {
	t.Helper()
	resp, err := http.Post(f.ts.URL+"/research", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func (f *fixture) dial(t *testing.T, jobID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/research/ws/" + jobID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (f *fixture) job(t *testing.T, jobID string) (int, JobView) {
	t.Helper()
	resp, err := http.Get(f.ts.URL + "/research/" + jobID)
	require.NoError(t, err)
	defer resp.Body.Close()
	var v JobView
	json.NewDecoder(resp.Body).Decode(&v)
	return resp.StatusCode, v
}

// readAll reads envelopes until the server closes the stream.
func readAll(t *testing.T, conn *websocket.Conn) []statusEnvelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var out []statusEnvelope
	for {
		var env statusEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected read error: %v", err)
			return out
		}
		out = append(out, env)
	}
}

func statuses(envs []statusEnvelope) []types.JobStatus {
	out := make([]types.JobStatus, len(envs))
	for i, e := range envs {
		out[i] = e.Data.Status
	}
	return out
}

func TestSubmitAndStream(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.submit(t, `{"company":"Acme Corp","industry":"Manufacturing"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, map[string]string{"job_id": "job-1", "status": "queued"}, body)

	conn := f.dial(t, "job-1")
	close(f.runner.release)

	envs := readAll(t, conn)
	assert.Equal(t, []types.JobStatus{types.StatusQueued, types.StatusProcessing, types.StatusCompleted}, statuses(envs))
	for _, e := range envs {
		assert.Equal(t, "status_update", e.Type)
		assert.Equal(t, "job-1", e.Data.JobID)
	}

	require.Eventually(t, func() bool {
		_, v := f.job(t, "job-1")
		return v.Status == types.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	code, v := f.job(t, "job-1")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "# Acme Corp Research Report", v.Report)
	assert.Equal(t, "Acme Corp", v.Company.Name)
	assert.Equal(t, []string{"https://a.example"}, v.References)
	assert.Empty(t, v.Error)
}

func TestLateSubscriberReplaysHistory(t *testing.T) {
	f := newFixture(t, nil)
	close(f.runner.release)
	f.submit(t, `{"company":"Acme Corp"}`)

	require.Eventually(t, func() bool {
		_, v := f.job(t, "job-1")
		return v.Status == types.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	envs := readAll(t, f.dial(t, "job-1"))
	assert.Equal(t, []types.JobStatus{types.StatusQueued, types.StatusProcessing, types.StatusCompleted}, statuses(envs))
}

func TestFailedJob(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.fail = true
	close(f.runner.release)
	f.submit(t, `{"company":"Acme Corp"}`)

	envs := readAll(t, f.dial(t, "job-1"))
	require.NotEmpty(t, envs)
	assert.Equal(t, types.StatusError, envs[len(envs)-1].Data.Status)

	require.Eventually(t, func() bool {
		_, v := f.job(t, "job-1")
		return v.Status == types.StatusError
	}, 2*time.Second, 10*time.Millisecond)
	_, v := f.job(t, "job-1")
	assert.Equal(t, types.PhaseFailed, v.Phase)
	assert.Contains(t, v.Error, "failed during researching")
}

func TestSubmit_BadRequests(t *testing.T) {
	f := newFixture(t, nil)

	for _, body := range []string{`not json`, `{}`, `{"industry":"Manufacturing"}`} {
		resp, out := f.submit(t, body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		assert.NotEmpty(t, out["error"])
	}
	assert.Empty(t, f.hub.History("job-1"))
}

func TestSubmit_AfterClose(t *testing.T) {
	f := newFixture(t, nil)
	f.srv.Close()
	resp, _ := f.submit(t, `{"company":"Acme Corp"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCloseCancelsRunningJobs(t *testing.T) {
	f := newFixture(t, nil)
	f.submit(t, `{"company":"Acme Corp"}`)

	done := make(chan struct{})
	go func() {
		f.srv.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not cancel the running job")
	}
	_, v := f.job(t, "job-1")
	assert.Equal(t, types.StatusError, v.Status)
}

func TestSubmit_ConcurrentWithClose(t *testing.T) {
	f := newFixture(t, nil)

	const n = 20
	var wg sync.WaitGroup
	codes := make(chan int, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Post(f.ts.URL+"/research", "application/json", strings.NewReader(`{"company":"Acme Corp"}`))
			if err != nil {
				return
			}
			resp.Body.Close()
			codes <- resp.StatusCode
		}()
	}
	f.srv.Close()
	runsAtClose := f.runner.runs.Load()
	wg.Wait()
	close(codes)

	var accepted int32
	for code := range codes {
		assert.Contains(t, []int{http.StatusAccepted, http.StatusServiceUnavailable}, code)
		if code == http.StatusAccepted {
			accepted++
		}
	}
	assert.Equal(t, runsAtClose, f.runner.runs.Load(), "no job starts after Close returns")
	assert.Equal(t, accepted, f.runner.runs.Load())
}

type fakeLookup struct {
	rec *jobstore.JobRecord
	err error
}

func (f fakeLookup) Job(context.Context, string) (*jobstore.JobRecord, error) {
	return f.rec, f.err
}

func TestJob_Lookup(t *testing.T) {
	t.Run("unknown without store", func(t *testing.T) {
		f := newFixture(t, nil)
		code, _ := f.job(t, "nope")
		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("from store", func(t *testing.T) {
		rec := &jobstore.JobRecord{JobSummary: jobstore.JobSummary{ID: "old", Phase: types.PhaseCompleted}, Report: "# Old"}
		f := newFixture(t, fakeLookup{rec: rec})
		resp, err := http.Get(f.ts.URL + "/research/old")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var got jobstore.JobRecord
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, "# Old", got.Report)
	})

	t.Run("store miss", func(t *testing.T) {
		f := newFixture(t, fakeLookup{err: fmt.Errorf("%w: old", jobstore.ErrNotFound)})
		code, _ := f.job(t, "old")
		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("store error", func(t *testing.T) {
		f := newFixture(t, fakeLookup{err: errors.New("disk I/O error")})
		code, _ := f.job(t, "old")
		assert.Equal(t, http.StatusInternalServerError, code)
	})
}

func TestStream_ClientDisconnect(t *testing.T) {
	f := newFixture(t, nil)
	f.submit(t, `{"company":"Acme Corp"}`)

	conn := f.dial(t, "job-1")
	var env statusEnvelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, types.StatusQueued, env.Data.Status)
	conn.Close()

	require.Eventually(t, func() bool { return f.hub.Subscribers("job-1") == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	hub := NewHub(0, nil)
	srv, err := New(Options{Runner: &fakeRunner{hub: hub, release: make(chan struct{})}, Hub: hub})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{Hub: NewHub(0, nil)})
	assert.Error(t, err)
	_, err = New(Options{Runner: &fakeRunner{}})
	assert.Error(t, err)
}
