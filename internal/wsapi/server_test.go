package wsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testerman-project/testerman-core/internal/events"
	"github.com/testerman-project/testerman-core/internal/job"
	"github.com/testerman-project/testerman-core/internal/scheduler"
)

type stubTEFactory struct{}

func (stubTEFactory) Generate(source, sourcePath, outDir string) (string, map[string]string, error) {
	out := outDir + "/main.py"
	if err := os.WriteFile(out, []byte(source), 0o644); err != nil {
		return "", nil, err
	}
	return out, map[string]string{}, nil
}
func (stubTEFactory) BuildCommand(artefactPath, inputSessionFile string) (string, []string, map[string]string) {
	return "true", nil, nil
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	reg := scheduler.NewRegistry()
	sched := scheduler.New(reg, nil)
	require.NoError(t, sched.Start(context.Background()))
	t.Cleanup(sched.Stop)

	docRoot := t.TempDir()
	builder := &scheduler.Builder{
		Scheduler: sched, DocRoot: docRoot, MergeMode: job.MergeLoose, TEFactory: stubTEFactory{},
	}
	bus := events.NewBus()
	s := NewServer(sched, builder, bus)
	srv := httptest.NewServer(s.echo)
	t.Cleanup(srv.Close)
	return s, srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	var out map[string]any
	_ = json.Unmarshal(data, &out)
	return resp, out
}

func TestSubmitAndGetJobInfo(t *testing.T) {
	_, srv := newTestServer(t)

	resp, out := doJSON(t, http.MethodPost, srv.URL+"/api/v1/jobs", SubmitRequest{
		Type: job.TypeATS, Name: "t1", Source: "testcase TC1 {}", Path: "t1.ats", Username: "alice",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := int64(out["job_id"].(float64))
	require.NotZero(t, id)

	require.Eventually(t, func() bool {
		resp, info := doJSON(t, http.MethodGet, srv.URL+"/api/v1/jobs/1", nil)
		return resp.StatusCode == http.StatusOK && info["id"] != nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestGetJobInfoNotFound(t *testing.T) {
	_, srv := newTestServer(t)
	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/v1/jobs/999", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelWaitingJobTransitionsSynchronously(t *testing.T) {
	_, srv := newTestServer(t)
	_, out := doJSON(t, http.MethodPost, srv.URL+"/api/v1/jobs", SubmitRequest{
		Type: job.TypeATS, Name: "t2", Source: "testcase TC1 {}", Path: "t2.ats", Username: "alice",
		ScheduledAt: future(t),
	})
	id := int64(out["job_id"].(float64))

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/jobs/1/signal", SignalRequest{Signal: job.SignalCancel})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, info := doJSON(t, http.MethodGet, srv.URL+"/api/v1/jobs/1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(job.StateCancelled), info["state"])
	assert.EqualValues(t, job.ResultCancelled, info["result"])
	_ = id
}

func future(t *testing.T) *time.Time {
	t.Helper()
	when := time.Now().Add(time.Hour)
	return &when
}
