package batch_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/b-snaas/vllm-gateway/internal/batch"
	"github.com/b-snaas/vllm-gateway/internal/blobstore"
	"github.com/b-snaas/vllm-gateway/internal/config"
	"github.com/b-snaas/vllm-gateway/internal/engineclient"
	"github.com/b-snaas/vllm-gateway/internal/logger"
	"github.com/b-snaas/vllm-gateway/internal/metrics"
	"github.com/b-snaas/vllm-gateway/internal/scheduler"
)

func newTestManager(t *testing.T, handler http.HandlerFunc) (*batch.Manager, *blobstore.Store) {
	t.Helper()

	dir := t.TempDir()
	store, err := blobstore.NewStore(dir)
	require.NoError(t, err)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := engineclient.New(engineclient.Config{
		BaseURL: srv.URL, Timeout: 5 * time.Second,
		MaxIdleConns: 10, MaxIdleConnsPerHost: 10, IdleConnTimeout: 30 * time.Second,
	})

	log := logger.New(logger.Config{Format: "text"})
	tuning := config.SchedulerTuning{
		Interactive: config.QueueTuning{Workers: 1, MaxBatch: 1, WaitTime: 10 * time.Millisecond},
		Batch:       config.QueueTuning{Workers: 2, MaxBatch: 128, WaitTime: 20 * time.Millisecond},
	}
	sched := scheduler.New(client, log, func() config.SchedulerTuning { return tuning }, metrics.New())
	require.NoError(t, sched.Start())
	t.Cleanup(sched.Stop)

	cfg := &config.Config{BatchModel: "qwen3-4b", BatchMaxTokens: 256, BatchPriority: 10}
	mgr := batch.NewManager(store, sched, log, cfg, metrics.New())

	return mgr, store
}

func waitForTerminal(t *testing.T, mgr *batch.Manager, id string) batch.Batch {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		b, ok := mgr.Get(id)
		require.True(t, ok)
		if b.Status == batch.StatusCompleted || b.Status == batch.StatusCancelled || b.Status == batch.StatusFailed {
			return b
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("batch never reached a terminal state")
	return batch.Batch{}
}

func TestBatchLifecycle_HappyPath(t *testing.T) {
	mgr, store := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(200)
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}],"usage":{"prompt_tokens":2,"completion_tokens":1}}`)) //nolint:errcheck
	})

	var input bytes.Buffer
	for i := 0; i < 3; i++ {
		input.WriteString(`{"messages":[{"role":"system","content":"profile: <user_profile>"},{"role":"user","content":"alice"}]}` + "\n")
	}
	obj, err := store.Put(input.Bytes(), "input.jsonl", "batch")
	require.NoError(t, err)

	b := mgr.Create(batch.Create{InputFileID: obj.ID, Endpoint: "/v1/chat/completions", CompletionWindow: "24h"})
	require.Equal(t, batch.StatusPending, b.Status)

	final := waitForTerminal(t, mgr, b.ID)
	require.Equal(t, batch.StatusCompleted, final.Status)
	require.Equal(t, batch.RequestCounts{Total: 3, Completed: 3, Failed: 0}, final.RequestCounts)
	require.NotNil(t, final.OutputFileID)
	require.Nil(t, final.ErrorFileID)

	out, err := store.Read(*final.OutputFileID)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
}

func TestBatchLifecycle_PerLineFailure(t *testing.T) {
	mgr, store := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(200)
		w.Write([]byte(`{"usage":{}}`)) //nolint:errcheck
	})

	input := "not valid json\n" + `{"messages":[{"role":"system","content":"p"},{"role":"user","content":"u"}]}` + "\n"
	obj, err := store.Put([]byte(input), "input.jsonl", "batch")
	require.NoError(t, err)

	b := mgr.Create(batch.Create{InputFileID: obj.ID, Endpoint: "/v1/chat/completions", CompletionWindow: "24h"})
	final := waitForTerminal(t, mgr, b.ID)

	require.Equal(t, batch.RequestCounts{Total: 1, Completed: 1, Failed: 1}, final.RequestCounts)
	require.NotNil(t, final.ErrorFileID)

	errBytes, err := store.Read(*final.ErrorFileID)
	require.NoError(t, err)

	scanner := bufio.NewScanner(bytes.NewReader(errBytes))
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	require.Contains(t, entry["error"], "Error processing line 1")
}

func TestBatchLifecycle_UsesConfiguredEndpoint(t *testing.T) {
	var gotPaths []string
	mgr, store := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		gotPaths = append(gotPaths, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(200)
		w.Write([]byte(`{"usage":{}}`)) //nolint:errcheck
	})

	input := `{"messages":[{"role":"system","content":"p"},{"role":"user","content":"u"}]}` + "\n"
	obj, err := store.Put([]byte(input), "input.jsonl", "batch")
	require.NoError(t, err)

	b := mgr.Create(batch.Create{InputFileID: obj.ID, Endpoint: "/v1/completions", CompletionWindow: "24h"})
	final := waitForTerminal(t, mgr, b.ID)

	require.Equal(t, batch.RequestCounts{Total: 1, Completed: 1, Failed: 0}, final.RequestCounts)
	require.NotEmpty(t, gotPaths)
	for _, p := range gotPaths {
		require.Equal(t, "/v1/completions", p)
	}
}

func TestBatchCancel_TerminalStateReturnsError(t *testing.T) {
	mgr, store := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte(`{}`)) //nolint:errcheck
	})

	obj, err := store.Put([]byte(`{"messages":[{"role":"system","content":"p"},{"role":"user","content":"u"}]}`+"\n"), "in.jsonl", "batch")
	require.NoError(t, err)

	b := mgr.Create(batch.Create{InputFileID: obj.ID, Endpoint: "/v1/chat/completions", CompletionWindow: "24h"})
	waitForTerminal(t, mgr, b.ID)

	_, err = mgr.Cancel(b.ID)
	require.ErrorIs(t, err, batch.ErrTerminalJob)
}

func TestBatchCancel_AlreadyCancellingReturnsError(t *testing.T) {
	block := make(chan struct{})
	mgr, store := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		<-block
		w.WriteHeader(200)
		w.Write([]byte(`{}`)) //nolint:errcheck
	})
	t.Cleanup(func() { close(block) })

	obj, err := store.Put([]byte(`{"messages":[{"role":"system","content":"p"},{"role":"user","content":"u"}]}`+"\n"), "in.jsonl", "batch")
	require.NoError(t, err)

	b := mgr.Create(batch.Create{InputFileID: obj.ID, Endpoint: "/v1/chat/completions", CompletionWindow: "24h"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, ok := mgr.Get(b.ID)
		require.True(t, ok)
		if got.Status == batch.StatusInProgress {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	_, err = mgr.Cancel(b.ID)
	require.NoError(t, err)

	_, err = mgr.Cancel(b.ID)
	require.ErrorIs(t, err, batch.ErrAlreadyCancelling)
}

func TestBatchCancel_UnknownID(t *testing.T) {
	mgr, _ := newTestManager(t, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	_, err := mgr.Cancel("batch_does-not-exist")
	require.ErrorIs(t, err, batch.ErrUnknownBatch)
}
