package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/b-snaas/vllm-gateway/internal/auth"
	"github.com/b-snaas/vllm-gateway/internal/batch"
	"github.com/b-snaas/vllm-gateway/internal/blobstore"
	"github.com/b-snaas/vllm-gateway/internal/config"
	"github.com/b-snaas/vllm-gateway/internal/engineclient"
	"github.com/b-snaas/vllm-gateway/internal/httpapi"
	"github.com/b-snaas/vllm-gateway/internal/logger"
	"github.com/b-snaas/vllm-gateway/internal/metrics"
	"github.com/b-snaas/vllm-gateway/internal/scheduler"
	"github.com/b-snaas/vllm-gateway/internal/tokenizer"
)

func newTestRouter(t *testing.T, apiToken string, engineHandler http.HandlerFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engineSrv := httptest.NewServer(engineHandler)
	t.Cleanup(engineSrv.Close)

	client := engineclient.New(engineclient.Config{
		BaseURL: engineSrv.URL, Timeout: 5 * time.Second,
		MaxIdleConns: 10, MaxIdleConnsPerHost: 10, IdleConnTimeout: 30 * time.Second,
	})

	log := logger.New(logger.Config{Format: "text"})
	tuning := config.SchedulerTuning{
		Interactive: config.QueueTuning{Workers: 1, MaxBatch: 1, WaitTime: 10 * time.Millisecond},
		Batch:       config.QueueTuning{Workers: 1, MaxBatch: 8, WaitTime: 20 * time.Millisecond},
	}
	m := metrics.New()
	sched := scheduler.New(client, log, func() config.SchedulerTuning { return tuning }, m)
	require.NoError(t, sched.Start())
	t.Cleanup(sched.Stop)

	store, err := blobstore.NewStore(t.TempDir())
	require.NoError(t, err)

	cfg := &config.Config{
		MaxInputLength:                4096,
		InteractiveSlotTimeoutSeconds: 2,
		BatchModel:                    "qwen3-4b",
		BatchMaxTokens:                256,
		BatchPriority:                 10,
	}

	tok := tokenizer.NewAdapterWithCodec(byteCodec{})

	return httpapi.NewRouter(&httpapi.Deps{
		Config:    cfg,
		Logger:    log,
		Auth:      auth.NewMiddleware(apiToken),
		Store:     store,
		Scheduler: sched,
		Batches:   batch.NewManager(store, sched, log, cfg, m),
		Engine:    client,
		Tokenizer: tok,
	})
}

// byteCodec treats each byte as one token, avoiding a dependency on
// tiktoken-go's embedded vocabulary tables in unit tests.
type byteCodec struct{}

func (byteCodec) GetName() string { return "byte" }
func (byteCodec) Encode(text string) ([]uint, []string, error) {
	toks := make([]uint, len(text))
	for i := range text {
		toks[i] = uint(text[i])
	}
	return toks, nil, nil
}
func (byteCodec) Decode(tokens []uint) (string, error) {
	b := make([]byte, len(tokens))
	for i, tk := range tokens {
		b[i] = byte(tk)
	}
	return string(b), nil
}

func TestChatCompletions_AuthRequired(t *testing.T) {
	router := newTestRouter(t, "secret", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.JSONEq(t, `{"error":"Unauthorized"}`, rec.Body.String())
}

func TestChatCompletions_InteractiveHappyPath(t *testing.T) {
	router := newTestRouter(t, "", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(200)
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hi"}}],"usage":{"prompt_tokens":3,"completion_tokens":1}}`)) //nolint:errcheck
	})

	body := `{"model":"qwen3-4b","messages":[{"role":"user","content":"hello"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	choices := decoded["choices"].([]any)
	msg := choices[0].(map[string]any)["message"].(map[string]any)
	require.Equal(t, "hi", msg["content"])
}

func TestChatCompletions_OverLengthTruncation(t *testing.T) {
	var capturedBody []byte
	router := newTestRouter(t, "", func(w http.ResponseWriter, r *http.Request) {
		buf := new(bytes.Buffer)
		buf.ReadFrom(r.Body) //nolint:errcheck
		capturedBody = buf.Bytes()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(200)
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}],"usage":{}}`)) //nolint:errcheck
	})

	longContent := strings.Repeat("a", 5000)
	body, err := json.Marshal(map[string]any{
		"model":    "qwen3-4b",
		"messages": []map[string]string{{"role": "user", "content": longContent}},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(capturedBody, &sent))
	messages := sent["messages"].([]any)
	content := messages[len(messages)-1].(map[string]any)["content"].(string)
	require.Len(t, content, 4096)
}
