package batch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/b-snaas/vllm-gateway/internal/blobstore"
	"github.com/b-snaas/vllm-gateway/internal/config"
	"github.com/b-snaas/vllm-gateway/internal/logger"
	"github.com/b-snaas/vllm-gateway/internal/metrics"
	"github.com/b-snaas/vllm-gateway/internal/scheduler"
)

// Manager owns the process-wide batch registry and drives each job's
// background execution. Grounded on the teacher's
// background.PollingManager: a guarded map plus one goroutine per active
// job, generalized from polling tasks to the read/enqueue/gather pipeline
// of spec.md §4.6.
type Manager struct {
	mu      sync.RWMutex
	batches map[string]*Batch

	store   *blobstore.Store
	sched   *scheduler.Scheduler
	log     *logger.Logger
	cfg     *config.Config
	metrics *metrics.Collectors
}

// NewManager builds a Manager backed by store for artifacts and sched for
// dispatching the engine requests a batch job materializes.
func NewManager(store *blobstore.Store, sched *scheduler.Scheduler, log *logger.Logger, cfg *config.Config, m *metrics.Collectors) *Manager {
	return &Manager{
		batches: make(map[string]*Batch),
		store:   store,
		sched:   sched,
		log:     log.WithComponent("batch-manager"),
		cfg:     cfg,
		metrics: m,
	}
}

// Create registers a new pending Batch and launches its background
// execution, returning a snapshot of the freshly created record.
func (m *Manager) Create(in Create) Batch {
	b := &Batch{
		ID:               "batch_" + uuid.NewString(),
		Object:           "batch",
		Endpoint:         in.Endpoint,
		InputFileID:      in.InputFileID,
		CompletionWindow: in.CompletionWindow,
		Status:           StatusPending,
		CreatedAt:        time.Now().Unix(),
		Metadata:         in.Metadata,
	}

	m.mu.Lock()
	m.batches[b.ID] = b
	m.mu.Unlock()

	go m.execute(b.ID)

	return snapshot(b)
}

// Get returns a point-in-time snapshot of batch id, or false if unknown.
func (m *Manager) Get(id string) (Batch, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.batches[id]
	if !ok {
		return Batch{}, false
	}
	return snapshot(b), true
}

// ErrUnknownBatch, ErrTerminalJob, and ErrAlreadyCancelling classify Cancel's
// failure modes for the HTTP layer to turn into 404/400/409.
var (
	ErrUnknownBatch      = fmt.Errorf("batch: unknown batch id")
	ErrTerminalJob       = fmt.Errorf("batch: job already in a terminal state")
	ErrAlreadyCancelling = fmt.Errorf("batch: job is already cancelling")
)

// Cancel marks batch id as cancelling. The cancellation is cooperative: it
// takes effect the next time the job's gather loop observes it (§4.6 step 7).
func (m *Manager) Cancel(id string) (Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[id]
	if !ok {
		return Batch{}, ErrUnknownBatch
	}
	if b.Status.terminal() {
		return Batch{}, ErrTerminalJob
	}
	if b.Status == StatusCancelling {
		return Batch{}, ErrAlreadyCancelling
	}

	now := time.Now().Unix()
	b.Status = StatusCancelling
	b.CancellingAt = &now

	return snapshot(b), nil
}

// status reads a batch's current status under the registry lock, used by
// the gather loop to observe a concurrent cancel request.
func (m *Manager) status(id string) Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.batches[id].Status
}

type materializedRequest struct {
	slot *scheduler.Slot
}

// execute runs the full background lifecycle for batch id: read the input
// file, materialize one engine request per valid line, enqueue all of them
// to the scheduler's batch queue, gather results in original order, and
// write the output/error artifacts.
func (m *Manager) execute(id string) {
	m.mu.Lock()
	b := m.batches[id]
	now := time.Now().Unix()
	expires := now + 24*3600
	if b.Status != StatusCancelling {
		b.Status = StatusInProgress
	}
	b.InProgressAt = &now
	b.ExpiresAt = &expires
	m.mu.Unlock()

	log := m.log.WithComponent("batch-execute")

	input, err := m.store.Read(b.InputFileID)
	if err != nil {
		m.fail(b, fmt.Errorf("failed to read input file: %w", err))
		return
	}

	requests, failedLines, err := m.materialize(input, b.Endpoint)
	if err != nil {
		m.fail(b, fmt.Errorf("failed to read or parse input file: %w", err))
		return
	}

	m.mu.Lock()
	b.RequestCounts.Total = len(requests)
	b.RequestCounts.Failed = len(failedLines)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.BatchLinesTotal.WithLabelValues("parse_failed").Add(float64(len(failedLines)))
	}

	for _, r := range requests {
		m.sched.Batch.Enqueue(r.slot)
	}

	outputID := blobstore.NewFileID()
	errorID := blobstore.NewFileID()

	var outBuf, errBuf bytes.Buffer
	for _, line := range failedLines {
		errBuf.WriteString(line)
		errBuf.WriteByte('\n')
	}

	cancelled := m.gather(b, requests, &outBuf, &errBuf)

	m.finalize(b, outputID, errorID, outBuf.Bytes(), errBuf.Bytes(), cancelled)

	log.Info("batch job finished",
		slog.String("batch_id", b.ID),
		slog.String("status", string(b.Status)),
		slog.Int("total", b.RequestCounts.Total),
		slog.Int("completed", b.RequestCounts.Completed),
		slog.Int("failed", b.RequestCounts.Failed))
}

// materialize parses each JSONL line of input into a batch request slot per
// spec.md §4.6 step 2-3, returning successfully built requests in original
// order alongside pre-rendered error-artifact lines for failed ones. Every
// slot is posted to the batch's own configured endpoint.
func (m *Manager) materialize(input []byte, endpoint string) ([]materializedRequest, []string, error) {
	var requests []materializedRequest
	var failedLines []string

	scan := bufio.NewScanner(bytes.NewReader(input))
	scan.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	lineNo := 0
	for scan.Scan() {
		lineNo++
		line := scan.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		slot, err := m.buildSlot(endpoint, line, lineNo)
		if err != nil {
			failedLines = append(failedLines, fmt.Sprintf(`{"error":"Error processing line %d: %s"}`, lineNo, err.Error()))
			continue
		}

		requests = append(requests, materializedRequest{slot: slot})
	}
	if err := scan.Err(); err != nil {
		return nil, nil, err
	}

	return requests, failedLines, nil
}

type lineMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type lineRequest struct {
	Messages []lineMessage `json:"messages"`
}

// buildSlot implements spec.md §4.6 step 2-3: locate the first system and
// user message, template-substitute <user_profile>/<system_info>, and wrap
// the result in the batch request body, posted to the batch's own endpoint.
func (m *Manager) buildSlot(endpoint string, line []byte, lineNo int) (*scheduler.Slot, error) {
	var req lineRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	var system, user *lineMessage
	for i := range req.Messages {
		msg := &req.Messages[i]
		if msg.Role == "system" && system == nil {
			system = msg
		}
		if msg.Role == "user" && user == nil {
			user = msg
		}
	}
	if system == nil || user == nil {
		return nil, fmt.Errorf("missing system or user message in the input data")
	}

	content := strings.ReplaceAll(system.Content, "<user_profile>", user.Content)
	content = strings.ReplaceAll(content, "<system_info>", "")

	body := map[string]any{
		"model":    m.cfg.BatchModel,
		"messages": []lineMessage{{Role: "system", Content: content}},
		"max_tokens": m.cfg.BatchMaxTokens,
		"priority":   m.cfg.BatchPriority,
	}
	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	customID := fmt.Sprintf("request-%d", lineNo)
	return scheduler.NewSlot(endpoint, bodyJSON, customID), nil
}

// gather awaits every materialized slot in original index order, writing
// each result to outBuf or errBuf as it resolves. It polls the batch's
// status each iteration so a concurrent Cancel is observed between
// results, per spec.md §4.6 step 7 ("observed only at the gather stage").
func (m *Manager) gather(b *Batch, requests []materializedRequest, outBuf, errBuf *bytes.Buffer) (cancelled bool) {
	ctx := context.Background()

	completed, failed := 0, 0
	for _, r := range requests {
		if m.status(b.ID) == StatusCancelling {
			cancelled = true
			break
		}

		result, _ := r.slot.Await(ctx)

		if result.Status == 200 {
			completed++
			fmt.Fprintf(outBuf, `{"custom_id":%q,"response":{"status_code":200,"body":%s}}`+"\n", r.slot.CustomID, string(result.Body))
			m.accumulateUsage(b, result.Body)
		} else {
			failed++
			fmt.Fprintf(errBuf, `{"custom_id":%q,"response":{"status_code":%d,"body":%s}}`+"\n", r.slot.CustomID, result.Status, string(result.Body))
		}
	}

	m.mu.Lock()
	b.RequestCounts.Completed += completed
	b.RequestCounts.Failed += failed
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.BatchLinesTotal.WithLabelValues("completed").Add(float64(completed))
		m.metrics.BatchLinesTotal.WithLabelValues("engine_error").Add(float64(failed))
	}

	return cancelled
}

// accumulateUsage adds a 200-status response's reported usage to the
// batch's running totals, per invariant I5. Missing or malformed usage
// fields count as zero.
func (m *Manager) accumulateUsage(b *Batch, body json.RawMessage) {
	var parsed struct {
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return
	}

	m.mu.Lock()
	b.Usage.PromptTokens += parsed.Usage.PromptTokens
	b.Usage.CompletionTokens += parsed.Usage.CompletionTokens
	m.mu.Unlock()
}

// finalize publishes non-empty output/error artifacts and sets the batch's
// terminal status, per spec.md §4.6 steps 7-9 and invariant I4.
func (m *Manager) finalize(b *Batch, outputID, errorID string, outBytes, errBytes []byte, cancelled bool) {
	now := time.Now().Unix()

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(outBytes) > 0 {
		if err := m.store.PutNamed(outputID, outBytes); err == nil {
			b.OutputFileID = &outputID
		}
	}
	if len(errBytes) > 0 {
		if err := m.store.PutNamed(errorID, errBytes); err == nil {
			b.ErrorFileID = &errorID
		}
	}

	if cancelled {
		b.Status = StatusCancelled
		b.CancelledAt = &now
		if m.metrics != nil {
			m.metrics.BatchJobsTotal.WithLabelValues(string(StatusCancelled)).Inc()
		}
		return
	}

	b.Status = StatusCompleted
	b.CompletedAt = &now
	if m.metrics != nil {
		m.metrics.BatchJobsTotal.WithLabelValues(string(StatusCompleted)).Inc()
	}
}

// fail transitions b to failed with a job-level error detail, per spec.md
// §4.6 "Failure (job-level)".
func (m *Manager) fail(b *Batch, err error) {
	now := time.Now().Unix()

	m.mu.Lock()
	b.Status = StatusFailed
	b.FailedAt = &now
	b.Errors = &JobErrors{Code: "500", Message: err.Error()}
	m.mu.Unlock()

	m.log.Error("batch job failed before enqueue",
		slog.String("batch_id", b.ID), slog.String("error", err.Error()))

	if m.metrics != nil {
		m.metrics.BatchJobsTotal.WithLabelValues(string(StatusFailed)).Inc()
	}
}
