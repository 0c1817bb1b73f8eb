// Package batch implements the asynchronous batch-job lifecycle: create,
// background execute (read input, enqueue to the scheduler, gather, write
// output/error artifacts), get, and cooperative cancel.
package batch

// RequestCounts tracks how many of a batch's input lines ended up in each
// bucket.
type RequestCounts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Usage is the running sum of engine-reported token usage across a batch's
// 200-status responses.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// JobErrors is the job-level failure detail recorded when a batch fails
// before any request is enqueued (e.g. the input file itself is unreadable).
type JobErrors struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Status is a Batch's lifecycle state. Transitions are monotonic along the
// DAG pending -> in_progress -> {completed | failed | cancelling ->
// cancelled}.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCancelling Status = "cancelling"
	StatusCancelled  Status = "cancelled"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
)

// terminal reports whether status permits no further transition.
// StatusCancelling is deliberately excluded: it is in-flight, not final, and
// Cancel checks for it separately to report ErrAlreadyCancelling.
func (s Status) terminal() bool {
	switch s {
	case StatusCancelled, StatusCompleted, StatusFailed, StatusExpired:
		return true
	default:
		return false
	}
}

// Batch is the OpenAI-shaped batch job record.
type Batch struct {
	ID               string            `json:"id"`
	Object           string            `json:"object"`
	Endpoint         string            `json:"endpoint"`
	Errors           *JobErrors        `json:"errors,omitempty"`
	InputFileID      string            `json:"input_file_id"`
	CompletionWindow string            `json:"completion_window"`
	Status           Status            `json:"status"`
	OutputFileID     *string           `json:"output_file_id,omitempty"`
	ErrorFileID      *string           `json:"error_file_id,omitempty"`
	CreatedAt        int64             `json:"created_at"`
	InProgressAt     *int64            `json:"in_progress_at,omitempty"`
	ExpiresAt        *int64            `json:"expires_at,omitempty"`
	CompletedAt      *int64            `json:"completed_at,omitempty"`
	FailedAt         *int64            `json:"failed_at,omitempty"`
	CancellingAt     *int64            `json:"cancelling_at,omitempty"`
	CancelledAt      *int64            `json:"cancelled_at,omitempty"`
	RequestCounts    RequestCounts     `json:"request_counts"`
	Usage            Usage             `json:"usage"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// Create is the body of POST /v1/batches.
type Create struct {
	InputFileID      string            `json:"input_file_id"`
	Endpoint         string            `json:"endpoint"`
	CompletionWindow string            `json:"completion_window"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// snapshot returns a value copy of b, safe to hand to an HTTP handler
// without exposing the manager's interior mutability (spec.md §5's
// "HTTP handlers return a point-in-time snapshot").
func snapshot(b *Batch) Batch {
	cp := *b
	if b.Metadata != nil {
		cp.Metadata = make(map[string]string, len(b.Metadata))
		for k, v := range b.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}
