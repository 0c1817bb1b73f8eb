package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Result is what a Slot's completion cell is ultimately filled with.
type Result struct {
	Status int
	Body   json.RawMessage
}

// Slot is one pending engine call and its single-write completion cell.
// The producer builds a Slot and hands it to a Queue; exactly one scheduler
// worker later calls complete on it, and the producer (or anyone else
// holding the Slot) can Await the result any number of times.
type Slot struct {
	Endpoint    string
	RequestBody json.RawMessage
	CustomID    string

	done   chan struct{}
	once   sync.Once
	result Result
}

// NewSlot builds a Slot ready to be enqueued.
func NewSlot(endpoint string, requestBody json.RawMessage, customID string) *Slot {
	return &Slot{
		Endpoint:    endpoint,
		RequestBody: requestBody,
		CustomID:    customID,
		done:        make(chan struct{}),
	}
}

// complete sets the completion cell exactly once. A second call is a no-op:
// per invariant I1 this should never happen, but a worker bug must not
// panic the process.
func (s *Slot) complete(r Result) {
	s.once.Do(func() {
		s.result = r
		close(s.done)
	})
}

// completeErr records an engine-call failure as a synthetic 500 body,
// matching the scheduler's "exceptions become slot failures" rule.
func (s *Slot) completeErr(err error) {
	s.complete(Result{
		Status: 500,
		Body:   json.RawMessage(fmt.Sprintf(`{"error":%q}`, err.Error())),
	})
}

// Await blocks until the completion cell is set or ctx is done, whichever
// comes first.
func (s *Slot) Await(ctx context.Context) (Result, error) {
	select {
	case <-s.done:
		return s.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
