// Package scheduler implements the two-class priority dispatch layer: an
// interactive queue and a batch queue, each drained by its own worker pool
// that collects a time/size-bounded micro-batch and fans it out to the
// engine concurrently, delivering results back to per-slot completion
// cells. Grounded on the worker-pool lifecycle of the teacher's
// background.PollingManager and the bounded concurrent fan-out of the
// pack's evaluation/service/local pool, adapted from asyncio queues/futures
// to channels/completion cells per the design notes in §9.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/b-snaas/vllm-gateway/internal/config"
	"github.com/b-snaas/vllm-gateway/internal/engineclient"
	"github.com/b-snaas/vllm-gateway/internal/logger"
	"github.com/b-snaas/vllm-gateway/internal/metrics"
)

// collectYield is the re-check interval a worker sleeps for while its
// window is open but the queue is momentarily empty, and also the idle
// sleep after a fully-empty window. Matches spec.md's "≈10 ms".
const collectYield = 10 * time.Millisecond

// Class names a queue, used only for logging/metrics labels.
type Class string

const (
	ClassInteractive Class = "interactive"
	ClassBatch       Class = "batch"
)

// Scheduler owns the interactive and batch queues and their worker pools.
type Scheduler struct {
	Interactive *Queue
	Batch       *Queue

	client  *engineclient.Client
	log     *logger.Logger
	tuning  func() config.SchedulerTuning
	metrics *metrics.Collectors

	stop chan struct{}
	wg   sync.WaitGroup

	fanoutPools []*ants.PoolWithFunc
}

// New builds a Scheduler. tuning is called once, in Start, and the workers
// keep the parameters they started with for the life of the Scheduler; a
// later fsnotify-driven reload of scheduler.yaml does not change the worker
// count, batch size or wait time of a running Scheduler.
func New(client *engineclient.Client, log *logger.Logger, tuning func() config.SchedulerTuning, m *metrics.Collectors) *Scheduler {
	return &Scheduler{
		Interactive: NewQueue(),
		Batch:       NewQueue(),
		client:      client,
		log:         log.WithComponent("scheduler"),
		tuning:      tuning,
		metrics:     m,
		stop:        make(chan struct{}),
	}
}

// Start spawns the configured worker count for each queue class.
func (s *Scheduler) Start() error {
	t := s.tuning()

	if err := s.startClass(ClassInteractive, s.Interactive, t.Interactive); err != nil {
		return err
	}
	if err := s.startClass(ClassBatch, s.Batch, t.Batch); err != nil {
		return err
	}
	return nil
}

func (s *Scheduler) startClass(class Class, q *Queue, t config.QueueTuning) error {
	poolSize := t.Workers * t.MaxBatch
	if poolSize < 1 {
		poolSize = 1
	}

	pool, err := ants.NewPoolWithFunc(poolSize, s.fanoutFunc())
	if err != nil {
		return err
	}
	s.fanoutPools = append(s.fanoutPools, pool)

	for i := 0; i < t.Workers; i++ {
		worker := &worker{
			id:       i,
			class:    class,
			queue:    q,
			maxBatch: t.MaxBatch,
			waitTime: t.WaitTime,
			pool:     pool,
			log:      s.log.WithComponent("scheduler-worker"),
			metrics:  s.metrics,
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			worker.run(s.stop)
		}()
	}

	s.log.Info("scheduler workers started",
		slog.String("class", string(class)),
		slog.Int("workers", t.Workers),
		slog.Int("max_batch", t.MaxBatch),
		slog.Duration("wait_time", t.WaitTime))

	return nil
}

// fanoutParam is the argument handed to one ants pool invocation: dispatch
// exactly one slot's POST and deliver its result.
type fanoutParam struct {
	ctx  context.Context
	slot *Slot
	wg   *sync.WaitGroup
}

// fanoutFunc closes over the scheduler's engine client so every pool
// invocation shares the same pooled HTTP transport.
func (s *Scheduler) fanoutFunc() func(any) {
	client := s.client
	return func(args any) {
		p := args.(*fanoutParam)
		defer p.wg.Done()

		status, body, err := client.Post(p.ctx, p.slot.Endpoint, p.slot.RequestBody)
		if err != nil {
			p.slot.completeErr(err)
			return
		}
		p.slot.complete(Result{Status: status, Body: body})
	}
}

// Stop halts worker loops and releases the fan-out pools. Slots already
// mid-dispatch are allowed to finish; no new micro-batch is started.
func (s *Scheduler) Stop() {
	close(s.stop)
	s.wg.Wait()
	for _, pool := range s.fanoutPools {
		pool.Release()
	}
}

// worker implements the collect/skip-empty/dispatch/deliver loop of
// spec.md §4.5 for one queue class.
type worker struct {
	id       int
	class    Class
	queue    *Queue
	maxBatch int
	waitTime time.Duration
	pool     *ants.PoolWithFunc
	log      *logger.Logger
	metrics  *metrics.Collectors
}

func (w *worker) run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		batch := w.collect(stop)
		if len(batch) == 0 {
			time.Sleep(collectYield)
			continue
		}

		w.dispatch(batch)
	}
}

// collect drains up to maxBatch slots within one wait_time window, using
// non-blocking takes and a short yield when the queue runs dry mid-window.
func (w *worker) collect(stop <-chan struct{}) []*Slot {
	deadline := time.Now().Add(w.waitTime)
	batch := make([]*Slot, 0, w.maxBatch)

	for time.Now().Before(deadline) && len(batch) < w.maxBatch {
		select {
		case <-stop:
			return batch
		default:
		}

		slot, ok := w.queue.TryDequeue()
		if !ok {
			if len(batch) == 0 {
				// Nothing collected yet and the queue is empty: yield
				// briefly and re-check until the window closes.
				time.Sleep(collectYield)
				if time.Now().Before(deadline) {
					continue
				}
				break
			}
			time.Sleep(collectYield)
			continue
		}
		batch = append(batch, slot)
	}

	return batch
}

func (w *worker) dispatch(batch []*Slot) {
	ctx := context.Background()
	start := time.Now()

	var wg sync.WaitGroup
	wg.Add(len(batch))
	for _, slot := range batch {
		param := &fanoutParam{ctx: ctx, slot: slot, wg: &wg}
		if err := w.pool.Invoke(param); err != nil {
			wg.Done()
			slot.completeErr(err)
		}
	}
	wg.Wait()

	if w.metrics != nil {
		w.metrics.DispatchLatency.WithLabelValues(string(w.class)).Observe(time.Since(start).Seconds())
	}

	w.log.Debug("dispatched micro-batch",
		slog.String("class", string(w.class)),
		slog.Int("worker_id", w.id),
		slog.Int("batch_size", len(batch)))
}
