// Package stats runs a periodic diagnostic job that logs queue depth and
// refreshes the corresponding prometheus gauges, scheduled with
// robfig/cron the way the rest of the pack schedules recurring background
// work.
package stats

import (
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/b-snaas/vllm-gateway/internal/logger"
	"github.com/b-snaas/vllm-gateway/internal/metrics"
	"github.com/b-snaas/vllm-gateway/internal/scheduler"
)

// Reporter periodically samples scheduler queue depth.
type Reporter struct {
	sched *scheduler.Scheduler
	m     *metrics.Collectors
	log   *logger.Logger
	cron  *cron.Cron
}

// NewReporter builds a Reporter. Call Start to begin the every-30s job.
func NewReporter(sched *scheduler.Scheduler, m *metrics.Collectors, log *logger.Logger) *Reporter {
	return &Reporter{
		sched: sched,
		m:     m,
		log:   log.WithComponent("stats"),
		cron:  cron.New(),
	}
}

// Start schedules the diagnostic job and begins running it.
func (r *Reporter) Start() error {
	_, err := r.cron.AddFunc("@every 30s", r.sample)
	if err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop halts the cron scheduler, waiting for any in-flight run to finish.
func (r *Reporter) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Reporter) sample() {
	interactiveDepth := r.sched.Interactive.Len()
	batchDepth := r.sched.Batch.Len()

	r.m.QueueDepth.WithLabelValues("interactive").Set(float64(interactiveDepth))
	r.m.QueueDepth.WithLabelValues("batch").Set(float64(batchDepth))

	r.log.Info("queue depth snapshot",
		slog.Int("interactive_depth", interactiveDepth),
		slog.Int("batch_depth", batchDepth))
}
