package jobs

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"sheetcalc/api/internal/tasks"
)

// Scheduler enqueues maintenance tasks on the worker stream. The work
// itself happens in the worker process.
type Scheduler struct {
	cron      *cron.Cron
	queue     *redis.Client
	stream    string
	purgeSpec string
	log       zerolog.Logger
}

func NewScheduler(queue *redis.Client, stream string, purgeSpec string, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:      c,
		queue:     queue,
		stream:    stream,
		purgeSpec: purgeSpec,
		log:       log,
	}
}

func (s *Scheduler) Start() error {
	if s.queue == nil {
		return nil
	}

	if _, err := s.cron.AddFunc(s.purgeSpec, s.enqueuePurge); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop halts the cron and waits up to timeout for a running enqueue.
func (s *Scheduler) Stop(timeout time.Duration) {
	select {
	case <-s.cron.Stop().Done():
	case <-time.After(timeout):
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) enqueuePurge() {
	if err := s.EnqueuePurgeSessions(context.Background()); err != nil {
		s.log.Error().Err(err).Msg("enqueue session purge failed")
	}
}

func (s *Scheduler) EnqueuePurgeSessions(ctx context.Context) error {
	return s.enqueueTask(ctx, map[string]any{
		"type":       tasks.TypePurgeSessions,
		"enqueuedAt": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Scheduler) enqueueTask(ctx context.Context, payload map[string]any) error {
	if s.queue == nil {
		return nil
	}
	_, err := s.queue.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: payload,
	}).Result()
	return err
}
