package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"sheetcalc/api/internal/metrics"
)

const TypePurgeSessions = "purge_sessions"

type SessionPurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type Processor struct {
	sessions SessionPurger
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

type TaskPayload struct {
	Type       string `json:"type"`
	EnqueuedAt string `json:"enqueuedAt"`
}

func NewProcessor(sessions SessionPurger, m *metrics.Metrics, logger zerolog.Logger) *Processor {
	return &Processor{
		sessions: sessions,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	var payload TaskPayload
	if err := decodePayload(msg.Values, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	switch payload.Type {
	case TypePurgeSessions:
		return p.handlePurgeSessions(ctx)
	default:
		p.logger.Warn().Str("type", payload.Type).Str("message_id", msg.ID).Msg("unknown task type")
		return nil
	}
}

func decodePayload(values map[string]interface{}, out *TaskPayload) error {
	bytes, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, out)
}

func (p *Processor) handlePurgeSessions(ctx context.Context) error {
	removed, err := p.sessions.DeleteExpired(ctx, p.now().UTC())
	if err != nil {
		return fmt.Errorf("purge sessions: %w", err)
	}

	p.metrics.SessionsPurgedAdd(removed)
	p.logger.Info().Int64("removed", removed).Msg("expired sessions purged")
	return nil
}
