package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vinli0921/GEO-exploration/internal/domain/session"
	"github.com/vinli0921/GEO-exploration/internal/infrastructure/cache"
)

const summaryCacheKey = "metrics:summary"

// Service computes and serves per-session and global analytics. Metrics are
// computed only on explicit request, never as a side effect of ingestion.
type Service interface {
	ComputeSessionMetrics(ctx context.Context, sessionKey string) (*SessionMetrics, error)
	GetSessionMetrics(ctx context.Context, sessionKey string) (*SessionMetrics, error)
	ListSessionMetrics(ctx context.Context, filter MetricsFilter) ([]SessionMetrics, int64, error)
	GlobalSummary(ctx context.Context) (*GlobalSummary, error)
	Timeline(ctx context.Context, days int) ([]TimelineBucket, error)
	TopParticipants(ctx context.Context, limit int) ([]ParticipantRollup, error)
}

type service struct {
	repo     Repository
	sessions session.Repository
	redis    *cache.RedisClient
	logger   *logrus.Logger
}

// NewService wires the aggregator. redis may be nil, in which case summary
// caching is skipped.
func NewService(repo Repository, sessions session.Repository, redis *cache.RedisClient, logger *logrus.Logger) Service {
	return &service{
		repo:     repo,
		sessions: sessions,
		redis:    redis,
		logger:   logger,
	}
}

// ComputeSessionMetrics recomputes the session's metrics row from its
// persisted events and atomically replaces any prior row.
func (s *service) ComputeSessionMetrics(ctx context.Context, sessionKey string) (*SessionMetrics, error) {
	sess, err := s.sessions.FindBySessionID(ctx, sessionKey)
	if err != nil {
		return nil, err
	}

	events, err := s.sessions.AllEvents(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session events: %w", err)
	}

	m := computeFromEvents(sess, events)
	m.ComputedAt = time.Now().UTC()

	if err := s.repo.Upsert(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to store session metrics: %w", err)
	}

	s.invalidateSummary(ctx)

	s.logger.WithFields(logrus.Fields{
		"session_id":  sessionKey,
		"query_count": m.QueryCount,
		"conversions": m.Conversions,
	}).Info("recomputed session metrics")

	return m, nil
}

func (s *service) GetSessionMetrics(ctx context.Context, sessionKey string) (*SessionMetrics, error) {
	sess, err := s.sessions.FindBySessionID(ctx, sessionKey)
	if err != nil {
		return nil, err
	}
	return s.repo.FindBySessionID(ctx, sess.ID)
}

func (s *service) ListSessionMetrics(ctx context.Context, filter MetricsFilter) ([]SessionMetrics, int64, error) {
	return s.repo.List(ctx, filter)
}

func (s *service) GlobalSummary(ctx context.Context) (*GlobalSummary, error) {
	if s.redis != nil {
		var cached GlobalSummary
		err := s.redis.GetJSON(ctx, summaryCacheKey, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrCacheNotFound) {
			s.logger.WithError(err).Warn("summary cache read failed")
		}
	}

	summary, err := s.repo.Summary(ctx)
	if err != nil {
		return nil, err
	}

	if s.redis != nil {
		if err := s.redis.SetJSON(ctx, summaryCacheKey, summary, 0); err != nil {
			s.logger.WithError(err).Warn("summary cache write failed")
		}
	}
	return summary, nil
}

func (s *service) Timeline(ctx context.Context, days int) ([]TimelineBucket, error) {
	return s.repo.Timeline(ctx, days)
}

func (s *service) TopParticipants(ctx context.Context, limit int) ([]ParticipantRollup, error) {
	return s.repo.TopParticipants(ctx, limit)
}

func (s *service) invalidateSummary(ctx context.Context) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Delete(ctx, summaryCacheKey); err != nil {
		s.logger.WithError(err).Warn("summary cache invalidation failed")
	}
}
