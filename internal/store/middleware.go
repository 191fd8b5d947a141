package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mmcdole/reelsync/internal/domain"
	"github.com/mmcdole/reelsync/internal/metrics"
)

// Middleware wraps a store with cross-cutting behavior
type Middleware func(next domain.Store) domain.Store

// Chain wraps base with mws. The first middleware is the outermost.
func Chain(base domain.Store, mws ...Middleware) domain.Store {
	s := base
	for i := len(mws) - 1; i >= 0; i-- {
		s = mws[i](s)
	}
	return s
}

// Logging logs failed operations at Warn and all writes at Debug
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next domain.Store) domain.Store {
		return &loggingStore{next: next, logger: logger}
	}
}

type loggingStore struct {
	next   domain.Store
	logger *slog.Logger
}

func (s *loggingStore) Get(ctx context.Context, id uuid.UUID) (*domain.Entry, error) {
	e, err := s.next.Get(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrEntryNotFound) {
		s.logger.Warn("store get failed", "id", id, "error", err)
	}
	return e, err
}

func (s *loggingStore) Query(ctx context.Context, q domain.Query) ([]*domain.Entry, error) {
	entries, err := s.next.Query(ctx, q)
	if err != nil {
		s.logger.Warn("store query failed", "query", q, "error", err)
	}
	return entries, err
}

func (s *loggingStore) Upsert(ctx context.Context, entries ...*domain.Entry) error {
	err := s.next.Upsert(ctx, entries...)
	if err != nil {
		s.logger.Warn("store upsert failed", "count", len(entries), "error", err)
		return err
	}
	s.logger.Debug("store upsert", "count", len(entries))
	return nil
}

func (s *loggingStore) Delete(ctx context.Context, ids ...uuid.UUID) error {
	err := s.next.Delete(ctx, ids...)
	if err != nil {
		s.logger.Warn("store delete failed", "count", len(ids), "error", err)
		return err
	}
	s.logger.Debug("store delete", "count", len(ids))
	return nil
}

// Metrics records operation counts and latency
func Metrics() Middleware {
	return func(next domain.Store) domain.Store {
		return &metricsStore{next: next}
	}
}

type metricsStore struct {
	next domain.Store
}

func observe(method string, start time.Time, err error) {
	result := "ok"
	switch {
	case errors.Is(err, domain.ErrEntryNotFound):
		result = "not_found"
	case err != nil:
		result = "error"
	}
	metrics.StoreOps.WithLabelValues(method, result).Inc()
	metrics.StoreOpDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

func (s *metricsStore) Get(ctx context.Context, id uuid.UUID) (*domain.Entry, error) {
	start := time.Now()
	e, err := s.next.Get(ctx, id)
	observe("get", start, err)
	return e, err
}

func (s *metricsStore) Query(ctx context.Context, q domain.Query) ([]*domain.Entry, error) {
	start := time.Now()
	entries, err := s.next.Query(ctx, q)
	observe("query", start, err)
	return entries, err
}

func (s *metricsStore) Upsert(ctx context.Context, entries ...*domain.Entry) error {
	start := time.Now()
	err := s.next.Upsert(ctx, entries...)
	observe("upsert", start, err)
	return err
}

func (s *metricsStore) Delete(ctx context.Context, ids ...uuid.UUID) error {
	start := time.Now()
	err := s.next.Delete(ctx, ids...)
	observe("delete", start, err)
	return err
}
