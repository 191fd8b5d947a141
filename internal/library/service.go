// Package library is the entry point for sync triggers: playback and detail
// requests, and bulk catalog imports.
package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/mmcdole/reelsync/internal/addon"
	"github.com/mmcdole/reelsync/internal/catalog"
	"github.com/mmcdole/reelsync/internal/domain"
	"github.com/mmcdole/reelsync/internal/identity"
	"github.com/mmcdole/reelsync/internal/reconcile"
)

const defaultParallelism = 4

// ErrUnknownTitle indicates the addon has no metadata for a requested title
var ErrUnknownTitle = errors.New("title unknown to addon")

// Remote is the subset of the addon client used for imports
type Remote interface {
	GetMeta(ctx context.Context, kind identity.MediaKind, externalID string) *addon.Meta
	GetCatalogPage(ctx context.Context, catalogID string, kind identity.MediaKind, search string, skip int) []addon.Meta
}

// Service orchestrates the importer and reconciler against the store.
type Service struct {
	remote      Remote
	store       domain.Store
	writer      *catalog.Writer
	importer    *catalog.Importer
	reconciler  *reconcile.Reconciler
	parallelism int
	logger      *slog.Logger
}

// Option configures a Service
type Option func(*Service)

// WithParallelism caps how many titles a bulk import processes at once
func WithParallelism(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a new library service.
func NewService(
	remote Remote,
	store domain.Store,
	writer *catalog.Writer,
	importer *catalog.Importer,
	reconciler *reconcile.Reconciler,
	opts ...Option,
) *Service {
	s := &Service{
		remote:      remote,
		store:       store,
		writer:      writer,
		importer:    importer,
		reconciler:  reconciler,
		parallelism: defaultParallelism,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reconcile syncs the alternates of an imported title for userID.
// Returns the number of sources materialized.
func (s *Service) Reconcile(ctx context.Context, titleID, userID uuid.UUID) (int, error) {
	n, err := s.reconciler.Reconcile(ctx, titleID, userID)
	if err != nil {
		s.logger.Error("failed to reconcile title", "error", err, "titleID", titleID)
		return 0, err
	}
	return n, nil
}

// ReconcileKey syncs the title named by key, importing it first when the
// catalog does not have it yet. Episodes import their whole series.
func (s *Service) ReconcileKey(ctx context.Context, key identity.TitleKey, userID uuid.UUID) (uuid.UUID, int, error) {
	if err := key.Validate(); err != nil {
		return uuid.Nil, 0, err
	}
	titleID := catalog.TitleID(key)

	_, err := s.store.Get(ctx, titleID)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrEntryNotFound):
		if err := s.importKey(ctx, key); err != nil {
			return uuid.Nil, 0, err
		}
	default:
		return uuid.Nil, 0, err
	}

	n, err := s.Reconcile(ctx, titleID, userID)
	return titleID, n, err
}

// importKey brings the title of key into the catalog
func (s *Service) importKey(ctx context.Context, key identity.TitleKey) error {
	if key.Kind == identity.KindMovie {
		meta := s.remote.GetMeta(ctx, identity.KindMovie, key.ExternalID)
		if meta == nil {
			return fmt.Errorf("%w: %s", ErrUnknownTitle, key)
		}
		root, err := s.writer.EnsureRoot(ctx, identity.KindMovie)
		if err != nil {
			return err
		}
		_, _, err = s.importer.InsertIfMissing(ctx, root, meta)
		return err
	}

	seriesID, _, ok := strings.Cut(key.ExternalID, ":")
	if !ok {
		return fmt.Errorf("%w: %s names a series, not an episode", domain.ErrNotPlayable, key)
	}
	meta := s.remote.GetMeta(ctx, identity.KindSeries, seriesID)
	if meta == nil {
		return fmt.Errorf("%w: %s", ErrUnknownTitle, key)
	}
	root, err := s.writer.EnsureRoot(ctx, identity.KindSeries)
	if err != nil {
		return err
	}
	series, created, err := s.importer.InsertIfMissing(ctx, root, meta)
	if err != nil {
		return err
	}
	if !created {
		// The series predates this episode
		if _, err := s.importer.EnsureEpisodes(ctx, series, meta); err != nil {
			return err
		}
	}

	if _, err := s.store.Get(ctx, catalog.TitleID(key)); err != nil {
		if errors.Is(err, domain.ErrEntryNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownTitle, key)
		}
		return err
	}
	return nil
}
