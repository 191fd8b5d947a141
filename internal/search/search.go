// Package search finds titles in the local catalog and on the addon, and
// imports remote results on request.
package search

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mmcdole/reelsync/internal/addon"
	"github.com/mmcdole/reelsync/internal/cache"
	"github.com/mmcdole/reelsync/internal/domain"
	"github.com/mmcdole/reelsync/internal/identity"
)

// DefaultResultTTL is how long a remote result id can be inserted
const DefaultResultTTL = 30 * time.Minute

// ErrResultExpired indicates an insert of a result id that is unknown or expired
var ErrResultExpired = errors.New("search result expired")

// TitleLister reads the primaries of a library folder
type TitleLister interface {
	Titles(ctx context.Context, kind identity.MediaKind) ([]*domain.Entry, error)
}

// Remote is the subset of the addon client used for searching
type Remote interface {
	GetManifest(ctx context.Context, force bool) (*addon.Manifest, error)
	GetCatalogPage(ctx context.Context, catalogID string, kind identity.MediaKind, search string, skip int) []addon.Meta
}

// Roots provides library folders
type Roots interface {
	EnsureRoot(ctx context.Context, kind identity.MediaKind) (*domain.Entry, error)
}

// Inserter imports a title
type Inserter interface {
	InsertIfMissing(ctx context.Context, parent *domain.Entry, meta *addon.Meta) (*domain.Entry, bool, error)
}

// Service handles fuzzy search across the catalog and the addon
type Service struct {
	titles   TitleLister
	remote   Remote
	roots    Roots
	inserter Inserter
	results  cache.Cache[uuid.UUID, addon.Meta]
	logger   *slog.Logger
}

// Option configures a Service
type Option func(*Service)

// WithResultCache replaces the side table holding remote results
func WithResultCache(c cache.Cache[uuid.UUID, addon.Meta]) Option {
	return func(s *Service) { s.results = c }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a new search service
func NewService(titles TitleLister, remote Remote, roots Roots, inserter Inserter, opts ...Option) *Service {
	s := &Service{
		titles:   titles,
		remote:   remote,
		roots:    roots,
		inserter: inserter,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.results == nil {
		s.results = cache.NewTTL[uuid.UUID, addon.Meta](DefaultResultTTL, nil)
	}
	return s
}

// Insert imports the remote result id into the catalog
func (s *Service) Insert(ctx context.Context, resultID uuid.UUID) (*domain.Entry, bool, error) {
	meta, ok := s.results.Get(resultID)
	if !ok {
		return nil, false, ErrResultExpired
	}
	root, err := s.roots.EnsureRoot(ctx, meta.Kind)
	if err != nil {
		return nil, false, err
	}
	entry, created, err := s.inserter.InsertIfMissing(ctx, root, &meta)
	if err != nil {
		return nil, false, err
	}
	s.logger.Info("inserted search result", "id", meta.ID, "created", created)
	return entry, created, nil
}

func kindsOrAll(kinds []identity.MediaKind) []identity.MediaKind {
	if len(kinds) == 0 {
		return []identity.MediaKind{identity.KindMovie, identity.KindSeries}
	}
	return kinds
}
