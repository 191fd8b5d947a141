// Package reconcile keeps a title's alternate versions in line with the sources
// the addon network currently offers.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mmcdole/reelsync/internal/addon"
	"github.com/mmcdole/reelsync/internal/cache"
	"github.com/mmcdole/reelsync/internal/candidate"
	"github.com/mmcdole/reelsync/internal/catalog"
	"github.com/mmcdole/reelsync/internal/coordinator"
	"github.com/mmcdole/reelsync/internal/domain"
	"github.com/mmcdole/reelsync/internal/identity"
	"github.com/mmcdole/reelsync/internal/metrics"
)

// DefaultFreshness is how long a (title, user) pair stays fresh after a sync
const DefaultFreshness = 10 * time.Minute

// StreamSource lists candidate sources for a title
type StreamSource interface {
	GetStreams(ctx context.Context, key identity.TitleKey) []addon.Stream
}

// VersionWriter persists version sets
type VersionWriter interface {
	ApplyVersionSet(ctx context.Context, primary *domain.Entry, alternates []*domain.Entry) error
	Retire(ctx context.Context, ids ...uuid.UUID) error
}

// MemoKey identifies a freshly synced (title, user) pair
type MemoKey struct {
	TitleID uuid.UUID
	User    uuid.UUID
}

// Reconciler runs version reconciliation for primaries in the store
type Reconciler struct {
	store     domain.Store
	streams   StreamSource
	writer    VersionWriter
	policy    candidate.Policy
	coord     *coordinator.Coordinator
	memo      cache.Cache[MemoKey, int]
	freshness time.Duration
	clock     cache.Clock
	logger    *slog.Logger
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithPolicy sets the candidate policy
func WithPolicy(p candidate.Policy) Option {
	return func(r *Reconciler) { r.policy = p }
}

// WithCoordinator shares a coordinator with other components
func WithCoordinator(c *coordinator.Coordinator) Option {
	return func(r *Reconciler) { r.coord = c }
}

// WithMemo replaces the freshness memo
func WithMemo(m cache.Cache[MemoKey, int]) Option {
	return func(r *Reconciler) { r.memo = m }
}

// WithFreshness sets how long a sync result is reused. Zero disables the memo.
func WithFreshness(ttl time.Duration, clock cache.Clock) Option {
	return func(r *Reconciler) {
		r.freshness = ttl
		r.clock = clock
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = logger }
}

// New creates a Reconciler
func New(store domain.Store, streams StreamSource, writer VersionWriter, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:     store,
		streams:   streams,
		writer:    writer,
		freshness: DefaultFreshness,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.coord == nil {
		r.coord = coordinator.New(coordinator.WithLogger(r.logger))
	}
	if r.memo == nil {
		if r.freshness > 0 {
			r.memo = cache.NewTTL[MemoKey, int](r.freshness, r.clock)
		} else {
			r.memo = cache.Nop[MemoKey, int]{}
		}
	}
	return r
}

// Reconcile brings the alternates of the primary titleID up to date for user
// (uuid.Nil is the global sync principal). It returns the number of distinct
// sources materialized; zero means the title has no sources this round.
func (r *Reconciler) Reconcile(ctx context.Context, titleID, user uuid.UUID) (int, error) {
	primary, err := r.store.Get(ctx, titleID)
	if err != nil {
		return 0, err
	}
	if err := validate(primary); err != nil {
		return 0, err
	}

	memoKey := MemoKey{TitleID: titleID, User: user}
	if n, ok := r.memo.Get(memoKey); ok {
		metrics.Reconciliations.WithLabelValues("fresh").Inc()
		return n, nil
	}

	flightKey := "reconcile:" + titleID.String() + ":" + user.String()
	return coordinator.SingleFlight(ctx, r.coord, flightKey, func(ctx context.Context) (int, error) {
		return coordinator.Queued(ctx, r.coord, "title:"+titleID.String(), func(ctx context.Context) (int, error) {
			return r.sync(ctx, titleID, user)
		})
	})
}

// Forget drops the freshness mark of (titleID, user)
func (r *Reconciler) Forget(titleID, user uuid.UUID) {
	r.memo.Delete(MemoKey{TitleID: titleID, User: user})
}

func validate(primary *domain.Entry) error {
	if !primary.Kind.Playable() {
		return fmt.Errorf("%w: %s is a %s", domain.ErrNotPlayable, primary.ID, primary.Kind)
	}
	if primary.IsAlternate() {
		return fmt.Errorf("%w: %s", domain.ErrNotPrimary, primary.ID)
	}
	_, err := catalog.StreamKey(primary)
	return err
}

// sync runs with the title key held
func (r *Reconciler) sync(ctx context.Context, titleID, user uuid.UUID) (int, error) {
	// Reload: another sync may have relinked the primary while we waited
	primary, err := r.store.Get(ctx, titleID)
	if err != nil {
		return 0, err
	}
	if err := validate(primary); err != nil {
		return 0, err
	}
	key, _ := catalog.StreamKey(primary)

	// Network first; nothing below holds a store transaction across it
	candidates := candidate.Filter(r.streams.GetStreams(ctx, key), r.policy)

	existing, err := r.store.Query(ctx, domain.Query{
		ProviderName:  domain.ProviderStremio,
		ProviderValue: key.ExternalID,
		Tag:           domain.TagStream,
		Kind:          domain.KindPtr(primary.Kind),
	})
	if err != nil {
		metrics.Reconciliations.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("failed to load alternates of %s: %w", titleID, err)
	}

	plan := BuildPlan(primary, user, candidates, existing)
	if err := r.writer.ApplyVersionSet(ctx, primary, plan.Alternates); err != nil {
		metrics.Reconciliations.WithLabelValues("error").Inc()
		return 0, err
	}
	if err := r.writer.Retire(ctx, plan.Retired...); err != nil {
		metrics.Reconciliations.WithLabelValues("error").Inc()
		return 0, err
	}
	metrics.AlternatesRetired.WithLabelValues("hidden").Add(float64(plan.Hidden))

	r.logger.Info("reconciled title",
		"titleID", titleID,
		"user", user,
		"sources", plan.Accepted,
		"retired", len(plan.Retired),
		"hidden", plan.Hidden)

	if plan.Accepted == 0 {
		// Not memoized: an empty listing is also what a failed fetch looks like
		metrics.Reconciliations.WithLabelValues("no_sources").Inc()
		return 0, nil
	}
	metrics.Reconciliations.WithLabelValues("synced").Inc()
	r.memo.Set(MemoKey{TitleID: titleID, User: user}, plan.Accepted)
	return plan.Accepted, nil
}
