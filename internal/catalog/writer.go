// Package catalog writes titles and their version sets into the shared store.
package catalog

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/mmcdole/reelsync/internal/domain"
	"github.com/mmcdole/reelsync/internal/identity"
	"github.com/mmcdole/reelsync/internal/metrics"
)

// Writer applies planned entries to the store
type Writer struct {
	store  domain.Store
	paths  Paths
	logger *slog.Logger
}

// NewWriter creates a Writer
func NewWriter(store domain.Store, paths Paths, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{store: store, paths: paths, logger: logger}
}

// Paths returns the path policy
func (w *Writer) Paths() Paths {
	return w.paths
}

// RootID returns the derived id of the library folder for kind
func RootID(kind identity.MediaKind) uuid.UUID {
	return uuid.NewMD5(uuid.NameSpaceURL, []byte(identity.Scheme+":root:"+string(kind)))
}

// EnsureRoot returns the library folder for kind, creating it on first use
func (w *Writer) EnsureRoot(ctx context.Context, kind identity.MediaKind) (*domain.Entry, error) {
	id := RootID(kind)
	root, err := w.store.Get(ctx, id)
	if err == nil {
		return root, nil
	}
	if !errors.Is(err, domain.ErrEntryNotFound) {
		return nil, err
	}

	name := "Movies"
	if kind == identity.KindSeries {
		name = "Series"
	}
	root = &domain.Entry{
		ID:   id,
		Kind: domain.KindFolder,
		Name: name,
		Path: w.paths.RootPath(kind),
	}
	if err := w.store.Upsert(ctx, root); err != nil {
		return nil, fmt.Errorf("failed to create %s library: %w", kind, err)
	}
	w.logger.Info("created library folder", "kind", kind, "path", root.Path)
	return root, nil
}

// ApplyVersionSet links alternates to primary and writes them with the
// refreshed primary in one batch. alternates is the complete surviving set.
func (w *Writer) ApplyVersionSet(ctx context.Context, primary *domain.Entry, alternates []*domain.Entry) error {
	if primary.IsAlternate() {
		return fmt.Errorf("%w: %s", domain.ErrNotPrimary, primary.ID)
	}

	batch := make([]*domain.Entry, 0, len(alternates)+1)
	for _, alt := range alternates {
		alt.Kind = primary.Kind
		alt.ParentID = primary.ParentID
		alt.PrimaryVersionID = primary.ID
		alt.AlternateVersionIDs = nil
		alt.AddTag(domain.TagStream)
		alt.Path = w.paths.StreamPath(alt.Stream)
		batch = append(batch, alt)
	}
	SortVersions(alternates)

	primary = primary.Clone()
	primary.AlternateVersionIDs = make([]uuid.UUID, len(alternates))
	for i, alt := range alternates {
		primary.AlternateVersionIDs[i] = alt.ID
	}
	batch = append(batch, primary)

	if err := w.store.Upsert(ctx, batch...); err != nil {
		return fmt.Errorf("failed to write version set for %s: %w", primary.ID, err)
	}
	metrics.AlternatesWritten.Add(float64(len(alternates)))
	return nil
}

// Retire removes alternates through the store's delete path
func (w *Writer) Retire(ctx context.Context, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	if err := w.store.Delete(ctx, ids...); err != nil {
		return fmt.Errorf("failed to retire alternates: %w", err)
	}
	metrics.AlternatesRetired.WithLabelValues("deleted").Add(float64(len(ids)))
	return nil
}

// Versions returns the primary for id (id may name the primary or one of its
// alternates) and its alternates in ordering-index order.
func (w *Writer) Versions(ctx context.Context, id uuid.UUID) (*domain.Entry, []*domain.Entry, error) {
	e, err := w.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	primary := e
	if e.PrimaryVersionID != uuid.Nil {
		if primary, err = w.store.Get(ctx, e.PrimaryVersionID); err != nil {
			return nil, nil, err
		}
	}
	alts, err := w.store.Query(ctx, domain.Query{PrimaryID: primary.ID})
	if err != nil {
		return nil, nil, err
	}
	SortVersions(alts)
	return primary, alts, nil
}

// SortVersions orders alternates by ordering index, unknown last, then by id
func SortVersions(alts []*domain.Entry) {
	slices.SortStableFunc(alts, func(a, b *domain.Entry) int {
		if c := cmp.Compare(a.OrderIndex(), b.OrderIndex()); c != 0 {
			return c
		}
		return bytes.Compare(a.ID[:], b.ID[:])
	})
}

// VisibleTo filters alternates down to those user may see
func VisibleTo(alts []*domain.Entry, user uuid.UUID) []*domain.Entry {
	out := make([]*domain.Entry, 0, len(alts))
	for _, a := range alts {
		if a.VisibleTo(user) {
			out = append(out, a)
		}
	}
	return out
}
