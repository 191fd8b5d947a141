package library

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mmcdole/reelsync/internal/catalog"
	"github.com/mmcdole/reelsync/internal/domain"
	"github.com/mmcdole/reelsync/internal/identity"
)

// Queries provides synchronous, store-only reads.
type Queries struct {
	store  domain.Store
	writer *catalog.Writer
}

// NewQueries creates a new Queries instance.
func NewQueries(store domain.Store, writer *catalog.Writer) *Queries {
	return &Queries{store: store, writer: writer}
}

// Titles returns the primaries in the library folder of kind
func (q *Queries) Titles(ctx context.Context, kind identity.MediaKind) ([]*domain.Entry, error) {
	entries, err := q.store.Query(ctx, domain.ByParent(catalog.RootID(kind)))
	if err != nil {
		return nil, err
	}
	out := entries[:0]
	for _, e := range entries {
		if !e.IsAlternate() {
			out = append(out, e)
		}
	}
	return out, nil
}

// Lookup returns the catalog entry of key
func (q *Queries) Lookup(ctx context.Context, key identity.TitleKey) (*domain.Entry, error) {
	e, err := q.store.Get(ctx, catalog.TitleID(key))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return e, nil
}

// Versions returns a title's primary and the alternates userID may see.
// uuid.Nil as userID returns every alternate.
func (q *Queries) Versions(ctx context.Context, titleID, userID uuid.UUID) (*domain.Entry, []*domain.Entry, error) {
	primary, alts, err := q.writer.Versions(ctx, titleID)
	if err != nil {
		return nil, nil, err
	}
	if userID != uuid.Nil {
		alts = catalog.VisibleTo(alts, userID)
	}
	return primary, alts, nil
}
