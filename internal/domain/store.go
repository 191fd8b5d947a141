package domain

import (
	"context"

	"github.com/google/uuid"
)

// Store is the narrow contract of the shared catalog store.
// Other subsystems read it concurrently; writes are whole-entry upserts.
type Store interface {
	// Get returns a copy of the entry or ErrEntryNotFound
	Get(ctx context.Context, id uuid.UUID) (*Entry, error)

	// Query returns copies of every entry matching all set fields of q
	Query(ctx context.Context, q Query) ([]*Entry, error)

	// Upsert writes all entries in one batch
	Upsert(ctx context.Context, entries ...*Entry) error

	// Delete removes entries by id; unknown ids are ignored
	Delete(ctx context.Context, ids ...uuid.UUID) error
}

// Query selects entries. Zero-valued fields are not filtered on.
type Query struct {
	ParentID      uuid.UUID // Direct children of this entry
	ProviderName  string    // Provider key name, requires ProviderValue
	ProviderValue string
	Tag           string
	Kind          *ItemKind
	PrimaryID     uuid.UUID // Alternates of this primary
}

// ByProvider builds a query for the given provider key
func ByProvider(name, value string) Query {
	return Query{ProviderName: name, ProviderValue: value}
}

// ByParent builds a query for the direct children of parentID
func ByParent(parentID uuid.UUID) Query {
	return Query{ParentID: parentID}
}

// KindPtr is a helper for Query.Kind
func KindPtr(k ItemKind) *ItemKind {
	return &k
}

// Matches reports whether e satisfies q
func (q Query) Matches(e *Entry) bool {
	if q.ParentID != uuid.Nil && e.ParentID != q.ParentID {
		return false
	}
	if q.ProviderName != "" && e.ProviderID(q.ProviderName) != q.ProviderValue {
		return false
	}
	if q.Tag != "" && !e.HasTag(q.Tag) {
		return false
	}
	if q.Kind != nil && e.Kind != *q.Kind {
		return false
	}
	if q.PrimaryID != uuid.Nil && e.PrimaryVersionID != q.PrimaryID {
		return false
	}
	return true
}
