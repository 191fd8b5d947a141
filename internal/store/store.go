package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/mmcdole/reelsync/internal/domain"
)

// Bucket names
var (
	bucketEntries   = []byte("entries")
	bucketProviders = []byte("by_provider")
	bucketParents   = []byte("by_parent")
	bucketPrimaries = []byte("by_primary")
)

var allBuckets = [][]byte{bucketEntries, bucketProviders, bucketParents, bucketPrimaries}

const uuidStringLen = 36

// entryRecord is the serialized form of a catalog entry
type entryRecord struct {
	ID                  uuid.UUID           `json:"id"`
	Kind                domain.ItemKind     `json:"kind"`
	Name                string              `json:"name"`
	ParentID            uuid.UUID           `json:"parent_id"`
	Path                string              `json:"path,omitempty"`
	Keys                map[string]string   `json:"keys,omitempty"`
	Tags                []string            `json:"tags,omitempty"`
	PrimaryVersionID    uuid.UUID           `json:"primary_version_id"`
	AlternateVersionIDs []uuid.UUID         `json:"alternate_version_ids,omitempty"`
	Year                int                 `json:"year,omitempty"`
	Overview            string              `json:"overview,omitempty"`
	IndexNumber         int                 `json:"index_number,omitempty"`
	ParentIndexNumber   int                 `json:"parent_index_number,omitempty"`
	Stream              *domain.StreamState `json:"stream,omitempty"`
}

func toRecord(e *domain.Entry) entryRecord {
	return entryRecord{
		ID:                  e.ID,
		Kind:                e.Kind,
		Name:                e.Name,
		ParentID:            e.ParentID,
		Path:                e.Path,
		Keys:                e.Keys,
		Tags:                e.Tags,
		PrimaryVersionID:    e.PrimaryVersionID,
		AlternateVersionIDs: e.AlternateVersionIDs,
		Year:                e.Year,
		Overview:            e.Overview,
		IndexNumber:         e.IndexNumber,
		ParentIndexNumber:   e.ParentIndexNumber,
		Stream:              e.Stream,
	}
}

func (r *entryRecord) entry() *domain.Entry {
	return &domain.Entry{
		ID:                  r.ID,
		Kind:                r.Kind,
		Name:                r.Name,
		ParentID:            r.ParentID,
		Path:                r.Path,
		Keys:                r.Keys,
		Tags:                r.Tags,
		PrimaryVersionID:    r.PrimaryVersionID,
		AlternateVersionIDs: r.AlternateVersionIDs,
		Year:                r.Year,
		Overview:            r.Overview,
		IndexNumber:         r.IndexNumber,
		ParentIndexNumber:   r.ParentIndexNumber,
		Stream:              r.Stream,
	}
}

// CatalogStore implements domain.Store using BoltDB.
//
// Entries live in one bucket keyed by id; three index buckets hold
// hierarchical keys ({provider}:{value}:{id}, {parent}:{id}, {primary}:{id})
// that are read with cursor prefix scans.
type CatalogStore struct {
	db *bolt.DB
	mu sync.RWMutex // Protects memory cache

	// In-memory cache for hot-path reads (promoted on access).
	// In memory-only mode it is the whole store.
	cache map[uuid.UUID][]byte
	epoch uint64 // bumped by every write; reads promote only when unchanged
}

var _ domain.Store = (*CatalogStore)(nil)

// NewCatalogStore opens the store under baseDir, in a subdirectory derived from addonURL.
// An empty baseDir gives a memory-only store.
func NewCatalogStore(baseDir, addonURL string) (*CatalogStore, error) {
	if baseDir == "" {
		// Memory-only mode (no persistence)
		return &CatalogStore{cache: make(map[uuid.UUID][]byte)}, nil
	}

	dir := baseDir
	if addonURL != "" {
		dir = filepath.Join(baseDir, hashAddonURL(addonURL))
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dir, "catalog.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &CatalogStore{db: db, cache: make(map[uuid.UUID][]byte)}, nil
}

func hashAddonURL(addonURL string) string {
	normalized := strings.TrimRight(strings.ToLower(addonURL), "/")
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:6])
}

// Path returns the database file, or "" in memory-only mode
func (s *CatalogStore) Path() string {
	if s.db == nil {
		return ""
	}
	return s.db.Path()
}

func (s *CatalogStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// === Index keys ===

func providerKey(name, value string, id uuid.UUID) []byte {
	return []byte(name + ":" + value + ":" + id.String())
}

func providerPrefix(name, value string) []byte {
	return []byte(name + ":" + value + ":")
}

func childKey(parent, id uuid.UUID) []byte {
	return []byte(parent.String() + ":" + id.String())
}

func childPrefix(parent uuid.UUID) []byte {
	return []byte(parent.String() + ":")
}

// indexKeys lists every index entry a record owns
func indexKeys(r *entryRecord) map[string][][]byte {
	keys := make(map[string][][]byte, 3)
	for name, value := range r.Keys {
		keys[string(bucketProviders)] = append(keys[string(bucketProviders)], providerKey(name, value, r.ID))
	}
	keys[string(bucketParents)] = [][]byte{childKey(r.ParentID, r.ID)}
	if r.PrimaryVersionID != uuid.Nil {
		keys[string(bucketPrimaries)] = [][]byte{childKey(r.PrimaryVersionID, r.ID)}
	}
	return keys
}

// === Reads ===

func decode(data []byte) (*domain.Entry, error) {
	var r entryRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("corrupt catalog record: %w", err)
	}
	return r.entry(), nil
}

// load returns raw record bytes, from memory when possible
func (s *CatalogStore) load(id uuid.UUID) ([]byte, bool) {
	s.mu.RLock()
	if data, ok := s.cache[id]; ok {
		s.mu.RUnlock()
		return data, true
	}
	epoch := s.epoch
	s.mu.RUnlock()

	if s.db == nil {
		return nil, false
	}

	var data []byte
	s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketEntries).Get(id[:]); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if data == nil {
		return nil, false
	}

	// Promote to memory cache
	s.mu.Lock()
	if s.epoch == epoch {
		s.cache[id] = data
	}
	s.mu.Unlock()
	return data, true
}

// Get returns a fresh copy of the entry
func (s *CatalogStore) Get(ctx context.Context, id uuid.UUID) (*domain.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, ok := s.load(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrEntryNotFound, id)
	}
	return decode(data)
}

// Query returns fresh copies of the matching entries in key order
func (s *CatalogStore) Query(ctx context.Context, q domain.Query) ([]*domain.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.db == nil {
		return s.queryMemory(q)
	}

	ids, err := s.candidateIDs(q)
	if err != nil {
		return nil, err
	}

	var out []*domain.Entry
	for _, id := range ids {
		data, ok := s.load(id)
		if !ok {
			continue
		}
		e, err := decode(data)
		if err != nil {
			return nil, err
		}
		if q.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// candidateIDs narrows a query with the most selective index
func (s *CatalogStore) candidateIDs(q domain.Query) ([]uuid.UUID, error) {
	var bucket, prefix []byte
	switch {
	case q.PrimaryID != uuid.Nil:
		bucket, prefix = bucketPrimaries, childPrefix(q.PrimaryID)
	case q.ProviderName != "":
		bucket, prefix = bucketProviders, providerPrefix(q.ProviderName, q.ProviderValue)
	case q.ParentID != uuid.Nil:
		bucket, prefix = bucketParents, childPrefix(q.ParentID)
	}

	var ids []uuid.UUID
	err := s.db.View(func(tx *bolt.Tx) error {
		if bucket == nil {
			return tx.Bucket(bucketEntries).ForEach(func(k, _ []byte) error {
				id, err := uuid.FromBytes(k)
				if err != nil {
					return err
				}
				ids = append(ids, id)
				return nil
			})
		}
		c := tx.Bucket(bucket).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			// Provider values may contain ':' ("tt0944947:1:2"), so longer suffixes belong to other values
			suffix := k[len(prefix):]
			if len(suffix) != uuidStringLen {
				continue
			}
			id, err := uuid.ParseBytes(suffix)
			if err != nil {
				return fmt.Errorf("corrupt index key %q: %w", k, err)
			}
			ids = append(ids, id)
		}
		return nil
	})
	return ids, err
}

func (s *CatalogStore) queryMemory(q domain.Query) ([]*domain.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Entry
	for _, data := range s.cache {
		e, err := decode(data)
		if err != nil {
			return nil, err
		}
		if q.Matches(e) {
			out = append(out, e)
		}
	}
	// Same order as the bolt indexes
	slices.SortFunc(out, func(a, b *domain.Entry) int {
		return bytes.Compare(a.ID[:], b.ID[:])
	})
	return out, nil
}

// === Writes ===

// Upsert writes all entries in one transaction and refreshes their index keys
func (s *CatalogStore) Upsert(ctx context.Context, entries ...*domain.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	type pending struct {
		rec  entryRecord
		data []byte
	}
	encoded := make(map[uuid.UUID]pending, len(entries))
	order := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		if e == nil || e.ID == uuid.Nil {
			return errors.New("cannot store entry without id")
		}
		rec := toRecord(e)
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if _, seen := encoded[e.ID]; !seen {
			order = append(order, e.ID)
		}
		encoded[e.ID] = pending{rec: rec, data: data}
	}

	if s.db != nil {
		err := s.db.Update(func(tx *bolt.Tx) error {
			entriesB := tx.Bucket(bucketEntries)
			for _, id := range order {
				if old := entriesB.Get(id[:]); old != nil {
					if err := removeIndexes(tx, old); err != nil {
						return err
					}
				}
				p := encoded[id]
				if err := entriesB.Put(id[:], p.data); err != nil {
					return err
				}
				if err := addIndexes(tx, &p.rec); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to write catalog entries: %w", err)
		}
	}

	s.mu.Lock()
	for id, p := range encoded {
		s.cache[id] = p.data
	}
	s.epoch++
	s.mu.Unlock()
	return nil
}

// Delete removes entries and their index keys. Unknown ids are ignored.
func (s *CatalogStore) Delete(ctx context.Context, ids ...uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db != nil {
		err := s.db.Update(func(tx *bolt.Tx) error {
			entriesB := tx.Bucket(bucketEntries)
			for _, id := range ids {
				old := entriesB.Get(id[:])
				if old == nil {
					continue
				}
				if err := removeIndexes(tx, old); err != nil {
					return err
				}
				if err := entriesB.Delete(id[:]); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to delete catalog entries: %w", err)
		}
	}

	s.mu.Lock()
	for _, id := range ids {
		delete(s.cache, id)
	}
	s.epoch++
	s.mu.Unlock()
	return nil
}

func addIndexes(tx *bolt.Tx, r *entryRecord) error {
	for bucket, keys := range indexKeys(r) {
		b := tx.Bucket([]byte(bucket))
		for _, k := range keys {
			if err := b.Put(k, []byte{}); err != nil {
				return err
			}
		}
	}
	return nil
}

func removeIndexes(tx *bolt.Tx, data []byte) error {
	var r entryRecord
	if err := json.Unmarshal(data, &r); err != nil {
		// Unreadable record: nothing reliable to unindex
		return nil
	}
	for bucket, keys := range indexKeys(&r) {
		b := tx.Bucket([]byte(bucket))
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
	}
	return nil
}

// InvalidateCache drops the promoted read cache. No-op in memory-only mode.
func (s *CatalogStore) InvalidateCache() {
	if s.db == nil {
		return
	}
	s.mu.Lock()
	s.cache = make(map[uuid.UUID][]byte)
	s.epoch++
	s.mu.Unlock()
}
