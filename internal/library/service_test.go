package library

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/mmcdole/reelsync/internal/addon"
	"github.com/mmcdole/reelsync/internal/catalog"
	"github.com/mmcdole/reelsync/internal/coordinator"
	"github.com/mmcdole/reelsync/internal/domain"
	"github.com/mmcdole/reelsync/internal/identity"
	"github.com/mmcdole/reelsync/internal/reconcile"
	"github.com/mmcdole/reelsync/internal/store"
)

var addonRoutes = map[string]string{
	"/catalog/movie/top.json": `{"metas": [
		{"id": "tt1", "type": "movie", "name": "One", "releaseInfo": "2001"},
		{"id": "tt2", "type": "movie", "name": "Two"}
	]}`,
	"/catalog/movie/top/skip=2.json": `{"metas": [
		{"id": "tt2", "type": "movie", "name": "Two"},
		{"id": "tt3", "type": "movie", "name": "Three"}
	]}`,
	"/meta/movie/tt1.json": `{"meta": {"id": "tt1", "type": "movie", "name": "One", "year": 2001}}`,
	"/stream/movie/tt1.json": `{"streams": [
		{"name": "A", "title": "one.1080p.mkv", "url": "https://cdn.example/one.1080p.mkv"},
		{"name": "B", "title": "one.720p.mkv", "url": "https://cdn.example/one.720p.mkv"}
	]}`,
	"/stream/movie/tt2.json": `{"streams": [{"name": "A", "url": "https://cdn.example/two.mkv"}]}`,
	"/meta/series/tt0944947.json": `{"meta": {"id": "tt0944947", "type": "series", "name": "Game of Thrones", "videos": [
		{"id": "tt0944947:1:1", "title": "Winter Is Coming", "season": 1, "episode": 1},
		{"id": "tt0944947:1:2", "title": "The Kingsroad", "season": 1, "episode": 2}
	]}}`,
	"/stream/series/tt0944947:1:1.json": `{"streams": [
		{"name": "S", "infoHash": "0123456789ABCDEF0123456789ABCDEF01234567", "fileIdx": 0, "behaviorHints": {"filename": "got.s01e01.mkv"}}
	]}`,
}

func newAddonServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := addonRoutes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestService(t *testing.T, st domain.Store) *Service {
	t.Helper()
	client := addon.NewClient(newAddonServer(t).URL)
	coord := coordinator.New()
	w := catalog.NewWriter(st, catalog.Paths{}, nil)
	im := catalog.NewImporter(st, w, coord, client, nil)
	rec := reconcile.New(st, client, w, reconcile.WithCoordinator(coord), reconcile.WithFreshness(0, nil))
	return NewService(client, st, w, im, rec, WithParallelism(2))
}

func memoryStore(t *testing.T) domain.Store {
	t.Helper()
	st, err := store.NewCatalogStore("", "")
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func TestImportCatalogWithSync(t *testing.T) {
	st := memoryStore(t)
	svc := newTestService(t, st)
	ctx := context.Background()

	var mu sync.Mutex
	var last [2]int
	calls := 0
	progress := func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if done > last[0] {
			last = [2]int{done, total}
		}
	}

	res, err := svc.ImportCatalog(ctx, ImportOptions{CatalogID: "top", Kind: identity.KindMovie, Sync: true}, progress)
	if err != nil {
		t.Fatalf("ImportCatalog failed: %v", err)
	}
	if res.Listed != 3 || res.Created != 3 || res.Synced != 3 || res.Sources != 3 || len(res.Failed) != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if calls != 3 || last != [2]int{3, 3} {
		t.Errorf("progress calls = %d, last = %v", calls, last)
	}

	titles, err := NewQueries(st, catalog.NewWriter(st, catalog.Paths{}, nil)).Titles(ctx, identity.KindMovie)
	if err != nil {
		t.Fatal(err)
	}
	if len(titles) != 3 {
		t.Errorf("library holds %d titles, want 3", len(titles))
	}

	again, err := svc.ImportCatalog(ctx, ImportOptions{CatalogID: "top", Kind: identity.KindMovie}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if again.Created != 0 || again.Synced != 0 {
		t.Errorf("re-import created %d, synced %d", again.Created, again.Synced)
	}
}

func TestImportCatalogLimit(t *testing.T) {
	svc := newTestService(t, memoryStore(t))
	res, err := svc.ImportCatalog(context.Background(), ImportOptions{CatalogID: "top", Kind: identity.KindMovie, Limit: 2}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Listed != 2 || res.Created != 2 {
		t.Errorf("unexpected result %+v", res)
	}
}

// failingStore rejects writes of one title
type failingStore struct {
	domain.Store
	externalID string
}

func (s *failingStore) Upsert(ctx context.Context, entries ...*domain.Entry) error {
	for _, e := range entries {
		if e.ProviderID(domain.ProviderStremio) == s.externalID {
			return errors.New("disk full")
		}
	}
	return s.Store.Upsert(ctx, entries...)
}

func TestImportIsolatesFailures(t *testing.T) {
	svc := newTestService(t, &failingStore{Store: memoryStore(t), externalID: "tt2"})
	res, err := svc.ImportCatalog(context.Background(), ImportOptions{CatalogID: "top", Kind: identity.KindMovie}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Created != 2 || len(res.Failed) != 1 || res.Failed["tt2"] == nil {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestReconcileKeyImportsMovie(t *testing.T) {
	st := memoryStore(t)
	svc := newTestService(t, st)
	key, _ := identity.ParseCanonical("stremio://movie/tt1")

	id, n, err := svc.ReconcileKey(context.Background(), key, uuid.Nil)
	if err != nil {
		t.Fatalf("ReconcileKey failed: %v", err)
	}
	if n != 2 || id != catalog.TitleID(key) {
		t.Errorf("ReconcileKey = %s, %d", id, n)
	}
	primary, err := st.Get(context.Background(), id)
	if err != nil || primary.Name != "One" || len(primary.AlternateVersionIDs) != 2 {
		t.Errorf("primary = %+v, %v", primary, err)
	}
}

func TestReconcileKeyImportsSeries(t *testing.T) {
	st := memoryStore(t)
	svc := newTestService(t, st)
	ctx := context.Background()
	key := identity.NewKey(identity.KindSeries, "tt0944947:1:1")

	id, n, err := svc.ReconcileKey(ctx, key, uuid.Nil)
	if err != nil {
		t.Fatalf("ReconcileKey failed: %v", err)
	}
	if n != 1 {
		t.Errorf("sources = %d, want 1", n)
	}
	episode, err := st.Get(ctx, id)
	if err != nil || episode.Kind != domain.KindEpisode || episode.EpisodeCode() != "S01E01" {
		t.Fatalf("episode = %+v, %v", episode, err)
	}

	q := NewQueries(st, catalog.NewWriter(st, catalog.Paths{}, nil))
	_, alts, err := q.Versions(ctx, id, uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if len(alts) != 0 {
		t.Errorf("another user sees %d alternates", len(alts))
	}
	_, alts, _ = q.Versions(ctx, id, uuid.Nil)
	if len(alts) != 1 || alts[0].Stream.InfoHash != "0123456789abcdef0123456789abcdef01234567" {
		t.Errorf("alternates = %+v", alts)
	}

	// A second episode of a known series needs no import
	other := identity.NewKey(identity.KindSeries, "tt0944947:1:2")
	if _, n, err := svc.ReconcileKey(ctx, other, uuid.Nil); err != nil || n != 0 {
		t.Errorf("ReconcileKey(other) = %d, %v", n, err)
	}
}

func TestReconcileKeyErrors(t *testing.T) {
	svc := newTestService(t, memoryStore(t))
	ctx := context.Background()

	tests := []struct {
		name string
		key  identity.TitleKey
		want error
	}{
		{"unknown movie", identity.NewKey(identity.KindMovie, "tt404"), ErrUnknownTitle},
		{"unknown episode", identity.NewKey(identity.KindSeries, "tt0944947:9:9"), ErrUnknownTitle},
		{"series", identity.NewKey(identity.KindSeries, "tt0944947"), domain.ErrNotPlayable},
		{"empty", identity.TitleKey{Kind: identity.KindMovie}, identity.ErrInvalidKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := svc.ReconcileKey(ctx, tt.key, uuid.Nil); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFetchAllStopsOnRepeatedPage(t *testing.T) {
	calls := 0
	items, err := fetchAll(context.Background(),
		func(ctx context.Context, skip int) []string {
			calls++
			return []string{"a", "b"}
		},
		func(s string) string { return s },
		0,
	)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || calls != 2 {
		t.Errorf("got %v after %d calls", items, calls)
	}
}
