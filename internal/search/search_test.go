package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mmcdole/reelsync/internal/addon"
	"github.com/mmcdole/reelsync/internal/cache"
	"github.com/mmcdole/reelsync/internal/catalog"
	"github.com/mmcdole/reelsync/internal/coordinator"
	"github.com/mmcdole/reelsync/internal/identity"
	"github.com/mmcdole/reelsync/internal/library"
	"github.com/mmcdole/reelsync/internal/store"
)

type fakeRemote struct {
	manifest *addon.Manifest
	pages    map[string][]addon.Meta // catalog type/id -> results
	searches []string
}

func (f *fakeRemote) GetManifest(ctx context.Context, force bool) (*addon.Manifest, error) {
	if f.manifest == nil {
		return nil, addon.ErrTransport
	}
	return f.manifest, nil
}

func (f *fakeRemote) GetCatalogPage(ctx context.Context, catalogID string, kind identity.MediaKind, search string, skip int) []addon.Meta {
	f.searches = append(f.searches, string(kind)+"/"+catalogID+"?"+search)
	return f.pages[string(kind)+"/"+catalogID]
}

type fixture struct {
	svc    *Service
	remote *fakeRemote
	clock  *cache.ManualClock
	im     *catalog.Importer
	writer *catalog.Writer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.NewCatalogStore("", "")
	if err != nil {
		t.Fatal(err)
	}
	w := catalog.NewWriter(st, catalog.Paths{}, nil)
	im := catalog.NewImporter(st, w, coordinator.New(), nil, nil)
	remote := &fakeRemote{
		manifest: &addon.Manifest{Catalogs: []addon.Catalog{
			{Type: "movie", ID: "top", Searchable: true},
			{Type: "movie", ID: "popular"},
			{Type: "series", ID: "top", Searchable: true},
		}},
		pages: map[string][]addon.Meta{
			"movie/top": {
				{ID: "tt0234215", Kind: identity.KindMovie, Name: "The Matrix Reloaded"},
				{ID: "tt0133093", Kind: identity.KindMovie, Name: "The Matrix"},
				{ID: "", Kind: identity.KindMovie, Name: "broken"},
			},
			"series/top": {
				{ID: "tt0133093", Kind: identity.KindSeries, Name: "Matrix Stories"},
			},
		},
	}
	clock := cache.NewManualClock(time.Unix(0, 0))
	svc := NewService(library.NewQueries(st, w), remote, w, im,
		WithResultCache(cache.NewTTL[uuid.UUID, addon.Meta](time.Minute, clock)))
	return &fixture{svc: svc, remote: remote, clock: clock, im: im, writer: w}
}

func TestSearchRemoteRanksAndMerges(t *testing.T) {
	f := newFixture(t)
	results, err := f.svc.SearchRemote(context.Background(), "the matrix")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Meta.Name != "The Matrix" || results[0].Score != 0 {
		t.Errorf("best result = %+v", results[0])
	}
	if results[0].ID != identity.Hash(identity.NewKey(identity.KindMovie, "tt0133093")) {
		t.Error("result id is not the hashed title key")
	}
	if results[0].ID == results[2].ID {
		t.Error("movie and series with the same external id share a result id")
	}
	if len(f.remote.searches) != 2 {
		t.Errorf("queried %v, want only searchable catalogs", f.remote.searches)
	}
}

func TestSearchRemoteManifestFailure(t *testing.T) {
	f := newFixture(t)
	f.remote.manifest = nil
	if _, err := f.svc.SearchRemote(context.Background(), "matrix"); !errors.Is(err, addon.ErrTransport) {
		t.Errorf("error = %v", err)
	}
}

func TestInsertResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	results, _ := f.svc.SearchRemote(ctx, "matrix", identity.KindMovie)
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}

	entry, created, err := f.svc.Insert(ctx, results[0].ID)
	if err != nil || !created {
		t.Fatalf("Insert = %v, %v", created, err)
	}
	if entry.ID != catalog.TitleID(results[0].Key) {
		t.Errorf("inserted entry id %s", entry.ID)
	}
	if _, created, _ := f.svc.Insert(ctx, results[0].ID); created {
		t.Error("second insert created a duplicate")
	}

	f.clock.Advance(2 * time.Minute)
	if _, _, err := f.svc.Insert(ctx, results[1].ID); !errors.Is(err, ErrResultExpired) {
		t.Errorf("expired insert error = %v", err)
	}
}

func TestFilterLocal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	movies, _ := f.writer.EnsureRoot(ctx, identity.KindMovie)
	series, _ := f.writer.EnsureRoot(ctx, identity.KindSeries)
	for _, m := range []addon.Meta{
		{ID: "tt0133093", Kind: identity.KindMovie, Name: "The Matrix", Year: 1999},
		{ID: "tt1375666", Kind: identity.KindMovie, Name: "Inception", Year: 2010},
	} {
		if _, _, err := f.im.InsertIfMissing(ctx, movies, &m); err != nil {
			t.Fatal(err)
		}
	}
	if _, _, err := f.im.InsertIfMissing(ctx, series, &addon.Meta{ID: "tt0475784", Kind: identity.KindSeries, Name: "Westworld"}); err != nil {
		t.Fatal(err)
	}

	results, err := f.svc.FilterLocal(ctx, "matrx")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Entry.Name != "The Matrix" || len(results[0].MatchedIndexes) != 5 {
		t.Errorf("results = %+v", results)
	}

	if results, _ := f.svc.FilterLocal(ctx, "west", identity.KindMovie); len(results) != 0 {
		t.Errorf("kind filter leaked %d results", len(results))
	}
	if results, _ := f.svc.FilterLocal(ctx, "  "); results != nil {
		t.Error("blank query matched")
	}
}
