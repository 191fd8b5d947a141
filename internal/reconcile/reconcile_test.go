package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mmcdole/reelsync/internal/addon"
	"github.com/mmcdole/reelsync/internal/cache"
	"github.com/mmcdole/reelsync/internal/candidate"
	"github.com/mmcdole/reelsync/internal/catalog"
	"github.com/mmcdole/reelsync/internal/coordinator"
	"github.com/mmcdole/reelsync/internal/domain"
	"github.com/mmcdole/reelsync/internal/identity"
	"github.com/mmcdole/reelsync/internal/store"
)

type fakeStreams struct {
	mu      sync.Mutex
	streams []addon.Stream
	calls   atomic.Int32
	gate    chan struct{}
}

func (f *fakeStreams) set(streams ...addon.Stream) {
	f.mu.Lock()
	f.streams = streams
	f.mu.Unlock()
}

func (f *fakeStreams) GetStreams(ctx context.Context, key identity.TitleKey) []addon.Stream {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]addon.Stream{}, f.streams...)
}

type fixture struct {
	store   domain.Store
	writer  *catalog.Writer
	streams *fakeStreams
	coord   *coordinator.Coordinator
	primary *domain.Entry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.NewCatalogStore("", "")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	w := catalog.NewWriter(s, catalog.Paths{}, nil)
	coord := coordinator.New()
	root, err := w.EnsureRoot(ctx, identity.KindMovie)
	if err != nil {
		t.Fatal(err)
	}
	im := catalog.NewImporter(s, w, coord, nil, nil)
	primary, _, err := im.InsertIfMissing(ctx, root, &addon.Meta{ID: "tt1375666", Kind: identity.KindMovie, Name: "Inception", Year: 2010})
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{store: s, writer: w, streams: &fakeStreams{}, coord: coord, primary: primary}
}

func (f *fixture) reconciler(opts ...Option) *Reconciler {
	opts = append([]Option{WithCoordinator(f.coord), WithFreshness(0, nil)}, opts...)
	return New(f.store, f.streams, f.writer, opts...)
}

func (f *fixture) alternates(t *testing.T) []*domain.Entry {
	t.Helper()
	_, alts, err := f.writer.Versions(context.Background(), f.primary.ID)
	if err != nil {
		t.Fatal(err)
	}
	return alts
}

func web(name, file string) addon.Stream {
	return addon.Stream{Name: name, Title: file, Filename: file, URL: "https://cdn.example/" + file}
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := newFixture(t)
	r := f.reconciler()
	ctx := context.Background()
	f.streams.set(web("1080p", "inception.1080p.mkv"), web("4K", "inception.2160p.mkv"))

	n, err := r.Reconcile(ctx, f.primary.ID, uuid.Nil)
	if err != nil || n != 2 {
		t.Fatalf("first Reconcile = %d, %v", n, err)
	}
	first := f.alternates(t)

	n, err = r.Reconcile(ctx, f.primary.ID, uuid.Nil)
	if err != nil || n != 2 {
		t.Fatalf("second Reconcile = %d, %v", n, err)
	}
	second := f.alternates(t)

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("alternate counts %d then %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].Stream.Index != second[i].Stream.Index {
			t.Errorf("alternate %d changed between syncs", i)
		}
		if len(second[i].Stream.Users) != 1 {
			t.Errorf("users duplicated: %v", second[i].Stream.Users)
		}
	}
}

func TestSinglePrimaryInvariant(t *testing.T) {
	f := newFixture(t)
	r := f.reconciler()
	ctx := context.Background()
	f.streams.set(web("a", "a.mkv"), web("b", "b.mkv"), web("c", "c.mkv"))
	if _, err := r.Reconcile(ctx, f.primary.ID, uuid.Nil); err != nil {
		t.Fatal(err)
	}

	all, err := f.store.Query(ctx, domain.ByProvider(domain.ProviderStremio, "tt1375666"))
	if err != nil {
		t.Fatal(err)
	}
	primaries := 0
	for _, e := range all {
		if !e.IsAlternate() {
			primaries++
			if len(e.AlternateVersionIDs) != 3 {
				t.Errorf("primary lists %d alternates, want 3", len(e.AlternateVersionIDs))
			}
			continue
		}
		if e.PrimaryVersionID != f.primary.ID || e.Kind != f.primary.Kind || e.ParentID != f.primary.ParentID {
			t.Errorf("alternate %s not linked to the primary", e.Name)
		}
		if len(e.AlternateVersionIDs) != 0 {
			t.Error("alternate owns an alternate list")
		}
	}
	if primaries != 1 {
		t.Errorf("found %d primaries, want 1", primaries)
	}
}

func TestDuplicateCandidates(t *testing.T) {
	f := newFixture(t)
	r := f.reconciler()
	hd := web("1080p-A", "a.mkv")
	sd := web("720p-B", "b.mkv")
	again := web("1080p-A", "A.MKV")
	f.streams.set(hd, sd, again)

	n, err := r.Reconcile(context.Background(), f.primary.ID, uuid.Nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("Reconcile = %d, want 2", n)
	}
	alts := f.alternates(t)
	if len(alts) != 2 {
		t.Fatalf("got %d alternates, want 2", len(alts))
	}
	if alts[0].Name != "720p-B - b.mkv" || alts[0].Stream.Index != 1 {
		t.Errorf("first = %q index %d, want 720p-B at 1", alts[0].Name, alts[0].Stream.Index)
	}
	if alts[1].Stream.Index != 2 || alts[1].ID != Fingerprint("tt1375666", hd) {
		t.Errorf("second = %q index %d, want 1080p-A at 2", alts[1].Name, alts[1].Stream.Index)
	}
	if alts[1].Name != "1080p-A - A.MKV" || alts[1].Path != again.URL {
		t.Errorf("duplicate did not take the last description: %q %q", alts[1].Name, alts[1].Path)
	}
}

func TestInterleavedUsersKeepDistinctIndexes(t *testing.T) {
	f := newFixture(t)
	r := f.reconciler()
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	x, y, z := web("x", "x.mkv"), web("y", "y.mkv"), web("z", "z.mkv")

	f.streams.set(x, y)
	if _, err := r.Reconcile(ctx, f.primary.ID, alice); err != nil {
		t.Fatal(err)
	}
	f.streams.set(z, x)
	if _, err := r.Reconcile(ctx, f.primary.ID, bob); err != nil {
		t.Fatal(err)
	}

	alts := f.alternates(t)
	want := []string{"z - z.mkv", "x - x.mkv", "y - y.mkv"}
	if len(alts) != len(want) {
		t.Fatalf("got %d alternates, want %d", len(alts), len(want))
	}
	for i, alt := range alts {
		if alt.Name != want[i] || alt.Stream.Index != i+1 {
			t.Errorf("alternate %d = %q index %d, want %q index %d", i, alt.Name, alt.Stream.Index, want[i], i+1)
		}
	}
	if !alts[2].VisibleTo(alice) || alts[2].VisibleTo(bob) {
		t.Errorf("y users = %v", alts[2].Stream.Users)
	}
}

func TestStaleRetirement(t *testing.T) {
	f := newFixture(t)
	r := f.reconciler()
	ctx := context.Background()
	user := uuid.New()
	a, b := web("a", "a.mkv"), web("b", "b.mkv")

	f.streams.set(a, b)
	if _, err := r.Reconcile(ctx, f.primary.ID, user); err != nil {
		t.Fatal(err)
	}
	f.streams.set(a)
	n, err := r.Reconcile(ctx, f.primary.ID, user)
	if err != nil || n != 1 {
		t.Fatalf("Reconcile = %d, %v", n, err)
	}

	alts := f.alternates(t)
	if len(alts) != 1 || alts[0].Name != "a - a.mkv" {
		t.Fatalf("alternates after retirement: %d", len(alts))
	}
	if _, err := f.store.Get(ctx, Fingerprint("tt1375666", b)); !errors.Is(err, domain.ErrEntryNotFound) {
		t.Errorf("retired alternate still stored: %v", err)
	}
	primary, _ := f.store.Get(ctx, f.primary.ID)
	if len(primary.AlternateVersionIDs) != 1 {
		t.Errorf("primary still lists %d alternates", len(primary.AlternateVersionIDs))
	}
}

func TestVisibilityIsPerUser(t *testing.T) {
	f := newFixture(t)
	r := f.reconciler()
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	a, b := web("a", "a.mkv"), web("b", "b.mkv")

	f.streams.set(a, b)
	for _, u := range []uuid.UUID{alice, bob} {
		if _, err := r.Reconcile(ctx, f.primary.ID, u); err != nil {
			t.Fatal(err)
		}
	}

	// Bob no longer sees b; Alice's view must not change
	f.streams.set(a)
	if _, err := r.Reconcile(ctx, f.primary.ID, bob); err != nil {
		t.Fatal(err)
	}
	bAlt, err := f.store.Get(ctx, Fingerprint("tt1375666", b))
	if err != nil {
		t.Fatalf("b was deleted while Alice still sees it: %v", err)
	}
	if !bAlt.VisibleTo(alice) || bAlt.VisibleTo(bob) {
		t.Errorf("b users = %v", bAlt.Stream.Users)
	}
	if got := catalog.VisibleTo(f.alternates(t), bob); len(got) != 1 {
		t.Errorf("bob sees %d alternates, want 1", len(got))
	}
	if got := catalog.VisibleTo(f.alternates(t), alice); len(got) != 2 {
		t.Errorf("alice sees %d alternates, want 2", len(got))
	}
}

func TestFreshnessMemo(t *testing.T) {
	f := newFixture(t)
	clock := cache.NewManualClock(time.Unix(0, 0))
	r := f.reconciler(WithFreshness(time.Minute, clock))
	ctx := context.Background()
	f.streams.set(web("a", "a.mkv"))

	for i := 0; i < 3; i++ {
		if n, err := r.Reconcile(ctx, f.primary.ID, uuid.Nil); err != nil || n != 1 {
			t.Fatalf("Reconcile = %d, %v", n, err)
		}
	}
	if got := f.streams.calls.Load(); got != 1 {
		t.Errorf("fresh title fetched %d times, want 1", got)
	}

	clock.Advance(2 * time.Minute)
	r.Reconcile(ctx, f.primary.ID, uuid.Nil)
	if got := f.streams.calls.Load(); got != 2 {
		t.Errorf("expired memo fetched %d times, want 2", got)
	}

	r.Forget(f.primary.ID, uuid.Nil)
	r.Reconcile(ctx, f.primary.ID, uuid.Nil)
	if got := f.streams.calls.Load(); got != 3 {
		t.Errorf("forgotten memo fetched %d times, want 3", got)
	}
}

func TestNoSourcesIsSoft(t *testing.T) {
	f := newFixture(t)
	r := f.reconciler(WithFreshness(time.Hour, cache.NewManualClock(time.Unix(0, 0))))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		n, err := r.Reconcile(ctx, f.primary.ID, uuid.Nil)
		if err != nil || n != 0 {
			t.Fatalf("Reconcile = %d, %v", n, err)
		}
	}
	if got := f.streams.calls.Load(); got != 2 {
		t.Errorf("empty result was memoized: %d fetches", got)
	}
	if alts := f.alternates(t); len(alts) != 0 {
		t.Errorf("got %d alternates", len(alts))
	}
}

func TestRejectedCandidatesAreDropped(t *testing.T) {
	f := newFixture(t)
	r := f.reconciler()
	f.streams.set(
		addon.Stream{Name: "swarm", InfoHash: "0123456789abcdef0123456789abcdef01234567"},
		addon.Stream{Name: "broken", URL: "ftp://nowhere"},
		web("ok", "ok.mkv"),
	)
	n, err := r.Reconcile(context.Background(), f.primary.ID, uuid.Nil)
	if err != nil || n != 2 {
		t.Fatalf("Reconcile = %d, %v", n, err)
	}

	f2 := newFixture(t)
	f2.streams = f.streams
	r2 := f2.reconciler(WithPolicy(candidate.Policy{DisableSwarm: true}))
	if n, _ := r2.Reconcile(context.Background(), f2.primary.ID, uuid.Nil); n != 1 {
		t.Errorf("with swarm disabled Reconcile = %d, want 1", n)
	}
}

func TestReconcileValidation(t *testing.T) {
	f := newFixture(t)
	r := f.reconciler()
	ctx := context.Background()

	series := &domain.Entry{ID: uuid.New(), Kind: domain.KindSeries}
	series.SetProviderID(domain.ProviderStremio, "tt0903747")
	alt := &domain.Entry{ID: uuid.New(), Kind: domain.KindMovie, PrimaryVersionID: f.primary.ID}
	alt.SetProviderID(domain.ProviderStremio, "tt1375666")
	bare := &domain.Entry{ID: uuid.New(), Kind: domain.KindMovie}
	if err := f.store.Upsert(ctx, series, alt, bare); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		id   uuid.UUID
		want error
	}{
		{"missing", uuid.New(), domain.ErrEntryNotFound},
		{"series", series.ID, domain.ErrNotPlayable},
		{"alternate", alt.ID, domain.ErrNotPrimary},
		{"no provider key", bare.ID, domain.ErrNoProviderKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Reconcile(ctx, tt.id, uuid.Nil); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
	if f.streams.calls.Load() != 0 {
		t.Error("invalid titles reached the network")
	}
}

func TestConcurrentTriggersCollapse(t *testing.T) {
	f := newFixture(t)
	f.streams.gate = make(chan struct{})
	f.streams.set(web("a", "a.mkv"))
	r := f.reconciler()
	const callers = 8

	var wg sync.WaitGroup
	results := make([]int, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, err := r.Reconcile(context.Background(), f.primary.ID, uuid.Nil)
			if err != nil {
				t.Error(err)
			}
			results[i] = n
		}(i)
	}

	flightKey := "reconcile:" + f.primary.ID.String() + ":" + uuid.Nil.String()
	deadline := time.Now().Add(5 * time.Second)
	for f.coord.Waiters(flightKey) < callers {
		if time.Now().After(deadline) {
			t.Fatal("callers never joined the flight")
		}
		time.Sleep(time.Millisecond)
	}
	close(f.streams.gate)
	wg.Wait()

	if got := f.streams.calls.Load(); got != 1 {
		t.Errorf("streams fetched %d times, want 1", got)
	}
	for i, n := range results {
		if n != 1 {
			t.Errorf("caller %d got %d", i, n)
		}
	}
}

func TestBuildPlanLeavesExistingUntouched(t *testing.T) {
	primary := &domain.Entry{ID: uuid.New(), Kind: domain.KindMovie}
	primary.SetProviderID(domain.ProviderStremio, "tt1")
	user := uuid.New()
	stale := &domain.Entry{ID: uuid.New(), Stream: &domain.StreamState{Index: 1, Users: []uuid.UUID{user}}}

	plan := BuildPlan(primary, user, nil, []*domain.Entry{stale})
	if len(plan.Retired) != 1 || plan.Retired[0] != stale.ID {
		t.Errorf("retired = %v", plan.Retired)
	}
	if len(stale.Stream.Users) != 1 {
		t.Error("BuildPlan mutated an existing entry")
	}
}
