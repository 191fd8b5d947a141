package reconcile

import (
	"slices"

	"github.com/google/uuid"

	"github.com/mmcdole/reelsync/internal/addon"
	"github.com/mmcdole/reelsync/internal/catalog"
	"github.com/mmcdole/reelsync/internal/domain"
)

// Plan is the outcome of reconciling one primary for one user, before any write.
//
// Ordering indexes are dense over the whole surviving set: this sync's sources
// take 1..Accepted in network order, where a repeated source counts at its last
// occurrence, and kept alternates follow in their previous relative order.
type Plan struct {
	// Alternates is the complete surviving set in ordering-index order
	Alternates []*domain.Entry

	// Retired lists alternates whose visibility list emptied
	Retired []uuid.UUID

	// Hidden counts stale alternates the user lost but other users still see
	Hidden int

	// Accepted counts distinct alternates materialized from this sync's candidates
	Accepted int
}

// BuildPlan matches candidates against the primary's existing alternates.
// Candidates must already be filtered. Existing entries are not modified.
func BuildPlan(primary *domain.Entry, user uuid.UUID, candidates []addon.Stream, existing []*domain.Entry) Plan {
	ext := primary.ProviderID(domain.ProviderStremio)

	known := make(map[uuid.UUID]*domain.Entry, len(existing))
	for _, e := range existing {
		known[fingerprintOf(e)] = e
	}

	var plan Plan
	resolved := make(map[uuid.UUID]*domain.Entry, len(candidates))
	for _, s := range candidates {
		fp := Fingerprint(ext, s)
		alt, ok := resolved[fp]
		if ok {
			// A repeat moves to its latest position
			plan.Alternates = slices.DeleteFunc(plan.Alternates, func(e *domain.Entry) bool { return e == alt })
		} else {
			if prev, found := known[fp]; found {
				alt = prev.Clone()
			} else {
				alt = &domain.Entry{ID: fp}
			}
			if alt.Stream == nil {
				alt.Stream = &domain.StreamState{}
			}
			alt.Stream.Fingerprint = fp
			resolved[fp] = alt
		}
		plan.Alternates = append(plan.Alternates, alt)
		describe(alt, primary, s)
		if !slices.Contains(alt.Stream.Users, user) {
			alt.Stream.Users = append(alt.Stream.Users, user)
		}
	}
	plan.Accepted = len(resolved)

	var kept []*domain.Entry
	for _, e := range existing {
		fp := fingerprintOf(e)
		if _, ok := resolved[fp]; ok {
			continue
		}
		if !e.VisibleTo(user) {
			kept = append(kept, e.Clone())
			continue
		}
		stale := e.Clone()
		stale.Stream.Users = slices.DeleteFunc(stale.Stream.Users, func(u uuid.UUID) bool { return u == user })
		if len(stale.Stream.Users) == 0 {
			plan.Retired = append(plan.Retired, stale.ID)
			continue
		}
		plan.Hidden++
		kept = append(kept, stale)
	}
	catalog.SortVersions(kept)
	plan.Alternates = append(plan.Alternates, kept...)

	for i, alt := range plan.Alternates {
		if alt.Stream == nil {
			alt.Stream = &domain.StreamState{Fingerprint: alt.ID}
		}
		alt.Stream.Index = i + 1
	}
	return plan
}

func fingerprintOf(e *domain.Entry) uuid.UUID {
	if e.Stream == nil || e.Stream.Fingerprint == uuid.Nil {
		return e.ID
	}
	return e.Stream.Fingerprint
}

func describe(alt, primary *domain.Entry, s addon.Stream) {
	alt.Name = displayName(s)
	alt.SetProviderID(domain.ProviderStremio, primary.ProviderID(domain.ProviderStremio))
	alt.Year = primary.Year
	alt.IndexNumber = primary.IndexNumber
	alt.ParentIndexNumber = primary.ParentIndexNumber

	st := alt.Stream
	st.GroupKey = GroupKey(s)
	st.URL = s.URL
	st.InfoHash = s.InfoHash
	st.FileIdx = nil
	if s.FileIdx != nil {
		idx := *s.FileIdx
		st.FileIdx = &idx
	}
	st.Trackers = slices.Clone(s.Trackers)
	st.Filename = s.Filename
	st.Size = s.Size
}
