package search

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/mmcdole/reelsync/internal/addon"
	"github.com/mmcdole/reelsync/internal/identity"
)

// Result is a title found on the addon. ID is ephemeral: it is only valid for
// Insert until the side table forgets it.
type Result struct {
	ID        uuid.UUID
	Key       identity.TitleKey
	Meta      addon.Meta
	CatalogID string
	Score     int // Lower is better
}

// SearchRemote queries every searchable catalog of the addon and ranks the
// merged results against query. No kinds means movies and series.
func (s *Service) SearchRemote(ctx context.Context, query string, kinds ...identity.MediaKind) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	manifest, err := s.remote.GetManifest(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to load addon manifest: %w", err)
	}

	s.logger.Debug("searching addon", "query", query)

	var results []Result
	seen := make(map[uuid.UUID]bool)
	for _, kind := range kindsOrAll(kinds) {
		for _, cat := range manifest.SearchableCatalogs(kind) {
			for _, meta := range s.remote.GetCatalogPage(ctx, cat.ID, kind, query, 0) {
				key := meta.Key()
				if key.Validate() != nil {
					continue
				}
				id := identity.Hash(key)
				if seen[id] {
					continue
				}
				seen[id] = true
				results = append(results, Result{
					ID:        id,
					Key:       key,
					Meta:      meta,
					CatalogID: cat.ID,
					Score:     calculateMatchScore(strings.ToLower(meta.Name), strings.ToLower(query)),
				})
			}
		}
	}

	// Sort by score (lower is better), keeping addon order among equals
	slices.SortStableFunc(results, func(a, b Result) int { return a.Score - b.Score })

	for _, r := range results {
		s.results.Set(r.ID, r.Meta)
	}
	s.logger.Debug("search complete", "query", query, "results", len(results))
	return results, nil
}

// calculateMatchScore calculates a match score for ranking
// Lower score = better match
func calculateMatchScore(title, query string) int {
	switch {
	case title == query:
		return 0
	case strings.HasPrefix(title, query):
		return 10
	case strings.Contains(title, query):
		return 50
	case fuzzy.MatchFold(query, title):
		return 75
	}
	return 100 + fuzzy.LevenshteinDistance(query, title)
}
