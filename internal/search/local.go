package search

import (
	"context"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/mmcdole/reelsync/internal/domain"
	"github.com/mmcdole/reelsync/internal/identity"
)

// LocalResult is a catalog title matching a filter query
type LocalResult struct {
	Entry          *domain.Entry
	MatchedIndexes []int // Character positions that matched
	Score          int   // Higher is better
}

// titleIndex implements sahilm/fuzzy.Source for zero-allocation fuzzy matching
type titleIndex struct {
	entries     []*domain.Entry
	lowerTitles []string
}

func (idx *titleIndex) String(i int) string { return idx.lowerTitles[i] }

func (idx *titleIndex) Len() int { return len(idx.entries) }

// FilterLocal fuzzy matches query against the titles already in the catalog.
// No kinds means movies and series.
func (s *Service) FilterLocal(ctx context.Context, query string, kinds ...identity.MediaKind) ([]LocalResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	idx := &titleIndex{}
	for _, kind := range kindsOrAll(kinds) {
		entries, err := s.titles.Titles(ctx, kind)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			idx.entries = append(idx.entries, e)
			idx.lowerTitles = append(idx.lowerTitles, strings.ToLower(e.DisplayTitle()))
		}
	}
	if idx.Len() == 0 {
		return nil, nil
	}

	matches := fuzzy.FindFrom(strings.ToLower(query), idx)
	results := make([]LocalResult, len(matches))
	for i, m := range matches {
		results[i] = LocalResult{
			Entry:          idx.entries[m.Index],
			MatchedIndexes: m.MatchedIndexes,
			Score:          m.Score,
		}
	}
	s.logger.Debug("filtered catalog", "query", query, "indexed", idx.Len(), "results", len(results))
	return results, nil
}
