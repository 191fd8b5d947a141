package library

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mmcdole/reelsync/internal/addon"
	"github.com/mmcdole/reelsync/internal/domain"
	"github.com/mmcdole/reelsync/internal/identity"
)

// ImportOptions selects what ImportCatalog pulls from the addon
type ImportOptions struct {
	CatalogID string
	Kind      identity.MediaKind
	Search    string // optional search extra
	Limit     int    // maximum titles, 0 for the whole listing
	Sync      bool   // reconcile movie streams right after import
}

// ImportCatalog pages through a remote catalog and inserts every listed title.
// Failures of single titles are collected in the result and do not stop the import.
func (s *Service) ImportCatalog(ctx context.Context, opts ImportOptions, onProgress domain.ProgressFunc) (domain.ImportResult, error) {
	result := domain.ImportResult{CatalogID: opts.CatalogID, Failed: make(map[string]error)}

	root, err := s.writer.EnsureRoot(ctx, opts.Kind)
	if err != nil {
		return result, err
	}

	metas, err := fetchAll(ctx,
		func(ctx context.Context, skip int) []addon.Meta {
			return s.remote.GetCatalogPage(ctx, opts.CatalogID, opts.Kind, opts.Search, skip)
		},
		func(m addon.Meta) string { return m.ID },
		opts.Limit,
	)
	if err != nil {
		return result, err
	}
	result.Listed = len(metas)
	s.logger.Info("listed catalog", "catalog", opts.CatalogID, "kind", opts.Kind, "count", len(metas))

	var (
		mu   sync.Mutex
		done int
	)
	g := new(errgroup.Group)
	g.SetLimit(s.parallelism)
	for i := range metas {
		meta := &metas[i]
		g.Go(func() error {
			created, sources, synced, err := s.importOne(ctx, root, meta, opts.Sync)

			mu.Lock()
			defer mu.Unlock()
			done++
			if err != nil {
				s.logger.Warn("failed to import title", "error", err, "id", meta.ID)
				result.Failed[meta.ID] = err
			}
			if created {
				result.Created++
			}
			if synced {
				result.Synced++
				result.Sources += sources
			}
			if onProgress != nil {
				onProgress(done, len(metas))
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("imported catalog",
		"catalog", opts.CatalogID,
		"listed", result.Listed,
		"created", result.Created,
		"synced", result.Synced,
		"failed", len(result.Failed))
	return result, ctx.Err()
}

func (s *Service) importOne(ctx context.Context, root *domain.Entry, meta *addon.Meta, eager bool) (created bool, sources int, synced bool, err error) {
	if err := ctx.Err(); err != nil {
		return false, 0, false, err
	}
	entry, created, err := s.importer.InsertIfMissing(ctx, root, meta)
	if err != nil {
		return false, 0, false, err
	}
	if !eager || !entry.Kind.Playable() {
		return created, 0, false, nil
	}
	n, err := s.reconciler.Reconcile(ctx, entry.ID, uuid.Nil)
	if err != nil {
		return created, 0, false, fmt.Errorf("imported but sync failed: %w", err)
	}
	return created, n, true, nil
}

// fetchAll is a generic pagination helper for skip-based listings.
// It stops on an empty page, on a page adding nothing new, or at limit.
func fetchAll[T any](
	ctx context.Context,
	fetch func(ctx context.Context, skip int) []T,
	key func(T) string,
	limit int,
) ([]T, error) {
	var all []T
	seen := make(map[string]bool)
	skip := 0

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		items := fetch(ctx, skip)
		if len(items) == 0 {
			break
		}

		added := 0
		for _, item := range items {
			k := key(item)
			if seen[k] {
				continue
			}
			seen[k] = true
			all = append(all, item)
			added++
			if limit > 0 && len(all) >= limit {
				return all, nil
			}
		}
		// An addon ignoring skip would otherwise loop forever
		if added == 0 {
			break
		}
		skip += len(items)
	}

	return all, nil
}
