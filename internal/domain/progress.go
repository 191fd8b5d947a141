package domain

// ProgressFunc reports bulk import progress.
// Called after every processed title: (1, 0), (2, 0), ... total is 0 while the listing is still paginating.
type ProgressFunc func(done, total int)

// ImportResult summarizes a bulk catalog import.
type ImportResult struct {
	CatalogID string
	Listed    int              // titles seen in the remote listing
	Created   int              // primaries inserted by this run
	Synced    int              // titles whose streams were reconciled
	Sources   int              // alternates materialized across synced titles
	Failed    map[string]error // per-title failures, keyed by external id
}
