package domain

import "errors"

// Sentinel errors for domain operations
var (
	// ErrEntryNotFound indicates the requested catalog entry does not exist
	ErrEntryNotFound = errors.New("catalog entry not found")

	// ErrNotPlayable indicates streams were requested for an entry that cannot carry them
	ErrNotPlayable = errors.New("catalog entry is not playable")

	// ErrNoProviderKey indicates an entry lacks the addon network key
	ErrNoProviderKey = errors.New("catalog entry has no stremio provider key")

	// ErrNotPrimary indicates an alternate was passed where a primary is required
	ErrNotPrimary = errors.New("catalog entry is not a primary version")
)
