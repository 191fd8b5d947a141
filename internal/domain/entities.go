package domain

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// ProviderStremio is the provider key holding a title's external id on the addon network.
const ProviderStremio = "stremio"

// TagStream marks an entry as an alternate version rather than the primary.
const TagStream = "stream"

// ItemKind distinguishes catalog entry types
type ItemKind int

const (
	KindFolder ItemKind = iota
	KindMovie
	KindSeries
	KindSeason
	KindEpisode
)

// String returns the lowercase name of the kind
func (k ItemKind) String() string {
	switch k {
	case KindFolder:
		return "folder"
	case KindMovie:
		return "movie"
	case KindSeries:
		return "series"
	case KindSeason:
		return "season"
	case KindEpisode:
		return "episode"
	default:
		return "unknown"
	}
}

// Playable reports whether entries of this kind carry streams
func (k ItemKind) Playable() bool {
	return k == KindMovie || k == KindEpisode
}

// Entry is a node in the shared catalog: a library folder, movie, series, season or episode.
type Entry struct {
	ID       uuid.UUID         // Derived identifier, never chosen freely
	Kind     ItemKind          // Entry type
	Name     string            // Display name
	ParentID uuid.UUID         // Containing entry (uuid.Nil for library roots)
	Path     string            // Placeholder folder path for primaries, playable URL for alternates
	Keys     map[string]string // Provider keys ("stremio" -> external id)
	Tags     []string          // TagStream marks alternates

	PrimaryVersionID    uuid.UUID   // uuid.Nil on primaries
	AlternateVersionIDs []uuid.UUID // Populated on primaries only, in ordering-index order

	Year              int    // Release year (0 if unknown)
	Overview          string // Plot synopsis
	IndexNumber       int    // Episode number or season number
	ParentIndexNumber int    // Season number (episodes only)

	// Stream is set on alternates only
	Stream *StreamState
}

// StreamState is the reconciliation bookkeeping stored with an alternate entry.
type StreamState struct {
	Fingerprint uuid.UUID   `json:"fingerprint"`
	GroupKey    string      `json:"group_key,omitempty"`
	Index       int         `json:"index"` // 1-based network order, 0 = unknown
	Users       []uuid.UUID `json:"users"` // uuid.Nil stands for the global sync principal
	URL         string      `json:"url,omitempty"`
	InfoHash    string      `json:"info_hash,omitempty"`
	FileIdx     *int        `json:"file_idx,omitempty"`
	Trackers    []string    `json:"trackers,omitempty"`
	Filename    string      `json:"filename,omitempty"`
	Size        int64       `json:"size,omitempty"`
}

// ProviderID returns the provider key value for name
func (e *Entry) ProviderID(name string) string {
	if e.Keys == nil {
		return ""
	}
	return e.Keys[name]
}

// SetProviderID sets a provider key, allocating the map if needed
func (e *Entry) SetProviderID(name, value string) {
	if e.Keys == nil {
		e.Keys = make(map[string]string)
	}
	e.Keys[name] = value
}

// HasTag reports whether tag is present
func (e *Entry) HasTag(tag string) bool {
	return slices.Contains(e.Tags, tag)
}

// AddTag adds tag if absent
func (e *Entry) AddTag(tag string) {
	if !e.HasTag(tag) {
		e.Tags = append(e.Tags, tag)
	}
}

// IsAlternate reports whether the entry is an alternate version of some primary
func (e *Entry) IsAlternate() bool {
	return e.HasTag(TagStream) || e.PrimaryVersionID != uuid.Nil
}

// VisibleTo reports whether user appears in the alternate's visibility list
func (e *Entry) VisibleTo(user uuid.UUID) bool {
	return e.Stream != nil && slices.Contains(e.Stream.Users, user)
}

// OrderIndex returns the ordering index for sorting, unknown sorts last
func (e *Entry) OrderIndex() int {
	if e.Stream == nil || e.Stream.Index <= 0 {
		return int(^uint(0) >> 1)
	}
	return e.Stream.Index
}

// Clone returns a deep copy so callers can mutate without touching cached values
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	if e.Keys != nil {
		c.Keys = make(map[string]string, len(e.Keys))
		for k, v := range e.Keys {
			c.Keys[k] = v
		}
	}
	c.Tags = slices.Clone(e.Tags)
	c.AlternateVersionIDs = slices.Clone(e.AlternateVersionIDs)
	if e.Stream != nil {
		s := *e.Stream
		s.Users = slices.Clone(e.Stream.Users)
		s.Trackers = slices.Clone(e.Stream.Trackers)
		if e.Stream.FileIdx != nil {
			idx := *e.Stream.FileIdx
			s.FileIdx = &idx
		}
		c.Stream = &s
	}
	return &c
}

// EpisodeCode returns the formatted episode code (e.g., "S01E05")
func (e *Entry) EpisodeCode() string {
	if e.Kind != KindEpisode {
		return ""
	}
	return fmt.Sprintf("S%02dE%02d", e.ParentIndexNumber, e.IndexNumber)
}

// DisplayTitle returns the name shown in listings
func (e *Entry) DisplayTitle() string {
	switch e.Kind {
	case KindSeason:
		if e.IndexNumber == 0 {
			return "Specials"
		}
		return fmt.Sprintf("Season %d", e.IndexNumber)
	case KindEpisode:
		return fmt.Sprintf("%s %s", e.EpisodeCode(), e.Name)
	}
	if e.Year > 0 {
		return fmt.Sprintf("%s (%d)", e.Name, e.Year)
	}
	return e.Name
}
