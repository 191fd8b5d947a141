package addon

import (
	"slices"

	"github.com/mmcdole/reelsync/internal/identity"
)

// Manifest describes what an addon serves
type Manifest struct {
	ID        string
	Name      string
	Version   string
	Types     []string
	Resources []Resource
	Catalogs  []Catalog
}

// Resource is one manifest resource ("catalog", "meta", "stream"...).
// Empty Types means the manifest-level types apply.
type Resource struct {
	Name       string
	Types      []string
	IDPrefixes []string
}

// Catalog is a listing an addon exposes
type Catalog struct {
	Type           string
	ID             string
	Name           string
	Searchable     bool // accepts the "search" extra
	SearchRequired bool // only answers searches
}

// Supports reports whether the addon serves resource for kind
func (m *Manifest) Supports(resource string, kind identity.MediaKind) bool {
	for _, r := range m.Resources {
		if r.Name != resource {
			continue
		}
		types := r.Types
		if len(types) == 0 {
			types = m.Types
		}
		return len(types) == 0 || slices.Contains(types, string(kind))
	}
	return false
}

// SearchableCatalogs returns the catalogs of kind that accept free-text search
func (m *Manifest) SearchableCatalogs(kind identity.MediaKind) []Catalog {
	var out []Catalog
	for _, c := range m.Catalogs {
		if c.Searchable && c.Type == string(kind) {
			out = append(out, c)
		}
	}
	return out
}

// BrowsableCatalogs returns the catalogs of kind that can be listed without a query
func (m *Manifest) BrowsableCatalogs(kind identity.MediaKind) []Catalog {
	var out []Catalog
	for _, c := range m.Catalogs {
		if !c.SearchRequired && c.Type == string(kind) {
			out = append(out, c)
		}
	}
	return out
}

// Meta is title metadata from the addon network
type Meta struct {
	ID       string
	Kind     identity.MediaKind
	Name     string
	Year     int
	Overview string
	Videos   []Video // episodes, series only
}

// Key returns the title key for the meta
func (m *Meta) Key() identity.TitleKey {
	return identity.NewKey(m.Kind, m.ID)
}

// Video is one episode of a series
type Video struct {
	ID       string // usually "tt0944947:1:2"
	Name     string
	Season   int
	Episode  int
	Overview string
}

// Stream is a candidate playable source for a title
type Stream struct {
	Name        string
	Title       string
	Description string
	URL         string
	InfoHash    string
	FileIdx     *int
	Trackers    []string // "tracker:" entries of sources
	BingeGroup  string
	Filename    string
	Size        int64
}

// IsSwarm reports whether the stream is a peer-swarm descriptor
func (s *Stream) IsSwarm() bool {
	return s.InfoHash != ""
}

// Label returns the most descriptive text the addon supplied
func (s *Stream) Label() string {
	switch {
	case s.Title != "":
		return s.Title
	case s.Description != "":
		return s.Description
	default:
		return s.Name
	}
}
