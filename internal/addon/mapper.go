package addon

import (
	"strconv"
	"strings"

	"github.com/mmcdole/reelsync/internal/identity"
)

const searchExtra = "search"

// mapManifest converts the wire manifest
func mapManifest(dto *manifestDTO) *Manifest {
	m := &Manifest{
		ID:      dto.ID,
		Name:    dto.Name,
		Version: dto.Version,
		Types:   dto.Types,
	}
	for _, r := range dto.Resources {
		if r.Name == "" {
			continue
		}
		m.Resources = append(m.Resources, Resource{Name: r.Name, Types: r.Types, IDPrefixes: r.IDPrefixes})
	}
	for _, c := range dto.Catalogs {
		if c.ID == "" || c.Type == "" {
			continue
		}
		m.Catalogs = append(m.Catalogs, mapCatalog(c))
	}
	return m
}

func mapCatalog(dto catalogDTO) Catalog {
	c := Catalog{Type: dto.Type, ID: dto.ID, Name: dto.Name}
	for _, e := range dto.Extra {
		if e.Name == searchExtra {
			c.Searchable = true
			c.SearchRequired = e.IsRequired
		}
	}
	// Legacy manifests list extras by name only
	for _, name := range dto.ExtraSupported {
		if name == searchExtra {
			c.Searchable = true
		}
	}
	for _, name := range dto.ExtraRequired {
		if name == searchExtra {
			c.SearchRequired = true
		}
	}
	return c
}

// mapMeta converts wire metadata. Returns nil for items without an id or with
// a content type other than movie or series.
func mapMeta(dto *metaDTO, fallback identity.MediaKind) *Meta {
	if dto == nil || dto.ID == "" {
		return nil
	}
	kind := fallback
	if dto.Type != "" {
		k, err := identity.ParseKind(dto.Type)
		if err != nil {
			return nil
		}
		kind = k
	}
	if kind == "" {
		return nil
	}

	m := &Meta{
		ID:       dto.ID,
		Kind:     kind,
		Name:     dto.Name,
		Year:     parseYear(string(dto.ReleaseInfo), string(dto.Year), dto.Released),
		Overview: dto.Description,
	}
	if kind == identity.KindSeries {
		m.Videos = mapVideos(dto.Videos)
	}
	return m
}

func mapMetas(dtos []metaDTO, kind identity.MediaKind) []Meta {
	metas := make([]Meta, 0, len(dtos))
	for i := range dtos {
		if m := mapMeta(&dtos[i], kind); m != nil {
			metas = append(metas, *m)
		}
	}
	return metas
}

func mapVideos(dtos []videoDTO) []Video {
	videos := make([]Video, 0, len(dtos))
	for _, v := range dtos {
		if v.ID == "" {
			continue
		}
		episode := v.Episode
		if episode == 0 {
			episode = v.Number
		}
		name := v.Name
		if name == "" {
			name = v.Title
		}
		videos = append(videos, Video{
			ID:       v.ID,
			Name:     name,
			Season:   v.Season,
			Episode:  episode,
			Overview: v.Overview,
		})
	}
	return videos
}

func mapStreams(dtos []*streamDTO) []Stream {
	streams := make([]Stream, 0, len(dtos))
	for _, d := range dtos {
		if d == nil {
			continue
		}
		s := Stream{
			Name:        strings.TrimSpace(d.Name),
			Title:       strings.TrimSpace(d.Title),
			Description: strings.TrimSpace(d.Description),
			URL:         strings.TrimSpace(d.URL),
			InfoHash:    strings.ToLower(strings.TrimSpace(d.InfoHash)),
			FileIdx:     d.FileIdx,
		}
		for _, src := range d.Sources {
			if tr, ok := strings.CutPrefix(src, "tracker:"); ok {
				s.Trackers = append(s.Trackers, tr)
			}
		}
		if h := d.BehaviorHints; h != nil {
			s.BingeGroup = h.BingeGroup
			s.Filename = h.Filename
			s.Size = h.VideoSize
		}
		streams = append(streams, s)
	}
	return streams
}

// parseYear takes the first four-digit year found in the candidates
func parseYear(candidates ...string) int {
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if len(c) < 4 {
			continue
		}
		if y, err := strconv.Atoi(c[:4]); err == nil && y > 1800 {
			return y
		}
	}
	return 0
}
