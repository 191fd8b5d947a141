package catalog

import (
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/mmcdole/reelsync/internal/domain"
	"github.com/mmcdole/reelsync/internal/identity"
)

// Paths assigns entry paths. Primaries get placeholder folders under Root;
// alternates get their playable location.
type Paths struct {
	Root         string // virtual library root, e.g. "/stremio"
	SwarmGateway string // base URL of the swarm gateway; empty builds magnet URIs
}

const defaultRoot = "/stremio"

func (p Paths) root() string {
	if p.Root == "" {
		return defaultRoot
	}
	return p.Root
}

// RootPath returns the library folder for a media kind
func (p Paths) RootPath(kind identity.MediaKind) string {
	switch kind {
	case identity.KindSeries:
		return path.Join(p.root(), "series")
	default:
		return path.Join(p.root(), "movies")
	}
}

// TitlePath returns the placeholder folder of a movie or series
func (p Paths) TitlePath(parent *domain.Entry, name string, year int, externalID string) string {
	folder := sanitize(name)
	if year > 0 {
		folder += fmt.Sprintf(" (%d)", year)
	}
	folder += " [" + sanitize(externalID) + "]"
	return path.Join(parent.Path, folder)
}

// SeasonPath returns the placeholder folder of a season
func (p Paths) SeasonPath(series *domain.Entry, season int) string {
	return path.Join(series.Path, fmt.Sprintf("Season %02d", season))
}

// EpisodePath returns the placeholder of an episode
func (p Paths) EpisodePath(season *domain.Entry, seasonNum, episodeNum int, name string) string {
	file := fmt.Sprintf("S%02dE%02d", seasonNum, episodeNum)
	if name = sanitize(name); name != "" {
		file += " " + name
	}
	return path.Join(season.Path, file)
}

// StreamPath returns the playable location of an alternate: its URL, a gateway
// URL for swarm sources when a gateway is configured, or a magnet URI.
func (p Paths) StreamPath(st *domain.StreamState) string {
	if st == nil {
		return ""
	}
	if st.URL != "" {
		return st.URL
	}
	if st.InfoHash == "" {
		return ""
	}
	if p.SwarmGateway != "" {
		q := url.Values{}
		q.Set("link", st.InfoHash)
		if st.FileIdx != nil {
			q.Set("index", strconv.Itoa(*st.FileIdx))
		}
		return strings.TrimRight(p.SwarmGateway, "/") + "/stream?" + q.Encode() + "&play"
	}

	magnet := "magnet:?xt=urn:btih:" + st.InfoHash
	for _, tr := range st.Trackers {
		magnet += "&tr=" + url.QueryEscape(tr)
	}
	return magnet
}

// sanitize strips characters that are not portable in folder names
func sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			return -1
		case '\n', '\r', '\t':
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
