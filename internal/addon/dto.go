package addon

import (
	"bytes"
	"strconv"

	"github.com/goccy/go-json"
)

// Wire types for the addon protocol. Property matching is case-insensitive.

type manifestDTO struct {
	ID          string        `json:"id"`
	Version     string        `json:"version"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Resources   []resourceDTO `json:"resources"`
	Types       []string      `json:"types"`
	Catalogs    []catalogDTO  `json:"catalogs"`
	IDPrefixes  []string      `json:"idPrefixes"`
}

// resourceDTO is either "stream" or {"name": "stream", "types": [...], "idPrefixes": [...]}
type resourceDTO struct {
	Name       string   `json:"name"`
	Types      []string `json:"types"`
	IDPrefixes []string `json:"idPrefixes"`
}

func (r *resourceDTO) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &r.Name)
	}
	type plain resourceDTO
	return json.Unmarshal(data, (*plain)(r))
}

type catalogDTO struct {
	Type           string     `json:"type"`
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Extra          []extraDTO `json:"extra"`
	ExtraSupported []string   `json:"extraSupported"`
	ExtraRequired  []string   `json:"extraRequired"`
}

type extraDTO struct {
	Name       string `json:"name"`
	IsRequired bool   `json:"isRequired"`
}

type metaResponse struct {
	Meta *metaDTO `json:"meta"`
}

type catalogResponse struct {
	Metas []metaDTO `json:"metas"`
}

type streamsResponse struct {
	Streams []*streamDTO `json:"streams"`
}

type metaDTO struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	ReleaseInfo flexString `json:"releaseInfo"`
	Year        flexString `json:"year"`
	Released    string     `json:"released"`
	Videos      []videoDTO `json:"videos"`
}

type videoDTO struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Name     string `json:"name"`
	Season   int    `json:"season"`
	Episode  int    `json:"episode"`
	Number   int    `json:"number"`
	Overview string `json:"overview"`
}

type streamDTO struct {
	Name          string            `json:"name"`
	Title         string            `json:"title"`
	Description   string            `json:"description"`
	URL           string            `json:"url"`
	InfoHash      string            `json:"infoHash"`
	FileIdx       *int              `json:"fileIdx"`
	Sources       []string          `json:"sources"`
	BehaviorHints *behaviorHintsDTO `json:"behaviorHints"`
}

type behaviorHintsDTO struct {
	BingeGroup  string `json:"bingeGroup"`
	Filename    string `json:"filename"`
	VideoSize   int64  `json:"videoSize"`
	NotWebReady bool   `json:"notWebReady"`
}

// flexString accepts a JSON string or number. Addons disagree on releaseInfo/year.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if _, err := strconv.ParseFloat(string(data), 64); err != nil {
		return err
	}
	*f = flexString(data)
	return nil
}
