// Package candidate decides which discovered streams may become alternate versions.
package candidate

import (
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/mmcdole/reelsync/internal/addon"
	"github.com/mmcdole/reelsync/internal/metrics"
)

// Policy holds the global sourcing switches
type Policy struct {
	DisableSwarm bool // reject info-hash sources
}

// Reason explains a verdict
type Reason string

const (
	Accepted        Reason = "accepted"
	NoPlayableRef   Reason = "no_playable_reference"
	BadURL          Reason = "malformed_url"
	BadInfoHash     Reason = "malformed_info_hash"
	NoDistinguisher Reason = "no_distinguishing_fields"
	SwarmDisabled   Reason = "swarm_disabled"
)

// Verdict is the outcome of evaluating one candidate
type Verdict struct {
	Accept bool
	Reason Reason
}

func accept() Verdict { return Verdict{Accept: true, Reason: Accepted} }

func reject(r Reason) Verdict { return Verdict{Reason: r} }

func (v Verdict) String() string { return string(v.Reason) }

// Evaluate checks a stream against the policy. It has no side effects.
func Evaluate(s addon.Stream, p Policy) Verdict {
	switch {
	case s.InfoHash != "":
		if !validInfoHash(s.InfoHash) {
			return reject(BadInfoHash)
		}
		if p.DisableSwarm {
			return reject(SwarmDisabled)
		}
	case s.URL != "":
		if !validURL(s.URL) {
			return reject(BadURL)
		}
	default:
		return reject(NoPlayableRef)
	}

	if s.Name == "" && s.Title == "" && s.Description == "" && s.Filename == "" && s.Size <= 0 {
		return reject(NoDistinguisher)
	}
	return accept()
}

// Accept reports whether the stream passes the policy
func Accept(s addon.Stream, p Policy) bool {
	return Evaluate(s, p).Accept
}

// Filter returns the accepted streams in their original order and counts every verdict
func Filter(streams []addon.Stream, p Policy) []addon.Stream {
	out := make([]addon.Stream, 0, len(streams))
	for _, s := range streams {
		v := Evaluate(s, p)
		metrics.CandidateVerdicts.WithLabelValues(v.String()).Inc()
		if v.Accept {
			out = append(out, s)
		}
	}
	return out
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// validInfoHash accepts v1 (40 hex) and v2 (64 hex) hashes
func validInfoHash(h string) bool {
	h = strings.ToLower(h)
	if len(h) != 40 && len(h) != 64 {
		return false
	}
	_, err := hex.DecodeString(h)
	return err == nil
}
