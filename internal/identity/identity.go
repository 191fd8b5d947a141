// Package identity converts between title keys and the 128-bit identifiers used as catalog primary keys.
//
// A TitleKey has two string forms:
//
//	canonical  stremio://movie/tt0111161[/streamId]
//	compact    m|tt0111161[|streamId]
//
// Encode packs the compact form into 16 bytes and can be decoded again as long as the compact form fits.
// Hash digests the canonical form and cannot be reversed.
package identity

import (
	"bytes"
	"crypto/md5"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Scheme is the canonical key scheme
const Scheme = "stremio"

// identifierSize is the width of an encoded identifier in bytes
const identifierSize = len(uuid.UUID{})

const compactSep = "|"

// Sentinel errors for codec operations
var (
	// ErrFormat indicates a canonical string that does not match scheme://(movie|series)/ext[/stream]
	ErrFormat = errors.New("invalid canonical title key")

	// ErrMalformedIdentifier indicates an identifier whose bytes are not a compact title key
	ErrMalformedIdentifier = errors.New("malformed title identifier")

	// ErrKeyTooLong indicates a compact key that would be truncated by Encode
	ErrKeyTooLong = errors.New("compact title key exceeds 16 bytes")

	// ErrInvalidKey indicates a TitleKey violating its invariants
	ErrInvalidKey = errors.New("invalid title key")
)

// MediaKind is the addon network's content type
type MediaKind string

const (
	KindMovie  MediaKind = "movie"
	KindSeries MediaKind = "series"
)

// ParseKind parses a media kind case-insensitively
func ParseKind(s string) (MediaKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(KindMovie):
		return KindMovie, nil
	case string(KindSeries):
		return KindSeries, nil
	default:
		return "", fmt.Errorf("unknown media kind %q", s)
	}
}

func (k MediaKind) code() string {
	switch k {
	case KindMovie:
		return "m"
	case KindSeries:
		return "s"
	default:
		return ""
	}
}

func kindFromCode(code string) (MediaKind, bool) {
	switch code {
	case "m":
		return KindMovie, true
	case "s":
		return KindSeries, true
	default:
		return "", false
	}
}

// TitleKey identifies a title, or one specific stream of a title, on the addon network.
type TitleKey struct {
	Kind       MediaKind
	ExternalID string // e.g. "tt0111161", or "tt0944947:1:2" for an episode
	StreamID   string // empty when the key names the title itself
}

// NewKey builds a title key without a stream id
func NewKey(kind MediaKind, externalID string) TitleKey {
	return TitleKey{Kind: kind, ExternalID: externalID}
}

// WithStream returns a copy of k naming a specific stream
func (k TitleKey) WithStream(streamID string) TitleKey {
	k.StreamID = streamID
	return k
}

// Title returns k without its stream id
func (k TitleKey) Title() TitleKey {
	k.StreamID = ""
	return k
}

// Validate checks the key invariants
func (k TitleKey) Validate() error {
	if k.Kind.code() == "" {
		return fmt.Errorf("%w: kind %q", ErrInvalidKey, k.Kind)
	}
	if k.ExternalID == "" {
		return fmt.Errorf("%w: empty external id", ErrInvalidKey)
	}
	if strings.ContainsAny(k.ExternalID, "/"+compactSep) || strings.ContainsAny(k.StreamID, "/"+compactSep) {
		return fmt.Errorf("%w: separator in %q", ErrInvalidKey, k.ExternalID+"/"+k.StreamID)
	}
	return nil
}

// String returns the canonical form
func (k TitleKey) String() string {
	return FormatCanonical(k)
}

// FormatCanonical renders scheme://kind/externalId[/streamId]
func FormatCanonical(k TitleKey) string {
	s := Scheme + "://" + string(k.Kind) + "/" + k.ExternalID
	if k.StreamID != "" {
		s += "/" + k.StreamID
	}
	return s
}

// ParseCanonical parses scheme://(movie|series)/ext[/stream]. Scheme and kind are case-insensitive.
func ParseCanonical(s string) (TitleKey, error) {
	scheme, rest, ok := strings.Cut(strings.TrimSpace(s), "://")
	if !ok || !strings.EqualFold(scheme, Scheme) {
		return TitleKey{}, fmt.Errorf("%w: %q", ErrFormat, s)
	}
	parts := strings.Split(rest, "/")
	if len(parts) < 2 || len(parts) > 3 {
		return TitleKey{}, fmt.Errorf("%w: %q", ErrFormat, s)
	}
	kind, err := ParseKind(parts[0])
	if err != nil {
		return TitleKey{}, fmt.Errorf("%w: %q", ErrFormat, s)
	}
	key := TitleKey{Kind: kind, ExternalID: parts[1]}
	if len(parts) == 3 {
		key.StreamID = parts[2]
	}
	if key.ExternalID == "" || (len(parts) == 3 && key.StreamID == "") {
		return TitleKey{}, fmt.Errorf("%w: %q", ErrFormat, s)
	}
	if err := key.Validate(); err != nil {
		return TitleKey{}, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	return key, nil
}

// FormatCompact renders kindcode|externalId[|streamId]
func FormatCompact(k TitleKey) string {
	s := k.Kind.code() + compactSep + k.ExternalID
	if k.StreamID != "" {
		s += compactSep + k.StreamID
	}
	return s
}

// ParseCompact parses kindcode|externalId[|streamId]
func ParseCompact(s string) (TitleKey, error) {
	parts := strings.Split(s, compactSep)
	if len(parts) < 2 || len(parts) > 3 {
		return TitleKey{}, fmt.Errorf("%w: %q", ErrMalformedIdentifier, s)
	}
	kind, ok := kindFromCode(parts[0])
	if !ok || parts[1] == "" {
		return TitleKey{}, fmt.Errorf("%w: %q", ErrMalformedIdentifier, s)
	}
	key := TitleKey{Kind: kind, ExternalID: parts[1]}
	if len(parts) == 3 {
		if parts[2] == "" {
			return TitleKey{}, fmt.Errorf("%w: %q", ErrMalformedIdentifier, s)
		}
		key.StreamID = parts[2]
	}
	if err := key.Validate(); err != nil {
		return TitleKey{}, fmt.Errorf("%w: %w", ErrMalformedIdentifier, err)
	}
	return key, nil
}

// Fits reports whether Encode(k) can be decoded back to k
func Fits(k TitleKey) bool {
	return len(FormatCompact(k)) <= identifierSize
}

// Encode packs the compact form into an identifier, zero-padding short keys.
// Keys longer than 16 bytes are truncated and will not decode back to k.
func Encode(k TitleKey) uuid.UUID {
	var id uuid.UUID
	copy(id[:], FormatCompact(k))
	return id
}

// EncodeExact is Encode that refuses invalid keys and truncation
func EncodeExact(k TitleKey) (uuid.UUID, error) {
	if err := k.Validate(); err != nil {
		return uuid.Nil, err
	}
	if !Fits(k) {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrKeyTooLong, FormatCompact(k))
	}
	return Encode(k), nil
}

// Decode unpacks an identifier produced by Encode
func Decode(id uuid.UUID) (TitleKey, error) {
	raw := bytes.TrimRight(id[:], "\x00")
	if len(raw) == 0 || !utf8.Valid(raw) {
		return TitleKey{}, fmt.Errorf("%w: %s", ErrMalformedIdentifier, id)
	}
	return ParseCompact(string(raw))
}

// Hash digests the canonical form. The result is stable but cannot be decoded.
func Hash(k TitleKey) uuid.UUID {
	return uuid.UUID(md5.Sum([]byte(FormatCanonical(k))))
}

// Resolve turns user input into a key. It accepts a canonical string, or an identifier
// produced by Encode in its usual hyphenated form.
func Resolve(s string) (TitleKey, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "://") {
		return ParseCanonical(s)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return TitleKey{}, fmt.Errorf("%w: %q", ErrFormat, s)
	}
	return Decode(id)
}
