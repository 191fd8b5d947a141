package identity

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestParseCanonical(t *testing.T) {
	key, err := ParseCanonical("stremio://movie/tt1234567/abc")
	if err != nil {
		t.Fatalf("ParseCanonical failed: %v", err)
	}
	want := TitleKey{Kind: KindMovie, ExternalID: "tt1234567", StreamID: "abc"}
	if key != want {
		t.Fatalf("got %+v, want %+v", key, want)
	}
	if got := FormatCanonical(key); got != "stremio://movie/tt1234567/abc" {
		t.Errorf("FormatCanonical = %q", got)
	}
}

func TestParseCanonicalCaseInsensitive(t *testing.T) {
	key, err := ParseCanonical("STREMIO://Series/tt0944947:1:2")
	if err != nil {
		t.Fatalf("ParseCanonical failed: %v", err)
	}
	if key.Kind != KindSeries || key.ExternalID != "tt0944947:1:2" || key.StreamID != "" {
		t.Errorf("unexpected key %+v", key)
	}
}

func TestParseCanonicalRejects(t *testing.T) {
	inputs := []string{
		"stremio://book/x",
		"stremio://movie/",
		"stremio://movie",
		"stremio://movie/tt1/",
		"stremio://movie/tt1/a/b",
		"http://movie/tt1",
		"movie/tt1",
		"",
		"stremio://movie/a|b",
		"stremio://movie/tt1/x|y",
	}
	for _, in := range inputs {
		if _, err := ParseCanonical(in); !errors.Is(err, ErrFormat) {
			t.Errorf("ParseCanonical(%q) error = %v, want ErrFormat", in, err)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	keys := []TitleKey{
		{Kind: KindMovie, ExternalID: "tt0111161"},
		{Kind: KindSeries, ExternalID: "tt0944947"},
		{Kind: KindMovie, ExternalID: "tt1234567", StreamID: "abc"},
		{Kind: KindSeries, ExternalID: "kitsu:1"},
		{Kind: KindMovie, ExternalID: "é"},
	}
	for _, k := range keys {
		if !Fits(k) {
			t.Fatalf("test key %+v does not fit", k)
		}
		got, err := Decode(Encode(k))
		if err != nil {
			t.Fatalf("Decode(Encode(%+v)) failed: %v", k, err)
		}
		if got != k {
			t.Errorf("round trip: got %+v, want %+v", got, k)
		}
	}
}

func TestEncodeTruncatesLongKeys(t *testing.T) {
	k := TitleKey{Kind: KindSeries, ExternalID: "tt0944947:10:12"}
	if Fits(k) {
		t.Fatal("expected key to exceed 16 bytes")
	}
	if _, err := EncodeExact(k); !errors.Is(err, ErrKeyTooLong) {
		t.Errorf("EncodeExact error = %v, want ErrKeyTooLong", err)
	}
	got, err := Decode(Encode(k))
	if err == nil && got == k {
		t.Error("truncated key should not decode to the original")
	}
}

func TestEncodeExactRejectsSeparators(t *testing.T) {
	keys := []TitleKey{
		NewKey(KindMovie, "a|b"),
		NewKey(KindMovie, "tt1").WithStream("x|y"),
	}
	for _, k := range keys {
		if !Fits(k) {
			t.Fatalf("test key %+v should fit", k)
		}
		if _, err := EncodeExact(k); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("EncodeExact(%+v) error = %v, want ErrInvalidKey", k, err)
		}
		if got, err := Decode(Encode(k)); err == nil && got == k {
			t.Errorf("key %+v with a separator decoded back unchanged", k)
		}
	}
}

func TestDecodeMalformed(t *testing.T) {
	var garbage, slashed uuid.UUID
	copy(garbage[:], "x|tt1")
	copy(slashed[:], "m|a/b")
	for _, id := range []uuid.UUID{uuid.Nil, garbage, slashed, Hash(NewKey(KindMovie, "tt0111161"))} {
		if _, err := Decode(id); !errors.Is(err, ErrMalformedIdentifier) {
			t.Errorf("Decode(%s) error = %v, want ErrMalformedIdentifier", id, err)
		}
	}
}

func TestHashStableAndDistinct(t *testing.T) {
	a := Hash(NewKey(KindMovie, "tt0111161"))
	b := Hash(NewKey(KindMovie, "tt0111161"))
	c := Hash(NewKey(KindSeries, "tt0111161"))
	d := Hash(NewKey(KindMovie, "tt0111161").WithStream("x"))
	if a != b {
		t.Error("hash is not stable")
	}
	if a == c || a == d {
		t.Error("distinct keys hashed to the same identifier")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		key     TitleKey
		wantErr bool
	}{
		{NewKey(KindMovie, "tt1"), false},
		{NewKey(KindMovie, ""), true},
		{NewKey("book", "tt1"), true},
		{NewKey(KindMovie, "a|b"), true},
		{NewKey(KindMovie, "tt1").WithStream("x/y"), true},
	}
	for _, tt := range tests {
		err := tt.key.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("Validate(%+v) = %v, wantErr %v", tt.key, err, tt.wantErr)
		}
	}
}

func TestResolve(t *testing.T) {
	k := NewKey(KindMovie, "tt0111161")
	got, err := Resolve(Encode(k).String())
	if err != nil || got != k {
		t.Fatalf("Resolve(encoded) = %+v, %v", got, err)
	}
	got, err = Resolve("stremio://movie/tt0111161")
	if err != nil || got != k {
		t.Fatalf("Resolve(canonical) = %+v, %v", got, err)
	}
	if _, err := Resolve("not a key"); !errors.Is(err, ErrFormat) {
		t.Errorf("Resolve(garbage) error = %v", err)
	}
}
