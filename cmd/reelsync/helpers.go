package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mmcdole/reelsync/internal/domain"
	"github.com/mmcdole/reelsync/internal/identity"
	"github.com/mmcdole/reelsync/internal/tui/styles"
)

// parseUser reads a --user flag. Empty selects the global sync principal.
func parseUser(raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --user %q: %w", raw, err)
	}
	return id, nil
}

// parseKinds reads a --kind flag. Empty means movies and series.
func parseKinds(raw string) ([]identity.MediaKind, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	kind, err := identity.ParseKind(raw)
	if err != nil {
		return nil, err
	}
	return []identity.MediaKind{kind}, nil
}

func sourceChar(st *domain.StreamState) string {
	if st != nil && st.InfoHash != "" {
		return styles.SwarmChar
	}
	return styles.WebChar
}

func yearString(year int) string {
	if year == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", year)
}
