package catalog

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/google/uuid"

	"github.com/mmcdole/reelsync/internal/addon"
	"github.com/mmcdole/reelsync/internal/coordinator"
	"github.com/mmcdole/reelsync/internal/domain"
	"github.com/mmcdole/reelsync/internal/identity"
	"github.com/mmcdole/reelsync/internal/metrics"
)

// MetaSource supplies full metadata when a listing only carried a summary
type MetaSource interface {
	GetMeta(ctx context.Context, kind identity.MediaKind, externalID string) *addon.Meta
}

// Importer turns addon metadata into catalog entries
type Importer struct {
	store  domain.Store
	writer *Writer
	coord  *coordinator.Coordinator
	metas  MetaSource
	logger *slog.Logger
}

// NewImporter creates an Importer. metas may be nil, in which case series
// are imported with whatever videos the given meta carries.
func NewImporter(store domain.Store, writer *Writer, coord *coordinator.Coordinator, metas MetaSource, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{store: store, writer: writer, coord: coord, metas: metas, logger: logger}
}

type insertResult struct {
	entry   *domain.Entry
	created bool
}

// TitleID returns the derived id of a primary title entry
func TitleID(key identity.TitleKey) uuid.UUID {
	return identity.Hash(key.Title())
}

func importKey(key identity.TitleKey) string {
	return "import:" + TitleID(key).String()
}

// InsertIfMissing returns the title under parent matching meta, creating it when absent.
// Existing entries are returned unmodified with created=false. Series are created with
// their seasons and episodes.
func (im *Importer) InsertIfMissing(ctx context.Context, parent *domain.Entry, meta *addon.Meta) (*domain.Entry, bool, error) {
	key := meta.Key()
	if err := key.Validate(); err != nil {
		return nil, false, err
	}

	res, err := coordinator.Queued(ctx, im.coord, importKey(key), func(ctx context.Context) (insertResult, error) {
		// Existence is only trustworthy once the key is held
		existing, err := im.findTitle(ctx, parent.ID, meta)
		if err != nil {
			return insertResult{}, err
		}
		if existing != nil {
			return insertResult{entry: existing}, nil
		}

		entry, err := im.createTitle(ctx, parent, meta)
		if err != nil {
			return insertResult{}, err
		}
		return insertResult{entry: entry, created: true}, nil
	})
	if err != nil {
		return nil, false, err
	}
	return res.entry, res.created, nil
}

// EnsureEpisodes adds episodes of meta missing under series. Returns how many were created.
func (im *Importer) EnsureEpisodes(ctx context.Context, series *domain.Entry, meta *addon.Meta) (int, error) {
	if series.Kind != domain.KindSeries {
		return 0, fmt.Errorf("entry %s is a %s, not a series", series.ID, series.Kind)
	}
	return coordinator.Queued(ctx, im.coord, importKey(meta.Key()), func(ctx context.Context) (int, error) {
		return im.importEpisodes(ctx, series, im.withVideos(ctx, meta))
	})
}

func (im *Importer) findTitle(ctx context.Context, parentID uuid.UUID, meta *addon.Meta) (*domain.Entry, error) {
	candidates, err := im.store.Query(ctx, domain.Query{
		ParentID:      parentID,
		ProviderName:  domain.ProviderStremio,
		ProviderValue: meta.ID,
		Kind:          domain.KindPtr(entryKind(meta.Kind)),
	})
	if err != nil {
		return nil, err
	}
	for _, c := range candidates {
		if !c.IsAlternate() {
			return c, nil
		}
	}
	return nil, nil
}

func entryKind(kind identity.MediaKind) domain.ItemKind {
	if kind == identity.KindSeries {
		return domain.KindSeries
	}
	return domain.KindMovie
}

func (im *Importer) createTitle(ctx context.Context, parent *domain.Entry, meta *addon.Meta) (*domain.Entry, error) {
	entry := &domain.Entry{
		ID:       TitleID(meta.Key()),
		Kind:     entryKind(meta.Kind),
		Name:     meta.Name,
		ParentID: parent.ID,
		Path:     im.writer.paths.TitlePath(parent, meta.Name, meta.Year, meta.ID),
		Year:     meta.Year,
		Overview: meta.Overview,
	}
	entry.SetProviderID(domain.ProviderStremio, meta.ID)

	if err := im.store.Upsert(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to create %s %q: %w", entry.Kind, meta.Name, err)
	}
	metrics.TitlesImported.WithLabelValues(entry.Kind.String()).Inc()
	im.logger.Info("imported title", "kind", entry.Kind, "name", meta.Name, "id", meta.ID)

	if entry.Kind == domain.KindSeries {
		created, err := im.importEpisodes(ctx, entry, im.withVideos(ctx, meta))
		if err != nil {
			return entry, err
		}
		im.logger.Debug("imported episodes", "series", meta.ID, "count", created)
	}
	return entry, nil
}

// withVideos returns meta with its episode list, fetching full metadata when missing
func (im *Importer) withVideos(ctx context.Context, meta *addon.Meta) *addon.Meta {
	if len(meta.Videos) > 0 || im.metas == nil {
		return meta
	}
	if full := im.metas.GetMeta(ctx, meta.Kind, meta.ID); full != nil {
		return full
	}
	return meta
}

// importEpisodes creates missing seasons and episodes, skipping episodes that exist by index
func (im *Importer) importEpisodes(ctx context.Context, series *domain.Entry, meta *addon.Meta) (int, error) {
	bySeason := make(map[int][]addon.Video)
	for _, v := range meta.Videos {
		if v.Episode <= 0 {
			continue
		}
		bySeason[v.Season] = append(bySeason[v.Season], v)
	}
	if len(bySeason) == 0 {
		return 0, nil
	}

	seasons, err := im.children(ctx, series.ID, domain.KindSeason)
	if err != nil {
		return 0, err
	}
	seasonByNum := make(map[int]*domain.Entry, len(seasons))
	for _, s := range seasons {
		seasonByNum[s.IndexNumber] = s
	}

	nums := make([]int, 0, len(bySeason))
	for n := range bySeason {
		nums = append(nums, n)
	}
	slices.Sort(nums)

	created := 0
	for _, num := range nums {
		var batch []*domain.Entry
		season, ok := seasonByNum[num]
		if !ok {
			season = im.newSeason(series, num)
			batch = append(batch, season)
		}

		existing, err := im.children(ctx, season.ID, domain.KindEpisode)
		if err != nil {
			return created, err
		}
		have := make(map[int]bool, len(existing))
		for _, e := range existing {
			have[e.IndexNumber] = true
		}

		videos := bySeason[num]
		slices.SortStableFunc(videos, func(a, b addon.Video) int { return cmp.Compare(a.Episode, b.Episode) })
		for _, v := range videos {
			if have[v.Episode] {
				continue
			}
			have[v.Episode] = true
			batch = append(batch, im.newEpisode(season, v))
		}
		if len(batch) == 0 {
			continue
		}

		if err := im.store.Upsert(ctx, batch...); err != nil {
			return created, fmt.Errorf("failed to write season %d of %s: %w", num, series.ID, err)
		}
		for _, e := range batch {
			if e.Kind == domain.KindEpisode {
				created++
			}
			metrics.TitlesImported.WithLabelValues(e.Kind.String()).Inc()
		}
	}
	return created, nil
}

func (im *Importer) children(ctx context.Context, parentID uuid.UUID, kind domain.ItemKind) ([]*domain.Entry, error) {
	entries, err := im.store.Query(ctx, domain.Query{ParentID: parentID, Kind: domain.KindPtr(kind)})
	if err != nil {
		return nil, err
	}
	out := entries[:0]
	for _, e := range entries {
		if !e.IsAlternate() {
			out = append(out, e)
		}
	}
	return out, nil
}

func (im *Importer) newSeason(series *domain.Entry, num int) *domain.Entry {
	seriesID := series.ProviderID(domain.ProviderStremio)
	seasonKey := seriesID + ":" + strconv.Itoa(num)
	season := &domain.Entry{
		ID:          identity.Hash(identity.NewKey(identity.KindSeries, seasonKey)),
		Kind:        domain.KindSeason,
		Name:        fmt.Sprintf("Season %d", num),
		ParentID:    series.ID,
		Path:        im.writer.paths.SeasonPath(series, num),
		IndexNumber: num,
	}
	season.SetProviderID(domain.ProviderStremio, seasonKey)
	return season
}

func (im *Importer) newEpisode(season *domain.Entry, v addon.Video) *domain.Entry {
	name := v.Name
	if name == "" {
		name = fmt.Sprintf("Episode %d", v.Episode)
	}
	ep := &domain.Entry{
		ID:                identity.Hash(identity.NewKey(identity.KindSeries, v.ID)),
		Kind:              domain.KindEpisode,
		Name:              name,
		ParentID:          season.ID,
		Path:              im.writer.paths.EpisodePath(season, v.Season, v.Episode, v.Name),
		Overview:          v.Overview,
		IndexNumber:       v.Episode,
		ParentIndexNumber: v.Season,
	}
	ep.SetProviderID(domain.ProviderStremio, v.ID)
	return ep
}

// StreamKey returns the addon key used to fetch streams for a playable entry
func StreamKey(e *domain.Entry) (identity.TitleKey, error) {
	ext := e.ProviderID(domain.ProviderStremio)
	if ext == "" {
		return identity.TitleKey{}, fmt.Errorf("%w: %s", domain.ErrNoProviderKey, e.ID)
	}
	switch e.Kind {
	case domain.KindMovie:
		return identity.NewKey(identity.KindMovie, ext), nil
	case domain.KindEpisode:
		return identity.NewKey(identity.KindSeries, ext), nil
	default:
		return identity.TitleKey{}, fmt.Errorf("%w: %s is a %s", domain.ErrNotPlayable, e.ID, e.Kind)
	}
}
