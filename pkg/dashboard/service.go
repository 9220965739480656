package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/arnavshah/ward-census-api/pkg/cache"
	"github.com/arnavshah/ward-census-api/pkg/census"
	"github.com/arnavshah/ward-census-api/pkg/models"
	"go.uber.org/zap"
)

// ErrWardNotAccessible is returned when a single-ward view names a ward the
// caller cannot see
var ErrWardNotAccessible = errors.New("ward not accessible")

// RecordSource is the read side of the document store
type RecordSource interface {
	GetShiftRecords(ctx context.Context, wardID, date string) ([]models.ShiftRecord, error)
	GetShiftRecordsInRange(ctx context.Context, wardID, start, end string) ([]models.ShiftRecord, error)
	ListWards(ctx context.Context) ([]models.Ward, error)
	ListAccessibleWards(ctx context.Context, user models.UserContext) ([]models.Ward, error)
}

// Query selects a dashboard view
type Query struct {
	User      models.UserContext
	Selection models.WardSelection
	Start     string
	End       string
}

// Options tunes a Service. A nil Cache disables memoization.
type Options struct {
	Cache        cache.KVStore
	CacheTTL     time.Duration
	MaxRangeDays int
}

// Service builds dashboard views from a RecordSource
type Service struct {
	source       RecordSource
	logger       *zap.Logger
	kv           cache.KVStore
	ttl          time.Duration
	maxRangeDays int
	Tracker      *Tracker
}

// NewService creates a dashboard service
func NewService(source RecordSource, logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Service{
		source:       source,
		logger:       logger,
		kv:           opts.Cache,
		ttl:          ttl,
		maxRangeDays: opts.MaxRangeDays,
		Tracker:      NewTracker(),
	}
}

// Wards returns the wards the user may see
func (s *Service) Wards(ctx context.Context, user models.UserContext) ([]models.Ward, error) {
	return s.source.ListAccessibleWards(ctx, user)
}

// Summary returns the per-ward table with its grand total
func (s *Service) Summary(ctx context.Context, q Query) (*models.WardSetSummary, error) {
	wards, err := s.resolveWards(ctx, q)
	if err != nil {
		return nil, err
	}

	return memo(ctx, s, s.viewKey(ctx, "summary", wards, q.Start, q.End), func() (*models.WardSetSummary, bool, error) {
		results := s.fetchAll(ctx, wards, q.Start, q.End)

		perWard := make(map[string]models.RangeSummary, len(wards))
		var unavailable []string
		for i, w := range wards {
			if results[i].err != nil {
				unavailable = append(unavailable, w.ID)
				continue
			}
			perWard[w.ID] = census.AggregateRange(results[i].days)
		}

		summary := census.SummarizeWardSet(q.Start, q.End, wards, perWard)
		summary.Unavailable = unavailable
		return &summary, len(unavailable) == 0, nil
	})
}

// Trend returns one point per date for the line chart. Wards whose records
// could not be fetched are zero-filled and listed in Unavailable.
func (s *Service) Trend(ctx context.Context, q Query) (*models.TrendSeries, error) {
	wards, err := s.resolveWards(ctx, q)
	if err != nil {
		return nil, err
	}

	return memo(ctx, s, s.viewKey(ctx, "trend", wards, q.Start, q.End), func() (*models.TrendSeries, bool, error) {
		results := s.fetchAll(ctx, wards, q.Start, q.End)

		perWardDays := make(map[string]map[string]models.DayRollup, len(wards))
		var unavailable []string
		for i, w := range wards {
			if results[i].err != nil {
				unavailable = append(unavailable, w.ID)
				continue
			}
			byDate := make(map[string]models.DayRollup, len(results[i].days))
			for _, d := range results[i].days {
				byDate[d.Date] = d
			}
			perWardDays[w.ID] = byDate
		}

		points, err := census.BuildTrend(q.Start, q.End, wards, perWardDays)
		if err != nil {
			return nil, false, err
		}
		return &models.TrendSeries{
			Start:       q.Start,
			End:         q.End,
			Points:      points,
			Unavailable: unavailable,
		}, len(unavailable) == 0, nil
	})
}

// Beds returns the bed pie slices for the selection
func (s *Service) Beds(ctx context.Context, q Query) ([]models.BedSlice, error) {
	summary, err := s.Summary(ctx, q)
	if err != nil {
		return nil, err
	}
	return census.ProjectBeds(census.BedInputs(summary.Rows)), nil
}

// resolveWards validates the range and turns the selection into an ordered ward list
func (s *Service) resolveWards(ctx context.Context, q Query) ([]models.Ward, error) {
	if err := census.ValidateRange(q.Start, q.End, s.maxRangeDays); err != nil {
		return nil, err
	}

	accessible, err := s.source.ListAccessibleWards(ctx, q.User)
	if err != nil {
		return nil, fmt.Errorf("failed to list wards: %w", err)
	}

	if q.Selection.Kind != models.SelectSingle {
		return accessible, nil
	}
	for _, w := range accessible {
		if w.ID == q.Selection.WardID {
			return []models.Ward{w}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrWardNotAccessible, q.Selection.WardID)
}

type wardResult struct {
	days []models.DayRollup
	err  error
}

// fetchAll queries every ward in parallel and waits for all of them.
// A failed ward is logged and reported in its slot; it never aborts the others.
func (s *Service) fetchAll(ctx context.Context, wards []models.Ward, start, end string) []wardResult {
	results := make([]wardResult, len(wards))

	var wg sync.WaitGroup
	for i, w := range wards {
		wg.Add(1)
		go func(i int, w models.Ward) {
			defer wg.Done()

			var (
				records []models.ShiftRecord
				err     error
			)
			if start == end {
				records, err = s.source.GetShiftRecords(ctx, w.ID, start)
			} else {
				records, err = s.source.GetShiftRecordsInRange(ctx, w.ID, start, end)
			}
			if err != nil {
				s.logger.Warn("Failed to fetch ward records, using zero summary",
					zap.String("ward_id", w.ID),
					zap.String("start", start),
					zap.String("end", end),
					zap.Error(err),
				)
				results[i] = wardResult{err: err}
				return
			}

			results[i] = wardResult{days: census.DailyRollups(w.ID, inRange(records, w.ID, start, end), s.logger)}
		}(i, w)
	}
	wg.Wait()

	return results
}

// inRange drops records a source returned for another ward or outside the range
func inRange(records []models.ShiftRecord, wardID, start, end string) []models.ShiftRecord {
	kept := records[:0:0]
	for _, r := range records {
		if r.WardID == wardID && r.Date >= start && r.Date <= end {
			kept = append(kept, r)
		}
	}
	return kept
}

func versionKey(wardID string) string {
	return "census:ver:" + wardID
}

// viewKey names a cached view. It embeds the current data version of every
// ward so that a write to any of them moves readers to a fresh key. An empty
// key means the versions could not be read and the view must not be cached.
func (s *Service) viewKey(ctx context.Context, view string, wards []models.Ward, start, end string) string {
	if s.kv == nil {
		return ""
	}

	keys := make([]string, len(wards))
	for i, w := range wards {
		keys[i] = versionKey(w.ID)
	}
	versions, err := s.kv.MGet(ctx, keys...)
	if err != nil {
		s.logger.Warn("Cache version read failed, serving uncached", zap.String("view", view), zap.Error(err))
		return ""
	}

	parts := make([]string, len(wards))
	for i, w := range wards {
		v := "0"
		if i < len(versions) && versions[i] != "" {
			v = versions[i]
		}
		parts[i] = w.ID + "@" + v
	}
	return fmt.Sprintf("census:%s:%s:%s:%s", view, start, end, strings.Join(parts, ","))
}

// Invalidate bumps the data version of each ward so cached views that
// include it are no longer read
func (s *Service) Invalidate(ctx context.Context, wardIDs ...string) {
	if s.kv == nil {
		return
	}
	for _, id := range wardIDs {
		if _, err := s.kv.Incr(ctx, versionKey(id)); err != nil {
			s.logger.Warn("Cache invalidation failed", zap.String("ward_id", id), zap.Error(err))
		}
	}
}

// memo serves a view from the cache when configured, computing and storing it
// otherwise. compute reports whether its result is complete enough to cache.
// An empty key or a cache failure falls back to computing.
func memo[T any](ctx context.Context, s *Service, key string, compute func() (T, bool, error)) (T, error) {
	useCache := s.kv != nil && key != ""
	if useCache {
		raw, err := s.kv.Get(ctx, key)
		switch {
		case err == nil:
			var v T
			if jerr := json.Unmarshal([]byte(raw), &v); jerr == nil {
				return v, nil
			}
			s.logger.Warn("Discarding undecodable cache entry", zap.String("key", key))
		case !errors.Is(err, cache.ErrCacheMiss):
			s.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	v, cacheable, err := compute()
	if err != nil || !useCache || !cacheable {
		return v, err
	}

	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("Failed to encode view for cache", zap.String("key", key), zap.Error(err))
		return v, nil
	}
	if err := s.kv.Set(ctx, key, string(data), s.ttl); err != nil {
		s.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
	return v, nil
}
