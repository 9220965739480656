package census

import (
	"sort"

	"github.com/arnavshah/ward-census-api/pkg/models"
	"go.uber.org/zap"
)

// Reconcile picks the authoritative record per shift for one ward-day.
// A live form always beats a daily summary for the same shift, even when all
// of its counts are zero.
func Reconcile(records []models.ShiftRecord, logger *zap.Logger) models.ReconciledDay {
	if logger == nil {
		logger = zap.NewNop()
	}

	var morning, night []models.ShiftRecord
	for _, r := range records {
		switch r.Shift {
		case models.ShiftMorning:
			morning = append(morning, r)
		case models.ShiftNight:
			night = append(night, r)
		default:
			logger.Warn("Ignoring record with unknown shift",
				zap.String("ward_id", r.WardID),
				zap.String("date", r.Date),
				zap.String("shift", string(r.Shift)),
			)
		}
	}

	return models.ReconciledDay{
		Morning: pickShift(morning, logger),
		Night:   pickShift(night, logger),
	}
}

// pickShift chooses one record out of a single shift partition
func pickShift(candidates []models.ShiftRecord, logger *zap.Logger) *models.ShiftRecord {
	if len(candidates) == 0 {
		return nil
	}

	var live, summaries []models.ShiftRecord
	for _, c := range candidates {
		if c.Source == models.SourceLiveForm {
			live = append(live, c)
		} else {
			summaries = append(summaries, c)
		}
	}

	pool := live
	if len(pool) == 0 {
		pool = summaries
	}

	topRank := pool[0].Status.Rank()
	for _, c := range pool[1:] {
		if r := c.Status.Rank(); r > topRank {
			topRank = r
		}
	}

	// newest update marker among the highest status wins; unmarked records
	// only decide when no record carries a marker
	var top []models.ShiftRecord
	var best *models.ShiftRecord
	for i := range pool {
		c := pool[i]
		if c.Status.Rank() != topRank {
			continue
		}
		top = append(top, c)
		if !c.UpdatedAt.IsZero() && (best == nil || c.UpdatedAt.After(best.UpdatedAt)) {
			best = &pool[i]
		}
	}

	ambiguous := false
	if best == nil {
		best = &top[0]
		ambiguous = len(top) > 1
	}
	picked := *best

	if ambiguous {
		logger.Warn("Multiple records for one shift without update marker, keeping first",
			zap.String("ward_id", picked.WardID),
			zap.String("date", picked.Date),
			zap.String("shift", string(picked.Shift)),
			zap.String("source", string(picked.Source)),
			zap.Int("candidates", len(top)),
		)
	}

	return &picked
}

// GroupByDate partitions records by date string
func GroupByDate(records []models.ShiftRecord) map[string][]models.ShiftRecord {
	byDate := make(map[string][]models.ShiftRecord)
	for _, r := range records {
		byDate[r.Date] = append(byDate[r.Date], r)
	}
	return byDate
}

// DailyRollups reconciles and aggregates one ward's records into a rollup per
// date that has at least one record, ascending by date.
func DailyRollups(wardID string, records []models.ShiftRecord, logger *zap.Logger) []models.DayRollup {
	byDate := GroupByDate(records)

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	rollups := make([]models.DayRollup, 0, len(dates))
	for _, d := range dates {
		day := Reconcile(byDate[d], logger)
		rollup := AggregateDay(day.Morning, day.Night)
		rollup.WardID = wardID
		rollup.Date = d
		rollups = append(rollups, rollup)
	}
	return rollups
}
