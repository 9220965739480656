package store

import (
	"context"
	"fmt"

	"github.com/arnavshah/ward-census-api/pkg/census"
	"github.com/arnavshah/ward-census-api/pkg/database"
	"go.uber.org/zap"
)

// SummaryInput is one precomputed daily summary pushed by an ingestion
// client. A nil shift means that shift was not recorded.
type SummaryInput struct {
	WardID  string                `json:"ward_id" binding:"required"`
	Date    string                `json:"date" binding:"required"`
	Morning *database.ShiftCounts `json:"morning"`
	Night   *database.ShiftCounts `json:"night"`
}

// Validate checks the shape of a summary. Negative counts are accepted here
// and clamped when read back.
func (in SummaryInput) Validate() error {
	if in.WardID == "" {
		return fmt.Errorf("%w: ward_id is required", ErrInvalidForm)
	}
	if _, err := census.ParseDate(in.Date); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidForm, err)
	}
	if in.Morning == nil && in.Night == nil {
		return fmt.Errorf("%w: %s %s has no recorded shift", ErrInvalidForm, in.WardID, in.Date)
	}
	return nil
}

func (in SummaryInput) toDailySummary() *database.DailySummary {
	summary := &database.DailySummary{WardID: in.WardID, Date: in.Date}
	if in.Morning != nil {
		summary.MorningRecorded = true
		summary.Morning = *in.Morning
	}
	if in.Night != nil {
		summary.NightRecorded = true
		summary.Night = *in.Night
	}
	return summary
}

// ValidateSummaries checks every input without writing, including that each
// ward exists and no ward-day appears twice
func (s *GormStore) ValidateSummaries(ctx context.Context, inputs []SummaryInput) error {
	if len(inputs) == 0 {
		return fmt.Errorf("%w: at least one summary is required", ErrInvalidForm)
	}

	seen := make(map[string]bool, len(inputs))
	known := make(map[string]bool)
	for _, in := range inputs {
		if err := in.Validate(); err != nil {
			return err
		}
		key := in.WardID + "|" + in.Date
		if seen[key] {
			return fmt.Errorf("%w: duplicate summary for %s %s", ErrInvalidForm, in.WardID, in.Date)
		}
		seen[key] = true

		if _, checked := known[in.WardID]; !checked {
			ok, err := s.wardExists(ctx, in.WardID)
			if err != nil {
				return fmt.Errorf("failed to look up ward %s: %w", in.WardID, err)
			}
			known[in.WardID] = ok
		}
		if !known[in.WardID] {
			return fmt.Errorf("ward %s: %w", in.WardID, ErrNotFound)
		}
	}
	return nil
}

// IngestSummaries validates the whole batch, then upserts each summary.
// It returns the number written.
func (s *GormStore) IngestSummaries(ctx context.Context, inputs []SummaryInput, client string) (int, error) {
	if err := s.ValidateSummaries(ctx, inputs); err != nil {
		return 0, err
	}

	for i, in := range inputs {
		if err := s.UpsertDailySummary(ctx, in.toDailySummary()); err != nil {
			return i, err
		}
	}

	s.logger.Info("Ingested daily summaries", zap.String("client", client), zap.Int("count", len(inputs)))
	return len(inputs), nil
}
