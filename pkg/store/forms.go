package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/arnavshah/ward-census-api/pkg/census"
	"github.com/arnavshah/ward-census-api/pkg/database"
	"github.com/arnavshah/ward-census-api/pkg/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FormInput is one ward form submission
type FormInput struct {
	WardID string               `json:"ward_id" binding:"required"`
	Date   string               `json:"date" binding:"required"`
	Shift  models.Shift         `json:"shift" binding:"required"`
	Status models.FormStatus    `json:"status"`
	Counts database.ShiftCounts `json:"counts"`
}

// Validate checks a submission before it touches the database
func (in *FormInput) Validate() error {
	if in.Status == "" {
		in.Status = models.StatusDraft
	}
	if _, err := census.ParseDate(in.Date); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidForm, err)
	}
	if !in.Shift.Valid() {
		return fmt.Errorf("%w: unknown shift %q", ErrInvalidForm, in.Shift)
	}
	if in.Status != models.StatusDraft && in.Status != models.StatusFinal {
		return fmt.Errorf("%w: status must be draft or final", ErrInvalidForm)
	}
	if field := negativeField(in.Counts); field != "" {
		return fmt.Errorf("%w: %s is negative", ErrInvalidForm, field)
	}
	return nil
}

// SaveForm creates or updates the live form for a ward, date and shift.
// Drafts may be overwritten or promoted to final; final and approved forms are locked.
func (s *GormStore) SaveForm(ctx context.Context, in FormInput, username string) (*database.WardForm, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	ok, err := s.wardExists(ctx, in.WardID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up ward %s: %w", in.WardID, err)
	}
	if !ok {
		return nil, fmt.Errorf("ward %s: %w", in.WardID, ErrNotFound)
	}

	var saved database.WardForm
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing database.WardForm
		err := tx.Where("ward_id = ? AND date = ? AND shift = ?", in.WardID, in.Date, string(in.Shift)).
			First(&existing).Error

		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			saved = database.WardForm{
				ID:        uuid.NewString(),
				WardID:    in.WardID,
				Date:      in.Date,
				Shift:     string(in.Shift),
				Status:    string(in.Status),
				Counts:    in.Counts,
				CreatedBy: username,
			}
			return tx.Create(&saved).Error
		case err != nil:
			return err
		}

		if models.FormStatus(existing.Status).Locked() {
			return ErrFormLocked
		}
		existing.Status = string(in.Status)
		existing.Counts = in.Counts
		saved = existing
		return tx.Save(&saved).Error
	})
	if err != nil {
		if errors.Is(err, ErrFormLocked) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to save form: %w", err)
	}
	s.changed(ctx, saved.WardID)

	s.logger.Info("Saved ward form",
		zap.String("form_id", saved.ID),
		zap.String("ward_id", saved.WardID),
		zap.String("date", saved.Date),
		zap.String("shift", saved.Shift),
		zap.String("status", saved.Status),
		zap.String("user", username),
	)
	return &saved, nil
}

// GetForm returns the stored form so a client can resume a draft
func (s *GormStore) GetForm(ctx context.Context, wardID, date string, shift models.Shift) (*database.WardForm, error) {
	var form database.WardForm
	err := s.db.WithContext(ctx).
		Where("ward_id = ? AND date = ? AND shift = ?", wardID, date, string(shift)).
		First(&form).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get form: %w", err)
	}
	return &form, nil
}

// ApproveForm moves a final form to approved. Drafts cannot be approved.
func (s *GormStore) ApproveForm(ctx context.Context, id, username string) (*database.WardForm, error) {
	var form database.WardForm
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&form).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get form: %w", err)
	}

	switch models.FormStatus(form.Status) {
	case models.StatusApproved:
		return &form, nil
	case models.StatusFinal:
	default:
		return nil, fmt.Errorf("%w: only final forms can be approved", ErrInvalidForm)
	}

	form.Status = string(models.StatusApproved)
	if err := s.db.WithContext(ctx).Save(&form).Error; err != nil {
		return nil, fmt.Errorf("failed to approve form: %w", err)
	}
	s.changed(ctx, form.WardID)

	s.logger.Info("Approved ward form", zap.String("form_id", form.ID), zap.String("user", username))
	return &form, nil
}

// UpsertDailySummary stores a precomputed summary, replacing any for the same ward-day
func (s *GormStore) UpsertDailySummary(ctx context.Context, summary *database.DailySummary) error {
	if _, err := census.ParseDate(summary.Date); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidForm, err)
	}
	if summary.WardID == "" {
		return fmt.Errorf("%w: ward_id is required", ErrInvalidForm)
	}
	if summary.ID == "" {
		summary.ID = uuid.NewString()
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ward_id"}, {Name: "date"}},
		UpdateAll: true,
	}).Create(summary).Error
	if err != nil {
		return fmt.Errorf("failed to upsert daily summary: %w", err)
	}
	s.changed(ctx, summary.WardID)
	return nil
}

// RollupDailySummaries precomputes the daily summary of every ward for date
// from its final and approved live forms. Drafts are skipped. It returns the
// number of summaries written.
func (s *GormStore) RollupDailySummaries(ctx context.Context, date string) (int, error) {
	if _, err := census.ParseDate(date); err != nil {
		return 0, err
	}

	wards, err := s.ListWards(ctx)
	if err != nil {
		return 0, err
	}

	var forms []database.WardForm
	err = s.db.WithContext(ctx).
		Where("date = ? AND status IN ?", date, []string{string(models.StatusFinal), string(models.StatusApproved)}).
		Find(&forms).Error
	if err != nil {
		return 0, fmt.Errorf("failed to query forms for rollup: %w", err)
	}

	byWard := make(map[string][]models.ShiftRecord)
	for _, f := range forms {
		byWard[f.WardID] = append(byWard[f.WardID], toShiftRecord(recordMeta{
			wardID:    f.WardID,
			date:      f.Date,
			shift:     models.Shift(f.Shift),
			status:    models.FormStatus(f.Status),
			source:    models.SourceLiveForm,
			updatedAt: f.UpdatedAt,
		}, f.Counts, s.logger))
	}

	written := 0
	for _, w := range wards {
		day := census.Reconcile(byWard[w.ID], s.logger)
		if !day.HasData() {
			continue
		}

		summary := &database.DailySummary{WardID: w.ID, Date: date}
		if day.Morning != nil {
			summary.MorningRecorded = true
			summary.Morning = toShiftCounts(*day.Morning)
		}
		if day.Night != nil {
			summary.NightRecorded = true
			summary.Night = toShiftCounts(*day.Night)
		}
		if err := s.UpsertDailySummary(ctx, summary); err != nil {
			return written, err
		}
		written++
	}

	s.logger.Info("Rolled up daily summaries",
		zap.String("date", date),
		zap.Int("wards", len(wards)),
		zap.Int("written", written),
	)
	return written, nil
}
