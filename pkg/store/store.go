package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/arnavshah/ward-census-api/pkg/database"
	"github.com/arnavshah/ward-census-api/pkg/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound is returned when a ward or form does not exist
	ErrNotFound = errors.New("not found")
	// ErrFormLocked is returned when a final or approved form would be overwritten
	ErrFormLocked = errors.New("form is locked")
	// ErrInvalidForm is returned for malformed form input
	ErrInvalidForm = errors.New("invalid form")
)

// GormStore reads and writes ward census data through gorm
type GormStore struct {
	db       *gorm.DB
	logger   *zap.Logger
	onChange func(ctx context.Context, wardIDs ...string)
}

// NewGormStore creates a store over an already migrated database
func NewGormStore(db *gorm.DB, logger *zap.Logger) *GormStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormStore{db: db, logger: logger}
}

// OnChange registers fn to be called with the wards touched by every
// successful write
func (s *GormStore) OnChange(fn func(ctx context.Context, wardIDs ...string)) {
	s.onChange = fn
}

func (s *GormStore) changed(ctx context.Context, wardIDs ...string) {
	if s.onChange != nil {
		s.onChange(ctx, wardIDs...)
	}
}

// GetShiftRecords returns every raw record for one ward-day from both sources
func (s *GormStore) GetShiftRecords(ctx context.Context, wardID, date string) ([]models.ShiftRecord, error) {
	return s.GetShiftRecordsInRange(ctx, wardID, date, date)
}

// GetShiftRecordsInRange returns every raw record for one ward between two
// zero-padded dates inclusive. Live forms come before daily summaries.
func (s *GormStore) GetShiftRecordsInRange(ctx context.Context, wardID, start, end string) ([]models.ShiftRecord, error) {
	var forms []database.WardForm
	err := s.db.WithContext(ctx).
		Where("ward_id = ? AND date >= ? AND date <= ?", wardID, start, end).
		Order("date, shift").
		Find(&forms).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query ward forms for %s: %w", wardID, err)
	}

	var summaries []database.DailySummary
	err = s.db.WithContext(ctx).
		Where("ward_id = ? AND date >= ? AND date <= ?", wardID, start, end).
		Order("date").
		Find(&summaries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query daily summaries for %s: %w", wardID, err)
	}

	records := make([]models.ShiftRecord, 0, len(forms)+2*len(summaries))
	for _, f := range forms {
		records = append(records, toShiftRecord(recordMeta{
			wardID:    f.WardID,
			date:      f.Date,
			shift:     models.Shift(f.Shift),
			status:    models.FormStatus(f.Status),
			source:    models.SourceLiveForm,
			updatedAt: f.UpdatedAt,
		}, f.Counts, s.logger))
	}
	for _, d := range summaries {
		meta := recordMeta{
			wardID:    d.WardID,
			date:      d.Date,
			status:    models.StatusFinal,
			source:    models.SourceDailySummary,
			updatedAt: d.UpdatedAt,
		}
		if d.MorningRecorded {
			meta.shift = models.ShiftMorning
			records = append(records, toShiftRecord(meta, d.Morning, s.logger))
		}
		if d.NightRecorded {
			meta.shift = models.ShiftNight
			records = append(records, toShiftRecord(meta, d.Night, s.logger))
		}
	}
	return records, nil
}

// ListWards returns every active ward in display order
func (s *GormStore) ListWards(ctx context.Context) ([]models.Ward, error) {
	var rows []database.Ward
	if err := s.db.WithContext(ctx).Where("archived = ?", false).Order("sort_order, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list wards: %w", err)
	}

	wards := make([]models.Ward, 0, len(rows))
	for _, r := range rows {
		wards = append(wards, models.Ward{ID: r.ID, Name: r.Name})
	}
	return wards, nil
}

// ListAccessibleWards filters the ward catalog by the caller's role.
// Admins and supervisors see every ward, nurses see their own ward only.
func (s *GormStore) ListAccessibleWards(ctx context.Context, user models.UserContext) ([]models.Ward, error) {
	wards, err := s.ListWards(ctx)
	if err != nil {
		return nil, err
	}
	return FilterWards(wards, user), nil
}

// FilterWards keeps the wards a user may see, preserving order
func FilterWards(wards []models.Ward, user models.UserContext) []models.Ward {
	if user.SeesAllWards() {
		return wards
	}

	visible := make([]models.Ward, 0, 1)
	if user.Role != models.RoleNurse || user.WardID == "" {
		return visible
	}
	for _, w := range wards {
		if w.ID == user.WardID {
			visible = append(visible, w)
		}
	}
	return visible
}

// UpsertWard creates or updates a ward catalog entry
func (s *GormStore) UpsertWard(ctx context.Context, ward database.Ward) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "sort_order", "archived"}),
	}).Create(&ward).Error
	if err != nil {
		return fmt.Errorf("failed to upsert ward %s: %w", ward.ID, err)
	}
	s.changed(ctx, ward.ID)
	return nil
}

func (s *GormStore) wardExists(ctx context.Context, wardID string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&database.Ward{}).Where("id = ?", wardID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
