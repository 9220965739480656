package store

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/arnavshah/ward-census-api/pkg/census"
	"github.com/arnavshah/ward-census-api/pkg/database"
	"github.com/arnavshah/ward-census-api/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupStore(t *testing.T) (*gorm.DB, *GormStore) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))

	s := NewGormStore(db, zap.NewNop())
	ctx := context.Background()
	require.NoError(t, s.UpsertWard(ctx, database.Ward{ID: "ICU", Name: "Intensive Care", SortOrder: 2}))
	require.NoError(t, s.UpsertWard(ctx, database.Ward{ID: "CCU", Name: "Coronary Care", SortOrder: 1}))
	require.NoError(t, s.UpsertWard(ctx, database.Ward{ID: "OLD", Name: "Closed Ward", SortOrder: 3, Archived: true}))
	return db, s
}

func intp(v int) *int { return &v }

func TestListWards_OrderedAndActiveOnly(t *testing.T) {
	_, s := setupStore(t)

	wards, err := s.ListWards(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []models.Ward{{ID: "CCU", Name: "Coronary Care"}, {ID: "ICU", Name: "Intensive Care"}}, wards)
}

func TestListAccessibleWards_ByRole(t *testing.T) {
	_, s := setupStore(t)
	ctx := context.Background()

	all, err := s.ListAccessibleWards(ctx, models.UserContext{Role: models.RoleSupervisor})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	own, err := s.ListAccessibleWards(ctx, models.UserContext{Role: models.RoleNurse, WardID: "ICU"})
	require.NoError(t, err)
	assert.Equal(t, []models.Ward{{ID: "ICU", Name: "Intensive Care"}}, own)

	none, err := s.ListAccessibleWards(ctx, models.UserContext{Role: "visitor", WardID: "ICU"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSaveForm_DraftThenFinalThenLocked(t *testing.T) {
	_, s := setupStore(t)
	ctx := context.Background()

	in := FormInput{WardID: "ICU", Date: "2024-01-01", Shift: models.ShiftMorning, Counts: database.ShiftCounts{PatientCensus: intp(10)}}
	draft, err := s.SaveForm(ctx, in, "nurse1")
	require.NoError(t, err)
	assert.Equal(t, string(models.StatusDraft), draft.Status)

	in.Status = models.StatusFinal
	in.Counts.PatientCensus = intp(12)
	final, err := s.SaveForm(ctx, in, "nurse1")
	require.NoError(t, err)
	assert.Equal(t, draft.ID, final.ID)
	assert.Equal(t, 12, *final.Counts.PatientCensus)

	_, err = s.SaveForm(ctx, in, "nurse1")
	assert.ErrorIs(t, err, ErrFormLocked)

	got, err := s.GetForm(ctx, "ICU", "2024-01-01", models.ShiftMorning)
	require.NoError(t, err)
	assert.Equal(t, string(models.StatusFinal), got.Status)
}

func TestSaveForm_Rejects(t *testing.T) {
	_, s := setupStore(t)
	ctx := context.Background()

	cases := []FormInput{
		{WardID: "ICU", Date: "2024-1-1", Shift: models.ShiftMorning},
		{WardID: "ICU", Date: "2024-01-01", Shift: "evening"},
		{WardID: "ICU", Date: "2024-01-01", Shift: models.ShiftNight, Status: models.StatusApproved},
		{WardID: "ICU", Date: "2024-01-01", Shift: models.ShiftNight, Counts: database.ShiftCounts{Deaths: intp(-1)}},
	}
	for i, in := range cases {
		_, err := s.SaveForm(ctx, in, "nurse1")
		assert.ErrorIs(t, err, ErrInvalidForm, "case %d", i)
	}

	_, err := s.SaveForm(ctx, FormInput{WardID: "NOPE", Date: "2024-01-01", Shift: models.ShiftNight}, "nurse1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApproveForm(t *testing.T) {
	_, s := setupStore(t)
	ctx := context.Background()

	draft, err := s.SaveForm(ctx, FormInput{WardID: "ICU", Date: "2024-01-01", Shift: models.ShiftNight}, "nurse1")
	require.NoError(t, err)

	_, err = s.ApproveForm(ctx, draft.ID, "sup")
	assert.ErrorIs(t, err, ErrInvalidForm)

	_, err = s.SaveForm(ctx, FormInput{WardID: "ICU", Date: "2024-01-01", Shift: models.ShiftNight, Status: models.StatusFinal}, "nurse1")
	require.NoError(t, err)

	approved, err := s.ApproveForm(ctx, draft.ID, "sup")
	require.NoError(t, err)
	assert.Equal(t, string(models.StatusApproved), approved.Status)

	_, err = s.ApproveForm(ctx, "missing", "sup")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetShiftRecordsInRange_BothSources(t *testing.T) {
	_, s := setupStore(t)
	ctx := context.Background()

	_, err := s.SaveForm(ctx, FormInput{WardID: "ICU", Date: "2024-01-02", Shift: models.ShiftMorning, Status: models.StatusFinal,
		Counts: database.ShiftCounts{PatientCensus: intp(9), NewAdmit: intp(2)}}, "nurse1")
	require.NoError(t, err)
	require.NoError(t, s.UpsertDailySummary(ctx, &database.DailySummary{
		WardID: "ICU", Date: "2024-01-02",
		MorningRecorded: true, Morning: database.ShiftCounts{PatientCensus: intp(30)},
		NightRecorded: true, Night: database.ShiftCounts{PatientCensus: intp(31)},
	}))
	require.NoError(t, s.UpsertDailySummary(ctx, &database.DailySummary{
		WardID: "ICU", Date: "2024-01-10", NightRecorded: true, Night: database.ShiftCounts{PatientCensus: intp(5)},
	}))

	records, err := s.GetShiftRecordsInRange(ctx, "ICU", "2024-01-01", "2024-01-03")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, models.SourceLiveForm, records[0].Source)
	assert.Equal(t, 2, records[0].NewAdmit)

	day := census.Reconcile(records, nil)
	require.NotNil(t, day.Morning)
	require.NotNil(t, day.Night)
	assert.Equal(t, 9, day.Morning.PatientCensus)
	assert.Equal(t, 31, day.Night.PatientCensus)

	single, err := s.GetShiftRecords(ctx, "ICU", "2024-01-10")
	require.NoError(t, err)
	require.Len(t, single, 1)
	assert.Equal(t, models.ShiftNight, single[0].Shift)
}

func TestGetShiftRecordsInRange_NormalizesMalformedCounts(t *testing.T) {
	db, _ := setupStore(t)
	core, logs := observer.New(zap.WarnLevel)
	s := NewGormStore(db, zap.New(core))

	require.NoError(t, db.Create(&database.WardForm{
		ID: "f1", WardID: "ICU", Date: "2024-01-01", Shift: "night", Status: "final",
		Counts: database.ShiftCounts{PatientCensus: intp(-4), Discharge: intp(3)},
	}).Error)

	records, err := s.GetShiftRecordsInRange(context.Background(), "ICU", "2024-01-01", "2024-01-01")

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 0, records[0].PatientCensus)
	assert.Equal(t, 0, records[0].RNCount)
	assert.Equal(t, 3, records[0].Discharge)
	assert.Equal(t, 1, logs.FilterField(zap.String("field", "patient_census")).Len())
}

func TestUpsertDailySummary_Replaces(t *testing.T) {
	db, s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertDailySummary(ctx, &database.DailySummary{WardID: "CCU", Date: "2024-02-01", MorningRecorded: true, Morning: database.ShiftCounts{PatientCensus: intp(4)}}))
	require.NoError(t, s.UpsertDailySummary(ctx, &database.DailySummary{WardID: "CCU", Date: "2024-02-01", MorningRecorded: true, Morning: database.ShiftCounts{PatientCensus: intp(6)}}))

	var rows []database.DailySummary
	require.NoError(t, db.Where("ward_id = ?", "CCU").Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, 6, *rows[0].Morning.PatientCensus)

	assert.ErrorIs(t, s.UpsertDailySummary(ctx, &database.DailySummary{WardID: "CCU", Date: "Feb 1"}), ErrInvalidForm)
}

func TestRollupDailySummaries_SkipsDrafts(t *testing.T) {
	db, s := setupStore(t)
	ctx := context.Background()

	_, err := s.SaveForm(ctx, FormInput{WardID: "ICU", Date: "2024-03-01", Shift: models.ShiftMorning, Status: models.StatusFinal,
		Counts: database.ShiftCounts{PatientCensus: intp(11)}}, "n")
	require.NoError(t, err)
	_, err = s.SaveForm(ctx, FormInput{WardID: "ICU", Date: "2024-03-01", Shift: models.ShiftNight,
		Counts: database.ShiftCounts{PatientCensus: intp(99)}}, "n")
	require.NoError(t, err)
	_, err = s.SaveForm(ctx, FormInput{WardID: "CCU", Date: "2024-03-01", Shift: models.ShiftNight,
		Counts: database.ShiftCounts{PatientCensus: intp(50)}}, "n")
	require.NoError(t, err)

	written, err := s.RollupDailySummaries(ctx, "2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	var rows []database.DailySummary
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "ICU", rows[0].WardID)
	assert.True(t, rows[0].MorningRecorded)
	assert.False(t, rows[0].NightRecorded)
	assert.Equal(t, 11, *rows[0].Morning.PatientCensus)
}

func TestFilterWards_PreservesOrder(t *testing.T) {
	wards := []models.Ward{{ID: "b"}, {ID: "a"}, {ID: "c"}}
	got := FilterWards(wards, models.UserContext{Role: models.RoleAdmin})
	ids := make([]string, 0, len(got))
	for _, w := range got {
		ids = append(ids, w.ID)
	}
	assert.Equal(t, []string{"b", "a", "c"}, ids)
}
