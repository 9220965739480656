package store

import (
	"time"

	"github.com/arnavshah/ward-census-api/pkg/database"
	"github.com/arnavshah/ward-census-api/pkg/models"
	"go.uber.org/zap"
)

// recordMeta identifies the row being normalized in log lines
type recordMeta struct {
	wardID    string
	date      string
	shift     models.Shift
	status    models.FormStatus
	source    models.SourceTag
	updatedAt time.Time
}

// toShiftRecord converts stored nullable counts into a ShiftRecord.
// Missing values read as 0; negative values are clamped to 0 and logged.
func toShiftRecord(meta recordMeta, c database.ShiftCounts, logger *zap.Logger) models.ShiftRecord {
	val := func(p *int, field string) int {
		if p == nil {
			return 0
		}
		if *p < 0 {
			logger.Warn("Clamping negative count to zero",
				zap.String("ward_id", meta.wardID),
				zap.String("date", meta.date),
				zap.String("shift", string(meta.shift)),
				zap.String("source", string(meta.source)),
				zap.String("field", field),
				zap.Int("value", *p),
			)
			return 0
		}
		return *p
	}

	return models.ShiftRecord{
		WardID:    meta.wardID,
		Date:      meta.date,
		Shift:     meta.shift,
		Status:    meta.status,
		Source:    meta.source,
		UpdatedAt: meta.updatedAt,
		Snapshot: models.Snapshot{
			PatientCensus:     val(c.PatientCensus, "patient_census"),
			NurseManagerCount: val(c.NurseManagerCount, "nurse_manager_count"),
			RNCount:           val(c.RNCount, "rn_count"),
			PNCount:           val(c.PNCount, "pn_count"),
			WCCount:           val(c.WCCount, "wc_count"),
			AvailableBeds:     val(c.AvailableBeds, "available_beds"),
			UnavailableBeds:   val(c.UnavailableBeds, "unavailable_beds"),
			PlannedDischarge:  val(c.PlannedDischarge, "planned_discharge"),
		},
		Flows: models.Flows{
			NewAdmit:    val(c.NewAdmit, "new_admit"),
			TransferIn:  val(c.TransferIn, "transfer_in"),
			ReferIn:     val(c.ReferIn, "refer_in"),
			Discharge:   val(c.Discharge, "discharge"),
			TransferOut: val(c.TransferOut, "transfer_out"),
			ReferOut:    val(c.ReferOut, "refer_out"),
			Deaths:      val(c.Deaths, "deaths"),
		},
	}
}

// toShiftCounts stores a reconciled record's counts
func toShiftCounts(r models.ShiftRecord) database.ShiftCounts {
	p := func(v int) *int { return &v }
	return database.ShiftCounts{
		PatientCensus:     p(r.PatientCensus),
		NurseManagerCount: p(r.NurseManagerCount),
		RNCount:           p(r.RNCount),
		PNCount:           p(r.PNCount),
		WCCount:           p(r.WCCount),
		AvailableBeds:     p(r.AvailableBeds),
		UnavailableBeds:   p(r.UnavailableBeds),
		PlannedDischarge:  p(r.PlannedDischarge),
		NewAdmit:          p(r.NewAdmit),
		TransferIn:        p(r.TransferIn),
		ReferIn:           p(r.ReferIn),
		Discharge:         p(r.Discharge),
		TransferOut:       p(r.TransferOut),
		ReferOut:          p(r.ReferOut),
		Deaths:            p(r.Deaths),
	}
}

// negativeField returns the name of the first negative count, or ""
func negativeField(c database.ShiftCounts) string {
	fields := []struct {
		name string
		v    *int
	}{
		{"patient_census", c.PatientCensus},
		{"nurse_manager_count", c.NurseManagerCount},
		{"rn_count", c.RNCount},
		{"pn_count", c.PNCount},
		{"wc_count", c.WCCount},
		{"available_beds", c.AvailableBeds},
		{"unavailable_beds", c.UnavailableBeds},
		{"planned_discharge", c.PlannedDischarge},
		{"new_admit", c.NewAdmit},
		{"transfer_in", c.TransferIn},
		{"refer_in", c.ReferIn},
		{"discharge", c.Discharge},
		{"transfer_out", c.TransferOut},
		{"refer_out", c.ReferOut},
		{"deaths", c.Deaths},
	}
	for _, f := range fields {
		if f.v != nil && *f.v < 0 {
			return f.name
		}
	}
	return ""
}
