package census

import "github.com/arnavshah/ward-census-api/pkg/models"

// AggregateDay combines a ward's morning and night records into one day.
// Flows sum across shifts; snapshots take the night value when a night record
// exists, else the morning value. Both nil yields a zero rollup with HasData false.
func AggregateDay(morning, night *models.ShiftRecord) models.DayRollup {
	var rollup models.DayRollup

	switch {
	case night != nil:
		rollup.Snapshot = night.Snapshot
	case morning != nil:
		rollup.Snapshot = morning.Snapshot
	}

	if morning != nil {
		rollup.Flows = rollup.Flows.Add(morning.Flows)
	}
	if night != nil {
		rollup.Flows = rollup.Flows.Add(night.Flows)
	}

	rollup.AdmitTotal = rollup.Flows.AdmitTotal()
	rollup.DischargeTotal = rollup.Flows.DischargeTotal()
	rollup.HasData = morning != nil || night != nil
	return rollup
}
