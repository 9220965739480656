package census

import "github.com/arnavshah/ward-census-api/pkg/models"

// AggregateRange folds one ward's daily rollups into a range summary.
// Flows sum over every day. Snapshots average over the days with data,
// rounded half up; with no such days they are zero.
func AggregateRange(days []models.DayRollup) models.RangeSummary {
	var (
		flows        models.Flows
		snapshotSum  models.Snapshot
		daysWithData int
	)

	for _, d := range days {
		flows = flows.Add(d.Flows)
		if !d.HasData {
			continue
		}
		snapshotSum = snapshotSum.Add(d.Snapshot)
		daysWithData++
	}

	summary := models.RangeSummary{
		Flows:          flows,
		Snapshot:       averageSnapshot(snapshotSum, daysWithData),
		AdmitTotal:     flows.AdmitTotal(),
		DischargeTotal: flows.DischargeTotal(),
		HasData:        daysWithData > 0,
	}
	return summary.WithDaysWithData(daysWithData)
}

func averageSnapshot(sum models.Snapshot, n int) models.Snapshot {
	if n == 0 {
		return models.Snapshot{}
	}
	return models.Snapshot{
		PatientCensus:     roundDiv(sum.PatientCensus, n),
		NurseManagerCount: roundDiv(sum.NurseManagerCount, n),
		RNCount:           roundDiv(sum.RNCount, n),
		PNCount:           roundDiv(sum.PNCount, n),
		WCCount:           roundDiv(sum.WCCount, n),
		AvailableBeds:     roundDiv(sum.AvailableBeds, n),
		UnavailableBeds:   roundDiv(sum.UnavailableBeds, n),
		PlannedDischarge:  roundDiv(sum.PlannedDischarge, n),
	}
}

// roundDiv divides non-negative sum by n rounding half up, in integers
func roundDiv(sum, n int) int {
	return (2*sum + n) / (2 * n)
}
