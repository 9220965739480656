package census

import "github.com/arnavshah/ward-census-api/pkg/models"

// GrandTotalName labels the grand total row
const GrandTotalName = "Total"

// AggregateWardSet lays out one row per ward in the given order and sums every
// field into the grand total. Snapshots are summed, not averaged, across wards.
// Wards absent from perWard still get an all-zero row.
func AggregateWardSet(wards []models.Ward, perWard map[string]models.RangeSummary) ([]models.RangeSummary, models.GrandTotalRow) {
	rows := make([]models.RangeSummary, 0, len(wards))
	total := models.GrandTotalRow{
		WardID:   models.GrandTotalWardID,
		WardName: GrandTotalName,
	}

	for _, w := range wards {
		row, ok := perWard[w.ID]
		if !ok {
			row = models.RangeSummary{}
		}
		row.WardID = w.ID
		row.WardName = w.Name
		rows = append(rows, row)

		total.Snapshot = total.Snapshot.Add(row.Snapshot)
		total.Flows = total.Flows.Add(row.Flows)
		total.AdmitTotal += row.AdmitTotal
		total.DischargeTotal += row.DischargeTotal
		total.HasData = total.HasData || row.HasData
	}
	total.WardCount = len(rows)

	return rows, total
}

// SummarizeWardSet wraps AggregateWardSet into the table view shape
func SummarizeWardSet(start, end string, wards []models.Ward, perWard map[string]models.RangeSummary) models.WardSetSummary {
	rows, total := AggregateWardSet(wards, perWard)
	return models.WardSetSummary{
		Start:      start,
		End:        end,
		Rows:       rows,
		GrandTotal: total,
	}
}
