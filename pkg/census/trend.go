package census

import "github.com/arnavshah/ward-census-api/pkg/models"

// BuildTrend produces one point per calendar date in [start, end]. Dates or
// wards without a rollup are zero-filled, and every ward appears in every
// point so chart legends stay stable.
func BuildTrend(start, end string, wards []models.Ward, perWardDays map[string]map[string]models.DayRollup) ([]models.TrendPoint, error) {
	dates, err := EnumerateDates(start, end)
	if err != nil {
		return nil, err
	}

	points := make([]models.TrendPoint, 0, len(dates))
	for _, date := range dates {
		point := models.TrendPoint{
			DateString: date,
			Date:       DisplayDate(date),
			PerWard:    make(map[string]models.TrendWardPoint, len(wards)),
		}

		for _, w := range wards {
			wp := models.TrendWardPoint{WardName: w.Name}
			if day, ok := perWardDays[w.ID][date]; ok && day.HasData {
				wp.PatientCount = day.PatientCensus
				wp.AdmitCount = day.AdmitTotal
				wp.DischargeCount = day.DischargeTotal
				wp.HasData = true
			}
			point.PerWard[w.ID] = wp

			point.TotalPatientCount += wp.PatientCount
			point.TotalAdmitCount += wp.AdmitCount
			point.TotalDischargeCount += wp.DischargeCount
		}

		points = append(points, point)
	}
	return points, nil
}
