package census

import "github.com/arnavshah/ward-census-api/pkg/models"

// ProjectBeds turns ward bed counts into pie slices. When no ward has an
// available bed but some are unavailable, every slice switches to showing
// unavailable beds so the chart never renders an all-zero pie. When there
// are no beds at all the result is empty.
func ProjectBeds(wards []models.BedInput) []models.BedSlice {
	var totalAvailable, totalUnavailable int
	for _, w := range wards {
		totalAvailable += w.Available
		totalUnavailable += w.Unavailable
	}

	slices := make([]models.BedSlice, 0, len(wards))
	if totalAvailable == 0 && totalUnavailable == 0 {
		return slices
	}
	unavailableMode := totalAvailable == 0

	for _, w := range wards {
		slice := models.BedSlice{
			ID:                w.ID,
			Name:              w.Name,
			Value:             w.Available,
			Available:         w.Available,
			Unavailable:       w.Unavailable,
			PlannedDischarge:  w.PlannedDischarge,
			TotalBeds:         w.Available + w.Unavailable,
			IsUnavailableMode: unavailableMode,
		}
		if unavailableMode {
			slice.Value = w.Unavailable
		}
		slices = append(slices, slice)
	}
	return slices
}

// BedInputs reads bed snapshot fields out of range summary rows
func BedInputs(rows []models.RangeSummary) []models.BedInput {
	inputs := make([]models.BedInput, 0, len(rows))
	for _, r := range rows {
		inputs = append(inputs, models.BedInput{
			ID:               r.WardID,
			Name:             r.WardName,
			Available:        r.AvailableBeds,
			Unavailable:      r.UnavailableBeds,
			PlannedDischarge: r.PlannedDischarge,
		})
	}
	return inputs
}
