package reservation

import "github.com/iliyamo/smart-parking/internal/model"

// Conflicts returns every reservation in existing whose window overlaps
// candidate.  Windows that only touch at an endpoint do not conflict.
// Callers pass the persisted reservations of a single spot.
func Conflicts(candidate model.Window, existing []model.Reservation) []model.Reservation {
	var out []model.Reservation
	for _, r := range existing {
		if r.Window().Overlaps(candidate) {
			out = append(out, r)
		}
	}
	return out
}

// FirstConflict returns the earliest-listed overlapping reservation.
func FirstConflict(candidate model.Window, existing []model.Reservation) (model.Reservation, bool) {
	for _, r := range existing {
		if r.Window().Overlaps(candidate) {
			return r, true
		}
	}
	return model.Reservation{}, false
}
