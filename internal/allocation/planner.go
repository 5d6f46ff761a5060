package allocation

import (
	"sort"

	"github.com/iliyamo/convocation-seating/internal/model"
)

// Assignment pairs a free seat with the registrant it will go to.
type Assignment struct {
	Seat       model.SeatTriple
	Registrant model.Registrant
}

// Plan is the outcome of one planning pass over an enclosure.
type Plan struct {
	Assignments []Assignment
	// Unplaced holds registrants left over once every free seat was used,
	// in roster order.
	Unplaced []model.Registrant
}

// BuildPlan walks the enclosure's rows in display order and each row's
// seats in ascending number, handing free seats to the roster in order.
// A seat is skipped when it is admin-reserved, listed in the row's
// exclusion list, or already allocated.  The function is pure; calling
// it twice with the same inputs yields the same plan.
func BuildPlan(enc *model.Enclosure, reservations []model.SeatReservation, taken []model.SeatAllocation, roster []model.Registrant) Plan {
	if len(roster) == 0 {
		return Plan{}
	}
	reserved := reservationSet(reservations)
	allocated := allocationSet(taken)

	rows := make([]model.Row, len(enc.Rows))
	copy(rows, enc.Rows)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].DisplayOrder < rows[j].DisplayOrder })

	plan := Plan{Assignments: make([]Assignment, 0, len(roster))}
	next := 0
walk:
	for _, row := range rows {
		excluded := ParseReservedSeats(row.ReservedSeats)
		for n := row.StartSeat; n <= row.EndSeat; n++ {
			if next >= len(roster) {
				break walk
			}
			if reserved.has(enc.Letter, row.Letter, n) {
				continue
			}
			if _, ok := excluded[n]; ok {
				continue
			}
			if allocated.has(enc.Letter, row.Letter, n) {
				continue
			}
			plan.Assignments = append(plan.Assignments, Assignment{
				Seat:       model.SeatTriple{Enclosure: enc.Letter, Row: row.Letter, Number: n},
				Registrant: roster[next],
			})
			next++
		}
	}
	if next < len(roster) {
		plan.Unplaced = append(plan.Unplaced, roster[next:]...)
	}
	return plan
}
