package ticket

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/convocation-seating/internal/model"
)

func TestDecide(t *testing.T) {
	reg := &model.Registrant{ID: 1}
	alloc := &model.SeatAllocation{RegistrantID: 1, Seat: model.SeatTriple{Enclosure: "A", Row: "A", Number: 1}}
	rec := &model.AttendanceRecord{ID: "r1", RegistrantID: 1}

	tests := []struct {
		name       string
		snap       Snapshot
		verifyOnly bool
		want       Outcome
	}{
		{"unknown registrant", Snapshot{}, false, OutcomeNotFound},
		{"unknown registrant preview", Snapshot{}, true, OutcomeNotFound},
		{"no seat", Snapshot{Registrant: reg}, false, OutcomeNoSeat},
		{"no seat preview", Snapshot{Registrant: reg}, true, OutcomeNoSeat},
		{"confirm after attending and losing the seat", Snapshot{Registrant: reg, Attendance: rec}, false, OutcomeAlreadyAttended},
		{"preview after attending and losing the seat", Snapshot{Registrant: reg, Attendance: rec}, true, OutcomeNoSeat},
		{"preview", Snapshot{Registrant: reg, Allocation: alloc}, true, OutcomeVerified},
		{"preview after attending", Snapshot{Registrant: reg, Allocation: alloc, Attendance: rec}, true, OutcomeVerified},
		{"confirm", Snapshot{Registrant: reg, Allocation: alloc}, false, OutcomeAttended},
		{"confirm twice", Snapshot{Registrant: reg, Allocation: alloc, Attendance: rec}, false, OutcomeAlreadyAttended},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Decide(tc.snap, tc.verifyOnly))
		})
	}
}
