package allocation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/convocation-seating/internal/model"
)

func TestParseReservedSeats(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []int
	}{
		{name: "empty", raw: "", want: nil},
		{name: "plain list", raw: "1,5,9", want: []int{1, 5, 9}},
		{name: "spaces and blanks", raw: " 2 , ,3,, ", want: []int{2, 3}},
		{name: "non numeric ignored", raw: "4,x,7a,8", want: []int{4, 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseReservedSeats(tt.raw)
			assert.Len(t, got, len(tt.want))
			for _, n := range tt.want {
				assert.Contains(t, got, n)
			}
		})
	}
}

func roster(n int) []model.Registrant {
	out := make([]model.Registrant, n)
	for i := range out {
		out[i] = model.Registrant{ID: uint64(i + 1), EnrollmentID: string(rune('a' + i))}
	}
	return out
}

func seatsOf(p Plan) []int {
	out := make([]int, 0, len(p.Assignments))
	for _, a := range p.Assignments {
		out = append(out, a.Seat.Number)
	}
	return out
}

func TestBuildPlanSkipsAllExclusions(t *testing.T) {
	enc := &model.Enclosure{Letter: "A", Rows: []model.Row{{Letter: "A", StartSeat: 1, EndSeat: 5, ReservedSeats: "5"}}}
	reserved := []model.SeatReservation{{Seat: model.SeatTriple{Enclosure: "A", Row: "A", Number: 3}}}

	plan := BuildPlan(enc, reserved, nil, roster(3))
	assert.Equal(t, []int{1, 2, 4}, seatsOf(plan))
	assert.Empty(t, plan.Unplaced)
	for i, a := range plan.Assignments {
		assert.Equal(t, uint64(i+1), a.Registrant.ID, "roster order kept")
	}
}

func TestBuildPlanReportsUnplaced(t *testing.T) {
	enc := &model.Enclosure{Letter: "A", Rows: []model.Row{{Letter: "A", StartSeat: 1, EndSeat: 5, ReservedSeats: "5"}}}
	reserved := []model.SeatReservation{{Seat: model.SeatTriple{Enclosure: "A", Row: "A", Number: 3}}}

	plan := BuildPlan(enc, reserved, nil, roster(4))
	assert.Equal(t, []int{1, 2, 4}, seatsOf(plan))
	require.Len(t, plan.Unplaced, 1)
	assert.Equal(t, uint64(4), plan.Unplaced[0].ID)
}

func TestBuildPlanWalksRowsInDisplayOrder(t *testing.T) {
	enc := &model.Enclosure{Letter: "B", Rows: []model.Row{
		{Letter: "C", StartSeat: 1, EndSeat: 2, DisplayOrder: 2},
		{Letter: "A", StartSeat: 10, EndSeat: 11, DisplayOrder: 1},
		{Letter: "B", StartSeat: 1, EndSeat: 1, DisplayOrder: 1},
	}}

	plan := BuildPlan(enc, nil, nil, roster(5))
	got := make([]string, 0, len(plan.Assignments))
	for _, a := range plan.Assignments {
		got = append(got, a.Seat.String())
	}
	assert.Equal(t, []string{"B-A-10", "B-A-11", "B-B-1", "B-C-1", "B-C-2"}, got)
}

func TestBuildPlanSkipsTakenSeatsCaseInsensitively(t *testing.T) {
	enc := &model.Enclosure{Letter: "A", Rows: []model.Row{{Letter: "A", StartSeat: 1, EndSeat: 4}}}
	taken := []model.SeatAllocation{{Seat: model.SeatTriple{Enclosure: "a", Row: " a", Number: 1}}}
	reserved := []model.SeatReservation{{Seat: model.SeatTriple{Enclosure: "A", Row: "a", Number: 2}}}

	plan := BuildPlan(enc, reserved, taken, roster(2))
	assert.Equal(t, []int{3, 4}, seatsOf(plan))
}

func TestBuildPlanEmptyRoster(t *testing.T) {
	enc := &model.Enclosure{Letter: "A", Rows: []model.Row{{Letter: "A", StartSeat: 1, EndSeat: 4}}}
	plan := BuildPlan(enc, nil, nil, nil)
	assert.Empty(t, plan.Assignments)
	assert.Empty(t, plan.Unplaced)
}

func TestEnclosureStatsFor(t *testing.T) {
	enc := &model.Enclosure{Letter: "A", Rows: []model.Row{
		{Letter: "A", StartSeat: 1, EndSeat: 5, ReservedSeats: "5,3,99"},
		{Letter: "B", StartSeat: 1, EndSeat: 3},
	}}
	reserved := []model.SeatReservation{
		{Seat: model.SeatTriple{Enclosure: "A", Row: "A", Number: 3}},
		{Seat: model.SeatTriple{Enclosure: "A", Row: "B", Number: 1}},
		{Seat: model.SeatTriple{Enclosure: "A", Row: "Z", Number: 1}},
	}

	s := EnclosureStatsFor(enc, reserved, 2)
	assert.Equal(t, 8, s.TotalCapacity)
	assert.Equal(t, 3, s.ReservedCount, "seat A3 counted once, out-of-range entries ignored")
	assert.Equal(t, 2, s.AllocatedCount)
	assert.Equal(t, 3, s.AvailableCount)
}
