package repository_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/convocation-seating/internal/model"
	"github.com/iliyamo/convocation-seating/internal/repository"
	"github.com/iliyamo/convocation-seating/internal/testutil"
)

// testContext stands in for t.Context (Go 1.24+): it is cancelled when the
// test finishes.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

func seat(row string, n int) model.SeatTriple {
	return model.SeatTriple{Enclosure: "A", Row: row, Number: n}
}

func TestGetByLetterOrdersRowsByDisplayOrder(t *testing.T) {
	repos := testutil.NewRepos(testutil.NewDB(t))
	repos.SeedEnclosure(t, "A",
		testutil.RowSpec{Letter: "C", Start: 1, End: 2, Order: 2},
		testutil.RowSpec{Letter: "A", Start: 1, End: 2, Order: 1},
		testutil.RowSpec{Letter: "B", Start: 1, End: 2, Order: 1},
	)

	enc, err := repos.Enclosures.GetByLetter(testContext(t), "A")
	require.NoError(t, err)
	var letters []string
	for _, r := range enc.Rows {
		letters = append(letters, r.Letter)
	}
	assert.Equal(t, []string{"A", "B", "C"}, letters)

	_, err = repos.Enclosures.GetByLetter(testContext(t), "Z")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCommitPairsSeatsWithSecrets(t *testing.T) {
	repos := testutil.NewRepos(testutil.NewDB(t))
	a := repos.SeedRegistrant(t, "E1", "A")
	b := repos.SeedRegistrant(t, "E2", "A")
	ctx := testContext(t)

	err := repos.Allocations.Commit(ctx, []repository.AllocationInput{
		{Seat: seat("A", 1), RegistrantID: a.ID, Secret: strings.Repeat("a", 64)},
		{Seat: seat("A", 2), RegistrantID: b.ID, Secret: strings.Repeat("b", 64)},
	}, time.Now())
	require.NoError(t, err)

	got, err := repos.Registrants.GetBySecret(ctx, strings.Repeat("b", 64))
	require.NoError(t, err)
	assert.Equal(t, "E2", got.EnrollmentID)

	pending, err := repos.Registrants.ListUnallocated(ctx, "A")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCommitKeepsExistingSecret(t *testing.T) {
	repos := testutil.NewRepos(testutil.NewDB(t))
	a := repos.SeedRegistrant(t, "E1", "A")
	ctx := testContext(t)
	first := strings.Repeat("c", 64)

	require.NoError(t, repos.Allocations.Commit(ctx, []repository.AllocationInput{
		{Seat: seat("A", 1), RegistrantID: a.ID, Secret: first},
	}, time.Now()))
	_, err := repos.Allocations.ClearEnclosure(ctx, "A")
	require.NoError(t, err)
	require.NoError(t, repos.Allocations.Commit(ctx, []repository.AllocationInput{
		{Seat: seat("B", 4), RegistrantID: a.ID, Secret: strings.Repeat("d", 64)},
	}, time.Now()))

	got, err := repos.Registrants.GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.VerificationSecret)
	assert.Equal(t, first, *got.VerificationSecret)

	alloc, err := repos.Allocations.GetByRegistrant(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, seat("B", 4), alloc.Seat)
}

func TestCommitRollsBackOnTakenSeat(t *testing.T) {
	repos := testutil.NewRepos(testutil.NewDB(t))
	a := repos.SeedRegistrant(t, "E1", "A")
	b := repos.SeedRegistrant(t, "E2", "A")
	c := repos.SeedRegistrant(t, "E3", "A")
	ctx := testContext(t)

	require.NoError(t, repos.Allocations.Create(ctx, &model.SeatAllocation{Seat: seat("A", 2), RegistrantID: c.ID}))

	err := repos.Allocations.Commit(ctx, []repository.AllocationInput{
		{Seat: seat("A", 1), RegistrantID: a.ID, Secret: strings.Repeat("e", 64)},
		{Seat: seat("A", 2), RegistrantID: b.ID, Secret: strings.Repeat("f", 64)},
	}, time.Now())
	require.ErrorIs(t, err, repository.ErrSeatTaken)

	_, err = repos.Allocations.GetByRegistrant(ctx, a.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	got, err := repos.Registrants.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, got.VerificationSecret)
}

func TestCreateRejectsSecondSeatForRegistrant(t *testing.T) {
	repos := testutil.NewRepos(testutil.NewDB(t))
	a := repos.SeedRegistrant(t, "E1", "A")
	ctx := testContext(t)

	require.NoError(t, repos.Allocations.Create(ctx, &model.SeatAllocation{Seat: seat("A", 1), RegistrantID: a.ID}))
	err := repos.Allocations.Create(ctx, &model.SeatAllocation{Seat: seat("A", 9), RegistrantID: a.ID})
	assert.ErrorIs(t, err, repository.ErrAlreadyAllocated)
}

func TestCommitRejectsEmptySecret(t *testing.T) {
	repos := testutil.NewRepos(testutil.NewDB(t))
	a := repos.SeedRegistrant(t, "E1", "A")

	err := repos.Allocations.Commit(testContext(t), []repository.AllocationInput{
		{Seat: seat("A", 1), RegistrantID: a.ID},
	}, time.Now())
	require.ErrorIs(t, err, repository.ErrInconsistentCommit)

	_, err = repos.Allocations.GetByRegistrant(testContext(t), a.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestFirstByRegistrantFollowsAppendOrder(t *testing.T) {
	repos := testutil.NewRepos(testutil.NewDB(t))
	a := repos.SeedRegistrant(t, "E1", "A")
	ctx := testContext(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	_, err := repos.Attendance.FirstByRegistrant(ctx, a.ID)
	require.ErrorIs(t, err, repository.ErrNotFound)

	desk := "desk@venue.test"
	require.NoError(t, repos.Attendance.Append(ctx, &model.AttendanceRecord{
		ID: "rec-b", RegistrantID: a.ID, Method: model.AttendanceManual, Location: "Gate 1",
		ConfirmedBy: &desk, Seat: &model.SeatTriple{Enclosure: "A", Row: "A", Number: 1}, MarkedAt: now,
	}))
	// earlier clock and lower id, but appended second
	require.NoError(t, repos.Attendance.Append(ctx, &model.AttendanceRecord{
		ID: "rec-a", RegistrantID: a.ID, Method: model.AttendanceQRScan, MarkedAt: now.Add(-time.Second),
	}))

	first, err := repos.Attendance.FirstByRegistrant(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "rec-b", first.ID)
	assert.Equal(t, model.AttendanceManual, first.Method)
	assert.True(t, now.Equal(first.MarkedAt))
	require.NotNil(t, first.Seat)
	assert.Equal(t, 1, first.Seat.Number)
	require.NotNil(t, first.ConfirmedBy)
	assert.Equal(t, desk, *first.ConfirmedBy)

	n, err := repos.Attendance.CountByRegistrant(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStaffEmailIsUniqueIgnoringCase(t *testing.T) {
	repos := testutil.NewRepos(testutil.NewDB(t))
	ctx := testContext(t)

	_, err := repos.Staff.Create(ctx, "Desk@Venue.test", "pw", model.RoleStaff, 4)
	require.NoError(t, err)
	_, err = repos.Staff.Create(ctx, "desk@venue.test ", "pw", model.RoleStaff, 4)
	assert.ErrorIs(t, err, repository.ErrEmailExists)

	u, err := repos.Staff.GetByEmail(ctx, "DESK@venue.test")
	require.NoError(t, err)
	assert.Equal(t, "desk@venue.test", u.Email)
	assert.True(t, u.IsActive)

	_, err = repos.Staff.GetByEmail(ctx, "ghost@venue.test")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
