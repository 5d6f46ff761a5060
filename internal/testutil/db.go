// Package testutil opens throwaway SQLite databases with the service
// schema applied and seeds them with capacity and roster fixtures.
package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/iliyamo/convocation-seating/internal/database"
	"github.com/iliyamo/convocation-seating/internal/model"
	"github.com/iliyamo/convocation-seating/internal/repository"
)

// NewDB returns a migrated SQLite database that lives for the test.
func NewDB(t testing.TB) *sql.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "seating.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.Migrate(context.Background(), db, database.SQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// Repos bundles every repository over one database.
type Repos struct {
	Enclosures   *repository.EnclosureRepo
	Reservations *repository.SeatReservationRepo
	Registrants  *repository.RegistrantRepo
	Allocations  *repository.AllocationRepo
	Attendance   *repository.AttendanceRepo
	Staff        *repository.StaffRepo
}

// NewRepos returns repositories bound to db.
func NewRepos(db *sql.DB) Repos {
	return Repos{
		Enclosures:   repository.NewEnclosureRepo(db),
		Reservations: repository.NewSeatReservationRepo(db),
		Registrants:  repository.NewRegistrantRepo(db),
		Allocations:  repository.NewAllocationRepo(db),
		Attendance:   repository.NewAttendanceRepo(db),
		Staff:        repository.NewStaffRepo(db),
	}
}

// RowSpec describes a row to seed.
type RowSpec struct {
	Letter   string
	Start    int
	End      int
	Reserved string
	Order    int
}

// SeedEnclosure creates an enclosure with rows in the given order.
func (r Repos) SeedEnclosure(t testing.TB, letter string, rows ...RowSpec) *model.Enclosure {
	t.Helper()
	ctx := context.Background()
	enc := &model.Enclosure{Letter: letter, Name: "Enclosure " + letter}
	if err := r.Enclosures.Create(ctx, enc); err != nil {
		t.Fatalf("create enclosure %s: %v", letter, err)
	}
	for _, rs := range rows {
		row := &model.Row{
			EnclosureID:   enc.ID,
			Letter:        rs.Letter,
			StartSeat:     rs.Start,
			EndSeat:       rs.End,
			ReservedSeats: rs.Reserved,
			DisplayOrder:  rs.Order,
		}
		if err := r.Enclosures.AddRow(ctx, row); err != nil {
			t.Fatalf("add row %s%s: %v", letter, rs.Letter, err)
		}
		enc.Rows = append(enc.Rows, *row)
	}
	return enc
}

// SeedReservation reserves one seat.
func (r Repos) SeedReservation(t testing.TB, enclosure, row string, seat int) {
	t.Helper()
	res := &model.SeatReservation{
		Seat:        model.SeatTriple{Enclosure: enclosure, Row: row, Number: seat},
		ReservedFor: "guest of honour",
		ReservedBy:  "registrar",
	}
	if err := r.Reservations.Create(context.Background(), res); err != nil {
		t.Fatalf("reserve %s: %v", res.Seat, err)
	}
}

// SeedRegistrant creates an eligible, registered registrant assigned to
// enclosure.  The CRR is derived from the enrollment id.
func (r Repos) SeedRegistrant(t testing.TB, enrollmentID, enclosure string) *model.Registrant {
	t.Helper()
	crr := "CRR-" + enrollmentID
	reg := &model.Registrant{
		EnrollmentID: enrollmentID,
		CRR:          &crr,
		FullName:     "Graduate " + enrollmentID,
		Course:       "B.Sc. Physics",
		School:       "School of Sciences",
		Email:        enrollmentID + "@example.test",
		Eligible:     true,
		Registered:   true,
	}
	if enclosure != "" {
		reg.EnclosureLetter = &enclosure
	}
	if err := r.Registrants.Create(context.Background(), reg); err != nil {
		t.Fatalf("create registrant %s: %v", enrollmentID, err)
	}
	return reg
}
