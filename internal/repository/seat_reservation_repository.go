package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/convocation-seating/internal/model"
)

// SeatReservationRepo stores admin seat reservations.  A reservation
// removes a seat from allocation regardless of the row configuration.
type SeatReservationRepo struct {
	db *sql.DB
}

// NewSeatReservationRepo returns a new SeatReservationRepo bound to the given database.
func NewSeatReservationRepo(db *sql.DB) *SeatReservationRepo { return &SeatReservationRepo{db: db} }

// Create inserts a reservation.  A second reservation of the same seat
// returns ErrConflict.
func (r *SeatReservationRepo) Create(ctx context.Context, res *model.SeatReservation) error {
	const q = `INSERT INTO seat_reservations (enclosure_letter, row_letter, seat_number, reserved_for, reserved_by, created_at_ms)
	           VALUES (?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	out, err := r.db.ExecContext(ctx, q, res.Seat.Enclosure, res.Seat.Row, res.Seat.Number, res.ReservedFor, res.ReservedBy, toMillis(now))
	if err != nil {
		if isDuplicateKey(err) {
			return ErrConflict
		}
		return err
	}
	id, err := out.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)
	res.CreatedAt = now
	return nil
}

// ListByEnclosure returns all reservations inside one enclosure.
func (r *SeatReservationRepo) ListByEnclosure(ctx context.Context, enclosure string) ([]model.SeatReservation, error) {
	const q = `SELECT id, enclosure_letter, row_letter, seat_number, reserved_for, reserved_by, created_at_ms
	           FROM seat_reservations
	           WHERE enclosure_letter = ?
	           ORDER BY row_letter, seat_number`
	rs, err := r.db.QueryContext(ctx, q, enclosure)
	if err != nil {
		return nil, err
	}
	defer rs.Close()
	var out []model.SeatReservation
	for rs.Next() {
		var (
			res model.SeatReservation
			ms  int64
		)
		if err := rs.Scan(&res.ID, &res.Seat.Enclosure, &res.Seat.Row, &res.Seat.Number, &res.ReservedFor, &res.ReservedBy, &ms); err != nil {
			return nil, err
		}
		res.CreatedAt = fromMillis(ms)
		out = append(out, res)
	}
	return out, rs.Err()
}
