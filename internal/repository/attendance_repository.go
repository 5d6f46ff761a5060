package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/convocation-seating/internal/model"
)

// AttendanceRepo is the append-only attendance ledger.  It never
// updates or deletes; it also does not stop a registrant from having
// more than one record, which is the verification workflow's job.
type AttendanceRepo struct {
	db *sql.DB
}

// NewAttendanceRepo returns a new AttendanceRepo bound to the given database.
func NewAttendanceRepo(db *sql.DB) *AttendanceRepo { return &AttendanceRepo{db: db} }

// Append writes one record.  The caller supplies the ID.
func (r *AttendanceRepo) Append(ctx context.Context, rec *model.AttendanceRecord) error {
	const q = `INSERT INTO attendance_records (id, registrant_id, method, location, confirmed_by, enclosure_letter, row_letter, seat_number, marked_at_ms)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var (
		enclosure, row sql.NullString
		seat           sql.NullInt64
	)
	if rec.Seat != nil {
		enclosure = sql.NullString{String: rec.Seat.Enclosure, Valid: true}
		row = sql.NullString{String: rec.Seat.Row, Valid: true}
		seat = sql.NullInt64{Int64: int64(rec.Seat.Number), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, q, rec.ID, rec.RegistrantID, string(rec.Method), rec.Location,
		nullString(rec.ConfirmedBy), enclosure, row, seat, toMillis(rec.MarkedAt))
	return err
}

// FirstByRegistrant returns the registrant's first appended record or
// ErrNotFound.  Order is by insertion sequence, not timestamp, so a
// later append can never displace the record other callers already saw.
func (r *AttendanceRepo) FirstByRegistrant(ctx context.Context, registrantID uint64) (*model.AttendanceRecord, error) {
	const q = `SELECT id, registrant_id, method, location, confirmed_by, enclosure_letter, row_letter, seat_number, marked_at_ms
	           FROM attendance_records
	           WHERE registrant_id = ?
	           ORDER BY seq
	           LIMIT 1`
	rec, err := scanAttendance(r.db.QueryRowContext(ctx, q, registrantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// CountByRegistrant returns how many records the registrant has.
func (r *AttendanceRepo) CountByRegistrant(ctx context.Context, registrantID uint64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendance_records WHERE registrant_id = ?`, registrantID).Scan(&n)
	return n, err
}

func scanAttendance(s rowScanner) (*model.AttendanceRecord, error) {
	var (
		rec            model.AttendanceRecord
		method         string
		confirmedBy    sql.NullString
		enclosure, row sql.NullString
		seat           sql.NullInt64
		ms             int64
	)
	if err := s.Scan(&rec.ID, &rec.RegistrantID, &method, &rec.Location, &confirmedBy, &enclosure, &row, &seat, &ms); err != nil {
		return nil, err
	}
	rec.Method = model.AttendanceMethod(method)
	rec.ConfirmedBy = stringPtr(confirmedBy)
	if enclosure.Valid && row.Valid && seat.Valid {
		rec.Seat = &model.SeatTriple{Enclosure: enclosure.String, Row: row.String, Number: int(seat.Int64)}
	}
	rec.MarkedAt = fromMillis(ms)
	return &rec, nil
}
