package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/convocation-seating/internal/model"
)

// EnclosureRepo reads the capacity model: enclosures and their rows.
// Enclosures are normally maintained by admin tooling; Create and
// AddRow exist for that tooling and for seeding tests.
type EnclosureRepo struct {
	db *sql.DB
}

// NewEnclosureRepo returns a new EnclosureRepo bound to the given database.
func NewEnclosureRepo(db *sql.DB) *EnclosureRepo { return &EnclosureRepo{db: db} }

// Create inserts an enclosure and populates its ID.
func (r *EnclosureRepo) Create(ctx context.Context, e *model.Enclosure) error {
	const q = `INSERT INTO enclosures (letter, name, created_at_ms) VALUES (?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, e.Letter, e.Name, toMillis(time.Now()))
	if err != nil {
		if isDuplicateKey(err) {
			return ErrConflict
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	return nil
}

// AddRow inserts a row into the enclosure identified by row.EnclosureID.
func (r *EnclosureRepo) AddRow(ctx context.Context, row *model.Row) error {
	const q = `INSERT INTO enclosure_rows (enclosure_id, letter, start_seat, end_seat, reserved_seats, display_order)
	           VALUES (?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, row.EnclosureID, row.Letter, row.StartSeat, row.EndSeat, row.ReservedSeats, row.DisplayOrder)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrConflict
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	row.ID = uint64(id)
	return nil
}

// GetByLetter loads an enclosure with its rows ordered by display_order
// ascending; ties keep insertion order.  ErrNotFound is returned when no
// enclosure has the letter.
func (r *EnclosureRepo) GetByLetter(ctx context.Context, letter string) (*model.Enclosure, error) {
	const q = `SELECT id, letter, name FROM enclosures WHERE letter = ?`
	var e model.Enclosure
	if err := r.db.QueryRowContext(ctx, q, letter).Scan(&e.ID, &e.Letter, &e.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rows, err := r.listRows(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	e.Rows = rows
	return &e, nil
}

// List returns every enclosure with its rows, ordered by letter.
func (r *EnclosureRepo) List(ctx context.Context) ([]model.Enclosure, error) {
	const q = `SELECT id, letter, name FROM enclosures ORDER BY letter`
	rs, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	var out []model.Enclosure
	for rs.Next() {
		var e model.Enclosure
		if err := rs.Scan(&e.ID, &e.Letter, &e.Name); err != nil {
			rs.Close()
			return nil, err
		}
		out = append(out, e)
	}
	if err := rs.Err(); err != nil {
		rs.Close()
		return nil, err
	}
	rs.Close()
	// rows are loaded after the cursor is closed so a single-connection
	// pool (SQLite) is never asked for a second connection.
	for i := range out {
		rows, err := r.listRows(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Rows = rows
	}
	return out, nil
}

// ListLetters returns all enclosure letters in ascending order.
func (r *EnclosureRepo) ListLetters(ctx context.Context) ([]string, error) {
	rs, err := r.db.QueryContext(ctx, `SELECT letter FROM enclosures ORDER BY letter`)
	if err != nil {
		return nil, err
	}
	defer rs.Close()
	var out []string
	for rs.Next() {
		var l string
		if err := rs.Scan(&l); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rs.Err()
}

func (r *EnclosureRepo) listRows(ctx context.Context, enclosureID uint64) ([]model.Row, error) {
	const q = `SELECT id, enclosure_id, letter, start_seat, end_seat, reserved_seats, display_order
	           FROM enclosure_rows
	           WHERE enclosure_id = ?
	           ORDER BY display_order, id`
	rs, err := r.db.QueryContext(ctx, q, enclosureID)
	if err != nil {
		return nil, err
	}
	defer rs.Close()
	var out []model.Row
	for rs.Next() {
		var row model.Row
		if err := rs.Scan(&row.ID, &row.EnclosureID, &row.Letter, &row.StartSeat, &row.EndSeat, &row.ReservedSeats, &row.DisplayOrder); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rs.Err()
}
