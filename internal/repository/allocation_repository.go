package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/convocation-seating/internal/model"
)

// AllocationRepo persists seat allocations.  Seat triples and
// registrants are both unique in seat_allocations, so the table itself
// is the arena that decides which of two concurrent writers wins a seat.
type AllocationRepo struct {
	db *sql.DB
}

// NewAllocationRepo returns a new AllocationRepo bound to the given database.
func NewAllocationRepo(db *sql.DB) *AllocationRepo { return &AllocationRepo{db: db} }

// AllocationInput is one planned seat assignment with the secret to
// issue alongside it.
type AllocationInput struct {
	Seat         model.SeatTriple
	RegistrantID uint64
	Secret       string
}

// Commit writes every allocation of one enclosure run and its paired
// verification secret in a single transaction.  An existing secret is
// kept (secrets are never regenerated).  Before committing, the batch is
// re-read to check that each registrant holds both a seat and a secret;
// otherwise the transaction is rolled back with ErrInconsistentCommit.
//
// A duplicate seat or registrant rolls everything back and returns
// ErrSeatTaken or ErrAlreadyAllocated so the caller can re-plan.
func (r *AllocationRepo) Commit(ctx context.Context, batch []AllocationInput, at time.Time) error {
	if len(batch) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin allocation tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := insertAllocationsTx(ctx, tx, batch, at); err != nil {
		return err
	}

	const setSecret = `UPDATE registrants SET verification_secret = COALESCE(verification_secret, ?) WHERE id = ?`
	stmt, err := tx.PrepareContext(ctx, setSecret)
	if err != nil {
		return fmt.Errorf("prepare secret update: %w", err)
	}
	defer stmt.Close()
	for _, in := range batch {
		if in.Secret == "" {
			return fmt.Errorf("registrant %d: empty secret: %w", in.RegistrantID, ErrInconsistentCommit)
		}
		if _, err := stmt.ExecContext(ctx, in.Secret, in.RegistrantID); err != nil {
			if isDuplicateKey(err) {
				// secret collision; vanishingly unlikely with 256 random bits
				return fmt.Errorf("registrant %d: secret collision: %w", in.RegistrantID, ErrInconsistentCommit)
			}
			return fmt.Errorf("set secret for registrant %d: %w", in.RegistrantID, err)
		}
	}

	if err := verifyBatchTx(ctx, tx, batch); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit allocation tx: %w", err)
	}
	committed = true
	return nil
}

func insertAllocationsTx(ctx context.Context, tx *sql.Tx, batch []AllocationInput, at time.Time) error {
	query := `INSERT INTO seat_allocations (enclosure_letter, row_letter, seat_number, registrant_id, allocated_at_ms) VALUES `
	args := make([]any, 0, len(batch)*5)
	ms := toMillis(at)
	for i, in := range batch {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?)"
		args = append(args, in.Seat.Enclosure, in.Seat.Row, in.Seat.Number, in.RegistrantID, ms)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if isDuplicateKey(err) {
			return classifyAllocationConflict(err)
		}
		return fmt.Errorf("insert allocations: %w", err)
	}
	return nil
}

// verifyBatchTx counts registrants in the batch that hold both a seat
// and a secret inside the same transaction.
func verifyBatchTx(ctx context.Context, tx *sql.Tx, batch []AllocationInput) error {
	args := make([]any, 0, len(batch))
	for _, in := range batch {
		args = append(args, in.RegistrantID)
	}
	q := `SELECT COUNT(*)
	      FROM registrants r
	      JOIN seat_allocations a ON a.registrant_id = r.id
	      WHERE r.id IN (` + placeholders(len(batch)) + `)
	        AND r.verification_secret IS NOT NULL AND r.verification_secret <> ''`
	var n int
	if err := tx.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return fmt.Errorf("verify allocation batch: %w", err)
	}
	if n != len(batch) {
		return fmt.Errorf("%d of %d registrants paired: %w", n, len(batch), ErrInconsistentCommit)
	}
	return nil
}

// Create inserts a single allocation without issuing a secret.  It is
// the direct-create path used by admin tooling; a duplicate returns
// ErrSeatTaken or ErrAlreadyAllocated rather than being skipped.
func (r *AllocationRepo) Create(ctx context.Context, a *model.SeatAllocation) error {
	const q = `INSERT INTO seat_allocations (enclosure_letter, row_letter, seat_number, registrant_id, allocated_at_ms)
	           VALUES (?, ?, ?, ?, ?)`
	if a.AllocatedAt.IsZero() {
		a.AllocatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, q, a.Seat.Enclosure, a.Seat.Row, a.Seat.Number, a.RegistrantID, toMillis(a.AllocatedAt))
	if err != nil {
		if isDuplicateKey(err) {
			return classifyAllocationConflict(err)
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = uint64(id)
	return nil
}

// ListByEnclosure returns all allocations inside one enclosure.
func (r *AllocationRepo) ListByEnclosure(ctx context.Context, enclosure string) ([]model.SeatAllocation, error) {
	const q = `SELECT id, enclosure_letter, row_letter, seat_number, registrant_id, allocated_at_ms
	           FROM seat_allocations
	           WHERE enclosure_letter = ?
	           ORDER BY id`
	rs, err := r.db.QueryContext(ctx, q, enclosure)
	if err != nil {
		return nil, err
	}
	defer rs.Close()
	var out []model.SeatAllocation
	for rs.Next() {
		a, err := scanAllocation(rs)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rs.Err()
}

// GetByRegistrant returns the registrant's allocation or ErrNotFound.
func (r *AllocationRepo) GetByRegistrant(ctx context.Context, registrantID uint64) (*model.SeatAllocation, error) {
	const q = `SELECT id, enclosure_letter, row_letter, seat_number, registrant_id, allocated_at_ms
	           FROM seat_allocations WHERE registrant_id = ?`
	a, err := scanAllocation(r.db.QueryRowContext(ctx, q, registrantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

// ClearEnclosure deletes every allocation in one enclosure and returns
// how many were removed.  Secrets are left untouched.
func (r *AllocationRepo) ClearEnclosure(ctx context.Context, enclosure string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM seat_allocations WHERE enclosure_letter = ?`, enclosure)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ClearAll deletes every allocation and returns how many were removed.
func (r *AllocationRepo) ClearAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM seat_allocations`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanAllocation(s rowScanner) (*model.SeatAllocation, error) {
	var (
		a  model.SeatAllocation
		ms int64
	)
	if err := s.Scan(&a.ID, &a.Seat.Enclosure, &a.Seat.Row, &a.Seat.Number, &a.RegistrantID, &ms); err != nil {
		return nil, err
	}
	a.AllocatedAt = fromMillis(ms)
	return &a, nil
}
