package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/convocation-seating/internal/model"
)

// RegistrantRepo reads the ceremony roster.  It is the roster provider
// for the allocation engine and the point-lookup source for ticket
// verification.  The roster itself is written by import tooling; Create
// is provided for that tooling and for tests.
type RegistrantRepo struct {
	db *sql.DB
}

// NewRegistrantRepo returns a new RegistrantRepo bound to the given database.
func NewRegistrantRepo(db *sql.DB) *RegistrantRepo { return &RegistrantRepo{db: db} }

const registrantColumns = `r.id, r.enrollment_id, r.crr, r.full_name, r.course, r.school, r.email,
	r.eligible, r.registered, r.enclosure_letter, r.verification_secret, r.created_at_ms`

func scanRegistrant(s rowScanner) (*model.Registrant, error) {
	var (
		reg       model.Registrant
		crr       sql.NullString
		enclosure sql.NullString
		secret    sql.NullString
		createdMs int64
	)
	if err := s.Scan(&reg.ID, &reg.EnrollmentID, &crr, &reg.FullName, &reg.Course, &reg.School, &reg.Email,
		&reg.Eligible, &reg.Registered, &enclosure, &secret, &createdMs); err != nil {
		return nil, err
	}
	reg.CRR = stringPtr(crr)
	reg.EnclosureLetter = stringPtr(enclosure)
	reg.VerificationSecret = stringPtr(secret)
	reg.CreatedAt = fromMillis(createdMs)
	return &reg, nil
}

// Create inserts a registrant.  VerificationSecret is ignored: secrets
// are only ever written by AllocationRepo.Commit.
func (r *RegistrantRepo) Create(ctx context.Context, reg *model.Registrant) error {
	const q = `INSERT INTO registrants (enrollment_id, crr, full_name, course, school, email, eligible, registered, enclosure_letter, created_at_ms)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, q, reg.EnrollmentID, nullString(reg.CRR), reg.FullName, reg.Course, reg.School, reg.Email,
		boolInt(reg.Eligible), boolInt(reg.Registered), nullString(reg.EnclosureLetter), toMillis(now))
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
	reg.ID = uint64(id)
	reg.CreatedAt = now
	reg.VerificationSecret = nil
	return nil
}

// ListUnallocated returns the registrants of one enclosure that are
// eligible, registered and not yet seated, in stable id order.
func (r *RegistrantRepo) ListUnallocated(ctx context.Context, enclosure string) ([]model.Registrant, error) {
	q := `SELECT ` + registrantColumns + `
	      FROM registrants r
	      WHERE r.eligible = 1 AND r.registered = 1 AND r.enclosure_letter = ?
	        AND NOT EXISTS (SELECT 1 FROM seat_allocations a WHERE a.registrant_id = r.id)
	      ORDER BY r.id`
	rs, err := r.db.QueryContext(ctx, q, enclosure)
	if err != nil {
		return nil, err
	}
	defer rs.Close()
	var out []model.Registrant
	for rs.Next() {
		reg, err := scanRegistrant(rs)
		if err != nil {
			return nil, err
		}
		out = append(out, *reg)
	}
	return out, rs.Err()
}

// ListPendingEnclosures returns the distinct enclosure letters that
// still have unseated eligible registrants.  Letters that do not match
// any enclosure are included so the caller can report them.
func (r *RegistrantRepo) ListPendingEnclosures(ctx context.Context) ([]string, error) {
	const q = `SELECT DISTINCT r.enclosure_letter
	           FROM registrants r
	           WHERE r.eligible = 1 AND r.registered = 1 AND r.enclosure_letter IS NOT NULL AND r.enclosure_letter <> ''
	             AND NOT EXISTS (SELECT 1 FROM seat_allocations a WHERE a.registrant_id = r.id)
	           ORDER BY r.enclosure_letter`
	rs, err := r.db.QueryContext(ctx, q)
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

// GetByID returns the registrant with the given id or ErrNotFound.
func (r *RegistrantRepo) GetByID(ctx context.Context, id uint64) (*model.Registrant, error) {
	return r.getOne(ctx, `r.id = ?`, id)
}

// GetByEnrollmentID returns the registrant with the enrollment id or ErrNotFound.
func (r *RegistrantRepo) GetByEnrollmentID(ctx context.Context, enrollmentID string) (*model.Registrant, error) {
	return r.getOne(ctx, `r.enrollment_id = ?`, enrollmentID)
}

// GetByCRR returns the registrant with the CRR or ErrNotFound.
func (r *RegistrantRepo) GetByCRR(ctx context.Context, crr string) (*model.Registrant, error) {
	return r.getOne(ctx, `r.crr = ?`, crr)
}

// GetBySecret returns the registrant holding the verification secret or ErrNotFound.
func (r *RegistrantRepo) GetBySecret(ctx context.Context, secret string) (*model.Registrant, error) {
	return r.getOne(ctx, `r.verification_secret = ?`, secret)
}

func (r *RegistrantRepo) getOne(ctx context.Context, where string, arg any) (*model.Registrant, error) {
	q := `SELECT ` + registrantColumns + ` FROM registrants r WHERE ` + where + ` LIMIT 1`
	reg, err := scanRegistrant(r.db.QueryRowContext(ctx, q, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return reg, nil
}
