// Package ticket verifies verification secrets and records attendance.
//
// A registrant moves through NoSeat, Allocated, Verified and Attended.
// Decide holds the whole state machine as a pure function over a
// snapshot of storage; Service loads the snapshot, acts on the decision,
// and appends to the attendance ledger only on the Attended arm.
package ticket

import "github.com/iliyamo/convocation-seating/internal/model"

// Outcome is the result of a verification request.
type Outcome string

const (
	OutcomeNotFound         Outcome = "NOT_FOUND"
	OutcomeIdentityMismatch Outcome = "IDENTITY_MISMATCH"
	OutcomeNoSeat           Outcome = "NO_SEAT"
	OutcomeVerified         Outcome = "VERIFIED"
	OutcomeAttended         Outcome = "ATTENDED"
	OutcomeAlreadyAttended  Outcome = "ALREADY_ATTENDED"
)

// Snapshot is everything Decide needs to know about one registrant.
// Nil fields mean the row does not exist.
type Snapshot struct {
	Registrant *model.Registrant
	Allocation *model.SeatAllocation
	Attendance *model.AttendanceRecord // earliest record
}

// Decide maps a snapshot to an outcome.  With verifyOnly it never
// returns OutcomeAttended, and the caller must not write anything.
// OutcomeAttended tells the caller to append exactly one record.
//
// A confirmation for a registrant who already has a record is always
// OutcomeAlreadyAttended, even if the seat was cleared since.
func Decide(s Snapshot, verifyOnly bool) Outcome {
	switch {
	case s.Registrant == nil:
		return OutcomeNotFound
	case !verifyOnly && s.Attendance != nil:
		return OutcomeAlreadyAttended
	case s.Allocation == nil:
		return OutcomeNoSeat
	case verifyOnly:
		return OutcomeVerified
	default:
		return OutcomeAttended
	}
}
