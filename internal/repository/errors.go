// Package repository implements persistence for the seating service on
// top of database/sql.  Queries are written in the subset of SQL shared
// by MySQL and SQLite so the same code serves production and tests.
//
// The sentinel values below let higher layers distinguish storage
// outcomes without knowing the driver.  Duplicate-key failures in
// particular are a normal signal: the allocation engine treats
// ErrSeatTaken and ErrAlreadyAllocated as "someone else won, re-plan".
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// ErrNotFound is returned when a point lookup yields no rows.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert collides with an existing
// unique value that is not a seat allocation (e.g. a staff email).
var ErrConflict = errors.New("conflict")

// ErrSeatTaken is returned when a seat triple is already allocated.
var ErrSeatTaken = errors.New("seat already allocated")

// ErrAlreadyAllocated is returned when a registrant already holds a seat.
var ErrAlreadyAllocated = errors.New("registrant already allocated")

// ErrInconsistentCommit is returned when a commit would leave a seat
// without its secret or a secret without its seat.  The transaction is
// rolled back before it is returned.
var ErrInconsistentCommit = errors.New("inconsistent allocation commit")

const mysqlDuplicateEntry = 1062

// isDuplicateKey reports whether err is a unique index violation from
// either supported driver.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	var liteErr *msqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return false
}

// classifyAllocationConflict maps a duplicate key on seat_allocations
// to the matching sentinel.  Both drivers name the violated index or
// column in the message; only the registrant index mentions it.
func classifyAllocationConflict(err error) error {
	if strings.Contains(strings.ToLower(err.Error()), "registrant") {
		return ErrAlreadyAllocated
	}
	return ErrSeatTaken
}
