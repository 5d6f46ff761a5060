package model

import "time"

// AttendanceMethod records how a check-in was performed.
type AttendanceMethod string

const (
    // AttendanceQRScan is a check-in through the verification secret.
    AttendanceQRScan AttendanceMethod = "QR_SCAN"
    // AttendanceManual is a check-in through the enrollment identifier.
    AttendanceManual AttendanceMethod = "MANUAL"
)

// Valid reports whether m is one of the known methods.
func (m AttendanceMethod) Valid() bool {
    return m == AttendanceQRScan || m == AttendanceManual
}

// AttendanceRecord is an append-only check-in event.  The seat columns
// are a snapshot taken at confirmation time so history stays correct
// even if the allocation is later cleared.
//
// Fields:
//  ID           – uuid primary key.
//  RegistrantID – registrant who checked in.
//  Method       – QR_SCAN or MANUAL.
//  Location     – gate or desk where the check-in happened.
//  ConfirmedBy  – staff identity that confirmed it (nullable).
//  Seat         – seat snapshot (nil when no seat was held).
//  MarkedAt     – check-in timestamp.
type AttendanceRecord struct {
    ID           string           // attendance_records.id
    RegistrantID uint64           // attendance_records.registrant_id
    Method       AttendanceMethod // attendance_records.method
    Location     string           // attendance_records.location
    ConfirmedBy  *string          // attendance_records.confirmed_by (nullable)
    Seat         *SeatTriple      // attendance_records.(enclosure_letter,row_letter,seat_number)
    MarkedAt     time.Time        // attendance_records.marked_at_ms
}
