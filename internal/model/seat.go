package model

import (
    "fmt"
    "time"
)

// SeatTriple identifies one physical seat by enclosure letter, row
// letter and seat number.  It is comparable and used directly as a map
// key for exclusion sets.
type SeatTriple struct {
    Enclosure string
    Row       string
    Number    int
}

// String renders the triple as "A-B-12".
func (s SeatTriple) String() string {
    return fmt.Sprintf("%s-%s-%d", s.Enclosure, s.Row, s.Number)
}

// SeatReservation is an admin level exclusion that removes a seat from
// allocation independently of the row configuration.
//
// Fields:
//  ID          – primary key identifier.
//  Seat        – reserved seat triple (unique).
//  ReservedFor – free text describing who the seat is held for.
//  ReservedBy  – staff member who created the reservation.
//  CreatedAt   – creation timestamp.
type SeatReservation struct {
    ID          uint64     // seat_reservations.id
    Seat        SeatTriple // seat_reservations.(enclosure_letter,row_letter,seat_number)
    ReservedFor string     // seat_reservations.reserved_for
    ReservedBy  string     // seat_reservations.reserved_by
    CreatedAt   time.Time  // seat_reservations.created_at_ms
}

// SeatAllocation pairs a seat with the registrant it was assigned to.
// Both the triple and the registrant are unique, so a registrant holds
// at most one seat and a seat is given out at most once.
//
// Fields:
//  ID           – primary key identifier.
//  Seat         – allocated seat triple (unique).
//  RegistrantID – registrant holding the seat (unique).
//  AllocatedAt  – commit timestamp.
type SeatAllocation struct {
    ID           uint64     // seat_allocations.id
    Seat         SeatTriple // seat_allocations.(enclosure_letter,row_letter,seat_number)
    RegistrantID uint64     // seat_allocations.registrant_id
    AllocatedAt  time.Time  // seat_allocations.allocated_at_ms
}
