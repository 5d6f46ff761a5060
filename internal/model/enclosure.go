package model

// Enclosure is a named seating zone in the venue.  Enclosures are
// identified by a unique letter which registrants reference through
// their assigned enclosure.
//
// Fields:
//  ID     – primary key identifier.
//  Letter – unique enclosure letter (e.g. A, B, VIP).
//  Name   – human friendly label.
//  Rows   – rows of the enclosure ordered for allocation.
type Enclosure struct {
    ID     uint64 // enclosures.id
    Letter string // enclosures.letter
    Name   string // enclosures.name
    Rows   []Row  // enclosure_rows, ordered by display_order then id
}

// Row is a contiguous numeric seat range within an enclosure.  The
// ReservedSeats column holds a comma separated list of seat numbers that
// must never be allocated; it is kept raw here and parsed by the
// allocation engine.
//
// Fields:
//  ID            – primary key identifier.
//  EnclosureID   – enclosure owning the row.
//  Letter        – row letter, unique per enclosure.
//  StartSeat     – first seat number (inclusive).
//  EndSeat       – last seat number (inclusive).
//  ReservedSeats – raw comma separated exclusion list.
//  DisplayOrder  – walk order during allocation (ascending).
type Row struct {
    ID            uint64 // enclosure_rows.id
    EnclosureID   uint64 // enclosure_rows.enclosure_id
    Letter        string // enclosure_rows.letter
    StartSeat     int    // enclosure_rows.start_seat
    EndSeat       int    // enclosure_rows.end_seat
    ReservedSeats string // enclosure_rows.reserved_seats
    DisplayOrder  int    // enclosure_rows.display_order
}

// Span returns the number of seats in [StartSeat, EndSeat], or zero for
// an inverted range.
func (r Row) Span() int {
    if r.EndSeat < r.StartSeat {
        return 0
    }
    return r.EndSeat - r.StartSeat + 1
}
