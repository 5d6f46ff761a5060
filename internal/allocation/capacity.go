package allocation

import (
	"strconv"
	"strings"

	"github.com/iliyamo/convocation-seating/internal/model"
)

// ParseReservedSeats parses a row's comma separated exclusion list.
// Blank and non-numeric tokens are ignored.
func ParseReservedSeats(raw string) map[int]struct{} {
	out := make(map[int]struct{})
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		n, err := strconv.Atoi(tok)
		if err != nil {
			continue
		}
		out[n] = struct{}{}
	}
	return out
}

// seatSet is a triple-keyed lookup set.  Keys are normalised so that
// letter casing and stray whitespace in imported data cannot make two
// spellings of the same seat look distinct.
type seatSet map[model.SeatTriple]struct{}

func seatKey(enclosure, row string, number int) model.SeatTriple {
	return model.SeatTriple{Enclosure: normalizeLetter(enclosure), Row: normalizeLetter(row), Number: number}
}

func normalizeLetter(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func (s seatSet) add(t model.SeatTriple) {
	s[seatKey(t.Enclosure, t.Row, t.Number)] = struct{}{}
}

func (s seatSet) has(enclosure, row string, number int) bool {
	_, ok := s[seatKey(enclosure, row, number)]
	return ok
}

func reservationSet(reservations []model.SeatReservation) seatSet {
	set := make(seatSet, len(reservations))
	for _, r := range reservations {
		set.add(r.Seat)
	}
	return set
}

func allocationSet(allocations []model.SeatAllocation) seatSet {
	set := make(seatSet, len(allocations))
	for _, a := range allocations {
		set.add(a.Seat)
	}
	return set
}
