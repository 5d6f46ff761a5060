package allocation

import (
	"context"
	"fmt"

	"github.com/iliyamo/convocation-seating/internal/model"
)

// EnclosureStats is the capacity picture of one enclosure.
type EnclosureStats struct {
	Enclosure      string `json:"enclosure,omitempty"`
	TotalCapacity  int    `json:"total_capacity"`
	ReservedCount  int    `json:"reserved_count"`
	AllocatedCount int    `json:"allocated_count"`
	AvailableCount int    `json:"available_count"`
}

// Stats aggregates every enclosure plus global totals.
type Stats struct {
	Enclosures []EnclosureStats `json:"enclosures"`
	Totals     EnclosureStats   `json:"totals"`
}

// Stats reads the committed state without locking.  A run in progress
// may or may not be reflected; the snapshot is eventually consistent.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	encs, err := e.deps.Enclosures.List(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list enclosures: %w", err)
	}
	out := Stats{Enclosures: make([]EnclosureStats, 0, len(encs))}
	for i := range encs {
		enc := &encs[i]
		reservations, err := e.deps.Reservations.ListByEnclosure(ctx, enc.Letter)
		if err != nil {
			return Stats{}, fmt.Errorf("enclosure %s reservations: %w", enc.Letter, err)
		}
		allocations, err := e.deps.Allocations.ListByEnclosure(ctx, enc.Letter)
		if err != nil {
			return Stats{}, fmt.Errorf("enclosure %s allocations: %w", enc.Letter, err)
		}
		s := EnclosureStatsFor(enc, reservations, len(allocations))
		out.Enclosures = append(out.Enclosures, s)
		out.Totals.TotalCapacity += s.TotalCapacity
		out.Totals.ReservedCount += s.ReservedCount
		out.Totals.AllocatedCount += s.AllocatedCount
		out.Totals.AvailableCount += s.AvailableCount
	}
	return out, nil
}

// EnclosureStatsFor computes one enclosure's figures.  ReservedCount
// counts distinct in-range seats excluded by an admin reservation or
// the row's exclusion list, so a seat excluded both ways counts once
// and reservations outside every row count not at all.
func EnclosureStatsFor(enc *model.Enclosure, reservations []model.SeatReservation, allocated int) EnclosureStats {
	admin := reservationSet(reservations)
	s := EnclosureStats{Enclosure: enc.Letter, AllocatedCount: allocated}
	for _, row := range enc.Rows {
		s.TotalCapacity += row.Span()
		excluded := ParseReservedSeats(row.ReservedSeats)
		for n := row.StartSeat; n <= row.EndSeat; n++ {
			_, rowExcluded := excluded[n]
			if rowExcluded || admin.has(enc.Letter, row.Letter, n) {
				s.ReservedCount++
			}
		}
	}
	s.AvailableCount = s.TotalCapacity - s.ReservedCount - s.AllocatedCount
	if s.AvailableCount < 0 {
		s.AvailableCount = 0
	}
	return s
}
