package allocation

import "errors"

var (
	// ErrCapacityExhausted is reported per registrant when the enclosure
	// ran out of free seats.  It never aborts the batch.
	ErrCapacityExhausted = errors.New("insufficient capacity")
	// ErrEnclosureNotFound is fatal to one enclosure partition.
	ErrEnclosureNotFound = errors.New("enclosure not found")
	// ErrEnclosureBusy is returned when the enclosure lock could not be
	// taken before the caller's deadline.
	ErrEnclosureBusy = errors.New("enclosure allocation already running")
	// ErrContention is returned when concurrent runs kept winning the
	// planned seats for more than the configured number of retries.
	ErrContention = errors.New("allocation contention: retries exhausted")
)
