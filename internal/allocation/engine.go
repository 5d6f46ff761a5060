// Package allocation assigns seats to the ceremony roster.
//
// An allocation run is partitioned by enclosure.  Each partition loads
// its rows and exclusion sets, plans seats for the unseated roster in
// row-major order, then commits every seat together with the
// registrant's verification secret in one transaction.  Partitions are
// independent: a missing enclosure or a failed commit aborts only that
// partition, and different enclosures run in parallel.
//
// Two runs racing on the same enclosure are settled by the unique
// indexes on seat_allocations.  The loser's transaction rolls back, it
// reloads the exclusion sets and roster, and plans again.  A Locker may
// additionally serialise runs per enclosure so the common case never
// has to retry.
package allocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/convocation-seating/internal/clock"
	"github.com/iliyamo/convocation-seating/internal/metrics"
	"github.com/iliyamo/convocation-seating/internal/model"
	"github.com/iliyamo/convocation-seating/internal/queue"
	"github.com/iliyamo/convocation-seating/internal/repository"
	"github.com/iliyamo/convocation-seating/internal/utils"
)

// CapacityProvider exposes enclosures with their ordered rows.
type CapacityProvider interface {
	GetByLetter(ctx context.Context, letter string) (*model.Enclosure, error)
	List(ctx context.Context) ([]model.Enclosure, error)
}

// ReservationProvider exposes admin seat reservations.
type ReservationProvider interface {
	ListByEnclosure(ctx context.Context, enclosure string) ([]model.SeatReservation, error)
}

// RosterProvider exposes eligible, registered, unseated registrants in
// stable order.
type RosterProvider interface {
	ListUnallocated(ctx context.Context, enclosure string) ([]model.Registrant, error)
	ListPendingEnclosures(ctx context.Context) ([]string, error)
}

// AllocationStore persists allocations.
type AllocationStore interface {
	ListByEnclosure(ctx context.Context, enclosure string) ([]model.SeatAllocation, error)
	Commit(ctx context.Context, batch []repository.AllocationInput, at time.Time) error
	ClearEnclosure(ctx context.Context, enclosure string) (int64, error)
	ClearAll(ctx context.Context) (int64, error)
}

// Locker serialises runs on one enclosure.  Release must be safe to
// call once the run is finished, whether it succeeded or not.
type Locker interface {
	Acquire(ctx context.Context, enclosure string) (release func(), err error)
}

// EventPublisher receives one event per committed enclosure run.
type EventPublisher interface {
	PublishSeatsAllocated(ctx context.Context, ev queue.SeatsAllocatedEvent) error
}

// Deps groups the collaborators the engine reads from and writes to.
type Deps struct {
	Enclosures   CapacityProvider
	Reservations ReservationProvider
	Roster       RosterProvider
	Allocations  AllocationStore
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock sets the clock used for allocation timestamps.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithLocker sets the per-enclosure locker.
func WithLocker(l Locker) Option {
	return func(e *Engine) {
		if l != nil {
			e.locker = l
		}
	}
}

// WithPublisher sets the event publisher.
func WithPublisher(p EventPublisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithMaxRetries bounds re-planning after duplicate-key conflicts.
func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxRetries = n
		}
	}
}

// WithParallelism bounds how many enclosures run at once.
func WithParallelism(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.parallelism = n
		}
	}
}

// WithSecretIssuer replaces the verification secret generator.
func WithSecretIssuer(issue func() (string, error)) Option {
	return func(e *Engine) {
		if issue != nil {
			e.issueSecret = issue
		}
	}
}

// Engine runs allocations, clears them, and reports statistics.
type Engine struct {
	deps        Deps
	logger      *slog.Logger
	clock       clock.Clock
	locker      Locker
	publisher   EventPublisher
	metrics     *metrics.Metrics
	maxRetries  int
	parallelism int
	issueSecret func() (string, error)
}

// NewEngine builds an Engine.  All Deps fields are required.
func NewEngine(deps Deps, opts ...Option) *Engine {
	if deps.Enclosures == nil || deps.Reservations == nil || deps.Roster == nil || deps.Allocations == nil {
		panic("allocation: nil dependency passed to NewEngine")
	}
	e := &Engine{
		deps:        deps,
		logger:      slog.Default(),
		clock:       clock.NewSystem(),
		locker:      noopLocker{},
		maxRetries:  5,
		parallelism: 4,
		issueSecret: utils.NewVerificationSecret,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Scope selects the enclosures an operation touches.  The zero value
// means every enclosure.
type Scope struct {
	Enclosure string
}

// AllEnclosures selects every enclosure.
func AllEnclosures() Scope { return Scope{} }

// OneEnclosure selects a single enclosure by letter.
func OneEnclosure(letter string) Scope { return Scope{Enclosure: letter} }

// IsAll reports whether the scope covers every enclosure.
func (s Scope) IsAll() bool { return s.Enclosure == "" }

// RegistrantError explains why one registrant, or a whole partition
// when RegistrantID is zero, was not seated.
type RegistrantError struct {
	RegistrantID uint64 `json:"registrant_id,omitempty"`
	EnrollmentID string `json:"enrollment_id,omitempty"`
	Enclosure    string `json:"enclosure"`
	Reason       string `json:"reason"`
	Err          error  `json:"-"`
}

func (e RegistrantError) Error() string {
	if e.RegistrantID == 0 {
		return fmt.Sprintf("enclosure %s: %s", e.Enclosure, e.Reason)
	}
	return fmt.Sprintf("registrant %d (enclosure %s): %s", e.RegistrantID, e.Enclosure, e.Reason)
}

func (e RegistrantError) Unwrap() error { return e.Err }

// EnclosureResult summarises one partition.
type EnclosureResult struct {
	Enclosure string `json:"enclosure"`
	Allocated int    `json:"allocated"`
	Failed    int    `json:"failed"`
	Retries   int    `json:"retries"`
	Error     string `json:"error,omitempty"`
}

// Result is returned by every Allocate call, including partial failures.
type Result struct {
	Allocated  int               `json:"allocated"`
	Failed     int               `json:"failed"`
	Errors     []RegistrantError `json:"errors"`
	Enclosures []EnclosureResult `json:"enclosures"`
}

type partitionResult struct {
	summary EnclosureResult
	errors  []RegistrantError
}

// Allocate seats every pending registrant in scope.  The returned error
// is non-nil only when the partitions could not be determined or the
// context was cancelled; per-enclosure and per-registrant failures are
// reported in the Result.
func (e *Engine) Allocate(ctx context.Context, scope Scope) (Result, error) {
	letters := []string{scope.Enclosure}
	if scope.IsAll() {
		pending, err := e.deps.Roster.ListPendingEnclosures(ctx)
		if err != nil {
			return Result{Errors: []RegistrantError{}}, fmt.Errorf("list pending enclosures: %w", err)
		}
		letters = pending
	}

	results := make([]partitionResult, len(letters))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for i, letter := range letters {
		i, letter := i, letter
		g.Go(func() error {
			results[i] = e.runPartition(gctx, letter)
			// partition failures are data, not errors; only cancellation
			// stops the siblings.
			return gctx.Err()
		})
	}
	waitErr := g.Wait()

	res := Result{Errors: []RegistrantError{}, Enclosures: make([]EnclosureResult, 0, len(results))}
	for _, pr := range results {
		if pr.summary.Enclosure == "" {
			continue
		}
		res.Allocated += pr.summary.Allocated
		res.Failed += pr.summary.Failed
		res.Errors = append(res.Errors, pr.errors...)
		res.Enclosures = append(res.Enclosures, pr.summary)
	}
	sort.Slice(res.Enclosures, func(i, j int) bool { return res.Enclosures[i].Enclosure < res.Enclosures[j].Enclosure })

	e.logger.InfoContext(ctx, "allocation run finished",
		slog.String("scope", scopeLabel(scope)),
		slog.Int("allocated", res.Allocated),
		slog.Int("failed", res.Failed),
		slog.Int("enclosures", len(res.Enclosures)))
	if waitErr != nil {
		return res, waitErr
	}
	return res, nil
}

func (e *Engine) runPartition(ctx context.Context, letter string) partitionResult {
	pr := partitionResult{summary: EnclosureResult{Enclosure: letter}}
	log := e.logger.With(slog.String("enclosure", letter))

	release, err := e.locker.Acquire(ctx, letter)
	if err != nil {
		return e.failPartition(ctx, pr, letter, fmt.Errorf("%w: %w", ErrEnclosureBusy, err))
	}
	defer release()

	for attempt := 0; ; attempt++ {
		roster, err := e.deps.Roster.ListUnallocated(ctx, letter)
		if err != nil {
			return e.failPartition(ctx, pr, letter, fmt.Errorf("load roster: %w", err))
		}
		enc, err := e.deps.Enclosures.GetByLetter(ctx, letter)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				err = ErrEnclosureNotFound
			}
			return e.failRoster(ctx, pr, letter, roster, fmt.Errorf("load enclosure: %w", err))
		}
		if len(roster) == 0 {
			return pr
		}
		reservations, err := e.deps.Reservations.ListByEnclosure(ctx, enc.Letter)
		if err != nil {
			return e.failRoster(ctx, pr, letter, roster, fmt.Errorf("load reservations: %w", err))
		}
		taken, err := e.deps.Allocations.ListByEnclosure(ctx, enc.Letter)
		if err != nil {
			return e.failRoster(ctx, pr, letter, roster, fmt.Errorf("load allocations: %w", err))
		}

		plan := BuildPlan(enc, reservations, taken, roster)
		batch, err := e.issue(plan.Assignments)
		if err != nil {
			return e.failRoster(ctx, pr, letter, roster, err)
		}

		at := e.clock.Now()
		err = e.deps.Allocations.Commit(ctx, batch, at)
		if errors.Is(err, repository.ErrSeatTaken) || errors.Is(err, repository.ErrAlreadyAllocated) {
			if attempt >= e.maxRetries {
				return e.failRoster(ctx, pr, letter, roster, fmt.Errorf("%w: %v", ErrContention, err))
			}
			pr.summary.Retries++
			e.metrics.IncAllocationRetry()
			log.WarnContext(ctx, "lost seats to a concurrent run, re-planning",
				slog.Int("attempt", attempt+1), slog.String("reason", err.Error()))
			continue
		}
		if err != nil {
			return e.failRoster(ctx, pr, letter, roster, fmt.Errorf("commit: %w", err))
		}

		pr.summary.Allocated = len(plan.Assignments)
		for _, reg := range plan.Unplaced {
			pr.errors = append(pr.errors, RegistrantError{
				RegistrantID: reg.ID,
				EnrollmentID: reg.EnrollmentID,
				Enclosure:    letter,
				Reason:       ErrCapacityExhausted.Error(),
				Err:          ErrCapacityExhausted,
			})
		}
		pr.summary.Failed = len(plan.Unplaced)
		e.metrics.AddSeatsAllocated(letter, pr.summary.Allocated)
		e.metrics.AddCapacityFailures(letter, pr.summary.Failed)
		log.InfoContext(ctx, "enclosure allocated",
			slog.Int("allocated", pr.summary.Allocated),
			slog.Int("unplaced", pr.summary.Failed),
			slog.Int("retries", pr.summary.Retries))
		e.publish(ctx, letter, plan.Assignments, at)
		return pr
	}
}

// issue pairs every planned seat with a fresh secret.  Registrants who
// already hold a secret keep it; the store ignores the new value.
func (e *Engine) issue(assignments []Assignment) ([]repository.AllocationInput, error) {
	batch := make([]repository.AllocationInput, 0, len(assignments))
	for _, a := range assignments {
		secret, err := e.issueSecret()
		if err != nil {
			return nil, fmt.Errorf("issue secret: %w", err)
		}
		batch = append(batch, repository.AllocationInput{
			Seat:         a.Seat,
			RegistrantID: a.Registrant.ID,
			Secret:       secret,
		})
	}
	return batch, nil
}

func (e *Engine) publish(ctx context.Context, letter string, assignments []Assignment, at time.Time) {
	if e.publisher == nil || len(assignments) == 0 {
		return
	}
	ev := queue.SeatsAllocatedEvent{
		Enclosure:   letter,
		Seats:       make([]queue.AllocatedSeat, 0, len(assignments)),
		AllocatedAt: at.UTC().Format(time.RFC3339),
	}
	for _, a := range assignments {
		ev.Seats = append(ev.Seats, queue.AllocatedSeat{
			RegistrantID: a.Registrant.ID,
			EnrollmentID: a.Registrant.EnrollmentID,
			Enclosure:    a.Seat.Enclosure,
			Row:          a.Seat.Row,
			Seat:         a.Seat.Number,
		})
	}
	if err := e.publisher.PublishSeatsAllocated(ctx, ev); err != nil {
		e.logger.WarnContext(ctx, "publish seats.allocated failed",
			slog.String("enclosure", letter), slog.String("error", err.Error()))
	}
}

// failPartition records a fatal error before the roster is known.
func (e *Engine) failPartition(ctx context.Context, pr partitionResult, letter string, err error) partitionResult {
	pr.summary.Error = err.Error()
	pr.errors = append(pr.errors, RegistrantError{Enclosure: letter, Reason: err.Error(), Err: err})
	e.metrics.IncPartitionFailure(letter)
	e.logger.ErrorContext(ctx, "enclosure run failed", slog.String("enclosure", letter), slog.String("error", err.Error()))
	return pr
}

// failRoster records a fatal error against every pending registrant of
// the partition so the caller can see who was left unseated.
func (e *Engine) failRoster(ctx context.Context, pr partitionResult, letter string, roster []model.Registrant, err error) partitionResult {
	if len(roster) == 0 {
		return e.failPartition(ctx, pr, letter, err)
	}
	pr.summary.Error = err.Error()
	pr.summary.Allocated = 0
	pr.summary.Failed = len(roster)
	for _, reg := range roster {
		pr.errors = append(pr.errors, RegistrantError{
			RegistrantID: reg.ID,
			EnrollmentID: reg.EnrollmentID,
			Enclosure:    letter,
			Reason:       err.Error(),
			Err:          err,
		})
	}
	e.metrics.IncPartitionFailure(letter)
	e.logger.ErrorContext(ctx, "enclosure run failed",
		slog.String("enclosure", letter), slog.Int("registrants", len(roster)), slog.String("error", err.Error()))
	return pr
}

// Clear removes committed allocations in scope and returns how many
// were deleted.  Verification secrets are not touched; a registrant
// whose seat is cleared verifies as "no seat" until seated again.
func (e *Engine) Clear(ctx context.Context, scope Scope) (int64, error) {
	var (
		n   int64
		err error
	)
	if scope.IsAll() {
		n, err = e.deps.Allocations.ClearAll(ctx)
	} else {
		if _, lookupErr := e.deps.Enclosures.GetByLetter(ctx, scope.Enclosure); lookupErr != nil {
			if errors.Is(lookupErr, repository.ErrNotFound) {
				return 0, ErrEnclosureNotFound
			}
			return 0, lookupErr
		}
		n, err = e.deps.Allocations.ClearEnclosure(ctx, scope.Enclosure)
	}
	if err != nil {
		return 0, fmt.Errorf("clear allocations: %w", err)
	}
	e.logger.InfoContext(ctx, "allocations cleared", slog.String("scope", scopeLabel(scope)), slog.Int64("removed", n))
	return n, nil
}

func scopeLabel(s Scope) string {
	if s.IsAll() {
		return "all"
	}
	return s.Enclosure
}

type noopLocker struct{}

func (noopLocker) Acquire(context.Context, string) (func(), error) { return func() {}, nil }
