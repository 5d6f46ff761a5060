package ticket

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/convocation-seating/internal/clock"
	"github.com/iliyamo/convocation-seating/internal/metrics"
	"github.com/iliyamo/convocation-seating/internal/model"
	"github.com/iliyamo/convocation-seating/internal/queue"
	"github.com/iliyamo/convocation-seating/internal/repository"
	"github.com/iliyamo/convocation-seating/internal/utils"
)

var (
	// ErrNotFound is returned when an identifier resolves to no registrant.
	ErrNotFound = errors.New("registrant not found")
	// ErrIdentityMismatch is returned when the supplied CRR does not
	// match the registrant's.
	ErrIdentityMismatch = errors.New("identity mismatch")
	// ErrNoSeat is returned when the registrant holds no allocation.
	ErrNoSeat = errors.New("no seat allocated")
	// ErrInvalidMethod is returned for an unknown attendance method.
	ErrInvalidMethod = errors.New("invalid attendance method")
)

// RegistrantFinder resolves registrants by their identifiers.
type RegistrantFinder interface {
	GetByEnrollmentID(ctx context.Context, enrollmentID string) (*model.Registrant, error)
	GetByCRR(ctx context.Context, crr string) (*model.Registrant, error)
	GetBySecret(ctx context.Context, secret string) (*model.Registrant, error)
}

// AllocationFinder returns a registrant's current seat.
type AllocationFinder interface {
	GetByRegistrant(ctx context.Context, registrantID uint64) (*model.SeatAllocation, error)
}

// Ledger is the append-only attendance store.
type Ledger interface {
	Append(ctx context.Context, rec *model.AttendanceRecord) error
	FirstByRegistrant(ctx context.Context, registrantID uint64) (*model.AttendanceRecord, error)
}

// EventPublisher receives one event per new attendance record.
type EventPublisher interface {
	PublishAttendanceConfirmed(ctx context.Context, ev queue.AttendanceConfirmedEvent) error
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the clock used for attendance timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithPublisher sets the event publisher.
func WithPublisher(p EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// Service verifies tickets and records attendance.
type Service struct {
	registrants RegistrantFinder
	allocations AllocationFinder
	ledger      Ledger
	logger      *slog.Logger
	clock       clock.Clock
	publisher   EventPublisher
	metrics     *metrics.Metrics
}

// NewService builds a Service.
func NewService(registrants RegistrantFinder, allocations AllocationFinder, ledger Ledger, opts ...Option) *Service {
	if registrants == nil || allocations == nil || ledger == nil {
		panic("ticket: nil dependency passed to NewService")
	}
	s := &Service{
		registrants: registrants,
		allocations: allocations,
		ledger:      ledger,
		logger:      slog.Default(),
		clock:       clock.NewSystem(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request is a staff check-in request.  Identifier is a verification
// secret for QR_SCAN and an enrollment id for MANUAL.  An empty Method
// is inferred from the identifier's shape.
type Request struct {
	Identifier  string
	VerifyOnly  bool
	Method      model.AttendanceMethod
	Location    string
	ConfirmedBy string
}

// Ticket is the projection returned to check-in staff.  It never
// carries the verification secret.
type Ticket struct {
	RegistrantID    uint64     `json:"registrant_id"`
	EnrollmentID    string     `json:"enrollment_id"`
	Name            string     `json:"name"`
	Course          string     `json:"course"`
	School          string     `json:"school"`
	Enclosure       string     `json:"enclosure,omitempty"`
	Row             string     `json:"row,omitempty"`
	Seat            int        `json:"seat,omitempty"`
	AlreadyAttended bool       `json:"already_attended"`
	MarkedAt        *time.Time `json:"marked_at,omitempty"`
}

// Result is the answer to a Verify call.  Ticket is nil for
// OutcomeNotFound.
type Result struct {
	Outcome Outcome `json:"outcome"`
	Method  string  `json:"method"`
	Ticket  *Ticket `json:"ticket,omitempty"`
}

// Verify resolves the identifier and, unless VerifyOnly is set, marks
// the registrant as attended.  A registrant who already attended gets
// OutcomeAlreadyAttended with the first record's timestamp; no second
// record is written on that path.
func (s *Service) Verify(ctx context.Context, req Request) (Result, error) {
	id := strings.TrimSpace(req.Identifier)
	method := req.Method
	if method == "" {
		method = inferMethod(id)
	}
	if !method.Valid() {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidMethod, req.Method)
	}

	snap, err := s.load(ctx, id, method)
	if err != nil {
		return Result{}, err
	}
	outcome := Decide(snap, req.VerifyOnly)

	res := Result{Outcome: outcome, Method: string(method)}
	switch outcome {
	case OutcomeNotFound:
	case OutcomeNoSeat, OutcomeVerified:
		res.Ticket = project(snap)
	case OutcomeAlreadyAttended:
		res.Ticket = project(snap)
		if snap.Allocation == nil && snap.Attendance.Seat != nil {
			// seat was cleared after check-in; report where they sat
			res.Ticket.Enclosure = snap.Attendance.Seat.Enclosure
			res.Ticket.Row = snap.Attendance.Seat.Row
			res.Ticket.Seat = snap.Attendance.Seat.Number
		}
	case OutcomeAttended:
		res, err = s.attend(ctx, snap, req, method)
		if err != nil {
			return Result{}, err
		}
	}
	s.metrics.IncVerification(string(res.Outcome), string(method))
	return res, nil
}

func inferMethod(identifier string) model.AttendanceMethod {
	if utils.IsVerificationSecret(identifier) {
		return model.AttendanceQRScan
	}
	return model.AttendanceManual
}

// load reads the registrant, its allocation and its first attendance
// record.  Missing rows become nil fields.
func (s *Service) load(ctx context.Context, identifier string, method model.AttendanceMethod) (Snapshot, error) {
	var snap Snapshot
	if identifier == "" {
		return snap, nil
	}
	var (
		reg *model.Registrant
		err error
	)
	if method == model.AttendanceQRScan {
		if !utils.IsVerificationSecret(identifier) {
			return snap, nil
		}
		reg, err = s.registrants.GetBySecret(ctx, strings.ToLower(identifier))
	} else {
		reg, err = s.registrants.GetByEnrollmentID(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return snap, nil
		}
		return snap, fmt.Errorf("load registrant: %w", err)
	}
	snap.Registrant = reg

	alloc, err := s.allocations.GetByRegistrant(ctx, reg.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return snap, fmt.Errorf("load allocation: %w", err)
	}
	snap.Allocation = alloc

	first, err := s.ledger.FirstByRegistrant(ctx, reg.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return snap, fmt.Errorf("load attendance: %w", err)
	}
	snap.Attendance = first
	return snap, nil
}

// attend appends one record and then re-reads the earliest record.  If
// a concurrent confirmation got there first, the caller sees the
// winner's record as OutcomeAlreadyAttended.
func (s *Service) attend(ctx context.Context, snap Snapshot, req Request, method model.AttendanceMethod) (Result, error) {
	seat := snap.Allocation.Seat
	rec := &model.AttendanceRecord{
		ID:           uuid.NewString(),
		RegistrantID: snap.Registrant.ID,
		Method:       method,
		Location:     strings.TrimSpace(req.Location),
		Seat:         &seat,
		MarkedAt:     s.clock.Now().UTC(),
	}
	if by := strings.TrimSpace(req.ConfirmedBy); by != "" {
		rec.ConfirmedBy = &by
	}
	if err := s.ledger.Append(ctx, rec); err != nil {
		return Result{}, fmt.Errorf("append attendance: %w", err)
	}

	first, err := s.ledger.FirstByRegistrant(ctx, snap.Registrant.ID)
	if err != nil {
		return Result{}, fmt.Errorf("reload attendance: %w", err)
	}
	snap.Attendance = first
	res := Result{Outcome: OutcomeAttended, Method: string(method), Ticket: project(snap)}
	if first.ID != rec.ID {
		res.Outcome = OutcomeAlreadyAttended
		s.logger.InfoContext(ctx, "concurrent check-in folded into first record",
			slog.Uint64("registrant_id", snap.Registrant.ID), slog.String("record_id", first.ID))
		return res, nil
	}
	// first is our own record
	res.Ticket.AlreadyAttended = false

	s.metrics.IncAttendance(string(method))
	s.logger.InfoContext(ctx, "attendance marked",
		slog.Uint64("registrant_id", snap.Registrant.ID),
		slog.String("method", string(method)),
		slog.String("seat", seat.String()))
	s.publish(ctx, snap.Registrant, first)
	return res, nil
}

func (s *Service) publish(ctx context.Context, reg *model.Registrant, rec *model.AttendanceRecord) {
	if s.publisher == nil {
		return
	}
	ev := queue.AttendanceConfirmedEvent{
		RecordID:     rec.ID,
		RegistrantID: reg.ID,
		EnrollmentID: reg.EnrollmentID,
		FullName:     reg.FullName,
		Method:       string(rec.Method),
		Location:     rec.Location,
		MarkedAt:     rec.MarkedAt.UTC().Format(time.RFC3339),
	}
	if rec.ConfirmedBy != nil {
		ev.ConfirmedBy = *rec.ConfirmedBy
	}
	if rec.Seat != nil {
		ev.Enclosure, ev.Row, ev.Seat = rec.Seat.Enclosure, rec.Seat.Row, rec.Seat.Number
	}
	if err := s.publisher.PublishAttendanceConfirmed(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "publish attendance.confirmed failed",
			slog.String("record_id", rec.ID), slog.String("error", err.Error()))
	}
}

func project(snap Snapshot) *Ticket {
	reg := snap.Registrant
	t := &Ticket{
		RegistrantID: reg.ID,
		EnrollmentID: reg.EnrollmentID,
		Name:         reg.FullName,
		Course:       reg.Course,
		School:       reg.School,
	}
	if snap.Allocation != nil {
		t.Enclosure = snap.Allocation.Seat.Enclosure
		t.Row = snap.Allocation.Seat.Row
		t.Seat = snap.Allocation.Seat.Number
	}
	if snap.Attendance != nil {
		at := snap.Attendance.MarkedAt
		t.AlreadyAttended = true
		t.MarkedAt = &at
	}
	return t
}

// Registration is the public self-service view of a registrant.  It
// says whether a ticket exists but never includes the secret.
type Registration struct {
	EnrollmentID string `json:"enrollment_id"`
	Name         string `json:"name"`
	Course       string `json:"course"`
	School       string `json:"school"`
	Enclosure    string `json:"enclosure,omitempty"`
	Row          string `json:"row,omitempty"`
	Seat         int    `json:"seat,omitempty"`
	HasTicket    bool   `json:"has_ticket"`
}

// Lookup resolves identifier as an enrollment id first and then as a
// CRR.
func (s *Service) Lookup(ctx context.Context, identifier string) (Registration, error) {
	id := strings.TrimSpace(identifier)
	if id == "" {
		return Registration{}, ErrNotFound
	}
	reg, err := s.registrants.GetByEnrollmentID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		reg, err = s.registrants.GetByCRR(ctx, id)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Registration{}, ErrNotFound
		}
		return Registration{}, fmt.Errorf("lookup registrant: %w", err)
	}

	out := Registration{
		EnrollmentID: reg.EnrollmentID,
		Name:         reg.FullName,
		Course:       reg.Course,
		School:       reg.School,
	}
	if reg.EnclosureLetter != nil {
		out.Enclosure = *reg.EnclosureLetter
	}
	alloc, err := s.allocations.GetByRegistrant(ctx, reg.ID)
	switch {
	case err == nil:
		out.Enclosure = alloc.Seat.Enclosure
		out.Row = alloc.Seat.Row
		out.Seat = alloc.Seat.Number
		out.HasTicket = reg.HasSecret()
	case errors.Is(err, repository.ErrNotFound):
	default:
		return Registration{}, fmt.Errorf("lookup allocation: %w", err)
	}
	return out, nil
}

// RevealSecret returns the registrant's verification secret when crr
// matches the stored CRR.  The comparison runs in constant time.
func (s *Service) RevealSecret(ctx context.Context, enrollmentID, crr string) (string, error) {
	reg, err := s.registrants.GetByEnrollmentID(ctx, strings.TrimSpace(enrollmentID))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("reveal: load registrant: %w", err)
	}
	if !crrMatches(reg.CRR, crr) {
		s.logger.WarnContext(ctx, "secret reveal refused", slog.Uint64("registrant_id", reg.ID))
		return "", ErrIdentityMismatch
	}
	if _, err := s.allocations.GetByRegistrant(ctx, reg.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrNoSeat
		}
		return "", fmt.Errorf("reveal: load allocation: %w", err)
	}
	if !reg.HasSecret() {
		return "", ErrNoSeat
	}
	return *reg.VerificationSecret, nil
}

func crrMatches(stored *string, supplied string) bool {
	supplied = strings.TrimSpace(supplied)
	if stored == nil || *stored == "" || supplied == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(*stored), []byte(supplied)) == 1
}
