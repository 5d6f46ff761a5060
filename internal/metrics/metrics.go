package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the seating service.
// Methods are safe to call on a nil *Metrics so services can run
// without instrumentation in tests.
type Metrics struct {
	SeatsAllocated       *prometheus.CounterVec
	CapacityFailures     *prometheus.CounterVec
	PartitionFailures    *prometheus.CounterVec
	AllocationRetries    prometheus.Counter
	VerificationOutcomes *prometheus.CounterVec
	AttendanceMarked     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.  Pass
// prometheus.DefaultRegisterer in production and a fresh registry in
// tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SeatsAllocated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "seating_seats_allocated_total",
			Help: "Seats committed by allocation runs",
		}, []string{"enclosure"}),
		CapacityFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "seating_capacity_failures_total",
			Help: "Registrants left unseated because an enclosure was full",
		}, []string{"enclosure"}),
		PartitionFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "seating_partition_failures_total",
			Help: "Enclosure runs aborted by a fatal error",
		}, []string{"enclosure"}),
		AllocationRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "seating_allocation_retries_total",
			Help: "Re-plans after losing a seat to a concurrent run",
		}),
		VerificationOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "seating_verification_outcomes_total",
			Help: "Ticket verification outcomes",
		}, []string{"outcome", "method"}),
		AttendanceMarked: f.NewCounterVec(prometheus.CounterOpts{
			Name: "seating_attendance_marked_total",
			Help: "Attendance records appended",
		}, []string{"method"}),
	}
}

func (m *Metrics) AddSeatsAllocated(enclosure string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SeatsAllocated.WithLabelValues(enclosure).Add(float64(n))
}

func (m *Metrics) AddCapacityFailures(enclosure string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CapacityFailures.WithLabelValues(enclosure).Add(float64(n))
}

func (m *Metrics) IncPartitionFailure(enclosure string) {
	if m == nil {
		return
	}
	m.PartitionFailures.WithLabelValues(enclosure).Inc()
}

func (m *Metrics) IncAllocationRetry() {
	if m == nil {
		return
	}
	m.AllocationRetries.Inc()
}

func (m *Metrics) IncVerification(outcome, method string) {
	if m == nil {
		return
	}
	m.VerificationOutcomes.WithLabelValues(outcome, method).Inc()
}

func (m *Metrics) IncAttendance(method string) {
	if m == nil {
		return
	}
	m.AttendanceMarked.WithLabelValues(method).Inc()
}
