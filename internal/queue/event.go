// Package queue defines message payloads exchanged over the message broker
// and the consumer that records check-ins from them.
package queue

// Queue names.  Both are durable.
const (
    SeatsAllocatedQueue      = "seats.allocated"
    AttendanceConfirmedQueue = "attendance.confirmed"
)

// AllocatedSeat is one seat handed out in an allocation run.
type AllocatedSeat struct {
    RegistrantID uint64 `json:"registrant_id"`
    EnrollmentID string `json:"enrollment_id"`
    Enclosure    string `json:"enclosure"`
    Row          string `json:"row"`
    Seat         int    `json:"seat"`
}

// SeatsAllocatedEvent is published once per committed enclosure run.
// The notification tooling consumes it to send tickets; it deliberately
// carries no verification secrets.
type SeatsAllocatedEvent struct {
    Enclosure   string          `json:"enclosure"`
    Seats       []AllocatedSeat `json:"seats"`
    AllocatedAt string          `json:"allocated_at"`
}

// AttendanceConfirmedEvent is published when a check-in creates a new
// attendance record.  Repeat confirmations that fold into the first
// record do not publish.
type AttendanceConfirmedEvent struct {
    RecordID     string `json:"record_id"`
    RegistrantID uint64 `json:"registrant_id"`
    EnrollmentID string `json:"enrollment_id"`
    FullName     string `json:"full_name"`
    Method       string `json:"method"`
    Location     string `json:"location"`
    ConfirmedBy  string `json:"confirmed_by,omitempty"`
    Enclosure    string `json:"enclosure,omitempty"`
    Row          string `json:"row,omitempty"`
    Seat         int    `json:"seat,omitempty"`
    MarkedAt     string `json:"marked_at"`
}
