package model

import "time"

// Registrant is an attendee on the ceremony roster.  Roster data is
// owned by the import tooling; this service only reads it and sets the
// verification secret once, when a seat is committed.
//
// Fields:
//  ID                 – primary key identifier.
//  EnrollmentID       – institutional enrollment identifier (unique).
//  CRR                – secondary registrant-known identifier (unique, nullable).
//  FullName           – printed name.
//  Course             – course or programme name.
//  School             – school or faculty name.
//  Email              – contact address used by the notification tooling.
//  Eligible           – whether the registrant may be seated.
//  Registered         – whether the registrant confirmed attendance.
//  EnclosureLetter    – enclosure the registrant was assigned to (nullable).
//  VerificationSecret – ticket secret, set once on allocation (nullable).
//  CreatedAt          – creation timestamp.
type Registrant struct {
    ID                 uint64    // registrants.id
    EnrollmentID       string    // registrants.enrollment_id
    CRR                *string   // registrants.crr (nullable)
    FullName           string    // registrants.full_name
    Course             string    // registrants.course
    School             string    // registrants.school
    Email              string    // registrants.email
    Eligible           bool      // registrants.eligible
    Registered         bool      // registrants.registered
    EnclosureLetter    *string   // registrants.enclosure_letter (nullable)
    VerificationSecret *string   // registrants.verification_secret (nullable)
    CreatedAt          time.Time // registrants.created_at_ms
}

// HasSecret reports whether a verification secret was issued.
func (r Registrant) HasSecret() bool {
    return r.VerificationSecret != nil && *r.VerificationSecret != ""
}
