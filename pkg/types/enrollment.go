package types

type EnrollmentStatus string

const (
	EnrollmentStatusActive   EnrollmentStatus = "active"
	EnrollmentStatusCanceled EnrollmentStatus = "canceled"
	EnrollmentStatusExpired  EnrollmentStatus = "expired"
)

// DefaultDaysOfAccess applies when a course purchase does not say how long
// access lasts.
const DefaultDaysOfAccess = 30

// MaxDaysOfAccess bounds a single purchase or renewal window to ten years.
const MaxDaysOfAccess = 3650
