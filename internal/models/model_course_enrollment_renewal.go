package models

import "time"

// CourseEnrollmentRenewal is one applied renewal payment. PaymentID is unique
// so a payment extends access at most once, whatever order its events arrive in.
type CourseEnrollmentRenewal struct {
	ID           string    `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	EnrollmentID string    `gorm:"column:enrollment_id;type:uuid;not null;index" json:"enrollment_id"`
	PaymentID    string    `gorm:"column:payment_id;type:varchar(255);not null;uniqueIndex" json:"payment_id"`
	DaysOfAccess int       `gorm:"column:days_of_access;not null" json:"days_of_access"`
	RenewedAt    time.Time `gorm:"column:renewed_at;not null" json:"renewed_at"`
	ExpiresAt    time.Time `gorm:"column:expires_at;not null" json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

func (CourseEnrollmentRenewal) TableName() string { return "course_enrollment_renewal" }
