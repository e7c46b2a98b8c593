package models

import (
	"time"

	"github.com/fatflowers/coursepay/pkg/types"
)

// CourseEnrollment grants a user time-boxed access to one course.
// PaymentID is unique: the payment that created the row. A renewal updates
// the row in place and is identified by RenewalPaymentID.
type CourseEnrollment struct {
	ID         string                 `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID     string                 `gorm:"column:user_id;type:varchar(64);not null;index:idx_enrollment_user_course,priority:1" json:"user_id"`
	CourseID   string                 `gorm:"column:course_id;type:varchar(64);not null;index:idx_enrollment_user_course,priority:2" json:"course_id"`
	Status     types.EnrollmentStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	EnrolledAt time.Time              `gorm:"column:enrolled_at;not null" json:"enrolled_at"`
	ExpiresAt  time.Time              `gorm:"column:expires_at;not null" json:"expires_at"`
	PaymentID  string                 `gorm:"column:payment_id;type:varchar(255);not null;uniqueIndex" json:"payment_id"`
	Livemode   bool                   `gorm:"column:livemode;not null;default:false" json:"livemode"`

	RenewedAt        *time.Time `gorm:"column:renewed_at" json:"renewed_at"`
	RenewalPaymentID *string    `gorm:"column:renewal_payment_id;type:varchar(255)" json:"renewal_payment_id"`
	RenewalCount     int        `gorm:"column:renewal_count;not null;default:0" json:"renewal_count"`
	// NotificationSent is set by the expiry reminder job and reset on renewal.
	NotificationSent bool `gorm:"column:notification_sent;not null;default:false" json:"notification_sent"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (CourseEnrollment) TableName() string { return "course_enrollment" }

// Active reports whether the enrollment grants access at t.
func (e *CourseEnrollment) Active(t time.Time) bool {
	return e != nil && e.Status == types.EnrollmentStatusActive && e.ExpiresAt.After(t)
}
