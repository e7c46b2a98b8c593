package models

import (
	"testing"
	"time"

	"github.com/fatflowers/coursepay/pkg/types"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func TestCourseEnrollment_Active(t *testing.T) {
	now := time.Now()
	e := &CourseEnrollment{Status: types.EnrollmentStatusActive, ExpiresAt: now.Add(time.Hour)}
	require.True(t, e.Active(now))
	require.False(t, e.Active(now.Add(2*time.Hour)))

	e.Status = types.EnrollmentStatusCanceled
	require.False(t, e.Active(now))

	var nilEnrollment *CourseEnrollment
	require.False(t, nilEnrollment.Active(now))
}

func TestUserSubscription_Entitled(t *testing.T) {
	now := time.Now()
	end := now.Add(24 * time.Hour)

	require.True(t, (&UserSubscription{Status: "active", CurrentPeriodEnd: &end}).Entitled(now))
	require.True(t, (&UserSubscription{Status: "past_due", CurrentPeriodEnd: &end}).Entitled(now))
	require.False(t, (&UserSubscription{Status: "incomplete", CurrentPeriodEnd: &end}).Entitled(now))
	require.False(t, (&UserSubscription{Status: "active", CurrentPeriodEnd: &end, EndedAt: lo.ToPtr(now)}).Entitled(now))
	require.False(t, (&UserSubscription{Status: "active", CurrentPeriodEnd: &end}).Entitled(end.Add(time.Second)))
}

func TestWebhookEvent_Retryable(t *testing.T) {
	require.False(t, (&WebhookEvent{}).Retryable())
	require.True(t, (&WebhookEvent{ErrorMessage: lo.ToPtr("db down")}).Retryable())
	require.False(t, (&WebhookEvent{Processed: true, ErrorMessage: lo.ToPtr("missing userId")}).Retryable())
}

func TestTableNames(t *testing.T) {
	require.Equal(t, "webhook_event", WebhookEvent{}.TableName())
	require.Equal(t, "course_enrollment", CourseEnrollment{}.TableName())
	require.Equal(t, "course_enrollment_renewal", CourseEnrollmentRenewal{}.TableName())
	require.Equal(t, "user_subscription", UserSubscription{}.TableName())
	require.Equal(t, "checkout_session", CheckoutSession{}.TableName())
	require.Equal(t, "analytics_event", AnalyticsEvent{}.TableName())
	require.Equal(t, "subscription_log", SubscriptionLog{}.TableName())
}
