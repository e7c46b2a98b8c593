package types

type AnalyticsEventName string

const (
	AnalyticsEventCoursePurchase       AnalyticsEventName = "course_purchase"
	AnalyticsEventCourseRenewal        AnalyticsEventName = "course_renewal"
	AnalyticsEventSubscriptionPurchase AnalyticsEventName = "subscription_purchase"
	AnalyticsEventSubscriptionUpgrade  AnalyticsEventName = "subscription_upgrade"
)
