package handlers

import (
	"github.com/fatflowers/coursepay/internal/app/service/reconciler"
	"github.com/fatflowers/coursepay/internal/app/service/statistics"
	"github.com/fatflowers/coursepay/pkg/response"
)

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

// RespListWebhookEvents wraps ListWebhookEventsResponse in the standard envelope.
type RespListWebhookEvents struct {
	Code    response.APIResponseCode  `json:"code"`
	Message string                    `json:"message"`
	Data    ListWebhookEventsResponse `json:"data"`
}

// RespReplayWebhookEvent wraps reconciler.Result in the standard envelope.
type RespReplayWebhookEvent struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    reconciler.Result        `json:"data"`
}

// RespReplayRetryable wraps ReplayRetryableResponse in the standard envelope.
type RespReplayRetryable struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    ReplayRetryableResponse  `json:"data"`
}

// RespReconciliationStatistic wraps ReconciliationStatisticResponse in the standard envelope.
type RespReconciliationStatistic struct {
	Code    response.APIResponseCode                   `json:"code"`
	Message string                                     `json:"message"`
	Data    statistics.ReconciliationStatisticResponse `json:"data"`
}

// RespUserEnrollments wraps a list of enrollments in the standard envelope.
type RespUserEnrollments struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    []EnrollmentItem         `json:"data"`
}

// RespUserSubscription wraps a subscription in the standard envelope.
type RespUserSubscription struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    UserSubscriptionResponse `json:"data"`
}
