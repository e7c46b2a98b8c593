package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/fatflowers/coursepay/internal/app/service/reconciler"
	"github.com/fatflowers/coursepay/internal/app/service/statistics"
	"github.com/fatflowers/coursepay/internal/app/service/webhook_ledger"
	models "github.com/fatflowers/coursepay/internal/models"
	"github.com/fatflowers/coursepay/pkg/response"
	"github.com/fatflowers/coursepay/pkg/types"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

type ListWebhookEventsRequest struct {
	Filters []*types.CommonFilter `json:"filters"`
	From    int                   `json:"from"`
	Size    int                   `json:"size"`
}

type WebhookEventItem struct {
	ID             string     `json:"id"`
	EventType      string     `json:"event_type"`
	SessionID      *string    `json:"session_id"`
	SubscriptionID *string    `json:"subscription_id"`
	Livemode       bool       `json:"livemode"`
	Processed      bool       `json:"processed"`
	ProcessedAt    *time.Time `json:"processed_at"`
	ErrorMessage   *string    `json:"error_message"`
	RetryCount     int        `json:"retry_count"`
	Retryable      bool       `json:"retryable"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func toWebhookEventItem(m *models.WebhookEvent) *WebhookEventItem {
	return &WebhookEventItem{
		ID:             m.ID,
		EventType:      m.EventType,
		SessionID:      m.SessionID,
		SubscriptionID: m.SubscriptionID,
		Livemode:       m.Livemode,
		Processed:      m.Processed,
		ProcessedAt:    m.ProcessedAt,
		ErrorMessage:   m.ErrorMessage,
		RetryCount:     m.RetryCount,
		Retryable:      m.Retryable(),
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

type ListWebhookEventsResponse struct {
	Items []*WebhookEventItem `json:"items"`
	Total int64               `json:"total"`
}

// @Summary      List Webhook Events (Admin)
// @Description  Retrieves a paginated and filterable list of ledger entries, newest first.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body ListWebhookEventsRequest true "Filters and pagination"
// @Success      200  {object}  handlers.RespListWebhookEvents
// @Router       /api/v1/admin/webhook_events/list [post]
func ApiListWebhookEvents(ledger *webhook_ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ListWebhookEventsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := ledger.Scan(c.Request.Context(), &webhook_ledger.ScanRequest{Filters: req.Filters, Offset: req.From, Limit: req.Size})
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		items := lo.Map(res.Items, func(it *models.WebhookEvent, _ int) *WebhookEventItem { return toWebhookEventItem(it) })
		c.JSON(http.StatusOK, response.OKT(&ListWebhookEventsResponse{Items: items, Total: res.Total}))
	}
}

type ReplayWebhookEventRequest struct {
	EventID string `json:"event_id" binding:"required"`
}

// @Summary      Replay Webhook Event (Admin)
// @Description  Re-runs a stored event that failed with a retryable error. Processed events are reported as already processed.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body ReplayWebhookEventRequest true "Event to replay"
// @Success      200  {object}  handlers.RespReplayWebhookEvent
// @Router       /api/v1/admin/webhook_events/replay [post]
func ApiReplayWebhookEvent(rec WebhookReconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ReplayWebhookEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := rec.Replay(c.Request.Context(), req.EventID)
		if errors.Is(err, webhook_ledger.ErrEventNotFound) {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, err.Error()))
			return
		}
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

type ReplayRetryableRequest struct {
	MaxRetries int `json:"max_retries"`
	Limit      int `json:"limit"`
}

type ReplayRetryableResponse struct {
	Items []*reconciler.Result `json:"items"`
}

// @Summary      Replay Retryable Webhook Events (Admin)
// @Description  Replays unprocessed events that failed with a retryable error, oldest first. Defaults: max_retries 5, limit 50.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body ReplayRetryableRequest true "Retry ceiling and batch size"
// @Success      200  {object}  handlers.RespReplayRetryable
// @Router       /api/v1/admin/webhook_events/replay_retryable [post]
func ApiReplayRetryableWebhookEvents(rec WebhookReconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ReplayRetryableRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		items, err := rec.ReplayRetryable(c.Request.Context(), req.MaxRetries, req.Limit)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(&ReplayRetryableResponse{Items: items}))
	}
}

// @Summary      Get Reconciliation Statistics (Admin)
// @Description  Daily received / processed / failed counts and analytics fact counts.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body statistics.ReconciliationStatisticRequest true "Statistic request parameters"
// @Success      200  {object}  handlers.RespReconciliationStatistic
// @Router       /api/v1/admin/get_reconciliation_statistic [post]
// ApiGetReconciliationStatistic handles POST /api/v1/admin/get_reconciliation_statistic
func ApiGetReconciliationStatistic(svc *statistics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.ReconciliationStatisticRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.GetReconciliationStatistic(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterAdminRoutes(r gin.IRouter, ledger *webhook_ledger.Service, rec WebhookReconciler, stats *statistics.Service) {
	r.POST("/webhook_events/list", ApiListWebhookEvents(ledger))
	r.POST("/webhook_events/replay", ApiReplayWebhookEvent(rec))
	r.POST("/webhook_events/replay_retryable", ApiReplayRetryableWebhookEvents(rec))
	r.POST("/get_reconciliation_statistic", ApiGetReconciliationStatistic(stats))
}
