package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/fatflowers/coursepay/internal/app/service/reconciler"
	"github.com/fatflowers/coursepay/internal/platform/stripe/stripe_webhook"
	"github.com/fatflowers/coursepay/pkg/logctx"
	"github.com/fatflowers/coursepay/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Provider-facing error codes.
const (
	WebhookCodeInvalidSignature    = "invalid_signature"
	WebhookCodeInvalidPayload      = "invalid_payload"
	WebhookCodeSecretNotConfigured = "webhook_secret_not_configured"
	WebhookCodeEventInFlight       = "event_in_flight"
	WebhookCodeInternal            = "internal_error"
)

// maxWebhookBody caps the bytes read from one delivery.
const maxWebhookBody = 1 << 20

type WebhookReconciler interface {
	HandleDelivery(ctx context.Context, payload []byte, header string) (*reconciler.Result, error)
	Replay(ctx context.Context, eventID string) (*reconciler.Result, error)
	ReplayRetryable(ctx context.Context, maxRetries, limit int) ([]*reconciler.Result, error)
}

// webhookError maps a rejected delivery to its status and body.
func webhookError(err error) (int, *response.WebhookError) {
	switch {
	case errors.Is(err, stripe_webhook.ErrMissingSignature), errors.Is(err, stripe_webhook.ErrInvalidSignature):
		return http.StatusBadRequest, &response.WebhookError{Error: "signature verification failed", Code: WebhookCodeInvalidSignature}
	case errors.Is(err, stripe_webhook.ErrInvalidPayload):
		return http.StatusBadRequest, &response.WebhookError{Error: "malformed payload", Code: WebhookCodeInvalidPayload}
	case errors.Is(err, stripe_webhook.ErrSecretNotConfigured):
		return http.StatusInternalServerError, &response.WebhookError{Error: "webhook secret not configured", Code: WebhookCodeSecretNotConfigured}
	case errors.Is(err, reconciler.ErrEventInFlight):
		return http.StatusConflict, &response.WebhookError{Error: "event is being processed", Code: WebhookCodeEventInFlight}
	default:
		return http.StatusInternalServerError, &response.WebhookError{Error: "internal error", Code: WebhookCodeInternal}
	}
}

// @Summary      Stripe Webhook
// @Description  Receives Stripe events. The raw body is verified against the Stripe-Signature header before any parsing.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        Stripe-Signature header string true "Stripe signature header"
// @Param        payload body string true "Raw Stripe event"
// @Success      200  {object}  response.WebhookAck
// @Failure      400  {object}  response.WebhookError
// @Failure      409  {object}  response.WebhookError
// @Failure      500  {object}  response.WebhookError
// @Router       /api/v1/webhook/stripe [post]
// ApiStripeWebhook handles POST /api/v1/webhook/stripe
func ApiStripeWebhook(rec WebhookReconciler, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		lg := logctx.FromGin(c, log)
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
		payload, err := c.GetRawData()
		if err != nil {
			lg.Warnw("webhook_stripe_read_body_failed", "error", err.Error())
			c.JSON(http.StatusBadRequest, &response.WebhookError{Error: "unreadable body", Code: WebhookCodeInvalidPayload})
			return
		}

		res, err := rec.HandleDelivery(c.Request.Context(), payload, c.GetHeader(stripe_webhook.SignatureHeader))
		if err != nil {
			status, body := webhookError(err)
			lg.Warnw("webhook_stripe_rejected", "status", status, "code", body.Code, "error", err.Error())
			c.JSON(status, body)
			return
		}
		lg.Infow("webhook_stripe_handled", "event_id", res.EventID, "outcome", res.Outcome)
		c.JSON(http.StatusOK, res.Ack())
	}
}

func RegisterWebhookRoutes(r gin.IRouter, rec WebhookReconciler, log *zap.SugaredLogger) {
	r.POST("/stripe", ApiStripeWebhook(rec, log))
}
