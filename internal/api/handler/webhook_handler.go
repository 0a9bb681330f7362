package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/learnhub/enrollment-be/internal/api/dto"
	"github.com/learnhub/enrollment-be/internal/domain"
	"github.com/learnhub/enrollment-be/internal/gateway/paystack"
)

// HandlePaymentWebhook handles POST /api/v1/webhooks/payment
// The signature is verified over the raw body before anything is parsed;
// an invalid or missing signature enqueues nothing.
func (h *WebhookHandler) HandlePaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Error("Failed to read webhook body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to read request body",
		})
		return
	}

	signature := c.GetHeader(paystack.SignatureHeader)
	if !paystack.ValidSignature(h.secret, body, signature) {
		h.logger.Warn("Webhook rejected - invalid signature",
			slog.String("ip", c.ClientIP()),
		)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Invalid signature",
		})
		return
	}

	var event dto.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Error("Malformed webhook body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Malformed event body",
		})
		return
	}

	if event.Data.Reference == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Event is missing a transaction reference",
		})
		return
	}

	switch event.Event {
	case "charge.success":
		h.handleChargeSuccess(c, event.Data.Reference)

	case "charge.failed":
		h.handleChargeFailed(c, event.Data.Reference)

	default:
		// Unknown events are acknowledged so the gateway stops retrying.
		h.logger.Debug("Ignoring webhook event",
			slog.String("event", event.Event),
			slog.String("reference", event.Data.Reference),
		)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	}
}

// handleChargeSuccess never trusts the webhook payload: it only queues a
// verification job, and the processor asks the gateway directly.
func (h *WebhookHandler) handleChargeSuccess(c *gin.Context, reference string) {
	jobID, err := h.paymentQueue.EnqueueVerifyPayment(c.Request.Context(), reference)
	if err != nil {
		h.logger.Error("Failed to enqueue payment verification",
			slog.String("reference", reference),
			slog.String("error", err.Error()),
		)
		// 5xx makes the gateway redeliver; the deterministic job id keeps
		// redeliveries idempotent.
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to queue verification",
		})
		return
	}

	h.logger.Info("Payment verification queued from webhook",
		slog.String("reference", reference),
		slog.String("job_id", jobID),
	)

	c.JSON(http.StatusOK, gin.H{
		"status": "queued",
		"job_id": jobID,
	})
}

// handleChargeFailed records the failure directly: a failure report needs
// no gateway round-trip, and the conditional updates keep replays safe.
func (h *WebhookHandler) handleChargeFailed(c *gin.Context, reference string) {
	payment, err := h.payments.GetPaymentByReference(c.Request.Context(), reference)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			h.logger.Warn("Failure webhook for unknown payment",
				slog.String("reference", reference),
			)
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		h.logger.Error("Failed to load payment for failure webhook",
			slog.String("reference", reference),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to process event",
		})
		return
	}

	updated, err := h.payments.MarkPaymentFailed(c.Request.Context(), payment.PaymentID)
	if err != nil {
		h.logger.Error("Failed to mark payment failed",
			slog.String("payment_id", payment.PaymentID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to process event",
		})
		return
	}

	if updated && payment.EnrollmentID != nil {
		if err := h.enrollments.SetEnrollmentPaymentFailed(c.Request.Context(), *payment.EnrollmentID); err != nil {
			h.logger.Error("Failed to mark enrollment payment failed",
				slog.String("enrollment_id", *payment.EnrollmentID),
				slog.String("error", err.Error()),
			)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to process event",
			})
			return
		}
	}

	h.logger.Info("Payment failure recorded from webhook",
		slog.String("reference", reference),
		slog.Bool("updated", updated),
	)

	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}
