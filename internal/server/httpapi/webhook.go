package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/neoma/internal/common"
	"github.com/dmitrijs2005/neoma/internal/server/metrics"
	"github.com/dmitrijs2005/neoma/internal/server/payments"
	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

// stripeWebhook verifies and settles a Stripe event. Only a 2xx stops the
// processor from redelivering, so anything not fully applied answers 5xx.
func (s *Server) stripeWebhook(c *gin.Context) {
	start := time.Now()
	eventType := "unknown"
	status := "error"
	defer func() {
		metrics.WebhookRequestsTotal.WithLabelValues(eventType, status).Inc()
		metrics.WebhookDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}()

	ctx := c.Request.Context()
	if strings.TrimSpace(s.opts.WebhookSecret) == "" {
		status = "not_configured"
		s.logger.Error(ctx, "stripe webhook received but no webhook secret is configured")
		c.JSON(http.StatusServiceUnavailable, errorBody{Error: "webhook_not_configured", Message: "webhook not configured"})
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		status = "bad_request"
		s.logger.Warn(ctx, "stripe webhook body rejected", "error", err)
		c.JSON(http.StatusBadRequest, errorBody{Error: "bad_request", Message: "cannot read body"})
		return
	}

	ev, err := payments.VerifyEvent(payload, c.GetHeader("Stripe-Signature"), s.opts.WebhookSecret)
	if err != nil {
		status = "invalid"
		s.logger.Warn(ctx, "stripe webhook rejected", "error", err)
		if errors.Is(err, common.ErrSignatureInvalid) {
			writeError(c, s.logger, err)
			return
		}
		c.JSON(http.StatusBadRequest, errorBody{Error: "bad_request", Message: "malformed event"})
		return
	}
	eventType = ev.Type

	result, err := s.deps.Settlement.Settle(ctx, ev)
	if err != nil {
		status = "failed"
		s.logger.Error(ctx, "stripe webhook processing failed", "event_id", ev.ID, "type", ev.Type, "error", err)
		c.JSON(http.StatusInternalServerError, errorBody{Error: "processing_failed", Message: "event not applied"})
		return
	}

	status = string(result)
	c.JSON(http.StatusOK, gin.H{"received": true, "status": result})
}
