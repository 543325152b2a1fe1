package voice

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"
	"time"

	"voiceref/internal/telemetry"
	"voiceref/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	HeaderSecret    = "X-Vapi-Secret"
	maxWebhookBytes = 1 << 20
)

// EventHandler applies a parsed event to local state.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev Event) error
}

// WebhookHandler verifies the shared secret and hands events to Events.
// Past the secret check it always answers 200 so the platform does not redeliver.
type WebhookHandler struct {
	Secret  string
	Events  EventHandler
	Timeout time.Duration
}

func (h WebhookHandler) Handle(c *gin.Context) {
	log := logger.FromGin(c)

	if !VerifySecret(h.Secret, c.GetHeader(HeaderSecret)) {
		log.Warn("voice webhook rejected: invalid secret")
		telemetry.WebhookEvents.WithLabelValues("unknown", "unauthorized").Inc()
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid secret"})
		return
	}

	outcome := "ok"
	evType := "unknown"
	defer func() {
		if p := recover(); p != nil {
			log.Error("voice webhook panic", "panic", p, "type", evType)
			outcome = "panic"
		}
		telemetry.WebhookEvents.WithLabelValues(evType, outcome).Inc()
		c.JSON(http.StatusOK, gin.H{"received": true})
	}()

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		log.Warn("voice webhook read failed", "err", err)
		outcome = "unreadable"
		return
	}
	ev, err := ParseEvent(body)
	if err != nil {
		log.Warn("voice webhook parse failed", "err", err)
		outcome = "malformed"
		return
	}
	evType = string(ev.Type)
	if ev.Type == EventIgnored || h.Events == nil {
		outcome = "ignored"
		return
	}

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), timeout)
	defer cancel()

	if err := h.Events.HandleEvent(ctx, ev); err != nil {
		log.Error("voice webhook processing failed", "err", err, "type", ev.Type, "provider_call_id", ev.CallID)
		outcome = "error"
	}
}

// VerifySecret compares in constant time. An empty expected secret rejects everything.
func VerifySecret(expected, got string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}
