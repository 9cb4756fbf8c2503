package handlers

import (
	"crypto/subtle"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/psousaj/nexo-ai-sub000/internal/http/middleware"
	"github.com/psousaj/nexo-ai-sub000/internal/provider"
	"github.com/psousaj/nexo-ai-sub000/internal/queue"
)

// maxWebhookBody caps how much of a delivery we read. Providers send small
// JSON envelopes; anything bigger is abuse.
const maxWebhookBody = 1 << 20

// WebhookHandler ingests provider deliveries: authenticate, normalize,
// enqueue, acknowledge. Processing happens on the queue workers — the
// handler's only job is to answer fast so providers do not retry.
type WebhookHandler struct {
	providers *provider.Registry
	q         queue.Queue

	// verifyToken answers the WhatsApp Cloud subscription handshake.
	verifyToken string

	// insecureDev accepts unsigned webhooks. Development only.
	insecureDev bool
}

// NewWebhookHandler wires the ingestion endpoint.
func NewWebhookHandler(providers *provider.Registry, q queue.Queue, verifyToken string, insecureDev bool) *WebhookHandler {
	return &WebhookHandler{
		providers:   providers,
		q:           q,
		verifyToken: verifyToken,
		insecureDev: insecureDev,
	}
}

// Receive handles POST /webhooks/:provider.
//
// Status codes follow what webhook senders act on: 401 for failed
// authentication (fail closed), 404 for unknown providers, 200 for anything
// parsed — including payloads we deliberately ignore — so the sender never
// retries a delivery we already decided about.
func (h *WebhookHandler) Receive(c *gin.Context) {
	name := c.Param("provider")
	p, err := h.providers.Get(name)
	if err != nil {
		abortError(c, http.StatusNotFound, "unknown_provider", "unknown provider")
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		middleware.CountWebhookEvent(name, "error")
		abortError(c, http.StatusBadRequest, "bad_body", "could not read request body")
		return
	}

	if !h.insecureDev && !p.VerifyWebhook(c.Request, body) {
		middleware.CountWebhookEvent(name, "rejected")
		middleware.LoggerFrom(c).Warn().Str("provider", name).Msg("webhook signature rejected")
		abortError(c, http.StatusUnauthorized, "verification_failed", "webhook verification failed")
		return
	}

	msg, err := p.ParseIncomingMessage(body)
	if err != nil {
		middleware.CountWebhookEvent(name, "invalid")
		middleware.LoggerFrom(c).Warn().Err(err).Str("provider", name).Msg("webhook payload rejected")
		abortError(c, http.StatusBadRequest, "bad_payload", "could not parse payload")
		return
	}
	if msg == nil {
		// Valid delivery with nothing to process (status update, self-echo,
		// unaddressed group chatter).
		middleware.CountWebhookEvent(name, "ignored")
		c.JSON(http.StatusOK, statusBody{Status: "ignored"})
		return
	}

	if err := h.q.Enqueue(c.Request.Context(), queue.Job{Message: msg}); err != nil {
		middleware.CountWebhookEvent(name, "error")
		middleware.LoggerFrom(c).Error().Err(err).Str("provider", name).Msg("enqueue failed")
		abortError(c, http.StatusServiceUnavailable, "queue_unavailable", "could not accept message")
		return
	}

	middleware.CountWebhookEvent(name, "queued")
	c.JSON(http.StatusOK, statusBody{Status: "queued"})
}

// VerifySubscription handles GET /webhooks/whatsapp — the Cloud API
// hub.challenge handshake. The challenge echoes back as plain text only when
// the verify token matches.
func (h *WebhookHandler) VerifySubscription(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "subscribe" || h.verifyToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(h.verifyToken)) != 1 {
		abortError(c, http.StatusForbidden, "verification_failed", "verification failed")
		return
	}
	c.String(http.StatusOK, challenge)
}

// Health handles GET /health.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, statusBody{Status: "ok"})
}
