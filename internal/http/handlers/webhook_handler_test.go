package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/psousaj/nexo-ai-sub000/internal/provider"
	"github.com/psousaj/nexo-ai-sub000/internal/queue"
)

// stubProvider scripts verification and parsing for handler tests.
type stubProvider struct {
	name     string
	verifyOK bool
	msg      *provider.IncomingMessage
	parseErr error
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) ParseIncomingMessage([]byte) (*provider.IncomingMessage, error) {
	return s.msg, s.parseErr
}

func (s *stubProvider) VerifyWebhook(*http.Request, []byte) bool { return s.verifyOK }

func (s *stubProvider) SendMessage(context.Context, string, string) error { return nil }
func (s *stubProvider) SendMessageWithButtons(context.Context, string, string, []provider.Button) error {
	return nil
}
func (s *stubProvider) SendPhoto(context.Context, string, string, string) error { return nil }
func (s *stubProvider) SendChatAction(context.Context, string) error            { return nil }
func (s *stubProvider) MarkAsRead(context.Context, string) error                { return nil }
func (s *stubProvider) AnswerCallbackQuery(context.Context, string) error       { return nil }

func newTestRouter(t *testing.T, p *stubProvider, q queue.Queue) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	providers := provider.NewRegistry()
	if p != nil {
		providers.Register(p)
	}
	h := NewWebhookHandler(providers, q, "verify-token", false)

	r := gin.New()
	r.GET("/webhooks/whatsapp", h.VerifySubscription)
	r.POST("/webhooks/:provider", h.Receive)
	return r
}

func post(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	r.ServeHTTP(w, req)
	return w
}

func TestReceive_UnknownProvider(t *testing.T) {
	r := newTestRouter(t, nil, queue.NewMemory(1))
	w := post(r, "/webhooks/nothere", `{}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestReceive_RejectedSignature(t *testing.T) {
	q := queue.NewMemory(1)
	r := newTestRouter(t, &stubProvider{name: "telegram", verifyOK: false}, q)

	w := post(r, "/webhooks/telegram", `{}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Dequeue(ctx); err == nil {
		t.Fatal("rejected delivery must not reach the queue")
	}
}

func TestReceive_BadPayload(t *testing.T) {
	p := &stubProvider{name: "telegram", verifyOK: true, parseErr: errors.New("decode envelope")}
	r := newTestRouter(t, p, queue.NewMemory(1))

	w := post(r, "/webhooks/telegram", `garbage`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestReceive_IgnoredDelivery(t *testing.T) {
	// nil message, nil error: a valid payload with nothing to process.
	p := &stubProvider{name: "telegram", verifyOK: true}
	r := newTestRouter(t, p, queue.NewMemory(1))

	w := post(r, "/webhooks/telegram", `{}`)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "ignored") {
		t.Fatalf("expected 200 ignored, got %d: %s", w.Code, w.Body.String())
	}
}

func TestReceive_Queued(t *testing.T) {
	q := queue.NewMemory(1)
	p := &stubProvider{
		name:     "telegram",
		verifyOK: true,
		msg: &provider.IncomingMessage{
			MessageID:  "77",
			ExternalID: "42",
			UserID:     "42",
			Text:       "salva o filme Matrix",
			Provider:   "telegram",
		},
	}
	r := newTestRouter(t, p, q)

	w := post(r, "/webhooks/telegram", `{"ok":true}`)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "queued") {
		t.Fatalf("expected 200 queued, got %d: %s", w.Code, w.Body.String())
	}

	j, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if j.Message.Text != "salva o filme Matrix" {
		t.Fatalf("unexpected job: %+v", j.Message)
	}
}

func TestReceive_QueueUnavailable(t *testing.T) {
	q := queue.NewMemory(1)
	_ = q.Close()
	p := &stubProvider{
		name:     "telegram",
		verifyOK: true,
		msg:      &provider.IncomingMessage{MessageID: "1", ExternalID: "42", UserID: "42", Text: "oi", Provider: "telegram"},
	}
	r := newTestRouter(t, p, q)

	w := post(r, "/webhooks/telegram", `{}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", w.Code, w.Body.String())
	}
}

func TestVerifySubscription_Handshake(t *testing.T) {
	r := newTestRouter(t, nil, queue.NewMemory(1))

	get := func(query string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp?"+query, nil)
		r.ServeHTTP(w, req)
		return w
	}

	w := get("hub.mode=subscribe&hub.verify_token=verify-token&hub.challenge=12345")
	if w.Code != http.StatusOK || w.Body.String() != "12345" {
		t.Fatalf("valid handshake must echo the challenge: %d %q", w.Code, w.Body.String())
	}

	for _, query := range []string{
		"hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345",
		"hub.mode=unsubscribe&hub.verify_token=verify-token&hub.challenge=12345",
		"hub.challenge=12345",
	} {
		if w := get(query); w.Code != http.StatusForbidden {
			t.Fatalf("%q: expected 403, got %d", query, w.Code)
		}
	}
}
