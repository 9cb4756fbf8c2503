// WhatsApp Cloud API adapter.
package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const whatsappSignatureHeader = "X-Hub-Signature-256"

// WhatsApp implements MessagingProvider over the WhatsApp Cloud API (Meta
// Graph). Inbound payloads arrive as webhook "entry/changes" envelopes;
// outbound calls go through the phone-number-scoped messages endpoint.
type WhatsApp struct {
	accessToken   string
	phoneNumberID string
	appSecret     string
	apiBase       string
	client        *http.Client
}

// WhatsAppOption customizes a WhatsApp adapter.
type WhatsAppOption func(*WhatsApp)

// WithWhatsAppAPIBase overrides the Graph API base URL.
func WithWhatsAppAPIBase(base string) WhatsAppOption {
	return func(w *WhatsApp) { w.apiBase = strings.TrimRight(base, "/") }
}

// WithWhatsAppHTTPClient overrides the outbound HTTP client.
func WithWhatsAppHTTPClient(c *http.Client) WhatsAppOption {
	return func(w *WhatsApp) { w.client = c }
}

// NewWhatsApp constructs the Cloud API adapter. appSecret enables HMAC
// signature verification of inbound webhooks.
func NewWhatsApp(accessToken, phoneNumberID, appSecret string, opts ...WhatsAppOption) *WhatsApp {
	w := &WhatsApp{
		accessToken:   accessToken,
		phoneNumberID: phoneNumberID,
		appSecret:     appSecret,
		apiBase:       "https://graph.facebook.com/v21.0",
		client:        httpClient,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name returns the channel identifier.
func (w *WhatsApp) Name() string { return ChannelWhatsApp }

// waEnvelope mirrors the webhook payload subset we consume.
type waEnvelope struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []struct {
					ID        string `json:"id"`
					From      string `json:"from"`
					Timestamp string `json:"timestamp"`
					Type      string `json:"type"`
					Text      *struct {
						Body string `json:"body"`
					} `json:"text"`
					Image *struct {
						Caption string `json:"caption"`
					} `json:"image"`
					Video *struct {
						Caption string `json:"caption"`
					} `json:"video"`
					Document *struct {
						Caption string `json:"caption"`
					} `json:"document"`
					Interactive *struct {
						ButtonReply *struct {
							ID string `json:"id"`
						} `json:"button_reply"`
						ListReply *struct {
							ID string `json:"id"`
						} `json:"list_reply"`
					} `json:"interactive"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ParseIncomingMessage normalizes a Cloud API webhook delivery. Status-only
// deliveries (sent/read receipts) return nil.
func (w *WhatsApp) ParseIncomingMessage(payload []byte) (*IncomingMessage, error) {
	var env waEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("whatsapp: decode envelope: %w", err)
	}

	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			v := change.Value
			if len(v.Messages) == 0 {
				continue
			}
			msg := v.Messages[0]

			senderName := ""
			if len(v.Contacts) > 0 {
				senderName = v.Contacts[0].Profile.Name
			}

			ts := time.Now().UTC()
			if secs, err := strconv.ParseInt(msg.Timestamp, 10, 64); err == nil {
				ts = time.Unix(secs, 0).UTC()
			}

			in := &IncomingMessage{
				MessageID:  msg.ID,
				ExternalID: msg.From,
				UserID:     msg.From,
				SenderName: senderName,
				Timestamp:  ts,
				Provider:   ChannelWhatsApp,
				Metadata:   Metadata{Type: TypeText},
			}

			switch {
			case msg.Interactive != nil && msg.Interactive.ButtonReply != nil:
				in.CallbackData = msg.Interactive.ButtonReply.ID
				in.Metadata.Type = TypeCallback
			case msg.Interactive != nil && msg.Interactive.ListReply != nil:
				in.CallbackData = msg.Interactive.ListReply.ID
				in.Metadata.Type = TypeCallback
			case msg.Text != nil:
				in.Text = msg.Text.Body
			case msg.Image != nil:
				in.Text = msg.Image.Caption
				in.Metadata.Type = TypeMedia
			case msg.Video != nil:
				in.Text = msg.Video.Caption
				in.Metadata.Type = TypeMedia
			case msg.Document != nil:
				in.Text = msg.Document.Caption
				in.Metadata.Type = TypeMedia
			}

			if strings.TrimSpace(in.Text) == "" && in.CallbackData == "" {
				continue
			}
			in.Text = strings.TrimSpace(in.Text)
			return in, nil
		}
	}
	return nil, nil
}

// VerifyWebhook checks the X-Hub-Signature-256 header: HMAC-SHA256 over the
// raw body keyed with the app secret, hex-encoded, compared
// case-insensitively. Fails closed when a secret is configured and the
// header is absent or mismatched.
func (w *WhatsApp) VerifyWebhook(r *http.Request, body []byte) bool {
	if w.appSecret == "" {
		return true
	}
	header := r.Header.Get(whatsappSignatureHeader)
	if header == "" {
		return false
	}
	provided := strings.TrimPrefix(header, "sha256=")

	mac := hmac.New(sha256.New, []byte(w.appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(strings.ToLower(provided)), []byte(expected))
}

// SendMessage delivers plain text.
func (w *WhatsApp) SendMessage(ctx context.Context, externalID, text string) error {
	return w.call(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"to":                externalID,
		"type":              "text",
		"text":              map[string]any{"body": text},
	})
}

// SendMessageWithButtons delivers an interactive button message. The Cloud
// API caps interactive messages at 3 buttons; larger option sets are
// rendered as numbered text so the user replies with a number.
func (w *WhatsApp) SendMessageWithButtons(ctx context.Context, externalID, text string, buttons []Button) error {
	if len(buttons) > 3 {
		return w.SendMessage(ctx, externalID, text+"\n\n"+numberedFallback(buttons))
	}
	btns := make([]map[string]any, 0, len(buttons))
	for _, b := range buttons {
		btns = append(btns, map[string]any{
			"type":  "reply",
			"reply": map[string]string{"id": b.Data, "title": clampRunes(b.Text, 20)},
		})
	}
	return w.call(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"to":                externalID,
		"type":              "interactive",
		"interactive": map[string]any{
			"type":   "button",
			"body":   map[string]string{"text": text},
			"action": map[string]any{"buttons": btns},
		},
	})
}

// SendPhoto delivers an image by URL with a caption.
func (w *WhatsApp) SendPhoto(ctx context.Context, externalID, photoURL, caption string) error {
	return w.call(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"to":                externalID,
		"type":              "image",
		"image":             map[string]string{"link": photoURL, "caption": caption},
	})
}

// SendChatAction is a no-op: the Cloud API exposes no typing indicator.
func (w *WhatsApp) SendChatAction(context.Context, string) error { return nil }

// MarkAsRead flags the message as read on the device.
func (w *WhatsApp) MarkAsRead(ctx context.Context, messageID string) error {
	return w.call(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
	})
}

// AnswerCallbackQuery is a no-op: button replies need no acknowledgment.
func (w *WhatsApp) AnswerCallbackQuery(context.Context, string) error { return nil }

// call POSTs to the phone-number-scoped messages endpoint.
func (w *WhatsApp) call(ctx context.Context, body map[string]any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("whatsapp: encode request: %w", err)
	}
	url := fmt.Sprintf("%s/%s/messages", w.apiBase, w.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+w.accessToken)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("whatsapp: send failed: status %d", resp.StatusCode)
	}
	return nil
}

// numberedFallback renders buttons as "1. Label" lines for channels (or
// payload shapes) that cannot carry them natively.
func numberedFallback(buttons []Button) string {
	var sb strings.Builder
	for i, b := range buttons {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, b.Text)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// clampRunes truncates s to at most n runes.
func clampRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
