// Evolution API adapter — the second WhatsApp backend, speaking to a
// self-hosted Evolution (Baileys) instance instead of the Cloud API.
package provider

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const evolutionAPIKeyHeader = "apikey"

// Evolution implements MessagingProvider over an Evolution API instance.
// The surface is intentionally the same as the Cloud adapter; only the wire
// format differs. Buttons are always rendered as numbered text because
// Baileys button support is unreliable across WhatsApp client versions.
type Evolution struct {
	baseURL  string
	apiKey   string
	instance string
	client   *http.Client
}

// NewEvolution constructs the Evolution adapter.
func NewEvolution(baseURL, apiKey, instance string) *Evolution {
	return &Evolution{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		instance: instance,
		client:   httpClient,
	}
}

// Name returns the channel identifier.
func (e *Evolution) Name() string { return ChannelEvolution }

// evolutionEvent mirrors the messages.upsert webhook payload subset.
type evolutionEvent struct {
	Event string `json:"event"`
	Data  struct {
		Key struct {
			RemoteJID string `json:"remoteJid"`
			FromMe    bool   `json:"fromMe"`
			ID        string `json:"id"`
		} `json:"key"`
		PushName         string `json:"pushName"`
		MessageTimestamp int64  `json:"messageTimestamp"`
		Message          *struct {
			Conversation        string `json:"conversation"`
			ExtendedTextMessage *struct {
				Text string `json:"text"`
			} `json:"extendedTextMessage"`
			ImageMessage *struct {
				Caption string `json:"caption"`
			} `json:"imageMessage"`
			VideoMessage *struct {
				Caption string `json:"caption"`
			} `json:"videoMessage"`
		} `json:"message"`
	} `json:"data"`
}

// ParseIncomingMessage normalizes an Evolution webhook event. Self-sent
// messages (fromMe), non-upsert events, and group messages without a bot
// mention return nil.
func (e *Evolution) ParseIncomingMessage(payload []byte) (*IncomingMessage, error) {
	var ev evolutionEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("evolution: decode event: %w", err)
	}
	if ev.Event != "messages.upsert" || ev.Data.Message == nil || ev.Data.Key.FromMe {
		return nil, nil
	}

	msg := ev.Data.Message
	text := msg.Conversation
	msgType := TypeText
	if text == "" && msg.ExtendedTextMessage != nil {
		text = msg.ExtendedTextMessage.Text
	}
	if text == "" && msg.ImageMessage != nil {
		text = msg.ImageMessage.Caption
		msgType = TypeMedia
	}
	if text == "" && msg.VideoMessage != nil {
		text = msg.VideoMessage.Caption
		msgType = TypeMedia
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	jid := ev.Data.Key.RemoteJID
	isGroup := strings.HasSuffix(jid, "@g.us")
	if isGroup && !strings.HasPrefix(strings.TrimSpace(text), "/") {
		// No reliable mention metadata from Baileys; command prefix only.
		return nil, nil
	}

	ts := time.Now().UTC()
	if ev.Data.MessageTimestamp > 0 {
		ts = time.Unix(ev.Data.MessageTimestamp, 0).UTC()
	}

	return &IncomingMessage{
		MessageID:  ev.Data.Key.ID,
		ExternalID: jid,
		UserID:     strings.SplitN(jid, "@", 2)[0],
		SenderName: ev.Data.PushName,
		Text:       strings.TrimSpace(text),
		Timestamp:  ts,
		Provider:   ChannelEvolution,
		Metadata:   Metadata{IsGroup: isGroup, Type: msgType},
	}, nil
}

// VerifyWebhook compares the apikey header against the configured key. Fails
// closed when a key is configured.
func (e *Evolution) VerifyWebhook(r *http.Request, _ []byte) bool {
	if e.apiKey == "" {
		return true
	}
	got := r.Header.Get(evolutionAPIKeyHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(e.apiKey)) == 1
}

// SendMessage delivers plain text via sendText.
func (e *Evolution) SendMessage(ctx context.Context, externalID, text string) error {
	return e.call(ctx, "/message/sendText/"+e.instance, map[string]any{
		"number": externalID,
		"text":   text,
	})
}

// SendMessageWithButtons renders the options as numbered text; the user
// answers with the option number.
func (e *Evolution) SendMessageWithButtons(ctx context.Context, externalID, text string, buttons []Button) error {
	return e.SendMessage(ctx, externalID, text+"\n\n"+numberedFallback(buttons))
}

// SendPhoto delivers an image by URL via sendMedia.
func (e *Evolution) SendPhoto(ctx context.Context, externalID, photoURL, caption string) error {
	return e.call(ctx, "/message/sendMedia/"+e.instance, map[string]any{
		"number":    externalID,
		"mediatype": "image",
		"media":     photoURL,
		"caption":   caption,
	})
}

// SendChatAction flips the "composing" presence on.
func (e *Evolution) SendChatAction(ctx context.Context, externalID string) error {
	return e.call(ctx, "/chat/sendPresence/"+e.instance, map[string]any{
		"number":   externalID,
		"presence": "composing",
		"delay":    1200,
	})
}

// MarkAsRead is a no-op: read receipts require the full message key, which
// the orchestrator does not carry.
func (e *Evolution) MarkAsRead(context.Context, string) error { return nil }

// AnswerCallbackQuery is a no-op: numbered-text selection has no callbacks.
func (e *Evolution) AnswerCallbackQuery(context.Context, string) error { return nil }

// call POSTs a JSON body to an Evolution endpoint with the apikey header.
func (e *Evolution) call(ctx context.Context, path string, body map[string]any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("evolution: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(evolutionAPIKeyHeader, e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("evolution: send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("evolution: send failed: status %d", resp.StatusCode)
	}
	return nil
}
