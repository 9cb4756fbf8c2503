// Telegram Bot API adapter.
package provider

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// Telegram implements MessagingProvider over the Telegram Bot API.
type Telegram struct {
	token       string
	secret      string
	botUsername string
	apiBase     string
	client      *http.Client
}

// TelegramOption customizes a Telegram adapter.
type TelegramOption func(*Telegram)

// WithTelegramAPIBase overrides the Bot API base URL (tests, local relays).
func WithTelegramAPIBase(base string) TelegramOption {
	return func(t *Telegram) { t.apiBase = strings.TrimRight(base, "/") }
}

// WithTelegramHTTPClient overrides the outbound HTTP client.
func WithTelegramHTTPClient(c *http.Client) TelegramOption {
	return func(t *Telegram) { t.client = c }
}

// NewTelegram constructs the Telegram adapter. botUsername enables mention
// gating in groups; secret enables webhook authentication.
func NewTelegram(token, secret, botUsername string, opts ...TelegramOption) *Telegram {
	t := &Telegram{
		token:       token,
		secret:      secret,
		botUsername: strings.TrimPrefix(botUsername, "@"),
		apiBase:     "https://api.telegram.org",
		client:      httpClient,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the channel identifier.
func (t *Telegram) Name() string { return ChannelTelegram }

// telegramUpdate mirrors the subset of the Bot API update we consume.
type telegramUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		MessageID int64  `json:"message_id"`
		Date      int64  `json:"date"`
		Text      string `json:"text"`
		Caption   string `json:"caption"`
		From      *struct {
			ID        int64  `json:"id"`
			IsBot     bool   `json:"is_bot"`
			FirstName string `json:"first_name"`
			Username  string `json:"username"`
		} `json:"from"`
		Chat struct {
			ID   int64  `json:"id"`
			Type string `json:"type"`
		} `json:"chat"`
		Entities []struct {
			Type   string `json:"type"`
			Offset int    `json:"offset"`
			Length int    `json:"length"`
		} `json:"entities"`
	} `json:"message"`
	CallbackQuery *struct {
		ID   string `json:"id"`
		Data string `json:"data"`
		From struct {
			ID        int64  `json:"id"`
			FirstName string `json:"first_name"`
		} `json:"from"`
		Message *struct {
			MessageID int64 `json:"message_id"`
			Chat      struct {
				ID int64 `json:"id"`
			} `json:"chat"`
		} `json:"message"`
	} `json:"callback_query"`
}

// ParseIncomingMessage normalizes a Telegram update. Self-sent messages,
// updates with no usable content, and ungated group messages return nil.
func (t *Telegram) ParseIncomingMessage(payload []byte) (*IncomingMessage, error) {
	var upd telegramUpdate
	if err := json.Unmarshal(payload, &upd); err != nil {
		return nil, fmt.Errorf("telegram: decode update: %w", err)
	}

	if cq := upd.CallbackQuery; cq != nil {
		if cq.Message == nil {
			return nil, nil
		}
		return &IncomingMessage{
			MessageID:       "cb:" + cq.ID,
			ExternalID:      strconv.FormatInt(cq.Message.Chat.ID, 10),
			UserID:          strconv.FormatInt(cq.From.ID, 10),
			SenderName:      cq.From.FirstName,
			Timestamp:       time.Now().UTC(),
			Provider:        ChannelTelegram,
			CallbackQueryID: cq.ID,
			CallbackData:    cq.Data,
			Metadata:        Metadata{Type: TypeCallback},
		}, nil
	}

	msg := upd.Message
	if msg == nil || msg.From == nil || msg.From.IsBot {
		return nil, nil
	}

	text := msg.Text
	msgType := TypeText
	if text == "" {
		// Media messages carry their text in the caption.
		text = msg.Caption
		msgType = TypeMedia
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	isGroup := msg.Chat.Type == "group" || msg.Chat.Type == "supergroup"
	mentions := t.mentionsBot(text)
	if isGroup && !mentions && !strings.HasPrefix(text, "/") {
		// Mention gating: in groups the bot only reacts when addressed.
		return nil, nil
	}

	in := &IncomingMessage{
		MessageID:  strconv.FormatInt(msg.MessageID, 10),
		ExternalID: strconv.FormatInt(msg.Chat.ID, 10),
		UserID:     strconv.FormatInt(msg.From.ID, 10),
		SenderName: msg.From.FirstName,
		Text:       t.stripMention(text),
		Timestamp:  time.Unix(msg.Date, 0).UTC(),
		Provider:   ChannelTelegram,
		Metadata:   Metadata{IsGroup: isGroup, MentionsBot: mentions, Type: msgType},
	}

	// "/start <token>" links a messaging surface to a dashboard account.
	if strings.HasPrefix(in.Text, "/start ") {
		in.LinkingToken = strings.TrimSpace(strings.TrimPrefix(in.Text, "/start "))
	}
	return in, nil
}

func (t *Telegram) mentionsBot(text string) bool {
	if t.botUsername == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), "@"+strings.ToLower(t.botUsername))
}

func (t *Telegram) stripMention(text string) string {
	if t.botUsername == "" {
		return strings.TrimSpace(text)
	}
	cleaned := strings.ReplaceAll(text, "@"+t.botUsername, "")
	return strings.TrimSpace(cleaned)
}

// VerifyWebhook checks the shared-secret header Telegram echoes back on every
// webhook call. With no secret configured all requests pass (Telegram offers
// no other authentication for plain webhooks).
func (t *Telegram) VerifyWebhook(r *http.Request, _ []byte) bool {
	if t.secret == "" {
		return true
	}
	got := r.Header.Get(telegramSecretHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(t.secret)) == 1
}

// SendMessage delivers plain text via sendMessage.
func (t *Telegram) SendMessage(ctx context.Context, externalID, text string) error {
	return t.call(ctx, "sendMessage", map[string]any{
		"chat_id": externalID,
		"text":    text,
	})
}

// SendMessageWithButtons delivers text with an inline keyboard, one button
// per row.
func (t *Telegram) SendMessageWithButtons(ctx context.Context, externalID, text string, buttons []Button) error {
	rows := make([][]map[string]string, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, []map[string]string{{"text": b.Text, "callback_data": b.Data}})
	}
	return t.call(ctx, "sendMessage", map[string]any{
		"chat_id":      externalID,
		"text":         text,
		"reply_markup": map[string]any{"inline_keyboard": rows},
	})
}

// SendPhoto delivers an image by URL with a caption.
func (t *Telegram) SendPhoto(ctx context.Context, externalID, photoURL, caption string) error {
	return t.call(ctx, "sendPhoto", map[string]any{
		"chat_id": externalID,
		"photo":   photoURL,
		"caption": caption,
	})
}

// SendChatAction shows the "typing…" indicator.
func (t *Telegram) SendChatAction(ctx context.Context, externalID string) error {
	return t.call(ctx, "sendChatAction", map[string]any{
		"chat_id": externalID,
		"action":  "typing",
	})
}

// MarkAsRead is a no-op: the Bot API has no read-receipt primitive.
func (t *Telegram) MarkAsRead(context.Context, string) error { return nil }

// AnswerCallbackQuery dismisses the button tap spinner.
func (t *Telegram) AnswerCallbackQuery(ctx context.Context, callbackQueryID string) error {
	return t.call(ctx, "answerCallbackQuery", map[string]any{
		"callback_query_id": callbackQueryID,
	})
}

// call POSTs a JSON body to a Bot API method and checks the ok flag.
func (t *Telegram) call(ctx context.Context, method string, body map[string]any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("telegram: encode %s: %w", method, err)
	}
	url := fmt.Sprintf("%s/bot%s/%s", t.apiBase, t.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %s: %w", method, err)
	}
	defer resp.Body.Close()

	var out struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("telegram: decode %s response: %w", method, err)
	}
	if !out.OK {
		return fmt.Errorf("telegram: %s failed: %s", method, out.Description)
	}
	return nil
}
