// Discord adapter. Inbound events arrive through a gateway relay posting to
// the webhook endpoint; outbound calls use the Discord REST API.
package provider

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Discord signs each delivery with ed25519 over timestamp+body.
const (
	discordSignatureHeader = "X-Signature-Ed25519"
	discordTimestampHeader = "X-Signature-Timestamp"
)

// Discord implements MessagingProvider over the Discord REST API.
type Discord struct {
	botToken  string
	publicKey string
	botUserID string
	apiBase   string
	client    *http.Client
}

// DiscordOption customizes a Discord adapter.
type DiscordOption func(*Discord)

// WithDiscordAPIBase overrides the REST API base URL.
func WithDiscordAPIBase(base string) DiscordOption {
	return func(d *Discord) { d.apiBase = strings.TrimRight(base, "/") }
}

// NewDiscord constructs the Discord adapter. botUserID enables mention
// gating in guild channels.
func NewDiscord(botToken, publicKey, botUserID string, opts ...DiscordOption) *Discord {
	d := &Discord{
		botToken:  botToken,
		publicKey: publicKey,
		botUserID: botUserID,
		apiBase:   "https://discord.com/api/v10",
		client:    httpClient,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns the channel identifier.
func (d *Discord) Name() string { return ChannelDiscord }

// discordEvent mirrors the relayed MESSAGE_CREATE / interaction payload.
type discordEvent struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Author    *struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Bot      bool   `json:"bot"`
	} `json:"author"`
	Mentions []struct {
		ID string `json:"id"`
	} `json:"mentions"`
	// Component interaction (button tap).
	Type int `json:"type"`
	Data *struct {
		CustomID string `json:"custom_id"`
	} `json:"data"`
	Member *struct {
		User struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"user"`
	} `json:"member"`
}

// ParseIncomingMessage normalizes a relayed Discord event. Bot-authored
// messages and ungated guild messages return nil.
func (d *Discord) ParseIncomingMessage(payload []byte) (*IncomingMessage, error) {
	var ev discordEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("discord: decode event: %w", err)
	}

	// Component interaction: type 3 carries the tapped custom_id.
	if ev.Type == 3 && ev.Data != nil {
		userID, senderName := "", ""
		if ev.Member != nil {
			userID = ev.Member.User.ID
			senderName = ev.Member.User.Username
		}
		return &IncomingMessage{
			MessageID:       "cb:" + ev.ID,
			ExternalID:      ev.ChannelID,
			UserID:          userID,
			SenderName:      senderName,
			Timestamp:       time.Now().UTC(),
			Provider:        ChannelDiscord,
			CallbackQueryID: ev.ID,
			CallbackData:    ev.Data.CustomID,
			Metadata:        Metadata{IsGroup: ev.GuildID != "", Type: TypeCallback},
		}, nil
	}

	if ev.Author == nil || ev.Author.Bot {
		return nil, nil
	}
	if strings.TrimSpace(ev.Content) == "" {
		return nil, nil
	}

	isGuild := ev.GuildID != ""
	mentions := false
	for _, m := range ev.Mentions {
		if m.ID == d.botUserID {
			mentions = true
			break
		}
	}
	if isGuild && !mentions && !strings.HasPrefix(ev.Content, "!") {
		return nil, nil
	}

	ts := time.Now().UTC()
	if parsed, err := time.Parse(time.RFC3339, ev.Timestamp); err == nil {
		ts = parsed.UTC()
	}

	text := ev.Content
	if d.botUserID != "" {
		text = strings.ReplaceAll(text, "<@"+d.botUserID+">", "")
	}

	return &IncomingMessage{
		MessageID:  ev.ID,
		ExternalID: ev.ChannelID,
		UserID:     ev.Author.ID,
		SenderName: ev.Author.Username,
		Text:       strings.TrimSpace(text),
		Timestamp:  ts,
		Provider:   ChannelDiscord,
		Metadata:   Metadata{IsGroup: isGuild, MentionsBot: mentions, Type: TypeText},
	}, nil
}

// VerifyWebhook checks the ed25519 signature over timestamp+body. Fails
// closed whenever a public key is configured.
func (d *Discord) VerifyWebhook(r *http.Request, body []byte) bool {
	if d.publicKey == "" {
		return true
	}
	key, err := hex.DecodeString(d.publicKey)
	if err != nil || len(key) != ed25519.PublicKeySize {
		return false
	}
	sig, err := hex.DecodeString(r.Header.Get(discordSignatureHeader))
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	ts := r.Header.Get(discordTimestampHeader)
	if ts == "" {
		return false
	}
	msg := make([]byte, 0, len(ts)+len(body))
	msg = append(msg, ts...)
	msg = append(msg, body...)
	return ed25519.Verify(ed25519.PublicKey(key), msg, sig)
}

// SendMessage delivers plain text to a channel.
func (d *Discord) SendMessage(ctx context.Context, externalID, text string) error {
	return d.call(ctx, externalID, map[string]any{"content": text})
}

// SendMessageWithButtons delivers text with a button action row (max 5 per
// row on Discord; larger sets fall back to numbered text).
func (d *Discord) SendMessageWithButtons(ctx context.Context, externalID, text string, buttons []Button) error {
	if len(buttons) > 5 {
		return d.SendMessage(ctx, externalID, text+"\n\n"+numberedFallback(buttons))
	}
	comps := make([]map[string]any, 0, len(buttons))
	for _, b := range buttons {
		comps = append(comps, map[string]any{
			"type":      2, // button
			"style":     2, // secondary
			"label":     b.Text,
			"custom_id": b.Data,
		})
	}
	return d.call(ctx, externalID, map[string]any{
		"content":    text,
		"components": []map[string]any{{"type": 1, "components": comps}},
	})
}

// SendPhoto embeds the image by URL.
func (d *Discord) SendPhoto(ctx context.Context, externalID, photoURL, caption string) error {
	return d.call(ctx, externalID, map[string]any{
		"content": caption,
		"embeds":  []map[string]any{{"image": map[string]string{"url": photoURL}}},
	})
}

// SendChatAction triggers the typing indicator.
func (d *Discord) SendChatAction(ctx context.Context, externalID string) error {
	url := fmt.Sprintf("%s/channels/%s/typing", d.apiBase, externalID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+d.botToken)
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: typing: %w", err)
	}
	resp.Body.Close()
	return nil
}

// MarkAsRead is a no-op: Discord has no per-message read receipts for bots.
func (d *Discord) MarkAsRead(context.Context, string) error { return nil }

// AnswerCallbackQuery is a no-op here: interaction acks are handled by the
// relay that owns the interaction token.
func (d *Discord) AnswerCallbackQuery(context.Context, string) error { return nil }

// call POSTs a message create to a channel.
func (d *Discord) call(ctx context.Context, channelID string, body map[string]any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("discord: encode request: %w", err)
	}
	url := fmt.Sprintf("%s/channels/%s/messages", d.apiBase, channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bot "+d.botToken)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord: send failed: status %d", resp.StatusCode)
	}
	return nil
}
