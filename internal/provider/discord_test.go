package provider

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDiscordParse_GuildMention(t *testing.T) {
	d := NewDiscord("token", "", "bot123")

	payload := `{
		"id": "900100",
		"channel_id": "chan1",
		"guild_id": "guild1",
		"content": "<@bot123> salva o filme Matrix",
		"timestamp": "2026-09-01T12:00:00Z",
		"author": {"id": "user9", "username": "joao", "bot": false},
		"mentions": [{"id": "bot123"}]
	}`
	msg, err := d.ParseIncomingMessage([]byte(payload))
	if err != nil || msg == nil {
		t.Fatalf("parse: (%+v, %v)", msg, err)
	}
	if msg.Text != "salva o filme Matrix" {
		t.Fatalf("mention must be stripped: %q", msg.Text)
	}
	if msg.UserID != "user9" || msg.ExternalID != "chan1" {
		t.Fatalf("unexpected ids: %+v", msg)
	}
	if !msg.Metadata.IsGroup || !msg.Metadata.MentionsBot {
		t.Fatalf("guild mention flags: %+v", msg.Metadata)
	}
	if msg.Timestamp.Year() != 2026 {
		t.Fatalf("timestamp must come from the payload: %v", msg.Timestamp)
	}
}

func TestDiscordParse_Ignored(t *testing.T) {
	d := NewDiscord("token", "", "bot123")

	cases := []struct {
		name    string
		payload string
	}{
		{"bot author", `{"id":"1","channel_id":"c","content":"oi","author":{"id":"x","bot":true}}`},
		{"no author", `{"id":"1","channel_id":"c","content":"oi"}`},
		{"empty content", `{"id":"1","channel_id":"c","content":"  ","author":{"id":"x","bot":false}}`},
		{"guild without mention or prefix", `{"id":"1","channel_id":"c","guild_id":"g","content":"oi","author":{"id":"x","bot":false}}`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			msg, err := d.ParseIncomingMessage([]byte(c.payload))
			if err != nil || msg != nil {
				t.Fatalf("expected (nil, nil), got (%+v, %v)", msg, err)
			}
		})
	}
}

func TestDiscordParse_DirectMessage(t *testing.T) {
	d := NewDiscord("token", "", "bot123")

	payload := `{"id":"2","channel_id":"dm1","content":"anota a nota comprar pão","author":{"id":"u1","username":"ana","bot":false}}`
	msg, err := d.ParseIncomingMessage([]byte(payload))
	if err != nil || msg == nil {
		t.Fatalf("parse: (%+v, %v)", msg, err)
	}
	if msg.Metadata.IsGroup {
		t.Fatal("no guild_id means a DM")
	}
}

func TestDiscordParse_ButtonInteraction(t *testing.T) {
	d := NewDiscord("token", "", "bot123")

	payload := `{
		"id": "inter1",
		"channel_id": "chan1",
		"type": 3,
		"data": {"custom_id": "select_2"},
		"member": {"user": {"id": "user9", "username": "joao"}}
	}`
	msg, err := d.ParseIncomingMessage([]byte(payload))
	if err != nil || msg == nil {
		t.Fatalf("parse: (%+v, %v)", msg, err)
	}
	if msg.CallbackData != "select_2" || msg.Metadata.Type != TypeCallback {
		t.Fatalf("unexpected callback: %+v", msg)
	}
	if msg.CallbackQueryID != "inter1" || msg.UserID != "user9" {
		t.Fatalf("unexpected ids: %+v", msg)
	}
}

func TestDiscordVerifyWebhook(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	d := NewDiscord("token", hex.EncodeToString(pub), "bot123")

	body := []byte(`{"type":1}`)
	ts := "1756700000"
	sig := ed25519.Sign(priv, append([]byte(ts), body...))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/discord", nil)
	req.Header.Set("X-Signature-Ed25519", hex.EncodeToString(sig))
	req.Header.Set("X-Signature-Timestamp", ts)
	if !d.VerifyWebhook(req, body) {
		t.Fatal("valid signature must pass")
	}

	if d.VerifyWebhook(req, []byte(`{"type":1,"x":1}`)) {
		t.Fatal("tampered body must fail")
	}

	req.Header.Set("X-Signature-Timestamp", "1756700001")
	if d.VerifyWebhook(req, body) {
		t.Fatal("tampered timestamp must fail")
	}

	bare := httptest.NewRequest(http.MethodPost, "/webhooks/discord", nil)
	if d.VerifyWebhook(bare, body) {
		t.Fatal("missing headers must fail closed")
	}

	open := NewDiscord("token", "", "bot123")
	if !open.VerifyWebhook(bare, body) {
		t.Fatal("no configured key means no check")
	}
}

func TestDiscordSendMessageWithButtons(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/channels/chan1/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bot token" {
			t.Errorf("missing bot auth header")
		}
		buf, _ := io.ReadAll(r.Body)
		got = map[string]any{}
		_ = json.Unmarshal(buf, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDiscord("token", "", "bot123", WithDiscordAPIBase(srv.URL))
	buttons := []Button{
		{Text: "Matrix (1999)", Data: "select_1"},
		{Text: "Nenhum desses", Data: "select_0"},
	}
	if err := d.SendMessageWithButtons(context.Background(), "chan1", "Qual deles?", buttons); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got["content"] != "Qual deles?" {
		t.Fatalf("unexpected content: %+v", got)
	}
	if _, ok := got["components"]; !ok {
		t.Fatalf("small button sets must use an action row: %+v", got)
	}

	// Past the 5-button row limit the options render as numbered text.
	many := make([]Button, 6)
	for i := range many {
		many[i] = Button{Text: "Opção", Data: "select_1"}
	}
	if err := d.SendMessageWithButtons(context.Background(), "chan1", "Qual deles?", many); err != nil {
		t.Fatalf("send fallback: %v", err)
	}
	content, _ := got["content"].(string)
	if _, ok := got["components"]; ok || !strings.Contains(content, "6. Opção") {
		t.Fatalf("oversize sets must fall back to numbered text: %+v", got)
	}
}
