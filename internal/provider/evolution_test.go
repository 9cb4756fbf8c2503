package provider

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func evoUpsert(jid, text string) string {
	return `{
		"event": "messages.upsert",
		"data": {
			"key": {"remoteJid": "` + jid + `", "fromMe": false, "id": "EVO1"},
			"pushName": "Maria",
			"messageTimestamp": 1756700000,
			"message": {"conversation": "` + text + `"}
		}
	}`
}

func TestEvolutionParse_Text(t *testing.T) {
	e := NewEvolution("http://evo.local", "key", "main")

	msg, err := e.ParseIncomingMessage([]byte(evoUpsert("5511999990000@s.whatsapp.net", "salva o filme Matrix")))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg == nil {
		t.Fatal("expected a message")
	}
	if msg.MessageID != "EVO1" || msg.UserID != "5511999990000" {
		t.Fatalf("unexpected ids: %+v", msg)
	}
	if msg.ExternalID != "5511999990000@s.whatsapp.net" {
		t.Fatalf("external id must keep the full jid: %q", msg.ExternalID)
	}
	if msg.SenderName != "Maria" || msg.Text != "salva o filme Matrix" {
		t.Fatalf("unexpected content: %+v", msg)
	}
	if msg.Timestamp.Unix() != 1756700000 {
		t.Fatalf("timestamp must come from the payload: %v", msg.Timestamp)
	}
	if msg.Metadata.IsGroup {
		t.Fatal("direct jid must not be a group")
	}
}

func TestEvolutionParse_Ignored(t *testing.T) {
	e := NewEvolution("http://evo.local", "key", "main")

	cases := []struct {
		name    string
		payload string
	}{
		{"other event", `{"event":"connection.update","data":{}}`},
		{"from me", `{"event":"messages.upsert","data":{"key":{"remoteJid":"5511@s.whatsapp.net","fromMe":true,"id":"x"},"message":{"conversation":"oi"}}}`},
		{"empty text", evoUpsert("5511@s.whatsapp.net", "")},
		{"group without command prefix", evoUpsert("12036304@g.us", "oi gente")},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			msg, err := e.ParseIncomingMessage([]byte(c.payload))
			if err != nil || msg != nil {
				t.Fatalf("expected (nil, nil), got (%+v, %v)", msg, err)
			}
		})
	}
}

func TestEvolutionParse_GroupCommand(t *testing.T) {
	e := NewEvolution("http://evo.local", "key", "main")

	msg, err := e.ParseIncomingMessage([]byte(evoUpsert("12036304@g.us", "/salva o filme Duna")))
	if err != nil || msg == nil {
		t.Fatalf("group command must pass: (%+v, %v)", msg, err)
	}
	if !msg.Metadata.IsGroup {
		t.Fatal("g.us jid must be a group")
	}
}

func TestEvolutionVerifyWebhook(t *testing.T) {
	e := NewEvolution("http://evo.local", "s3cret", "main")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/evolution", nil)
	if e.VerifyWebhook(req, nil) {
		t.Fatal("missing apikey header must fail closed")
	}
	req.Header.Set("apikey", "wrong")
	if e.VerifyWebhook(req, nil) {
		t.Fatal("wrong apikey must fail")
	}
	req.Header.Set("apikey", "s3cret")
	if !e.VerifyWebhook(req, nil) {
		t.Fatal("correct apikey must pass")
	}

	open := NewEvolution("http://evo.local", "", "main")
	if !open.VerifyWebhook(httptest.NewRequest(http.MethodPost, "/", nil), nil) {
		t.Fatal("no configured key means no check")
	}
}

func TestEvolutionSendMessageWithButtons_NumberedText(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		body = string(buf)
		if r.URL.Path != "/message/sendText/main" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("apikey") != "key" {
			t.Errorf("missing apikey header")
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	e := NewEvolution(srv.URL, "key", "main")
	buttons := []Button{
		{Text: "Matrix (1999)", Data: "select_1"},
		{Text: "Nenhum desses", Data: "select_0"},
	}
	if err := e.SendMessageWithButtons(context.Background(), "5511@s.whatsapp.net", "Qual deles?", buttons); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(body, "1. Matrix (1999)") || !strings.Contains(body, "2. Nenhum desses") {
		t.Fatalf("buttons must render as numbered text: %s", body)
	}
}
