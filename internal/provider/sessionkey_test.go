package provider

import "testing"

func TestSessionKey_RoundTrip(t *testing.T) {
	cases := []SessionKeyParams{
		{AgentID: "nexo", Channel: ChannelTelegram, PeerKind: PeerDirect, PeerID: "12345"},
		{AgentID: "nexo", Channel: ChannelWhatsApp, PeerKind: PeerGroup, PeerID: "5511999", DMScope: "user-9"},
		{AgentID: "a1", Channel: ChannelDiscord, PeerKind: PeerChannel, PeerID: "guild-7"},
	}
	for _, want := range cases {
		key := BuildSessionKey(want)
		got, err := ParseSessionKey(key)
		if err != nil {
			t.Fatalf("parse %q: %v", key, err)
		}
		if got != want {
			t.Fatalf("round trip mismatch for %q: want %+v, got %+v", key, want, got)
		}
	}
}

func TestSessionKey_Format(t *testing.T) {
	key := BuildSessionKey(SessionKeyParams{
		AgentID:  "nexo",
		Channel:  ChannelTelegram,
		PeerKind: PeerDirect,
		PeerID:   "42",
	})
	if key != "agent:nexo:telegram:direct:42" {
		t.Fatalf("unexpected key format: %q", key)
	}
}

func TestParseSessionKey_Malformed(t *testing.T) {
	bad := []string{
		"",
		"agent",
		"agent:nexo:telegram:direct",                // too few segments
		"agent:nexo:telegram:direct:42:scope:extra", // too many
		"session:nexo:telegram:direct:42",           // wrong prefix
		"agent::telegram:direct:42",                 // empty agent
		"agent:nexo:telegram::42",                   // empty peer kind
		"agent:nexo:telegram:direct:",               // empty peer id
		"agent:nexo:telegram:direct:42:",            // empty dm scope
	}
	for _, key := range bad {
		if _, err := ParseSessionKey(key); err == nil {
			t.Errorf("expected error for %q", key)
		}
	}

	if _, err := ParseSessionKey("agent:nexo:telegram:robot:42"); err != ErrBadPeerKind {
		t.Fatalf("expected ErrBadPeerKind, got %v", err)
	}
}
