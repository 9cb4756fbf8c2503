// Package provider defines the messaging channel abstraction. One adapter per
// channel (Telegram, WhatsApp Cloud, Evolution, Discord) normalizes inbound
// webhook payloads into a single IncomingMessage shape and exposes outbound
// primitives. The orchestrator only ever talks to this interface; channel
// quirks (markdown escaping, mention gating, callback answering) stay behind
// the adapters.
package provider

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Channel names. These are wire-visible (session keys, message rows).
const (
	ChannelTelegram  = "telegram"
	ChannelWhatsApp  = "whatsapp"
	ChannelEvolution = "evolution"
	ChannelDiscord   = "discord"
)

// Candidate button callback literals. Outbound button payloads and inbound
// callback parsing must agree on these exactly.
const (
	CallbackSelectPrefix = "select_"
	CallbackConfirmFinal = "confirm_final"
	CallbackChooseAgain  = "choose_again"
)

// MessageType describes what kind of payload the inbound message carried.
type MessageType string

const (
	TypeText     MessageType = "text"
	TypeMedia    MessageType = "media"
	TypeCallback MessageType = "callback"
)

// Metadata carries per-message channel facts the orchestrator may need.
type Metadata struct {
	IsGroup     bool
	MentionsBot bool
	Type        MessageType
}

// IncomingMessage is the normalized inbound envelope. It is a transient value
// owned by the current request; nothing holds a reference past processing.
//
// UserID is the sender; ExternalID is the chat/channel the reply goes to. In
// direct messages they usually coincide, in groups they differ.
type IncomingMessage struct {
	MessageID       string    `json:"message_id"`
	ExternalID      string    `json:"external_id"`
	UserID          string    `json:"user_id"`
	SenderName      string    `json:"sender_name"`
	Text            string    `json:"text"`
	Timestamp       time.Time `json:"timestamp"`
	Provider        string    `json:"provider"`
	CallbackQueryID string    `json:"callback_query_id,omitempty"`
	CallbackData    string    `json:"callback_data,omitempty"`
	LinkingToken    string    `json:"linking_token,omitempty"`
	Metadata        Metadata  `json:"metadata"`
}

// Button is an inline reply button. Data round-trips through the channel and
// comes back as IncomingMessage.CallbackData.
type Button struct {
	Text string `json:"text"`
	Data string `json:"data"`
}

// MessagingProvider is the capability set implemented per channel.
//
// ParseIncomingMessage returns (nil, nil) for payloads that should be
// ignored: self-sent messages, empty events, and group messages that neither
// mention the bot nor start with a command marker. Outbound primitives a
// channel cannot support natively are documented no-ops, never errors.
type MessagingProvider interface {
	// Name returns the stable channel identifier.
	Name() string

	// ParseIncomingMessage normalizes a raw webhook payload. A nil message
	// with nil error means "valid payload, nothing to process".
	ParseIncomingMessage(payload []byte) (*IncomingMessage, error)

	// VerifyWebhook authenticates an inbound webhook request. It must fail
	// closed when a secret is configured and the request does not prove it.
	VerifyWebhook(r *http.Request, body []byte) bool

	// SendMessage delivers plain text to the chat identified by externalID.
	SendMessage(ctx context.Context, externalID, text string) error

	// SendMessageWithButtons delivers text with inline reply buttons.
	// Channels without button support render the options as numbered text.
	SendMessageWithButtons(ctx context.Context, externalID, text string, buttons []Button) error

	// SendPhoto delivers an image by URL with a caption. Channels without
	// native photo support fall back to sending the URL as text.
	SendPhoto(ctx context.Context, externalID, photoURL, caption string) error

	// SendChatAction shows a typing indicator. No-op where unsupported.
	SendChatAction(ctx context.Context, externalID string) error

	// MarkAsRead acknowledges the message on the channel. No-op where
	// unsupported.
	MarkAsRead(ctx context.Context, messageID string) error

	// AnswerCallbackQuery dismisses a button tap spinner. No-op where
	// unsupported.
	AnswerCallbackQuery(ctx context.Context, callbackQueryID string) error
}

// ErrUnknownProvider is returned by Registry lookups for unregistered names.
var ErrUnknownProvider = errors.New("unknown messaging provider")

// Registry holds the providers constructed at startup. It replaces any
// process-global client state: adapters are built once, registered, and
// passed by dependency injection.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]MessagingProvider
}

// NewRegistry returns an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]MessagingProvider)}
}

// Register adds or replaces a provider under its own name.
func (r *Registry) Register(p MessagingProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (MessagingProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return p, nil
}

// Names returns the registered channel names, sorted for determinism.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// httpClient is the shared outbound client for all adapters. Providers are
// latency-tolerant; a single bounded timeout protects the worker pool.
var httpClient = &http.Client{Timeout: 15 * time.Second}
