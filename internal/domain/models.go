// Package domain defines the persistence models for conversations, transcript
// messages, saved memory items, and moderation state. These types are mapped
// with GORM and form the core data layer of the assistant.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// State is the conversation state machine position. It is stored as a plain
// string so the column stays readable in the database.
type State string

// Conversation states. Idle is both the initial and the terminal state.
const (
	StateIdle              State = "idle"
	StateAwaitingContext   State = "awaiting_context"
	StateAwaitingConfirm   State = "awaiting_confirmation"
	StateAwaitingFinal     State = "awaiting_final_confirmation"
	StateAwaitingBatchItem State = "awaiting_batch_item"
	StateOffTopicChat      State = "off_topic_chat"
	StateProcessing        State = "processing"
)

// Valid reports whether s is a known conversation state.
func (s State) Valid() bool {
	switch s {
	case StateIdle, StateAwaitingContext, StateAwaitingConfirm,
		StateAwaitingFinal, StateAwaitingBatchItem, StateOffTopicChat,
		StateProcessing:
		return true
	}
	return false
}

// Conversation represents one logical dialogue session with a user. At most
// one conversation per user may be active at a time; a closed conversation is
// deactivated and replaced by a fresh one on the next inbound message.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - UserID: identifier of the conversation owner; indexed.
//   - State: current state machine position (see State constants).
//   - Context: serialized ConvContext document, merged on every update.
//   - IsActive: exactly one active conversation per user at a time.
//   - CloseAt: when the scheduled auto-close is due (nil when none pending).
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker (retention is handled out of process).
type Conversation struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string         `json:"user_id"    gorm:"type:varchar(64);not null;index:idx_user_convs"`
	State     State          `json:"state"      gorm:"type:varchar(32);not null;default:'idle'"`
	Context   string         `json:"context"    gorm:"type:text;not null;default:'{}'"`
	IsActive  bool           `json:"is_active"  gorm:"not null;default:false;index:idx_user_convs"`
	CloseAt   *time.Time     `json:"close_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Message is an append-only transcript entry. Rows are never mutated after
// insert; provider correlation fields allow deduplication of redelivered
// webhook payloads.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - ConversationID: foreign key to the owning conversation (indexed).
//   - Role: "user" or "assistant" (enforced by DB constraint).
//   - Content: full text content of the message.
//   - Provider: channel the message arrived on or was sent to.
//   - ExternalID: chat/channel identifier on the provider side.
//   - ProviderMessageID: the provider's own message id, unique per provider
//     and role; redelivered payloads collide here instead of duplicating.
//   - ProviderPayload: raw inbound payload for audit (user messages only).
type Message struct {
	ID                string    `json:"id"                  gorm:"type:char(36);primaryKey"`
	ConversationID    string    `json:"conversation_id"     gorm:"type:char(36);not null;index:idx_conv_msgs,priority:1"`
	Role              string    `json:"role"                gorm:"type:varchar(16);not null;check:role IN ('user','assistant');uniqueIndex:ux_provider_msg"`
	Content           string    `json:"content"             gorm:"type:text;not null"`
	Provider          string    `json:"provider"            gorm:"type:varchar(32);not null;uniqueIndex:ux_provider_msg"`
	ExternalID        string    `json:"external_id"         gorm:"type:varchar(128)"`
	ProviderMessageID string    `json:"provider_message_id" gorm:"type:varchar(128);uniqueIndex:ux_provider_msg"`
	ProviderPayload   string    `json:"-"                   gorm:"type:text"`
	CreatedAt         time.Time `json:"created_at"          gorm:"index:idx_conv_msgs,priority:2"`

	// Conversation is the parent dialogue. Messages are cascade-deleted if
	// their conversation is removed.
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ItemType classifies a saved memory item.
type ItemType string

// Known item types. The clarification menu is generated from the save tools
// enabled at runtime, so this list only bounds what can be persisted.
const (
	ItemNote   ItemType = "note"
	ItemMovie  ItemType = "movie"
	ItemTVShow ItemType = "tv_show"
	ItemVideo  ItemType = "video"
	ItemLink   ItemType = "link"
)

// MemoryItem is a saved personal memory entry (note, movie, link, ...).
//
// Metadata carries enrichment output (year, overview, poster, external id) as
// a JSON document; items saved without enrichment keep it empty.
type MemoryItem struct {
	ID        string         `json:"id"        gorm:"type:char(36);primaryKey"`
	UserID    string         `json:"user_id"   gorm:"type:varchar(64);not null;index:idx_user_items"`
	Type      ItemType       `json:"type"      gorm:"type:varchar(16);not null;index:idx_user_items"`
	Title     string         `json:"title"     gorm:"type:varchar(255);not null"`
	Content   string         `json:"content"   gorm:"type:text"`
	URL       string         `json:"url"       gorm:"type:varchar(2048)"`
	Metadata  string         `json:"metadata"  gorm:"type:text;not null;default:'{}'"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"         gorm:"index"`
}

// TableName returns the database table name for MemoryItem.
func (MemoryItem) TableName() string { return "memory_items" }

// UserSettings stores per-user assistant preferences.
type UserSettings struct {
	UserID        string    `json:"user_id"        gorm:"type:varchar(64);primaryKey"`
	AssistantName string    `json:"assistant_name" gorm:"type:varchar(64);not null;default:'Nexo'"`
	Language      string    `json:"language"       gorm:"type:varchar(8);not null;default:'pt-BR'"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for UserSettings.
func (UserSettings) TableName() string { return "user_settings" }

// Offense tracks moderation strikes per user. Count drives the progressive
// timeout ladder; while TimedOutUntil is in the future no replies are sent.
type Offense struct {
	UserID        string     `json:"user_id"         gorm:"type:varchar(64);primaryKey"`
	Count         int        `json:"count"           gorm:"not null;default:0"`
	TimedOutUntil *time.Time `json:"timed_out_until,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Offense.
func (Offense) TableName() string { return "offenses" }
