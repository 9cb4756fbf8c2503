// Package intent turns free text into a structured (intent, action,
// confidence, entities) tuple through a three-tier cascade: an optional fast
// classifier, an LLM classifier, and a deterministic rule matcher that never
// fails. The result is a transient value produced fresh per message.
package intent

import "github.com/psousaj/nexo-ai-sub000/internal/domain"

// Intent is the coarse category of a message.
type Intent string

const (
	IntentSave     Intent = "save"
	IntentSearch   Intent = "search"
	IntentDelete   Intent = "delete"
	IntentConfirm  Intent = "confirm"
	IntentDeny     Intent = "deny"
	IntentCasual   Intent = "casual"
	IntentInfo     Intent = "info"
	IntentSettings Intent = "settings"
	IntentUnknown  Intent = "unknown"
)

// Action is the fine-grained verb within an intent.
type Action string

const (
	ActionSaveContent    Action = "save_content"
	ActionSavePrevious   Action = "save_previous"
	ActionSearchItems    Action = "search_items"
	ActionListItems      Action = "list_items"
	ActionDeleteAll      Action = "delete_all"
	ActionDeleteItem     Action = "delete_item"
	ActionConfirm        Action = "confirm"
	ActionDeny           Action = "deny"
	ActionCasualChat     Action = "casual_chat"
	ActionGetName        Action = "get_name"
	ActionGetInfo        Action = "get_info"
	ActionUpdateSettings Action = "update_settings"
	ActionUnknown        Action = "unknown"
)

// Entities carries the structured fragments extracted from the text.
type Entities struct {
	// Query is the free-text payload of a save/search/delete request.
	Query string `json:"query,omitempty"`
	// Selections are 1-based option picks, deduplicated and ascending.
	Selections []int `json:"selections,omitempty"`
	// ItemType is the recognized item category word, when present.
	ItemType domain.ItemType `json:"item_type,omitempty"`
	// URL is the first URL found in the text.
	URL string `json:"url,omitempty"`
	// Target is the object of a settings/delete verb (e.g. the new name).
	Target string `json:"target,omitempty"`
}

// Result is the classification outcome. Confidence is always in [0,1].
type Result struct {
	Intent     Intent   `json:"intent"`
	Action     Action   `json:"action"`
	Confidence float64  `json:"confidence"`
	Entities   Entities `json:"entities"`
	// Source names the tier that produced the result: "fast", "llm", "rules".
	Source string `json:"source,omitempty"`
}

// Unknown is the zero-information result the cascade degrades to.
func Unknown() Result {
	return Result{Intent: IntentUnknown, Action: ActionUnknown, Confidence: 0.5, Source: "rules"}
}
