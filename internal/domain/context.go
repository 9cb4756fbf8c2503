// Conversation context document.
//
// The context travels with the conversation row as a JSON blob, but it is a
// bounded struct rather than a free-form map: every flow that parks data
// between turns (clarification, candidate confirmation, batch saves) has a
// named field here. Updates are merge-on-write — the repository reads the
// current document, applies a mutation, and writes the whole record back, so
// unrelated fields survive every transition.
package domain

import (
	"encoding/json"
	"strings"
)

// Candidate is one enrichment search result offered to the user for
// confirmation before saving. Candidates live inside ConvContext while the
// conversation is in a confirmation phase and are cleared once resolved.
type Candidate struct {
	ExternalID string   `json:"external_id,omitempty"`
	Title      string   `json:"title"`
	Year       string   `json:"year,omitempty"`
	Overview   string   `json:"overview,omitempty"`
	Genres     []string `json:"genres,omitempty"`
	PosterURL  string   `json:"poster_url,omitempty"`
}

// BatchItem statuses.
const (
	BatchPending    = "pending"
	BatchProcessing = "processing"
	BatchConfirmed  = "confirmed"
	BatchSkipped    = "skipped"
)

// BatchItem is one entry of a multi-save request queue. Items advance
// pending → processing → confirmed|skipped; the batch is terminal when no
// pending items remain.
type BatchItem struct {
	Query  string   `json:"query"`
	Type   ItemType `json:"type"`
	Status string   `json:"status"`
}

// ConvContext is the per-conversation scratchpad. Zero values mean "not in
// that flow"; transitions back to idle clear only the fields they own.
type ConvContext struct {
	// Clarification flow (awaiting_context).
	PendingContent  string `json:"pending_content,omitempty"`
	ClarifyAttempts int    `json:"clarify_attempts,omitempty"`

	// Candidate confirmation flow (awaiting_confirmation / final).
	Candidates    []Candidate `json:"candidates,omitempty"`
	CandidateType ItemType    `json:"candidate_type,omitempty"`
	Selected      *Candidate  `json:"selected,omitempty"`
	PendingQuery  string      `json:"pending_query,omitempty"`

	// Batch flow (awaiting_batch_item).
	Batch []BatchItem `json:"batch,omitempty"`

	// Off-topic escape hatch.
	OffTopicRounds int `json:"off_topic_rounds,omitempty"`

	// Last resolved intent action, kept for "save the previous thing"
	// back-references and for diagnostics.
	LastIntent  string `json:"last_intent,omitempty"`
	LastContent string `json:"last_content,omitempty"`
}

// ParseContext decodes a stored context document. A blank or malformed
// document yields an empty context rather than an error: a corrupt blob must
// never wedge the conversation.
func ParseContext(raw string) ConvContext {
	var c ConvContext
	if strings.TrimSpace(raw) == "" {
		return c
	}
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return ConvContext{}
	}
	return c
}

// Encode serializes the context for storage. Marshalling a ConvContext cannot
// fail; the error path exists only to satisfy the json contract.
func (c ConvContext) Encode() string {
	b, err := json.Marshal(c)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ClearTransient drops the fields owned by interactive flows. Used when a
// deny/cancel returns the conversation to idle.
func (c *ConvContext) ClearTransient() {
	c.PendingContent = ""
	c.ClarifyAttempts = 0
	c.Candidates = nil
	c.CandidateType = ""
	c.Selected = nil
	c.PendingQuery = ""
	c.Batch = nil
	c.OffTopicRounds = 0
}

// NextPendingBatch returns the index of the first pending batch item, or -1
// when the batch is exhausted.
func (c *ConvContext) NextPendingBatch() int {
	for i := range c.Batch {
		if c.Batch[i].Status == BatchPending {
			return i
		}
	}
	return -1
}

// BatchCounts tallies confirmed and skipped items for the closing summary.
func (c *ConvContext) BatchCounts() (confirmed, skipped int) {
	for i := range c.Batch {
		switch c.Batch[i].Status {
		case BatchConfirmed:
			confirmed++
		case BatchSkipped:
			skipped++
		}
	}
	return confirmed, skipped
}
