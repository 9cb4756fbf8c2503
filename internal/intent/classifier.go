// Cascade orchestration for intent classification.
package intent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/psousaj/nexo-ai-sub000/internal/domain"
	"github.com/psousaj/nexo-ai-sub000/internal/llm"
)

// FastClassifier is the optional first tier: a lightweight trained model with
// a closed vocabulary and a ~10ms budget. A nil FastClassifier skips the tier.
type FastClassifier interface {
	Classify(text string) (Result, bool)
}

// Classifier runs the three-tier cascade. It is safe for concurrent use.
type Classifier struct {
	// Fast is the neural fast path; nil disables the tier.
	Fast FastClassifier
	// LLM is the second tier; llm.Unavailable degrades straight to rules.
	LLM llm.Client
	// ConfidenceGate is the fast-path accept threshold (default 0.85).
	ConfidenceGate float64
}

// NewClassifier constructs a Classifier with the default confidence gate.
func NewClassifier(fast FastClassifier, client llm.Client) *Classifier {
	if client == nil {
		client = llm.Unavailable{}
	}
	return &Classifier{Fast: fast, LLM: client, ConfidenceGate: 0.85}
}

// Classify resolves text to an intent result. It never returns an error:
// every tier failure degrades to the next one, and the rule tier is total.
func (c *Classifier) Classify(ctx context.Context, text string) Result {
	if c.Fast != nil {
		if res, ok := c.Fast.Classify(text); ok && res.Confidence >= c.gate() {
			res.Source = "fast"
			return clamp(res)
		}
	}

	if res, ok := c.classifyLLM(ctx, text); ok {
		return clamp(res)
	}

	return clamp(ClassifyRules(text))
}

func (c *Classifier) gate() float64 {
	if c.ConfidenceGate > 0 {
		return c.ConfidenceGate
	}
	return 0.85
}

// classifierPrompt is the fixed instruction for the LLM tier. The vocabulary
// mirrors the Intent/Action constants exactly.
const classifierPrompt = `Classifique a mensagem do usuário de um assistente de memória pessoal.
Responda SOMENTE com um objeto JSON:
{"intent":"save|search|delete|confirm|deny|casual|info|settings|unknown",
 "action":"save_content|save_previous|search_items|list_items|delete_all|delete_item|confirm|deny|casual_chat|get_name|get_info|update_settings|unknown",
 "confidence":0.0,
 "entities":{"query":"","item_type":"note|movie|tv_show|video|link","url":"","target":""}}`

// llmResult is the wire shape of the LLM tier's answer.
type llmResult struct {
	Intent     string  `json:"intent"`
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Entities   struct {
		Query    string `json:"query"`
		ItemType string `json:"item_type"`
		URL      string `json:"url"`
		Target   string `json:"target"`
	} `json:"entities"`
}

// classifyLLM runs the LLM tier. false means the tier is unavailable or its
// output failed validation; the caller falls through to rules.
func (c *Classifier) classifyLLM(ctx context.Context, text string) (Result, bool) {
	raw, err := c.LLM.Complete(ctx, llm.Request{
		Prompt:  classifierPrompt,
		History: []llm.Turn{{Role: "user", Content: text}},
	})
	if err != nil {
		if err != llm.ErrUnavailable {
			log.Warn().Err(err).Msg("intent: llm tier failed, falling back to rules")
		}
		return Result{}, false
	}

	payload := llm.ExtractJSON(raw)
	if payload == "" {
		log.Warn().Str("raw", truncate(raw, 200)).Msg("intent: llm returned no JSON")
		return Result{}, false
	}
	var lr llmResult
	if err := json.Unmarshal([]byte(payload), &lr); err != nil {
		log.Warn().Err(err).Str("raw", truncate(payload, 200)).Msg("intent: llm JSON mismatch")
		return Result{}, false
	}

	res := Result{
		Intent:     Intent(strings.ToLower(lr.Intent)),
		Action:     Action(strings.ToLower(lr.Action)),
		Confidence: lr.Confidence,
		Entities: Entities{
			Query:    strings.TrimSpace(lr.Entities.Query),
			ItemType: domain.ItemType(lr.Entities.ItemType),
			URL:      lr.Entities.URL,
			Target:   strings.TrimSpace(lr.Entities.Target),
		},
		Source: "llm",
	}
	if !knownIntent(res.Intent) || !knownAction(res.Action) {
		return Result{}, false
	}
	return res, true
}

func knownIntent(i Intent) bool {
	switch i {
	case IntentSave, IntentSearch, IntentDelete, IntentConfirm, IntentDeny,
		IntentCasual, IntentInfo, IntentSettings, IntentUnknown:
		return true
	}
	return false
}

func knownAction(a Action) bool {
	switch a {
	case ActionSaveContent, ActionSavePrevious, ActionSearchItems, ActionListItems,
		ActionDeleteAll, ActionDeleteItem, ActionConfirm, ActionDeny,
		ActionCasualChat, ActionGetName, ActionGetInfo, ActionUpdateSettings,
		ActionUnknown:
		return true
	}
	return false
}

// clamp forces confidence into [0,1].
func clamp(r Result) Result {
	if r.Confidence < 0 {
		r.Confidence = 0
	}
	if r.Confidence > 1 {
		r.Confidence = 1
	}
	return r
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
