package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/psousaj/nexo-ai-sub000/internal/domain"
	"github.com/psousaj/nexo-ai-sub000/internal/llm"
)

// scriptedLLM returns a fixed completion (or error) for every request.
type scriptedLLM struct {
	out string
	err error
}

func (s scriptedLLM) Complete(context.Context, llm.Request) (string, error) {
	return s.out, s.err
}

// scriptedFast is a FastClassifier with a canned answer.
type scriptedFast struct {
	res Result
	ok  bool
}

func (s scriptedFast) Classify(string) (Result, bool) { return s.res, s.ok }

func TestClassify_FastPathGate(t *testing.T) {
	ctx := context.Background()

	confident := scriptedFast{res: Result{Intent: IntentSave, Action: ActionSaveContent, Confidence: 0.92}, ok: true}
	c := NewClassifier(confident, llm.Unavailable{})
	res := c.Classify(ctx, "salva Matrix")
	if res.Source != "fast" || res.Action != ActionSaveContent {
		t.Fatalf("confident fast result must win: %+v", res)
	}

	// Below the gate the fast tier is discarded and the cascade continues.
	hesitant := scriptedFast{res: Result{Intent: IntentSave, Action: ActionSaveContent, Confidence: 0.5}, ok: true}
	c = NewClassifier(hesitant, llm.Unavailable{})
	res = c.Classify(ctx, "apaga tudo")
	if res.Source != "rules" || res.Action != ActionDeleteAll {
		t.Fatalf("low-confidence fast path must fall through: %+v", res)
	}
}

func TestClassify_LLMTierValidJSON(t *testing.T) {
	c := NewClassifier(nil, scriptedLLM{out: `{
		"intent": "search",
		"action": "search_items",
		"confidence": 0.88,
		"entities": {"query": "receitas de bolo", "item_type": "note"}
	}`})
	res := c.Classify(context.Background(), "me mostra aquelas receitas")
	if res.Source != "llm" || res.Action != ActionSearchItems {
		t.Fatalf("valid LLM answer must be accepted: %+v", res)
	}
	if res.Entities.Query != "receitas de bolo" || res.Entities.ItemType != domain.ItemNote {
		t.Fatalf("entities lost: %+v", res.Entities)
	}
}

func TestClassify_LLMTierRejectsUnknownVocabulary(t *testing.T) {
	c := NewClassifier(nil, scriptedLLM{out: `{"intent": "save", "action": "launch_missiles", "confidence": 0.99}`})
	res := c.Classify(context.Background(), "salva o filme Matrix")
	if res.Source != "rules" {
		t.Fatalf("off-vocabulary action must degrade to rules: %+v", res)
	}
	if res.Action != ActionSaveContent {
		t.Fatalf("rules tier must still resolve the text: %+v", res)
	}
}

func TestClassify_LLMTierRejectsGarbage(t *testing.T) {
	for _, out := range []string{"claro! vou salvar isso pra você", "{broken json", ""} {
		c := NewClassifier(nil, scriptedLLM{out: out})
		res := c.Classify(context.Background(), "apaga tudo")
		if res.Source != "rules" || res.Action != ActionDeleteAll {
			t.Fatalf("garbage %q must degrade to rules: %+v", out, res)
		}
	}
}

func TestClassify_LLMErrorDegrades(t *testing.T) {
	c := NewClassifier(nil, scriptedLLM{err: errors.New("upstream 500")})
	res := c.Classify(context.Background(), "sim")
	if res.Source != "rules" || res.Action != ActionConfirm {
		t.Fatalf("LLM failure must degrade to rules: %+v", res)
	}
}

func TestClassify_ClampsConfidence(t *testing.T) {
	c := NewClassifier(nil, scriptedLLM{out: `{"intent": "casual", "action": "casual_chat", "confidence": 7.5}`})
	res := c.Classify(context.Background(), "oi")
	if res.Confidence != 1 {
		t.Fatalf("confidence must be clamped to [0,1]: %+v", res)
	}
}
