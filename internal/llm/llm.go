// Package llm provides the language-model capability consumed by the intent
// classifier and the planner: a single Complete(prompt, history) -> text
// contract with interchangeable backends (OpenAI-compatible gateway, Gemini).
// The model never drives control flow; callers parse its output through
// strict schemas and fall back deterministically on any mismatch.
package llm

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// Turn is one prior exchange supplied as conversation history.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Request is a completion request. Prompt is the instruction; History is the
// recent transcript, oldest first.
type Request struct {
	Prompt  string
	History []Turn
}

// Client is the minimal LLM capability.
type Client interface {
	// Complete returns the raw model text for the request.
	Complete(ctx context.Context, req Request) (string, error)
}

// ErrUnavailable is returned when no backend is configured.
var ErrUnavailable = errors.New("llm: no backend configured")

// Unavailable is a Client that always fails. Wiring uses it when neither
// backend is configured so the cascade degrades to the rule tier.
type Unavailable struct{}

// Complete always returns ErrUnavailable.
func (Unavailable) Complete(context.Context, Request) (string, error) {
	return "", ErrUnavailable
}

// reasoning wrapper tags some models emit around their final answer.
var (
	thinkTagRE = regexp.MustCompile(`(?s)<(think|thinking|reasoning)>.*?</(think|thinking|reasoning)>`)
	fenceRE    = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
)

// ExtractJSON strips reasoning-model wrapper tags and markdown fences, then
// returns the first top-level JSON object in the text. An empty string means
// no object was found.
func ExtractJSON(raw string) string {
	s := thinkTagRE.ReplaceAllString(raw, "")
	if m := fenceRE.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
