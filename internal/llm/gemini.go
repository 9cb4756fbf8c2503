// Gemini backend over the google genai SDK.
package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Gemini is a Client backed by the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini constructs a Gemini client for the given model.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("llm gemini: new client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// geminiHistory maps transcript turns onto alternating content turns. The
// API rejects an empty contents list, so no history becomes one placeholder
// user turn.
func geminiHistory(history []Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, t := range history {
		role := genai.Role(genai.RoleUser)
		if t.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Content, role))
	}
	if len(contents) == 0 {
		contents = append(contents, genai.NewContentFromText("…", genai.RoleUser))
	}
	return contents
}

// Complete sends the prompt as the system instruction with the history as
// alternating content turns.
func (g *Gemini) Complete(ctx context.Context, req Request) (string, error) {
	contents := geminiHistory(req.History)

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.Prompt, genai.RoleUser),
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("llm gemini: generate: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("llm gemini: empty response")
	}
	return text, nil
}
