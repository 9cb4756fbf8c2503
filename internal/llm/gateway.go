// OpenAI-compatible gateway backend (Cloudflare AI Gateway shape).
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Gateway is a Client speaking the chat-completions protocol against any
// OpenAI-compatible endpoint.
type Gateway struct {
	url    string
	apiKey string
	model  string
	client *http.Client
}

// NewGateway constructs a gateway client. url is the full chat-completions
// endpoint; timeout bounds each call.
func NewGateway(url, apiKey, model string, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Gateway{
		url:    strings.TrimRight(url, "/"),
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends the prompt as a system message followed by the history and
// returns the first choice's content.
func (g *Gateway) Complete(ctx context.Context, req Request) (string, error) {
	msgs := make([]chatMessage, 0, len(req.History)+1)
	msgs = append(msgs, chatMessage{Role: "system", Content: req.Prompt})
	for _, t := range req.History {
		role := t.Role
		if role != "user" && role != "assistant" {
			role = "user"
		}
		msgs = append(msgs, chatMessage{Role: role, Content: t.Content})
	}
	if len(req.History) == 0 {
		// Chat-completions endpoints require at least one user turn.
		msgs = append(msgs, chatMessage{Role: "user", Content: "…"})
	}

	body, err := json.Marshal(chatRequest{Model: g.model, Messages: msgs})
	if err != nil {
		return "", fmt.Errorf("llm gateway: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("llm gateway: call: %w", err)
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("llm gateway: decode response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("llm gateway: %s", out.Error.Message)
	}
	if resp.StatusCode >= 300 || len(out.Choices) == 0 {
		return "", fmt.Errorf("llm gateway: status %d with no choices", resp.StatusCode)
	}
	return out.Choices[0].Message.Content, nil
}
