package llm

import (
	"testing"

	"google.golang.org/genai"
)

func TestGeminiHistory_Roles(t *testing.T) {
	turns := []Turn{
		{Role: "user", Content: "salva o filme Matrix"},
		{Role: "assistant", Content: "Qual deles?"},
		{Role: "user", Content: "o primeiro"},
	}
	contents := geminiHistory(turns)
	if len(contents) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(contents))
	}
	wantRoles := []genai.Role{genai.RoleUser, genai.RoleModel, genai.RoleUser}
	for i, c := range contents {
		if genai.Role(c.Role) != wantRoles[i] {
			t.Errorf("turn %d: want role %q, got %q", i, wantRoles[i], c.Role)
		}
	}
	if len(contents[0].Parts) != 1 || contents[0].Parts[0].Text != "salva o filme Matrix" {
		t.Fatalf("turn content must carry through: %+v", contents[0].Parts)
	}
}

func TestGeminiHistory_EmptyGetsPlaceholder(t *testing.T) {
	contents := geminiHistory(nil)
	if len(contents) != 1 {
		t.Fatalf("empty history must yield one placeholder turn, got %d", len(contents))
	}
	if genai.Role(contents[0].Role) != genai.RoleUser {
		t.Fatalf("placeholder must be a user turn: %q", contents[0].Role)
	}
}
