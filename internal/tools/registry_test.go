package tools

import (
	"strings"
	"testing"
)

func TestRegistry_LookupAndToggle(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Lookup("nope"); err != ErrUnknownTool {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
	if !r.IsEnabled(ToolSaveMovie) {
		t.Fatal("built-in tools start enabled")
	}

	if err := r.SetEnabled(ToolSaveMovie, false); err != nil {
		t.Fatalf("disable user tool: %v", err)
	}
	if r.IsEnabled(ToolSaveMovie) {
		t.Fatal("disable did not stick")
	}
	if err := r.SetEnabled(ToolSaveMovie, true); err != nil || !r.IsEnabled(ToolSaveMovie) {
		t.Fatalf("re-enable: %v", err)
	}

	if err := r.SetEnabled(ToolDeleteAllMemories, false); err != ErrSystemTool {
		t.Fatalf("system tools must reject toggling, got %v", err)
	}
	if err := r.SetEnabled("nope", false); err != ErrUnknownTool {
		t.Fatalf("unknown tool toggle: %v", err)
	}
}

func TestNewRegistry_DisabledSeed(t *testing.T) {
	r := NewRegistry(ToolSaveVideo, ToolDeleteAllMemories, "nope")

	if r.IsEnabled(ToolSaveVideo) {
		t.Fatal("seeded user tool must start disabled")
	}
	// System tools and unknown names in the seed are ignored.
	if !r.IsEnabled(ToolDeleteAllMemories) {
		t.Fatal("system tools cannot be seeded off")
	}
}

func TestEnabledSaveTools_MenuOrder(t *testing.T) {
	r := NewRegistry()

	names := func() []string {
		var out []string
		for _, tool := range r.EnabledSaveTools() {
			out = append(out, tool.Name)
		}
		return out
	}

	want := []string{ToolSaveNote, ToolSaveMovie, ToolSaveTVShow, ToolSaveVideo, ToolSaveLink}
	got := names()
	if len(got) != len(want) {
		t.Fatalf("expected full menu, got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("menu order broken: want %v, got %v", want, got)
		}
	}

	// Disabling a save tool removes its menu entry, order intact.
	_ = r.SetEnabled(ToolSaveVideo, false)
	got = names()
	if len(got) != 4 || got[3] != ToolSaveLink {
		t.Fatalf("disabled tool must drop out of the menu: %v", got)
	}
}

func TestDescribe_ListsOnlyEnabled(t *testing.T) {
	r := NewRegistry()
	_ = r.SetEnabled(ToolSaveLink, false)

	desc := r.Describe()
	if strings.Contains(desc, ToolSaveLink+":") {
		t.Fatalf("disabled tool must not appear in the planner listing:\n%s", desc)
	}
	if !strings.Contains(desc, ToolSaveMovie+":") {
		t.Fatalf("enabled tool missing from listing:\n%s", desc)
	}
}
