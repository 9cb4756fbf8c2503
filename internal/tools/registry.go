// Package tools implements the assistant's capability layer: a closed set of
// named tools, a registry with runtime enable/disable, and an executor that
// runs a tool against the persistence and enrichment backends. The
// orchestrator never touches the database for user actions directly; it goes
// through a tool.
package tools

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

// Tool kinds. System tools are always available to the engine; user tools can
// be toggled at runtime and drive the dynamic clarification menu.
const (
	KindSystem = "system"
	KindUser   = "user"
)

// Tool describes one registered capability.
type Tool struct {
	Name        string
	Description string
	Kind        string
	// SaveType is set on save_* tools: the item type the tool persists.
	// It feeds the clarification menu.
	SaveType string
}

// Registry errors.
var (
	ErrUnknownTool  = errors.New("unknown tool")
	ErrToolDisabled = errors.New("tool disabled")
	ErrSystemTool   = errors.New("system tools cannot be toggled")
)

// Registry holds the closed tool set with an enabled/disabled bit per tool.
// Tools outside the set can never be executed, whatever the planner asks for.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	enabled map[string]bool
}

// NewRegistry builds a registry pre-populated with the built-in tool set.
// Every tool starts enabled except the ones named in disabled.
func NewRegistry(disabled ...string) *Registry {
	r := &Registry{
		tools:   make(map[string]Tool),
		enabled: make(map[string]bool),
	}
	for _, t := range builtinTools {
		r.tools[t.Name] = t
		r.enabled[t.Name] = true
	}
	for _, name := range disabled {
		if t, ok := r.tools[name]; ok && t.Kind == KindUser {
			r.enabled[name] = false
		}
	}
	return r
}

// Lookup returns the tool definition, or ErrUnknownTool.
func (r *Registry) Lookup(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[strings.TrimSpace(name)]
	if !ok {
		return Tool{}, ErrUnknownTool
	}
	return t, nil
}

// IsEnabled reports whether the named tool exists and is enabled.
func (r *Registry) IsEnabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled[name]
}

// SetEnabled toggles a user tool at runtime. System tools reject toggling.
func (r *Registry) SetEnabled(name string, on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tools[name]
	if !ok {
		return ErrUnknownTool
	}
	if t.Kind == KindSystem {
		return ErrSystemTool
	}
	r.enabled[name] = on
	return nil
}

// Enabled returns the names of all enabled tools, sorted.
func (r *Registry) Enabled() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.enabled))
	for name, on := range r.enabled {
		if on {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// EnabledSaveTools returns the enabled save_* tools in menu order. The
// clarification menu offers exactly these choices, so disabling a save tool
// removes its option from the dialogue.
func (r *Registry) EnabledSaveTools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, 5)
	for _, name := range saveMenuOrder {
		if t, ok := r.tools[name]; ok && r.enabled[name] {
			out = append(out, t)
		}
	}
	return out
}

// Describe renders a one-line-per-tool listing of the enabled tools, used to
// build the planner prompt.
func (r *Registry) Describe() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name, on := range r.enabled {
		if on {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		b.WriteString("- ")
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(r.tools[name].Description)
		b.WriteString("\n")
	}
	return b.String()
}

// saveMenuOrder fixes the clarification menu ordering.
var saveMenuOrder = []string{
	ToolSaveNote, ToolSaveMovie, ToolSaveTVShow, ToolSaveVideo, ToolSaveLink,
}

// Built-in tool names.
const (
	ToolSaveNote          = "save_note"
	ToolSaveMovie         = "save_movie"
	ToolSaveTVShow        = "save_tv_show"
	ToolSaveVideo         = "save_video"
	ToolSaveLink          = "save_link"
	ToolSearchItems       = "search_items"
	ToolEnrichMovie       = "enrich_movie"
	ToolEnrichTVShow      = "enrich_tv_show"
	ToolEnrichVideo       = "enrich_video"
	ToolDeleteMemory      = "delete_memory"
	ToolDeleteAllMemories = "delete_all_memories"
	ToolGetAssistantName  = "get_assistant_name"
	ToolUpdateSettings    = "update_user_settings"
	ToolMemorySearch      = "memory_search"
	ToolMemoryGet         = "memory_get"
	ToolDailyLogSearch    = "daily_log_search"
	ToolCalendarCreate    = "calendar_create"
	ToolTodoCreate        = "todo_create"
	ToolReminderCreate    = "reminder_create"
)

var builtinTools = []Tool{
	{Name: ToolSaveNote, Kind: KindUser, SaveType: "note", Description: "salva uma nota de texto"},
	{Name: ToolSaveMovie, Kind: KindUser, SaveType: "movie", Description: "salva um filme na lista"},
	{Name: ToolSaveTVShow, Kind: KindUser, SaveType: "tv_show", Description: "salva uma série na lista"},
	{Name: ToolSaveVideo, Kind: KindUser, SaveType: "video", Description: "salva um vídeo para ver depois"},
	{Name: ToolSaveLink, Kind: KindUser, SaveType: "link", Description: "salva um link"},
	{Name: ToolSearchItems, Kind: KindSystem, Description: "lista itens salvos, com filtro opcional por tipo"},
	{Name: ToolEnrichMovie, Kind: KindSystem, Description: "busca candidatos de filme no catálogo"},
	{Name: ToolEnrichTVShow, Kind: KindSystem, Description: "busca candidatos de série no catálogo"},
	{Name: ToolEnrichVideo, Kind: KindSystem, Description: "busca metadados de vídeo"},
	{Name: ToolDeleteMemory, Kind: KindSystem, Description: "apaga um item salvo pelo id"},
	{Name: ToolDeleteAllMemories, Kind: KindSystem, Description: "apaga todos os itens salvos do usuário"},
	{Name: ToolGetAssistantName, Kind: KindSystem, Description: "informa o nome do assistente"},
	{Name: ToolUpdateSettings, Kind: KindSystem, Description: "atualiza preferências do usuário (nome do assistente)"},
	{Name: ToolMemorySearch, Kind: KindSystem, Description: "busca itens salvos por similaridade de texto"},
	{Name: ToolMemoryGet, Kind: KindSystem, Description: "recupera um item salvo pelo id"},
	{Name: ToolDailyLogSearch, Kind: KindSystem, Description: "busca no histórico de conversas por texto e dia"},
	{Name: ToolCalendarCreate, Kind: KindUser, Description: "cria um evento de agenda"},
	{Name: ToolTodoCreate, Kind: KindUser, Description: "cria uma tarefa"},
	{Name: ToolReminderCreate, Kind: KindUser, Description: "cria um lembrete"},
}
