package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/psousaj/nexo-ai-sub000/internal/domain"
	"github.com/psousaj/nexo-ai-sub000/internal/enrich"
	"github.com/psousaj/nexo-ai-sub000/internal/repo"
	"github.com/psousaj/nexo-ai-sub000/internal/search"
)

// ToolContext identifies who is acting and over which conversation. Every
// execution is scoped to one user; tools can never touch another user's data.
type ToolContext struct {
	UserID         string
	ConversationID string
	Provider       string
	ExternalID     string
}

// Result is the uniform tool outcome. Message is user-facing Portuguese text;
// Data carries structured output for the orchestrator (candidates, items,
// counts). A failed execution sets Success=false and Err.
type Result struct {
	Success bool
	Message string
	Data    map[string]any
	Err     string
}

func okResult(msg string, data map[string]any) Result {
	return Result{Success: true, Message: msg, Data: data}
}

func failResult(msg string, err error) Result {
	r := Result{Success: false, Message: msg}
	if err != nil {
		r.Err = err.Error()
	}
	return r
}

// Executor runs tools against the database and enrichment backends.
type Executor struct {
	db           *gorm.DB
	registry     *Registry
	searcher     enrich.Searcher
	candidateCap int
}

// NewExecutor wires the executor. A nil searcher degrades enrichment tools to
// "no candidates". candidateCap bounds every candidate list a tool returns.
func NewExecutor(db *gorm.DB, reg *Registry, searcher enrich.Searcher, candidateCap int) *Executor {
	if searcher == nil {
		searcher = enrich.Noop{}
	}
	if candidateCap <= 0 {
		candidateCap = 7
	}
	return &Executor{db: db, registry: reg, searcher: searcher, candidateCap: candidateCap}
}

// Registry exposes the tool registry, letting the orchestrator build menus
// and planner prompts from the same source of truth.
func (e *Executor) Registry() *Registry { return e.registry }

// Execute runs one named tool. Unknown and disabled tools fail without side
// effects; tools validate their own args and fail on what they cannot use.
func (e *Executor) Execute(ctx context.Context, name string, tc ToolContext, args map[string]any) Result {
	tool, err := e.registry.Lookup(name)
	if err != nil {
		return failResult("Essa ferramenta não existe.", err)
	}
	if !e.registry.IsEnabled(name) {
		return failResult("Essa ferramenta está desativada no momento.", ErrToolDisabled)
	}
	if strings.TrimSpace(tc.UserID) == "" {
		return failResult("Não consegui identificar o usuário.", fmt.Errorf("tools: empty user id"))
	}
	if args == nil {
		args = map[string]any{}
	}

	var res Result
	switch name {
	case ToolSaveNote, ToolSaveMovie, ToolSaveTVShow, ToolSaveVideo, ToolSaveLink:
		res = e.saveItem(ctx, tc, domain.ItemType(tool.SaveType), args)
	case ToolSearchItems:
		res = e.searchItems(ctx, tc, args)
	case ToolEnrichMovie:
		res = e.enrichCatalog(ctx, args, domain.ItemMovie)
	case ToolEnrichTVShow:
		res = e.enrichCatalog(ctx, args, domain.ItemTVShow)
	case ToolEnrichVideo:
		res = e.enrichVideo(args)
	case ToolDeleteMemory:
		res = e.deleteMemory(ctx, tc, args)
	case ToolDeleteAllMemories:
		res = e.deleteAll(ctx, tc)
	case ToolGetAssistantName:
		res = e.assistantName(ctx, tc)
	case ToolUpdateSettings:
		res = e.updateSettings(ctx, tc, args)
	case ToolMemorySearch:
		res = e.memorySearch(ctx, tc, args)
	case ToolMemoryGet:
		res = e.memoryGet(ctx, tc, args)
	case ToolDailyLogSearch:
		res = e.dailyLogSearch(ctx, tc, args)
	case ToolCalendarCreate, ToolTodoCreate, ToolReminderCreate:
		res = failResult("Ainda não sei fazer isso, mas está no meu roadmap!", fmt.Errorf("tools: %s not implemented", name))
	default:
		res = failResult("Essa ferramenta não existe.", ErrUnknownTool)
	}

	if !res.Success {
		log.Warn().Str("tool", name).Str("user_id", tc.UserID).Str("error", res.Err).Msg("tool execution failed")
	} else {
		log.Debug().Str("tool", name).Str("user_id", tc.UserID).Msg("tool executed")
	}
	return res
}

func (e *Executor) saveItem(ctx context.Context, tc ToolContext, itemType domain.ItemType, args map[string]any) Result {
	title := strings.TrimSpace(argString(args, "title"))
	content := strings.TrimSpace(argString(args, "content"))
	if title == "" {
		title = firstLine(content, 120)
	}
	if title == "" {
		return failResult("Preciso de um título ou conteúdo para salvar.", fmt.Errorf("tools: save without title"))
	}

	if dup, err := repo.FindDuplicateItem(ctx, e.db, tc.UserID, itemType, title); err == nil && dup != nil {
		return okResult(
			fmt.Sprintf("Você já tinha salvado %q. Deixei como estava.", dup.Title),
			map[string]any{"item_id": dup.ID, "duplicate": true},
		)
	} else if err != nil && err != gorm.ErrRecordNotFound {
		return failResult("Não consegui salvar agora, tenta de novo?", err)
	}

	item := &domain.MemoryItem{
		UserID:  tc.UserID,
		Type:    itemType,
		Title:   title,
		Content: content,
		URL:     strings.TrimSpace(argString(args, "url")),
	}
	if meta, ok := args["metadata"]; ok {
		if b, err := json.Marshal(meta); err == nil {
			item.Metadata = string(b)
		}
	}

	saved, err := repo.CreateItem(ctx, e.db, item)
	if err != nil {
		return failResult("Não consegui salvar agora, tenta de novo?", err)
	}
	return okResult(
		fmt.Sprintf("Salvei %q ✅", saved.Title),
		map[string]any{"item_id": saved.ID, "type": string(saved.Type)},
	)
}

func (e *Executor) searchItems(ctx context.Context, tc ToolContext, args map[string]any) Result {
	itemType := domain.ItemType(strings.TrimSpace(argString(args, "type")))
	limit := argInt(args, "limit", 20)
	items, err := repo.ListItems(ctx, e.db, tc.UserID, itemType, limit)
	if err != nil {
		return failResult("Não consegui buscar seus itens agora.", err)
	}
	if len(items) == 0 {
		return okResult("Você ainda não salvou nada assim.", map[string]any{"items": []domain.MemoryItem{}})
	}
	return okResult(renderItemList(items), map[string]any{"items": items})
}

func (e *Executor) enrichCatalog(ctx context.Context, args map[string]any, itemType domain.ItemType) Result {
	query := strings.TrimSpace(argString(args, "query"))
	if query == "" {
		return failResult("Preciso do nome para buscar no catálogo.", fmt.Errorf("tools: enrich without query"))
	}
	cands, err := e.searcher.Search(ctx, query, itemType, e.candidateCap)
	if err == enrich.ErrUnconfigured {
		return okResult("", map[string]any{"candidates": []domain.Candidate{}})
	}
	if err != nil {
		return failResult("O catálogo não respondeu agora.", err)
	}
	if len(cands) > e.candidateCap {
		cands = cands[:e.candidateCap]
	}
	return okResult("", map[string]any{"candidates": cands})
}

// enrichVideo has no external catalog; it shapes the query (and URL, when
// present) into a single synthetic candidate so the confirmation flow stays
// uniform across item types.
func (e *Executor) enrichVideo(args map[string]any) Result {
	query := strings.TrimSpace(argString(args, "query"))
	if query == "" {
		return failResult("Preciso do nome ou link do vídeo.", fmt.Errorf("tools: enrich without query"))
	}
	c := domain.Candidate{Title: query}
	return okResult("", map[string]any{"candidates": []domain.Candidate{c}})
}

func (e *Executor) deleteMemory(ctx context.Context, tc ToolContext, args map[string]any) Result {
	id := strings.TrimSpace(argString(args, "item_id"))
	if id == "" {
		return failResult("Preciso saber qual item apagar.", fmt.Errorf("tools: delete without item_id"))
	}
	if err := repo.DeleteItem(ctx, e.db, tc.UserID, id); err != nil {
		if err == gorm.ErrRecordNotFound {
			return failResult("Não achei esse item.", err)
		}
		return failResult("Não consegui apagar agora.", err)
	}
	return okResult("Apagado ✅", map[string]any{"item_id": id})
}

func (e *Executor) deleteAll(ctx context.Context, tc ToolContext) Result {
	n, err := repo.DeleteAllItems(ctx, e.db, tc.UserID)
	if err != nil {
		return failResult("Não consegui apagar agora.", err)
	}
	if n == 0 {
		return okResult("Você não tinha nada salvo.", map[string]any{"deleted": int64(0)})
	}
	return okResult(fmt.Sprintf("Pronto, apaguei %d itens.", n), map[string]any{"deleted": n})
}

func (e *Executor) assistantName(ctx context.Context, tc ToolContext) Result {
	s, err := repo.GetSettings(ctx, e.db, tc.UserID)
	if err != nil {
		return failResult("Não consegui consultar suas preferências.", err)
	}
	return okResult(
		fmt.Sprintf("Meu nome é %s! 👋", s.AssistantName),
		map[string]any{"assistant_name": s.AssistantName, "language": s.Language},
	)
}

func (e *Executor) updateSettings(ctx context.Context, tc ToolContext, args map[string]any) Result {
	name := strings.TrimSpace(argString(args, "assistant_name"))
	if name == "" {
		return failResult("Qual nome você quer me dar?", fmt.Errorf("tools: update settings without assistant_name"))
	}
	if err := repo.UpdateAssistantName(ctx, e.db, tc.UserID, name); err != nil {
		return failResult("Não consegui mudar meu nome agora.", err)
	}
	return okResult(fmt.Sprintf("Pode me chamar de %s a partir de agora!", name), map[string]any{"assistant_name": name})
}

func (e *Executor) memorySearch(ctx context.Context, tc ToolContext, args map[string]any) Result {
	query := strings.TrimSpace(argString(args, "query"))
	if query == "" {
		return failResult("O que você quer procurar?", fmt.Errorf("tools: memory_search without query"))
	}
	items, err := repo.ListItems(ctx, e.db, tc.UserID, "", 200)
	if err != nil {
		return failResult("Não consegui buscar seus itens agora.", err)
	}
	entries := make([]search.Entry, 0, len(items))
	byID := make(map[string]domain.MemoryItem, len(items))
	for _, it := range items {
		entries = append(entries, search.Entry{Ref: it.ID, Text: it.Title + " " + it.Content})
		byID[it.ID] = it
	}
	ranked := search.NewIndex(entries).TopK(query, argInt(args, "limit", 5))
	if len(ranked) == 0 {
		return okResult("Não achei nada parecido com isso.", map[string]any{"items": []domain.MemoryItem{}})
	}
	matched := make([]domain.MemoryItem, 0, len(ranked))
	for _, r := range ranked {
		matched = append(matched, byID[r.Ref])
	}
	return okResult(renderItemList(matched), map[string]any{"items": matched})
}

func (e *Executor) memoryGet(ctx context.Context, tc ToolContext, args map[string]any) Result {
	id := strings.TrimSpace(argString(args, "item_id"))
	if id == "" {
		return failResult("Preciso do id do item.", fmt.Errorf("tools: memory_get without item_id"))
	}
	item, err := repo.GetItem(ctx, e.db, tc.UserID, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return failResult("Não achei esse item.", err)
		}
		return failResult("Não consegui buscar esse item agora.", err)
	}
	msg := fmt.Sprintf("%s (%s)", item.Title, itemTypeLabel(item.Type))
	if item.Content != "" {
		msg += "\n" + item.Content
	}
	if item.URL != "" {
		msg += "\n" + item.URL
	}
	return okResult(msg, map[string]any{"item": item})
}

func (e *Executor) dailyLogSearch(ctx context.Context, tc ToolContext, args map[string]any) Result {
	query := strings.TrimSpace(argString(args, "query"))
	day := strings.TrimSpace(argString(args, "day"))
	if query == "" && day == "" {
		return failResult("Me diz um texto ou uma data para procurar.", fmt.Errorf("tools: daily_log_search without filters"))
	}
	msgs, err := repo.SearchTranscript(ctx, e.db, tc.UserID, query, day, argInt(args, "limit", 10))
	if err != nil {
		return failResult("Não consegui buscar no histórico agora.", err)
	}
	if len(msgs) == 0 {
		return okResult("Não achei nada no histórico.", map[string]any{"messages": []domain.Message{}})
	}
	var b strings.Builder
	b.WriteString("Achei isso no histórico:\n")
	for _, m := range msgs {
		b.WriteString("• ")
		b.WriteString(m.CreatedAt.Format("02/01"))
		b.WriteString(" — ")
		b.WriteString(firstLine(m.Content, 100))
		b.WriteString("\n")
	}
	return okResult(strings.TrimRight(b.String(), "\n"), map[string]any{"messages": msgs})
}

// ---- helpers ----

func argString(args map[string]any, key string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func argInt(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func firstLine(s string, maxRunes int) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	r := []rune(s)
	if len(r) > maxRunes {
		return strings.TrimSpace(string(r[:maxRunes-1])) + "…"
	}
	return s
}

func itemTypeLabel(t domain.ItemType) string {
	switch t {
	case domain.ItemNote:
		return "nota"
	case domain.ItemMovie:
		return "filme"
	case domain.ItemTVShow:
		return "série"
	case domain.ItemVideo:
		return "vídeo"
	case domain.ItemLink:
		return "link"
	}
	return string(t)
}

func renderItemList(items []domain.MemoryItem) string {
	var b strings.Builder
	b.WriteString("Aqui está o que encontrei:\n")
	for _, it := range items {
		b.WriteString("• ")
		b.WriteString(it.Title)
		b.WriteString(" (")
		b.WriteString(itemTypeLabel(it.Type))
		b.WriteString(")\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
