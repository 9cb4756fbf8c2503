// State machine flow handlers: clarification, candidate confirmation, final
// confirmation, batch saves, off-topic chat, and button callbacks.
package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/psousaj/nexo-ai-sub000/internal/domain"
	"github.com/psousaj/nexo-ai-sub000/internal/intent"
	"github.com/psousaj/nexo-ai-sub000/internal/llm"
	"github.com/psousaj/nexo-ai-sub000/internal/provider"
	"github.com/psousaj/nexo-ai-sub000/internal/repo"
	"github.com/psousaj/nexo-ai-sub000/internal/tools"
)

const replyYesNo = "Só me confirma: é esse? (sim/não)"

// ---- save flows ----

// startSave begins persisting one item. Catalog types (movie, tv show) go
// through enrichment and its confirmation protocol; everything else saves
// directly.
func (o *Orchestrator) startSave(ctx context.Context, p provider.MessagingProvider, in *provider.IncomingMessage, conv *domain.Conversation, query string, itemType domain.ItemType, url string) error {
	tc := o.toolContext(in, conv)

	if !catalogType(itemType) {
		args := map[string]any{"title": query}
		if url != "" {
			args["url"] = url
			if query == "" {
				args["title"] = url
			}
		}
		r := o.exec.Execute(ctx, saveToolForType(itemType), tc, args)
		return o.finishWithResult(ctx, p, in, conv, r)
	}

	r := o.exec.Execute(ctx, enrichToolForType(itemType), tc, map[string]any{"query": query})
	if !r.Success {
		return o.finishWithResult(ctx, p, in, conv, r)
	}
	cands := extractCandidates(r)
	if len(cands) > o.cfg.CandidateCap {
		cands = cands[:o.cfg.CandidateCap]
	}

	switch len(cands) {
	case 0:
		// No catalog match: save as typed, without enrichment.
		sr := o.exec.Execute(ctx, saveToolForType(itemType), tc, map[string]any{"title": query})
		if !sr.Success {
			return o.finishWithResult(ctx, p, in, conv, sr)
		}
		return o.finishIdle(ctx, p, in, conv, replySavedPlain, nil)

	case 1:
		sel := cands[0]
		updated, err := repo.MergeConversation(ctx, o.db, conv.ID, func(c *domain.Conversation, cc *domain.ConvContext) {
			c.State = domain.StateAwaitingFinal
			cc.Candidates = cands
			cc.CandidateType = itemType
			cc.PendingQuery = query
			cc.Selected = &sel
		})
		if err != nil {
			return err
		}
		*conv = *updated
		return o.presentSelected(ctx, p, in, conv, sel)

	default:
		updated, err := repo.MergeConversation(ctx, o.db, conv.ID, func(c *domain.Conversation, cc *domain.ConvContext) {
			c.State = domain.StateAwaitingConfirm
			cc.Candidates = cands
			cc.CandidateType = itemType
			cc.PendingQuery = query
			cc.Selected = nil
		})
		if err != nil {
			return err
		}
		*conv = *updated
		text, buttons := candidateList(query, cands)
		return o.reply(ctx, p, in, conv, text, buttons)
	}
}

// presentSelected sends the final confirmation card, poster first when the
// candidate has one.
func (o *Orchestrator) presentSelected(ctx context.Context, p provider.MessagingProvider, in *provider.IncomingMessage, conv *domain.Conversation, sel domain.Candidate) error {
	if sel.PosterURL != "" {
		if err := p.SendPhoto(ctx, in.ExternalID, sel.PosterURL, sel.Title); err != nil {
			log.Warn().Err(err).Msg("poster send failed")
		}
	}
	text, buttons := candidateDetails(sel)
	return o.reply(ctx, p, in, conv, text, buttons)
}

// savePrevious resolves "save that" against the previous user turn.
func (o *Orchestrator) savePrevious(ctx context.Context, p provider.MessagingProvider, in *provider.IncomingMessage, conv *domain.Conversation, itemType domain.ItemType) error {
	msgs, err := repo.ListRecentMessages(ctx, o.db, conv.ID, 10)
	if err != nil {
		return fmt.Errorf("agent: load history: %w", err)
	}
	// The newest user row is the back-reference itself; the one before it is
	// the content.
	var prev *domain.Message
	skippedCurrent := false
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != domain.RoleUser {
			continue
		}
		if !skippedCurrent {
			skippedCurrent = true
			continue
		}
		prev = &msgs[i]
		break
	}
	if prev == nil {
		return o.finishIdle(ctx, p, in, conv, replyNoPrevious, nil)
	}
	if itemType == "" {
		itemType = domain.ItemNote
		if u := firstURLIn(prev.Content); u != "" {
			itemType = domain.ItemLink
		}
	}
	if catalogType(itemType) {
		return o.startSave(ctx, p, in, conv, prev.Content, itemType, "")
	}
	args := map[string]any{"title": prev.Content, "content": prev.Content}
	if u := firstURLIn(prev.Content); u != "" {
		args["url"] = u
	}
	r := o.exec.Execute(ctx, saveToolForType(itemType), o.toolContext(in, conv), args)
	return o.finishWithResult(ctx, p, in, conv, r)
}

// deleteByTitle finds the closest saved item to the target text and deletes
// it.
func (o *Orchestrator) deleteByTitle(ctx context.Context, p provider.MessagingProvider, in *provider.IncomingMessage, conv *domain.Conversation, target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return o.finishIdle(ctx, p, in, conv, "Qual item você quer apagar?", nil)
	}
	tc := o.toolContext(in, conv)
	r := o.exec.Execute(ctx, tools.ToolMemorySearch, tc, map[string]any{"query": target, "limit": 1})
	items, _ := r.Data["items"].([]domain.MemoryItem)
	if !r.Success || len(items) == 0 {
		return o.finishIdle(ctx, p, in, conv, "Não achei nenhum item parecido com isso.", nil)
	}
	dr := o.exec.Execute(ctx, tools.ToolDeleteMemory, tc, map[string]any{"item_id": items[0].ID})
	if !dr.Success {
		return o.finishWithResult(ctx, p, in, conv, dr)
	}
	return o.finishIdle(ctx, p, in, conv, fmt.Sprintf("Apaguei %q ✅", items[0].Title), nil)
}

// ---- clarification flow (awaiting_context) ----

// askClarification parks the pending content and offers the type menu built
// from the enabled save tools.
func (o *Orchestrator) askClarification(ctx context.Context, p provider.MessagingProvider, in *provider.IncomingMessage, conv *domain.Conversation, pending string, attempts int) error {
	menu := o.exec.Registry().EnabledSaveTools()
	if len(menu) == 0 {
		return o.finishIdle(ctx, p, in, conv, replyFallback, nil)
	}
	updated, err := repo.MergeConversation(ctx, o.db, conv.ID, func(c *domain.Conversation, cc *domain.ConvContext) {
		c.State = domain.StateAwaitingContext
		cc.PendingContent = pending
		cc.ClarifyAttempts = attempts
	})
	if err != nil {
		return err
	}
	*conv = *updated
	text, buttons := clarifyMenu(pending, menu)
	return o.reply(ctx, p, in, conv, text, buttons)
}

func (o *Orchestrator) handleClarify(ctx context.Context, p provider.MessagingProvider, in *provider.IncomingMessage, conv *domain.Conversation, res intent.Result, depth int) error {
	cc := domain.ParseContext(conv.Context)
	menu := o.exec.Registry().EnabledSaveTools()
	cancelIdx := len(menu) + 1

	if res.Action == intent.ActionDeny {
		return o.finishIdle(ctx, p, in, conv, replyCancelled, nil)
	}

	if sels := res.Entities.Selections; len(sels) > 0 {
		n := sels[0]
		if n == cancelIdx {
			return o.finishIdle(ctx, p, in, conv, replyCancelled, nil)
		}
		if n >= 1 && n <= len(menu) {
			return o.startSave(ctx, p, in, conv, cc.PendingContent, domain.ItemType(menu[n-1].SaveType), firstURLIn(cc.PendingContent))
		}
		return o.bumpClarify(ctx, p, in, conv, cc, replyOutOfRange)
	}

	if t := intent.MatchItemType(in.Text); t != "" && o.exec.Registry().IsEnabled(saveToolForType(t)) {
		return o.startSave(ctx, p, in, conv, cc.PendingContent, t, firstURLIn(cc.PendingContent))
	}

	// A fresh question or command breaks out of the menu instead of being
	// force-fit into it.
	if intent.LooksLikeNewRequest(in.Text) {
		if _, err := o.resetToIdle(ctx, conv); err != nil {
			return err
		}
		return o.dispatch(ctx, p, in, conv, depth+1)
	}

	return o.bumpClarify(ctx, p, in, conv, cc, "")
}

// bumpClarify counts a failed clarification round. At the attempt cap the
// dialogue deflects into off-topic chat instead of looping forever; the
// pending content still saves as a note so it isn't lost.
func (o *Orchestrator) bumpClarify(ctx context.Context, p provider.MessagingProvider, in *provider.IncomingMessage, conv *domain.Conversation, cc domain.ConvContext, prefix string) error {
	attempts := cc.ClarifyAttempts + 1
	if attempts >= o.cfg.MaxClarifyAttempts {
		text := replyClarifyDeflect
		if o.exec.Registry().IsEnabled(tools.ToolSaveNote) && strings.TrimSpace(cc.PendingContent) != "" {
			if r := o.exec.Execute(ctx, tools.ToolSaveNote, o.toolContext(in, conv), map[string]any{"title": cc.PendingContent}); r.Success {
				text = replyGaveUp
			}
		}
		updated, err := repo.MergeConversation(ctx, o.db, conv.ID, func(c *domain.Conversation, inner *domain.ConvContext) {
			c.State = domain.StateOffTopicChat
			inner.ClearTransient()
		})
		if err != nil {
			return err
		}
		*conv = *updated
		if err := o.reply(ctx, p, in, conv, text, nil); err != nil {
			return err
		}
		o.closer.Schedule(conv.ID, o.cfg.AutoCloseDelay)
		return nil
	}
	menu := o.exec.Registry().EnabledSaveTools()
	text, buttons := clarifyMenu(cc.PendingContent, menu)
	if prefix != "" {
		text = prefix + "\n" + text
	}
	updated, err := repo.MergeConversation(ctx, o.db, conv.ID, func(c *domain.Conversation, inner *domain.ConvContext) {
		inner.ClarifyAttempts = attempts
	})
	if err != nil {
		return err
	}
	*conv = *updated
	return o.reply(ctx, p, in, conv, text, buttons)
}

// ---- candidate confirmation flow (awaiting_confirmation) ----

func (o *Orchestrator) handleCandidates(ctx context.Context, p provider.MessagingProvider, in *provider.IncomingMessage, conv *domain.Conversation, res intent.Result, depth int) error {
	cc := domain.ParseContext(conv.Context)

	if res.Action == intent.ActionDeny {
		return o.finishIdle(ctx, p, in, conv, replyCancelled, nil)
	}

	sels := res.Entities.Selections
	if len(sels) == 0 {
		// Not a pick: the reply is a new request or chatter, and either way
		// it goes back through the idle pipeline instead of erroring in-flow.
		return o.reenterIdle(ctx, p, in, conv, depth)
	}

	return o.applySelections(ctx, p, in, conv, cc, sels, depth)
}

// applySelections resolves numeric picks against the stored candidate list:
// 0 saves without details, one pick goes to final confirmation, several picks
// save them all at once. A pick outside the shown list re-enters the idle
// pipeline.
func (o *Orchestrator) applySelections(ctx context.Context, p provider.MessagingProvider, in *provider.IncomingMessage, conv *domain.Conversation, cc domain.ConvContext, sels []int, depth int) error {
	for _, n := range sels {
		if n < 0 || n > len(cc.Candidates) {
			return o.reenterIdle(ctx, p, in, conv, depth)
		}
	}
	tc := o.toolContext(in, conv)

	if len(sels) == 1 && sels[0] == 0 {
		r := o.exec.Execute(ctx, saveToolForType(cc.CandidateType), tc, map[string]any{"title": cc.PendingQuery})
		if !r.Success {
			return o.finishWithResult(ctx, p, in, conv, r)
		}
		return o.finishIdle(ctx, p, in, conv, replySavedPlain, nil)
	}

	if len(sels) == 1 {
		sel := cc.Candidates[sels[0]-1]
		updated, err := repo.MergeConversation(ctx, o.db, conv.ID, func(c *domain.Conversation, inner *domain.ConvContext) {
			c.State = domain.StateAwaitingFinal
			inner.Selected = &sel
		})
		if err != nil {
			return err
		}
		*conv = *updated
		return o.presentSelected(ctx, p, in, conv, sel)
	}

	saved := 0
	for _, n := range sels {
		if n == 0 {
			continue
		}
		c := cc.Candidates[n-1]
		r := o.exec.Execute(ctx, saveToolForType(cc.CandidateType), tc, candidateArgs(c))
		if r.Success {
			saved++
		}
	}
	return o.finishIdle(ctx, p, in, conv, fmt.Sprintf("Salvei %d itens ✅", saved), nil)
}

// ---- final confirmation flow (awaiting_final_confirmation) ----

func (o *Orchestrator) handleFinal(ctx context.Context, p provider.MessagingProvider, in *provider.IncomingMessage, conv *domain.Conversation, res intent.Result, depth int) error {
	switch res.Action {
	case intent.ActionConfirm:
		if len(res.Entities.Selections) > 0 {
			// "1" during final confirmation re-reads as a list pick.
			cc := domain.ParseContext(conv.Context)
			return o.applySelections(ctx, p, in, conv, cc, res.Entities.Selections, depth)
		}
		return o.commitSelected(ctx, p, in, conv)
	case intent.ActionDeny:
		return o.finishIdle(ctx, p, in, conv, replyCancelled, nil)
	}
	if intent.LooksLikeNewRequest(in.Text) {
		if _, err := o.resetToIdle(ctx, conv); err != nil {
			return err
		}
		return o.dispatch(ctx, p, in, conv, depth+1)
	}
	return o.reply(ctx, p, in, conv, replyYesNo, nil)
}

// commitSelected persists the confirmed candidate with its catalog metadata.
// Inside a batch it also advances to the next pending item.
func (o *Orchestrator) commitSelected(ctx context.Context, p provider.MessagingProvider, in *provider.IncomingMessage, conv *domain.Conversation) error {
	cc := domain.ParseContext(conv.Context)
	if cc.Selected == nil {
		return o.finishIdle(ctx, p, in, conv, replyFallback, nil)
	}
	sel := *cc.Selected
	r := o.exec.Execute(ctx, saveToolForType(cc.CandidateType), o.toolContext(in, conv), candidateArgs(sel))
	if !r.Success {
		return o.finishWithResult(ctx, p, in, conv, r)
	}

	if len(cc.Batch) > 0 {
		updated, err := o.markCurrentBatch(ctx, conv, domain.BatchConfirmed)
		if err != nil {
			return err
		}
		*conv = *updated
		return o.advanceBatch(ctx, p, in, conv)
	}

	label := sel.Title
	if sel.Year != "" {
		label += " (" + sel.Year + ")"
	}
	return o.finishIdle(ctx, p, in, conv, fmt.Sprintf("Salvei %s ✅", label), nil)
}

// ---- batch flow (awaiting_batch_item) ----

// startBatch queues a multi-title save and processes the first item.
func (o *Orchestrator) startBatch(ctx context.Context, p provider.MessagingProvider, in *provider.IncomingMessage, conv *domain.Conversation, queries []string, itemType domain.ItemType) error {
	items := make([]domain.BatchItem, 0, len(queries))
	for _, q := range queries {
		items = append(items, domain.BatchItem{Query: q, Type: itemType, Status: domain.BatchPending})
	}
	updated, err := repo.MergeConversation(ctx, o.db, conv.ID, func(c *domain.Conversation, cc *domain.ConvContext) {
		c.State = domain.StateAwaitingBatchItem
		cc.Batch = items
		cc.CandidateType = itemType
	})
	if err != nil {
		return err
	}
	*conv = *updated
	if err := o.reply(ctx, p, in, conv, fmt.Sprintf("Beleza, vamos salvar %d itens! 🎬", len(items)), nil); err != nil {
		return err
	}
	return o.advanceBatch(ctx, p, in, conv)
}

// advanceBatch processes pending items until one needs user input or the
// batch is exhausted. Single-match items resolve without asking.
func (o *Orchestrator) advanceBatch(ctx context.Context, p provider.MessagingProvider, in *provider.IncomingMessage, conv *domain.Conversation) error {
	tc := o.toolContext(in, conv)
	for {
		cc := domain.ParseContext(conv.Context)
		i := cc.NextPendingBatch()
		if i < 0 {
			confirmed, skipped := cc.BatchCounts()
			return o.finishIdle(ctx, p, in, conv, fmt.Sprintf(replyBatchDone, confirmed, skipped), nil)
		}
		item := cc.Batch[i]

		updated, err := repo.MergeConversation(ctx, o.db, conv.ID, func(c *domain.Conversation, inner *domain.ConvContext) {
			inner.Batch[i].Status = domain.BatchProcessing
			inner.PendingQuery = item.Query
			inner.Candidates = nil
			inner.Selected = nil
		})
		if err != nil {
			return err
		}
		*conv = *updated

		r := o.exec.Execute(ctx, enrichToolForType(item.Type), tc, map[string]any{"query": item.Query})
		cands := extractCandidates(r)
		if len(cands) > o.cfg.CandidateCap {
			cands = cands[:o.cfg.CandidateCap]
		}

		switch len(cands) {
		case 0:
			sr := o.exec.Execute(ctx, saveToolForType(item.Type), tc, map[string]any{"title": item.Query})
			status := domain.BatchConfirmed
			if !sr.Success {
				status = domain.BatchSkipped
			}
			if updated, err = o.markCurrentBatch(ctx, conv, status); err != nil {
				return err
			}
			*conv = *updated

		case 1:
			// Unambiguous match: save it and move on without a round trip.
			sr := o.exec.Execute(ctx, saveToolForType(item.Type), tc, candidateArgs(cands[0]))
			status := domain.BatchConfirmed
			if !sr.Success {
				status = domain.BatchSkipped
			}
			if updated, err = o.markCurrentBatch(ctx, conv, status); err != nil {
				return err
			}
			*conv = *updated
			label := cands[0].Title
			if cands[0].Year != "" {
				label += " (" + cands[0].Year + ")"
			}
			if err := o.reply(ctx, p, in, conv, fmt.Sprintf("✅ %s", label), nil); err != nil {
				return err
			}

		default:
			updated, err = repo.MergeConversation(ctx, o.db, conv.ID, func(c *domain.Conversation, inner *domain.ConvContext) {
				inner.Candidates = cands
			})
			if err != nil {
				return err
			}
			*conv = *updated
			text, buttons := candidateList(item.Query, cands)
			return o.reply(ctx, p, in, conv, text, buttons)
		}
	}
}

// handleBatchReply resolves the user's pick for the batch item currently
// presented. A reply that doesn't map onto the shown list abandons the batch
// and re-enters the idle pipeline.
func (o *Orchestrator) handleBatchReply(ctx context.Context, p provider.MessagingProvider, in *provider.IncomingMessage, conv *domain.Conversation, res intent.Result, depth int) error {
	cc := domain.ParseContext(conv.Context)
	tc := o.toolContext(in, conv)

	if res.Action == intent.ActionDeny {
		updated, err := o.markCurrentBatch(ctx, conv, domain.BatchSkipped)
		if err != nil {
			return err
		}
		*conv = *updated
		return o.advanceBatch(ctx, p, in, conv)
	}

	sels := res.Entities.Selections
	if len(sels) == 0 {
		return o.reenterIdle(ctx, p, in, conv, depth)
	}
	n := sels[0]
	if n < 0 || n > len(cc.Candidates) {
		return o.reenterIdle(ctx, p, in, conv, depth)
	}

	var r tools.Result
	if n == 0 {
		r = o.exec.Execute(ctx, saveToolForType(cc.CandidateType), tc, map[string]any{"title": cc.PendingQuery})
	} else {
		r = o.exec.Execute(ctx, saveToolForType(cc.CandidateType), tc, candidateArgs(cc.Candidates[n-1]))
	}
	status := domain.BatchConfirmed
	if !r.Success {
		status = domain.BatchSkipped
	}
	updated, err := o.markCurrentBatch(ctx, conv, status)
	if err != nil {
		return err
	}
	*conv = *updated
	return o.advanceBatch(ctx, p, in, conv)
}

// markCurrentBatch stamps the item currently in processing status.
func (o *Orchestrator) markCurrentBatch(ctx context.Context, conv *domain.Conversation, status string) (*domain.Conversation, error) {
	return repo.MergeConversation(ctx, o.db, conv.ID, func(c *domain.Conversation, cc *domain.ConvContext) {
		for i := range cc.Batch {
			if cc.Batch[i].Status == domain.BatchProcessing {
				cc.Batch[i].Status = status
				break
			}
		}
		cc.Candidates = nil
		cc.Selected = nil
	})
}

// ---- off-topic chat flow ----

// startOffTopic answers small talk and opens the off-topic window.
func (o *Orchestrator) startOffTopic(ctx context.Context, p provider.MessagingProvider, in *provider.IncomingMessage, conv *domain.Conversation) error {
	text := o.casualReply(ctx, conv, in.Text)
	updated, err := repo.MergeConversation(ctx, o.db, conv.ID, func(c *domain.Conversation, cc *domain.ConvContext) {
		c.State = domain.StateOffTopicChat
		cc.OffTopicRounds++
	})
	if err != nil {
		return err
	}
	*conv = *updated
	if err := o.reply(ctx, p, in, conv, text, nil); err != nil {
		return err
	}
	o.closer.Schedule(conv.ID, o.cfg.AutoCloseDelay)
	return nil
}

// handleOffTopic keeps chatting until a real task shows up with enough
// confidence to act on.
func (o *Orchestrator) handleOffTopic(ctx context.Context, p provider.MessagingProvider, in *provider.IncomingMessage, conv *domain.Conversation, res intent.Result, depth int) error {
	onTask := res.Action != intent.ActionCasualChat &&
		res.Action != intent.ActionUnknown &&
		res.Confidence >= o.cfg.ConfidenceGate
	if onTask {
		if _, err := o.resetToIdle(ctx, conv); err != nil {
			return err
		}
		return o.handleIdle(ctx, p, in, conv, res, depth+1)
	}
	return o.startOffTopic(ctx, p, in, conv)
}

// casualReply produces small talk through the LLM, with a canned fallback.
func (o *Orchestrator) casualReply(ctx context.Context, conv *domain.Conversation, text string) string {
	history, err := repo.ListRecentMessages(ctx, o.db, conv.ID, 6)
	if err != nil {
		history = nil
	}
	turns := make([]llm.Turn, 0, len(history))
	for _, m := range history {
		turns = append(turns, llm.Turn{Role: m.Role, Content: m.Content})
	}
	raw, err := o.planner.Complete(ctx, llm.Request{
		Prompt:  "Você é um assistente de memória pessoal simpático. Responda em português, em no máximo duas frases, sem JSON.",
		History: turns,
	})
	if err != nil || strings.TrimSpace(raw) == "" {
		return replyCasualIdle
	}
	return clampText(raw, 500)
}

// ---- callbacks ----

// handleCallback routes button taps by conversation state. Callbacks for a
// flow the conversation already left are ignored.
func (o *Orchestrator) handleCallback(ctx context.Context, p provider.MessagingProvider, in *provider.IncomingMessage, conv *domain.Conversation, depth int) error {
	data := in.CallbackData
	cc := domain.ParseContext(conv.Context)

	switch {
	case data == provider.CallbackConfirmFinal:
		if conv.State != domain.StateAwaitingFinal {
			return nil
		}
		return o.commitSelected(ctx, p, in, conv)

	case data == provider.CallbackChooseAgain:
		switch conv.State {
		case domain.StateAwaitingContext:
			return o.finishIdle(ctx, p, in, conv, replyCancelled, nil)
		case domain.StateAwaitingFinal:
			if len(cc.Candidates) < 2 {
				return o.finishIdle(ctx, p, in, conv, replyCancelled, nil)
			}
			updated, err := repo.MergeConversation(ctx, o.db, conv.ID, func(c *domain.Conversation, inner *domain.ConvContext) {
				c.State = domain.StateAwaitingConfirm
				inner.Selected = nil
			})
			if err != nil {
				return err
			}
			*conv = *updated
			text, buttons := candidateList(cc.PendingQuery, cc.Candidates)
			return o.reply(ctx, p, in, conv, replyPickAgain+"\n"+text, buttons)
		}
		return nil

	case strings.HasPrefix(data, provider.CallbackSelectPrefix):
		n, err := strconv.Atoi(strings.TrimPrefix(data, provider.CallbackSelectPrefix))
		if err != nil {
			return nil
		}
		switch conv.State {
		case domain.StateAwaitingContext:
			menu := o.exec.Registry().EnabledSaveTools()
			if n >= 1 && n <= len(menu) {
				return o.startSave(ctx, p, in, conv, cc.PendingContent, domain.ItemType(menu[n-1].SaveType), firstURLIn(cc.PendingContent))
			}
			return nil
		case domain.StateAwaitingConfirm, domain.StateAwaitingFinal:
			return o.applySelections(ctx, p, in, conv, cc, []int{n}, depth)
		case domain.StateAwaitingBatchItem:
			return o.handleBatchReply(ctx, p, in, conv, intent.Result{
				Intent:   intent.IntentConfirm,
				Action:   intent.ActionConfirm,
				Entities: intent.Entities{Selections: []int{n}},
			}, depth)
		}
		return nil
	}

	log.Debug().Str("data", data).Msg("unrecognized callback payload")
	return nil
}

// ---- helpers ----

func saveToolForType(t domain.ItemType) string {
	switch t {
	case domain.ItemMovie:
		return tools.ToolSaveMovie
	case domain.ItemTVShow:
		return tools.ToolSaveTVShow
	case domain.ItemVideo:
		return tools.ToolSaveVideo
	case domain.ItemLink:
		return tools.ToolSaveLink
	}
	return tools.ToolSaveNote
}

func enrichToolForType(t domain.ItemType) string {
	switch t {
	case domain.ItemTVShow:
		return tools.ToolEnrichTVShow
	case domain.ItemVideo:
		return tools.ToolEnrichVideo
	}
	return tools.ToolEnrichMovie
}

func extractCandidates(r tools.Result) []domain.Candidate {
	if r.Data == nil {
		return nil
	}
	cands, _ := r.Data["candidates"].([]domain.Candidate)
	return cands
}

// candidateArgs shapes a candidate into save-tool arguments, catalog fields
// riding along as metadata.
func candidateArgs(c domain.Candidate) map[string]any {
	meta := map[string]any{}
	if c.ExternalID != "" {
		meta["external_id"] = c.ExternalID
	}
	if c.Year != "" {
		meta["year"] = c.Year
	}
	if c.Overview != "" {
		meta["overview"] = c.Overview
	}
	if len(c.Genres) > 0 {
		meta["genres"] = c.Genres
	}
	if c.PosterURL != "" {
		meta["poster_url"] = c.PosterURL
	}
	return map[string]any{"title": c.Title, "metadata": meta}
}

var urlFinder = intent.URLPattern()

func firstURLIn(text string) string {
	return urlFinder.FindString(text)
}
