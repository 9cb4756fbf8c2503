// Package agent implements the conversation engine: one entry point per
// inbound message that moderates, deduplicates, classifies, walks the
// conversation state machine, and executes tools. All user-visible behavior
// of the assistant funnels through the Orchestrator.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/psousaj/nexo-ai-sub000/internal/config"
	"github.com/psousaj/nexo-ai-sub000/internal/domain"
	"github.com/psousaj/nexo-ai-sub000/internal/intent"
	"github.com/psousaj/nexo-ai-sub000/internal/llm"
	"github.com/psousaj/nexo-ai-sub000/internal/provider"
	"github.com/psousaj/nexo-ai-sub000/internal/repo"
	"github.com/psousaj/nexo-ai-sub000/internal/tools"
)

// Orchestrator is the conversation engine. One instance serves every user;
// per-user serialization is the queue dispatcher's job, so handlers here can
// assume no concurrent processing for the same user.
type Orchestrator struct {
	db         *gorm.DB
	providers  *provider.Registry
	classifier *intent.Classifier
	planner    llm.Client
	exec       *tools.Executor
	closer     *Closer
	cfg        config.AgentConfig
	agentID    string
	now        func() time.Time
}

// New wires the orchestrator. A nil planner degrades open-ended questions to
// the fixed fallback reply.
func New(db *gorm.DB, providers *provider.Registry, classifier *intent.Classifier, planner llm.Client, exec *tools.Executor, cfg config.AgentConfig, agentID string) *Orchestrator {
	if planner == nil {
		planner = llm.Unavailable{}
	}
	return &Orchestrator{
		db:         db,
		providers:  providers,
		classifier: classifier,
		planner:    planner,
		exec:       exec,
		closer:     NewCloser(db),
		cfg:        cfg,
		agentID:    agentID,
		now:        time.Now,
	}
}

// Closer exposes the auto-close scheduler for shutdown.
func (o *Orchestrator) Closer() *Closer { return o.closer }

// ProcessMessage handles one normalized inbound message end to end. Errors
// returned here are infrastructure failures; dialogue-level problems resolve
// into replies, not errors.
func (o *Orchestrator) ProcessMessage(ctx context.Context, in *provider.IncomingMessage) error {
	if in == nil {
		return nil
	}
	if strings.TrimSpace(in.Text) == "" && in.CallbackData == "" {
		return nil
	}
	p, err := o.providers.Get(in.Provider)
	if err != nil {
		return err
	}

	userKey := o.sessionKey(in)
	now := o.now()

	if in.CallbackQueryID != "" {
		_ = p.AnswerCallbackQuery(ctx, in.CallbackQueryID)
	}
	_ = p.MarkAsRead(ctx, in.MessageID)

	// Moderation gate: inside a timeout window the engine is silent.
	timedOut, err := repo.IsTimedOut(ctx, o.db, userKey, now)
	if err != nil {
		log.Error().Err(err).Str("user", userKey).Msg("timeout check failed")
	}
	if timedOut {
		log.Debug().Str("user", userKey).Msg("dropping message from timed-out user")
		return nil
	}
	if isOffensive(in.Text) {
		off, rerr := repo.RecordOffense(ctx, o.db, userKey, now)
		if rerr != nil {
			log.Error().Err(rerr).Str("user", userKey).Msg("offense record failed")
			return nil
		}
		warn := fmt.Sprintf(replyOffense, durationPT(repo.TimeoutForOffense(off.Count)))
		return p.SendMessage(ctx, in.ExternalID, warn)
	}

	conv, err := repo.EnsureActiveConversation(ctx, o.db, userKey)
	if err != nil {
		return fmt.Errorf("agent: ensure conversation: %w", err)
	}

	// A conversation stuck mid-flow past the staleness window restarts from
	// idle rather than confusing the user with last week's menu.
	if conv.State != domain.StateIdle && now.Sub(conv.UpdatedAt) > o.cfg.StaleAfter {
		conv, err = repo.MergeConversation(ctx, o.db, conv.ID, func(c *domain.Conversation, cc *domain.ConvContext) {
			c.State = domain.StateIdle
			cc.ClearTransient()
		})
		if err != nil {
			return fmt.Errorf("agent: reset stale conversation: %w", err)
		}
	}

	o.closer.Cancel(conv.ID)

	_, err = repo.AppendMessage(ctx, o.db, &domain.Message{
		ConversationID:    conv.ID,
		Role:              domain.RoleUser,
		Content:           in.Text,
		Provider:          in.Provider,
		ExternalID:        in.ExternalID,
		ProviderMessageID: in.MessageID,
	})
	if err == repo.ErrDuplicate {
		log.Debug().Str("provider", in.Provider).Str("message_id", in.MessageID).Msg("dropping redelivered message")
		return nil
	}
	if err != nil {
		return fmt.Errorf("agent: append message: %w", err)
	}

	_ = p.SendChatAction(ctx, in.ExternalID)

	return o.dispatch(ctx, p, in, conv, 0)
}

// dispatch routes one message by conversation state. depth guards the
// breakout path, where a clarification reply re-enters as a fresh request.
func (o *Orchestrator) dispatch(ctx context.Context, p provider.MessagingProvider, in *provider.IncomingMessage, conv *domain.Conversation, depth int) error {
	if depth >= o.cfg.ReprocessLimit {
		log.Warn().Str("conversation_id", conv.ID).Int("depth", depth).Msg("reprocess limit hit")
		return o.reply(ctx, p, in, conv, replyFallback, nil)
	}

	if in.CallbackData != "" {
		return o.handleCallback(ctx, p, in, conv, depth)
	}

	res := o.classifier.Classify(ctx, in.Text)
	log.Debug().
		Str("conversation_id", conv.ID).
		Str("state", string(conv.State)).
		Str("intent", string(res.Intent)).
		Str("action", string(res.Action)).
		Float64("confidence", res.Confidence).
		Str("source", res.Source).
		Msg("message classified")

	switch conv.State {
	case domain.StateIdle, domain.StateProcessing:
		return o.handleIdle(ctx, p, in, conv, res, depth)
	case domain.StateAwaitingContext:
		return o.handleClarify(ctx, p, in, conv, res, depth)
	case domain.StateAwaitingConfirm:
		return o.handleCandidates(ctx, p, in, conv, res, depth)
	case domain.StateAwaitingFinal:
		return o.handleFinal(ctx, p, in, conv, res, depth)
	case domain.StateAwaitingBatchItem:
		return o.handleBatchReply(ctx, p, in, conv, res, depth)
	case domain.StateOffTopicChat:
		return o.handleOffTopic(ctx, p, in, conv, res, depth)
	}
	log.Warn().Str("state", string(conv.State)).Msg("unknown conversation state, resetting")
	if _, err := o.resetToIdle(ctx, conv); err != nil {
		return err
	}
	return o.reply(ctx, p, in, conv, replyFallback, nil)
}

// handleIdle executes the pure decision for a message with nothing pending.
func (o *Orchestrator) handleIdle(ctx context.Context, p provider.MessagingProvider, in *provider.IncomingMessage, conv *domain.Conversation, res intent.Result, depth int) error {
	d := decideAction(res)
	tc := o.toolContext(in, conv)

	switch d.Kind {
	case decideSave:
		return o.startSave(ctx, p, in, conv, d.Query, d.ItemType, d.URL)

	case decideBatchSave:
		return o.startBatch(ctx, p, in, conv, d.BatchQueries, d.ItemType)

	case decideClarify:
		pending := d.Query
		if pending == "" {
			pending = strings.TrimSpace(in.Text)
		}
		return o.askClarification(ctx, p, in, conv, pending, 0)

	case decideSavePrevious:
		return o.savePrevious(ctx, p, in, conv, d.ItemType)

	case decideSearch:
		r := o.exec.Execute(ctx, tools.ToolMemorySearch, tc, map[string]any{"query": d.Query})
		if !r.Success && d.Query == "" {
			r = o.exec.Execute(ctx, tools.ToolSearchItems, tc, map[string]any{"type": string(d.ItemType)})
		}
		return o.finishWithResult(ctx, p, in, conv, r)

	case decideList:
		r := o.exec.Execute(ctx, tools.ToolSearchItems, tc, map[string]any{"type": string(d.ItemType)})
		return o.finishWithResult(ctx, p, in, conv, r)

	case decideDeleteAll:
		r := o.exec.Execute(ctx, tools.ToolDeleteAllMemories, tc, nil)
		return o.finishWithResult(ctx, p, in, conv, r)

	case decideDeleteItem:
		return o.deleteByTitle(ctx, p, in, conv, d.Target)

	case decideGetName:
		r := o.exec.Execute(ctx, tools.ToolGetAssistantName, tc, nil)
		return o.finishWithResult(ctx, p, in, conv, r)

	case decideSettings:
		r := o.exec.Execute(ctx, tools.ToolUpdateSettings, tc, map[string]any{"assistant_name": d.Target})
		return o.finishWithResult(ctx, p, in, conv, r)

	case decideCasual:
		return o.startOffTopic(ctx, p, in, conv)

	case decideAcknowledge:
		return o.reply(ctx, p, in, conv, replyNothingToDo, nil)
	}

	// Long free-form text with no resolvable intent is almost always content
	// the user wants kept; ask what it is instead of guessing.
	if text := strings.TrimSpace(in.Text); res.Action == intent.ActionUnknown && utf8.RuneCountInString(text) > freeTextClarifyLen {
		return o.askClarification(ctx, p, in, conv, text, 0)
	}

	return o.runPlanner(ctx, p, in, conv)
}

// runPlanner is the open-ended fallback: the LLM chooses one validated action.
// Any schema mismatch resolves into the fixed apology, never raw model text.
func (o *Orchestrator) runPlanner(ctx context.Context, p provider.MessagingProvider, in *provider.IncomingMessage, conv *domain.Conversation) error {
	history, err := repo.ListRecentMessages(ctx, o.db, conv.ID, 10)
	if err != nil {
		log.Error().Err(err).Msg("planner history load failed")
	}
	turns := make([]llm.Turn, 0, len(history))
	for _, m := range history {
		turns = append(turns, llm.Turn{Role: m.Role, Content: m.Content})
	}

	raw, err := o.planner.Complete(ctx, llm.Request{
		Prompt:  llm.PlannerPrompt(o.exec.Registry().Describe()),
		History: turns,
	})
	if err != nil {
		if err != llm.ErrUnavailable {
			log.Warn().Err(err).Msg("planner completion failed")
		}
		return o.reply(ctx, p, in, conv, replyWhatCanIDo, nil)
	}

	plan, err := llm.ParsePlan(raw)
	if err != nil {
		log.Warn().Err(err).Msg("planner output rejected")
		return o.reply(ctx, p, in, conv, replyFallback, nil)
	}

	switch plan.Action {
	case llm.PlanCallTool:
		r := o.exec.Execute(ctx, plan.Tool, o.toolContext(in, conv), plan.Args)
		return o.finishWithResult(ctx, p, in, conv, r)
	case llm.PlanRespond:
		return o.finishIdle(ctx, p, in, conv, plan.Message, nil)
	case llm.PlanNoop:
		return nil
	}
	return o.reply(ctx, p, in, conv, replyFallback, nil)
}

// ---- shared plumbing ----

// sessionKey derives the stable user identity for this message's surface.
// Group chats scope a sub-session per sender so parallel users never share a
// conversation.
func (o *Orchestrator) sessionKey(in *provider.IncomingMessage) string {
	params := provider.SessionKeyParams{
		AgentID:  o.agentID,
		Channel:  in.Provider,
		PeerKind: provider.PeerDirect,
		PeerID:   in.ExternalID,
	}
	if in.Metadata.IsGroup {
		params.PeerKind = provider.PeerGroup
		params.DMScope = in.UserID
	}
	return provider.BuildSessionKey(params)
}

func (o *Orchestrator) toolContext(in *provider.IncomingMessage, conv *domain.Conversation) tools.ToolContext {
	return tools.ToolContext{
		UserID:         conv.UserID,
		ConversationID: conv.ID,
		Provider:       in.Provider,
		ExternalID:     in.ExternalID,
	}
}

// reply sends text (with optional buttons) and records the assistant turn in
// the transcript. Transcript failures are logged, not surfaced: the user
// already got the reply.
func (o *Orchestrator) reply(ctx context.Context, p provider.MessagingProvider, in *provider.IncomingMessage, conv *domain.Conversation, text string, buttons []provider.Button) error {
	var err error
	if len(buttons) > 0 {
		err = p.SendMessageWithButtons(ctx, in.ExternalID, text, buttons)
	} else {
		err = p.SendMessage(ctx, in.ExternalID, text)
	}
	if err != nil {
		return fmt.Errorf("agent: send reply: %w", err)
	}
	if _, aerr := repo.AppendMessage(ctx, o.db, &domain.Message{
		ConversationID:    conv.ID,
		Role:              domain.RoleAssistant,
		Content:           text,
		Provider:          in.Provider,
		ExternalID:        in.ExternalID,
		ProviderMessageID: uuid.NewString(),
	}); aerr != nil {
		log.Error().Err(aerr).Str("conversation_id", conv.ID).Msg("assistant transcript append failed")
	}
	return nil
}

// finishWithResult replies with a tool outcome and settles back to idle.
func (o *Orchestrator) finishWithResult(ctx context.Context, p provider.MessagingProvider, in *provider.IncomingMessage, conv *domain.Conversation, r tools.Result) error {
	msg := r.Message
	if msg == "" {
		if r.Success {
			msg = replyNothingToDo
		} else {
			msg = replyFallback
		}
	}
	return o.finishIdle(ctx, p, in, conv, msg, nil)
}

// finishIdle replies, returns the conversation to idle, and arms auto-close.
func (o *Orchestrator) finishIdle(ctx context.Context, p provider.MessagingProvider, in *provider.IncomingMessage, conv *domain.Conversation, text string, buttons []provider.Button) error {
	if err := o.reply(ctx, p, in, conv, text, buttons); err != nil {
		return err
	}
	if _, err := o.resetToIdle(ctx, conv); err != nil {
		return err
	}
	o.closer.Schedule(conv.ID, o.cfg.AutoCloseDelay)
	return nil
}

// reenterIdle resets the conversation and replays the message through the
// idle pipeline, so a reply that doesn't fit the current flow is handled as
// fresh input instead of being treated as an in-flow error.
func (o *Orchestrator) reenterIdle(ctx context.Context, p provider.MessagingProvider, in *provider.IncomingMessage, conv *domain.Conversation, depth int) error {
	if _, err := o.resetToIdle(ctx, conv); err != nil {
		return err
	}
	return o.dispatch(ctx, p, in, conv, depth+1)
}

// resetToIdle clears flow state and any scheduled close marker.
func (o *Orchestrator) resetToIdle(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, error) {
	closeAt := o.now().Add(o.cfg.AutoCloseDelay)
	updated, err := repo.MergeConversation(ctx, o.db, conv.ID, func(c *domain.Conversation, cc *domain.ConvContext) {
		c.State = domain.StateIdle
		c.CloseAt = &closeAt
		cc.ClearTransient()
	})
	if err != nil {
		return conv, fmt.Errorf("agent: reset conversation: %w", err)
	}
	*conv = *updated
	return conv, nil
}

// durationPT renders a timeout duration in Portuguese.
func durationPT(d time.Duration) string {
	if d >= time.Hour {
		h := int(d.Hours())
		if h == 1 {
			return "1 hora"
		}
		return fmt.Sprintf("%d horas", h)
	}
	m := int(d.Minutes())
	if m <= 1 {
		return "1 minuto"
	}
	return fmt.Sprintf("%d minutos", m)
}
