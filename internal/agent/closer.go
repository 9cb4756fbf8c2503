// Auto-close scheduling.
//
// When a conversation settles back to idle after completed work, a close job
// fires after a fixed delay and deactivates the row. Any new activity on the
// conversation reschedules (or cancels) the pending job; firing twice is
// harmless because CloseConversation only touches still-active rows.
package agent

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/psousaj/nexo-ai-sub000/internal/repo"
)

// Closer schedules deferred conversation closes. One timer per conversation;
// scheduling again replaces the previous timer atomically.
type Closer struct {
	db     *gorm.DB
	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewCloser builds a Closer over the given database handle.
func NewCloser(db *gorm.DB) *Closer {
	return &Closer{db: db, timers: make(map[string]*time.Timer)}
}

// Schedule arms (or re-arms) the close job for a conversation.
func (c *Closer) Schedule(conversationID string, delay time.Duration) {
	if delay <= 0 {
		delay = time.Minute
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.timers[conversationID]; ok {
		t.Stop()
	}
	c.timers[conversationID] = time.AfterFunc(delay, func() {
		c.fire(conversationID)
	})
}

// Cancel drops any pending close job for a conversation.
func (c *Closer) Cancel(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.timers[conversationID]; ok {
		t.Stop()
		delete(c.timers, conversationID)
	}
}

// Stop cancels every pending job. Called on shutdown.
func (c *Closer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
}

func (c *Closer) fire(conversationID string) {
	c.mu.Lock()
	delete(c.timers, conversationID)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := repo.CloseConversation(ctx, c.db, conversationID); err != nil {
		log.Error().Err(err).Str("conversation_id", conversationID).Msg("auto-close failed")
		return
	}
	log.Debug().Str("conversation_id", conversationID).Msg("conversation auto-closed")
}
