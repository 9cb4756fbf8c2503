package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/psousaj/nexo-ai-sub000/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("repo_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestEnsureActiveConversation_CreatesIdle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	c, err := EnsureActiveConversation(ctx, db, "u1")
	if err != nil {
		t.Fatalf("EnsureActiveConversation: %v", err)
	}
	if c.ID == "" || c.UserID != "u1" || c.State != domain.StateIdle || !c.IsActive {
		t.Fatalf("unexpected conversation: %+v", c)
	}
	if c.Context != "{}" {
		t.Fatalf("expected empty context document, got %q", c.Context)
	}
}

func TestEnsureActiveConversation_ReusesActive(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first, err := EnsureActiveConversation(ctx, db, "u1")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := EnsureActiveConversation(ctx, db, "u1")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same conversation, got %s and %s", first.ID, second.ID)
	}
}

func TestEnsureActiveConversation_SingleActiveInvariant(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// Seed two active rows directly, simulating a lost close.
	for i := 0; i < 2; i++ {
		row := domain.Conversation{
			ID:       fmt.Sprintf("conv-%d", i),
			UserID:   "u1",
			State:    domain.StateIdle,
			Context:  "{}",
			IsActive: true,
		}
		if err := db.Create(&row).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if err := CloseConversation(ctx, db, "conv-0"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := CloseConversation(ctx, db, "conv-1"); err != nil {
		t.Fatalf("close: %v", err)
	}

	c, err := EnsureActiveConversation(ctx, db, "u1")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	n, err := CountActiveConversations(ctx, db, "u1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly 1 active conversation, got %d (active=%s)", n, c.ID)
	}
}

func TestMergeConversation_PreservesUnrelatedContext(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	c, err := EnsureActiveConversation(ctx, db, "u1")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}

	_, err = MergeConversation(ctx, db, c.ID, func(conv *domain.Conversation, cc *domain.ConvContext) {
		conv.State = domain.StateAwaitingContext
		cc.PendingContent = "Interestelar"
		cc.ClarifyAttempts = 1
	})
	if err != nil {
		t.Fatalf("first merge: %v", err)
	}

	// A second merge touching only the attempt counter must not drop the
	// pending content.
	updated, err := MergeConversation(ctx, db, c.ID, func(conv *domain.Conversation, cc *domain.ConvContext) {
		cc.ClarifyAttempts = 2
	})
	if err != nil {
		t.Fatalf("second merge: %v", err)
	}

	cc := domain.ParseContext(updated.Context)
	if cc.PendingContent != "Interestelar" {
		t.Fatalf("pending content lost across merge: %+v", cc)
	}
	if cc.ClarifyAttempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", cc.ClarifyAttempts)
	}
	if updated.State != domain.StateAwaitingContext {
		t.Fatalf("state changed unexpectedly: %s", updated.State)
	}
}

func TestCloseConversation_Idempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	c, err := EnsureActiveConversation(ctx, db, "u1")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := CloseConversation(ctx, db, c.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := CloseConversation(ctx, db, c.ID); err != nil {
		t.Fatalf("second close should be a no-op: %v", err)
	}
	if _, err := GetActiveConversation(ctx, db, "u1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after close, got %v", err)
	}
}
