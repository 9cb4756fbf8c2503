// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Conversation model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the "thin repository"
// approach: no business logic, only persistence and query composition.
//
// Error semantics:
//   - When a conversation is not found, functions return
//     gorm.ErrRecordNotFound (also exported here as ErrNotFound).
//   - On other DB errors, the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/psousaj/nexo-ai-sub000/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist. It aliases
// gorm.ErrRecordNotFound for consistency across layers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetActiveConversation fetches the single active conversation for userID,
// or ErrNotFound.
func GetActiveConversation(ctx context.Context, db *gorm.DB, userID string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// EnsureActiveConversation returns the user's active conversation, creating
// a fresh idle one when none exists. Creation runs in a transaction that
// first deactivates any lingering active rows, upholding the "at most one
// active conversation per user" invariant even if a previous close was lost.
func EnsureActiveConversation(ctx context.Context, db *gorm.DB, userID string) (*domain.Conversation, error) {
	if c, err := GetActiveConversation(ctx, db, userID); err == nil {
		return c, nil
	} else if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	c := &domain.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		State:     domain.StateIdle,
		Context:   "{}",
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Conversation{}).
			Where("user_id = ? AND is_active = ?", userID, true).
			Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Create(c).Error
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// MergeConversation applies a read-modify-write update to the conversation's
// state and context as one unit. The mutation receives the freshly loaded
// row and the decoded context; whatever it leaves in place is written back.
// Unspecified context fields therefore survive every transition.
func MergeConversation(ctx context.Context, db *gorm.DB, id string, mutate func(*domain.Conversation, *domain.ConvContext)) (*domain.Conversation, error) {
	var out *domain.Conversation
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c domain.Conversation
		if err := tx.Where("id = ?", id).First(&c).Error; err != nil {
			return err
		}
		cc := domain.ParseContext(c.Context)
		mutate(&c, &cc)
		c.Context = cc.Encode()
		if err := tx.Model(&domain.Conversation{}).Where("id = ?", id).Updates(map[string]any{
			"state":     c.State,
			"context":   c.Context,
			"is_active": c.IsActive,
			"close_at":  c.CloseAt,
		}).Error; err != nil {
			return err
		}
		out = &c
		return nil
	})
	return out, err
}

// CloseConversation marks the conversation closed and inactive. Used by the
// auto-close job; closing an already inactive conversation is a no-op.
func CloseConversation(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Model(&domain.Conversation{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]any{"is_active": false, "close_at": nil}).Error
}

// CountActiveConversations returns how many active rows a user has. The
// invariant keeps this at zero or one; the count exists for tests and
// diagnostics.
func CountActiveConversations(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Conversation{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Count(&total).Error
	return total, err
}
