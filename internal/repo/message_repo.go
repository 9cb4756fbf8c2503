// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the append-only
// Message transcript, including provider-correlation deduplication.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/psousaj/nexo-ai-sub000/internal/domain"
)

// ErrDuplicate indicates that a transcript row already exists for the given
// (provider, provider_message_id, role) tuple — i.e. a redelivered webhook.
var ErrDuplicate = errors.New("duplicate message")

// AppendMessage inserts a transcript row. A unique-constraint collision on
// the provider correlation fields returns ErrDuplicate so callers can drop
// redelivered payloads without reprocessing them.
func AppendMessage(ctx context.Context, db *gorm.DB, m *domain.Message) (*domain.Message, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return m, nil
}

// ListRecentMessages returns the newest messages of a conversation in
// chronological order (oldest first), capped at limit. Used to build LLM
// history windows.
func ListRecentMessages(ctx context.Context, db *gorm.DB, conversationID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	// Reverse into chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// CountMessages returns the transcript length of a conversation.
func CountMessages(ctx context.Context, db *gorm.DB, conversationID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&total).Error
	return total, err
}

// SearchTranscript finds a user's past messages containing the query text,
// newest first, optionally restricted to one calendar day (YYYY-MM-DD, UTC).
// It spans every conversation the user owns.
func SearchTranscript(ctx context.Context, db *gorm.DB, userID, query, day string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	q := db.WithContext(ctx).Model(&domain.Message{}).
		Joins("JOIN conversations ON conversations.id = messages.conversation_id").
		Where("conversations.user_id = ?", userID)
	if s := strings.TrimSpace(query); s != "" {
		q = q.Where("LOWER(messages.content) LIKE ?", "%"+strings.ToLower(s)+"%")
	}
	if day != "" {
		if t, err := time.Parse("2006-01-02", day); err == nil {
			q = q.Where("messages.created_at >= ? AND messages.created_at < ?", t, t.Add(24*time.Hour))
		}
	}
	var out []domain.Message
	err := q.Order("messages.created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// LastUserMessage returns the most recent user-authored message before the
// given message id, used to resolve "save the previous thing" references.
func LastUserMessage(ctx context.Context, db *gorm.DB, conversationID, beforeID string) (*domain.Message, error) {
	var m domain.Message
	q := db.WithContext(ctx).
		Where("conversation_id = ? AND role = ?", conversationID, domain.RoleUser)
	if beforeID != "" {
		q = q.Where("id <> ?", beforeID)
	}
	err := q.Order("created_at DESC, id DESC").First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}
