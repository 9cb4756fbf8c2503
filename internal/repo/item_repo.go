// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for MemoryItem and
// UserSettings.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/psousaj/nexo-ai-sub000/internal/domain"
)

// CreateItem inserts a new memory item owned by userID.
func CreateItem(ctx context.Context, db *gorm.DB, item *domain.MemoryItem) (*domain.MemoryItem, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Metadata == "" {
		item.Metadata = "{}"
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(item).Error; err != nil {
		return nil, err
	}
	return item, nil
}

// ListItems returns a user's items, newest first, optionally filtered by
// type, capped at limit.
func ListItems(ctx context.Context, db *gorm.DB, userID string, itemType domain.ItemType, limit int) ([]domain.MemoryItem, error) {
	if limit <= 0 {
		limit = 50
	}
	q := db.WithContext(ctx).Where("user_id = ?", userID)
	if itemType != "" {
		q = q.Where("type = ?", itemType)
	}
	var out []domain.MemoryItem
	err := q.Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// GetItem fetches one item by id, enforcing ownership.
func GetItem(ctx context.Context, db *gorm.DB, userID, itemID string) (*domain.MemoryItem, error) {
	var item domain.MemoryItem
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", itemID, userID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// DeleteItem soft-deletes one item by id, enforcing ownership. Returns
// ErrNotFound when the item does not exist or belongs to someone else.
func DeleteItem(ctx context.Context, db *gorm.DB, userID, itemID string) error {
	res := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", itemID, userID).
		Delete(&domain.MemoryItem{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteAllItems soft-deletes every item a user owns and returns the count.
func DeleteAllItems(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	res := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&domain.MemoryItem{})
	return res.RowsAffected, res.Error
}

// FindDuplicateItem looks for an existing item with the same type and title
// (case-insensitive), used for friendly duplicate detection on save.
func FindDuplicateItem(ctx context.Context, db *gorm.DB, userID string, itemType domain.ItemType, title string) (*domain.MemoryItem, error) {
	var item domain.MemoryItem
	err := db.WithContext(ctx).
		Where("user_id = ? AND type = ? AND LOWER(title) = LOWER(?)", userID, itemType, title).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// GetSettings returns the user's settings row, creating defaults on first
// access.
func GetSettings(ctx context.Context, db *gorm.DB, userID string) (*domain.UserSettings, error) {
	var s domain.UserSettings
	err := db.WithContext(ctx).Where("user_id = ?", userID).First(&s).Error
	if err == gorm.ErrRecordNotFound {
		s = domain.UserSettings{
			UserID:        userID,
			AssistantName: "Nexo",
			Language:      "pt-BR",
			CreatedAt:     time.Now().UTC(),
		}
		if cerr := db.WithContext(ctx).Create(&s).Error; cerr != nil {
			return nil, cerr
		}
		return &s, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateAssistantName renames the assistant for one user.
func UpdateAssistantName(ctx context.Context, db *gorm.DB, userID, name string) error {
	if _, err := GetSettings(ctx, db, userID); err != nil {
		return err
	}
	return db.WithContext(ctx).Model(&domain.UserSettings{}).
		Where("user_id = ?", userID).
		Update("assistant_name", name).Error
}
