// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for moderation
// offenses and their progressive timeouts.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/psousaj/nexo-ai-sub000/internal/domain"
)

// timeoutLadder maps offense count (1-based) to timeout duration. Counts
// past the ladder reuse the last rung.
var timeoutLadder = []time.Duration{
	5 * time.Minute,
	15 * time.Minute,
	30 * time.Minute,
	60 * time.Minute,
}

// TimeoutForOffense returns the timeout duration for the nth offense.
func TimeoutForOffense(count int) time.Duration {
	if count < 1 {
		count = 1
	}
	if count > len(timeoutLadder) {
		count = len(timeoutLadder)
	}
	return timeoutLadder[count-1]
}

// RecordOffense increments the user's offense count and applies the
// progressive timeout. It returns the updated row.
func RecordOffense(ctx context.Context, db *gorm.DB, userID string, now time.Time) (*domain.Offense, error) {
	var off domain.Offense
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("user_id = ?", userID).First(&off).Error
		if err == gorm.ErrRecordNotFound {
			off = domain.Offense{UserID: userID, CreatedAt: now}
			if cerr := tx.Create(&off).Error; cerr != nil {
				return cerr
			}
		} else if err != nil {
			return err
		}
		off.Count++
		until := now.Add(TimeoutForOffense(off.Count))
		off.TimedOutUntil = &until
		return tx.Model(&domain.Offense{}).Where("user_id = ?", userID).Updates(map[string]any{
			"count":           off.Count,
			"timed_out_until": off.TimedOutUntil,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &off, nil
}

// IsTimedOut reports whether the user is inside an active timeout window.
func IsTimedOut(ctx context.Context, db *gorm.DB, userID string, now time.Time) (bool, error) {
	var off domain.Offense
	err := db.WithContext(ctx).Where("user_id = ?", userID).First(&off).Error
	if err == gorm.ErrRecordNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return off.TimedOutUntil != nil && off.TimedOutUntil.After(now), nil
}
