// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the aggregate queries behind the
// analytics summary endpoint and the lightweight stats used for conditional
// responses (ETag generation) on the audit listing.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-moderation-backend/internal/domain"
)

// ClassificationCounts returns a histogram of classification strings over
// all results belonging to userEmail's requests. A multi-category verdict
// such as "spam,violence" counts as one distinct key; it is never split.
//
// Users without any results get an empty (non-nil) map.
func ClassificationCounts(ctx context.Context, db *gorm.DB, userEmail string) (map[string]int64, error) {
	var rows []struct {
		Classification string
		Count          int64
	}
	err := db.WithContext(ctx).
		Model(&domain.ModerationResult{}).
		Select("moderation_results.classification AS classification, COUNT(*) AS count").
		Joins("JOIN moderation_requests ON moderation_requests.id = moderation_results.request_id").
		Where("moderation_requests.user_email = ?", userEmail).
		Group("moderation_results.classification").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Classification] = r.Count
	}
	return out, nil
}

// LastRequestAt returns the creation timestamp of userEmail's most recent
// request, or nil when the user has never submitted anything.
func LastRequestAt(ctx context.Context, db *gorm.DB, userEmail string) (*time.Time, error) {
	q := db.WithContext(ctx).
		Model(&domain.ModerationRequest{}).
		Where("user_email = ?", userEmail)

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	// Get latest created_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		CreatedAt time.Time
	}
	if err := q.Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return nil, err
	}
	return &row.CreatedAt, nil
}

// RequestsStats returns aggregate metadata for a user's moderation requests:
// the total number of rows and the maximum CreatedAt timestamp among them.
// The pair is cheap to compute and changes whenever a new submission lands,
// which makes it a usable weak-ETag input for the audit listing.
//
// Return values:
//   - count:        total requests for userEmail
//   - maxCreatedAt: pointer to the greatest CreatedAt, or nil if no rows
//   - err:          database error, if any
func RequestsStats(ctx context.Context, db *gorm.DB, userEmail string) (count int64, maxCreatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.ModerationRequest{}).Where("user_email = ?", userEmail)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	var row struct {
		CreatedAt time.Time
	}
	if err = q.Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}
