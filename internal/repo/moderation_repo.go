// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for moderation
// requests, results, and notification logs.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only
// insert/query composition. The moderation store is append-only; no update
// or delete operations exist here on purpose.
//
// Error semantics:
//   - When a record is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-moderation-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateRequest inserts a new ModerationRequest row for userEmail with the
// given content type and fingerprint. CreatedAt is set to UTC and the
// generated monotonic ID is populated on the returned value.
//
// The request row must be committed before the matching result row is
// written; callers enforce that ordering (typically by running both inserts
// inside one transaction, result second).
func CreateRequest(ctx context.Context, db *gorm.DB, userEmail, contentType, contentHash string) (*domain.ModerationRequest, error) {
	r := &domain.ModerationRequest{
		UserEmail:   userEmail,
		ContentType: contentType,
		ContentHash: contentHash,
		Status:      "processed",
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// CreateResult inserts the ModerationResult row for an already-committed
// request. The FK constraint rejects results that reference a missing
// request, preserving the request-before-result invariant at the schema
// level as well.
func CreateResult(ctx context.Context, db *gorm.DB, requestID uint, classification string, confidence float64, reasoning, rawResponse string) (*domain.ModerationResult, error) {
	res := &domain.ModerationResult{
		RequestID:      requestID,
		Classification: classification,
		Confidence:     confidence,
		Reasoning:      reasoning,
		RawResponse:    rawResponse,
	}
	if err := db.WithContext(ctx).Create(res).Error; err != nil {
		return nil, err
	}
	return res, nil
}

// CreateNotificationLog records the outcome of one alert delivery attempt
// for a flagged request. Exactly one row is written per attempt, regardless
// of whether the delivery succeeded.
func CreateNotificationLog(ctx context.Context, db *gorm.DB, requestID uint, channel, status string) (*domain.NotificationLog, error) {
	l := &domain.NotificationLog{
		RequestID: requestID,
		Channel:   channel,
		Status:    status,
		SentAt:    time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(l).Error; err != nil {
		return nil, err
	}
	return l, nil
}

// GetRequest fetches a single moderation request by ID, or ErrNotFound if
// it does not exist.
func GetRequest(ctx context.Context, db *gorm.DB, id uint) (*domain.ModerationRequest, error) {
	var r domain.ModerationRequest
	if err := db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// CountRequests returns the total number of moderation requests submitted
// by userEmail. On DB error, it returns the error.
func CountRequests(ctx context.Context, db *gorm.DB, userEmail string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.ModerationRequest{}).
		Where("user_email = ?", userEmail).
		Count(&total).Error
	return total, err
}

// RequestWithResult pairs a moderation request with its stored decision for
// audit listings. Result is nil when the result row is missing (which only
// happens if a crash interrupted the persist transaction).
type RequestWithResult struct {
	Request domain.ModerationRequest `json:"request"`
	Result  *domain.ModerationResult `json:"result,omitempty"`
}

// ListRequestsPage returns a paginated slice of a user's moderation requests
// joined with their results, ordered by creation time descending (most
// recent first). Use CountRequests to obtain the total for pagination
// metadata.
//
// The caller is responsible for computing offset and limit (e.g., (page-1)*pageSize).
func ListRequestsPage(ctx context.Context, db *gorm.DB, userEmail string, offset, limit int) ([]RequestWithResult, error) {
	var reqs []domain.ModerationRequest
	err := db.WithContext(ctx).
		Where("user_email = ?", userEmail).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&reqs).Error
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return []RequestWithResult{}, nil
	}

	ids := make([]uint, 0, len(reqs))
	for _, r := range reqs {
		ids = append(ids, r.ID)
	}
	var results []domain.ModerationResult
	if err := db.WithContext(ctx).Where("request_id IN ?", ids).Find(&results).Error; err != nil {
		return nil, err
	}
	byRequest := make(map[uint]*domain.ModerationResult, len(results))
	for i := range results {
		byRequest[results[i].RequestID] = &results[i]
	}

	out := make([]RequestWithResult, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, RequestWithResult{Request: r, Result: byRequest[r.ID]})
	}
	return out, nil
}

// ListNotificationLogs returns all delivery log rows for a request, oldest
// first. Used by tests and operational tooling; the API surface itself does
// not expose logs.
func ListNotificationLogs(ctx context.Context, db *gorm.DB, requestID uint) ([]domain.NotificationLog, error) {
	var out []domain.NotificationLog
	err := db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("sent_at asc").
		Find(&out).Error
	return out, err
}
