// Package services – AnalyticsService
//
// This file implements the AnalyticsService, the read-only aggregation
// layer over persisted moderation decisions. Every call goes straight to
// the store; there is no caching, so summaries always reflect all decisions
// committed before the query ran.
package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-moderation-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Summary is the per-user analytics aggregate.
type Summary struct {
	// Email is the user the summary was computed for.
	Email string `json:"email"`
	// TotalRequests counts the user's moderation requests (0 if none).
	TotalRequests int64 `json:"total_requests"`
	// ClassificationCounts maps each distinct classification string to its
	// occurrence count. Multi-category verdicts like "spam,violence" are
	// single keys, never split.
	ClassificationCounts map[string]int64 `json:"classification_counts"`
	// LastRequestAt is the user's most recent submission time, or null.
	LastRequestAt *time.Time `json:"last_request_at"`
}

// AnalyticsService answers per-user summary and audit-listing queries.
type AnalyticsService struct {
	// DB is the GORM handle used for all reads.
	DB *gorm.DB
}

// Summarize computes the analytics aggregate for userEmail. Users with no
// history get a zero summary with an empty counts map and a null timestamp.
func (s *AnalyticsService) Summarize(ctx context.Context, userEmail string) (*Summary, error) {
	tr := otel.Tracer("services/AnalyticsService")
	ctx, span := tr.Start(ctx, "Summarize")
	defer span.End()

	total, err := repo.CountRequests(ctx, s.DB, userEmail)
	if err != nil {
		return nil, err
	}
	counts, err := repo.ClassificationCounts(ctx, s.DB, userEmail)
	if err != nil {
		return nil, err
	}
	last, err := repo.LastRequestAt(ctx, s.DB, userEmail)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int64("analytics.total_requests", total))
	return &Summary{
		Email:                userEmail,
		TotalRequests:        total,
		ClassificationCounts: counts,
		LastRequestAt:        last,
	}, nil
}

// ListRequests returns a page of userEmail's moderation requests joined
// with their results, newest first, plus the total count. It applies
// defaults for invalid page/pageSize.
func (s *AnalyticsService) ListRequests(ctx context.Context, userEmail string, page, pageSize int) ([]repo.RequestWithResult, int64, error) {
	tr := otel.Tracer("services/AnalyticsService")
	ctx, span := tr.Start(ctx, "ListRequests",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountRequests(ctx, s.DB, userEmail)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []repo.RequestWithResult{}, 0, nil
	}

	items, err := repo.ListRequestsPage(ctx, s.DB, userEmail, offset, pageSize)
	return items, total, err
}
