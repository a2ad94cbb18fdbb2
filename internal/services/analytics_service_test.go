package services

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-moderation-backend/internal/domain"
	"github.com/tbourn/go-moderation-backend/internal/repo"
	"github.com/tbourn/go-moderation-backend/internal/sightengine"
)

func TestSummarize_EmptyUser(t *testing.T) {
	db := newServiceDB(t)
	svc := &AnalyticsService{DB: db}

	sum, err := svc.Summarize(context.Background(), "nobody@example.com")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.Email != "nobody@example.com" || sum.TotalRequests != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.ClassificationCounts == nil || len(sum.ClassificationCounts) != 0 {
		t.Fatalf("counts = %v; want empty non-nil map", sum.ClassificationCounts)
	}
	if sum.LastRequestAt != nil {
		t.Fatalf("LastRequestAt = %v; want nil", sum.LastRequestAt)
	}
}

func TestSummarize_AfterModerationRoundTrip(t *testing.T) {
	// Drive real decisions through the moderation service, then read them
	// back through analytics. Two safe texts and one flagged image.
	db := newServiceDB(t)
	cl := &fakeClassifier{
		textResp: textResponse(),
		imageResp: &sightengine.ImageCheckResponse{
			Status: "success",
			Nudity: &sightengine.ImageModelScore{Raw: f64(0.9)},
		},
	}
	modSvc := NewModerationService(db, cl, nil)
	ctx := context.Background()

	for _, text := range []string{"first", "second"} {
		if _, _, err := modSvc.ModerateText(ctx, "u@example.com", text, "en"); err != nil {
			t.Fatalf("ModerateText(%q): %v", text, err)
		}
	}
	if _, _, err := modSvc.ModerateImage(ctx, "u@example.com", []byte{1, 2}, "image/png", "a.png"); err != nil {
		t.Fatalf("ModerateImage: %v", err)
	}
	// Unrelated user noise.
	if _, _, err := modSvc.ModerateText(ctx, "other@example.com", "noise", "en"); err != nil {
		t.Fatalf("seed other user: %v", err)
	}

	svc := &AnalyticsService{DB: db}
	sum, err := svc.Summarize(ctx, "u@example.com")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.TotalRequests != 3 {
		t.Fatalf("TotalRequests = %d; want 3", sum.TotalRequests)
	}
	if sum.ClassificationCounts["safe"] != 2 || sum.ClassificationCounts["inappropriate"] != 1 {
		t.Fatalf("counts = %v", sum.ClassificationCounts)
	}
	if sum.LastRequestAt == nil || time.Since(*sum.LastRequestAt) > time.Minute {
		t.Fatalf("LastRequestAt = %v", sum.LastRequestAt)
	}
}

func TestListRequests_PaginationAndDefaults(t *testing.T) {
	db := newServiceDB(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	var ids []uint
	for i := 0; i < 5; i++ {
		req, err := repo.CreateRequest(ctx, db, "u@example.com", domain.ContentTypeText, "0000000000000000000000000000000000000000000000000000000000000000")
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		if err := db.Model(&domain.ModerationRequest{}).
			Where("id = ?", req.ID).
			Update("created_at", base.Add(time.Duration(i)*time.Minute)).Error; err != nil {
			t.Fatalf("backdate: %v", err)
		}
		if _, err := repo.CreateResult(ctx, db, req.ID, "safe", 0.99, "r", "{}"); err != nil {
			t.Fatalf("seed result: %v", err)
		}
		ids = append(ids, req.ID)
	}

	svc := &AnalyticsService{DB: db}

	items, total, err := svc.ListRequests(ctx, "u@example.com", 1, 2)
	if err != nil {
		t.Fatalf("ListRequests: %v", err)
	}
	if total != 5 || len(items) != 2 {
		t.Fatalf("total=%d len=%d", total, len(items))
	}
	if items[0].Request.ID != ids[4] || items[1].Request.ID != ids[3] {
		t.Fatalf("page 1 order = %d,%d", items[0].Request.ID, items[1].Request.ID)
	}

	items, _, err = svc.ListRequests(ctx, "u@example.com", 3, 2)
	if err != nil || len(items) != 1 || items[0].Request.ID != ids[0] {
		t.Fatalf("page 3 = %+v, %v", items, err)
	}

	// Invalid page and pageSize fall back to defaults.
	items, total, err = svc.ListRequests(ctx, "u@example.com", 0, 0)
	if err != nil || total != 5 || len(items) != 5 {
		t.Fatalf("defaulted listing: total=%d len=%d err=%v", total, len(items), err)
	}

	// No rows: empty non-nil slice, zero total.
	items, total, err = svc.ListRequests(ctx, "nobody@example.com", 1, 10)
	if err != nil || total != 0 || items == nil || len(items) != 0 {
		t.Fatalf("empty listing: items=%v total=%d err=%v", items, total, err)
	}
}
