// Package domain defines the persistence models for moderation requests,
// their results, and notification delivery logs. These types are mapped
// with GORM and form the core data layer of the moderation backend.
package domain

import "time"

// Content types accepted by the moderation API.
const (
	ContentTypeText  = "text"
	ContentTypeImage = "image"
)

// ClassificationSafe is the verdict assigned when no category or model
// flagged the submission.
const ClassificationSafe = "safe"

// ModerationRequest represents a single text or image submission. One row is
// created per submission before its result exists; rows are never mutated or
// deleted afterwards (the store is append-only).
//
// Fields:
//   - ID: monotonic auto-increment primary key.
//   - UserEmail: submitter address; indexed for per-user analytics.
//   - ContentType: "text" or "image" (enforced by DB constraint).
//   - ContentHash: SHA-256 hex fingerprint of the raw payload. Stored for
//     audit only; it is not used for deduplication.
//   - Status: processing status, currently always "processed".
//   - CreatedAt: UTC creation timestamp.
type ModerationRequest struct {
	ID          uint      `json:"id"           gorm:"primaryKey;autoIncrement"`
	UserEmail   string    `json:"user_email"   gorm:"type:varchar(254);not null;index:idx_user_requests"`
	ContentType string    `json:"content_type" gorm:"type:varchar(16);not null;check:content_type IN ('text','image')"`
	ContentHash string    `json:"content_hash" gorm:"type:char(64);not null"`
	Status      string    `json:"status"       gorm:"type:varchar(32);not null;default:'processed'"`
	CreatedAt   time.Time `json:"created_at"   gorm:"index"`
}

// TableName returns the database table name for ModerationRequest.
func (ModerationRequest) TableName() string { return "moderation_requests" }

// ModerationResult holds the normalized decision for exactly one request
// (1:1, the request owns the result by foreign key). A result row must never
// exist without a prior committed request row; it is immutable once written.
//
// Fields:
//   - RequestID: foreign key to the owning ModerationRequest.
//   - Classification: "safe", a comma-joined list of flagged text categories
//     (e.g. "spam,violence"), or "inappropriate" for flagged images.
//   - Confidence: certainty scalar in [0,1]. A fixed heuristic in the text
//     path, the triggering model's score in the image path.
//   - Reasoning: human-readable explanation of the verdict.
//   - RawResponse: opaque provider response, retained for audit.
type ModerationResult struct {
	ID             uint    `json:"id"             gorm:"primaryKey;autoIncrement"`
	RequestID      uint    `json:"request_id"     gorm:"not null;uniqueIndex"`
	Classification string  `json:"classification" gorm:"type:varchar(255);not null"`
	Confidence     float64 `json:"confidence"     gorm:"not null"`
	Reasoning      string  `json:"reasoning"      gorm:"type:text;not null"`
	RawResponse    string  `json:"-"              gorm:"type:text"`

	// Request is the owning submission. Results are cascade-deleted if the
	// request row is ever removed out-of-band.
	Request ModerationRequest `json:"-" gorm:"foreignKey:RequestID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ModerationResult.
func (ModerationResult) TableName() string { return "moderation_results" }

// NotificationLog records one attempted alert delivery for a flagged
// request. At most one row exists per request, and none is ever written for
// a "safe" classification. The row is created regardless of whether the
// delivery succeeded.
//
// Fields:
//   - RequestID: foreign key to the flagged ModerationRequest.
//   - Channel: delivery channel, currently always "email".
//   - Status: "sent", "failed: <status> - <body>", or "error: <detail>".
//   - SentAt: UTC timestamp of the delivery attempt.
type NotificationLog struct {
	ID        uint      `json:"id"         gorm:"primaryKey;autoIncrement"`
	RequestID uint      `json:"request_id" gorm:"not null;index"`
	Channel   string    `json:"channel"    gorm:"type:varchar(16);not null;default:'email'"`
	Status    string    `json:"status"     gorm:"type:text;not null"`
	SentAt    time.Time `json:"sent_at"`

	// Request is the flagged submission this alert refers to.
	Request ModerationRequest `json:"-" gorm:"foreignKey:RequestID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for NotificationLog.
func (NotificationLog) TableName() string { return "notification_logs" }
