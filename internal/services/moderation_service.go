// Package services – ModerationService
//
// This file implements ModerationService, the application-level component
// that owns the moderation decision pipeline: validate the submission, call
// the external classifier, reduce its response into a normalized
// (classification, confidence, reasoning) triple, and persist the request
// and result transactionally. Alert scheduling for flagged decisions lives
// here too, but actual delivery is delegated to the NotificationService and
// runs detached from the request path.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// content type and decision metadata (never the submitted content itself).

package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/go-moderation-backend/internal/domain"
	"github.com/tbourn/go-moderation-backend/internal/repo"
	"github.com/tbourn/go-moderation-backend/internal/sightengine"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/language"
)

const (
	// Rule-based text checking has no native probability; the confidence on
	// that path is a fixed heuristic, not a derived statistic.
	confidenceFlagged = 0.9
	confidenceSafe    = 0.99

	// imageScoreThreshold is the per-model trigger level. A model flags only
	// when its score strictly exceeds it.
	imageScoreThreshold = 0.5

	classificationInappropriate = "inappropriate"

	defaultLang = "en"
)

// Classifier is the contract the moderation service requires from the
// provider client. *sightengine.Client satisfies it.
type Classifier interface {
	// CheckText classifies text against the fixed rule-based category set.
	CheckText(ctx context.Context, text, lang string) (*sightengine.TextCheckResponse, error)
	// CheckImage classifies image bytes against the fixed model set.
	CheckImage(ctx context.Context, data []byte, filename string) (*sightengine.ImageCheckResponse, error)
}

// Notifier is the contract for the alert channel. Deliver blocks until the
// attempt and its log row are done; the moderation service always invokes
// it from a detached goroutine.
type Notifier interface {
	Deliver(ctx context.Context, requestID uint, toEmail, subject, body string)
}

// Decision is the normalized verdict produced by the classifier adapter.
type Decision struct {
	// Classification is "safe", a comma-joined list of flagged text
	// categories, or "inappropriate" for flagged images.
	Classification string `json:"classification"`
	// Confidence is a certainty scalar in [0,1].
	Confidence float64 `json:"confidence"`
	// Reasoning is a human-readable explanation of the verdict.
	Reasoning string `json:"reasoning"`

	// rawResponse is the provider's body, persisted for audit.
	rawResponse string
}

// Flagged reports whether the decision requires an alert.
func (d Decision) Flagged() bool { return d.Classification != domain.ClassificationSafe }

// ModerationService coordinates classification, persistence, and alert
// scheduling for inbound submissions.
type ModerationService struct {
	DB         *gorm.DB
	Classifier Classifier
	Notifier   Notifier

	// MaxTextRunes caps text submissions by rune length.
	MaxTextRunes int
	// MaxImageBytes caps image uploads; the limit itself is accepted.
	MaxImageBytes int64
}

// NewModerationService constructs a ModerationService with the documented
// submission limits (1000 runes of text, 5 MiB of image).
func NewModerationService(db *gorm.DB, cl Classifier, n Notifier) *ModerationService {
	return &ModerationService{
		DB:            db,
		Classifier:    cl,
		Notifier:      n,
		MaxTextRunes:  1000,
		MaxImageBytes: 5 << 20,
	}
}

// ModerateText validates a text submission, classifies it, and persists the
// request/result pair. It returns the generated request ID together with
// the decision; the caller triggers NotifyIfFlagged after the HTTP response
// has been written.
func (s *ModerationService) ModerateText(ctx context.Context, userEmail, text, lang string) (uint, Decision, error) {
	tr := otel.Tracer("services/ModerationService")
	ctx, span := tr.Start(ctx, "ModerateText",
		trace.WithAttributes(attribute.String("content.type", domain.ContentTypeText)),
	)
	defer span.End()

	if utf8.RuneCountInString(text) == 0 {
		return 0, Decision{}, ErrEmptyText
	}
	if s.MaxTextRunes > 0 && utf8.RuneCountInString(text) > s.MaxTextRunes {
		return 0, Decision{}, ErrTextTooLong
	}

	resp, err := s.Classifier.CheckText(ctx, text, normalizeLang(lang))
	if err != nil {
		return 0, Decision{}, err
	}
	dec := reduceText(resp)

	id, err := s.persist(ctx, userEmail, domain.ContentTypeText, fingerprint([]byte(text)), dec)
	if err != nil {
		return 0, Decision{}, err
	}
	observeDecision(domain.ContentTypeText, dec.Flagged())
	span.SetAttributes(attribute.String("moderation.classification", dec.Classification))
	return id, dec, nil
}

// ModerateImage validates an image submission, classifies it, and persists
// the request/result pair. mimeType is the client-declared content type;
// only image/jpeg and image/png are accepted, and the size limit is
// inclusive (an image of exactly MaxImageBytes passes).
func (s *ModerationService) ModerateImage(ctx context.Context, userEmail string, data []byte, mimeType, filename string) (uint, Decision, error) {
	tr := otel.Tracer("services/ModerationService")
	ctx, span := tr.Start(ctx, "ModerateImage",
		trace.WithAttributes(
			attribute.String("content.type", domain.ContentTypeImage),
			attribute.Int("image.bytes", len(data)),
		),
	)
	defer span.End()

	switch normalizeMIME(mimeType) {
	case "image/jpeg", "image/png":
	default:
		return 0, Decision{}, ErrUnsupportedImageType
	}
	if s.MaxImageBytes > 0 && int64(len(data)) > s.MaxImageBytes {
		return 0, Decision{}, ErrImageTooLarge
	}

	resp, err := s.Classifier.CheckImage(ctx, data, filename)
	if err != nil {
		return 0, Decision{}, err
	}
	dec := reduceImage(resp)

	id, err := s.persist(ctx, userEmail, domain.ContentTypeImage, fingerprint(data), dec)
	if err != nil {
		return 0, Decision{}, err
	}
	observeDecision(domain.ContentTypeImage, dec.Flagged())
	span.SetAttributes(attribute.String("moderation.classification", dec.Classification))
	return id, dec, nil
}

// NotifyIfFlagged schedules the alert email for a non-safe decision on a
// detached goroutine and returns immediately. The goroutine inherits the
// request's trace context but not its cancellation, so a client disconnect
// cannot abort delivery. Safe decisions are a no-op.
//
// Callers invoke this after the HTTP response has been written; delivery
// failures are contained inside the notifier and never reach the caller.
func (s *ModerationService) NotifyIfFlagged(ctx context.Context, requestID uint, userEmail string, dec Decision) {
	if !dec.Flagged() || s.Notifier == nil {
		return
	}
	body := "Moderation Alert!\n" +
		"Request ID: " + strconv.FormatUint(uint64(requestID), 10) + "\n" +
		"Classification: " + dec.Classification + "\n" +
		"Reason: " + dec.Reasoning
	go s.Notifier.Deliver(context.WithoutCancel(ctx), requestID, userEmail, "Content Moderation Alert", body)
}

// persist writes the request row and its result row inside one transaction.
// The original two-step commit is strengthened here: either both rows land
// or neither does, so a result can never reference an uncommitted request.
func (s *ModerationService) persist(ctx context.Context, userEmail, contentType, contentHash string, dec Decision) (uint, error) {
	var id uint
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := repo.CreateRequest(ctx, tx, userEmail, contentType, contentHash)
		if err != nil {
			return err
		}
		if _, err := repo.CreateResult(ctx, tx, req.ID, dec.Classification, dec.Confidence, dec.Reasoning, dec.rawResponse); err != nil {
			return err
		}
		id = req.ID
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// --- Reduction rules ---

// reduceText folds the per-category verdicts into a decision. Flagged
// category names are joined in the order the provider returned them.
func reduceText(resp *sightengine.TextCheckResponse) Decision {
	var flagged []string
	for _, c := range resp.Categories {
		if c.Matched {
			flagged = append(flagged, c.Name)
		}
	}
	if len(flagged) == 0 {
		return Decision{
			Classification: domain.ClassificationSafe,
			Confidence:     confidenceSafe,
			Reasoning:      "No inappropriate content detected",
			rawResponse:    resp.Raw,
		}
	}
	cls := strings.Join(flagged, ",")
	return Decision{
		Classification: cls,
		Confidence:     confidenceFlagged,
		Reasoning:      "Flagged categories detected: " + cls,
		rawResponse:    resp.Raw,
	}
}

// imageCheck is one entry of the fixed-priority model evaluation.
type imageCheck struct {
	score     func(*sightengine.ImageCheckResponse) *float64
	reasoning string
}

// imageChecks is evaluated in order; the first model whose score strictly
// exceeds the threshold wins and evaluation stops. Nudity and violence
// report a raw score, the remaining models a probability.
var imageChecks = []imageCheck{
	{rawScore(func(r *sightengine.ImageCheckResponse) *sightengine.ImageModelScore { return r.Nudity }), "Nudity detected"},
	{rawScore(func(r *sightengine.ImageCheckResponse) *sightengine.ImageModelScore { return r.Violence }), "Violence detected"},
	{probScore(func(r *sightengine.ImageCheckResponse) *sightengine.ImageModelScore { return r.Weapon }), "Weapons detected"},
	{probScore(func(r *sightengine.ImageCheckResponse) *sightengine.ImageModelScore { return r.Alcohol }), "Alcohol detected"},
	{probScore(func(r *sightengine.ImageCheckResponse) *sightengine.ImageModelScore { return r.Drugs }), "Drugs detected"},
}

func rawScore(sel func(*sightengine.ImageCheckResponse) *sightengine.ImageModelScore) func(*sightengine.ImageCheckResponse) *float64 {
	return func(r *sightengine.ImageCheckResponse) *float64 {
		if m := sel(r); m != nil {
			return m.Raw
		}
		return nil
	}
}

func probScore(sel func(*sightengine.ImageCheckResponse) *sightengine.ImageModelScore) func(*sightengine.ImageCheckResponse) *float64 {
	return func(r *sightengine.ImageCheckResponse) *float64 {
		if m := sel(r); m != nil {
			return m.Prob
		}
		return nil
	}
}

// reduceImage evaluates the models in fixed priority order and stops at the
// first trigger. Multiple simultaneous triggers are never aggregated; the
// highest-priority one determines the whole decision.
func reduceImage(resp *sightengine.ImageCheckResponse) Decision {
	for _, chk := range imageChecks {
		v := chk.score(resp)
		if v != nil && *v > imageScoreThreshold {
			return Decision{
				Classification: classificationInappropriate,
				Confidence:     *v,
				Reasoning:      chk.reasoning,
				rawResponse:    resp.Raw,
			}
		}
	}
	return Decision{
		Classification: domain.ClassificationSafe,
		Confidence:     confidenceSafe,
		Reasoning:      "No flagged content detected",
		rawResponse:    resp.Raw,
	}
}

// --- Helpers ---

// fingerprint computes the SHA-256 hex digest of the raw payload. It is a
// content-addressing identifier stored for audit; nothing looks rows up by
// it and duplicates are allowed.
func fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// normalizeLang reduces a submitted language tag to the base code the
// provider expects ("en-GB" → "en"). Blank or unparseable tags fall back
// to English.
func normalizeLang(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return defaultLang
	}
	t, err := language.Parse(tag)
	if err != nil {
		return defaultLang
	}
	base, _ := t.Base()
	return base.String()
}

// normalizeMIME strips parameters and case from a declared content type
// ("IMAGE/JPEG; charset=binary" → "image/jpeg").
func normalizeMIME(mt string) string {
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}
