// Moderation HTTP handlers.
//
// This file exposes the submission endpoints of the moderation API:
//   - POST /moderate/text   (classify a text submission)
//   - POST /moderate/image  (classify an uploaded image)
//
// Handlers are transport-thin: they validate input, call the moderation
// service, translate results into HTTP responses, and only after the
// response has been written do they hand flagged decisions to the detached
// alert path. Notification failures can therefore never affect a response
// the client has already received.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-moderation-backend/internal/repo"
	"github.com/tbourn/go-moderation-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// ModerationService defines the decision pipeline operations consumed by
// HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ModerationService interface {
	// ModerateText classifies and persists a text submission.
	ModerateText(ctx context.Context, userEmail, text, lang string) (uint, services.Decision, error)
	// ModerateImage classifies and persists an image submission.
	ModerateImage(ctx context.Context, userEmail string, data []byte, mimeType, filename string) (uint, services.Decision, error)
	// NotifyIfFlagged schedules the alert for a non-safe decision on a
	// detached goroutine; it returns immediately and never fails.
	NotifyIfFlagged(ctx context.Context, requestID uint, userEmail string, dec services.Decision)
}

// AnalyticsService defines the read-only aggregation operations consumed by
// HTTP handlers.
type AnalyticsService interface {
	// Summarize computes the per-user analytics aggregate.
	Summarize(ctx context.Context, userEmail string) (*services.Summary, error)
	// ListRequests returns a page of a user's requests with their results.
	ListRequests(ctx context.Context, userEmail string, page, pageSize int) ([]repo.RequestWithResult, int64, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for moderation and analytics. It
// depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	modSvc ModerationService
	anSvc  AnalyticsService

	// maxImageBytes caps uploads before they are read into memory. The
	// limit is inclusive: an upload of exactly this size is accepted.
	maxImageBytes int64
}

// New constructs and returns a Handlers instance bound to the given services.
func New(modSvc ModerationService, anSvc AnalyticsService, maxImageBytes int64) *Handlers {
	if maxImageBytes <= 0 {
		maxImageBytes = 5 << 20
	}
	return &Handlers{modSvc: modSvc, anSvc: anSvc, maxImageBytes: maxImageBytes}
}

//
// DTOs
//

// ModerateTextRequest is the JSON payload for a text submission.
type ModerateTextRequest struct {
	// Email identifies the submitter; analytics are aggregated per email.
	Email string `json:"email" binding:"required,email" example:"user@example.com"`
	// Text is the content to classify (1–1000 characters).
	Text string `json:"text" binding:"required,min=1,max=1000" example:"check this text"`
	// Lang optionally tags the text's language; defaults to "en".
	Lang string `json:"lang,omitempty" example:"en"`
}

// ModerateResponse is the decision returned for both content types.
type ModerateResponse struct {
	Classification string  `json:"classification" example:"safe"`
	Confidence     float64 `json:"confidence" example:"0.99"`
	Reasoning      string  `json:"reasoning" example:"No inappropriate content detected"`
}

// moderateImageForm binds the non-file fields of the multipart upload.
type moderateImageForm struct {
	Email string `form:"email" binding:"required,email"`
}

//
// Handlers
//

// ModerateText godoc
// @ID          moderateText
// @Summary     Moderate a text submission
// @Description Classifies the text via the moderation provider, persists the decision, and returns it. Flagged content triggers an alert email after the response is sent.
// @Tags        Moderation
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.ModerateTextRequest  true  "Text submission"
//
// @Success     200  {object}  handlers.ModerateResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Moderation failed"
// @Router      /moderate/text [post]
func (h *Handlers) ModerateText(c *gin.Context) {
	var req ModerateTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email and text (1-1000 chars) are required")
		return
	}

	id, dec, err := h.modSvc.ModerateText(c.Request.Context(), req.Email, req.Text, req.Lang)
	if err != nil {
		status, code := moderationErrStatus(err)
		fail(c, status, code, "Moderation failed: "+err.Error())
		return
	}

	ok(c, http.StatusOK, ModerateResponse{
		Classification: dec.Classification,
		Confidence:     dec.Confidence,
		Reasoning:      dec.Reasoning,
	})

	// Response is written; only now may the alert path start.
	h.modSvc.NotifyIfFlagged(c.Request.Context(), id, req.Email, dec)
}

// ModerateImage godoc
// @ID          moderateImage
// @Summary     Moderate an image submission
// @Description Classifies an uploaded image (jpeg/png, up to 5 MiB) via the moderation provider, persists the decision, and returns it.
// @Tags        Moderation
// @Accept      multipart/form-data
// @Produce     json
//
// @Param       email  formData  string  true  "Submitter email"
// @Param       file   formData  file    true  "Image file (image/jpeg or image/png)"
//
// @Success     200  {object}  handlers.ModerateResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Unsupported type, oversize, or malformed form"
// @Failure     500  {object}  handlers.ErrorResponse  "Moderation failed"
// @Router      /moderate/image [post]
func (h *Handlers) ModerateImage(c *gin.Context) {
	var form moderateImageForm
	if err := c.ShouldBind(&form); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email form field is required")
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "file form field is required")
		return
	}

	// Cheap rejections before the payload is read into memory. The declared
	// content type is re-validated by the service.
	mimeType := fh.Header.Get("Content-Type")
	switch mimeType {
	case "image/jpeg", "image/png":
	default:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Unsupported file type")
		return
	}
	if fh.Size > h.maxImageBytes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "File too large")
		return
	}

	f, err := fh.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable upload")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.maxImageBytes+1))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable upload")
		return
	}
	if int64(len(data)) > h.maxImageBytes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "File too large")
		return
	}

	id, dec, err := h.modSvc.ModerateImage(c.Request.Context(), form.Email, data, mimeType, fh.Filename)
	if err != nil {
		status, code := moderationErrStatus(err)
		fail(c, status, code, "Image moderation failed: "+err.Error())
		return
	}

	ok(c, http.StatusOK, ModerateResponse{
		Classification: dec.Classification,
		Confidence:     dec.Confidence,
		Reasoning:      dec.Reasoning,
	})

	h.modSvc.NotifyIfFlagged(c.Request.Context(), id, form.Email, dec)
}

// moderationErrStatus maps service errors to an HTTP status and error code.
// Validation sentinels are client errors; everything else (provider,
// transport, store) is a downstream failure.
func moderationErrStatus(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrEmptyText),
		errors.Is(err, services.ErrTextTooLong),
		errors.Is(err, services.ErrUnsupportedImageType),
		errors.Is(err, services.ErrImageTooLarge):
		return http.StatusBadRequest, ErrCodeBadRequest
	default:
		return http.StatusInternalServerError, ErrCodeModerationFailed
	}
}
