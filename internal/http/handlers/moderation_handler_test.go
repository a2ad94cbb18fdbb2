package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-moderation-backend/internal/repo"
	"github.com/tbourn/go-moderation-backend/internal/services"
)

// ---------- fakes ----------

type notifyCall struct {
	requestID uint
	email     string
	dec       services.Decision
}

// fakeModSvc implements ModerationService with canned results.
type fakeModSvc struct {
	id  uint
	dec services.Decision
	err error

	notified []notifyCall
}

func (f *fakeModSvc) ModerateText(ctx context.Context, userEmail, text, lang string) (uint, services.Decision, error) {
	return f.id, f.dec, f.err
}

func (f *fakeModSvc) ModerateImage(ctx context.Context, userEmail string, data []byte, mimeType, filename string) (uint, services.Decision, error) {
	return f.id, f.dec, f.err
}

func (f *fakeModSvc) NotifyIfFlagged(ctx context.Context, requestID uint, userEmail string, dec services.Decision) {
	f.notified = append(f.notified, notifyCall{requestID: requestID, email: userEmail, dec: dec})
}

// fakeAnSvc implements AnalyticsService with canned results.
type fakeAnSvc struct {
	sum   *services.Summary
	items []repo.RequestWithResult
	total int64
	err   error
}

func (f *fakeAnSvc) Summarize(ctx context.Context, userEmail string) (*services.Summary, error) {
	return f.sum, f.err
}

func (f *fakeAnSvc) ListRequests(ctx context.Context, userEmail string, page, pageSize int) ([]repo.RequestWithResult, int64, error) {
	return f.items, f.total, f.err
}

func newTestRouter(mod *fakeModSvc, an AnalyticsService, maxImageBytes int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := New(mod, an, maxImageBytes)
	r := gin.New()
	r.POST("/moderate/text", h.ModerateText)
	r.POST("/moderate/image", h.ModerateImage)
	r.GET("/analytics/summary", h.AnalyticsSummary)
	r.GET("/moderation/requests", h.ListRequests)
	return r
}

func postJSON(t *testing.T, r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeErr(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error envelope: %v (%s)", err, w.Body.String())
	}
	return e
}

// ---------- text ----------

func TestModerateText_OK_AndNotifyAfterResponse(t *testing.T) {
	mod := &fakeModSvc{
		id: 11,
		dec: services.Decision{
			Classification: "violence",
			Confidence:     0.9,
			Reasoning:      "Flagged categories detected: violence",
		},
	}
	r := newTestRouter(mod, &fakeAnSvc{}, 0)

	w := postJSON(t, r, "/moderate/text", ModerateTextRequest{
		Email: "user@example.com",
		Text:  "nasty text",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}

	var resp ModerateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Classification != "violence" || resp.Confidence != 0.9 {
		t.Fatalf("response = %+v", resp)
	}

	if len(mod.notified) != 1 {
		t.Fatalf("notify calls = %d; want 1", len(mod.notified))
	}
	n := mod.notified[0]
	if n.requestID != 11 || n.email != "user@example.com" || n.dec.Classification != "violence" {
		t.Fatalf("notify = %+v", n)
	}
}

func TestModerateText_BindValidation(t *testing.T) {
	mod := &fakeModSvc{}
	r := newTestRouter(mod, &fakeAnSvc{}, 0)

	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing email", map[string]any{"text": "hi"}},
		{"invalid email", map[string]any{"email": "not-an-email", "text": "hi"}},
		{"missing text", map[string]any{"email": "user@example.com"}},
		{"text too long", map[string]any{"email": "user@example.com", "text": strings.Repeat("a", 1001)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := postJSON(t, r, "/moderate/text", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
			}
			if e := decodeErr(t, w); e.Code != ErrCodeBadRequest {
				t.Fatalf("code = %q", e.Code)
			}
			if len(mod.notified) != 0 {
				t.Fatalf("notify must not be called on validation failure")
			}
		})
	}
}

func TestModerateText_MaxLengthAcceptedAtBoundary(t *testing.T) {
	mod := &fakeModSvc{dec: services.Decision{Classification: "safe", Confidence: 0.99}}
	r := newTestRouter(mod, &fakeAnSvc{}, 0)

	w := postJSON(t, r, "/moderate/text", map[string]any{
		"email": "user@example.com",
		"text":  strings.Repeat("a", 1000),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("1000 chars rejected: %d %s", w.Code, w.Body.String())
	}
}

func TestModerateText_ServiceErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"empty text sentinel", services.ErrEmptyText, http.StatusBadRequest, ErrCodeBadRequest},
		{"too long sentinel", services.ErrTextTooLong, http.StatusBadRequest, ErrCodeBadRequest},
		{"provider failure", errors.New("provider status failure"), http.StatusInternalServerError, ErrCodeModerationFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mod := &fakeModSvc{err: tc.err}
			r := newTestRouter(mod, &fakeAnSvc{}, 0)

			w := postJSON(t, r, "/moderate/text", ModerateTextRequest{Email: "user@example.com", Text: "hello"})
			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d; want %d", w.Code, tc.wantStatus)
			}
			e := decodeErr(t, w)
			if e.Code != tc.wantCode {
				t.Fatalf("code = %q; want %q", e.Code, tc.wantCode)
			}
			if !strings.HasPrefix(e.Message, "Moderation failed: ") {
				t.Fatalf("message = %q", e.Message)
			}
			if len(mod.notified) != 0 {
				t.Fatalf("notify must not be called on failure")
			}
		})
	}
}

// ---------- image ----------

func multipartUpload(t *testing.T, email, filename, contentType string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if email != "" {
		if err := mw.WriteField("email", email); err != nil {
			t.Fatalf("write email field: %v", err)
		}
	}
	if filename != "" {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
		hdr.Set("Content-Type", contentType)
		part, err := mw.CreatePart(hdr)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write(payload); err != nil {
			t.Fatalf("write payload: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func postMultipart(t *testing.T, r *gin.Engine, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/moderate/image", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestModerateImage_OK(t *testing.T) {
	mod := &fakeModSvc{
		id:  21,
		dec: services.Decision{Classification: "inappropriate", Confidence: 0.91, Reasoning: "Nudity detected"},
	}
	r := newTestRouter(mod, &fakeAnSvc{}, 1<<20)

	body, ct := multipartUpload(t, "user@example.com", "pic.jpg", "image/jpeg", []byte{0xFF, 0xD8, 0xFF})
	w := postMultipart(t, r, body, ct)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}

	var resp ModerateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Reasoning != "Nudity detected" {
		t.Fatalf("response = %+v", resp)
	}
	if len(mod.notified) != 1 || mod.notified[0].requestID != 21 {
		t.Fatalf("notified = %+v", mod.notified)
	}
}

func TestModerateImage_FormValidation(t *testing.T) {
	mod := &fakeModSvc{dec: services.Decision{Classification: "safe"}}
	r := newTestRouter(mod, &fakeAnSvc{}, 1<<20)

	// Missing email field.
	body, ct := multipartUpload(t, "", "pic.jpg", "image/jpeg", []byte{1})
	if w := postMultipart(t, r, body, ct); w.Code != http.StatusBadRequest {
		t.Fatalf("missing email: %d", w.Code)
	}

	// Missing file part.
	body, ct = multipartUpload(t, "user@example.com", "", "", nil)
	if w := postMultipart(t, r, body, ct); w.Code != http.StatusBadRequest {
		t.Fatalf("missing file: %d", w.Code)
	}
}

func TestModerateImage_UnsupportedTypeAndSize(t *testing.T) {
	mod := &fakeModSvc{dec: services.Decision{Classification: "safe"}}
	// Tiny limit so the size branch is easy to cross.
	r := newTestRouter(mod, &fakeAnSvc{}, 8)

	body, ct := multipartUpload(t, "user@example.com", "doc.pdf", "application/pdf", []byte{1, 2})
	w := postMultipart(t, r, body, ct)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("pdf: %d", w.Code)
	}
	if e := decodeErr(t, w); e.Message != "Unsupported file type" {
		t.Fatalf("message = %q", e.Message)
	}

	// Exactly the limit passes through to the service.
	body, ct = multipartUpload(t, "user@example.com", "pic.png", "image/png", make([]byte, 8))
	if w := postMultipart(t, r, body, ct); w.Code != http.StatusOK {
		t.Fatalf("payload at limit: %d %s", w.Code, w.Body.String())
	}

	// One byte over is rejected.
	body, ct = multipartUpload(t, "user@example.com", "pic.png", "image/png", make([]byte, 9))
	w = postMultipart(t, r, body, ct)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("oversize: %d", w.Code)
	}
	if e := decodeErr(t, w); e.Message != "File too large" {
		t.Fatalf("message = %q", e.Message)
	}
}

func TestModerateImage_ServiceError(t *testing.T) {
	mod := &fakeModSvc{err: errors.New("provider status failure")}
	r := newTestRouter(mod, &fakeAnSvc{}, 1<<20)

	body, ct := multipartUpload(t, "user@example.com", "pic.jpg", "image/jpeg", []byte{1})
	w := postMultipart(t, r, body, ct)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	e := decodeErr(t, w)
	if e.Code != ErrCodeModerationFailed || !strings.HasPrefix(e.Message, "Image moderation failed: ") {
		t.Fatalf("envelope = %+v", e)
	}
}
