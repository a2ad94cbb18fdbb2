// Analytics HTTP handlers.
//
// This file exposes the read-only reporting endpoints:
//   - GET /analytics/summary      (per-user aggregate)
//   - GET /moderation/requests    (paginated audit listing, ETag support)
//
// Both endpoints read committed state directly from the store; there is no
// caching layer, so responses always reflect every decision committed
// before the query ran.
package handlers

import (
	"fmt"
	"net/http"
	"net/mail"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-moderation-backend/internal/repo"
	"github.com/tbourn/go-moderation-backend/internal/services"
	"github.com/tbourn/go-moderation-backend/internal/utils"
)

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListRequestsResponse wraps a page of moderation requests and pagination
// information.
type ListRequestsResponse struct {
	Requests   []repo.RequestWithResult `json:"requests"`
	Pagination Pagination               `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// userParam extracts and validates the required ?user=<email> query param.
// It writes the failure response itself and reports success via ok.
func userParam(c *gin.Context) (string, bool) {
	user := strings.TrimSpace(c.Query("user"))
	if user == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user query parameter is required")
		return "", false
	}
	if _, err := mail.ParseAddress(user); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user must be a valid email address")
		return "", false
	}
	return user, true
}

//
// Handlers
//

// AnalyticsSummary godoc
// @ID          analyticsSummary
// @Summary     Per-user moderation summary
// @Description Returns total request count, a classification histogram, and the most recent submission time for a user.
// @Tags        Analytics
// @Produce     json
//
// @Param       user  query  string  true  "User email"  example(user@example.com)
//
// @Success     200  {object}  services.Summary
// @Failure     400  {object}  handlers.ErrorResponse  "Missing or invalid user"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /analytics/summary [get]
func (h *Handlers) AnalyticsSummary(c *gin.Context) {
	user, okParam := userParam(c)
	if !okParam {
		return
	}

	sum, err := h.anSvc.Summarize(c.Request.Context(), user)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeAnalyticsFailed, "Failed to fetch analytics summary: "+err.Error())
		return
	}
	ok(c, http.StatusOK, sum)
}

// ListRequests godoc
// @ID          listModerationRequests
// @Summary     List moderation requests (paginated)
// @Description Returns a page of the user's moderation requests joined with their results, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Analytics
// @Produce     json
//
// @Param       user           query   string  true  "User email"                  example(user@example.com)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       page           query   int     false "Page number"                 minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"              minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListRequestsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /moderation/requests [get]
func (h *Handlers) ListRequests(c *gin.Context) {
	ctx := c.Request.Context()
	user, okParam := userParam(c)
	if !okParam {
		return
	}
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort). The store is append-only, so the pair
	// (count, latest created-at) changes exactly when the listing does.
	var db *gorm.DB
	if svc, isConcrete := h.anSvc.(*services.AnalyticsService); isConcrete {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.RequestsStats(ctx, db, user)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"requests:%s:%d:%d"`, user, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.anSvc.ListRequests(ctx, user, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	resp := ListRequestsResponse{
		Requests: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	}
	ok(c, http.StatusOK, resp)
}
