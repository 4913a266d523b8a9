package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"portal_server/server/common/transport/httpresp"
	"portal_server/server/portal/domain"
	"portal_server/server/portal/service"
	"portal_server/server/translate"
)

func (h *Handler) translate(c *gin.Context) {
	var req struct {
		Text           string `json:"text" binding:"required"`
		SourceLanguage string `json:"source_language" binding:"required"`
		TargetLanguage string `json:"target_language" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, h.translator.Translate(c.Request.Context(), req.Text, req.SourceLanguage, req.TargetLanguage))
}

// detectLanguage chooses between two candidate languages, en and es unless
// the caller names others.
func (h *Handler) detectLanguage(c *gin.Context) {
	var req struct {
		Text       string   `json:"text" binding:"required"`
		Candidates []string `json:"candidates"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	a, b := "en", "es"
	if len(req.Candidates) == 2 {
		a, b = req.Candidates[0], req.Candidates[1]
	} else if len(req.Candidates) != 0 {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("candidates must name exactly two languages"))
		return
	}
	c.JSON(http.StatusOK, DetectLanguageResponse{Language: translate.DetectLanguage(req.Text, a, b)})
}

func (h *Handler) migrateFeedback(c *gin.Context) {
	var req struct {
		ClientName  string `json:"client_name"`
		Email       string `json:"email"`
		Language    string `json:"language"`
		ProjectName string `json:"project_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.migrations.MigrateFeedbackData(c.Request.Context(), service.MigrateFeedbackInput(req))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) cleanupWelcome(c *gin.Context) {
	res, err := h.migrations.CleanupWelcomeMessages(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) importFeedback(c *gin.Context) {
	var req struct {
		Records []service.FeedbackInput `json:"records" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	imported, err := h.migrations.ImportFeedback(c.Request.Context(), req.Records)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpresp.NewCountResponse(int64(imported)))
}

func (h *Handler) listNotifications(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("limit must be a positive integer"))
			return
		}
		limit = n
	}
	items, err := h.outbox.List(c.Request.Context(), domain.NotificationStatus(c.Query("status")), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewListResponse(items))
}

// retryNotifications resets the named rows, or every failed row when the
// body is empty.
func (h *Handler) retryNotifications(c *gin.Context) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	reset, err := h.outbox.Retry(c.Request.Context(), req.IDs)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpresp.NewCountResponse(int64(reset)))
}
