package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	commonlog "portal_server/server/common/log"
	"portal_server/server/common/transport/httpresp"
	"portal_server/server/portal/domain"
	"portal_server/server/portal/service"
)

const messageIdempotencyTTL = 24 * time.Hour

func messageIdempotencyKey(role domain.Role, threadID, key string) string {
	return fmt.Sprintf("message:%s:%s:%s", role, threadID, key)
}

func (h *Handler) listThreads(c *gin.Context) {
	items, err := h.threads.ListThreads(c.Request.Context(), c.Param("id"), c.Query("include_archived") == "true")
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewListResponse(items))
}

func (h *Handler) createThread(c *gin.Context) {
	var req struct {
		Title          string `json:"title" binding:"required"`
		Priority       string `json:"priority"`
		InitialMessage string `json:"initial_message"`
		Translate      bool   `json:"translate"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	th, err := h.threads.CreateThread(c.Request.Context(), service.CreateThreadInput{
		ProjectID:      c.Param("id"),
		Title:          req.Title,
		Priority:       domain.ThreadPriority(req.Priority),
		InitialMessage: req.InitialMessage,
		CreatedBy:      roleFromContext(c),
		Translate:      req.Translate,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, th)
}

func (h *Handler) getThread(c *gin.Context) {
	th, err := h.threads.GetThread(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, th)
}

func (h *Handler) listMessages(c *gin.Context) {
	items, err := h.threads.ListMessages(c.Request.Context(), c.Param("id"), roleFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewListResponse(items))
}

func (h *Handler) sendMessage(c *gin.Context) {
	var req struct {
		Content        string                   `json:"content"`
		IsPrivate      bool                     `json:"is_private"`
		Type           string                   `json:"type"`
		Translate      bool                     `json:"translate"`
		SourceLanguage string                   `json:"source_language"`
		File           *service.FileAttachment `json:"file"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	role := roleFromContext(c)
	threadID := c.Param("id")

	idempotencyKey := ""
	if key := strings.TrimSpace(c.GetHeader("Idempotency-Key")); key != "" && h.idempotency != nil {
		idempotencyKey = messageIdempotencyKey(role, threadID, key)
		ok, err := h.idempotency.Claim(ctx, idempotencyKey, messageIdempotencyTTL)
		if err != nil {
			writeError(c, err)
			return
		}
		if !ok {
			c.JSON(http.StatusConflict, httpresp.NewErrorResponse("duplicate idempotency key"))
			return
		}
	}

	startedAt := time.Now()
	msg, err := h.threads.SendMessage(ctx, service.SendMessageInput{
		ThreadID:       threadID,
		Author:         role,
		Content:        req.Content,
		IsPrivate:      req.IsPrivate,
		Type:           domain.MessageType(req.Type),
		Translate:      req.Translate,
		SourceLanguage: req.SourceLanguage,
		File:           req.File,
	})
	if err != nil {
		if idempotencyKey != "" {
			_ = h.idempotency.Release(ctx, idempotencyKey)
		}
		writeError(c, err)
		return
	}
	commonlog.Infof("event=message_send action=create status=ok source=http thread_id=%s role=%s message_id=%s idempotency_key_present=%t latency_ms=%d", threadID, role, msg.ID, idempotencyKey != "", time.Since(startedAt).Milliseconds())
	c.JSON(http.StatusCreated, msg)
}

func (h *Handler) markRead(c *gin.Context) {
	th, err := h.threads.MarkThreadAsRead(c.Request.Context(), c.Param("id"), roleFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, th)
}

func (h *Handler) updateStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
		Note   string `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	th, err := h.threads.UpdateThreadStatus(c.Request.Context(), c.Param("id"), domain.ThreadStatus(req.Status), roleFromContext(c), req.Note)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, th)
}

func (h *Handler) archiveThread(c *gin.Context) {
	var req struct {
		Archived *bool `json:"archived"`
	}
	_ = c.ShouldBindJSON(&req)
	archived := true
	if req.Archived != nil {
		archived = *req.Archived
	}
	th, err := h.threads.ToggleThreadArchive(c.Request.Context(), c.Param("id"), archived)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, th)
}

func (h *Handler) deleteThread(c *gin.Context) {
	res, err := h.threads.DeleteThread(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) editMessage(c *gin.Context) {
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	msg, err := h.threads.EditMessage(c.Request.Context(), c.Param("id"), roleFromContext(c), req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *Handler) deleteMessage(c *gin.Context) {
	msg, err := h.threads.DeleteMessage(c.Request.Context(), c.Param("id"), roleFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *Handler) unreadCount(c *gin.Context) {
	role := roleFromContext(c)
	count, err := h.threads.GetTotalUnreadCount(c.Request.Context(), role)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, UnreadCountResponse{Role: string(role), UnreadCount: count})
}
