package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	commonauth "portal_server/server/common/auth"
	"portal_server/server/common/middleware"
	"portal_server/server/common/transport/httpresp"
	"portal_server/server/notifier"
	"portal_server/server/portal/domain"
	"portal_server/server/portal/service"
)

// Claimer reserves idempotency keys. cache.KV satisfies it.
type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type Deps struct {
	Auth       *commonauth.Service
	Projects   *service.ProjectService
	Threads    *service.ThreadService
	Files      *service.FileService
	Migrations *service.MigrationService
	Outbox     *notifier.Outbox
	Translator service.Translator
	Feed       service.Feed
	// Idempotency is optional; without it Idempotency-Key headers are ignored.
	Idempotency Claimer
}

type Handler struct {
	auth        *commonauth.Service
	projects    *service.ProjectService
	threads     *service.ThreadService
	files       *service.FileService
	migrations  *service.MigrationService
	outbox      *notifier.Outbox
	translator  service.Translator
	feed        service.Feed
	idempotency Claimer
}

func NewHandler(deps Deps) *Handler {
	return &Handler{
		auth:        deps.Auth,
		projects:    deps.Projects,
		threads:     deps.Threads,
		files:       deps.Files,
		migrations:  deps.Migrations,
		outbox:      deps.Outbox,
		translator:  deps.Translator,
		feed:        deps.Feed,
		idempotency: deps.Idempotency,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, NewHealthResponse("ok")) })
	r.GET("/ws", h.handleWS)
	r.POST("/api/v1/auth/login", h.login)

	api := r.Group("/api/v1")
	api.Use(middleware.AuthRequired(h.auth))
	{
		api.GET("/clients", h.listClients)
		api.GET("/clients/:id", h.getClient)

		api.GET("/projects", h.listProjects)
		api.GET("/projects/:id", h.getProject)
		api.POST("/projects/:id/setup", h.setupProject)
		api.GET("/projects/:id/threads", h.listThreads)
		api.POST("/projects/:id/threads", h.createThread)
		api.GET("/projects/:id/folders", h.listFolders)
		api.POST("/projects/:id/folders", h.createFolder)
		api.POST("/projects/:id/folders/defaults", h.setupDefaultFolders)
		api.GET("/projects/:id/files", h.listFiles)
		api.POST("/projects/:id/files", h.registerFile)
		api.POST("/projects/:id/files/presign", h.presignUpload)
		api.POST("/projects/:id/files/organize", h.organizeFiles)
		api.POST("/projects/:id/files/sync", h.syncFiles)

		api.GET("/threads/:id", h.getThread)
		api.GET("/threads/:id/messages", h.listMessages)
		api.POST("/threads/:id/messages", h.sendMessage)
		api.POST("/threads/:id/read", h.markRead)
		api.POST("/threads/:id/status", h.updateStatus)
		api.POST("/threads/:id/archive", h.archiveThread)
		api.PATCH("/messages/:id", h.editMessage)
		api.DELETE("/messages/:id", h.deleteMessage)
		api.GET("/unread-count", h.unreadCount)

		api.DELETE("/folders/:id", h.deleteFolder)
		api.GET("/files/:id/url", h.fileURL)
		api.POST("/files/:id/move", h.moveFile)
		api.PUT("/files/:id/tags", h.updateTags)
		api.DELETE("/files/:id", h.deleteFile)

		api.POST("/translate", h.translate)
		api.POST("/detect-language", h.detectLanguage)

		dev := api.Group("")
		dev.Use(middleware.RequireRoles(commonauth.RoleDeveloper))
		{
			dev.POST("/clients", h.createClient)
			dev.PATCH("/clients/:id", h.updateClient)
			dev.POST("/projects", h.createProject)
			dev.PATCH("/projects/:id", h.updateProject)
			dev.DELETE("/projects/:id", h.deleteProject)
			dev.POST("/projects/:id/archive", h.archiveProject)
			dev.DELETE("/threads/:id", h.deleteThread)

			dev.POST("/admin/migrate-feedback", h.migrateFeedback)
			dev.POST("/admin/cleanup-welcome", h.cleanupWelcome)
			dev.POST("/admin/feedback", h.importFeedback)
			dev.GET("/notifications", h.listNotifications)
			dev.POST("/notifications/retry", h.retryNotifications)
		}
	}
}

func (h *Handler) login(c *gin.Context) {
	var req struct {
		Role     string `json:"role" binding:"required"`
		Passcode string `json:"passcode" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	token, err := h.auth.Login(req.Role, req.Passcode)
	if err != nil {
		if errors.Is(err, commonauth.ErrInvalidPasscode) {
			c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrInvalidCredentials))
			return
		}
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, httpresp.NewTokenResponse(token, req.Role))
}

func roleFromContext(c *gin.Context) domain.Role {
	return domain.Role(c.GetString(middleware.ContextRoleKey))
}

func optionalQuery(c *gin.Context, key string) *string {
	if v, ok := c.GetQuery(key); ok && v != "" {
		return &v
	}
	return nil
}
