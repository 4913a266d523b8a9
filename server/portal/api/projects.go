package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"portal_server/server/common/transport/httpresp"
	"portal_server/server/portal/domain"
	"portal_server/server/portal/service"
)

func (h *Handler) listClients(c *gin.Context) {
	items, err := h.projects.ListClients(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewListResponse(items))
}

func (h *Handler) getClient(c *gin.Context) {
	client, err := h.projects.GetClient(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, client)
}

func (h *Handler) createClient(c *gin.Context) {
	var req struct {
		Name      string `json:"name" binding:"required"`
		Email     string `json:"email"`
		Language  string `json:"language"`
		TechLevel int    `json:"tech_level"`
		Timezone  string `json:"timezone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	client, err := h.projects.CreateClient(c.Request.Context(), service.CreateClientInput{
		Name:      req.Name,
		Email:     req.Email,
		Language:  req.Language,
		TechLevel: req.TechLevel,
		Timezone:  req.Timezone,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, client)
}

func (h *Handler) updateClient(c *gin.Context) {
	var req struct {
		Name      *string `json:"name"`
		Email     *string `json:"email"`
		Language  *string `json:"language"`
		TechLevel *int    `json:"tech_level"`
		Timezone  *string `json:"timezone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	client, err := h.projects.UpdateClient(c.Request.Context(), c.Param("id"), service.UpdateClientInput(req))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, client)
}

func (h *Handler) listProjects(c *gin.Context) {
	items, err := h.projects.ListProjects(c.Request.Context(), c.Query("include_archived") == "true")
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewListResponse(items))
}

func (h *Handler) getProject(c *gin.Context) {
	p, err := h.projects.GetProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type projectRequest struct {
	ClientID    string     `json:"client_id"`
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	Type        *string    `json:"type"`
	Status      *string    `json:"status"`
	Priority    *string    `json:"priority"`
	Icon        *string    `json:"icon"`
	Color       *string    `json:"color"`
	Deadline    *time.Time `json:"deadline"`
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func (h *Handler) createProject(c *gin.Context) {
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.ClientID == "" || deref(req.Name) == "" {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("client_id and name are required"))
		return
	}
	p, err := h.projects.CreateProject(c.Request.Context(), service.CreateProjectInput{
		ClientID:    req.ClientID,
		Name:        deref(req.Name),
		Description: deref(req.Description),
		Type:        domain.ProjectType(deref(req.Type)),
		Status:      domain.ProjectStatus(deref(req.Status)),
		Priority:    domain.ProjectPriority(deref(req.Priority)),
		Icon:        deref(req.Icon),
		Color:       deref(req.Color),
		Deadline:    req.Deadline,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) updateProject(c *gin.Context) {
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	input := service.UpdateProjectInput{
		Name:        req.Name,
		Description: req.Description,
		Icon:        req.Icon,
		Color:       req.Color,
		Deadline:    req.Deadline,
	}
	if req.Type != nil {
		t := domain.ProjectType(*req.Type)
		input.Type = &t
	}
	if req.Status != nil {
		s := domain.ProjectStatus(*req.Status)
		input.Status = &s
	}
	if req.Priority != nil {
		p := domain.ProjectPriority(*req.Priority)
		input.Priority = &p
	}
	p, err := h.projects.UpdateProject(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) archiveProject(c *gin.Context) {
	var req struct {
		Archived *bool `json:"archived"`
	}
	_ = c.ShouldBindJSON(&req)
	archived := true
	if req.Archived != nil {
		archived = *req.Archived
	}
	p, err := h.projects.ArchiveProject(c.Request.Context(), c.Param("id"), archived)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) deleteProject(c *gin.Context) {
	res, err := h.projects.DeleteProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) setupProject(c *gin.Context) {
	res, err := h.files.SetupProjectFileSystem(c.Request.Context(), c.Param("id"), roleFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
