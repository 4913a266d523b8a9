package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"portal_server/server/common/transport/httpresp"
	"portal_server/server/portal/domain"
	"portal_server/server/portal/service"
)

func (h *Handler) listFolders(c *gin.Context) {
	items, err := h.files.ListFolders(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewListResponse(items))
}

func (h *Handler) createFolder(c *gin.Context) {
	var req struct {
		Name     string  `json:"name" binding:"required"`
		ParentID *string `json:"parent_id"`
		Color    string  `json:"color"`
		Icon     string  `json:"icon"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	folder, err := h.files.CreateFolder(c.Request.Context(), service.CreateFolderInput{
		ProjectID: c.Param("id"),
		ParentID:  req.ParentID,
		Name:      req.Name,
		Color:     req.Color,
		Icon:      req.Icon,
		CreatedBy: roleFromContext(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, folder)
}

func (h *Handler) setupDefaultFolders(c *gin.Context) {
	created, err := h.files.SetupDefaultFolders(c.Request.Context(), c.Param("id"), roleFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpresp.NewCountResponse(int64(created)))
}

// listFiles narrows by folder_id, or by placement (unsorted, root, folder).
func (h *Handler) listFiles(c *gin.Context) {
	folderID := optionalQuery(c, "folder_id")
	placement := domain.Placement(c.Query("placement"))
	if folderID != nil {
		placement = domain.PlacementFolder
	}
	switch placement {
	case "", domain.PlacementUnsorted, domain.PlacementRoot, domain.PlacementFolder:
	default:
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("placement must be unsorted, root or folder"))
		return
	}
	items, err := h.files.ListFiles(c.Request.Context(), c.Param("id"), folderID, placement)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewListResponse(items))
}

// registerFile catalogues an object that was uploaded through a presigned URL.
func (h *Handler) registerFile(c *gin.Context) {
	var req struct {
		StorageID   string   `json:"storage_id" binding:"required"`
		ThumbnailID *string  `json:"thumbnail_id"`
		FileName    string   `json:"file_name" binding:"required"`
		FileType    string   `json:"file_type"`
		FileSize    int64    `json:"file_size"`
		FolderID    *string  `json:"folder_id"`
		MessageID   *string  `json:"message_id"`
		Tags        []string `json:"tags"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	file, err := h.files.RegisterUpload(c.Request.Context(), service.AddFileInput{
		ProjectID:   c.Param("id"),
		FolderID:    req.FolderID,
		StorageID:   req.StorageID,
		ThumbnailID: req.ThumbnailID,
		FileName:    req.FileName,
		FileType:    req.FileType,
		FileSize:    req.FileSize,
		MessageID:   req.MessageID,
		Tags:        req.Tags,
		UploadedBy:  roleFromContext(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, file)
}

func (h *Handler) presignUpload(c *gin.Context) {
	var req struct {
		FileName string `json:"file_name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	target, err := h.files.PresignUpload(c.Request.Context(), c.Param("id"), req.FileName)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, target)
}

func (h *Handler) organizeFiles(c *gin.Context) {
	moved, err := h.files.AutoOrganizeFiles(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpresp.NewCountResponse(int64(moved)))
}

func (h *Handler) syncFiles(c *gin.Context) {
	synced, err := h.files.SyncMessageFilesToProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpresp.NewCountResponse(int64(synced)))
}

func (h *Handler) deleteFolder(c *gin.Context) {
	released, err := h.files.DeleteFolder(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpresp.NewCountResponse(released))
}

func (h *Handler) fileURL(c *gin.Context) {
	u, err := h.files.FileURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpresp.NewURLResponse(u))
}

// moveFile takes {"folder_id": null} to put the file at the project root.
func (h *Handler) moveFile(c *gin.Context) {
	var req struct {
		FolderID *string `json:"folder_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	file, err := h.files.MoveFileToFolder(c.Request.Context(), c.Param("id"), req.FolderID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, file)
}

func (h *Handler) updateTags(c *gin.Context) {
	var req struct {
		Tags []string `json:"tags"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	file, err := h.files.UpdateFileTags(c.Request.Context(), c.Param("id"), req.Tags)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, file)
}

func (h *Handler) deleteFile(c *gin.Context) {
	if err := h.files.DeleteFile(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpresp.NewOKResponse())
}
