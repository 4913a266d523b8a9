package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	commonlog "portal_server/server/common/log"
	"portal_server/server/common/transport/httpresp"
	"portal_server/server/portal/domain"
)

type ListResponse[T any] struct {
	Items []T `json:"items"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type UnreadCountResponse struct {
	Role        string `json:"role"`
	UnreadCount int64  `json:"unread_count"`
}

type DetectLanguageResponse struct {
	Language string `json:"language"`
}

func NewListResponse[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items}
}

func NewHealthResponse(status string) HealthResponse {
	return HealthResponse{Status: status}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		commonlog.Errorf("event=http_request action=%s status=failed path=%s error=%v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, httpresp.NewErrorResponse(err.Error()))
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
}
