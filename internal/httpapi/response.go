package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smartlibrary/library/internal/domain"
	"github.com/smartlibrary/library/internal/repo"
)

// PageInfo describes one page of a list response.
type PageInfo struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

func success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

func successMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": message,
	})
}

func successPage(c *gin.Context, data interface{}, p repo.Pagination, total int64) {
	p = p.Normalize()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
		"pagination": PageInfo{
			Page:  p.Page,
			Limit: p.Limit,
			Total: total,
			Pages: p.Pages(total),
		},
	})
}

// statusFor maps a failure kind to its HTTP status.
func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindValidation, domain.KindPreconditionFailed, domain.KindInvalidState:
		return http.StatusBadRequest
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the error envelope for err and aborts the chain. Internal
// errors are logged and their detail hidden from the client.
func (h *handler) fail(c *gin.Context, err error) {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		h.log.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Error(err))
		abort(c, http.StatusInternalServerError, "internal server error", nil)
		return
	}

	status := statusFor(derr.Kind)
	if status == http.StatusInternalServerError {
		h.log.Error("Request failed", zap.String("request_id", c.GetString(requestIDKey)), zap.Error(err))
	}
	abort(c, status, derr.Message, derr.Fields)
}

func abort(c *gin.Context, status int, message string, fields map[string]string) {
	body := gin.H{
		"success": false,
		"message": message,
	}
	if len(fields) > 0 {
		body["errors"] = fields
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, message string) {
	abort(c, http.StatusBadRequest, message, nil)
}
