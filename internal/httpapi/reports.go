package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (h *handler) dashboard(c *gin.Context) {
	data, err := h.Reports.Dashboard(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, http.StatusOK, data)
}

func (h *handler) categories(c *gin.Context) {
	data, err := h.Reports.Categories(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, http.StatusOK, data)
}

func (h *handler) memberActivity(c *gin.Context) {
	data, err := h.Reports.MemberActivity(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, http.StatusOK, data)
}

func (h *handler) overdueReport(c *gin.Context) {
	data, err := h.Reports.Overdue(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, http.StatusOK, data)
}

func (h *handler) monthlyTrends(c *gin.Context) {
	data, err := h.Reports.MonthlyTrends(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, http.StatusOK, data)
}

// exportOverdue renders the workbook before writing so that a failure can
// still produce a JSON error.
func (h *handler) exportOverdue(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.Reports.ExportOverdue(c.Request.Context(), &buf); err != nil {
		h.fail(c, err)
		return
	}

	filename := fmt.Sprintf("overdue-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
