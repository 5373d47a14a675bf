package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smartlibrary/library/internal/catalog"
	"github.com/smartlibrary/library/internal/domain"
	"github.com/smartlibrary/library/internal/repo"
)

type pageParams struct {
	Page  int `form:"page"`
	Limit int `form:"limit"`
}

func (p pageParams) pagination() repo.Pagination {
	return repo.Pagination{Page: p.Page, Limit: p.Limit}.Normalize()
}

type bookListParams struct {
	pageParams
	Search   string `form:"search"`
	Category string `form:"category"`
}

func (h *handler) listBooks(c *gin.Context) {
	var params bookListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}

	q := repo.BookQuery{
		Search:     params.Search,
		Category:   domain.Category(params.Category),
		Pagination: params.pagination(),
	}
	views, total, err := h.Catalog.List(c.Request.Context(), q)
	if err != nil {
		h.fail(c, err)
		return
	}
	successPage(c, views, q.Pagination, total)
}

func (h *handler) overdueBooks(c *gin.Context) {
	views, err := h.Catalog.Overdue(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, http.StatusOK, views)
}

func (h *handler) booksByCategory(c *gin.Context) {
	views, err := h.Catalog.ByCategory(c.Request.Context(), domain.Category(c.Param("category")))
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, http.StatusOK, views)
}

func (h *handler) getBook(c *gin.Context) {
	view, err := h.Catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, http.StatusOK, view)
}

func (h *handler) bookStatus(c *gin.Context) {
	status, err := h.Catalog.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"id": c.Param("id"), "status": status})
}

func (h *handler) createBook(c *gin.Context) {
	var in catalog.BookInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	view, err := h.Catalog.Create(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, http.StatusCreated, view)
}

func (h *handler) updateBook(c *gin.Context) {
	var in catalog.BookUpdate
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	view, err := h.Catalog.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, http.StatusOK, view)
}

func (h *handler) deleteBook(c *gin.Context) {
	if err := h.Circulation.DeleteBook(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	successMessage(c, "Book deleted successfully")
}
