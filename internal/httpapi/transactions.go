package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smartlibrary/library/internal/circulation"
	"github.com/smartlibrary/library/internal/domain"
	"github.com/smartlibrary/library/internal/repo"
)

type transactionListParams struct {
	pageParams
	Status   string `form:"status"`
	MemberID string `form:"memberId"`
	BookID   string `form:"bookId"`
}

func (h *handler) listTransactions(c *gin.Context) {
	var params transactionListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}
	h.respondTransactions(c, params)
}

func (h *handler) respondTransactions(c *gin.Context, params transactionListParams) {
	q := repo.TransactionQuery{
		Status:     domain.TransactionStatus(params.Status),
		MemberID:   params.MemberID,
		BookID:     params.BookID,
		Pagination: params.pagination(),
	}
	views, total, err := h.Circulation.List(c.Request.Context(), q)
	if err != nil {
		h.fail(c, err)
		return
	}
	successPage(c, views, q.Pagination, total)
}

func (h *handler) getTransaction(c *gin.Context) {
	view, err := h.Circulation.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, http.StatusOK, view)
}

func (h *handler) borrow(c *gin.Context) {
	var in circulation.BorrowInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	view, err := h.Circulation.Borrow(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, http.StatusCreated, view)
}

func (h *handler) returnBook(c *gin.Context) {
	view, err := h.Circulation.Return(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, http.StatusOK, view)
}

func (h *handler) updateTransaction(c *gin.Context) {
	var in circulation.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	view, err := h.Circulation.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, http.StatusOK, view)
}

func (h *handler) deleteTransaction(c *gin.Context) {
	deleted, err := h.Circulation.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if !deleted {
		h.fail(c, domain.ErrTransactionNotFound)
		return
	}
	successMessage(c, "Transaction deleted successfully")
}

func (h *handler) sweepOverdue(c *gin.Context) {
	marked, err := h.Circulation.SweepOverdue(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"marked": marked})
}
