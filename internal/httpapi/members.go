package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smartlibrary/library/internal/domain"
	"github.com/smartlibrary/library/internal/members"
	"github.com/smartlibrary/library/internal/repo"
)

type memberListParams struct {
	pageParams
	Search string `form:"search"`
	Status string `form:"status"`
}

func (h *handler) listMembers(c *gin.Context) {
	var params memberListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}

	q := repo.MemberQuery{
		Search:     params.Search,
		Status:     domain.MemberStatus(params.Status),
		Pagination: params.pagination(),
	}
	views, total, err := h.Members.List(c.Request.Context(), q)
	if err != nil {
		h.fail(c, err)
		return
	}
	successPage(c, views, q.Pagination, total)
}

func (h *handler) getMember(c *gin.Context) {
	view, err := h.Members.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, http.StatusOK, view)
}

func (h *handler) memberTransactions(c *gin.Context) {
	var params transactionListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}
	if _, err := h.Members.Get(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}

	params.MemberID = c.Param("id")
	h.respondTransactions(c, params)
}

func (h *handler) registerMember(c *gin.Context) {
	var in members.MemberInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	view, err := h.Members.Register(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, http.StatusCreated, view)
}

func (h *handler) updateMember(c *gin.Context) {
	var in members.MemberUpdate
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	view, err := h.Members.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, http.StatusOK, view)
}

func (h *handler) deleteMember(c *gin.Context) {
	if err := h.Circulation.DeleteMember(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	successMessage(c, "Member deleted successfully")
}
