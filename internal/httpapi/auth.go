package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smartlibrary/library/internal/auth"
	"github.com/smartlibrary/library/internal/domain"
)

func (h *handler) register(c *gin.Context) {
	var in auth.RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	session, err := h.Auth.Register(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, http.StatusCreated, session)
}

func (h *handler) login(c *gin.Context) {
	var in auth.LoginInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	session, err := h.Auth.Login(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, http.StatusOK, session)
}

func (h *handler) profile(c *gin.Context) {
	principal := principalFrom(c)
	if principal == nil {
		h.fail(c, domain.ErrInvalidToken)
		return
	}

	view, err := h.Auth.Profile(c.Request.Context(), principal.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, http.StatusOK, view)
}

func (h *handler) createUser(c *gin.Context) {
	var in auth.CreateUserInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	view, err := h.Auth.CreateUser(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, http.StatusCreated, view)
}
