package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/ai-detector/internal/auth"
)

type userHandler struct {
	accounts AccountService
}

func (h *userHandler) signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, err := h.accounts.Signup(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": user.ID})
}

func (h *userHandler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	token, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accessToken": token})
}

func (h *userHandler) me(c *gin.Context) {
	ctx := c.Request.Context()
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		writeError(c, err)
		return
	}

	user, err := h.accounts.Me(ctx, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user))
}

func (h *userHandler) updateProfile(c *gin.Context) {
	ctx := c.Request.Context()
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		writeError(c, err)
		return
	}

	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, err := h.accounts.UpdateProfile(ctx, userID, req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user))
}

func (h *userHandler) updatePassword(c *gin.Context) {
	ctx := c.Request.Context()
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		writeError(c, err)
		return
	}

	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.accounts.UpdatePassword(ctx, userID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *userHandler) withdraw(c *gin.Context) {
	ctx := c.Request.Context()
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		writeError(c, err)
		return
	}

	if err := h.accounts.Withdraw(ctx, userID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
