package handlers

import (
	"net/http"

	"github.com/arnavshah/ward-census-api/pkg/models"
	"github.com/arnavshah/ward-census-api/pkg/store"
	"github.com/gin-gonic/gin"
)

// canEditWard reports whether the caller may write forms for the ward
func canEditWard(user models.UserContext, wardID string) bool {
	return user.SeesAllWards() || (user.Role == models.RoleNurse && user.WardID == wardID)
}

// SaveForm creates or updates a ward form
func (h *Handler) SaveForm(c *gin.Context) {
	var input store.FormInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := currentUser(c)
	if !canEditWard(user, input.WardID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "ward not accessible"})
		return
	}

	form, err := h.Store.SaveForm(c.Request.Context(), input, user.Username)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, form)
}

// GetForm returns the stored form for a ward, date and shift
func (h *Handler) GetForm(c *gin.Context) {
	var req struct {
		Ward  string       `form:"ward" binding:"required"`
		Date  string       `form:"date" binding:"required"`
		Shift models.Shift `form:"shift" binding:"required"`
	}
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ward, date and shift are required"})
		return
	}

	if !canEditWard(currentUser(c), req.Ward) {
		c.JSON(http.StatusForbidden, gin.H{"error": "ward not accessible"})
		return
	}

	form, err := h.Store.GetForm(c.Request.Context(), req.Ward, req.Date, req.Shift)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, form)
}

// ApproveForm moves a final form to approved
func (h *Handler) ApproveForm(c *gin.Context) {
	form, err := h.Store.ApproveForm(c.Request.Context(), c.Param("id"), currentUser(c).Username)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, form)
}
