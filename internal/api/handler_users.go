package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"attendance-backend/internal/model"
	"attendance-backend/internal/store"
)

func totalPages(total int64, size int) int64 {
	if size <= 0 {
		return 0
	}
	return (total + int64(size) - 1) / int64(size)
}

// GetUsers handles GET /api/users with page, limit, isActive and search filters.
func (h *Handler) GetUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	page, limit = store.NormalizePage(page, limit, store.DefaultUserPageSize)

	filter := store.UserFilter{Page: page, Limit: limit, Search: c.Query("search")}
	if raw := c.Query("isActive"); raw != "" {
		active := raw == "true"
		filter.IsActive = &active
	}

	users, total, err := h.store.ListUsers(c.Request.Context(), filter)
	if err != nil {
		respondMessage(c, http.StatusInternalServerError, "Failed to fetch users.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"data":       users,
			"page":       page,
			"pageSize":   limit,
			"totalPages": totalPages(total, limit),
			"totalUsers": total,
		},
	})
}

type addUserRequest struct {
	Name string `json:"name" binding:"required"`
	MSV  string `json:"msv" binding:"required"`
}

// AddUser handles POST /api/users. The user is created without a fingerprint.
func (h *Handler) AddUser(c *gin.Context) {
	var req addUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondMessage(c, http.StatusBadRequest, "name and msv are required")
		return
	}

	user := &model.User{
		UserID:   uuid.NewString(),
		Name:     strings.TrimSpace(req.Name),
		MSV:      strings.TrimSpace(req.MSV),
		IsActive: true,
	}
	if err := h.store.CreateUser(c.Request.Context(), user); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "data": user})
}

type updateUserRequest struct {
	Name     *string `json:"name"`
	MSV      *string `json:"msv"`
	IsActive *bool   `json:"isActive"`
}

// UpdateUser handles PUT /api/users/:userId. Slot and user id cannot be changed.
func (h *Handler) UpdateUser(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondMessage(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if (req.Name != nil && strings.TrimSpace(*req.Name) == "") || (req.MSV != nil && strings.TrimSpace(*req.MSV) == "") {
		respondMessage(c, http.StatusBadRequest, "name and msv cannot be empty")
		return
	}

	user, err := h.store.UpdateUser(c.Request.Context(), c.Param("userId"), store.UserUpdate{
		Name:     req.Name,
		MSV:      req.MSV,
		IsActive: req.IsActive,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": user})
}

// DeleteUser handles DELETE /api/users/:userId?deviceId=. It blocks until the
// device confirms the template is gone.
func (h *Handler) DeleteUser(c *gin.Context) {
	res, err := h.enroll.Delete(c.Request.Context(), c.Param("userId"), c.Query("deviceId"))
	if err != nil {
		respondError(c, err)
		return
	}

	message := "Fingerprint deleted successfully from device and user updated."
	if !res.TemplateDeleted {
		message = "User had no fingerprint assigned. Marked as inactive."
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": message, "data": res.User})
}
