package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"attendance-backend/internal/store"
)

const dateLayout = "2006-01-02"

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func (h *Handler) parseDate(raw string) (time.Time, bool, error) {
	if t, err := time.ParseInLocation(dateLayout, raw, h.loc); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid date %q: use YYYY-MM-DD or RFC3339", raw)
	}
	return t, false, nil
}

// GetLogs handles GET /api/logs with page, pageSize, userId, startDate and endDate.
// endDate given as a calendar date includes the whole day.
func (h *Handler) GetLogs(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("pageSize"))
	page, size = store.NormalizePage(page, size, store.DefaultLogPageSize)

	filter := store.LogFilter{Page: page, PageSize: size, UserID: c.Query("userId")}
	if raw := c.Query("startDate"); raw != "" {
		from, _, err := h.parseDate(raw)
		if err != nil {
			respondMessage(c, http.StatusBadRequest, err.Error())
			return
		}
		filter.From = &from
	}
	if raw := c.Query("endDate"); raw != "" {
		to, dateOnly, err := h.parseDate(raw)
		if err != nil {
			respondMessage(c, http.StatusBadRequest, err.Error())
			return
		}
		if dateOnly {
			to = to.AddDate(0, 0, 1).Add(-time.Millisecond)
		}
		filter.To = &to
	}

	logs, total, err := h.store.ListLogs(c.Request.Context(), filter)
	if err != nil {
		respondMessage(c, http.StatusInternalServerError, "Failed to fetch logs.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Logs fetched successfully",
		"data": gin.H{
			"data":       logs,
			"page":       page,
			"pageSize":   size,
			"totalPages": totalPages(total, size),
			"totalLogs":  total,
		},
	})
}
