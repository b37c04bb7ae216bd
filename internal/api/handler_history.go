package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"venue-billing-backend/internal/store"
)

// parseBound accepts an RFC3339 timestamp or a plain date in the venue's time zone.
func (h *Handler) parseBound(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.ParseInLocation(time.DateOnly, raw, h.location)
}

// GetHistory handles the GET /api/history?from=&to=&limit= request. A plain "to" date
// includes that whole day.
func (h *Handler) GetHistory(c *gin.Context) {
	var filter store.HistoryFilter
	if raw := c.Query("from"); raw != "" {
		from, err := h.parseBound(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'from'. Use YYYY-MM-DD or RFC3339."})
			return
		}
		filter.From = from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := h.parseBound(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'to'. Use YYYY-MM-DD or RFC3339."})
			return
		}
		if len(raw) == len(time.DateOnly) {
			to = to.AddDate(0, 0, 1)
		}
		filter.To = to
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'limit'"})
			return
		}
		filter.Limit = limit
	}

	receipts, err := h.sessions.History(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipts)
}

// GetPromocode handles the GET /api/promocodes/{code} request.
func (h *Handler) GetPromocode(c *gin.Context) {
	code, err := h.sessions.ValidatePromocode(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, code)
}

// GetMemberSession handles the GET /api/members/{id}/session request.
func (h *Handler) GetMemberSession(c *gin.Context) {
	s, err := h.sessions.ActiveSessionFor(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}
