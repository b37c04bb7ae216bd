package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"venue-billing-backend/internal/billing"
	"venue-billing-backend/internal/parse"
	"venue-billing-backend/internal/session"
)

type createSessionRequest struct {
	Kind       billing.Kind         `json:"kind"`
	Model      billing.Model        `json:"model"`
	ResourceID string               `json:"resource_id"`
	Hall       string               `json:"hall"`
	Members    []billing.MemberInfo `json:"members"`
}

// CreateSession handles the POST /api/sessions request. A hall may be named instead
// of given by id.
func (h *Handler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.ResourceID == "" && req.Hall != "" {
		req.ResourceID = parse.Slug(req.Hall)
		if req.Kind == "" {
			req.Kind = billing.KindHall
		}
	}
	if req.Kind == "" {
		req.Kind = billing.KindTable
	}
	if !req.Kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be table or hall"})
		return
	}

	created, err := h.sessions.Create(c.Request.Context(), session.CreateRequest{
		Kind:       req.Kind,
		Model:      req.Model,
		ResourceID: req.ResourceID,
		Members:    req.Members,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// ListSessions handles the GET /api/sessions request.
func (h *Handler) ListSessions(c *gin.Context) {
	sessions, err := h.sessions.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// GetSession handles the GET /api/sessions/{id} request.
func (h *Handler) GetSession(c *gin.Context) {
	s, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// GetSessionTotal handles the GET /api/sessions/{id}/total request.
func (h *Handler) GetSessionTotal(c *gin.Context) {
	totals, err := h.sessions.Total(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, totals)
}

// AddMember handles the POST /api/sessions/{id}/members request.
func (h *Handler) AddMember(c *gin.Context) {
	var info billing.MemberInfo
	if err := c.ShouldBindJSON(&info); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := h.sessions.AddMember(c.Request.Context(), c.Param("id"), info)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// RemoveMember handles the DELETE /api/sessions/{id}/members/{member_id}?settle= request.
func (h *Handler) RemoveMember(c *gin.Context) {
	settleNow := false
	if raw := c.Query("settle"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "settle must be a boolean"})
			return
		}
		settleNow = v
	}

	member, err := h.sessions.RemoveMember(c.Request.Context(), c.Param("id"), c.Param("member_id"), settleNow)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, member)
}

type adjustOrderRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Delta     int    `json:"delta"`
}

// AdjustOrder handles the POST /api/sessions/{id}/members/{member_id}/orders request.
func (h *Handler) AdjustOrder(c *gin.Context) {
	var req adjustOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	line, err := h.sessions.AdjustOrder(c.Request.Context(), c.Param("id"), c.Param("member_id"), req.ProductID, req.Delta)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, line)
}

type transferRequest struct {
	ResourceID string `json:"resource_id" binding:"required"`
}

// TransferSession handles the POST /api/sessions/{id}/transfer request.
func (h *Handler) TransferSession(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := h.sessions.Transfer(c.Request.Context(), c.Param("id"), req.ResourceID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

type endSessionRequest struct {
	Promocode     string `json:"promocode"`
	PaymentMethod string `json:"payment_method"`
}

// EndSession handles the POST /api/sessions/{id}/end request. The body is optional.
func (h *Handler) EndSession(c *gin.Context) {
	var req endSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	history, err := h.sessions.End(c.Request.Context(), c.Param("id"), session.EndRequest{
		Promocode:     req.Promocode,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}
