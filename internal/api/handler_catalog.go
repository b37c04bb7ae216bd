package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetHalls handles the GET /api/halls request.
func (h *Handler) GetHalls(c *gin.Context) {
	halls, err := h.store.ListHalls(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, halls)
}

// GetResources handles the GET /api/resources?hall= request.
func (h *Handler) GetResources(c *gin.Context) {
	resources, err := h.store.ListResources(c.Request.Context(), c.Query("hall"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resources)
}

// GetProducts handles the GET /api/products request.
func (h *Handler) GetProducts(c *gin.Context) {
	products, err := h.store.ListProducts(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

type restockRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

// RestockProduct handles the POST /api/products/{id}/restock request.
func (h *Handler) RestockProduct(c *gin.Context) {
	var req restockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stock, err := h.sessions.Restock(c.Request.Context(), c.Param("id"), req.Quantity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "stock": stock})
}
