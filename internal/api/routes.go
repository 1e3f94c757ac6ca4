package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quantfabric/omsflow/internal/model"
)

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/status", s.handleStatus)

	v1 := s.engine.Group("/api/v1")
	{
		v1.POST("/orders", s.handleSubmitOrder)
		v1.GET("/orders", s.handleListOrders)
		v1.GET("/orders/:id/status", s.handleOrderStatus)
		v1.PATCH("/orders/:id", s.handleReplaceOrder)
		v1.DELETE("/orders/:id", s.handleCancelOrder)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state":         s.orch.State(),
		"active_orders": len(s.orch.ActiveOrders()),
	})
}

// submitRequest is the POST /orders payload.
type submitRequest struct {
	ClientOrderID string             `json:"client_order_id" binding:"required"`
	Symbol        string             `json:"symbol" binding:"required"`
	SecurityType  model.SecurityType `json:"security_type" binding:"required"`
	Side          model.Side         `json:"side" binding:"required"`
	Quantity      float64            `json:"quantity" binding:"required"`
	OrderType     model.OrderType    `json:"order_type" binding:"required"`
	TimeInForce   model.TimeInForce  `json:"time_in_force" binding:"required"`
	Price         *float64           `json:"price"`
}

func (s *Server) handleSubmitOrder(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := model.NewOrder(req.ClientOrderID, req.Symbol, req.SecurityType,
		req.Side, req.Quantity, req.OrderType, req.TimeInForce, req.Price)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.orch.SubmitOrder(c.Request.Context(), order)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if !result.Success {
		c.JSON(http.StatusUnprocessableEntity, result)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (s *Server) handleListOrders(c *gin.Context) {
	orders := s.orch.ActiveOrders()
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

func (s *Server) handleOrderStatus(c *gin.Context) {
	result, err := s.orch.GetOrderStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if !result.Success && result.Status == "" {
		c.JSON(http.StatusNotFound, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// replaceRequest is the PATCH /orders/:id payload. Absent fields keep the
// working order's values.
type replaceRequest struct {
	Price    *float64 `json:"price"`
	Quantity *float64 `json:"quantity"`
}

func (s *Server) handleReplaceOrder(c *gin.Context) {
	var req replaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Price == nil && req.Quantity == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one of price or quantity is required"})
		return
	}

	result, err := s.orch.ReplaceOrder(c.Request.Context(), c.Param("id"), req.Price, req.Quantity)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if !result.Success {
		c.JSON(http.StatusNotFound, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleCancelOrder(c *gin.Context) {
	result, err := s.orch.CancelOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if !result.Success {
		c.JSON(http.StatusNotFound, result)
		return
	}
	c.JSON(http.StatusOK, result)
}
