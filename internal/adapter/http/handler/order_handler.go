package handler

import (
	"math"
	"time"

	"mcp-logistics/internal/adapter/http/dto"
	"mcp-logistics/internal/adapter/http/middleware"
	"mcp-logistics/internal/core/domain"
	"mcp-logistics/internal/core/ports"
	"mcp-logistics/pkg/apperror"
	"mcp-logistics/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OrderHandler handles order lifecycle endpoints.
type OrderHandler struct {
	orderSvc     ports.OrderService
	reportingSvc ports.ReportingService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orderSvc ports.OrderService, reportingSvc ports.ReportingService) *OrderHandler {
	return &OrderHandler{orderSvc: orderSvc, reportingSvc: reportingSvc}
}

// Create handles POST /api/v1/orders.
func (h *OrderHandler) Create(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	order, err := h.orderSvc.Create(c.Request.Context(), ports.CreateOrderRequest{
		MCPID:      principal.UserID,
		CustomerID: req.CustomerID,
		Amount:     req.Amount,
		Commission: req.Commission,
		Note:       req.Note,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toOrderResponse(order))
}

// Get handles GET /api/v1/orders/:id.
func (h *OrderHandler) Get(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid order id"))
		return
	}

	order, err := h.orderSvc.Get(c.Request.Context(), orderID, principal)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toOrderResponse(order))
}

// List handles GET /api/v1/orders. Results are scoped to the caller's role:
// MCPs see their own orders, partners see orders assigned to them.
func (h *OrderHandler) List(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	page, pageSize := paginationParams(c)
	params := ports.OrderListParams{
		Page:     page,
		PageSize: pageSize,
	}

	switch principal.Role {
	case domain.RoleMCP:
		params.MCPID = &principal.UserID
	case domain.RolePickupPartner:
		params.PartnerID = &principal.UserID
	default:
		response.Error(c, apperror.ErrUnauthorized())
		return
	}

	if s := c.Query("status"); s != "" {
		status := domain.OrderStatus(s)
		params.Status = &status
	}
	if f := c.Query("from"); f != "" {
		if v, err := time.Parse(time.RFC3339, f); err == nil {
			params.From = &v
		}
	}
	if t := c.Query("to"); t != "" {
		if v, err := time.Parse(time.RFC3339, t); err == nil {
			params.To = &v
		}
	}

	orders, total, err := h.reportingSvc.ListOrders(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.OrderResponse, 0, len(orders))
	for i := range orders {
		items = append(items, toOrderResponse(&orders[i]))
	}

	response.OK(c, dto.OrderListResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	})
}

// Assign handles POST /api/v1/orders/:id/assign.
func (h *OrderHandler) Assign(c *gin.Context) {
	var req dto.AssignOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	h.applyEvent(c, domain.OrderEvent{
		Type:      domain.OrderEventAssign,
		PartnerID: req.PartnerID,
		Note:      req.Note,
	})
}

// Accept handles POST /api/v1/orders/:id/accept.
func (h *OrderHandler) Accept(c *gin.Context) {
	h.applyEvent(c, domain.OrderEvent{Type: domain.OrderEventAccept, Note: eventNote(c)})
}

// Reject handles POST /api/v1/orders/:id/reject.
func (h *OrderHandler) Reject(c *gin.Context) {
	h.applyEvent(c, domain.OrderEvent{Type: domain.OrderEventReject, Note: eventNote(c)})
}

// Complete handles POST /api/v1/orders/:id/complete.
func (h *OrderHandler) Complete(c *gin.Context) {
	h.applyEvent(c, domain.OrderEvent{Type: domain.OrderEventComplete, Note: eventNote(c)})
}

// Cancel handles POST /api/v1/orders/:id/cancel.
func (h *OrderHandler) Cancel(c *gin.Context) {
	h.applyEvent(c, domain.OrderEvent{Type: domain.OrderEventCancel, Note: eventNote(c)})
}

func (h *OrderHandler) applyEvent(c *gin.Context, event domain.OrderEvent) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid order id"))
		return
	}

	order, err := h.orderSvc.Apply(c.Request.Context(), orderID, event, principal)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toOrderResponse(order))
}

// eventNote reads the optional note body; a missing or empty body is fine.
func eventNote(c *gin.Context) string {
	var req dto.OrderEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return ""
	}
	return req.Note
}

func toOrderResponse(o *domain.Order) dto.OrderResponse {
	resp := dto.OrderResponse{
		ID:            o.ID.String(),
		MCPID:         o.MCPID.String(),
		CustomerID:    o.CustomerID.String(),
		Status:        string(o.Status),
		Amount:        o.Amount,
		Commission:    o.Commission,
		PaymentStatus: string(o.PaymentStatus),
		Note:          o.Note,
		CreatedAt:     o.CreatedAt.Format(time.RFC3339),
	}
	if o.PickupPartnerID != nil {
		s := o.PickupPartnerID.String()
		resp.PickupPartnerID = &s
	}
	if o.CompletedAt != nil {
		s := o.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &s
	}
	for _, change := range o.StatusHistory {
		resp.StatusHistory = append(resp.StatusHistory, dto.StatusChangeResponse{
			Status:    string(change.Status),
			Note:      change.Note,
			CreatedAt: change.CreatedAt.Format(time.RFC3339),
		})
	}
	return resp
}
