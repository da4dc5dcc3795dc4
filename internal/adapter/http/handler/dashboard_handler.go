package handler

import (
	"mcp-logistics/internal/adapter/http/dto"
	"mcp-logistics/internal/adapter/http/middleware"
	"mcp-logistics/internal/core/domain"
	"mcp-logistics/internal/core/ports"
	"mcp-logistics/pkg/apperror"
	"mcp-logistics/pkg/response"

	"github.com/gin-gonic/gin"
)

// DashboardHandler handles the MCP dashboard endpoints.
type DashboardHandler struct {
	reportingSvc ports.ReportingService
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(reportingSvc ports.ReportingService) *DashboardHandler {
	return &DashboardHandler{reportingSvc: reportingSvc}
}

// GetStats handles GET /api/v1/dashboard/stats. MCP only.
func (h *DashboardHandler) GetStats(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	if principal.Role != domain.RoleMCP {
		response.Error(c, apperror.ErrUnauthorized())
		return
	}

	stats, err := h.reportingSvc.GetOrderStats(c.Request.Context(), principal.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.OrderStatsResponse{
		Total:      stats.Total,
		Pending:    stats.Pending,
		Assigned:   stats.Assigned,
		InProgress: stats.InProgress,
		Completed:  stats.Completed,
		Cancelled:  stats.Cancelled,
	})
}
