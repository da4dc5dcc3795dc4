package handler

import (
	"mcp-logistics/internal/adapter/http/middleware"
	"mcp-logistics/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	WalletSvc      ports.WalletService
	OrderSvc       ports.OrderService
	ReportingSvc   ports.ReportingService
	TokenSvc       ports.TokenService
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep, verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// API v1 routes, all behind the authorization gate
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	v1 := r.Group("/api/v1", jwtAuth)

	walletHandler := NewWalletHandler(deps.WalletSvc, deps.ReportingSvc)
	wallets := v1.Group("/wallets")
	{
		wallets.GET("/balance", walletHandler.GetBalance)
		wallets.POST("/add-funds", walletHandler.AddFunds)
		wallets.POST("/transfer", walletHandler.Transfer)
		wallets.POST("/withdraw", walletHandler.Withdraw)
		wallets.GET("/transactions", walletHandler.ListTransactions)
		wallets.PATCH("/transactions/:id/status", walletHandler.UpdateTransactionStatus)
	}

	orderHandler := NewOrderHandler(deps.OrderSvc, deps.ReportingSvc)
	orders := v1.Group("/orders")
	{
		orders.POST("", orderHandler.Create)
		orders.GET("", orderHandler.List)
		orders.GET("/:id", orderHandler.Get)
		orders.POST("/:id/assign", orderHandler.Assign)
		orders.POST("/:id/accept", orderHandler.Accept)
		orders.POST("/:id/reject", orderHandler.Reject)
		orders.POST("/:id/complete", orderHandler.Complete)
		orders.POST("/:id/cancel", orderHandler.Cancel)
	}

	dashboardHandler := NewDashboardHandler(deps.ReportingSvc)
	dashboard := v1.Group("/dashboard")
	{
		dashboard.GET("/stats", dashboardHandler.GetStats)
	}

	return r
}
