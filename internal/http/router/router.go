package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/escrow-backend/internal/config"
	"github.com/ignatzorin/escrow-backend/internal/http/handlers"
	"github.com/ignatzorin/escrow-backend/internal/http/middleware"
	"github.com/ignatzorin/escrow-backend/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	projectHandler *handlers.ProjectHandler,
	proposalHandler *handlers.ProposalHandler,
	milestoneHandler *handlers.MilestoneHandler,
	disputeHandler *handlers.DisputeHandler,
	adminHandler *handlers.AdminHandler,
	uploadHandler *handlers.UploadHandler,
	wsHandler *handlers.WSHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)
	r.StaticFS("/uploads", http.Dir(cfg.UploadStoragePath))

	api := r.Group("/api")

	// Публичные чтения
	api.GET("/projects", projectHandler.ListProjects)
	api.GET("/projects/:id", projectHandler.GetProject)
	api.GET("/projects/:id/progress", projectHandler.GetProgress)
	api.GET("/ws", wsHandler.Handle)

	mutationRateLimit := middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod)

	// Защищённые маршруты
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		protected.GET("/projects/:id/proposals", proposalHandler.ListByProject)
		protected.GET("/projects/:id/submissions", milestoneHandler.ListSubmissions)
		protected.GET("/projects/:id/disputes", disputeHandler.ListByProject)

		mutate := protected.Group("/")
		mutate.Use(mutationRateLimit)
		{
			mutate.POST("/projects", projectHandler.CreateProject)
			mutate.PATCH("/projects/:id/activate", projectHandler.ActivateProject)

			mutate.POST("/proposals", proposalHandler.CreateProposal)
			mutate.PATCH("/proposals/:id/accept", proposalHandler.AcceptProposal)
			mutate.PATCH("/proposals/:id/reject", proposalHandler.RejectProposal)
			mutate.PATCH("/proposals/:id/withdraw", proposalHandler.WithdrawProposal)

			mutate.POST("/milestones/submit", milestoneHandler.SubmitWork)
			mutate.PATCH("/milestones/:id/approve", milestoneHandler.ApproveSubmission)
			mutate.PATCH("/milestones/:id/reject", milestoneHandler.RejectSubmission)

			mutate.POST("/disputes", disputeHandler.CreateDispute)

			mutate.POST("/uploads", uploadHandler.Upload)
		}
	}

	// Администрирование
	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware(tokenManager), middleware.AdminOnly())
	{
		admin.PATCH("/disputes/:id/resolve", adminHandler.ResolveDispute)
		admin.PATCH("/disputes/:id/reset", adminHandler.ResetDispute)

		admin.PATCH("/recovery/force-release", adminHandler.ForceRelease)
		admin.PATCH("/recovery/force-refund", adminHandler.ForceRefund)

		admin.GET("/reconciliation", adminHandler.ListMarkers)
		admin.PATCH("/reconciliation/:id/replay", adminHandler.ReplayMarker)

		admin.POST("/ownership/propose", adminHandler.ProposeOwnership)
		admin.POST("/ownership/accept", adminHandler.AcceptOwnership)
		admin.GET("/ownership", adminHandler.GetOwnership)
	}

	return r
}
