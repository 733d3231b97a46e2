package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/handler"
	"github.com/stemsi/exstem-assessment/internal/i18n"
	"github.com/stemsi/exstem-assessment/internal/metrics"
	"github.com/stemsi/exstem-assessment/internal/middleware"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Exam    *handler.ExamHandler
	Admin   *handler.AdminHandler
	Monitor *handler.MonitorHandler
	WS      *handler.WSHandler
	System  *handler.SystemHandler
}

// Deps carries the cross-cutting pieces the middleware chain needs.
type Deps struct {
	Auth       *service.AuthService
	Metrics    *metrics.Metrics
	Gatherer   prometheus.Gatherer
	EventLimit *middleware.RateLimiter
	Log        zerolog.Logger
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(handlers *Handlers, deps Deps, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "Accept-Language", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Content-Language"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(
		response.RequestIDMiddleware(),
		i18n.Middleware(),
		middleware.RequestLogger(deps.Log),
		middleware.Metrics(deps.Metrics),
		middleware.Brotli(),
	)

	router.GET("/health", handlers.System.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))

	// ─── 1. Candidate Group (JWT) ──────────────────────────────────────
	exam := router.Group("/api/v1/exam")
	exam.Use(middleware.RequireCandidateJWT(deps.Auth), middleware.NoStore())
	{
		exam.GET("/config", handlers.Exam.GetConfig)
		exam.POST("/sessions", handlers.Exam.StartExam)
		exam.GET("/sessions/in-progress", handlers.Exam.CheckInProgress)
		exam.GET("/sessions/:id", handlers.Exam.GetSession)
		exam.POST("/sessions/:id/heartbeat", handlers.Exam.Heartbeat)
		exam.POST("/sessions/:id/answers", handlers.Exam.SaveAnswer)
		exam.POST("/sessions/:id/events", deps.EventLimit.Middleware(), handlers.Exam.RecordEvent)
		exam.POST("/sessions/:id/submit", handlers.Exam.Submit)
		exam.POST("/sessions/:id/terminate", handlers.Exam.Terminate)
		exam.GET("/sessions/:id/result", handlers.Exam.GetResult)
		exam.GET("/sessions/:id/review", handlers.Exam.GetReview)
	}

	// ─── 2. WebSocket Group (Candidate WS Auth) ────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireCandidateWSAuth(deps.Auth))
	{
		ws.GET("/exam/sessions/:id/stream", handlers.WS.ExamStream)
	}

	// ─── 3. Admin Group (JWT + scopes) ─────────────────────────────────
	admin := router.Group("/api/v1/admin")
	admin.Use(middleware.RequireAdminJWT(deps.Auth), middleware.NoStore())
	{
		admin.GET("/grading/pending",
			middleware.RequireScope(service.ScopeGradingWrite),
			handlers.Admin.ListPendingEssays,
		)
		admin.POST("/grading/scores",
			middleware.RequireScope(service.ScopeGradingWrite),
			handlers.Admin.SubmitScore,
		)
		admin.GET("/results",
			middleware.RequireAnyScope(service.ScopeResultsRead, service.ScopeGradingWrite),
			handlers.Admin.ListResults,
		)
		admin.GET("/sessions/:id/events",
			middleware.RequireAnyScope(service.ScopeResultsRead, service.ScopeMonitorRead),
			handlers.Admin.ListCheatEvents,
		)
		admin.POST("/sessions/:id/rescore",
			middleware.RequireScope(service.ScopeGradingWrite),
			handlers.Admin.Rescore,
		)
		admin.GET("/monitor",
			middleware.RequireScope(service.ScopeMonitorRead),
			handlers.Monitor.MonitorSSE,
		)
		admin.GET("/system/status",
			middleware.RequireScope(service.ScopeMonitorRead),
			handlers.System.Status,
		)
	}

	return router
}
