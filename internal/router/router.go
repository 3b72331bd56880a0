package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/freeexam/examdesk/internal/config"
	"github.com/freeexam/examdesk/internal/handler"
	"github.com/freeexam/examdesk/internal/middleware"
	"github.com/freeexam/examdesk/internal/response"
	"github.com/freeexam/examdesk/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth          *handler.AuthHandler
	StudentPortal *handler.StudentPortalHandler
	Admin         *handler.AdminHandler
	WS            *handler.WSHandler
	System        *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	loginLimiter *middleware.RateLimiter,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

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
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "X-RateLimit-Remaining"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.System.Health)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/login", loginLimiter.Middleware(), handlers.Auth.Login)
		auth.POST("/admin/login", loginLimiter.Middleware(), handlers.Auth.AdminLogin)

		userAuth := auth.Group("",
			middleware.RequireUserJWT(authService),
			middleware.CheckSingleDeviceSession(authService),
		)
		userAuth.GET("/me", handlers.Auth.Me)
		userAuth.POST("/logout", handlers.Auth.Logout)
	}

	// ─── 2. Student Group (JWT + Single Device) ────────────────────────
	studentAPI := router.Group("/api/v1/student/exams/:exam_id")
	studentAPI.Use(
		middleware.RequireUserJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		live := studentAPI.Group("", middleware.NoStore())
		live.GET("/gate", handlers.StudentPortal.GetGate)
		live.POST("/start", handlers.StudentPortal.StartExam)
		live.GET("/session", handlers.StudentPortal.GetSession)
		live.POST("/answers", handlers.StudentPortal.SelectAnswer)
		live.GET("/submit/preview", handlers.StudentPortal.PreviewSubmit)
		live.POST("/submit", handlers.StudentPortal.SubmitExam)

		results := studentAPI.Group("", middleware.PrivateCache(int(cfg.CacheTTL.Seconds())))
		results.GET("/leaderboard", handlers.StudentPortal.GetLeaderboard)
		results.GET("/results", handlers.StudentPortal.GetResults)
	}

	// ─── 3. WebSocket Group (User WS Auth) ─────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(
		middleware.RequireUserWSAuth(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		ws.GET("/student/exams/:exam_id/stream", handlers.WS.ExamWebSocketStream)
	}

	// ─── 4. Admin Group (Admin JWT) ────────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService))
	{
		adminAPI.GET("/packages", handlers.Admin.ListPackages)
		adminAPI.POST("/packages", handlers.Admin.CreatePackage)
		adminAPI.GET("/packages/:package_id/exams", handlers.Admin.ListExams)

		adminAPI.POST("/exams", handlers.Admin.CreateExam)
		adminAPI.POST("/exams/:exam_id/questions", handlers.Admin.CreateQuestion)
		adminAPI.POST("/exams/:exam_id/questions/upload", handlers.Admin.UploadQuestions)

		adminAPI.GET("/session-events", handlers.Admin.ListSessionEvents)
		adminAPI.GET("/system/metrics", handlers.System.SystemMetricsSSE)
	}

	return router
}
