package api

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlesng35/licensewatch/internal/app"
	"github.com/charlesng35/licensewatch/internal/handlers"
	"github.com/charlesng35/licensewatch/internal/middleware"
)

// NewRouter builds the Gin engine, wires middleware and registers every route.
func NewRouter(deps *Dependencies) (*gin.Engine, error) {
	if deps == nil || deps.DB == nil || deps.Config == nil || deps.JWT == nil {
		return nil, errors.New("router dependencies are incomplete")
	}
	cfg := deps.Config

	r := gin.New()
	r.HandleMethodNotAllowed = true

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger("/health", "/health/live", "/api/health", "/api/health/live", metricsEndpoint(cfg)))
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins...))

	registerHealthRoutes(r, deps)
	registerMetricsRoutes(r, deps)

	// Throttled public auth routes
	authHandler := handlers.NewAuthHandler(deps.Users, deps.Local, deps.JWT, deps.MFA, cfg.Auth.Local.AllowRegistration)
	public := r.Group("/api/auth")
	public.Use(middleware.RateLimit(cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window))
	{
		public.POST("/login", authHandler.Login)
		public.POST("/register", authHandler.Register)
	}

	// The websocket handshake authenticates with a query token.
	if deps.Hub != nil {
		realtimeHandler := handlers.NewRealtimeHandler(deps.Hub, deps.JWT)
		r.GET("/api/notifications/ws", realtimeHandler.Stream)
	}

	// Protected routes
	api := r.Group("/api")
	api.Use(middleware.Auth(deps.JWT), middleware.ActiveUser(deps.Users))
	superuser := middleware.RequireSuperuser()

	registerAuthRoutes(api, authHandler)
	registerUserRoutes(api, handlers.NewUserHandler(deps.Users), superuser)
	registerDeviceRoutes(api, handlers.NewDeviceHandler(deps.Devices, deps.Licenses, deps.Exports))
	registerLicenseRoutes(api, handlers.NewLicenseHandler(deps.Licenses, deps.Audit, deps.Exports))
	registerNotificationRoutes(api, handlers.NewNotificationHandler(deps.Notifications), superuser)
	registerAuditRoutes(api, handlers.NewAuditHandler(deps.Audit), superuser)
	api.GET("/security/posture", superuser, handlers.SecurityPosture(deps.Posture))

	r.NoRoute(middleware.NotFoundHandler)
	r.NoMethod(middleware.MethodNotAllowedHandler)

	return r, nil
}

func registerHealthRoutes(r *gin.Engine, deps *Dependencies) {
	if !deps.Config.Monitoring.Health.Enabled {
		return
	}
	for _, prefix := range []string{"", "/api"} {
		r.GET(prefix+"/health", handlers.Health(deps.Health))
		r.GET(prefix+"/health/live", handlers.Liveness)
	}
}

func registerMetricsRoutes(r *gin.Engine, deps *Dependencies) {
	prom := deps.Config.Monitoring.Prometheus
	if !prom.Enabled {
		return
	}
	r.GET(metricsEndpoint(deps.Config), gin.WrapH(promhttp.Handler()))
}

func metricsEndpoint(cfg *app.Config) string {
	if endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint); endpoint != "" {
		return endpoint
	}
	return "/metrics"
}

func registerAuthRoutes(api *gin.RouterGroup, handler *handlers.AuthHandler) {
	group := api.Group("/auth")
	{
		group.GET("/me", handler.Me)
		group.PATCH("/me", handler.UpdateMe)
		group.POST("/password", handler.ChangePassword)

		group.GET("/mfa/status", handler.MFAStatus)
		group.POST("/mfa/setup", handler.SetupMFA)
		group.POST("/mfa/verify", handler.VerifyMFA)
		group.POST("/mfa/disable", handler.DisableMFA)
	}
}

func registerUserRoutes(api *gin.RouterGroup, handler *handlers.UserHandler, superuser gin.HandlerFunc) {
	group := api.Group("/users", superuser)
	{
		group.GET("", handler.List)
		group.POST("", handler.Create)
		group.GET("/:id", handler.Get)
		group.PATCH("/:id", handler.Update)
		group.DELETE("/:id", handler.Delete)
	}
}

func registerDeviceRoutes(api *gin.RouterGroup, handler *handlers.DeviceHandler) {
	group := api.Group("/devices")
	{
		group.GET("", handler.List)
		group.POST("", handler.Create)
		group.GET("/stats", handler.Stats)
		group.GET("/:id", handler.Get)
		group.PATCH("/:id", handler.Update)
		group.DELETE("/:id", handler.Delete)
		group.GET("/:id/licenses", handler.Licenses)
		group.GET("/:id/export", handler.Export)
	}
}

func registerLicenseRoutes(api *gin.RouterGroup, handler *handlers.LicenseHandler) {
	group := api.Group("/licenses")
	{
		group.GET("", handler.List)
		group.POST("", handler.Create)
		group.GET("/stats", handler.Stats)
		group.GET("/expiring", handler.Expiring)
		group.GET("/:id", handler.Get)
		group.PATCH("/:id", handler.Update)
		group.DELETE("/:id", handler.Delete)
		group.GET("/:id/history", handler.History)
		group.GET("/:id/audit", handler.Audit)
		group.GET("/:id/export", handler.Export)
	}
}

func registerNotificationRoutes(api *gin.RouterGroup, handler *handlers.NotificationHandler, superuser gin.HandlerFunc) {
	group := api.Group("/notifications")
	{
		group.GET("", handler.List)
		group.POST("", handler.Create)
		group.POST("/read-all", handler.MarkAllRead)
		group.POST("/sweep", superuser, handler.Sweep)
		group.GET("/:id", handler.Get)
		group.PATCH("/:id", handler.Update)
		group.DELETE("/:id", handler.Delete)
	}
}

func registerAuditRoutes(api *gin.RouterGroup, handler *handlers.AuditHandler, superuser gin.HandlerFunc) {
	group := api.Group("/audit", superuser)
	{
		group.GET("", handler.List)
		group.GET("/:entity_type/:entity_id", handler.EntityHistory)
	}
}
