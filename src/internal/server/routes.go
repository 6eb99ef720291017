package server

import (
	"time"

	"challengehub-realtime-svc/src/internal/dependency"
	"challengehub-realtime-svc/src/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// The notification API is reachable under each of these prefixes.
var notificationPrefixes = []string{"/notifications", "/api/notifications", "/api/notification"}

func SetupRoutes(deps *dependency.Manager) {
	router := deps.Router
	router.Use(
		middleware.SecurityHeaders(),
		middleware.BodyLimit(deps.Config.Server.MaxBodyBytes),
		middleware.CORS(deps.Config.Cors.AllowedOrigin),
	)

	setupHealthEndpoint(deps)
	setupAuthRoutes(router, deps)
	setupRealtimeRoutes(router, deps)
	setupNotificationRoutes(router, deps)
}

func setupHealthEndpoint(deps *dependency.Manager) {
	router := deps.Router
	cfg := deps.Config

	router.GET("/health", func(c *gin.Context) {
		logrus.Debug("Health check endpoint requested")

		mongoStatus := "disabled"
		if deps.Mongodb != nil {
			mongoStatus = "ok"
			if err := deps.Mongodb.Client.Ping(c.Request.Context(), nil); err != nil {
				mongoStatus = "error: " + err.Error()
			}
		}

		redisStatus := "ok"
		if err := deps.Redis.Client.Ping(c.Request.Context()).Err(); err != nil {
			redisStatus = "error: " + err.Error()
		}

		c.JSON(200, gin.H{
			"status":      "ok",
			"service":     cfg.App.Name,
			"version":     cfg.App.Version,
			"mongodb":     mongoStatus,
			"redis":       redisStatus,
			"connections": deps.Registry.Users(),
			"timestamp":   time.Now().UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	})
}

func setupAuthRoutes(router *gin.Engine, deps *dependency.Manager) {
	pipeline := deps.Pipeline
	handler := deps.AuthHandler

	router.GET("/csrf-token", chain("getCsrfToken", pipeline.Public(), handler.CSRFToken)...)

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", chain("login", pipeline.Public(), handler.Login)...)
		authGroup.POST("/renew", chain("renewSession", pipeline.Authenticated(), handler.Renew)...)
		authGroup.POST("/logout", chain("logout", pipeline.Authenticated(), handler.Logout)...)
		authGroup.GET("/me", chain("me", pipeline.Authenticated(), handler.Me)...)
	}
}

func setupRealtimeRoutes(router *gin.Engine, deps *dependency.Manager) {
	// The gateway authenticates during the handshake itself.
	router.GET("/ws", setRouteName("pushConnect"), deps.Gateway.Handle)
}

func setupNotificationRoutes(router *gin.Engine, deps *dependency.Manager) {
	stages := deps.Pipeline.Authenticated()
	handler := deps.NotificationHandler

	for _, prefix := range notificationPrefixes {
		group := router.Group(prefix)
		{
			group.GET("", chain("listNotifications", stages, handler.List)...)
			group.GET("/unread-count", chain("unreadCount", stages, handler.UnreadCount)...)
			group.POST("/mark-read", chain("markRead", stages, handler.MarkRead)...)
			group.POST("/mark-all-read", chain("markAllRead", stages, handler.MarkAllRead)...)
		}
	}
}

// chain puts the route name first, then the pipeline stages, then the handler.
func chain(name string, stages []gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
	handlers := make([]gin.HandlerFunc, 0, len(stages)+2)
	handlers = append(handlers, setRouteName(name))
	handlers = append(handlers, stages...)
	return append(handlers, h)
}

func setRouteName(name string) gin.HandlerFunc {
	return middleware.RouteName(name)
}
