package dependency

import (
	"time"

	"challengehub-realtime-svc/src/clients"
	"challengehub-realtime-svc/src/internal/auth"
	"challengehub-realtime-svc/src/internal/config"
	"challengehub-realtime-svc/src/internal/csrf"
	"challengehub-realtime-svc/src/internal/events"
	"challengehub-realtime-svc/src/internal/identity"
	"challengehub-realtime-svc/src/internal/middleware"
	"challengehub-realtime-svc/src/internal/notification"
	"challengehub-realtime-svc/src/internal/realtime"
	"challengehub-realtime-svc/src/internal/session"

	"github.com/gin-gonic/gin"
)

type Manager struct {
	Router   *gin.Engine
	Config   *config.Configuration
	Mongodb  *clients.MongoDB
	Redis    *clients.RedisClient
	RabbitMQ *clients.RabbitMQ

	SessionStore session.Store
	Cookie       *session.CookieCodec
	Resolver     *identity.Resolver
	Guard        *csrf.Guard
	Pipeline     *middleware.Pipeline

	Registry *realtime.Registry
	Gateway  *realtime.Gateway

	NotificationRepo    notification.Repository
	NotificationService notification.Service
	NotificationHandler notification.Handler
	AuthHandler         auth.Handler

	ActivityClient *clients.ActivityClient
	EventConsumer  *events.Consumer
}

// NewDependencyManager wires the service. rabbitMQ may be nil when the queue
// is disabled; notifications are then only raised through Notifier callers.
func NewDependencyManager(router *gin.Engine,
	mongodb *clients.MongoDB,
	redisClient *clients.RedisClient,
	rabbitMQ *clients.RabbitMQ,
	cfg *config.Configuration) *Manager {
	notificationRepo := notification.NewRepository(mongodb, cfg.Database.NotificationCollection)
	deps := Build(router, redisClient, rabbitMQ, notificationRepo, cfg)
	deps.Mongodb = mongodb
	return deps
}

// Build wires everything on top of an existing notification repository.
func Build(router *gin.Engine,
	redisClient *clients.RedisClient,
	rabbitMQ *clients.RabbitMQ,
	notificationRepo notification.Repository,
	cfg *config.Configuration) *Manager {
	store := session.NewRedisStore(redisClient.Client, cfg.Session.TTL(),
		session.WithTouch(cfg.Session.TouchEnabled),
		session.WithPrefix(cfg.Session.KeyPrefix))
	cookie := session.NewCookieCodec(cfg.Session.CookieName, cfg.Security.SessionSecret, cfg.Session.SecureCookie, cfg.Session.TTL())
	resolver := identity.NewResolver(store, cookie)
	guard := csrf.NewGuard(store)
	pipeline := middleware.NewPipeline(resolver, guard, store)

	registry := realtime.NewRegistry()
	gateway := realtime.NewGateway(resolver, registry, cfg.Realtime, cfg.Cors.AllowedOrigin)

	var activityClient *clients.ActivityClient
	if rabbitMQ != nil {
		activityClient = clients.NewActivityClient(&cfg.Queue.RabbitMQ, rabbitMQ.Channel)
	}

	notificationService := notification.NewService(notificationRepo, registry, activityClient, &cfg.Notifications)
	notificationHandler := notification.NewHandler(cfg, notificationService)

	verifier := identity.NewAssertionVerifier(cfg.Security.JwtKey)
	authHandler := auth.NewHandler(cfg, store, cookie, guard, verifier, registry, activityClient)

	consumer := events.NewConsumer(notificationService, time.Duration(cfg.App.Timeout)*time.Second)

	return &Manager{
		Router:              router,
		Config:              cfg,
		Redis:               redisClient,
		RabbitMQ:            rabbitMQ,
		SessionStore:        store,
		Cookie:              cookie,
		Resolver:            resolver,
		Guard:               guard,
		Pipeline:            pipeline,
		Registry:            registry,
		Gateway:             gateway,
		NotificationRepo:    notificationRepo,
		NotificationService: notificationService,
		NotificationHandler: notificationHandler,
		AuthHandler:         authHandler,
		ActivityClient:      activityClient,
		EventConsumer:       consumer,
	}
}
