package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"challengehub-realtime-svc/src/clients"
	"challengehub-realtime-svc/src/internal/config"
	"challengehub-realtime-svc/src/internal/dependency"
	"challengehub-realtime-svc/src/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	cfg *config.Configuration
}

func New(cfg *config.Configuration) *Server {
	return &Server{cfg: cfg}
}

// Start connects the infrastructure clients, serves HTTP and blocks until
// SIGINT or SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	cfg := s.cfg

	mongodb, err := clients.NewMongoDB(&cfg.Database)
	if err != nil {
		return err
	}

	redisClient, err := clients.NewRedisClient(&cfg.Redis)
	if err != nil {
		_ = mongodb.Close(context.Background())
		return err
	}

	var rabbitMQ *clients.RabbitMQ
	if cfg.Queue.RabbitMQ.Enabled {
		rabbitMQ, err = clients.NewRabbitMQ(&cfg.Queue.RabbitMQ)
		if err != nil {
			_ = redisClient.Close()
			_ = mongodb.Close(context.Background())
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	deps := dependency.NewDependencyManager(router, mongodb, redisClient, rabbitMQ, cfg)
	SetupRoutes(deps)

	indexCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Database.Timeout)*time.Second)
	if err := deps.NotificationRepo.EnsureIndexes(indexCtx); err != nil {
		logrus.WithError(err).Warn("Continuing without notification indexes")
	}
	cancel()

	go session.RunSweeper(ctx, deps.SessionStore, cfg.Session.SweepInterval())

	if rabbitMQ != nil {
		if err := startConsumer(ctx, deps); err != nil {
			logrus.WithError(err).Error("Event consumer not started")
		}
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logrus.WithField("port", cfg.Server.Port).Infof("%s listening", cfg.App.Name)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logrus.Info("Shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			logrus.WithError(err).Error("HTTP server failed")
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Graceful shutdown failed")
	}

	if rabbitMQ != nil {
		_ = rabbitMQ.Close()
	}
	_ = redisClient.Close()
	_ = mongodb.Close(shutdownCtx)

	logrus.Infof("%s stopped", cfg.App.Name)
	return nil
}

func startConsumer(ctx context.Context, deps *dependency.Manager) error {
	if err := deps.RabbitMQ.SetupQueue(); err != nil {
		return err
	}
	deliveries, err := deps.RabbitMQ.Consume()
	if err != nil {
		return err
	}
	go deps.EventConsumer.Run(ctx, deliveries)
	return nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logrus.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"route_name": c.GetString("route_name"),
		}).Debug("Request handled")
	}
}
