package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"challengehub-realtime-svc/src/internal/config"
	"challengehub-realtime-svc/src/internal/identity"
	"challengehub-realtime-svc/src/internal/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const CodeHandshakeTimeout = "HANDSHAKE_TIMEOUT"

// Gateway accepts push connections. The caller is authenticated from the
// session cookie before the upgrade, so an unauthenticated client never
// receives a socket and never joins a group.
type Gateway struct {
	resolver *identity.Resolver
	registry *Registry
	upgrader websocket.Upgrader
	settings config.RealtimeSettings
	origin   string
}

func NewGateway(resolver *identity.Resolver, registry *Registry, settings config.RealtimeSettings, allowedOrigin string) *Gateway {
	g := &Gateway{
		resolver: resolver,
		registry: registry,
		settings: settings,
		origin:   allowedOrigin,
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: settings.HandshakeTimeout(),
		CheckOrigin:      g.checkOrigin,
	}
	return g
}

func (g *Gateway) Handle(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), g.settings.HandshakeTimeout())
	s, userID, err := g.resolver.FromRequest(ctx, c.Request)
	timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)
	cancel()

	if timedOut {
		logrus.WithField("remote_addr", c.ClientIP()).Warn("Push handshake authentication timed out")
		c.AbortWithStatusJSON(http.StatusRequestTimeout, response.ErrorBody{
			Code:    CodeHandshakeTimeout,
			Message: "Authentication did not complete in time",
		})
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	ws, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("Push upgrade failed")
		return
	}

	conn := newWSConn(uuid.NewString(), userID, s.ID, ws, connOptions{
		sendBuffer:   g.settings.SendBuffer,
		pingPeriod:   g.settings.PingPeriod(),
		writeTimeout: g.settings.WriteTimeout(),
	})

	// ready is queued before the connection becomes reachable by Emit.
	if frame, err := encode(Event{Event: EventReady}); err == nil {
		conn.Enqueue(frame)
	}

	g.registry.Add(conn)
	logrus.WithFields(logrus.Fields{
		"user_id":       userID,
		"connection_id": conn.ID(),
	}).Info("Push connection established")

	conn.run(g.registry)

	logrus.WithFields(logrus.Fields{
		"user_id":       userID,
		"connection_id": conn.ID(),
	}).Info("Push connection closed")
}

// checkOrigin admits non-browser clients (no Origin header), the configured
// frontend, and same-host pages.
func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if g.origin != "" && origin == g.origin {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}
