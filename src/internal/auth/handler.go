package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"challengehub-realtime-svc/src/internal/config"
	"challengehub-realtime-svc/src/internal/csrf"
	"challengehub-realtime-svc/src/internal/identity"
	"challengehub-realtime-svc/src/internal/middleware"
	"challengehub-realtime-svc/src/internal/models"
	"challengehub-realtime-svc/src/internal/response"
	"challengehub-realtime-svc/src/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Handler interface {
	CSRFToken(c *gin.Context)
	Login(c *gin.Context)
	Renew(c *gin.Context)
	Logout(c *gin.Context)
	Me(c *gin.Context)
}

// SessionCloser drops push connections opened with a session, or moves them
// to the session that replaced it.
type SessionCloser interface {
	CloseSession(sessionID string) int
	RebindSession(oldID, newID string) int
}

type ActivityPublisher interface {
	PublishActivity(msg *models.ActivityMessage) error
}

type LoginRequest struct {
	Assertion string `json:"assertion" binding:"required"`
}

type handler struct {
	config    *config.Configuration
	store     session.Store
	cookie    *session.CookieCodec
	guard     *csrf.Guard
	verifier  *identity.AssertionVerifier
	closer    SessionCloser
	publisher ActivityPublisher
}

func NewHandler(
	cfg *config.Configuration,
	store session.Store,
	cookie *session.CookieCodec,
	guard *csrf.Guard,
	verifier *identity.AssertionVerifier,
	closer SessionCloser,
	publisher ActivityPublisher,
) Handler {
	return &handler{
		config:    cfg,
		store:     store,
		cookie:    cookie,
		guard:     guard,
		verifier:  verifier,
		closer:    closer,
		publisher: publisher,
	}
}

func (h *handler) timeout(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), time.Duration(h.config.App.Timeout)*time.Second)
}

// CSRFToken returns the caller's token, starting an anonymous session first
// when there is none. It is reachable without a token.
func (h *handler) CSRFToken(c *gin.Context) {
	ctx, cancel := h.timeout(c)
	defer cancel()

	s := middleware.SessionFrom(c)
	if s == nil {
		created, err := h.store.Create(ctx, "")
		if err != nil {
			response.Error(c, err)
			return
		}
		h.cookie.Write(c.Writer, created)
		middleware.SetSession(c, created)
		s = created
	}

	token, err := h.guard.Issue(ctx, s)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"csrfToken": token})
}

// Login binds the asserted identity to a brand new session. The previous
// session and every token issued for it stop working.
func (h *handler) Login(c *gin.Context) {
	ctx, cancel := h.timeout(c)
	defer cancel()

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, fmt.Errorf("%w: %w", models.ErrInvalidParams, err))
		return
	}

	claims, err := h.verifier.Verify(req.Assertion)
	if err != nil {
		response.Error(c, err)
		return
	}

	s, err := h.store.Create(ctx, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	if previous := middleware.SessionFrom(c); previous != nil {
		if err := h.store.Destroy(ctx, previous.ID); err != nil {
			logrus.WithError(err).WithField("user_id", claims.UserID).Warn("Failed to destroy pre-login session")
		}
		h.closer.CloseSession(previous.ID)
	}

	token, err := h.guard.Issue(ctx, s)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.cookie.Write(c.Writer, s)
	middleware.SetSession(c, s)
	h.publish(s, models.ActionSessionLogin, c)

	logrus.WithFields(logrus.Fields{
		"user_id":  claims.UserID,
		"provider": claims.Provider,
	}).Info("User logged in")

	c.JSON(http.StatusOK, gin.H{
		"userId":    s.UserID,
		"csrfToken": token,
	})
}

// Renew rotates the session identifier and CSRF secret, keeping the identity
// and starting a new fixed lifetime.
func (h *handler) Renew(c *gin.Context) {
	ctx, cancel := h.timeout(c)
	defer cancel()

	current := middleware.SessionFrom(c)
	renewed, err := h.store.Rotate(ctx, current.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	token, err := h.guard.Issue(ctx, renewed)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.closer.RebindSession(current.ID, renewed.ID)
	h.cookie.Write(c.Writer, renewed)
	middleware.SetSession(c, renewed)

	c.JSON(http.StatusOK, gin.H{
		"userId":    renewed.UserID,
		"csrfToken": token,
		"expiresAt": renewed.ExpiresAt,
	})
}

func (h *handler) Logout(c *gin.Context) {
	ctx, cancel := h.timeout(c)
	defer cancel()

	s := middleware.SessionFrom(c)
	if err := h.store.Destroy(ctx, s.ID); err != nil {
		response.Error(c, err)
		return
	}

	closed := h.closer.CloseSession(s.ID)
	h.cookie.Clear(c.Writer)
	h.publish(s, models.ActionSessionLogout, c)

	logrus.WithFields(logrus.Fields{
		"user_id":            s.UserID,
		"closed_connections": closed,
	}).Info("User logged out")

	c.JSON(http.StatusOK, gin.H{"loggedOut": true})
}

func (h *handler) Me(c *gin.Context) {
	s := middleware.SessionFrom(c)
	c.JSON(http.StatusOK, gin.H{
		"userId":    s.UserID,
		"expiresAt": s.ExpiresAt,
	})
}

func (h *handler) publish(s *session.Session, action string, c *gin.Context) {
	if h.publisher == nil {
		return
	}
	err := h.publisher.PublishActivity(&models.ActivityMessage{
		UserID:      s.UserID,
		ServiceName: models.ServiceAuthHandler,
		Action:      action,
		Metadata: map[string]string{
			"ip_address": c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
		},
	})
	if err != nil {
		logrus.WithError(err).WithField("action", action).Warn("Failed to publish session activity")
	}
}
