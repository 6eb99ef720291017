package response

import (
	"errors"
	"net/http"

	"challengehub-realtime-svc/src/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Error codes carried in the "code" field of every error body.
const (
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodeCSRFRejected     = "EBADCSRFTOKEN"
	CodeForbidden        = "FORBIDDEN"
	CodeNotFound         = "NOT_FOUND"
	CodeInvalidParams    = "INVALID_PARAMS"
	CodeInvalidAssertion = "INVALID_ASSERTION"
	CodePayloadTooLarge  = "PAYLOAD_TOO_LARGE"
	CodeInternal         = "INTERNAL"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Classify maps an error onto its HTTP status and wire body.
func Classify(err error) (int, ErrorBody) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, models.ErrPayloadTooLarge), errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, ErrorBody{Code: CodePayloadTooLarge, Message: "Request body too large"}
	case errors.Is(err, models.ErrCSRFRejected):
		return http.StatusForbidden, ErrorBody{Code: CodeCSRFRejected, Message: "Invalid CSRF token"}
	case errors.Is(err, models.ErrInvalidAssertion):
		return http.StatusUnauthorized, ErrorBody{Code: CodeInvalidAssertion, Message: "Identity assertion rejected"}
	case errors.Is(err, models.ErrUnauthenticated), errors.Is(err, models.ErrSessionNotFound):
		return http.StatusUnauthorized, ErrorBody{Code: CodeUnauthenticated, Message: "Authentication required"}
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden, ErrorBody{Code: CodeForbidden, Message: "Access forbidden"}
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, ErrorBody{Code: CodeNotFound, Message: "Resource not found"}
	case errors.Is(err, models.ErrInvalidParams):
		return http.StatusBadRequest, ErrorBody{Code: CodeInvalidParams, Message: err.Error()}
	default:
		return http.StatusInternalServerError, ErrorBody{Code: CodeInternal, Message: "Internal Server Error"}
	}
}

// Error writes the classified error and aborts the gin chain.
func Error(c *gin.Context, err error) {
	status, body := Classify(err)

	entry := logrus.WithError(err).WithFields(logrus.Fields{
		"status":     status,
		"code":       body.Code,
		"route_name": c.GetString("route_name"),
	})
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Debug("Request rejected")
	}

	c.AbortWithStatusJSON(status, body)
}
