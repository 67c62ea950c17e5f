package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/fabienpiette/wanderlust/internal/middleware"
	"github.com/fabienpiette/wanderlust/internal/models"
	"github.com/fabienpiette/wanderlust/internal/search"
	"github.com/fabienpiette/wanderlust/internal/store"
)

// StatusFor maps a service error onto an HTTP status
func StatusFor(err error) int {
	switch {
	case errors.Is(err, search.ErrSearchTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, models.ErrInvalidInput), errors.Is(err, store.ErrInvalidFilter):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrListingNotFound), errors.Is(err, models.ErrResourceNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError writes err as a problem-details body. Details of unexpected
// errors stay in the log.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	status := StatusFor(err)

	detail := err.Error()
	if status == http.StatusInternalServerError {
		logger.WithFields(logrus.Fields{
			"request_id": middleware.GetRequestID(c),
			"path":       c.Request.URL.Path,
		}).WithError(err).Error("Request failed")
		detail = models.ErrInternalServerError.Error()
	}

	apiErr := models.NewAPIError(status, http.StatusText(status), detail, c.Request.URL.Path)
	apiErr.RequestID = middleware.GetRequestID(c)
	c.AbortWithStatusJSON(status, apiErr)
}

// respondBindError turns binding failures into a 400 with per-field errors
func respondBindError(c *gin.Context, err error) {
	apiErr := models.NewAPIError(http.StatusBadRequest, http.StatusText(http.StatusBadRequest),
		"request validation failed", c.Request.URL.Path)
	apiErr.RequestID = middleware.GetRequestID(c)

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			apiErr.AddValidationError(fe.Field(), fe.Tag(), fe.Error())
		}
	} else {
		apiErr.Detail = err.Error()
	}

	c.AbortWithStatusJSON(http.StatusBadRequest, apiErr)
}
