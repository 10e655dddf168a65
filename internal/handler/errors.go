package handler

import (
	"errors"
	"net/http"

	"waterworks/internal/apperr"
	"waterworks/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// respondError maps the service error taxonomy onto HTTP statuses.
func respondError(c *gin.Context, log *logrus.Logger, err error) {
	var (
		invalid  *apperr.ValidationError
		outRange *apperr.RangeViolationError
		dupName  *apperr.DuplicateNameError
		dupKey   *apperr.DuplicateKeyError
	)

	switch {
	case errors.As(err, &invalid), errors.As(err, &outRange):
		c.JSON(http.StatusBadRequest, response.FieldError(http.StatusBadRequest, apperr.FieldOf(err), err.Error()))
	case errors.As(err, &dupName), errors.As(err, &dupKey):
		c.JSON(http.StatusConflict, response.Error(http.StatusConflict, err.Error()))
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, err.Error()))
	case errors.Is(err, apperr.ErrForbidden), errors.Is(err, apperr.ErrSystemRole):
		c.JSON(http.StatusForbidden, response.Error(http.StatusForbidden, err.Error()))
	default:
		if log != nil {
			log.WithError(err).WithFields(logrus.Fields{
				"method": c.Request.Method,
				"path":   c.FullPath(),
			}).Error("request failed")
		}
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Internal server error"))
	}
}

// parseID reads a UUID path parameter, answering 400 when it is malformed.
func parseID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.FieldError(http.StatusBadRequest, name, "Invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}
