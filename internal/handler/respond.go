package handler

import (
	"errors"
	"net/http"

	"github.com/Charlsz/localmarket/internal/database"
	"github.com/Charlsz/localmarket/internal/middleware"
	"github.com/Charlsz/localmarket/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func respondData(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"data": data})
}

func respondMessage(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// respondError maps domain and storage errors to a status code. Anything
// unrecognized is logged and reported as a generic 500.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status, message := classify(err)
	if status == http.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("request_id", c.GetString(middleware.RequestIDKey)),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	respondMessage(c, status, message)
}

func classify(err error) (int, string) {
	var inputErr *service.InputError
	var stockErr *service.StockError

	switch {
	case errors.As(err, &inputErr):
		return http.StatusBadRequest, inputErr.Msg
	case errors.As(err, &stockErr):
		return http.StatusBadRequest, stockErr.Error()
	case errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, database.ErrInsufficientStock),
		errors.Is(err, database.ErrAlreadyReviewed),
		errors.Is(err, database.ErrProfileExists):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, database.ErrOptimisticLockFailed):
		return http.StatusBadRequest, "the resource was modified concurrently, reload and retry"

	case errors.Is(err, service.ErrNotEligible):
		return http.StatusForbidden, "you cannot review your own product"
	case errors.Is(err, service.ErrProfileRequired):
		return http.StatusForbidden, "create your profile first"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "forbidden"

	case errors.Is(err, database.ErrProductNotFound),
		errors.Is(err, database.ErrOrderNotFound),
		errors.Is(err, database.ErrProfileNotFound),
		errors.Is(err, database.ErrCartItemNotFound),
		errors.Is(err, database.ErrCartNotFound):
		return http.StatusNotFound, notFoundMessage(err)
	}

	return http.StatusInternalServerError, "internal server error"
}

func notFoundMessage(err error) string {
	for _, sentinel := range []error{
		database.ErrProductNotFound,
		database.ErrOrderNotFound,
		database.ErrProfileNotFound,
		database.ErrCartItemNotFound,
		database.ErrCartNotFound,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "not found"
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondMessage(c, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
