// handlers/response.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gewnthar/favdemand/models"
	"github.com/gin-gonic/gin"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func respondWithJSON(c *gin.Context, code int, payload interface{}) {
	c.JSON(code, payload)
}

// respondWithError maps service errors onto status codes and aborts the chain.
func respondWithError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, models.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, models.ErrAlreadyExists):
		status, code = http.StatusConflict, "already_exists"
	case errors.Is(err, models.ErrInvalidArgument):
		status, code = http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, models.ErrNoData):
		status, code = http.StatusNotFound, "no_data"
	case errors.Is(err, models.ErrIngestionFailed):
		status, code = http.StatusInternalServerError, "ingestion_failed"
	}
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}
