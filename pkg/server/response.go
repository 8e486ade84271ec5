package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/m-mizutani/momentseek/pkg/model"
	"github.com/m-mizutani/momentseek/pkg/utils/logging"
)

// Response is the envelope of every API response
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// fail writes the user-safe summary of err next to its original detail
func fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		logging.From(c.Request.Context()).Error("request failed",
			"error", err,
			"path", c.FullPath(),
			"status", status)
	}

	c.AbortWithStatusJSON(status, Response{
		Code:    status,
		Message: model.Summary(err),
		Detail:  err.Error(),
	})
}

func badRequest(c *gin.Context, message string, err error) {
	resp := Response{Code: http.StatusBadRequest, Message: message}
	if err != nil {
		resp.Detail = err.Error()
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, resp)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, model.ErrVideoRequired),
		errors.Is(err, model.ErrQueryRequired),
		errors.Is(err, model.ErrInvalidSortField),
		errors.Is(err, model.ErrInvalidSortDirection),
		errors.Is(err, model.ErrInvalidClipBounds):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrHistoryNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrRequestSuperseded):
		return http.StatusConflict
	case errors.Is(err, model.ErrMalformedResponse),
		errors.Is(err, model.ErrPredictionFailed):
		return http.StatusBadGateway
	case errors.Is(err, model.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// errorBody is the persisted-error part of a successful query response
type errorBody struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func newErrorBody(err error) *errorBody {
	if err == nil {
		return nil
	}
	return &errorBody{Message: model.Summary(err), Detail: err.Error()}
}
