package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/fyrsmithlabs/taskd/internal/approval"
	"github.com/fyrsmithlabs/taskd/internal/extraction"
	"github.com/fyrsmithlabs/taskd/internal/provider"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// statusFor maps a core error to an HTTP status.
func statusFor(err error) int {
	var (
		ve *extraction.ValidationError
		re *provider.ResponseError
		te *provider.TimeoutError
		tr *provider.TransportError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, extraction.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, approval.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &re), errors.As(err, &te), errors.As(err, &tr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail converts err into an echo.HTTPError with a message fit for the caller.
func (s *Server) fail(c echo.Context, op string, err error) error {
	status := statusFor(err)

	msg := extraction.UserMessage(err)
	if status == http.StatusNotFound {
		msg = err.Error()
	}

	fields := []zap.Field{
		zap.String("op", op),
		zap.Int("status", status),
		zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed", fields...)
	} else {
		s.logger.Debug("request rejected", fields...)
	}

	return echo.NewHTTPError(status, msg)
}
