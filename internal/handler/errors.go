package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/chat-gateway/internal/apperr"
	"github.com/iliyamo/chat-gateway/internal/gateway"
	"github.com/iliyamo/chat-gateway/internal/middleware"
)

const (
	msgUnavailable = "service temporarily unavailable"
	msgInternal    = "internal error"
)

// respondError maps a classified error to a JSON response. Only validation,
// not-found and unauthorized messages reach the caller verbatim; everything
// else gets a generic message and the cause goes to the log.
func respondError(c echo.Context, log *slog.Logger, err error) error {
	kind := apperr.KindOf(err)
	switch kind {
	case apperr.KindValidation, apperr.KindNotFound, apperr.KindUnauthorized:
		msg := apperr.Message(err)
		if msg == "" {
			msg = kind.String()
		}
		return c.JSON(statusOf(kind), echo.Map{"error": msg})
	case apperr.KindDuplicatePhone:
		return c.JSON(http.StatusConflict, echo.Map{"error": "phone already registered"})
	case apperr.KindGateway:
		body := echo.Map{"error": "the assistant is unavailable right now"}
		status := http.StatusBadGateway
		if f, ok := gateway.FailureOf(err); ok {
			body["reason"] = f.Reason
			body["retryable"] = f.Retryable
			status = gatewayStatus(f.Reason)
		}
		log.Error("model gateway failure", "err", err, "request_id", middleware.RequestID(c))
		return c.JSON(status, body)
	case apperr.KindStorageUnavailable:
		log.Error("storage unavailable", "err", err, "request_id", middleware.RequestID(c))
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": msgUnavailable})
	}
	log.Error("unclassified error", "err", err, "request_id", middleware.RequestID(c))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": msgInternal})
}

func statusOf(k apperr.Kind) int {
	switch k {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

func gatewayStatus(r gateway.Reason) int {
	switch r {
	case gateway.ReasonTimeout:
		return http.StatusGatewayTimeout
	case gateway.ReasonRateLimit:
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}
