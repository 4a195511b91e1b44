package handlers

import (
	"errors"
	"net/http"

	"busbooking/internal/domain"
	"busbooking/internal/http/middleware"
	"busbooking/internal/utils"

	"github.com/gin-gonic/gin"
)

// ErrorResponse standardizes error payloads.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Details   any    `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Message   string `json:"message"`
}

func respondError(c *gin.Context, status int, code, message string, details any, retryable bool) {
	if code == "" {
		code = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     message,
		Code:      code,
		Details:   details,
		Retryable: retryable,
		RequestID: middleware.GetRequestID(c),
		Message:   message,
	})
}

var kindStatus = map[domain.Kind]int{
	domain.KindSeatUnavailable:            http.StatusConflict,
	domain.KindHoldExpired:                http.StatusGone,
	domain.KindBookingExpired:             http.StatusGone,
	domain.KindHoldNotFound:               http.StatusNotFound,
	domain.KindHoldConfirmed:              http.StatusConflict,
	domain.KindBookingNotFound:            http.StatusNotFound,
	domain.KindOrderNotFound:              http.StatusNotFound,
	domain.KindSignatureInvalid:           http.StatusBadRequest,
	domain.KindAmountMismatch:             http.StatusInternalServerError,
	domain.KindInvalidTransition:          http.StatusConflict,
	domain.KindBookingNotHeld:             http.StatusConflict,
	domain.KindNotHeld:                    http.StatusConflict,
	domain.KindNotPending:                 http.StatusConflict,
	domain.KindNotExpirable:               http.StatusConflict,
	domain.KindNotCancellable:             http.StatusConflict,
	domain.KindWrongAttempt:               http.StatusConflict,
	domain.KindAlreadyConfirmed:           http.StatusConflict,
	domain.KindAlreadyVerifiedDifferently: http.StatusConflict,
	domain.KindNotAllowed:                 http.StatusUnprocessableEntity,
	domain.KindReasonTooShort:             http.StatusBadRequest,
	domain.KindReasonTooLong:              http.StatusBadRequest,
	domain.KindProviderUnavailable:        http.StatusServiceUnavailable,
	domain.KindPNRExhausted:               http.StatusInternalServerError,
}

// RespondDomainError maps domain errors to HTTP responses.
func RespondDomainError(c *gin.Context, err error) {
	var de *domain.Error
	if errors.As(err, &de) {
		status, ok := kindStatus[de.Kind]
		if !ok {
			status = http.StatusInternalServerError
		}
		switch {
		case status >= 500:
			utils.LogError(middleware.GetRequestID(c), "http", string(de.Kind), err)
		case de.Kind == domain.KindInvalidTransition:
			utils.Logger().Warn("invalid transition", "request_id", middleware.GetRequestID(c), "err", err)
		}
		msg := de.Msg
		if msg == "" {
			msg = string(de.Kind)
		}
		respondError(c, status, string(de.Kind), msg, de.Details, de.Retryable())
		return
	}

	switch {
	case domain.IsValidation(err):
		respondError(c, http.StatusBadRequest, "validation_error", err.Error(), nil, false)
	case domain.IsNotFound(err):
		respondError(c, http.StatusNotFound, "not_found", err.Error(), nil, false)
	case domain.IsConflict(err):
		respondError(c, http.StatusConflict, "conflict", err.Error(), nil, false)
	default:
		utils.LogError(middleware.GetRequestID(c), "http", "internal_error", err)
		respondError(c, http.StatusInternalServerError, "internal_error", "terjadi kesalahan", nil, false)
	}
}
