package handlers

import (
	"errors"
	"net/http"
	"strings"

	"busbooking/internal/http/middleware"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// RespondError sends a plain error payload with request_id included.
func RespondError(c *gin.Context, status int, message string, err error) {
	var details any
	if err != nil {
		details = err.Error()
	}
	respondError(c, status, "", message, details, false)
}

// BindJSONOrError ensures body is present, parsable and passes binding rules.
func BindJSONOrError[T any](c *gin.Context, dst *T) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		RespondError(c, http.StatusBadRequest, "body kosong", nil)
		return false
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			respondError(c, http.StatusBadRequest, "validation_error", "payload tidak valid", fieldErrors(verrs), false)
			return false
		}
		RespondError(c, http.StatusBadRequest, "payload tidak valid", err)
		return false
	}
	return true
}

func fieldErrors(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		if ns := fe.Namespace(); strings.Contains(ns, ".") {
			field = ns[strings.Index(ns, ".")+1:]
		}
		out[field] = fe.Tag()
	}
	return out
}

func requireCustomer(c *gin.Context) (string, bool) {
	rc, ok := middleware.Customer(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized", "login diperlukan", nil, false)
		return "", false
	}
	return rc.CustomerID, true
}
