package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"busbooking/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const customerKey = "customer"

// AuthRequired accepts the HS256 bearer tokens issued by the auth service and exposes
// the user_id claim as the customer id of the request.
func AuthRequired(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(strings.ToLower(raw), "bearer ") {
			abortUnauthorized(c, "token tidak ditemukan")
			return
		}
		rc, err := parseToken(strings.TrimSpace(raw[len("bearer "):]), secret)
		if err != nil {
			abortUnauthorized(c, "token tidak valid")
			return
		}
		rc.RequestID = GetRequestID(c)
		c.Set(customerKey, rc)
		c.Next()
	}
}

func parseToken(tokenString string, secret []byte) (domain.RequestContext, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return domain.RequestContext{}, err
	}
	id := claimString(claims["user_id"])
	if id == "" {
		return domain.RequestContext{}, errors.New("claim user_id kosong")
	}
	return domain.RequestContext{CustomerID: id, Role: claimString(claims["role"])}, nil
}

// user_id arrives as a JSON number from the auth service; strings are accepted too.
func claimString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":      msg,
		"code":       "unauthorized",
		"message":    msg,
		"request_id": GetRequestID(c),
	})
}

// Customer returns the authenticated caller set by AuthRequired.
func Customer(c *gin.Context) (domain.RequestContext, bool) {
	v, ok := c.Get(customerKey)
	if !ok {
		return domain.RequestContext{}, false
	}
	rc, ok := v.(domain.RequestContext)
	return rc, ok && rc.CustomerID != ""
}
