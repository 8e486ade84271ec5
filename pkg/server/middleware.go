package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/momentseek/pkg/model"
	"github.com/m-mizutani/momentseek/pkg/utils/logging"
)

const ownerKey = "owner"

// requestLogger attaches a request scoped logger to the request context
// and logs one line per request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		logger := logging.From(c.Request.Context()).With(
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)
		c.Request = c.Request.WithContext(logging.With(c.Request.Context(), logger))

		c.Next()

		logger.Info("request",
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP())
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// authenticate verifies an HS256 bearer token; its subject is the owner
func authenticate(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, err := ownerFromToken(c.GetHeader("Authorization"), secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Code:    http.StatusUnauthorized,
				Message: "Authentication required.",
				Detail:  err.Error(),
			})
			return
		}

		c.Set(ownerKey, string(owner))
		ctx := logging.With(c.Request.Context(), logging.From(c.Request.Context()).With("owner", owner))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func ownerFromToken(header string, secret []byte) (model.OwnerID, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return "", goerr.New("missing bearer token")
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", goerr.Wrap(err, "invalid token")
	}

	if claims.Subject == "" {
		return "", goerr.New("token has no subject")
	}
	return model.OwnerID(claims.Subject), nil
}

func ownerOf(c *gin.Context) model.OwnerID {
	return model.OwnerID(c.GetString(ownerKey))
}
