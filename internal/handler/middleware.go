package handler

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const walletContextKey = "wallet"

// RequestLogger writes one zap line per request in the access-log
// shape the rest of the services use.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	accessLogger := logger.Named("HTTP")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("clientIP", c.ClientIP()),
			zap.String("requestID", c.GetString("requestID")),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		if c.Writer.Status() >= 500 {
			accessLogger.Error("Request failed", fields...)
		} else {
			accessLogger.Info("Request handled", fields...)
		}
	}
}

// RequestID assigns a request id, honoring one supplied by the proxy.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("requestID", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// WalletAuth requires a valid bearer token and stores the wallet
// address in the gin context.
func WalletAuth(verifier *JWTVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			respondError(c, 401, "authorization header missing")
			c.Abort()
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			respondError(c, 401, "authorization header must be 'Bearer <token>'")
			c.Abort()
			return
		}
		claims, err := verifier.VerifyToken(parts[1])
		if err != nil {
			respondError(c, 401, err.Error())
			c.Abort()
			return
		}
		c.Set(walletContextKey, claims.Wallet)
		c.Next()
	}
}

// walletFromContext returns the authenticated wallet, empty when the
// route carries no auth middleware.
func walletFromContext(c *gin.Context) string {
	return c.GetString(walletContextKey)
}
