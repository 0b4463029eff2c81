package admin

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kbukum/switchyard/errors"
	"github.com/kbukum/switchyard/logger"
)

const (
	headerRequestID = "X-Request-Id"
	ctxRequestID    = "request_id"
	ctxSubject      = "subject"
)

// recovery turns a handler panic into a 500 response.
func recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered", logger.Fields(
					logger.FieldError, fmt.Sprintf("%v", r),
					"stack", string(debug.Stack()),
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				))
				appErr := errors.Internal(fmt.Errorf("panic: %v", r))
				c.AbortWithStatusJSON(appErr.HTTPStatus, appErr.ToResponse())
			}
		}()
		c.Next()
	}
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// requestLogger logs every request except health checks, at a level
// derived from the status code.
func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := logger.Fields(
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			logger.FieldDuration, time.Since(start).Milliseconds(),
			ctxRequestID, c.GetString(ctxRequestID),
		)
		switch {
		case status >= 500:
			log.Error("request completed", fields)
		case status >= 400:
			log.Warn("request completed", fields)
		default:
			log.Debug("request completed", fields)
		}
	}
}

// bearerAuth rejects requests without a valid token.
func bearerAuth(tokens *TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		scheme, token, ok := strings.Cut(c.GetHeader("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			abortWithError(c, errors.Unauthorized("bearer token required"))
			return
		}
		claims, err := tokens.Parse(strings.TrimSpace(token))
		if err != nil {
			abortWithError(c, errors.Unauthorized("invalid token"))
			return
		}
		c.Set(ctxSubject, claims.Subject)
		c.Next()
	}
}

func abortWithError(c *gin.Context, err error) {
	appErr := errors.FromError(err)
	c.AbortWithStatusJSON(appErr.HTTPStatus, appErr.ToResponse())
}

// requireJSON rejects POST requests whose body is not declared as JSON.
// Cross-site form posts cannot carry that Content-Type without a CORS
// preflight, which this server never answers.
func requireJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodPost && c.ContentType() != gin.MIMEJSON {
			abortWithError(c, errors.UnsupportedMediaType(gin.MIMEJSON))
			return
		}
		c.Next()
	}
}
