package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/blockvault/internal/apperr"
)

func LoggerMiddleware(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		latency := time.Since(startTime)
		statusCode := c.Writer.Status()

		fields := logrus.Fields{
			"status":  statusCode,
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"latency": latency,
			"ip":      c.ClientIP(),
		}
		if p, ok := PrincipalFrom(c); ok {
			fields["address"] = p.Address.String()
		}
		entry := logger.WithFields(fields)

		if err := c.Errors.Last(); err != nil {
			entry = entry.WithError(err.Err).WithField("kind", string(apperr.KindOf(err.Err)))
		}
		if statusCode >= http.StatusInternalServerError {
			entry.Warn("request processed")
			return
		}
		entry.Info("request processed")
	}
}

func RecoveryMiddleware(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.WithFields(logrus.Fields{
					"error": err,
					"path":  c.Request.URL.Path,
				}).Error("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "internal error",
					"code":  string(apperr.Internal),
				})
			}
		}()
		c.Next()
	}
}
