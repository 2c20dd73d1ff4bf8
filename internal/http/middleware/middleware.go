// Package middleware holds request-scoped gin middleware that is specific
// to this service rather than the platform.
package middleware

import (
	"context"
	"strings"

	"shopfloor_backend/platform/httpkit"
	"shopfloor_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

const maxRequestIDLength = 128

// RequestID propagates a caller supplied request id or mints one, and puts
// it together with the resolved user id on the request context so service
// code can log with WithContext.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}
		c.Header(HeaderRequestID, id)

		ctx := context.WithValue(c.Request.Context(), logger.RequestIDKey, id)
		if identity := httpkit.GetIdentity(c); identity.IsKnown() {
			ctx = context.WithValue(ctx, logger.UserIDKey, identity.UserID())
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
