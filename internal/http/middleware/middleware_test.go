package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"shopfloor_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"minted", "", false},
		{"propagated", "req-123", true},
		{"oversized", strings.Repeat("x", 200), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seenID, seenUser string
			r := gin.New()
			r.Use(RequestID())
			r.GET("/", func(c *gin.Context) {
				seenID, _ = c.Request.Context().Value(logger.RequestIDKey).(string)
				seenUser, _ = c.Request.Context().Value(logger.UserIDKey).(string)
				c.Status(http.StatusNoContent)
			})

			req := httptest.NewRequest(http.MethodGet, "/?userId=meena", nil)
			if tt.incoming != "" {
				req.Header.Set(HeaderRequestID, tt.incoming)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			got := rec.Header().Get(HeaderRequestID)
			if got == "" || got != seenID {
				t.Fatalf("response id %q does not match context id %q", got, seenID)
			}
			if tt.keep && got != tt.incoming {
				t.Fatalf("expected %q to be propagated, got %q", tt.incoming, got)
			}
			if !tt.keep && got == tt.incoming {
				t.Fatalf("expected a fresh id")
			}
			if seenUser != "meena" {
				t.Fatalf("expected user id on context, got %q", seenUser)
			}
		})
	}
}
