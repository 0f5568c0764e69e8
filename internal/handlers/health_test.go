package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		db         Pinger
		wantStatus int
		wantBody   string
	}{
		{"no database", nil, http.StatusOK, `{"status":"ok","database":"not configured"}`},
		{"connected", pingerFunc(func(context.Context) error { return nil }), http.StatusOK, `{"status":"ok","database":"connected"}`},
		{"disconnected", pingerFunc(func(context.Context) error { return errors.New("refused") }), http.StatusServiceUnavailable, `{"status":"degraded","database":"disconnected"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			router := gin.New()
			router.GET("/health", NewHealthHandler(tt.db).HealthCheck)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.JSONEq(t, tt.wantBody, w.Body.String())
		})
	}
}
