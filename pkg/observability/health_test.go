package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
)

func ok(context.Context) error   { return nil }
func down(context.Context) error { return errors.New("connection refused") }

func TestHealthChecker_Check(t *testing.T) {
	tests := []struct {
		name     string
		required Pinger
		optional Pinger
		want     string
	}{
		{"all up", ok, ok, StatusHealthy},
		{"cache down", ok, down, StatusDegraded},
		{"database down", down, ok, StatusUnhealthy},
		{"everything down", down, down, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthChecker("test", nil, nil)
			h.Require("mongodb", tt.required)
			h.Optional("redis", tt.optional)

			status := h.Check(context.Background())
			assert.Equal(t, tt.want, status.Status)
			assert.Len(t, status.Dependencies, 2)
		})
	}
}

func TestHealthChecker_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	h := NewHealthChecker("test", nil, rdb)
	assert.Equal(t, StatusHealthy, h.Check(context.Background()).Status)

	mr.Close()
	status := h.Check(context.Background())
	assert.Equal(t, StatusDegraded, status.Status)
	assert.NotEmpty(t, status.Dependencies["redis"].Message)
}

func TestHealthRoutes(t *testing.T) {
	h := NewHealthChecker("test", nil, nil)
	h.Require("mongodb", down)
	router := mux.NewRouter()
	RegisterHealthRoutes(router, h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}
