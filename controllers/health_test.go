package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"lessonsync_go/services"

	"github.com/gofiber/fiber/v2"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestHealthEndpoints(t *testing.T) {
	tests := []struct {
		name       string
		backendErr error
		wantHealth int
	}{
		{"backend up", nil, fiber.StatusOK},
		{"backend down", errors.New("connection refused"), fiber.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := NewHealthController(services.NewHealthService(services.HealthOptions{
				Backend:     pinger{err: tt.backendErr},
				BackendName: "test",
			}))
			app := fiber.New()
			app.Get("/health", hc.GetHealthStatus)
			app.Get("/health/live", hc.GetLiveness)

			resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/health", nil))
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.wantHealth {
				t.Fatalf("expected %d from /health, got %d", tt.wantHealth, resp.StatusCode)
			}

			resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/health/live", nil))
			if err != nil {
				t.Fatal(err)
			}
			var body map[string]interface{}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != fiber.StatusOK || body["status"] != "ok" {
				t.Fatalf("liveness should ignore dependencies, got %d %v", resp.StatusCode, body)
			}
		})
	}
}
