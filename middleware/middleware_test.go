package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
)

func signed(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestParseToken(t *testing.T) {
	claims := Claims{
		UserID: 7,
		Role:   "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := signed(t, "a-very-long-test-secret", claims)

	tests := []struct {
		name    string
		secret  string
		wantErr bool
	}{
		{"verified", "a-very-long-test-secret", false},
		{"wrong secret", "another-secret-value", true},
		{"decode only", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseToken(token, tt.secret)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error=%v, got %v", tt.wantErr, err)
			}
			if err == nil && (got.UserID != 7 || got.Role != "admin") {
				t.Fatalf("unexpected claims %+v", got)
			}
		})
	}
}

func TestJWTMiddleware(t *testing.T) {
	const secret = "a-very-long-test-secret"
	app := fiber.New()
	app.Use(RequestIDMiddleware())
	app.Get("/admin", JWTMiddleware(secret), RequireScheduler(), func(c *fiber.Ctx) error {
		token, _ := c.Locals("token").(string)
		return c.SendString(token)
	})

	admin := signed(t, secret, Claims{UserID: 1, Role: "admin"})
	teacher := signed(t, secret, Claims{UserID: 2, Role: "teacher"})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", fiber.StatusUnauthorized},
		{"not bearer", admin, fiber.StatusUnauthorized},
		{"garbage token", "Bearer nope", fiber.StatusUnauthorized},
		{"wrong role", "Bearer " + teacher, fiber.StatusForbidden},
		{"admin", "Bearer " + admin, fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, resp.StatusCode)
			}
			if resp.Header.Get("X-Request-ID") == "" {
				t.Fatal("expected a request id header")
			}
		})
	}
}

func TestRequestIDIsReused(t *testing.T) {
	app := fiber.New()
	app.Use(RequestIDMiddleware())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(RequestID(c)) })

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if got := resp.Header.Get("X-Request-ID"); got != "abc-123" {
		t.Fatalf("expected caller id to be kept, got %q", got)
	}
}

func TestResourceFromPath(t *testing.T) {
	tests := []struct {
		path     string
		resource string
		id       uint
	}{
		{"/api/groups/12/courses/3/reconcile", "groups", 12},
		{"/api/schedule-config/default", "schedule-config", 0},
		{"/api/courses/5/lessons", "courses", 5},
		{"/health", "", 0},
	}
	for _, tt := range tests {
		resource, id := resourceFromPath(tt.path)
		if resource != tt.resource || id != tt.id {
			t.Errorf("resourceFromPath(%q) = (%q, %d), want (%q, %d)", tt.path, resource, id, tt.resource, tt.id)
		}
	}
}
