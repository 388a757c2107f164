package middleware

import (
	"context"

	"lessonsync_go/services/backend"
	"lessonsync_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
)

// Claims are the fields read from the school backend's access token
type Claims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// ParseToken reads the claims of a backend-issued token. With a secret the
// signature is verified; without one the claims are only decoded and the
// backend stays responsible for rejecting the token.
func ParseToken(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}
	if secret == "" {
		if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
			return nil, err
		}
		return claims, nil
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "Unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid token")
	}
	return claims, nil
}

// JWTMiddleware requires a bearer token, stores its claims and forwards the
// raw token to the school backend through the request context.
func JWTMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authorization header",
			})
		}

		tokenString := utils.BearerToken(authHeader)
		if tokenString == "" || tokenString == authHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization header format",
			})
		}

		claims, err := ParseToken(tokenString, secret)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token",
			})
		}

		c.Locals("claims", claims)
		c.Locals("token", tokenString)
		return c.Next()
	}
}

// RequireRole middleware checks if user has required role
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := c.Locals("claims").(*Claims)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing user claims",
			})
		}

		for _, role := range roles {
			if claims.Role == role {
				return c.Next()
			}
		}

		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Insufficient permissions",
		})
	}
}

// RequireScheduler allows the roles that may change schedules
func RequireScheduler() fiber.Handler {
	return RequireRole("owner", "admin")
}

// GetCurrentClaims returns the current JWT claims
func GetCurrentClaims(c *fiber.Ctx) (*Claims, error) {
	claims, ok := c.Locals("claims").(*Claims)
	if !ok {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "Claims not found in context")
	}
	return claims, nil
}

// BackendContext carries the caller's token and request id to the school backend
func BackendContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if token, ok := c.Locals("token").(string); ok && token != "" {
		ctx = backend.WithToken(ctx, token)
	}
	if id := RequestID(c); id != "" {
		ctx = backend.WithRequestID(ctx, id)
	}
	return ctx
}
