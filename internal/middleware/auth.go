package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/clipgen/api/internal/auth"
	"github.com/clipgen/api/pkg/response"
)

type AuthMiddleware struct {
	verifier auth.TokenVerifier
}

func NewAuthMiddleware(verifier auth.TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// Authenticate validates the JWT from the Authorization header
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return response.Unauthorized(c, "Missing authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return response.Unauthorized(c, "Invalid authorization header format")
		}

		claims, err := m.verifier.Validate(parts[1])
		if err != nil {
			return response.Unauthorized(c, "Invalid or expired token")
		}

		c.Locals("userId", claims.UserID)
		c.Locals("email", claims.Email)
		c.Locals("claims", claims)

		return c.Next()
	}
}

// AuthenticateQuery validates a token passed as a query parameter. Browsers
// cannot set headers on WebSocket upgrade requests, so the socket routes
// take ?token= instead.
func (m *AuthMiddleware) AuthenticateQuery(param string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := c.Query(param)
		if tokenString == "" {
			return response.Unauthorized(c, "Missing token")
		}

		claims, err := m.verifier.Validate(tokenString)
		if err != nil {
			return response.Unauthorized(c, "Invalid or expired token")
		}

		c.Locals("userId", claims.UserID)
		c.Locals("email", claims.Email)
		c.Locals("claims", claims)

		return c.Next()
	}
}

// GetUserID extracts user ID from context
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals("userId").(string); ok {
		return userID
	}
	return ""
}
