package auth

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"modelbase-backend/internal/engine"
	"modelbase-backend/internal/store"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	store     *store.Store
	jwtSecret string
}

func NewAuthHandler(s *store.Store, jwtSecret string) *AuthHandler {
	return &AuthHandler{store: s, jwtSecret: jwtSecret}
}

// RegisterAuthRoutes registers auth routes on the given Fiber app.
func RegisterAuthRoutes(app *fiber.App, h *AuthHandler) {
	auth := app.Group("/api/auth")
	auth.Post("/login", h.Login)
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.Email == "" || body.Password == "" {
		return engine.UnauthorizedError("Email and password are required")
	}

	user, err := h.findUserByEmail(c.Context(), body.Email)
	if err != nil {
		return engine.UnauthorizedError("Invalid email or password")
	}

	if !userActive(user["active"]) {
		return engine.UnauthorizedError("Account is disabled")
	}

	passwordHash, _ := user["password_hash"].(string)
	if !CheckPassword(body.Password, passwordHash) {
		return engine.UnauthorizedError("Invalid email or password")
	}

	userID, _ := user["id"].(string)
	token, err := GenerateAccessToken(userID, parseRoles(user["roles"]), h.jwtSecret)
	if err != nil {
		return engine.NewAppError("INTERNAL_ERROR", 500, "Failed to generate access token")
	}

	return c.JSON(fiber.Map{"data": fiber.Map{"access_token": token}})
}

func (h *AuthHandler) findUserByEmail(ctx context.Context, email string) (map[string]any, error) {
	sql := fmt.Sprintf(
		"SELECT id, email, password_hash, roles, active FROM _users WHERE email = %s",
		h.store.Dialect.Placeholder(1))
	return store.QueryRow(ctx, h.store.DB, sql, email)
}

// parseRoles decodes the roles column, stored as a JSON text array.
func parseRoles(v any) []string {
	raw, _ := v.(string)
	if raw == "" {
		return []string{}
	}
	var roles []string
	if err := json.Unmarshal([]byte(raw), &roles); err != nil {
		return []string{}
	}
	return roles
}

// userActive handles postgres booleans and sqlite integers alike.
func userActive(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case int64:
		return val != 0
	case string:
		return val == "true" || val == "1"
	}
	return false
}
