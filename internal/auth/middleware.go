package auth

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/example/ai-detector/internal/apperr"
	"github.com/example/ai-detector/internal/logging"
)

type contextKey string

const userIDKey contextKey = logging.CallerKey

// Validator resolves a bearer token to an identity.
type Validator interface {
	Validate(token string) (string, bool)
}

// GetUserID retrieves the authenticated subject from context.
func GetUserID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if value, ok := ctx.Value(userIDKey).(string); ok && value != "" {
		return value, true
	}
	return "", false
}

// WithUserID returns a copy of ctx carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// Gate resolves the caller from the Authorization header. A missing or
// invalid token leaves the request anonymous; the route decides whether
// that is acceptable.
func Gate(validator Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := extractBearerToken(c.Request.Header.Get("Authorization"))
		if !ok {
			c.Next()
			return
		}

		subject, valid := validator.Validate(tokenString)
		if !valid {
			_ = c.Error(apperr.ErrAuthInvalid)
			c.Next()
			return
		}

		c.Request = c.Request.WithContext(WithUserID(c.Request.Context(), subject))
		c.Set(logging.CallerKey, subject)
		c.Next()
	}
}

// RequireUser returns the caller bound by Gate, or an ErrForbidden when the
// request is anonymous.
func RequireUser(ctx context.Context) (string, error) {
	userID, ok := GetUserID(ctx)
	if !ok {
		return "", apperr.Forbidden("authentication required")
	}
	return userID, nil
}

// OptionalUser returns the caller bound by Gate, or nil for an anonymous request.
func OptionalUser(ctx context.Context) *string {
	userID, ok := GetUserID(ctx)
	if !ok {
		return nil
	}
	return &userID
}

func extractBearerToken(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}
