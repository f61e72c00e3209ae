// Package middleware provides the HTTP middleware chain: authentication,
// request logging, rate limiting, metrics and tracing.
package middleware

import (
	"errors"
	"strconv"
	"strings"

	"lenscape/internal/config"
	"lenscape/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// TokenIssuer is the "iss" claim stamped on and required from access tokens.
	TokenIssuer = "lenscape-api"
	// TokenAudience is the "aud" claim stamped on and required from access tokens.
	TokenAudience = "lenscape-client"
)

var cfg *config.Config

// InitMiddleware installs the configuration used by AuthRequired.
func InitMiddleware(c *config.Config) {
	cfg = c
}

// ParseToken validates an HS256 token and returns the user ID in its subject.
func ParseToken(secret, tokenString string) (uint, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	},
		jwt.WithIssuer(TokenIssuer),
		jwt.WithAudience(TokenAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return 0, errors.New("invalid or expired token")
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return 0, errors.New("token has no subject")
	}
	userID, err := strconv.ParseUint(sub, 10, 32)
	if err != nil || userID == 0 {
		return 0, errors.New("invalid user ID in token")
	}
	return uint(userID), nil
}

// AuthRequired rejects requests without a valid bearer token and stores the
// authenticated user ID in c.Locals("userID").
func AuthRequired(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Authorization header required"))
	}

	scheme, tokenString, ok := strings.Cut(authHeader, " ")
	if !ok || scheme != "Bearer" || tokenString == "" {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Invalid authorization header format"))
	}

	if cfg == nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(errors.New("auth middleware not initialized")))
	}

	userID, err := ParseToken(cfg.JWTSecret, tokenString)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Invalid or expired token"))
	}

	c.Locals("userID", userID)
	c.SetUserContext(WithUserID(c.UserContext(), userID))
	return c.Next()
}
