package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// JWTClaims is the claim set a control-plane token is expected to carry.
// Trimmed from the teacher's JWTClaims: Flowcraft has no per-user roles, so
// only the identity fields survive.
type JWTClaims struct {
	Subject string `json:"sub"`
	jwt.RegisteredClaims
}

// AuthConfig configures the JWT middleware. Flowcraft's control plane is a
// headless workflow-engine API; unlike the teacher's dual JWT+API-key
// scheme, bearer JWT is its only authentication concern.
type AuthConfig struct {
	Secret      string
	RequireAuth bool
	SkipPaths   []string
}

// JWT validates a "Bearer <token>" Authorization header and, on success,
// sets "subject" on the echo.Context for handlers to read.
func JWT(config AuthConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Path()
			for _, skip := range config.SkipPaths {
				if strings.HasPrefix(path, skip) {
					return next(c)
				}
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				if config.RequireAuth {
					return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
				}
				return next(c)
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header format")
			}

			claims := &JWTClaims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid signing method")
				}
				return []byte(config.Secret), nil
			})
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set("subject", claims.Subject)
			return next(c)
		}
	}
}

// RequireAuth requires a valid bearer token on every path except health and
// metrics endpoints.
func RequireAuth(secret string) echo.MiddlewareFunc {
	return JWT(AuthConfig{
		Secret:      secret,
		RequireAuth: true,
		SkipPaths:   []string{"/health", "/metrics"},
	})
}
