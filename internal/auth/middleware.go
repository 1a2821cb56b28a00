package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// JWTMiddleware validates bearer tokens and stores user_id in locals.
func JWTMiddleware(secret string) fiber.Handler {
	return jwtMiddleware(secret, func(c *fiber.Ctx) string {
		return bearerFromHeader(c.Get("Authorization"))
	})
}

// JWTQueryMiddleware is JWTMiddleware for clients that cannot set headers,
// such as browser websockets. It falls back to the access_token query
// parameter when there is no Authorization header.
func JWTQueryMiddleware(secret string) fiber.Handler {
	return jwtMiddleware(secret, func(c *fiber.Ctx) string {
		if token := bearerFromHeader(c.Get("Authorization")); token != "" {
			return token
		}
		return strings.TrimSpace(c.Query("access_token"))
	})
}

func jwtMiddleware(secret string, tokenFrom func(*fiber.Ctx) string) fiber.Handler {
	secretBytes := []byte(secret)
	return func(c *fiber.Ctx) error {
		token := tokenFrom(c)
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		parsed, err := parseMiddlewareClaimsFn(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
			return secretBytes, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}

		claims, ok := parsed.Claims.(*Claims)
		if !ok || !parsed.Valid {
			return fiber.NewError(fiber.StatusUnauthorized, "token invalid")
		}
		if claims.UserID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, ErrMissingSubject.Error())
		}

		c.Locals("user_id", claims.UserID)
		return c.Next()
	}
}

var parseMiddlewareClaimsFn = jwt.ParseWithClaims

func bearerFromHeader(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
