package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"approval-engine/internal/usecase/approval"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const (
	actorKey = "actor"

	HeaderActorID          = "X-Actor-Id"
	HeaderActorPermissions = "X-Actor-Permissions"
)

// Claims carried by access tokens issued by the identity service.
type Claims struct {
	UserID      string   `json:"user_id"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

type AuthConfig struct {
	Secret []byte
	// SkipAuth trusts X-Actor-Id / X-Actor-Permissions. Local and test use only.
	SkipAuth bool
}

// IssueToken signs a token for userID. Used by tests and local tooling.
func IssueToken(secret []byte, userID string, perms []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:      userID,
		Permissions: perms,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func parseToken(secret []byte, raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// Auth resolves the caller into an approval.Actor stored on the context.
func Auth(cfg AuthConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			actor := approval.Actor{IPAddress: c.RealIP(), UserAgent: req.UserAgent()}

			if cfg.SkipAuth {
				actor.ID = strings.TrimSpace(req.Header.Get(HeaderActorID))
				actor.Permissions = splitList(req.Header.Get(HeaderActorPermissions))
			} else {
				header := req.Header.Get(echo.HeaderAuthorization)
				raw, ok := strings.CutPrefix(header, "Bearer ")
				if !ok || strings.TrimSpace(raw) == "" {
					return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
				}
				claims, err := parseToken(cfg.Secret, strings.TrimSpace(raw))
				if err != nil {
					return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token"})
				}
				actor.ID = claims.UserID
				actor.Permissions = claims.Permissions
			}

			if actor.ID == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing actor"})
			}
			c.Set(actorKey, actor)
			return next(c)
		}
	}
}

// RequirePermission admits actors holding perm globally or the wildcard.
func RequirePermission(perm string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor, ok := ActorFrom(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing actor"})
			}
			if !actor.Can(perm, "") {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "missing permission " + perm})
			}
			return next(c)
		}
	}
}

func ActorFrom(c echo.Context) (approval.Actor, bool) {
	a, ok := c.Get(actorKey).(approval.Actor)
	return a, ok
}

// WithActor is for tests that call handlers without the middleware chain.
func WithActor(c echo.Context, a approval.Actor) { c.Set(actorKey, a) }

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
