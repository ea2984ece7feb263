package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey struct{}

// Principal is the authenticated caller.
type Principal struct {
	Subject string
	Email   string
	Roles   []string
}

type Claims struct {
	jwt.RegisteredClaims
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// JWTConfig selects how bearer tokens are verified: with SigningKey (HS256)
// when set, otherwise against the JWKS at JWKSURL, discovered from Issuer if
// empty.
type JWTConfig struct {
	Issuer     string
	Audience   string
	JWKSURL    string
	SigningKey []byte
	HTTPClient *http.Client
}

// NewJWTMiddleware resolves the key source once and returns the middleware.
func NewJWTMiddleware(ctx context.Context, cfg JWTConfig) (echo.MiddlewareFunc, error) {
	if len(cfg.SigningKey) > 0 {
		key := cfg.SigningKey
		return jwtMiddleware(cfg, []string{"HS256"}, func(context.Context) jwt.Keyfunc {
			return func(*jwt.Token) (interface{}, error) { return key, nil }
		}), nil
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	jwksURL := cfg.JWKSURL
	if jwksURL == "" {
		if cfg.Issuer == "" {
			return nil, fmt.Errorf("either a signing key, a JWKS URL or an issuer is required")
		}
		discovered, err := DiscoverJWKSURL(ctx, client, cfg.Issuer)
		if err != nil {
			return nil, err
		}
		jwksURL = discovered
	}
	cache := NewJWKSCache(jwksURL, defaultJWKSCacheTTL, client)
	return jwtMiddleware(cfg, []string{"RS256"}, cache.KeyFunc), nil
}

func jwtMiddleware(cfg JWTConfig, methods []string, keyFunc func(context.Context) jwt.Keyfunc) echo.MiddlewareFunc {
	opts := []jwt.ParserOption{jwt.WithValidMethods(methods)}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}
			scheme, raw, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(raw) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			ctx := c.Request().Context()
			claims := &Claims{}
			token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, keyFunc(ctx), opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			p := &Principal{Subject: claims.Subject, Email: claims.Email, Roles: claims.Roles}
			c.SetRequest(c.Request().WithContext(WithPrincipal(ctx, p)))
			return next(c)
		}
	}
}

// DevAuthMiddleware lets every request through as a fixed development user.
func DevAuthMiddleware() echo.MiddlewareFunc {
	dev := &Principal{Subject: "dev-user", Roles: []string{"admin"}}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.SetRequest(c.Request().WithContext(WithPrincipal(c.Request().Context(), dev)))
			return next(c)
		}
	}
}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// PrincipalFromContext returns the caller, or nil when unauthenticated.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(contextKey{}).(*Principal)
	return p
}
