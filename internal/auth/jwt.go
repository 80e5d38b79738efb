package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/nfrund/hackchat/internal/domain"
)

// Claims are the JWT claims issued by the auth service.
type Claims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// JWTProvider verifies HS256 bearer tokens. Browsers cannot set headers on
// a websocket upgrade, so the token is also accepted as the "token" query
// parameter.
type JWTProvider struct {
	secret []byte
}

func NewJWTProvider(secret string) *JWTProvider {
	return &JWTProvider{secret: []byte(secret)}
}

func (p *JWTProvider) Identify(c echo.Context) (domain.Identity, error) {
	raw := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	if raw == "" {
		raw = c.QueryParam("token")
	}
	if raw == "" {
		return domain.Identity{}, unauthenticated("missing token")
	}
	claims, err := p.Validate(raw)
	if err != nil {
		return domain.Identity{}, unauthenticated("invalid token")
	}
	return domain.Identity{UserID: claims.UserID, DisplayName: claims.Name, Email: claims.Email}, nil
}

// Validate parses and verifies a token.
func (p *JWTProvider) Validate(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Issue signs a token for id that expires after ttl.
func (p *JWTProvider) Issue(id domain.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: id.UserID,
		Name:   id.DisplayName,
		Email:  id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
