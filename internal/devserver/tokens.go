package devserver

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"

	issuer = "katha-devserver"
)

// Claims carries the identity fields the client decodes for display.
type Claims struct {
	UserID    int    `json:"user_id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	TokenType string `json:"token_type"`
	Gen       int64  `json:"gen"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates HS256 access and refresh tokens.
// Access tokens minted before the last ExpireAccessTokens call are rejected.
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	gen        atomic.Int64
	now        func() time.Time
}

func NewTokenIssuer(secret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Pair mints a fresh access and refresh token for the account.
func (ti *TokenIssuer) Pair(acc Account) (access, refresh string, err error) {
	if access, err = ti.sign(acc, tokenAccess, ti.accessTTL); err != nil {
		return "", "", err
	}
	if refresh, err = ti.sign(acc, tokenRefresh, ti.refreshTTL); err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (ti *TokenIssuer) sign(acc Account, kind string, ttl time.Duration) (string, error) {
	now := ti.now()
	claims := &Claims{
		UserID:    acc.ID,
		Username:  acc.Username,
		Email:     acc.Email,
		TokenType: kind,
		Gen:       ti.gen.Load(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Second)),
			Issuer:    issuer,
			Subject:   fmt.Sprint(acc.ID),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(ti.secret)
}

// Validate parses tokenString and checks it is a live token of the wanted kind.
func (ti *TokenIssuer) Validate(tokenString, kind string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return ti.secret, nil
		},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.TokenType != kind {
		return nil, fmt.Errorf("token has wrong type %q", claims.TokenType)
	}
	if kind == tokenAccess && claims.Gen < ti.gen.Load() {
		return nil, errors.New("token expired")
	}
	return claims, nil
}

// ExpireAccessTokens invalidates every access token issued so far. Refresh
// tokens stay valid, so clients recover through token/refresh/.
func (ti *TokenIssuer) ExpireAccessTokens() {
	ti.gen.Add(1)
}
