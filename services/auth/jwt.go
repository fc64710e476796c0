// Package auth issues the short-lived tokens that let popup and challenge
// frame pages post bridge messages for the session that opened them.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"worldpay-checkout/utils"
)

const (
	BridgeTokenDuration = 30 * time.Minute
	tokenTypeBridge     = "bridge"
	tokenIDLength       = 16
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrInvalidToken = errors.New("invalid token")
)

type Scope string

const (
	ScopeCheckout Scope = "checkout"
	ScopeAdmin    Scope = "admin"
)

type Claims struct {
	SessionID string `json:"sid"`
	Scope     Scope  `json:"scope"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

type JWTService struct {
	secretKey []byte
	issuer    string
	duration  time.Duration
}

func NewJWTService(secretKey, issuer string, duration time.Duration) *JWTService {
	if duration <= 0 {
		duration = BridgeTokenDuration
	}
	return &JWTService{
		secretKey: []byte(secretKey),
		issuer:    issuer,
		duration:  duration,
	}
}

// GenerateToken binds a session id to a bridge token.
func (j *JWTService) GenerateToken(sessionID string, scope Scope) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("session id is required")
	}
	now := time.Now()
	claims := Claims{
		SessionID: sessionID,
		Scope:     scope,
		TokenType: tokenTypeBridge,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        utils.GenerateRandomString(tokenIDLength),
			Subject:   sessionID,
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.duration)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secretKey)
}

// ValidateToken checks signature, expiry, issuer and token type.
func (j *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	}, jwt.WithIssuer(j.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.TokenType != tokenTypeBridge || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
