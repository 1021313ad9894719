// Package auth issues and validates the short-lived tokens that signaling
// channels attach to their connection URLs.
package auth

import (
	"errors"
	"time"

	"safespace/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims binds a channel token to one user in one room.
type Claims struct {
	UserID domain.UserID `json:"user_id"`
	RoomID domain.RoomID `json:"room_id"`
	jwt.RegisteredClaims
}

// TokenProvider issues HS256 channel tokens.
type TokenProvider struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenProvider(secret string, ttl time.Duration) *TokenProvider {
	return &TokenProvider{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// ChannelToken issues a token scoped to one user joining one room.
func (p *TokenProvider) ChannelToken(userID domain.UserID, roomID domain.RoomID) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		RoomID: roomID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.secret)
}

// ValidateToken parses and verifies a channel token.
func (p *TokenProvider) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return p.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}
