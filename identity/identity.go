// Package identity describes who is calling an order operation.
//
// Callers arrive either with a signed JWT (customers, restaurant owners and
// riders) or without one, in which case they are internal trusted services
// such as the dispatch coordinator.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Kind string

const (
	KindCustomer        Kind = "CUSTOMER"
	KindRestaurantOwner Kind = "RESTAURANT_OWNER"
	KindRider           Kind = "RIDER"
	KindInternal        Kind = "INTERNAL_TRUSTED"
)

// Caller is the explicit identity handed to the transition guard. UserID
// and Role are zero for internal callers.
type Caller struct {
	Kind   Kind
	UserID int64
	Role   string
}

func Internal() Caller {
	return Caller{Kind: KindInternal}
}

func Customer(userID int64) Caller {
	return Caller{Kind: KindCustomer, UserID: userID, Role: "ROLE_CUSTOMER"}
}

func RestaurantOwner(userID int64) Caller {
	return Caller{Kind: KindRestaurantOwner, UserID: userID, Role: "ROLE_RESTAURANT_OWNER"}
}

func Rider(userID int64) Caller {
	return Caller{Kind: KindRider, UserID: userID, Role: "ROLE_RIDER"}
}

func (c Caller) IsInternal() bool { return c.Kind == KindInternal }

var ErrInvalidToken = errors.New("invalid token")

// Claims mirrors the token issued by the auth service.
type Claims struct {
	UserID int64  `json:"userId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// KindForRole accepts roles with or without the ROLE_ prefix.
func KindForRole(role string) (Kind, bool) {
	switch Kind(strings.TrimPrefix(strings.ToUpper(role), "ROLE_")) {
	case KindCustomer:
		return KindCustomer, true
	case KindRestaurantOwner:
		return KindRestaurantOwner, true
	case KindRider:
		return KindRider, true
	}
	return "", false
}

// ParseToken verifies an HS256 token and returns the caller it describes.
func ParseToken(tokenString string, secret []byte) (Caller, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return Caller{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	kind, ok := KindForRole(claims.Role)
	if !ok {
		return Caller{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	if claims.UserID == 0 {
		return Caller{}, fmt.Errorf("%w: missing userId", ErrInvalidToken)
	}

	return Caller{Kind: kind, UserID: claims.UserID, Role: claims.Role}, nil
}

// NewToken signs a token for the given user. Used by local tooling and tests.
func NewToken(userID int64, role string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(secret)
}
