// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package sec provides cryptographic primitives and token management.
//
// # Architecture
//
// This package isolates security-sensitive code (Hashing, JWT Signing) from
// the domain logic. It acts as an Infrastructure service injected into the
// session engine via small interfaces declared by the consumer.
package sec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenKind selects the lifetime policy of an issued token.
type TokenKind string

const (
	// KindAccess tokens authorize immediate requests and expire quickly.
	KindAccess TokenKind = "access"

	// KindRefresh tokens mint new access tokens and live for days.
	KindRefresh TokenKind = "refresh"
)

// ErrInvalidToken is returned for tampered, expired, malformed or mis-typed tokens.
var ErrInvalidToken = errors.New("auth: invalid token")

// SessionClaims is the payload embedded inside every token the service signs.
//
// Only the subject and issue time are meaningful to callers; the kind claim
// keeps a refresh token from being replayed as an access token. The registered
// iat claim only holds whole seconds, so the exact issue time travels as an
// integer microsecond count in iat_us.
type SessionClaims struct {
	jwt.RegisteredClaims

	Kind           TokenKind `json:"typ"`
	IssuedAtMicros int64     `json:"iat_us"`
}

// Claims is the verified view of a token handed back to callers.
type Claims struct {
	SubjectID string

	// IssuedAt has microsecond precision.
	IssuedAt time.Time
}

// TokenService handles generation and verification of JWT tokens using HS256.
type TokenService struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenService creates a new TokenService from a process-wide signing secret.
func NewTokenService(secret, issuer string, accessTTL, refreshTTL time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("auth: signing secret must not be empty")
	}

	return &TokenService{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// WithClock replaces the time source, which lets tests mint tokens in the past.
func (service *TokenService) WithClock(now func() time.Time) *TokenService {
	service.now = now
	return service
}

// Issue creates a signed token for the subject with the lifetime of kind.
func (service *TokenService) Issue(subjectID string, kind TokenKind) (string, error) {
	var timeToLive time.Duration
	switch kind {
	case KindAccess:
		timeToLive = service.accessTTL
	case KindRefresh:
		timeToLive = service.refreshTTL
	default:
		return "", fmt.Errorf("auth: unknown token kind %q", kind)
	}

	currentTime := service.now().UTC().Truncate(time.Microsecond)
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			Issuer:    service.issuer,
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(currentTime.Add(timeToLive)),
		},
		Kind:           kind,
		IssuedAtMicros: currentTime.UnixMicro(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(service.secret)
	if err != nil {
		return "", fmt.Errorf("auth: failed to sign token: %w", err)
	}

	return signedToken, nil
}

// Verify checks the signature, expiry and kind of a JWT string.
func (service *TokenService) Verify(tokenString string, kind TokenKind) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
		}
		return service.secret, nil
	},
		jwt.WithIssuer(service.issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(service.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.Kind != kind || claims.Subject == "" || claims.IssuedAt == nil || claims.IssuedAtMicros <= 0 {
		return nil, ErrInvalidToken
	}

	// iat_us must agree with the signed iat second.
	issuedAt := time.UnixMicro(claims.IssuedAtMicros).UTC()
	if issuedAt.Unix() != claims.IssuedAt.Unix() {
		return nil, ErrInvalidToken
	}

	return &Claims{SubjectID: claims.Subject, IssuedAt: issuedAt}, nil
}
