// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package constants provides centralized, immutable values for the entire platform.

It defines default timeouts, cookie names, and cross-cutting keys that are shared
between different layers of the system.

Categories:

  - Server Timing: Read/Write/Idle timeouts for the HTTP server.
  - Security: JWT issuers and cookie configuration.
  - Account Lifecycle: Reset token lifetime and cleanup lock keys.

Using this package ensures Magic Strings and Magic Numbers are eliminated
from the business logic.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "authkeeper-api"
	AppVersion = "0.1.0-dev"
)

// # Server Timing

const (
	// DefaultReadTimeout is the maximum duration for reading the entire request.
	// Photo uploads are multipart bodies, so this is longer than a JSON-only API needs.
	DefaultReadTimeout = 30 * time.Second

	// DefaultWriteTimeout is the maximum duration before timing out writes of the response.
	DefaultWriteTimeout = 30 * time.Second

	// DefaultIdleTimeout is the maximum amount of time to wait for the next request.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultReadHeaderTimeout is the amount of time allowed to read request headers.
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the deadline for the entire request lifecycle.
	GlobalRequestTimeout = 30 * time.Second

	// ShutdownTimeout is how long we wait for in-flight requests to complete during shutdown.
	ShutdownTimeout = 30 * time.Second
)

// # Authentication

const (
	// AuthIssuer is the standard 'iss' claim in JWTs.
	AuthIssuer = "authkeeper.app"

	// AccessTokenCookieName is the cookie carrying the short-lived access token.
	AccessTokenCookieName = "authAccessToken"

	// RefreshTokenCookieName is the cookie carrying the long-lived refresh token.
	RefreshTokenCookieName = "authRefreshToken"

	// TokenCookiePath is the path both session cookies are scoped to.
	TokenCookiePath = "/"

	// AccessTokenCookieMaxAge mirrors the access token lifetime on the client.
	AccessTokenCookieMaxAge = 15 * time.Minute
)

// # Account Lifecycle

const (
	// ResetTokenTTL is how long a password reset link stays usable.
	ResetTokenTTL = 10 * time.Minute

	// ResetTokenBytes is the entropy of a password reset token before hex encoding.
	ResetTokenBytes = 32

	// PhotoKeyBytes is the entropy of a stored photo object key before hex encoding.
	PhotoKeyBytes = 32

	// PhotoFormField is the multipart field carrying an uploaded profile photo.
	PhotoFormField = "photo"
)

// # JSON Field Identifiers

const (
	FieldUser    = "user"
	FieldMessage = "message"
	FieldStatus  = "status"
	FieldApp     = "app"
	FieldVersion = "version"
	FieldChecks  = "checks"
)

// # Response Status Values

const (
	StatusSuccess = "success"
	StatusFail    = "fail"
	StatusError   = "error"
)

// # Redis Keys

const (
	// RedisKeyCleanupLock guards the unverified-account sweep across replicas.
	RedisKeyCleanupLock = "authkeeper:lock:cleanup_unverified"
)

// # HTTP Headers

const (
	HeaderXRequestID    = "X-Request-ID"
	HeaderXRealIP       = "X-Real-IP"
	HeaderXForwardedFor = "X-Forwarded-For"
	HeaderOrigin        = "Origin"
)
