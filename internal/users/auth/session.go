// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"fmt"

	"github.com/taibuivan/authkeeper/internal/platform/apperr"
	"github.com/taibuivan/authkeeper/internal/platform/sec"
	"github.com/taibuivan/authkeeper/internal/users/account"
)

// # Session Resolution

// ResolutionKind tags how a request's credentials were resolved.
type ResolutionKind int

const (
	// Unauthorized means neither token produced a usable session.
	Unauthorized ResolutionKind = iota

	// ResolvedViaAccess means the access token alone was sufficient.
	ResolvedViaAccess

	// ResolvedViaRefresh means the refresh token was used and a new access
	// token was minted.
	ResolvedViaRefresh
)

// String implements fmt.Stringer for logging.
func (kind ResolutionKind) String() string {
	switch kind {
	case ResolvedViaAccess:
		return "access"
	case ResolvedViaRefresh:
		return "refresh"
	default:
		return "unauthorized"
	}
}

// Resolution is the outcome of [Service.ResolveSession].
type Resolution struct {
	Kind    ResolutionKind
	Account *account.Account

	// AccessToken is set only for ResolvedViaRefresh.
	AccessToken string

	// Reason explains an Unauthorized result. It is for logs, not clients.
	Reason string
}

// unauthorized builds a failed resolution.
func unauthorized(reason string) Resolution {
	return Resolution{Kind: Unauthorized, Reason: reason}
}

/*
ResolveSession decides who is calling from the two session tokens.

Description: A two-branch procedure. A valid access token whose account still
exists and whose password has not changed since issue resolves directly.
Otherwise a refresh token that verifies, matches the stored hash and predates
no password change resolves and mints a fresh access token.

Parameters:
  - context: context.Context
  - accessToken: string (may be empty)
  - refreshToken: string (may be empty)

Returns:
  - Resolution: Tagged result
  - error: Storage failures only; rejected credentials are an Unauthorized result
*/
func (service *Service) ResolveSession(context context.Context, accessToken, refreshToken string) (Resolution, error) {
	reason := "no session tokens"

	if accessToken != "" {
		resolved, err := service.resolveAccess(context, accessToken)
		if err != nil {
			return Resolution{}, err
		}
		if resolved.Kind == ResolvedViaAccess {
			return resolved, nil
		}
		reason = resolved.Reason
	}

	if refreshToken == "" {
		return unauthorized(reason), nil
	}

	found, rejected, err := service.resolveRefresh(context, refreshToken)
	if err != nil {
		return Resolution{}, err
	}
	if found == nil {
		return unauthorized(rejected), nil
	}

	minted, err := service.tokens.Issue(found.ID, sec.KindAccess)
	if err != nil {
		return Resolution{}, fmt.Errorf("auth_service_access_token_failed: %w", err)
	}

	return Resolution{Kind: ResolvedViaRefresh, Account: found, AccessToken: minted}, nil
}

/*
ResolveRefreshSession authorizes sensitive operations such as deletion.

Parameters:
  - context: context.Context
  - refreshToken: string

Returns:
  - *account.Account: The session account
  - error: Unauthorized, or storage failures
*/
func (service *Service) ResolveRefreshSession(context context.Context, refreshToken string) (*account.Account, error) {
	if refreshToken == "" {
		return nil, apperr.Unauthorized("Unauthorized")
	}

	found, _, err := service.resolveRefresh(context, refreshToken)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, apperr.Unauthorized("Unauthorized")
	}
	return found, nil
}

// resolveAccess runs the access-token branch.
func (service *Service) resolveAccess(context context.Context, token string) (Resolution, error) {
	claims, err := service.tokens.Verify(token, sec.KindAccess)
	if err != nil {
		return unauthorized("invalid access token"), nil
	}

	found, err := service.store.FindByID(context, claims.SubjectID)
	if err != nil {
		if apperr.HasCode(err, apperr.CodeNotFound) {
			return unauthorized("access token subject no longer exists"), nil
		}
		return Resolution{}, fmt.Errorf("auth_service_resolve_access_failed: %w", err)
	}

	if found.ChangedPasswordAfter(claims.IssuedAt) {
		return unauthorized("password changed after access token was issued"), nil
	}

	return Resolution{Kind: ResolvedViaAccess, Account: found}, nil
}

// resolveRefresh runs the refresh-token branch. A nil account with a reason
// means the token was rejected.
func (service *Service) resolveRefresh(context context.Context, token string) (*account.Account, string, error) {
	claims, err := service.tokens.Verify(token, sec.KindRefresh)
	if err != nil {
		return nil, "invalid refresh token", nil
	}

	found, err := service.store.FindByRefreshToken(context, claims.SubjectID, sec.HashToken(token))
	if err != nil {
		if apperr.HasCode(err, apperr.CodeNotFound) {
			return nil, "refresh token revoked or reused", nil
		}
		return nil, "", fmt.Errorf("auth_service_resolve_refresh_failed: %w", err)
	}

	if found.ChangedPasswordAfter(claims.IssuedAt) {
		return nil, "password changed after refresh token was issued", nil
	}

	// Secrets never leave the resolver.
	found.RefreshTokenHash = nil
	return found, "", nil
}
