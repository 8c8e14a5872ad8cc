// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package cookie writes and clears the two session cookies.

Both cookies are HTTP-only on path "/" with SameSite=None, so the web app on a
different origin can send them with credentialed requests. Secure is forced on
outside development because browsers drop SameSite=None cookies without it.
*/
package cookie

import (
	"net/http"
	"time"

	"github.com/taibuivan/authkeeper/internal/platform/constants"
)

// Jar holds the cookie policy shared by every handler that touches sessions.
type Jar struct {
	secure        bool
	refreshMaxAge time.Duration
}

// NewJar creates a cookie policy. refreshMaxAge is the refresh cookie lifetime.
func NewJar(secure bool, refreshMaxAge time.Duration) *Jar {
	return &Jar{secure: secure, refreshMaxAge: refreshMaxAge}
}

// SetSession writes both the access and refresh cookies.
func (jar *Jar) SetSession(writer http.ResponseWriter, accessToken, refreshToken string) {
	jar.SetAccess(writer, accessToken)
	http.SetCookie(writer, jar.build(constants.RefreshTokenCookieName, refreshToken, jar.refreshMaxAge))
}

// SetAccess writes only the access cookie, used when a refresh token minted a
// new access token mid-request.
func (jar *Jar) SetAccess(writer http.ResponseWriter, accessToken string) {
	http.SetCookie(writer, jar.build(constants.AccessTokenCookieName, accessToken, constants.AccessTokenCookieMaxAge))
}

// Clear expires both cookies on the client.
func (jar *Jar) Clear(writer http.ResponseWriter) {
	for _, name := range []string{constants.AccessTokenCookieName, constants.RefreshTokenCookieName} {
		expired := jar.build(name, "", 0)
		expired.MaxAge = -1
		expired.Expires = time.Unix(0, 0)
		http.SetCookie(writer, expired)
	}
}

func (jar *Jar) build(name, value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     constants.TokenCookiePath,
		MaxAge:   int(maxAge / time.Second),
		Expires:  time.Now().Add(maxAge),
		Secure:   jar.secure,
		HttpOnly: true,
		SameSite: http.SameSiteNoneMode,
	}
}
