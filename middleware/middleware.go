// Package middleware adapts the guard Engine to net/http: it extracts
// the session cookie and fingerprint attributes from requests and gates
// handlers behind session verification.
package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/botnev/guard"
)

// SessionCookieName is the host-locked session cookie. The __Host- prefix
// requires Secure, Path=/ and no Domain attribute, so the cookie cannot
// be planted by subdomains.
const SessionCookieName = "__Host-session_secure"

type identityContextKey struct{}

// IdentityFromContext returns the authenticated identity placed by
// RequireSession.
func IdentityFromContext(ctx context.Context) (string, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(string)
	return identity, ok
}

// SessionToken extracts the session token from the request: the session
// cookie first, then an Authorization Bearer header.
func SessionToken(r *http.Request) (string, bool) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	return bearerToken(r.Header.Get("Authorization"))
}

// WithRequest attaches the request's client IP, User-Agent, and
// Accept-Language to ctx so the Engine can derive the device fingerprint
// and apply per-IP limits.
func WithRequest(ctx context.Context, r *http.Request) context.Context {
	ctx = guard.WithClientIP(ctx, clientIP(r))
	ctx = guard.WithUserAgent(ctx, r.Header.Get("User-Agent"))
	ctx = guard.WithAcceptLanguage(ctx, r.Header.Get("Accept-Language"))
	return ctx
}

// SetSessionCookie writes the session cookie for a completed login.
func SetSessionCookie(w http.ResponseWriter, result *guard.LoginResult) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    result.Token,
		Path:     "/",
		Expires:  result.ExpiresAt,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearSessionCookie expires the session cookie after logout.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// RequireSession verifies the request's session token and stores the
// identity in the request context. Requests without a live session get a
// 401 without reaching the wrapped handler.
func RequireSession(engine *guard.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := SessionToken(r)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := WithRequest(r.Context(), r)
			identity, err := engine.VerifySession(ctx, token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx = context.WithValue(ctx, identityContextKey{}, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// connection's remote address.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
