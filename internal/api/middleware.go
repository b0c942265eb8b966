package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/time/rate"

	"github.com/homelab-00/transcription-suite/internal/tokenstore"
)

// publicRoutes never go through the authentication middleware, per §4.8.
var publicRoutes = []string{
	"/health",
	"/api/auth/login",
	"/auth",
	"/docs",
	"/openapi.json",
	"/redoc",
	"/favicon.ico",
}

func isPublicRoute(path string) bool {
	for _, p := range publicRoutes {
		if path == p || (p != "/" && strings.HasPrefix(path, p+"/")) {
			return true
		}
	}
	return false
}

func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			b := make([]byte, 8)
			rand.Read(b)
			id = hex.EncodeToString(b)
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func Logger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		h := hlog.NewHandler(log)
		accessLog := hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
			hlog.FromRequest(r).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("size", size).
				Dur("duration_ms", dur).
				Msg("request")
		})
		return h(accessLog(next))
	}
}

func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rv := recover(); rv != nil {
				hlog.FromRequest(r).Error().Interface("panic", rv).Msg("recovered from panic")
				WriteError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// RateLimiter returns middleware that applies per-IP rate limiting.
func RateLimiter(rps float64, burst int) func(http.Handler) http.Handler {
	var mu sync.Mutex
	limiters := make(map[string]*rate.Limiter)

	getLimiter := func(ip string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		if lim, ok := limiters[ip]; ok {
			return lim
		}
		lim := rate.NewLimiter(rate.Limit(rps), burst)
		limiters[ip] = lim
		return lim
	}

	go func() {
		for {
			time.Sleep(5 * time.Minute)
			mu.Lock()
			limiters = make(map[string]*rate.Limiter)
			mu.Unlock()
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !getLimiter(ip).Allow() {
				w.Header().Set("Retry-After", "1")
				WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ResponseTimeout wraps non-streaming handlers with a write deadline. The
// notebook audio range endpoint and the LLM SSE stream are excluded since
// they legitimately run long.
func ResponseTimeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/audio") || strings.HasSuffix(r.URL.Path, "/stream") {
				next.ServeHTTP(w, r)
				return
			}
			h := http.TimeoutHandler(next, timeout, `{"detail":"request timeout"}`)
			h.ServeHTTP(w, r)
		})
	}
}

// MaxBodySize limits request body size.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip, _, ok := strings.Cut(xff, ","); ok {
			return strings.TrimSpace(ip)
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// OriginCheck enforces §4.8's origin policy: under TLS, only same-host
// Origin headers are accepted (protects against a stolen-token CSRF-style
// replay from a foreign page); without TLS the service is assumed to be
// accessed only from localhost, so only loopback Origins are accepted. A
// request with no Origin header at all (curl, server-to-server, same-origin
// navigations some browsers omit it for) is always allowed through — the
// check only rejects an Origin that's present and wrong.
func OriginCheck(tlsEnabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			u, err := url.Parse(origin)
			if err != nil {
				WriteError(w, http.StatusForbidden, "invalid Origin header")
				return
			}

			var ok bool
			if tlsEnabled {
				ok = u.Hostname() == r.Host || u.Host == r.Host
			} else {
				ok = isLoopbackHost(u.Hostname())
			}
			if !ok {
				WriteError(w, http.StatusForbidden, "origin not allowed")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isLoopbackHost(h string) bool {
	if h == "localhost" {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}

type identityCtxKey struct{}

// IdentityFromContext returns the authenticated client's identity, set by
// Authenticate or AuthenticateWS. Both are only installed when TLS is
// enabled, so in local mode the identity is absent and ok is false.
func IdentityFromContext(ctx context.Context) (tokenstore.Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(tokenstore.Identity)
	return id, ok
}

// assetTokenParam is the query parameter name notebook asset routes (audio
// streaming, export downloads) accept a token through, since an <audio> tag
// or a direct download link can't set an Authorization header.
const assetTokenParam = "token"

// notebookAssetPrefixes lists the routes assetTokenParam is honored on. This
// is intentionally narrow: the query-param path exists only so HTML media
// elements and download links work, not as a general auth bypass.
var notebookAssetPrefixes = []string{
	"/api/notebook/recordings/",
}

func isNotebookAssetRoute(path string) bool {
	for _, p := range notebookAssetPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Authenticate resolves the request's bearer token — from the Authorization
// header, the auth_token cookie, or (narrowly, for notebook asset routes)
// the ?token= query parameter — against store, and rejects unauthenticated
// requests. API and WebSocket routes get a 401 JSON body; anything else
// (the served SPA) gets a 302 to /auth preserving the original path and
// query so the client lands back where it was after logging in.
func Authenticate(store *tokenstore.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicRoute(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token := extractToken(r)
			identity, ok := store.Validate(token)
			if !ok {
				redirectToAuth(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), identityCtxKey{}, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if c, err := r.Cookie("auth_token"); err == nil && c.Value != "" {
		return c.Value
	}
	if isNotebookAssetRoute(r.URL.Path) {
		if t := r.URL.Query().Get(assetTokenParam); t != "" {
			return t
		}
	}
	return ""
}

func redirectToAuth(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") || strings.HasPrefix(r.URL.Path, "/ws") {
		WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	dest := "/auth?next=" + url.QueryEscape(r.URL.RequestURI())
	http.Redirect(w, r, dest, http.StatusFound)
}

// RequireAdmin rejects requests from a non-admin identity. Must run after
// Authenticate.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok || !identity.IsAdmin {
			WriteError(w, http.StatusForbidden, "admin privileges required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AuthenticateWS performs the WebSocket variant of Authenticate: the
// upgrade request itself may carry the token as a query parameter (browsers
// cannot set custom headers during the WS handshake), so /ws and /ws/live
// accept it there in addition to the Authorization header and cookie.
func AuthenticateWS(store *tokenstore.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				token = r.URL.Query().Get(assetTokenParam)
			}
			identity, ok := store.Validate(token)
			if !ok {
				WriteError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			ctx := context.WithValue(r.Context(), identityCtxKey{}, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
