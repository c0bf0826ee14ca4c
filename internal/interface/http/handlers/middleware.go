package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// AdminKeyHeader carries the admin key on counter administration requests.
const AdminKeyHeader = "X-Admin-Key"

// AdminKeyAuth guards counter administration. Only a bcrypt hash of the key
// is configured.
type AdminKeyAuth struct {
	hash []byte
}

// NewAdminKeyAuth creates a guard for hash. An empty hash disables
// administration entirely.
func NewAdminKeyAuth(hash string) *AdminKeyAuth {
	return &AdminKeyAuth{hash: []byte(strings.TrimSpace(hash))}
}

// Enabled reports whether an admin key is configured.
func (a *AdminKeyAuth) Enabled() bool {
	return len(a.hash) > 0
}

// IsValid checks key against the configured hash.
func (a *AdminKeyAuth) IsValid(key string) bool {
	return a.Enabled() && key != "" &&
		bcrypt.CompareHashAndPassword(a.hash, []byte(key)) == nil
}

// Middleware rejects requests without a valid admin key. The key is read
// from X-Admin-Key, or from an Authorization bearer token.
func (a *AdminKeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			writeError(w, http.StatusForbidden, "admin_disabled", "Counter administration is disabled")
			return
		}
		key := presentedKey(r)
		if key == "" {
			writeError(w, http.StatusUnauthorized, "missing_admin_key", "Admin key is required")
			return
		}
		if !a.IsValid(key) {
			writeError(w, http.StatusUnauthorized, "invalid_admin_key", "Invalid admin key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func presentedKey(r *http.Request) string {
	if key := r.Header.Get(AdminKeyHeader); key != "" {
		return key
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

var (
	securityHeaders = [][2]string{
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"Referrer-Policy", "no-referrer"},
		{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	}
	// Counter values change with every issued identifier.
	noCacheHeaders = [][2]string{
		{"Cache-Control", "no-store"},
		{"Pragma", "no-cache"},
	}
)

func withHeaders(next http.Handler, headers [][2]string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, kv := range headers {
			w.Header().Set(kv[0], kv[1])
		}
		next.ServeHTTP(w, r)
	})
}

// SecurityHeadersMiddleware sets headers that keep browsers from sniffing,
// framing or leaking anything about API responses.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return withHeaders(next, securityHeaders)
}

// NoCacheMiddleware forbids caching of the response.
func NoCacheMiddleware(next http.Handler) http.Handler {
	return withHeaders(next, noCacheHeaders)
}

// RequestSizeLimitMiddleware rejects bodies larger than maxBytes. A declared
// length is rejected up front; an undeclared one fails when read.
func RequestSizeLimitMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

type errorBody struct {
	Success bool `json:"success"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
