package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/identity"
	"github.com/fjod/storefront/internal/notify"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// SessionCookie identifies the browser session that owns a cart.
	SessionCookie = "sid"
	// TokenCookie holds the identity session token for browser clients.
	TokenCookie = "token"

	sessionCookieMaxAge = 30 * 24 * 60 * 60
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	sessionIDKey
	userKey
	tokenKey
)

// RequestIDMiddleware adds a unique request ID to each request.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = "req-" + uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// SessionMiddleware issues the sid cookie on first contact.
func SessionMiddleware(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid := ""
			if c, err := r.Cookie(SessionCookie); err == nil && validSessionID(c.Value) {
				sid = c.Value
			} else {
				sid = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookie,
					Value:    sid,
					Path:     "/",
					MaxAge:   sessionCookieMaxAge,
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionIDKey, sid)))
		})
	}
}

func validSessionID(v string) bool {
	_, err := uuid.Parse(v)
	return err == nil
}

func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey).(string)
	return id
}

// NotificationsMiddleware gives each request its own notification collector.
func NotificationsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := notify.WithCollector(r.Context(), &notify.Collector{})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AuthMiddleware resolves the bearer token or token cookie into a user.
// A token in the query string is ignored.
// Requests with a missing or rejected token continue anonymously.
func AuthMiddleware(provider identity.Provider, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, err := provider.Resolve(r.Context(), token)
			if err != nil {
				log.Debug("session token rejected", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), userKey, user)
			ctx = context.WithValue(ctx, tokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// StripTokenQuery drops a token query parameter before the request reaches
// the access log. Credentials are never read from the URL.
func StripTokenQuery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if !q.Has(TokenCookie) {
			next.ServeHTTP(w, r)
			return
		}
		q.Del(TokenCookie)
		r = r.Clone(r.Context())
		r.URL.RawQuery = q.Encode()
		r.RequestURI = r.URL.RequestURI()
		next.ServeHTTP(w, r)
	})
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	// Browser websocket upgrades are same-origin and carry the cookie. Tokens
	// never travel in the URL, which ends up in access logs.
	if c, err := r.Cookie(TokenCookie); err == nil {
		return c.Value
	}
	return ""
}

// UserFromContext returns the signed-in user or nil.
func UserFromContext(ctx context.Context) *domain.User {
	u, _ := ctx.Value(userKey).(*domain.User)
	return u
}

func tokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey).(string)
	return t
}

// Gate lets the request through only if the identity gate renders for it.
// Anonymous requests get 401 pointing at the login page, signed-in users
// lacking the role get 403 pointing at the root.
func Gate(req identity.Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := UserFromContext(r.Context())
			d := identity.Decide(identity.SessionState{User: user}, req)
			if d.Outcome == identity.OutcomeRender {
				next.ServeHTTP(w, r)
				return
			}

			status, code, msg := http.StatusUnauthorized, "unauthorized", "sign in required"
			if user != nil {
				status, code, msg = http.StatusForbidden, "permission_denied", "admin access required"
			}
			w.Header().Set("Location", d.Redirect)
			respondJSON(w, r, status, ErrorResponse{Error: msg, Code: code, Redirect: d.Redirect})
		})
	}
}

// MaxBodySize caps request bodies at n bytes.
func MaxBodySize(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}
