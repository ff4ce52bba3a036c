// Package identity resolves the calling principal for each request.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"

	gotrue "github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/supabase-go"
)

const (
	// UserHeaderName carries a trusted user id in header mode.
	UserHeaderName = "X-User-ID"
	// TokenQueryParam carries the access token for WebSocket upgrades,
	// where browsers cannot set headers.
	TokenQueryParam = "access_token"
)

type contextKey int

const (
	userIDKey contextKey = iota
)

// ErrInvalidToken is returned when a bearer token is rejected.
var ErrInvalidToken = errors.New("invalid access token")

var (
	uuidPattern   = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	userIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
)

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// WithUserID returns ctx carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// Authenticator resolves the user behind a request. It returns "" with a
// nil error when the request carries no credentials.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// HeaderAuthenticator trusts the X-User-ID header. Development only.
type HeaderAuthenticator struct{}

// Authenticate returns the sanitized X-User-ID header value.
func (HeaderAuthenticator) Authenticate(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(UserHeaderName))
	if id == "" {
		return "", nil
	}
	if !uuidPattern.MatchString(id) && !userIDPattern.MatchString(id) {
		return "", fmt.Errorf("malformed %s header", UserHeaderName)
	}
	return id, nil
}

// SupabaseAuthenticator verifies bearer tokens against Supabase Auth.
type SupabaseAuthenticator struct {
	auth gotrue.Client
}

// NewSupabaseAuthenticator creates an authenticator for the project at url.
func NewSupabaseAuthenticator(url, key string) (*SupabaseAuthenticator, error) {
	client, err := supabase.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &SupabaseAuthenticator{auth: client.Auth}, nil
}

// Authenticate resolves the bearer token to its user id.
func (a *SupabaseAuthenticator) Authenticate(r *http.Request) (string, error) {
	token := bearerToken(r)
	if token == "" {
		return "", nil
	}
	user, err := a.auth.WithToken(token).GetUser()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return user.ID.String(), nil
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get(TokenQueryParam)
}

// Middleware attaches the authenticated user ID to the request context.
// Requests without credentials pass through anonymously; requests with
// rejected credentials get 401.
func Middleware(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := auth.Authenticate(r)
			if err != nil {
				http.Error(w, `{"error":"authentication failed","kind":"unauthenticated"}`, http.StatusUnauthorized)
				return
			}
			if userID == "" {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// IPFromRequest returns a normalized remote IP.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
