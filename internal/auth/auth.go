// Package auth resolves the caller's account from request credentials.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/idtoken"

	"saldo/internal/cache"
	"saldo/internal/core"
	"saldo/internal/log"
)

// Identity is a verified caller.
type Identity struct {
	AccountID string
	Email     string
	Provider  string
}

// Verifier authenticates a request. Failures wrap core.ErrUnauthorized and
// a returned Identity always has a non-empty AccountID.
type Verifier interface {
	Verify(ctx context.Context, r *http.Request) (Identity, error)
}

func unauthorized(reason string) error {
	return fmt.Errorf("%s: %w", reason, core.ErrUnauthorized)
}

// bearerToken returns the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// ValidateFunc matches idtoken.Validate.
type ValidateFunc func(ctx context.Context, token, audience string) (*idtoken.Payload, error)

// GoogleVerifier accepts Google ID tokens issued for ClientID.
type GoogleVerifier struct {
	clientID string
	validate ValidateFunc
	cache    *cache.LRUCache[Identity]
	now      func() time.Time
}

const identityCacheSize = 1024

// NewGoogleVerifier validates tokens with idtoken.Validate unless validate
// is given. Verified tokens are cached until they expire.
func NewGoogleVerifier(clientID string, validate ValidateFunc) *GoogleVerifier {
	if validate == nil {
		validate = idtoken.Validate
	}
	return &GoogleVerifier{
		clientID: clientID,
		validate: validate,
		cache:    cache.NewLRUCache[Identity](identityCacheSize, time.Hour),
		now:      time.Now,
	}
}

// Cache exposes the identity cache so it can be registered for cleanup.
func (g *GoogleVerifier) Cache() *cache.LRUCache[Identity] { return g.cache }

func (g *GoogleVerifier) Verify(ctx context.Context, r *http.Request) (Identity, error) {
	token, ok := bearerToken(r)
	if !ok {
		return Identity{}, unauthorized("missing bearer token")
	}
	key := tokenKey(token)
	if id, ok := g.cache.Get(key); ok {
		return id, nil
	}

	payload, err := g.validate(ctx, token, g.clientID)
	if err != nil {
		return Identity{}, fmt.Errorf("validate id token: %v: %w", err, core.ErrUnauthorized)
	}
	if payload.Subject == "" {
		return Identity{}, unauthorized("id token has no subject")
	}
	id := Identity{AccountID: "google:" + payload.Subject, Provider: "google"}
	if email, ok := payload.Claims["email"].(string); ok {
		id.Email = email
	}
	if ttl := time.Unix(payload.Expires, 0).Sub(g.now()); ttl > 0 {
		g.cache.SetWithTTL(key, id, ttl)
	}
	return id, nil
}

// tokenKey avoids keeping raw credentials in memory longer than needed.
func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// StaticVerifier maps fixed bearer tokens to accounts.
type StaticVerifier struct {
	tokens map[string]string
}

// ParseStaticTokens reads comma separated "token=account" pairs.
func ParseStaticTokens(raw string) (*StaticVerifier, error) {
	v := &StaticVerifier{tokens: make(map[string]string)}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, account, ok := strings.Cut(pair, "=")
		token, account = strings.TrimSpace(token), strings.TrimSpace(account)
		if !ok || token == "" || account == "" {
			return nil, fmt.Errorf("invalid static token %q, want token=account", pair)
		}
		v.tokens[token] = account
	}
	return v, nil
}

func NewStaticVerifier(tokens map[string]string) *StaticVerifier {
	return &StaticVerifier{tokens: tokens}
}

func (s *StaticVerifier) Len() int { return len(s.tokens) }

func (s *StaticVerifier) Verify(_ context.Context, r *http.Request) (Identity, error) {
	token, ok := bearerToken(r)
	if !ok {
		return Identity{}, unauthorized("missing bearer token")
	}
	account, ok := s.tokens[token]
	if !ok {
		return Identity{}, unauthorized("unknown token")
	}
	return Identity{AccountID: account, Provider: "static"}, nil
}

// Chain tries each verifier in order and returns the first success.
type Chain []Verifier

func (c Chain) Verify(ctx context.Context, r *http.Request) (Identity, error) {
	var errs []error
	for _, v := range c {
		id, err := v.Verify(ctx, r)
		if err == nil {
			return id, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return Identity{}, unauthorized("no verifier configured")
	}
	return Identity{}, errors.Join(errs...)
}

type contextKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity set by Middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok && id.AccountID != ""
}

// AccountID returns the caller's account id, or "" when unauthenticated.
func AccountID(ctx context.Context) string {
	id, _ := FromContext(ctx)
	return id.AccountID
}

// AccountEnsurer creates accounts on first sight.
type AccountEnsurer interface {
	EnsureAccount(ctx context.Context, accountID, email string) (core.Account, error)
}

// Middleware verifies the caller, makes sure the account exists and stores
// the identity in the request context. onError writes the failure response.
func Middleware(v Verifier, accounts AccountEnsurer, onError func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			id, err := v.Verify(ctx, r)
			if err == nil && id.AccountID == "" {
				err = unauthorized("empty account id")
			}
			if err != nil {
				log.FromContext(ctx).WithComponent(log.ComponentAuth).DebugContext(ctx, "Authentication failed", log.FieldError, err.Error())
				onError(w, r, err)
				return
			}
			if _, err := accounts.EnsureAccount(ctx, id.AccountID, id.Email); err != nil {
				onError(w, r, err)
				return
			}
			logger := log.FromContext(ctx).With(log.FieldAccountID, id.AccountID)
			ctx = log.NewContext(WithIdentity(ctx, id), logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
