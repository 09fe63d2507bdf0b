package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"google.golang.org/api/idtoken"

	"saldo/internal/core"
)

func request(authz string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/balance/current", nil)
	if authz != "" {
		r.Header.Set("Authorization", authz)
	}
	return r
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer  abc ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"Bearer   ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := bearerToken(request(tt.header))
		if got != tt.want || ok != tt.ok {
			t.Errorf("bearerToken(%q) = %q, %v", tt.header, got, ok)
		}
	}
}

func TestGoogleVerifierCachesUntilExpiry(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	calls := 0
	validate := func(ctx context.Context, token, audience string) (*idtoken.Payload, error) {
		calls++
		if audience != "client-1" {
			t.Fatalf("audience = %q", audience)
		}
		if token != "good" {
			return nil, errors.New("bad signature")
		}
		return &idtoken.Payload{
			Subject: "1234",
			Expires: now.Add(time.Hour).Unix(),
			Claims:  map[string]interface{}{"email": "a@example.com"},
		}, nil
	}
	g := NewGoogleVerifier("client-1", validate)
	g.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		id, err := g.Verify(context.Background(), request("Bearer good"))
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if id.AccountID != "google:1234" || id.Email != "a@example.com" {
			t.Fatalf("identity = %+v", id)
		}
	}
	if calls != 1 {
		t.Fatalf("validate called %d times, want 1", calls)
	}

	if _, err := g.Verify(context.Background(), request("Bearer forged")); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("forged token: %v", err)
	}
	if _, err := g.Verify(context.Background(), request("")); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("missing token: %v", err)
	}
}

func TestGoogleVerifierRejectsEmptySubject(t *testing.T) {
	g := NewGoogleVerifier("c", func(context.Context, string, string) (*idtoken.Payload, error) {
		return &idtoken.Payload{}, nil
	})
	if _, err := g.Verify(context.Background(), request("Bearer x")); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestParseStaticTokens(t *testing.T) {
	v, err := ParseStaticTokens(" dev=alice , ci=bob,")
	if err != nil {
		t.Fatal(err)
	}
	if v.Len() != 2 {
		t.Fatalf("Len = %d", v.Len())
	}
	id, err := v.Verify(context.Background(), request("Bearer ci"))
	if err != nil || id.AccountID != "bob" {
		t.Fatalf("Verify = %+v, %v", id, err)
	}
	if _, err := v.Verify(context.Background(), request("Bearer nope")); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("unknown token: %v", err)
	}

	for _, bad := range []string{"novalue", "=acct", "tok="} {
		if _, err := ParseStaticTokens(bad); err == nil {
			t.Errorf("ParseStaticTokens(%q) should fail", bad)
		}
	}
}

func TestChain(t *testing.T) {
	c := Chain{NewStaticVerifier(map[string]string{"a": "acct-a"}), NewStaticVerifier(map[string]string{"b": "acct-b"})}
	id, err := c.Verify(context.Background(), request("Bearer b"))
	if err != nil || id.AccountID != "acct-b" {
		t.Fatalf("Verify = %+v, %v", id, err)
	}
	if _, err := c.Verify(context.Background(), request("Bearer c")); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := (Chain{}).Verify(context.Background(), request("Bearer a")); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("empty chain: %v", err)
	}
}

type recordingEnsurer struct {
	ids []string
	err error
}

func (r *recordingEnsurer) EnsureAccount(_ context.Context, id, _ string) (core.Account, error) {
	r.ids = append(r.ids, id)
	return core.Account{ID: id}, r.err
}

type emptyVerifier struct{}

func (emptyVerifier) Verify(context.Context, *http.Request) (Identity, error) { return Identity{}, nil }

func TestMiddleware(t *testing.T) {
	var gotErr error
	onError := func(w http.ResponseWriter, r *http.Request, err error) {
		gotErr = err
		w.WriteHeader(http.StatusUnauthorized)
	}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Account", AccountID(r.Context()))
	})

	ensurer := &recordingEnsurer{}
	h := Middleware(NewStaticVerifier(map[string]string{"t": "acct-1"}), ensurer, onError)(next)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, request("Bearer t"))
	if rec.Header().Get("X-Account") != "acct-1" {
		t.Fatalf("account in context = %q", rec.Header().Get("X-Account"))
	}
	if len(ensurer.ids) != 1 || ensurer.ids[0] != "acct-1" {
		t.Fatalf("EnsureAccount calls = %v", ensurer.ids)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, request("Bearer wrong"))
	if rec.Code != http.StatusUnauthorized || !errors.Is(gotErr, core.ErrUnauthorized) {
		t.Fatalf("status %d, err %v", rec.Code, gotErr)
	}

	gotErr = nil
	rec = httptest.NewRecorder()
	Middleware(emptyVerifier{}, ensurer, onError)(next).ServeHTTP(rec, request("Bearer t"))
	if !errors.Is(gotErr, core.ErrUnauthorized) {
		t.Fatalf("empty account id should be unauthorized, got %v", gotErr)
	}
	if len(ensurer.ids) != 1 {
		t.Fatal("EnsureAccount must not run for rejected identities")
	}
}
