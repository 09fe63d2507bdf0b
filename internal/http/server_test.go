package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"saldo/internal/analytics"
	"saldo/internal/auth"
	"saldo/internal/core"
	"saldo/internal/ledger"
	"saldo/internal/log"
	"saldo/internal/storage/memory"
)

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, mutate func(*Options)) *Server {
	t.Helper()
	svc := ledger.New(memory.New(), ledger.Options{
		Logger:       log.Discard(),
		RetryBackoff: time.Microsecond,
		Now:          func() time.Time { return testNow },
	})
	opts := Options{
		Addr:              ":0",
		Ledger:            svc,
		Verifier:          auth.NewStaticVerifier(map[string]string{"tok-alice": "alice", "tok-bob": "bob"}),
		Logger:            log.Discard(),
		RequestsPerMinute: 1000,
		WritesPerMinute:   1000,
	}
	if mutate != nil {
		mutate(&opts)
	}
	srv, err := NewServer(opts)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func entryBody(kind, amount, desc, category string) string {
	return `{"type":"` + kind + `","amount":` + amount + `,"description":"` + desc +
		`","category":"` + category + `","paymentMethod":"Cash","date":"2024-06-10"}`
}

func balanceOf(t *testing.T, srv *Server, token string) int64 {
	t.Helper()
	rr := do(t, srv, http.MethodGet, "/api/balance/current", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("balance status=%d body=%s", rr.Code, rr.Body.String())
	}
	return decode[struct {
		Balance core.Money `json:"balance"`
	}](t, rr).Balance.Cents
}

func TestHealthAndReady(t *testing.T) {
	ready := errors.New("db down")
	srv := newTestServer(t, func(o *Options) {
		o.Ready = func(context.Context) error { return ready }
	})

	if rr := do(t, srv, http.MethodGet, "/healthz", "", ""); rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rr.Code, rr.Body.String())
	}
	if rr := do(t, srv, http.MethodGet, "/readyz", "", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with failing dependency = %d", rr.Code)
	}
	ready = nil
	if rr := do(t, srv, http.MethodGet, "/readyz", "", ""); rr.Code != http.StatusOK {
		t.Fatalf("readyz = %d", rr.Code)
	}
}

func TestMetrics(t *testing.T) {
	srv := newTestServer(t, func(o *Options) { o.WritesPerMinute = 1 })
	body := entryBody("credit", "1", "Tip", "Income")
	for i := 0; i < 3; i++ {
		do(t, srv, http.MethodPost, "/api/transactions", "tok-alice", body)
	}

	rr := do(t, srv, http.MethodGet, "/metrics", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	out := rr.Body.String()
	for _, want := range []string{
		"# TYPE http_requests_total counter\nhttp_requests_total 4\n",
		`rate_limit_hits_total{limiter="writes"} 2`,
		`rate_limit_hits_total{limiter="requests"} 0`,
		`active_rate_limit_clients{limiter="writes"} 1`,
		"suspicious_requests_total 0",
		"uptime_seconds ",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics missing %q:\n%s", want, out)
		}
	}

	st := srv.Stats()
	if st.Writes.TotalHits != 2 || st.Trace.TotalRequests != 4 {
		t.Errorf("stats = %+v", st)
	}
}

func TestAPIRequiresIdentity(t *testing.T) {
	srv := newTestServer(t, nil)

	for _, token := range []string{"", "wrong"} {
		rr := do(t, srv, http.MethodGet, "/api/balance/current", token, "")
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("token %q: status=%d", token, rr.Code)
		}
		if body := decode[ErrorBody](t, rr); body.Code != CodeUnauthorized {
			t.Fatalf("code = %q", body.Code)
		}
		if rr.Header().Get("WWW-Authenticate") == "" {
			t.Fatal("missing WWW-Authenticate")
		}
	}
}

func TestMiddlewareHeaders(t *testing.T) {
	srv := newTestServer(t, nil)
	rr := do(t, srv, http.MethodGet, "/healthz", "", "")
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not set")
	}
	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if rr := do(t, srv, "TRACE", "/healthz", "", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("TRACE status = %d", rr.Code)
	}
}

func TestEntryLifecycle(t *testing.T) {
	srv := newTestServer(t, nil)
	const tok = "tok-alice"

	if rr := do(t, srv, http.MethodPost, "/api/user/initial-balance", tok, `{"initialBalance":1000}`); rr.Code != http.StatusOK {
		t.Fatalf("initial balance status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr := do(t, srv, http.MethodPost, "/api/transactions", tok, entryBody("debit", `"150"`, "Groceries", "Food"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}
	created := decode[entryResponse](t, rr)
	if !created.OK || created.Transaction.BalanceAfter.Cents != 85000 {
		t.Fatalf("created = %+v", created)
	}
	id := created.Transaction.ID
	if loc := rr.Header().Get("Location"); loc != "/api/transactions/"+id {
		t.Errorf("Location = %q", loc)
	}
	if got := balanceOf(t, srv, tok); got != 85000 {
		t.Fatalf("balance after create = %d", got)
	}

	rr = do(t, srv, http.MethodPut, "/api/transactions/"+id, tok, entryBody("debit", "200", "Groceries", "Food"))
	if rr.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rr.Code, rr.Body.String())
	}
	if got := balanceOf(t, srv, tok); got != 80000 {
		t.Fatalf("balance after update = %d", got)
	}

	rr = do(t, srv, http.MethodGet, "/api/transactions/"+id, tok, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get status=%d", rr.Code)
	}
	if e := decode[core.Entry](t, rr); e.Amount.Cents != 20000 || e.Description != "Groceries" {
		t.Fatalf("entry = %+v", e)
	}

	rr = do(t, srv, http.MethodDelete, "/api/transactions/"+id, tok, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status=%d", rr.Code)
	}
	if got := balanceOf(t, srv, tok); got != 100000 {
		t.Fatalf("balance after delete = %d", got)
	}
	if rr := do(t, srv, http.MethodGet, "/api/transactions/"+id, tok, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("get deleted status=%d", rr.Code)
	}

	rr = do(t, srv, http.MethodGet, "/api/balance/verify", tok, "")
	if v := decode[ledger.Verification](t, rr); !v.Consistent {
		t.Fatalf("verify = %+v", v)
	}
}

func TestCreateValidation(t *testing.T) {
	srv := newTestServer(t, nil)

	rr := do(t, srv, http.MethodPost, "/api/transactions", "tok-alice",
		`{"type":"transfer","amount":"-1","description":"","category":"Food","paymentMethod":"Wire"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rr.Code)
	}
	body := decode[ErrorBody](t, rr)
	fields := map[string]bool{}
	for _, d := range body.Details {
		fields[d.Field] = true
	}
	for _, f := range []string{"type", "amount", "description", "paymentMethod", "date"} {
		if !fields[f] {
			t.Errorf("missing detail for %s in %+v", f, body.Details)
		}
	}

	rr = do(t, srv, http.MethodPost, "/api/transactions", "tok-alice", `not json`)
	if rr.Code != http.StatusBadRequest || decode[ErrorBody](t, rr).Code != CodeInvalidJSON {
		t.Fatalf("invalid json: %d %s", rr.Code, rr.Body.String())
	}
	if got := balanceOf(t, srv, "tok-alice"); got != 0 {
		t.Fatalf("rejected writes changed balance to %d", got)
	}
}

func TestCrossAccountIsolation(t *testing.T) {
	srv := newTestServer(t, nil)

	rr := do(t, srv, http.MethodPost, "/api/transactions", "tok-alice", entryBody("credit", "500", "Salary", "Income"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d", rr.Code)
	}
	id := decode[entryResponse](t, rr).Transaction.ID

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		if rr := do(t, srv, method, "/api/transactions/"+id, "tok-bob", ""); rr.Code != http.StatusNotFound {
			t.Errorf("bob %s status=%d", method, rr.Code)
		}
	}
	rr = do(t, srv, http.MethodPut, "/api/transactions/"+id, "tok-bob", entryBody("debit", "1", "x", "y"))
	if rr.Code != http.StatusNotFound {
		t.Errorf("bob PUT status=%d", rr.Code)
	}
	if got := balanceOf(t, srv, "tok-alice"); got != 50000 {
		t.Fatalf("alice balance = %d", got)
	}
	if got := balanceOf(t, srv, "tok-bob"); got != 0 {
		t.Fatalf("bob balance = %d", got)
	}
}

func TestListEntries(t *testing.T) {
	srv := newTestServer(t, nil)
	for _, amt := range []string{"10", "30", "20"} {
		if rr := do(t, srv, http.MethodPost, "/api/transactions", "tok-alice", entryBody("debit", amt, "Coffee", "Food")); rr.Code != http.StatusCreated {
			t.Fatalf("create status=%d", rr.Code)
		}
	}

	rr := do(t, srv, http.MethodGet, "/api/transactions?limit=2&sort=-amount", "tok-alice", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list status=%d body=%s", rr.Code, rr.Body.String())
	}
	page := decode[core.Page](t, rr)
	if page.Total != 3 || len(page.Items) != 2 || !page.HasMore {
		t.Fatalf("page = %+v", page)
	}
	if page.Items[0].Amount.Cents != 3000 || page.Items[1].Amount.Cents != 2000 {
		t.Fatalf("sort order = %v, %v", page.Items[0].Amount, page.Items[1].Amount)
	}

	for _, q := range []string{"type=bogus", "page=0", "sort=color", "from=yesterday"} {
		if rr := do(t, srv, http.MethodGet, "/api/transactions?"+q, "tok-alice", ""); rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status=%d", q, rr.Code)
		}
	}
}

func TestInitialBalanceOnlyOnce(t *testing.T) {
	srv := newTestServer(t, nil)
	if rr := do(t, srv, http.MethodPost, "/api/user/initial-balance", "tok-alice", `{"initialBalance":"250.50"}`); rr.Code != http.StatusOK {
		t.Fatalf("first status=%d", rr.Code)
	}
	rr := do(t, srv, http.MethodPost, "/api/user/initial-balance", "tok-alice", `{"initialBalance":10}`)
	if rr.Code != http.StatusBadRequest || decode[ErrorBody](t, rr).Code != CodeInitialBalanceSet {
		t.Fatalf("second: %d %s", rr.Code, rr.Body.String())
	}
	if rr := do(t, srv, http.MethodPost, "/api/user/initial-balance", "tok-bob", `{"initialBalance":-5}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("negative status=%d", rr.Code)
	}
	if got := balanceOf(t, srv, "tok-alice"); got != 25050 {
		t.Fatalf("balance = %d", got)
	}
}

func TestWriteRateLimit(t *testing.T) {
	srv := newTestServer(t, func(o *Options) { o.WritesPerMinute = 2 })
	body := entryBody("credit", "1", "Tip", "Income")

	for i := 0; i < 2; i++ {
		if rr := do(t, srv, http.MethodPost, "/api/transactions", "tok-alice", body); rr.Code != http.StatusCreated {
			t.Fatalf("write %d status=%d", i, rr.Code)
		}
	}
	rr := do(t, srv, http.MethodPost, "/api/transactions", "tok-alice", body)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("third write status=%d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if got := balanceOf(t, srv, "tok-alice"); got != 200 {
		t.Fatalf("limited write changed balance: %d", got)
	}
	if rr := do(t, srv, http.MethodPost, "/api/transactions", "tok-bob", body); rr.Code != http.StatusCreated {
		t.Fatalf("other account limited too: %d", rr.Code)
	}
}

func TestReportsEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)
	do(t, srv, http.MethodPost, "/api/transactions", "tok-alice", entryBody("credit", "1000", "Salary", "Income"))
	do(t, srv, http.MethodPost, "/api/transactions", "tok-alice", entryBody("debit", "250", "Rent", "Housing"))

	rr := do(t, srv, http.MethodGet, "/api/balance/history?range=7d", "tok-alice", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("history status=%d", rr.Code)
	}
	hist := decode[struct {
		Range string               `json:"range"`
		Items []analytics.DayPoint `json:"items"`
	}](t, rr)
	if hist.Range != "7d" || len(hist.Items) != 7 || hist.Items[6].Balance.Cents != 75000 {
		t.Fatalf("history = %+v", hist)
	}

	rr = do(t, srv, http.MethodGet, "/api/analytics/categories", "tok-alice", "")
	shares := decode[[]analytics.CategoryShare](t, rr)
	if len(shares) != 1 || shares[0].Category != "Housing" || shares[0].Percentage != 100 {
		t.Fatalf("categories = %+v", shares)
	}

	rr = do(t, srv, http.MethodGet, "/api/analytics/overview", "tok-alice", "")
	if ov := decode[analytics.OverviewReport](t, rr); ov.TransactionCount != 2 || ov.TopCategory != "Housing" {
		t.Fatalf("overview = %+v", ov)
	}

	rr = do(t, srv, http.MethodGet, "/api/analytics/monthly?months=3", "tok-alice", "")
	if months := decode[[]analytics.MonthPoint](t, rr); len(months) != 3 {
		t.Fatalf("monthly = %+v", months)
	}

	rr = do(t, srv, http.MethodGet, "/api/transactions/summary", "tok-alice", "")
	if sum := decode[ledger.SummaryView](t, rr); sum.TransactionCount != 2 || sum.Currency != core.DefaultCurrency {
		t.Fatalf("summary = %+v", sum)
	}

	for _, path := range []string{
		"/api/balance/history?range=1y",
		"/api/analytics/balance-trend?days=0",
		"/api/analytics/monthly?months=61",
		"/api/analytics/categories?type=both",
	} {
		if rr := do(t, srv, http.MethodGet, path, "tok-alice", ""); rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status=%d", path, rr.Code)
		}
	}
}

func TestProfile(t *testing.T) {
	srv := newTestServer(t, nil)

	rr := do(t, srv, http.MethodGet, "/api/user/profile", "tok-alice", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("profile status=%d", rr.Code)
	}
	p := decode[profileResponse](t, rr)
	if p.ID != "alice" || p.Provider != "static" || p.Preferences != core.DefaultPreferences() {
		t.Fatalf("profile = %+v", p)
	}

	rr = do(t, srv, http.MethodPut, "/api/user/profile", "tok-alice", `{"preferences":{"theme":"light","currency":"eur"}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rr.Code, rr.Body.String())
	}
	got := decode[struct {
		Preferences core.Preferences `json:"preferences"`
	}](t, rr).Preferences
	want := core.Preferences{Currency: "EUR", Theme: "light", Notifications: true}
	if got != want {
		t.Fatalf("preferences = %+v, want %+v", got, want)
	}

	if rr := do(t, srv, http.MethodPut, "/api/user/profile", "tok-alice", `{"preferences":{"currency":"ZZZ"}}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad currency status=%d", rr.Code)
	}
}

func TestReconcileEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	do(t, srv, http.MethodPost, "/api/transactions", "tok-alice", entryBody("credit", "5", "Gift", "Income"))

	rr := do(t, srv, http.MethodPost, "/api/balance/reconcile", "tok-alice", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("reconcile status=%d", rr.Code)
	}
	if res := decode[ledger.ReconcileResult](t, rr); res.Repaired || !res.Consistent {
		t.Fatalf("reconcile = %+v", res)
	}
}
