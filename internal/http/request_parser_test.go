package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"saldo/internal/core"
)

func TestFlexAmount(t *testing.T) {
	tests := []struct {
		input string
		want  FlexAmount
	}{
		{`12.5`, "12.5"},
		{`"12,50"`, "12,50"},
		{`100`, "100"},
		{`null`, ""},
	}
	for _, tt := range tests {
		var got FlexAmount
		if err := json.Unmarshal([]byte(tt.input), &got); err != nil {
			t.Errorf("Unmarshal(%s): %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Unmarshal(%s) = %q, want %q", tt.input, got, tt.want)
		}
	}
	var bad FlexAmount
	if err := json.Unmarshal([]byte(`true`), &bad); err == nil {
		t.Error("expected error for boolean amount")
	}
}

func TestEntryRequestInput(t *testing.T) {
	req := EntryRequest{
		Type:          "DEBIT",
		Amount:        "12,345",
		Description:   "  Lunch\x00 ",
		Category:      "Food",
		PaymentMethod: "card",
		Date:          "2024-06-10",
		Metadata:      &core.Metadata{Notes: " with team "},
	}
	in, err := req.Input()
	if err != nil {
		t.Fatalf("Input: %v", err)
	}
	if in.Kind != core.Debit || in.Amount.Cents != 1235 || in.PaymentMethod != core.PaymentCard {
		t.Errorf("input = %+v", in)
	}
	if in.Description != "Lunch" {
		t.Errorf("Description = %q", in.Description)
	}
	if in.Metadata.Notes != "with team" {
		t.Errorf("Notes = %q", in.Metadata.Notes)
	}
	if !in.Date.Equal(time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Date = %v", in.Date)
	}
}

func TestEntryRequestInputCollectsAllFields(t *testing.T) {
	_, err := EntryRequest{Amount: "abc", Description: strings.Repeat("x", 201)}.Input()
	var verr *core.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, f := range []string{"type", "amount", "description", "category", "paymentMethod", "date"} {
		if !verr.Has(f) {
			t.Errorf("missing field %s in %v", f, verr)
		}
	}
	if len(verr.Fields) != 6 {
		t.Errorf("fields reported more than once: %+v", verr.Fields)
	}
}

func TestParseListQuery(t *testing.T) {
	tests := []struct {
		name    string
		query   url.Values
		wantErr []string
		check   func(t *testing.T, q core.ListQuery)
	}{
		{
			name:  "defaults",
			query: url.Values{},
			check: func(t *testing.T, q core.ListQuery) {
				if q.Page != 1 || q.PageSize != core.DefaultPageSize || q.Sort != core.DefaultSort {
					t.Errorf("q = %+v", q)
				}
			},
		},
		{
			name:  "limit clamped",
			query: url.Values{"limit": {"500"}},
			check: func(t *testing.T, q core.ListQuery) {
				if q.PageSize != core.MaxPageSize {
					t.Errorf("PageSize = %d", q.PageSize)
				}
			},
		},
		{
			name: "all filters",
			query: url.Values{
				"page": {"3"}, "type": {"credit"}, "category": {" Food "}, "q": {"rent"},
				"from": {"2024-01-01"}, "to": {"2024-02-01"}, "sort": {"amount"},
			},
			check: func(t *testing.T, q core.ListQuery) {
				if q.Page != 3 || q.Kind != core.Credit || q.Category != "Food" || q.Text != "rent" {
					t.Errorf("q = %+v", q)
				}
				if q.From.Month() != time.January || q.To.Month() != time.February {
					t.Errorf("range = %v..%v", q.From, q.To)
				}
				if q.Sort != (core.Sort{Field: core.SortAmount}) {
					t.Errorf("Sort = %+v", q.Sort)
				}
			},
		},
		{
			name:    "bad values",
			query:   url.Values{"page": {"x"}, "limit": {"0"}, "type": {"both"}, "sort": {"-color"}},
			wantErr: []string{"page", "limit", "type", "sort"},
		},
		{
			name:    "inverted range",
			query:   url.Values{"from": {"2024-02-01"}, "to": {"2024-01-01"}},
			wantErr: []string{"to"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := ParseListQuery(tt.query)
			if len(tt.wantErr) > 0 {
				var verr *core.ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("expected ValidationError, got %v", err)
				}
				for _, f := range tt.wantErr {
					if !verr.Has(f) {
						t.Errorf("missing field %s in %v", f, verr)
					}
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseListQuery: %v", err)
			}
			tt.check(t, q)
		})
	}
}

func TestParseHistoryRange(t *testing.T) {
	for in, want := range map[string]int{"": 30, "7d": 7, "30d": 30, "90d": 90} {
		_, days, err := ParseHistoryRange(url.Values{"range": {in}})
		if err != nil || days != want {
			t.Errorf("range %q = %d, %v", in, days, err)
		}
	}
	if _, _, err := ParseHistoryRange(url.Values{"range": {"365d"}}); !errors.Is(err, core.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestParseIntParam(t *testing.T) {
	q := url.Values{"days": {"45"}, "bad": {"x"}, "big": {"400"}}
	if n, err := ParseIntParam(q, "days", 30, 1, 366); err != nil || n != 45 {
		t.Errorf("days = %d, %v", n, err)
	}
	if n, err := ParseIntParam(q, "missing", 30, 1, 366); err != nil || n != 30 {
		t.Errorf("missing = %d, %v", n, err)
	}
	if _, err := ParseIntParam(q, "bad", 30, 1, 366); err == nil {
		t.Error("expected error for non-integer")
	}
	if _, err := ParseIntParam(q, "big", 30, 1, 366); err == nil {
		t.Error("expected error above max")
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"object", `{"initialBalance": 5}`, false},
		{"empty", ``, true},
		{"array", `[1]`, true},
		{"garbage", `{"initialBalance":`, true},
		{"too large", `{"x":"` + strings.Repeat("a", MaxBodyBytes) + `"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst InitialBalanceRequest
			err := DecodeJSON(httptest.NewRecorder(), r, &dst)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidJSON) {
					t.Errorf("err = %v, want ErrInvalidJSON", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeJSON: %v", err)
			}
		})
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := map[string]string{
		"  hello  ":       "hello",
		"a\x00b\x07c":     "abc",
		"line\nbreak\tok": "line\nbreak\tok",
	}
	for in, want := range tests {
		if got := sanitizeInput(in); got != want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestProfileRequestApply(t *testing.T) {
	var req ProfileRequest
	if err := json.Unmarshal([]byte(`{"preferences":{"currency":" usd ","notifications":false}}`), &req); err != nil {
		t.Fatal(err)
	}
	got := req.Apply(core.DefaultPreferences())
	want := core.Preferences{Currency: "USD", Theme: "dark", Notifications: false}
	if got != want {
		t.Errorf("Apply = %+v, want %+v", got, want)
	}
}
