// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// JSON bodies, entry payloads and the query parameters of list and report
// endpoints.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"saldo/internal/core"
)

// MaxBodyBytes caps every JSON request body.
const MaxBodyBytes = 1 << 20

// ErrInvalidJSON marks bodies that are not a single JSON object.
var ErrInvalidJSON = errors.New("invalid JSON body")

// DecodeJSON reads one JSON value from the request body into dst.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return fmt.Errorf("%w: expected an object", ErrInvalidJSON)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return nil
}

// FlexAmount accepts an amount as a JSON number or a decimal string and
// keeps the raw text for ParseAmount.
type FlexAmount string

func (a *FlexAmount) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	switch {
	case s == "null":
		*a = ""
	case strings.HasPrefix(s, `"`):
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*a = FlexAmount(str)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("amount must be a number")
		}
		*a = FlexAmount(n.String())
	}
	return nil
}

// EntryRequest is the body of create and update requests.
type EntryRequest struct {
	Type          string         `json:"type"`
	Amount        FlexAmount     `json:"amount"`
	Description   string         `json:"description"`
	Category      string         `json:"category"`
	PaymentMethod string         `json:"paymentMethod"`
	Date          string         `json:"date"`
	Metadata      *core.Metadata `json:"metadata,omitempty"`
}

// Input converts the request into a validated EntryInput, reporting every
// offending field at once.
func (req EntryRequest) Input() (core.EntryInput, error) {
	v := &core.ValidationError{}
	in := core.EntryInput{
		Description: sanitizeInput(req.Description),
		Category:    sanitizeInput(req.Category),
	}

	kind, err := core.ParseKind(req.Type)
	if err != nil {
		v.Add("type", err.Error())
	}
	in.Kind = kind

	if strings.TrimSpace(string(req.Amount)) == "" {
		v.Add("amount", "is required")
	} else if amount, err := core.ParseAmount(string(req.Amount)); err != nil {
		v.Add("amount", "must be a number of at least 0.01")
	} else {
		in.Amount = amount
	}

	pm, err := core.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		v.Add("paymentMethod", err.Error())
	}
	in.PaymentMethod = pm

	if strings.TrimSpace(req.Date) == "" {
		v.Add("date", "is required")
	} else if d, err := core.ParseDate(req.Date); err != nil {
		v.Add("date", "must be RFC 3339 or YYYY-MM-DD")
	} else {
		in.Date = d
	}

	if req.Metadata != nil {
		in.Metadata = core.Metadata{
			Location: sanitizeInput(req.Metadata.Location),
			Notes:    sanitizeInput(req.Metadata.Notes),
		}
	}

	in = in.Normalized()
	var rest *core.ValidationError
	if err := in.Validate(); errors.As(err, &rest) {
		v.Merge(rest)
	}
	if err := v.OrNil(); err != nil {
		return core.EntryInput{}, err
	}
	return in, nil
}

// InitialBalanceRequest is the body of POST /api/user/initial-balance.
type InitialBalanceRequest struct {
	InitialBalance FlexAmount `json:"initialBalance"`
}

func (req InitialBalanceRequest) Amount() (core.Money, error) {
	s := strings.TrimSpace(string(req.InitialBalance))
	if s == "" {
		return core.Money{}, fieldError("initialBalance", "is required")
	}
	m, err := core.ParseSignedAmount(s)
	if err != nil || m.IsNegative() {
		return core.Money{}, fieldError("initialBalance", "must be a number of at least 0")
	}
	return m, nil
}

// ProfileRequest is the body of PUT /api/user/profile. Omitted
// preferences keep their current value.
type ProfileRequest struct {
	Preferences struct {
		Currency      *string `json:"currency"`
		Theme         *string `json:"theme"`
		Notifications *bool   `json:"notifications"`
	} `json:"preferences"`
}

// Apply overlays the requested changes on current.
func (req ProfileRequest) Apply(current core.Preferences) core.Preferences {
	p := req.Preferences
	if p.Currency != nil {
		current.Currency = strings.ToUpper(strings.TrimSpace(*p.Currency))
	}
	if p.Theme != nil {
		current.Theme = strings.TrimSpace(*p.Theme)
	}
	if p.Notifications != nil {
		current.Notifications = *p.Notifications
	}
	return current
}

func fieldError(field, message string) error {
	return &core.ValidationError{Fields: []core.FieldError{{Field: field, Message: message}}}
}

// ParseListQuery reads the filters and paging of GET /api/transactions.
func ParseListQuery(query url.Values) (core.ListQuery, error) {
	v := &core.ValidationError{}
	q := core.ListQuery{
		Category: sanitizeInput(query.Get("category")),
		Text:     sanitizeInput(query.Get("q")),
	}

	q.Page = intParam(v, query, "page", 1, 1, 0)
	q.PageSize = intParam(v, query, "limit", core.DefaultPageSize, 1, 0)

	if s := strings.TrimSpace(query.Get("type")); s != "" {
		kind, err := core.ParseKind(s)
		if err != nil {
			v.Add("type", err.Error())
		}
		q.Kind = kind
	}

	q.From = dateParam(v, query, "from")
	q.To = dateParam(v, query, "to")
	if !q.From.IsZero() && !q.To.IsZero() && !q.From.Before(q.To) {
		v.Add("to", "must be after from")
	}

	sort, err := core.ParseSort(query.Get("sort"))
	var serr *core.ValidationError
	if errors.As(err, &serr) {
		v.Merge(serr)
	}
	q.Sort = sort

	if err := v.OrNil(); err != nil {
		return core.ListQuery{}, err
	}
	return q.Normalize(), nil
}

// historyRanges maps the accepted range values of the balance history.
var historyRanges = map[string]int{"7d": 7, "30d": 30, "90d": 90}

// ParseHistoryRange reads ?range=7d|30d|90d, defaulting to 30 days.
func ParseHistoryRange(query url.Values) (string, int, error) {
	r := strings.TrimSpace(query.Get("range"))
	if r == "" {
		r = "30d"
	}
	days, ok := historyRanges[r]
	if !ok {
		return "", 0, fieldError("range", "must be one of 7d, 30d, 90d")
	}
	return r, days, nil
}

// ParseIntParam reads an optional integer query parameter within
// [min, max]. A max of zero leaves the upper side open.
func ParseIntParam(query url.Values, key string, def, min, max int) (int, error) {
	v := &core.ValidationError{}
	n := intParam(v, query, key, def, min, max)
	if err := v.OrNil(); err != nil {
		return 0, err
	}
	return n, nil
}

func intParam(v *core.ValidationError, query url.Values, key string, def, min, max int) int {
	s := strings.TrimSpace(query.Get(key))
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	switch {
	case err != nil:
		v.Add(key, "must be an integer")
		return def
	case n < min:
		v.Add(key, fmt.Sprintf("must be at least %d", min))
		return def
	case max > 0 && n > max:
		v.Add(key, fmt.Sprintf("must be at most %d", max))
		return def
	}
	return n
}

func dateParam(v *core.ValidationError, query url.Values, key string) time.Time {
	s := strings.TrimSpace(query.Get(key))
	if s == "" {
		return time.Time{}
	}
	d, err := core.ParseDate(s)
	if err != nil {
		v.Add(key, "must be RFC 3339 or YYYY-MM-DD")
		return time.Time{}
	}
	return d
}

// sanitizeInput removes control characters except tab, newline and
// carriage return, then trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
