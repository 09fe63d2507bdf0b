package core

import (
	"sort"
	"strings"
	"time"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// SortField names a column entries can be ordered by.
type SortField string

const (
	SortDate      SortField = "date"
	SortAmount    SortField = "amount"
	SortCreatedAt SortField = "createdAt"
	SortCategory  SortField = "category"
)

type Sort struct {
	Field SortField
	Desc  bool
}

// DefaultSort is newest first.
var DefaultSort = Sort{Field: SortDate, Desc: true}

// ParseSort reads "field" or "-field". An empty string yields DefaultSort.
func ParseSort(s string) (Sort, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultSort, nil
	}
	out := Sort{}
	if strings.HasPrefix(s, "-") {
		out.Desc = true
		s = s[1:]
	}
	switch SortField(s) {
	case SortDate, SortAmount, SortCreatedAt, SortCategory:
		out.Field = SortField(s)
		return out, nil
	}
	return Sort{}, &ValidationError{Fields: []FieldError{{Field: "sort", Message: "unknown sort field"}}}
}

func (s Sort) String() string {
	if s.Desc {
		return "-" + string(s.Field)
	}
	return string(s.Field)
}

// ListQuery filters and paginates an account's entries. From is inclusive
// and To is exclusive; zero times leave that side open.
type ListQuery struct {
	Kind     Kind
	Category string
	Text     string
	From     time.Time
	To       time.Time
	Page     int
	PageSize int
	Sort     Sort
}

// Normalize fills defaults and clamps the page size.
func (q ListQuery) Normalize() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	switch {
	case q.PageSize <= 0:
		q.PageSize = DefaultPageSize
	case q.PageSize > MaxPageSize:
		q.PageSize = MaxPageSize
	}
	if q.Sort.Field == "" {
		q.Sort = DefaultSort
	}
	q.Text = strings.TrimSpace(q.Text)
	q.Category = strings.TrimSpace(q.Category)
	return q
}

func (q ListQuery) Offset() int {
	return (q.Page - 1) * q.PageSize
}

// Matches applies the filter part of the query to a single entry.
func (q ListQuery) Matches(e Entry) bool {
	if q.Kind != "" && e.Kind != q.Kind {
		return false
	}
	if q.Category != "" && e.Category != q.Category {
		return false
	}
	if q.Text != "" && !strings.Contains(strings.ToLower(e.Description), strings.ToLower(q.Text)) {
		return false
	}
	if !q.From.IsZero() && e.Date.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && !e.Date.Before(q.To) {
		return false
	}
	return true
}

// SortEntries orders entries in place. Ties break on ID so pages are stable.
func SortEntries(entries []Entry, s Sort) {
	less := func(a, b Entry) int {
		switch s.Field {
		case SortAmount:
			return cmpInt64(a.Amount.Cents, b.Amount.Cents)
		case SortCreatedAt:
			return a.CreatedAt.Compare(b.CreatedAt)
		case SortCategory:
			return strings.Compare(a.Category, b.Category)
		default:
			return a.Date.Compare(b.Date)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		c := less(entries[i], entries[j])
		if c == 0 {
			c = strings.Compare(entries[i].ID, entries[j].ID)
		}
		if s.Desc {
			return c > 0
		}
		return c < 0
	})
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Page is one slice of a listing.
type Page struct {
	Items    []Entry `json:"items"`
	Total    int     `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"limit"`
	HasMore  bool    `json:"hasMore"`
}

func NewPage(items []Entry, total int, q ListQuery) Page {
	if items == nil {
		items = []Entry{}
	}
	return Page{
		Items:    items,
		Total:    total,
		Page:     q.Page,
		PageSize: q.PageSize,
		HasMore:  q.Page*q.PageSize < total,
	}
}
