package core

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxDescriptionLen = 200
	MaxCategoryLen    = 50
	MaxNotesLen       = 500
)

// Entry dates must fall in [MinEntryDate, MaxEntryDate).
var (
	MinEntryDate = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	MaxEntryDate = time.Date(2200, 1, 1, 0, 0, 0, 0, time.UTC)
)

type (
	// Metadata is optional free-form context attached to an entry.
	Metadata struct {
		Location string `json:"location,omitempty"`
		Notes    string `json:"notes,omitempty"`
	}

	// Entry is one persisted ledger record. Amount is always a positive
	// magnitude; Kind carries the sign.
	Entry struct {
		ID             string        `json:"id"`
		AccountID      string        `json:"accountId"`
		Kind           Kind          `json:"type"`
		Amount         Money         `json:"amount"`
		Description    string        `json:"description"`
		DescriptionEnc string        `json:"-"`
		Category       string        `json:"category"`
		PaymentMethod  PaymentMethod `json:"paymentMethod"`
		Date           time.Time     `json:"date"`
		BalanceAfter   Money         `json:"balanceAfter"`
		Metadata       Metadata      `json:"metadata"`
		CreatedAt      time.Time     `json:"createdAt"`
		UpdatedAt      time.Time     `json:"updatedAt"`
	}

	// EntryInput holds the user-editable fields of an entry.
	EntryInput struct {
		Kind          Kind
		Amount        Money
		Description   string
		Category      string
		PaymentMethod PaymentMethod
		Date          time.Time
		Metadata      Metadata
	}

	Preferences struct {
		Currency      string `json:"currency"`
		Theme         string `json:"theme"`
		Notifications bool   `json:"notifications"`
	}

	// Account owns a ledger. CurrentBalance is the cached running balance;
	// Version changes on every balance write and guards concurrent updates.
	Account struct {
		ID             string      `json:"id"`
		Email          string      `json:"email,omitempty"`
		InitialBalance Money       `json:"initialBalance"`
		CurrentBalance Money       `json:"currentBalance"`
		Version        int64       `json:"-"`
		Preferences    Preferences `json:"preferences"`
		CreatedAt      time.Time   `json:"createdAt"`
		UpdatedAt      time.Time   `json:"updatedAt"`
	}

	// Snapshot is a consistent read of an account and all of its entries.
	Snapshot struct {
		Account Account
		Entries []Entry
	}
)

func (m Metadata) IsZero() bool {
	return m.Location == "" && m.Notes == ""
}

// Signed returns the entry's effect on the balance.
func (e Entry) Signed() Money {
	return SignedAmount(e.Kind, e.Amount)
}

// Assign copies the editable fields of in onto e.
func (e *Entry) Assign(in EntryInput) {
	e.Kind = in.Kind
	e.Amount = in.Amount
	e.Description = in.Description
	e.Category = in.Category
	e.PaymentMethod = in.PaymentMethod
	e.Date = in.Date.UTC()
	e.Metadata = in.Metadata
}

// Input returns the editable fields of e.
func (e Entry) Input() EntryInput {
	return EntryInput{
		Kind:          e.Kind,
		Amount:        e.Amount,
		Description:   e.Description,
		Category:      e.Category,
		PaymentMethod: e.PaymentMethod,
		Date:          e.Date,
		Metadata:      e.Metadata,
	}
}

func (in EntryInput) Signed() Money {
	return SignedAmount(in.Kind, in.Amount)
}

// Normalized trims surrounding whitespace from the text fields.
func (in EntryInput) Normalized() EntryInput {
	in.Description = strings.TrimSpace(in.Description)
	in.Category = strings.TrimSpace(in.Category)
	in.Metadata.Location = strings.TrimSpace(in.Metadata.Location)
	in.Metadata.Notes = strings.TrimSpace(in.Metadata.Notes)
	if !in.Date.IsZero() {
		in.Date = in.Date.UTC()
	}
	return in
}

// Validate checks every field and reports all problems at once.
func (in EntryInput) Validate() error {
	v := &ValidationError{}
	if !in.Kind.Valid() {
		v.Add("type", ErrInvalidKind.Error())
	}
	if in.Amount.Cents < 1 {
		v.Add("amount", "must be at least 0.01")
	}
	checkLen(v, "description", in.Description, 1, MaxDescriptionLen)
	checkLen(v, "category", in.Category, 1, MaxCategoryLen)
	if !in.PaymentMethod.Valid() {
		v.Add("paymentMethod", ErrInvalidPaymentMethod.Error())
	}
	switch {
	case in.Date.IsZero():
		v.Add("date", "is required")
	case in.Date.Before(MinEntryDate) || !in.Date.Before(MaxEntryDate):
		v.Add("date", "must be between 1900-01-01 and 2199-12-31")
	}
	if n := utf8.RuneCountInString(in.Metadata.Notes); n > MaxNotesLen {
		v.Add("metadata.notes", "must be at most 500 characters")
	}
	return v.OrNil()
}

func checkLen(v *ValidationError, field, s string, min, max int) {
	n := utf8.RuneCountInString(s)
	switch {
	case n < min:
		v.Add(field, "is required")
	case n > max:
		v.Add(field, "is too long")
	}
}

// DefaultPreferences returns the preferences of a freshly created account.
func DefaultPreferences() Preferences {
	return Preferences{Currency: DefaultCurrency, Theme: "dark", Notifications: true}
}

func (p Preferences) Validate() error {
	v := &ValidationError{}
	if !KnownCurrency(p.Currency) {
		v.Add("currency", "unknown currency code")
	}
	if p.Theme != "dark" && p.Theme != "light" {
		v.Add("theme", "must be dark or light")
	}
	return v.OrNil()
}

// Replay recomputes the balance from the initial balance and the entry log.
func (s Snapshot) Replay() Money {
	total := s.Account.InitialBalance
	for _, e := range s.Entries {
		total = total.Add(e.Signed())
	}
	return total
}

// ParseDate accepts RFC 3339 timestamps and plain 2006-01-02 dates.
// The result is always in UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, ErrInvalidDate
}
