package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validInput() EntryInput {
	return EntryInput{
		Kind:          Debit,
		Amount:        Cents(1250),
		Description:   "Groceries",
		Category:      "Food",
		PaymentMethod: PaymentCard,
		Date:          time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestSignedAmount(t *testing.T) {
	if got := SignedAmount(Credit, Cents(500)); got.Cents != 500 {
		t.Errorf("credit signed = %d", got.Cents)
	}
	if got := SignedAmount(Debit, Cents(500)); got.Cents != -500 {
		t.Errorf("debit signed = %d", got.Cents)
	}
	if got := SignedAmount(Kind("bogus"), Cents(500)); got.Cents != 0 {
		t.Errorf("invalid kind signed = %d", got.Cents)
	}
}

func TestParseKind(t *testing.T) {
	for _, s := range []string{"credit", "CREDIT", " Credit "} {
		if k, err := ParseKind(s); err != nil || k != Credit {
			t.Errorf("ParseKind(%q) = %v, %v", s, k, err)
		}
	}
	if _, err := ParseKind("refund"); !errors.Is(err, ErrInvalidKind) {
		t.Errorf("expected ErrInvalidKind, got %v", err)
	}
}

func TestParsePaymentMethod(t *testing.T) {
	pm, err := ParsePaymentMethod("bank transfer")
	if err != nil || pm != PaymentBank {
		t.Fatalf("got %q, %v", pm, err)
	}
	if _, err := ParsePaymentMethod("Cheque"); err == nil {
		t.Fatal("expected error")
	}
}

func TestEntryInputValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*EntryInput)
		fields []string
	}{
		{"valid", func(*EntryInput) {}, nil},
		{"zero amount", func(in *EntryInput) { in.Amount = Cents(0) }, []string{"amount"}},
		{"bad kind", func(in *EntryInput) { in.Kind = "refund" }, []string{"type"}},
		{"empty description", func(in *EntryInput) { in.Description = "" }, []string{"description"}},
		{"long description", func(in *EntryInput) { in.Description = strings.Repeat("a", 201) }, []string{"description"}},
		{"multibyte description at limit", func(in *EntryInput) { in.Description = strings.Repeat("é", 200) }, nil},
		{"long category", func(in *EntryInput) { in.Category = strings.Repeat("c", 51) }, []string{"category"}},
		{"bad payment", func(in *EntryInput) { in.PaymentMethod = "Cheque" }, []string{"paymentMethod"}},
		{"missing date", func(in *EntryInput) { in.Date = time.Time{} }, []string{"date"}},
		{"epoch date", func(in *EntryInput) { in.Date = time.Unix(0, 0).UTC() }, nil},
		{"earliest date", func(in *EntryInput) { in.Date = MinEntryDate }, nil},
		{"latest date", func(in *EntryInput) { in.Date = MaxEntryDate.Add(-time.Nanosecond) }, nil},
		{"date before 1900", func(in *EntryInput) { in.Date = MinEntryDate.Add(-time.Nanosecond) }, []string{"date"}},
		{"date in 2200", func(in *EntryInput) { in.Date = MaxEntryDate }, []string{"date"}},
		{"date past int64 nanos", func(in *EntryInput) { in.Date = time.Date(2300, 1, 1, 0, 0, 0, 0, time.UTC) }, []string{"date"}},
		{"long notes", func(in *EntryInput) { in.Metadata.Notes = strings.Repeat("n", 501) }, []string{"metadata.notes"}},
		{"several at once", func(in *EntryInput) {
			in.Amount = Cents(0)
			in.Category = ""
		}, []string{"amount", "category"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			err := in.Validate()
			if len(tt.fields) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatal("errors.Is(err, ErrValidation) = false")
			}
			if len(ve.Fields) != len(tt.fields) {
				t.Fatalf("fields = %+v, want %v", ve.Fields, tt.fields)
			}
			for _, f := range tt.fields {
				if !ve.Has(f) {
					t.Errorf("missing field %q in %+v", f, ve.Fields)
				}
			}
		})
	}
}

func TestNormalizedTrims(t *testing.T) {
	in := validInput()
	in.Description = "  Rent  "
	in.Category = " Housing"
	in.Date = time.Date(2024, 1, 1, 5, 30, 0, 0, time.FixedZone("IST", 19800))
	got := in.Normalized()
	if got.Description != "Rent" || got.Category != "Housing" {
		t.Fatalf("not trimmed: %+v", got)
	}
	if got.Date.Location() != time.UTC || got.Date.Hour() != 0 {
		t.Fatalf("date not converted to UTC: %v", got.Date)
	}
}

func TestPreferencesValidate(t *testing.T) {
	if err := DefaultPreferences().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	err := Preferences{Currency: "XXX1", Theme: "blue"}.Validate()
	var ve *ValidationError
	if !errors.As(err, &ve) || len(ve.Fields) != 2 {
		t.Fatalf("expected two field errors, got %v", err)
	}
}

func TestSnapshotReplay(t *testing.T) {
	snap := Snapshot{
		Account: Account{InitialBalance: Cents(10000)},
		Entries: []Entry{
			{Kind: Debit, Amount: Cents(2500)},
			{Kind: Credit, Amount: Cents(5000)},
			{Kind: Debit, Amount: Cents(1)},
		},
	}
	if got := snap.Replay(); got.Cents != 12499 {
		t.Fatalf("Replay = %d, want 12499", got.Cents)
	}
}

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2024-03-10", time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), true},
		{"2024-03-10T08:00:00Z", time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC), true},
		{"2024-03-10T08:00:00+05:30", time.Date(2024, 3, 10, 2, 30, 0, 0, time.UTC), true},
		{"10/03/2024", time.Time{}, false},
		{"", time.Time{}, false},
	}
	for _, tc := range cases {
		got, err := ParseDate(tc.in)
		if tc.ok != (err == nil) {
			t.Fatalf("%q: err = %v", tc.in, err)
		}
		if tc.ok && !got.Equal(tc.want) {
			t.Errorf("%q: got %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestPartialWriteError(t *testing.T) {
	cause := errors.New("disk full")
	err := error(&PartialWriteError{AccountID: "a", EntryID: "e", Op: "create", Cause: cause})
	if !errors.Is(err, ErrPartialWrite) {
		t.Fatal("expected ErrPartialWrite")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to unwrap")
	}
}
