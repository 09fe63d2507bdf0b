package core

import "strings"

// Kind tags an entry as money in (Credit) or money out (Debit).
type Kind string

const (
	Credit Kind = "credit"
	Debit  Kind = "debit"
)

// ParseKind accepts "credit"/"debit" in any letter case.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case Credit:
		return Credit, nil
	case Debit:
		return Debit, nil
	}
	return "", ErrInvalidKind
}

func (k Kind) Valid() bool {
	return k == Credit || k == Debit
}

// Sign is +1 for credits and -1 for debits. An invalid kind has no effect.
func (k Kind) Sign() int64 {
	switch k {
	case Credit:
		return 1
	case Debit:
		return -1
	}
	return 0
}

// SignedAmount maps a magnitude to its balance effect.
func SignedAmount(k Kind, amount Money) Money {
	return Money{Cents: k.Sign() * amount.Cents}
}

// PaymentMethod is one of a fixed set of labels.
type PaymentMethod string

const (
	PaymentCash  PaymentMethod = "Cash"
	PaymentGPay  PaymentMethod = "GPay"
	PaymentPaytm PaymentMethod = "Paytm"
	PaymentBank  PaymentMethod = "Bank Transfer"
	PaymentCard  PaymentMethod = "Card"
	PaymentOther PaymentMethod = "Other"
)

// PaymentMethods lists the accepted payment methods in display order.
var PaymentMethods = []PaymentMethod{
	PaymentCash, PaymentGPay, PaymentPaytm, PaymentBank, PaymentCard, PaymentOther,
}

// ParsePaymentMethod matches s case-insensitively against PaymentMethods and
// returns the canonical spelling.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	s = strings.TrimSpace(s)
	for _, pm := range PaymentMethods {
		if strings.EqualFold(string(pm), s) {
			return pm, nil
		}
	}
	return "", ErrInvalidPaymentMethod
}

func (p PaymentMethod) Valid() bool {
	for _, pm := range PaymentMethods {
		if pm == p {
			return true
		}
	}
	return false
}
