package order

import (
	"sort"

	"ms-sales/internal/apperr"
)

type PaymentMode string

const (
	ModeCreditOnly PaymentMode = "CREDIT_ONLY"
	ModeCashOnly   PaymentMode = "CASH_ONLY"
	ModeMixedError PaymentMode = "MIXED_ERROR"
)

// CategoryLink is one ticket category seen in an order and whether it is
// linked to a credit account.
type CategoryLink struct {
	Category     string
	CreditLinked bool
}

type Classification struct {
	Mode                PaymentMode
	CreditCategories    []string
	NonCreditCategories []string
}

// Classify splits the categories of an order into credit-linked and cash
// sets. An order without tickets is cash. Both the checkout and the credit
// status precheck go through here.
func Classify(links []CategoryLink) Classification {
	credit := map[string]bool{}
	cash := map[string]bool{}
	for _, l := range links {
		if l.CreditLinked {
			credit[l.Category] = true
		} else {
			cash[l.Category] = true
		}
	}

	c := Classification{
		CreditCategories:    sortedSet(credit),
		NonCreditCategories: sortedSet(cash),
	}
	switch {
	case len(credit) > 0 && len(cash) > 0:
		c.Mode = ModeMixedError
	case len(credit) > 0:
		c.Mode = ModeCreditOnly
	default:
		c.Mode = ModeCashOnly
	}
	return c
}

// Err returns the MixedPaymentError of a mixed classification.
func (c Classification) Err() error {
	if c.Mode != ModeMixedError {
		return nil
	}
	return &apperr.MixedPaymentError{
		CreditCategories:    c.CreditCategories,
		NonCreditCategories: c.NonCreditCategories,
	}
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
