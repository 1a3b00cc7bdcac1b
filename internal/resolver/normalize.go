package resolver

import (
	"strings"

	"github.com/openbk/tariff/internal/domain"
)

// Dimension values arrive from the query classifier in whatever spelling
// the user typed. Normalization maps known synonyms to one canonical
// value before matching so differently-spelled queries resolve to the
// identical rule. Normalization is idempotent: canonical values map to
// themselves.

var networkSynonyms = map[string]string{
	"VISA":                   "VISA",
	"MASTERCARD":             "MASTERCARD",
	"MASTER_CARD":            "MASTERCARD",
	"MC":                     "MASTERCARD",
	"UNIONPAY":               "UNIONPAY",
	"UNION_PAY":              "UNIONPAY",
	"UNIONPAY_INTERNATIONAL": "UNIONPAY",
	"UPI":                    "UNIONPAY",
	"AMEX":                   "AMEX",
	"AMERICAN_EXPRESS":       "AMEX",
	"JCB":                    "JCB",
	"DINERS":                 "DINERS",
	"DINERS_CLUB":            "DINERS",
}

var categorySynonyms = map[string]string{
	"CREDIT":       "CREDIT",
	"CREDIT_CARD":  "CREDIT",
	"DEBIT":        "DEBIT",
	"DEBIT_CARD":   "DEBIT",
	"PREPAID":      "PREPAID",
	"PRE_PAID":     "PREPAID",
	"PREPAID_CARD": "PREPAID",
}

// NormalizeQuery returns a copy of the query with every dimension mapped
// to its canonical form.
func NormalizeQuery(q domain.Query) domain.Query {
	q.ChargeType = canonicalToken(q.ChargeType)
	q.Network = canonicalNetwork(q.Network)
	q.Category = canonicalCategory(q.Category)
	q.Product = strings.TrimSpace(q.Product)
	return q
}

func canonicalNetwork(v string) string {
	token := canonicalToken(v)
	if token == "" || token == domain.Wildcard {
		return token
	}
	if canonical, ok := networkSynonyms[token]; ok {
		return canonical
	}
	return token
}

func canonicalCategory(v string) string {
	token := canonicalToken(v)
	if token == "" || token == domain.Wildcard {
		return token
	}
	if canonical, ok := categorySynonyms[token]; ok {
		return canonical
	}
	return token
}

// canonicalToken uppercases and collapses separator runs to single
// underscores: "Union Pay" and "union-pay" both become "UNION_PAY".
func canonicalToken(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}

	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToUpper(v) {
		switch r {
		case ' ', '-', '_', '.':
			pendingSep = b.Len() > 0
		default:
			if pendingSep {
				b.WriteByte('_')
				pendingSep = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}
