package domain

import "time"

// Query is a structured fee question: which charge, on which product
// dimensions, as of which date. Empty dimension fields mean the caller
// left them unspecified and they remain open during matching.
type Query struct {
	Family        RuleFamily    `json:"family"`
	ChargeType    string        `json:"chargeType"`
	Category      string        `json:"category,omitempty"`
	Network       string        `json:"network,omitempty"`
	Product       string        `json:"product,omitempty"`
	ChargeContext ChargeContext `json:"chargeContext,omitempty"`
	AsOf          time.Time     `json:"asOf"`
}

// ResolutionStatus is the terminal outcome of one resolution.
type ResolutionStatus string

const (
	StatusFound               ResolutionStatus = "FOUND"
	StatusNeedsDisambiguation ResolutionStatus = "NEEDS_DISAMBIGUATION"
	StatusNoRuleFound         ResolutionStatus = "NO_RULE_FOUND"
)

// Option is one disambiguation candidate. It carries every dimension
// value of its rule so a follow-up answer can be merged back into the
// original query deterministically, whichever dimension distinguishes
// the candidates.
type Option struct {
	Label         string        `json:"label"`
	RuleID        string        `json:"ruleId"`
	Category      string        `json:"category,omitempty"`
	Network       string        `json:"network,omitempty"`
	Product       string        `json:"product,omitempty"`
	ChargeContext ChargeContext `json:"chargeContext,omitempty"`
}

// Resolution is the result of Resolve. Exactly one of the three statuses;
// NO_RULE_FOUND is a first-class result, not an error.
type Resolution struct {
	Status      ResolutionStatus `json:"status"`
	Rule        *FeeRule         `json:"rule,omitempty"`
	DisplayText string           `json:"displayText,omitempty"`
	Options     []Option         `json:"options,omitempty"`
	PromptText  string           `json:"promptText,omitempty"`
}
