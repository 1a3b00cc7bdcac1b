// Package domain defines the core types and interfaces for the fee
// resolution engine.
package domain

import (
	"fmt"
	"time"
)

// RuleFamily identifies which fee schedule a rule belongs to.
type RuleFamily string

const (
	FamilyCard        RuleFamily = "CARD"
	FamilyRetailAsset RuleFamily = "RETAIL_ASSET"
)

// RuleStatus is the lifecycle state of a rule.
type RuleStatus string

const (
	StatusActive   RuleStatus = "ACTIVE"
	StatusInactive RuleStatus = "INACTIVE"
)

// ChargeContext disambiguates same-named charges on retail loan products.
type ChargeContext string

const (
	ContextGeneral          ChargeContext = "GENERAL"
	ContextOnLimit          ChargeContext = "ON_LIMIT"
	ContextOnEnhancedAmount ChargeContext = "ON_ENHANCED_AMOUNT"
	ContextOnReducedAmount  ChargeContext = "ON_REDUCED_AMOUNT"
)

// FeeUnit is the unit of a rule's fee value.
type FeeUnit string

const (
	UnitCurrency   FeeUnit = "CURRENCY"
	UnitPercent    FeeUnit = "PERCENT"
	UnitCount      FeeUnit = "COUNT"
	UnitText       FeeUnit = "TEXT"
	UnitActualCost FeeUnit = "ACTUAL_COST"
)

// FeeBasis is what a fee applies against.
type FeeBasis string

const (
	BasisPerTransaction FeeBasis = "PER_TRANSACTION"
	BasisPerYear        FeeBasis = "PER_YEAR"
	BasisPerMonth       FeeBasis = "PER_MONTH"
	BasisPerVisit       FeeBasis = "PER_VISIT"
	BasisOnOutstanding  FeeBasis = "ON_OUTSTANDING"
	BasisOnAmount       FeeBasis = "ON_AMOUNT"
)

// ConditionType selects how a rule's fee value is rendered for display.
type ConditionType string

const (
	ConditionNone            ConditionType = "NONE"
	ConditionWhicheverHigher ConditionType = "WHICHEVER_HIGHER"
	ConditionFreeUptoN       ConditionType = "FREE_UPTO_N"
	ConditionNoteBased       ConditionType = "NOTE_BASED"
	ConditionTiered          ConditionType = "TIERED"
)

// Wildcard is the value a dimension column carries when a rule applies to
// every value of that dimension. Specific rules shadow wildcard rules
// during resolution.
const Wildcard = "ANY"

// Charge types referenced by application logic (the limit-adjustment
// fallback chain). The full set is data-driven.
const (
	ChargeAnnualFee           = "ANNUAL_FEE"
	ChargeIssuanceFee         = "ISSUANCE_FEE"
	ChargeProcessingFee       = "PROCESSING_FEE"
	ChargeLimitEnhancementFee = "LIMIT_ENHANCEMENT_FEE"
	ChargeLimitReductionFee   = "LIMIT_REDUCTION_FEE"
)

// FeeRule is a single versioned fee/charge record. One shape serves both
// rule families: card rules leave ChargeContext at GENERAL, retail asset
// rules leave Category and Network at the wildcard.
type FeeRule struct {
	ID     string     `json:"id"`
	Family RuleFamily `json:"family"`

	// Classification dimensions used for matching.
	ChargeType    string        `json:"chargeType"`
	Category      string        `json:"category"` // CREDIT, DEBIT, PREPAID or ANY
	Network       string        `json:"network"`  // VISA, MASTERCARD, ... or ANY
	Product       string        `json:"product"`  // product name or ANY
	ChargeContext ChargeContext `json:"chargeContext"`

	// Temporal validity. EffectiveTo nil means open-ended; both bounds
	// are inclusive.
	EffectiveFrom time.Time  `json:"effectiveFrom"`
	EffectiveTo   *time.Time `json:"effectiveTo,omitempty"`

	// Fee expression.
	FeeValue       float64       `json:"feeValue"`
	FeeUnit        FeeUnit       `json:"feeUnit"`
	FeeBasis       FeeBasis      `json:"feeBasis"`
	Currency       string        `json:"currency"`
	Condition      ConditionType `json:"condition"`
	Tier1Threshold float64       `json:"tier1Threshold,omitempty"`
	Tier1Rate      float64       `json:"tier1Rate,omitempty"`
	Tier1MaxFee    float64       `json:"tier1MaxFee,omitempty"`
	Tier2Rate      float64       `json:"tier2Rate,omitempty"`
	Tier2MaxFee    float64       `json:"tier2MaxFee,omitempty"`
	MinFee         float64       `json:"minFee,omitempty"`
	MaxFee         float64       `json:"maxFee,omitempty"`

	// Presentation. AnswerText is the curated canonical output and wins
	// verbatim over any computed form when non-empty.
	AnswerText    string `json:"answerText,omitempty"`
	NoteReference int    `json:"noteReference,omitempty"`
	Remarks       string `json:"remarks,omitempty"`

	Priority  int        `json:"priority"`
	Status    RuleStatus `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// LiveAt reports whether the rule's validity interval covers asOf.
func (r *FeeRule) LiveAt(asOf time.Time) bool {
	if r.EffectiveFrom.After(asOf) {
		return false
	}
	return r.EffectiveTo == nil || !r.EffectiveTo.Before(asOf)
}

// Key returns the uniqueness key the no-overlap invariant is scoped to.
func (r *FeeRule) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s",
		r.Family, r.ChargeType, r.ChargeContext, r.Category, r.Network, r.Product)
}

// Validate rejects rules with unknown enum values or missing required
// fields. Called at the store boundary before any insert.
func (r *FeeRule) Validate() error {
	switch r.Family {
	case FamilyCard, FamilyRetailAsset:
	default:
		return fmt.Errorf("%w: unknown family %q", ErrInvalidInput, r.Family)
	}
	if r.ChargeType == "" {
		return fmt.Errorf("%w: chargeType is required", ErrInvalidInput)
	}
	switch r.ChargeContext {
	case ContextGeneral, ContextOnLimit, ContextOnEnhancedAmount, ContextOnReducedAmount:
	default:
		return fmt.Errorf("%w: unknown chargeContext %q", ErrInvalidInput, r.ChargeContext)
	}
	switch r.FeeUnit {
	case UnitCurrency, UnitPercent, UnitCount, UnitText, UnitActualCost:
	default:
		return fmt.Errorf("%w: unknown feeUnit %q", ErrInvalidInput, r.FeeUnit)
	}
	switch r.FeeBasis {
	case BasisPerTransaction, BasisPerYear, BasisPerMonth, BasisPerVisit, BasisOnOutstanding, BasisOnAmount:
	default:
		return fmt.Errorf("%w: unknown feeBasis %q", ErrInvalidInput, r.FeeBasis)
	}
	switch r.Condition {
	case ConditionNone, ConditionWhicheverHigher, ConditionFreeUptoN, ConditionNoteBased, ConditionTiered:
	default:
		return fmt.Errorf("%w: unknown condition %q", ErrInvalidInput, r.Condition)
	}
	switch r.Status {
	case StatusActive, StatusInactive:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, r.Status)
	}
	if r.EffectiveFrom.IsZero() {
		return fmt.Errorf("%w: effectiveFrom is required", ErrInvalidInput)
	}
	if r.EffectiveTo != nil && r.EffectiveTo.Before(r.EffectiveFrom) {
		return fmt.Errorf("%w: effectiveTo before effectiveFrom", ErrInvalidInput)
	}
	if r.Condition == ConditionNoteBased && r.NoteReference <= 0 {
		return fmt.Errorf("%w: noteReference is required for NOTE_BASED rules", ErrInvalidInput)
	}
	return nil
}

// Note is a numbered canonical text snippet referenced by note-based
// rules. Immutable once its schedule version is published; re-imports
// upsert by number.
type Note struct {
	Number        int       `json:"number"`
	Text          string    `json:"text"`
	SourceFile    string    `json:"sourceFile,omitempty"`
	EffectiveFrom time.Time `json:"effectiveFrom"`
}
