package resolver

import "github.com/openbk/tariff/internal/domain"

// Some loan products model limit enhancement/reduction processing as a
// dedicated charge type; others model the same concept as PROCESSING_FEE
// qualified by a charge context. When the dedicated type has no rule, the
// resolver retries with the equivalent qualified type. This is a
// modeling-inconsistency workaround, table-driven rather than
// per-product.
type chargeFallback struct {
	ChargeType    string
	ChargeContext domain.ChargeContext
}

var chargeFallbacks = map[string]chargeFallback{
	domain.ChargeLimitEnhancementFee: {
		ChargeType:    domain.ChargeProcessingFee,
		ChargeContext: domain.ContextOnEnhancedAmount,
	},
	domain.ChargeLimitReductionFee: {
		ChargeType:    domain.ChargeProcessingFee,
		ChargeContext: domain.ContextOnReducedAmount,
	},
}

func fallbackFor(chargeType string) (chargeFallback, bool) {
	fb, ok := chargeFallbacks[chargeType]
	return fb, ok
}
