// Package resolver implements deterministic fee rule selection: temporal
// and dimension filtering, wildcard shadowing, ambiguity detection, and
// the charge-type fallback chain.
package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/openbk/tariff/internal/domain"
	"github.com/openbk/tariff/internal/feeval"
)

// Resolver selects the single applicable rule for a query, or reports
// ambiguity or absence. It is stateless and read-only against the rule
// store; concurrent resolutions need no coordination.
type Resolver struct {
	store domain.RuleStore
	eval  *feeval.Evaluator
}

// New creates a resolver backed by the given store and evaluator.
func New(store domain.RuleStore, eval *feeval.Evaluator) *Resolver {
	return &Resolver{store: store, eval: eval}
}

// Resolve runs the matching algorithm for a query, retrying under the
// fallback charge type before settling on NO_RULE_FOUND. For a fixed
// query and store snapshot the result is always the same.
func (r *Resolver) Resolve(ctx context.Context, q domain.Query) (*domain.Resolution, error) {
	q = NormalizeQuery(q)

	res, err := r.resolveOnce(ctx, q)
	if err != nil {
		return nil, err
	}
	if res.Status != domain.StatusNoRuleFound {
		return res, nil
	}

	fb, ok := fallbackFor(q.ChargeType)
	if !ok {
		return res, nil
	}

	fq := q
	fq.ChargeType = fb.ChargeType
	if fq.ChargeContext == "" {
		fq.ChargeContext = fb.ChargeContext
	}

	fres, err := r.resolveOnce(ctx, fq)
	if err != nil {
		return nil, err
	}
	if fres.Status != domain.StatusNoRuleFound {
		return fres, nil
	}
	return res, nil
}

func (r *Resolver) resolveOnce(ctx context.Context, q domain.Query) (*domain.Resolution, error) {
	candidates, err := r.store.FindRules(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("rule lookup failed: %w", err)
	}

	candidates = shadowWildcards(candidates)
	if len(candidates) == 0 {
		return &domain.Resolution{Status: domain.StatusNoRuleFound}, nil
	}

	groups := groupByKey(candidates)
	if len(groups) > 1 {
		options := buildOptions(groups)
		return &domain.Resolution{
			Status:     domain.StatusNeedsDisambiguation,
			Options:    options,
			PromptText: buildPrompt(q, options),
		}, nil
	}

	// One dimension key. More than one row here means the overlap
	// invariant was breached; the store already ordered candidates by
	// effective_from DESC, priority DESC, fee_value DESC, so taking the
	// first stays deterministic.
	rule := groups[0][0]

	display, err := r.eval.DisplayText(ctx, rule)
	if err != nil {
		return nil, err
	}

	return &domain.Resolution{
		Status:      domain.StatusFound,
		Rule:        rule,
		DisplayText: display,
	}, nil
}

// shadowWildcards drops every rule strictly dominated by another
// candidate: specific rules shadow generic fallback rules. Rule A
// dominates rule B when A's card dimensions equal B's everywhere B is not
// the wildcard and A is specific somewhere B is not. Charge context is an
// exact dimension and never shadowed; GENERAL and ON_LIMIT variants stay
// distinct candidates.
func shadowWildcards(rules []*domain.FeeRule) []*domain.FeeRule {
	if len(rules) < 2 {
		return rules
	}

	kept := rules[:0:0]
	for _, candidate := range rules {
		dominated := false
		for _, other := range rules {
			if other != candidate && dominates(other, candidate) {
				dominated = true
				break
			}
		}
		if !dominated {
			kept = append(kept, candidate)
		}
	}
	return kept
}

func dominates(a, b *domain.FeeRule) bool {
	if a.ChargeContext != b.ChargeContext {
		return false
	}
	covers := func(av, bv string) bool { return av == bv || bv == domain.Wildcard }
	if !covers(a.Category, b.Category) || !covers(a.Network, b.Network) || !covers(a.Product, b.Product) {
		return false
	}
	return a.Category != b.Category || a.Network != b.Network || a.Product != b.Product
}

// groupByKey buckets candidates by their full dimension key, preserving
// the store's tie-break order within each bucket. Groups are sorted by
// charge context, product, network, then category so option ordering is
// reproducible.
func groupByKey(rules []*domain.FeeRule) [][]*domain.FeeRule {
	index := make(map[string]int)
	var groups [][]*domain.FeeRule
	for _, rule := range rules {
		key := rule.Key()
		if i, ok := index[key]; ok {
			groups[i] = append(groups[i], rule)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, []*domain.FeeRule{rule})
	}

	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i][0], groups[j][0]
		if a.ChargeContext != b.ChargeContext {
			return a.ChargeContext < b.ChargeContext
		}
		if a.Product != b.Product {
			return a.Product < b.Product
		}
		if a.Network != b.Network {
			return a.Network < b.Network
		}
		return a.Category < b.Category
	})
	return groups
}

func buildOptions(groups [][]*domain.FeeRule) []domain.Option {
	label := labelFunc(groups)
	options := make([]domain.Option, 0, len(groups))
	for _, group := range groups {
		rule := group[0]
		options = append(options, domain.Option{
			Label:         label(rule),
			RuleID:        rule.ID,
			Category:      rule.Category,
			Network:       rule.Network,
			Product:       rule.Product,
			ChargeContext: rule.ChargeContext,
		})
	}
	return options
}

// labelFunc names candidates by the first dimension that separates the
// groups: charge context wins, then product, network, category. The
// chosen dimension is the one a follow-up answer must supply.
func labelFunc(groups [][]*domain.FeeRule) func(*domain.FeeRule) string {
	byContext := func(r *domain.FeeRule) string { return string(r.ChargeContext) }
	byProduct := func(r *domain.FeeRule) string { return r.Product }
	byNetwork := func(r *domain.FeeRule) string { return r.Network }
	byCategory := func(r *domain.FeeRule) string { return r.Category }

	switch {
	case groupsVary(groups, byContext):
		return byContext
	case groupsVary(groups, byProduct):
		return byProduct
	case groupsVary(groups, byNetwork):
		return byNetwork
	default:
		return byCategory
	}
}

func groupsVary(groups [][]*domain.FeeRule, get func(*domain.FeeRule) string) bool {
	first := get(groups[0][0])
	for _, group := range groups[1:] {
		if get(group[0]) != first {
			return true
		}
	}
	return false
}

// buildPrompt renders the disambiguation question for the dimension the
// option labels name. The string is stored with the session and replayed
// verbatim on re-prompt, so it must be a pure function of the query and
// options.
func buildPrompt(q domain.Query, options []domain.Option) string {
	labels := make([]string, len(options))
	for i, opt := range options {
		labels[i] = opt.Label
	}
	list := strings.Join(labels, ", ")

	switch {
	case optionsVary(options, func(o domain.Option) string { return string(o.ChargeContext) }):
		return fmt.Sprintf(
			"This charge is defined in more than one context, please specify the charge context: %s.", list)
	case optionsVary(options, func(o domain.Option) string { return o.Product }):
		if q.Family == domain.FamilyCard {
			return fmt.Sprintf(
				"More than one card product matches your query, please specify the card product: %s.", list)
		}
		return fmt.Sprintf(
			"More than one loan product matches your query, please specify the loan product: %s.", list)
	case optionsVary(options, func(o domain.Option) string { return o.Network }):
		return fmt.Sprintf(
			"This charge differs by card network, please specify the card network: %s.", list)
	default:
		return fmt.Sprintf(
			"This charge differs by card category, please specify the card category: %s.", list)
	}
}

func optionsVary(options []domain.Option, get func(domain.Option) string) bool {
	first := get(options[0])
	for _, opt := range options[1:] {
		if get(opt) != first {
			return true
		}
	}
	return false
}

// MatchOption maps a free-text clarification answer to one of the stored
// options. Both sides are folded to canonical tokens first, so "on limit"
// matches the ON_LIMIT label; matching is containment in either
// direction. Nil means the answer named none of the options and the
// stored prompt should be replayed.
func MatchOption(options []domain.Option, answer string) *domain.Option {
	folded := strings.ToLower(canonicalToken(answer))
	if folded == "" {
		return nil
	}
	for i := range options {
		label := strings.ToLower(canonicalToken(options[i].Label))
		if label == "" {
			continue
		}
		if strings.Contains(folded, label) || strings.Contains(label, folded) {
			return &options[i]
		}
	}
	return nil
}

// MergeOption folds a chosen option's distinguishing dimensions back into
// the original query for re-resolution.
func MergeOption(q domain.Query, opt domain.Option) domain.Query {
	if opt.Category != "" && opt.Category != domain.Wildcard {
		q.Category = opt.Category
	}
	if opt.Network != "" && opt.Network != domain.Wildcard {
		q.Network = opt.Network
	}
	if opt.Product != "" && opt.Product != domain.Wildcard {
		q.Product = opt.Product
	}
	if opt.ChargeContext != "" {
		q.ChargeContext = opt.ChargeContext
	}
	return q
}
