// Package feeval derives the canonical display text for a resolved fee
// rule. The engine answers "what is the rule", not "what is owed", so
// tiered and conditional fees are rendered as their full schedule text
// rather than evaluated against an amount.
package feeval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/openbk/tariff/internal/domain"
)

// MissingTextSentinel is emitted when a rule carries no curated text and
// no computable fee expression. A deterministic sentinel, never a guess.
const MissingTextSentinel = "not available in the Retail Asset Charges Schedule."

// NoteSource resolves note references for note-based rules.
type NoteSource interface {
	GetNote(ctx context.Context, number int) (*domain.Note, error)
}

// Evaluator renders display text for resolved rules.
type Evaluator struct {
	notes NoteSource
}

// New creates an evaluator backed by the given note source.
func New(notes NoteSource) *Evaluator {
	return &Evaluator{notes: notes}
}

// DisplayText returns the canonical output for a rule. Curated
// AnswerText wins verbatim; the computed forms below exist only for rules
// imported without curated text.
func (e *Evaluator) DisplayText(ctx context.Context, rule *domain.FeeRule) (string, error) {
	if rule.AnswerText != "" {
		return rule.AnswerText, nil
	}

	switch rule.Condition {
	case domain.ConditionNoteBased:
		return e.noteText(ctx, rule)
	case domain.ConditionWhicheverHigher:
		return e.whicheverHigher(rule), nil
	case domain.ConditionTiered:
		return e.tiered(rule), nil
	case domain.ConditionFreeUptoN:
		return e.freeUpto(rule), nil
	default:
		return e.plain(rule), nil
	}
}

func (e *Evaluator) noteText(ctx context.Context, rule *domain.FeeRule) (string, error) {
	note, err := e.notes.GetNote(ctx, rule.NoteReference)
	if errors.Is(err, domain.ErrNotFound) {
		slog.Warn("note reference missing from registry",
			"rule_id", rule.ID,
			"note_reference", rule.NoteReference,
		)
		return MissingTextSentinel, nil
	}
	if err != nil {
		return "", fmt.Errorf("note lookup failed: %w", err)
	}
	return fmt.Sprintf("Note Reference: %d — %s", note.Number, note.Text), nil
}

func (e *Evaluator) plain(rule *domain.FeeRule) string {
	switch rule.FeeUnit {
	case domain.UnitCurrency:
		if rule.FeeValue <= 0 {
			return e.missing(rule)
		}
		return fmt.Sprintf("%s %s", money(rule.Currency, rule.FeeValue), basisPhrase(rule.FeeBasis))

	case domain.UnitPercent:
		if rule.FeeValue <= 0 {
			return e.missing(rule)
		}
		text := fmt.Sprintf("%s %s", percent(rule.FeeValue), basisPhrase(rule.FeeBasis))
		return text + capSuffix(rule)

	case domain.UnitCount:
		return fmt.Sprintf("%d %s", int64(rule.FeeValue), basisPhrase(rule.FeeBasis))

	case domain.UnitActualCost:
		return "At actual cost " + basisPhrase(rule.FeeBasis)

	default:
		// TEXT unit with no curated text: nothing computable.
		return e.missing(rule)
	}
}

func (e *Evaluator) whicheverHigher(rule *domain.FeeRule) string {
	if rule.FeeValue <= 0 || rule.MinFee <= 0 {
		return e.missing(rule)
	}
	text := fmt.Sprintf("%s %s or %s, whichever is higher",
		percent(rule.FeeValue), basisPhrase(rule.FeeBasis), money(rule.Currency, rule.MinFee))
	if rule.MaxFee > 0 {
		text += fmt.Sprintf(", maximum %s", money(rule.Currency, rule.MaxFee))
	}
	return text
}

func (e *Evaluator) tiered(rule *domain.FeeRule) string {
	if rule.Tier1Threshold <= 0 || rule.Tier1Rate <= 0 {
		return e.missing(rule)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Up to %s: %s", money(rule.Currency, rule.Tier1Threshold), percent(rule.Tier1Rate))
	if rule.Tier1MaxFee > 0 {
		fmt.Fprintf(&b, " (maximum %s)", money(rule.Currency, rule.Tier1MaxFee))
	}
	fmt.Fprintf(&b, "; above that: %s", percent(rule.Tier2Rate))
	if rule.Tier2MaxFee > 0 {
		fmt.Fprintf(&b, " (maximum %s)", money(rule.Currency, rule.Tier2MaxFee))
	}
	return b.String()
}

func (e *Evaluator) freeUpto(rule *domain.FeeRule) string {
	if rule.FeeValue <= 0 {
		return e.missing(rule)
	}
	text := fmt.Sprintf("Free up to %d %s", int64(rule.FeeValue), basisPhrase(rule.FeeBasis))
	if rule.MaxFee > 0 {
		text += fmt.Sprintf(", then %s %s", money(rule.Currency, rule.MaxFee), basisPhrase(rule.FeeBasis))
	}
	return text
}

func (e *Evaluator) missing(rule *domain.FeeRule) string {
	slog.Warn("rule has no curated text and no computable fee expression",
		"rule_id", rule.ID,
		"charge_type", rule.ChargeType,
	)
	return MissingTextSentinel
}

func basisPhrase(basis domain.FeeBasis) string {
	switch basis {
	case domain.BasisPerTransaction:
		return "per transaction"
	case domain.BasisPerYear:
		return "per year"
	case domain.BasisPerMonth:
		return "per month"
	case domain.BasisPerVisit:
		return "per visit"
	case domain.BasisOnOutstanding:
		return "on outstanding balance"
	case domain.BasisOnAmount:
		return "on amount"
	default:
		return string(basis)
	}
}

func capSuffix(rule *domain.FeeRule) string {
	var parts []string
	if rule.MinFee > 0 {
		parts = append(parts, "minimum "+money(rule.Currency, rule.MinFee))
	}
	if rule.MaxFee > 0 {
		parts = append(parts, "maximum "+money(rule.Currency, rule.MaxFee))
	}
	if len(parts) == 0 {
		return ""
	}
	return ", " + strings.Join(parts, ", ")
}

// money renders "BDT 1,725.00": two decimals, comma-grouped.
func money(currency string, v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)

	intPart, fracPart, _ := strings.Cut(s, ".")
	negative := strings.HasPrefix(intPart, "-")
	if negative {
		intPart = intPart[1:]
	}

	var b strings.Builder
	lead := len(intPart) % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(intPart[i : i+3])
	}

	grouped := b.String()
	if negative {
		grouped = "-" + grouped
	}
	return currency + " " + grouped + "." + fracPart
}

// percent renders a rate in its shortest decimal form. Schedule rates
// carry up to three decimals and fixed-width formatting would round
// 0.575 down to 0.57.
func percent(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "%"
}
