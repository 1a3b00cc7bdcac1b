package feeval

import (
	"context"
	"testing"

	"github.com/openbk/tariff/internal/domain"
)

type fakeNotes struct {
	notes map[int]*domain.Note
}

func (f *fakeNotes) GetNote(_ context.Context, number int) (*domain.Note, error) {
	note, ok := f.notes[number]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return note, nil
}

func newTestEvaluator() *Evaluator {
	return New(&fakeNotes{notes: map[int]*domain.Note{
		7: {Number: 7, Text: "Waived for the first year for payroll account holders."},
	}})
}

func TestDisplayText(t *testing.T) {
	e := newTestEvaluator()
	ctx := context.Background()

	t.Run("AnswerTextWinsVerbatim", func(t *testing.T) {
		rule := &domain.FeeRule{
			AnswerText: "BDT 4,600.00 per year",
			FeeValue:   9999, // must be ignored
			FeeUnit:    domain.UnitCurrency,
			FeeBasis:   domain.BasisPerYear,
			Currency:   "BDT",
		}
		got, err := e.DisplayText(ctx, rule)
		if err != nil {
			t.Fatalf("DisplayText failed: %v", err)
		}
		if got != "BDT 4,600.00 per year" {
			t.Errorf("curated text must pass through unchanged, got %q", got)
		}
	})

	t.Run("PlainCurrency", func(t *testing.T) {
		rule := &domain.FeeRule{
			FeeValue: 1725, FeeUnit: domain.UnitCurrency,
			FeeBasis: domain.BasisPerYear, Currency: "BDT",
			Condition: domain.ConditionNone,
		}
		got, err := e.DisplayText(ctx, rule)
		if err != nil {
			t.Fatalf("DisplayText failed: %v", err)
		}
		if got != "BDT 1,725.00 per year" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("PercentWithCaps", func(t *testing.T) {
		rule := &domain.FeeRule{
			FeeValue: 2.5, FeeUnit: domain.UnitPercent,
			FeeBasis: domain.BasisOnAmount, Currency: "BDT",
			MinFee: 575, MaxFee: 17250,
			Condition: domain.ConditionNone,
		}
		got, err := e.DisplayText(ctx, rule)
		if err != nil {
			t.Fatalf("DisplayText failed: %v", err)
		}
		want := "2.5% on amount, minimum BDT 575.00, maximum BDT 17,250.00"
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("WhicheverHigher", func(t *testing.T) {
		rule := &domain.FeeRule{
			FeeValue: 2.5, FeeUnit: domain.UnitPercent,
			FeeBasis: domain.BasisOnAmount, Currency: "BDT",
			MinFee:    575,
			Condition: domain.ConditionWhicheverHigher,
		}
		got, err := e.DisplayText(ctx, rule)
		if err != nil {
			t.Fatalf("DisplayText failed: %v", err)
		}
		want := "2.5% on amount or BDT 575.00, whichever is higher"
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("Tiered", func(t *testing.T) {
		rule := &domain.FeeRule{
			Currency:       "BDT",
			Condition:      domain.ConditionTiered,
			Tier1Threshold: 5000000, Tier1Rate: 0.575, Tier1MaxFee: 17250,
			Tier2Rate: 0.345, Tier2MaxFee: 23000,
		}
		got, err := e.DisplayText(ctx, rule)
		if err != nil {
			t.Fatalf("DisplayText failed: %v", err)
		}
		want := "Up to BDT 5,000,000.00: 0.575% (maximum BDT 17,250.00); above that: 0.345% (maximum BDT 23,000.00)"
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("FreeUptoN", func(t *testing.T) {
		rule := &domain.FeeRule{
			FeeValue: 2, FeeUnit: domain.UnitCount,
			FeeBasis: domain.BasisPerVisit, Currency: "BDT",
			MaxFee:    230,
			Condition: domain.ConditionFreeUptoN,
		}
		got, err := e.DisplayText(ctx, rule)
		if err != nil {
			t.Fatalf("DisplayText failed: %v", err)
		}
		want := "Free up to 2 per visit, then BDT 230.00 per visit"
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("ActualCost", func(t *testing.T) {
		rule := &domain.FeeRule{
			FeeUnit:   domain.UnitActualCost,
			FeeBasis:  domain.BasisPerTransaction,
			Condition: domain.ConditionNone,
		}
		got, err := e.DisplayText(ctx, rule)
		if err != nil {
			t.Fatalf("DisplayText failed: %v", err)
		}
		if got != "At actual cost per transaction" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("NoteBased", func(t *testing.T) {
		rule := &domain.FeeRule{
			Condition:     domain.ConditionNoteBased,
			NoteReference: 7,
		}
		got, err := e.DisplayText(ctx, rule)
		if err != nil {
			t.Fatalf("DisplayText failed: %v", err)
		}
		want := "Note Reference: 7 — Waived for the first year for payroll account holders."
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("MissingNoteYieldsSentinel", func(t *testing.T) {
		rule := &domain.FeeRule{
			Condition:     domain.ConditionNoteBased,
			NoteReference: 42,
		}
		got, err := e.DisplayText(ctx, rule)
		if err != nil {
			t.Fatalf("DisplayText failed: %v", err)
		}
		if got != MissingTextSentinel {
			t.Errorf("expected sentinel, got %q", got)
		}
	})

	t.Run("NoTextNoExpressionYieldsSentinel", func(t *testing.T) {
		cases := []*domain.FeeRule{
			{FeeUnit: domain.UnitText, Condition: domain.ConditionNone},
			{FeeUnit: domain.UnitCurrency, FeeValue: 0, Condition: domain.ConditionNone},
			{FeeUnit: domain.UnitPercent, FeeValue: 0, Condition: domain.ConditionNone},
			{Condition: domain.ConditionTiered},
			{Condition: domain.ConditionWhicheverHigher},
		}
		for i, rule := range cases {
			got, err := e.DisplayText(ctx, rule)
			if err != nil {
				t.Fatalf("case %d: DisplayText failed: %v", i, err)
			}
			if got != MissingTextSentinel {
				t.Errorf("case %d: expected sentinel, got %q", i, got)
			}
		}
	})
}

func TestMoneyFormatting(t *testing.T) {
	cases := []struct {
		value float64
		want  string
	}{
		{0.5, "BDT 0.50"},
		{575, "BDT 575.00"},
		{1725, "BDT 1,725.00"},
		{17250, "BDT 17,250.00"},
		{5000000, "BDT 5,000,000.00"},
		{1234567.89, "BDT 1,234,567.89"},
	}
	for _, tc := range cases {
		got := money("BDT", tc.value)
		if got != tc.want {
			t.Errorf("money(%v) = %q, want %q", tc.value, got, tc.want)
		}
	}
}

func TestPercentFormatting(t *testing.T) {
	cases := []struct {
		value float64
		want  string
	}{
		{15, "15%"},
		{2.5, "2.5%"},
		{0.575, "0.575%"},
		{0.345, "0.345%"},
	}
	for _, tc := range cases {
		got := percent(tc.value)
		if got != tc.want {
			t.Errorf("percent(%v) = %q, want %q", tc.value, got, tc.want)
		}
	}
}
