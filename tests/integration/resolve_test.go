//go:build integration
// +build integration

// Package integration provides end-to-end tests against a running tariffd
// instance.
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// The tests seed their own rules through POST /rules, so they need a
// server started against an empty database:
//
//	rm -f tariff.db && ./tariffd &
//	TARIFF_TEST_URL=http://localhost:8080 go test -tags=integration ./tests/integration/...
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

func baseURL() string {
	if url := os.Getenv("TARIFF_TEST_URL"); url != "" {
		return url
	}
	return "http://localhost:8080"
}

type resolveRequest struct {
	AsOfDate            string            `json:"as_of_date,omitempty"`
	ChargeType          string            `json:"charge_type"`
	ProductDimensions   productDimensions `json:"product_dimensions"`
	SessionID           string            `json:"session_id,omitempty"`
	ClarificationAnswer string            `json:"clarification_answer,omitempty"`
}

type productDimensions struct {
	Category      string `json:"category,omitempty"`
	Network       string `json:"network,omitempty"`
	Product       string `json:"product,omitempty"`
	ChargeContext string `json:"charge_context,omitempty"`
}

type resolveResponse struct {
	Status      string `json:"status"`
	DisplayText string `json:"display_text"`
	PromptText  string `json:"prompt_text"`
	SessionID   string `json:"session_id"`
	Message     string `json:"message"`
	Options     []struct {
		Label string `json:"label"`
	} `json:"options"`
}

func post(t *testing.T, path string, body any) (*http.Response, []byte) {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(baseURL()+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("request to %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	return resp, respBody
}

func resolve(t *testing.T, path string, req resolveRequest) resolveResponse {
	t.Helper()

	resp, body := post(t, path, req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from %s, got %d: %s", path, resp.StatusCode, string(body))
	}

	var result resolveResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("failed to unmarshal response: %v (body: %s)", err, string(body))
	}
	return result
}

func seedRule(t *testing.T, rule map[string]any) {
	t.Helper()

	resp, body := post(t, "/rules", rule)
	// 409 means a previous run already seeded this rule; fine.
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusConflict {
		t.Fatalf("failed to seed rule: %d: %s", resp.StatusCode, string(body))
	}
}

func seedSchedule(t *testing.T) {
	for i, rule := range []map[string]any{
		{"family": "CARD", "chargeType": "ANNUAL_FEE",
			"category": "CREDIT", "network": "VISA", "product": "Platinum",
			"feeValue": 4600, "feeUnit": "CURRENCY", "feeBasis": "PER_YEAR",
			"answerText": "BDT 4,600.00 per year"},
		{"family": "CARD", "chargeType": "ANNUAL_FEE",
			"category": "CREDIT", "network": "VISA", "product": "Classic",
			"feeValue": 1725, "feeUnit": "CURRENCY", "feeBasis": "PER_YEAR",
			"answerText": "BDT 1,725.00 per year"},
		{"family": "RETAIL_ASSET", "chargeType": "PROCESSING_FEE",
			"product": "Personal Loan", "chargeContext": "ON_ENHANCED_AMOUNT",
			"feeValue": 0.5, "feeUnit": "PERCENT", "feeBasis": "ON_AMOUNT",
			"answerText": "0.50% on the enhanced amount"},
	} {
		rule["id"] = fmt.Sprintf("it-seed-%d", i)
		rule["effectiveFrom"] = "2024-01-01T00:00:00Z"
		seedRule(t, rule)
	}
}

func TestCardFeeRoundTrip(t *testing.T) {
	seedSchedule(t)

	// Turn one: ambiguous, two products carry an annual fee.
	first := resolve(t, "/fees/calculate", resolveRequest{
		AsOfDate:   "2025-06-01",
		ChargeType: "ANNUAL_FEE",
		ProductDimensions: productDimensions{
			Category: "CREDIT", Network: "VISA",
		},
	})
	if first.Status != "NEEDS_DISAMBIGUATION" {
		t.Fatalf("expected NEEDS_DISAMBIGUATION, got %s", first.Status)
	}
	if first.SessionID == "" {
		t.Fatal("expected a session id")
	}
	if !strings.Contains(first.PromptText, "Platinum") {
		t.Errorf("prompt must name the candidates: %q", first.PromptText)
	}

	// Turn two: clarification picks one product.
	second := resolve(t, "/fees/calculate", resolveRequest{
		AsOfDate:            "2025-06-01",
		ChargeType:          "ANNUAL_FEE",
		ProductDimensions:   productDimensions{Category: "CREDIT", Network: "VISA"},
		SessionID:           first.SessionID,
		ClarificationAnswer: "Platinum",
	})
	if second.Status != "FOUND" {
		t.Fatalf("expected FOUND, got %s", second.Status)
	}
	if second.DisplayText != "BDT 4,600.00 per year" {
		t.Errorf("expected exact schedule text, got %q", second.DisplayText)
	}

	t.Logf("round trip resolved: %s", second.DisplayText)
}

func TestLimitEnhancementFallback(t *testing.T) {
	seedSchedule(t)

	// No LIMIT_ENHANCEMENT_FEE rule exists; the engine falls back to the
	// processing fee in the ON_ENHANCED_AMOUNT context.
	result := resolve(t, "/retail-asset-charges/query", resolveRequest{
		AsOfDate:   "2025-06-01",
		ChargeType: "LIMIT_ENHANCEMENT_FEE",
		ProductDimensions: productDimensions{
			Product: "Personal Loan",
		},
	})
	if result.Status != "FOUND" {
		t.Fatalf("expected FOUND via fallback, got %s", result.Status)
	}
	if result.DisplayText != "0.50% on the enhanced amount" {
		t.Errorf("unexpected display text: %q", result.DisplayText)
	}
}

func TestUnknownChargeType(t *testing.T) {
	result := resolve(t, "/fees/calculate", resolveRequest{
		AsOfDate:   "2025-06-01",
		ChargeType: "SKY_DIVING_FEE",
		ProductDimensions: productDimensions{
			Category: "CREDIT", Network: "VISA", Product: "Classic",
		},
	})
	if result.Status != "NO_RULE_FOUND" {
		t.Fatalf("expected NO_RULE_FOUND, got %s", result.Status)
	}
	if result.DisplayText != "" {
		t.Errorf("engine must never invent an answer: %q", result.DisplayText)
	}
	if result.Message == "" {
		t.Error("expected an explanatory message")
	}
}

func TestOverlapAudit(t *testing.T) {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL() + "/integrity/overlaps")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var audit struct {
		OverlappingPairs int  `json:"overlapping_pairs"`
		OK               bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&audit); err != nil {
		t.Fatalf("failed to decode audit: %v", err)
	}
	if !audit.OK {
		t.Errorf("overlap audit reports %d overlapping pairs", audit.OverlappingPairs)
	}
}
