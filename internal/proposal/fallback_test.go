package proposal

import (
	"math"
	"reflect"
	"testing"
)

func TestFallbackProposal_AmountsConsistent(t *testing.T) {
	in := ProposalInput{
		ProjectTitle:       "ECサイトリニューアル",
		ClientName:         "株式会社テスト",
		ProjectDescription: "既存ECサイトの刷新",
		TechStack:          []string{"Next.js", "Go"},
		Duration:           "3ヶ月",
		Budget:             "〜100万",
		HourlyRate:         5000,
	}

	out := FallbackProposal(in)

	var sum float64
	for _, it := range out.EstimateItems {
		if it.UnitPrice != in.HourlyRate {
			t.Fatalf("unit price: got %v want %v", it.UnitPrice, in.HourlyRate)
		}
		if math.Abs(it.Amount-it.Quantity*it.UnitPrice) > 1e-9 {
			t.Fatalf("item %q: amount %v != quantity %v * unitPrice %v", it.Item, it.Amount, it.Quantity, it.UnitPrice)
		}
		sum += it.Amount
	}
	if math.Abs(out.TotalAmount-sum) > 1e-9 {
		t.Fatalf("totalAmount %v != sum of amounts %v", out.TotalAmount, sum)
	}
}

func TestFallbackProposal_ZeroRate(t *testing.T) {
	out := FallbackProposal(ProposalInput{ProjectTitle: "x", ClientName: "y", ProjectDescription: "z"})
	if out.TotalAmount != 0 {
		t.Fatalf("expected zero total for zero rate, got %v", out.TotalAmount)
	}
	if len(out.EstimateItems) == 0 || len(out.Deliverables) == 0 || len(out.Timeline) == 0 {
		t.Fatalf("narrative sections must not be empty")
	}
}

func TestFallbackProposal_Deterministic(t *testing.T) {
	in := ProposalInput{
		ProjectTitle: "案件A",
		ClientName:   "クライアントB",
		TechStack:    []string{"AWS", "Terraform"},
		HourlyRate:   6000,
	}
	a := FallbackProposal(in)
	b := FallbackProposal(in)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("fallback is not deterministic for identical input")
	}
}

func TestFallbackProposal_PassesOutputValidation(t *testing.T) {
	out := FallbackProposal(ProposalInput{
		ProjectTitle:       "社内ツール",
		ClientName:         "テスト商事",
		ProjectDescription: "在庫管理",
		HourlyRate:         4500,
	})
	if err := validateOutput(out); err != nil {
		t.Fatalf("fallback output must satisfy the output invariants: %v", err)
	}
}
