package proposal

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math"
	"time"

	"github.com/teianlab/teian-api/internal/ai"
)

// Generator turns a ProposalInput into a ProposalOutput. It never fails:
// a nil provider, a provider error, a timeout, or unusable model output all
// degrade to the deterministic fallback.
type Generator struct {
	provider ai.Provider // nil means "no credential configured": always fall back
	timeout  time.Duration
}

func NewGenerator(provider ai.Provider, timeout time.Duration) *Generator {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Generator{provider: provider, timeout: timeout}
}

// Generate produces a usable output for any input. The second return reports
// whether the LLM output was used (false = fallback).
func (g *Generator) Generate(ctx context.Context, in ProposalInput) (ProposalOutput, bool) {
	if g.provider == nil {
		return FallbackProposal(in), false
	}

	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	system, user := BuildProposalPrompts(in)
	text, err := g.provider.Chat(cctx, system, []ai.Message{{Role: "user", Content: user}})
	if err != nil {
		log.Printf("generate: provider error, using fallback: %v", err)
		return FallbackProposal(in), false
	}

	out, err := parseProposalJSON(text)
	if err != nil {
		log.Printf("generate: unusable model output, using fallback: %v", err)
		return FallbackProposal(in), false
	}
	return out, true
}

// parseProposalJSON extracts the first balanced {...} span from the model's
// free-form text (tolerant of commentary and markdown fences despite the
// JSON-only instruction), decodes it, and checks the same invariants the
// fallback guarantees.
func parseProposalJSON(text string) (ProposalOutput, error) {
	span, ok := firstJSONObject(text)
	if !ok {
		return ProposalOutput{}, errors.New("no JSON object found")
	}

	var out ProposalOutput
	if err := json.Unmarshal([]byte(span), &out); err != nil {
		return ProposalOutput{}, err
	}
	if err := validateOutput(out); err != nil {
		return ProposalOutput{}, err
	}
	return out, nil
}

// firstJSONObject returns the first balanced top-level {...} span, tracking
// string literals and escapes so braces inside values don't break matching.
func firstJSONObject(s string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			if start >= 0 {
				inString = true
			}
		case '{':
			if start < 0 {
				start = i
			}
			depth++
		case '}':
			if start < 0 {
				continue
			}
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

const amountTolerance = 0.01

// validateOutput enforces the output invariants on model-produced data:
// required narrative fields, non-empty lists, amount == quantity*unitPrice
// per item, and totalAmount == sum(amounts).
func validateOutput(out ProposalOutput) error {
	if out.Summary == "" || out.Scope == "" {
		return errors.New("missing summary or scope")
	}
	if len(out.Deliverables) == 0 {
		return errors.New("empty deliverables")
	}
	if len(out.Timeline) == 0 {
		return errors.New("empty timeline")
	}
	if len(out.EstimateItems) == 0 {
		return errors.New("empty estimate items")
	}

	var sum float64
	for _, it := range out.EstimateItems {
		if it.Item == "" {
			return errors.New("estimate item without name")
		}
		if it.Quantity < 0 || it.UnitPrice < 0 {
			return errors.New("negative quantity or unit price")
		}
		if math.Abs(it.Amount-it.Quantity*it.UnitPrice) > amountTolerance {
			return errors.New("item amount does not equal quantity * unitPrice")
		}
		sum += it.Amount
	}
	if math.Abs(out.TotalAmount-sum) > amountTolerance {
		return errors.New("totalAmount does not equal sum of item amounts")
	}
	return nil
}
