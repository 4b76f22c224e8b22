// Package claimcheck verifies that generated text makes no claims
// unsupported by its source material. A deterministic numeric check runs
// alongside it; this pass covers fabricated figures as well as the
// claims a regex cannot: invented customers, fabricated growth stories,
// sector assertions absent from the source.
package claimcheck

import (
	"context"
	"fmt"
	"strings"

	"github.com/joelkehle/dealdesk/internal/llm"
)

const systemPrompt = "You are a meticulous fact-check reviewer for M&A deal materials. You compare a candidate text against its source documents and flag every claim the sources do not support. Respond with strict JSON only."

// Result lists the unsupported claims found in a candidate text. An
// empty Claims slice with Supported true means the text passed.
type Result struct {
	Supported bool     `json:"supported"`
	Claims    []string `json:"unsupported_claims"`
}

// Validator runs the claim check through an LLM caller.
type Validator struct {
	exec *llm.Executor
}

func NewValidator(caller llm.Caller) *Validator {
	return &Validator{exec: llm.NewExecutor(caller)}
}

// Check reviews candidate against the structured record and the raw
// source text it was derived from.
func (v *Validator) Check(ctx context.Context, candidate, recordJSON, sourceText string) (Result, llm.AttemptMetrics, error) {
	prompt := buildPrompt(candidate, recordJSON, sourceText)
	var out Result
	metrics, err := v.exec.Run(ctx, "claim-check", llm.Request{
		System:      systemPrompt,
		Prompt:      prompt,
		MaxTokens:   1024,
		Temperature: 0,
	}, &out, func() error { return validateResult(out) })
	if err != nil {
		return Result{}, metrics, err
	}
	return out, metrics, nil
}

func buildPrompt(candidate, recordJSON, sourceText string) string {
	var sb strings.Builder
	sb.WriteString("Candidate text:\n")
	sb.WriteString(candidate)
	sb.WriteString("\n\nStructured record (JSON):\n")
	sb.WriteString(recordJSON)
	sb.WriteString("\n\nOriginal source text:\n")
	sb.WriteString(sourceText)
	sb.WriteString(`

List every claim in the candidate text that neither the structured record nor the source text supports. Paraphrases and reasonable summaries of supported facts are fine; only flag claims that introduce information absent from both sources. Numeric figures that appear in neither source are unsupported claims too.

Schema:
{
  "supported": boolean,
  "unsupported_claims": ["string"]
}

"supported" must be true if and only if "unsupported_claims" is empty.`)
	return sb.String()
}

func validateResult(r Result) error {
	if r.Supported && len(r.Claims) > 0 {
		return fmt.Errorf("supported=true but %d unsupported claims listed", len(r.Claims))
	}
	if !r.Supported && len(r.Claims) == 0 {
		return fmt.Errorf("supported=false requires at least one listed claim")
	}
	for i, c := range r.Claims {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("unsupported_claims[%d] is blank", i)
		}
	}
	return nil
}
