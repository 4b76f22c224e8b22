package dealextract

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/joelkehle/dealdesk/internal/claimcheck"
	"github.com/joelkehle/dealdesk/internal/llm"
)

const extractSystemPrompt = "You are a precise M&A analyst extracting structured fields from a deal teaser. Use only information stated in the text. If a field is absent, use zero or an empty string. Do NOT invent numbers. Respond with strict JSON only."

// Extractor runs the model-assisted extraction path with deterministic
// verification behind it. The zero-dependency fallback path is exposed
// separately as FallbackExtract.
type Extractor struct {
	exec    *llm.Executor
	checker *claimcheck.Validator
}

func NewExtractor(caller llm.Caller) *Extractor {
	return &Extractor{
		exec:    llm.NewExecutor(caller),
		checker: claimcheck.NewValidator(caller),
	}
}

// proposal is the model's first-pass guess before verification.
type proposal struct {
	Name            string  `json:"name"`
	Sector          string  `json:"sector"`
	Geography       string  `json:"geography"`
	Revenue         float64 `json:"revenue"`
	Earnings        float64 `json:"earnings"`
	TransactionSize float64 `json:"transactionSize"`
	Description     string  `json:"description"`
}

// Extract turns raw teaser text into a verified deal record. It never
// fails on model trouble: any generative-path failure falls back to the
// deterministic extractor. Only an empty input is a usage error.
func (e *Extractor) Extract(ctx context.Context, rawText string) (Deal, error) {
	rawText = strings.TrimSpace(rawText)
	if rawText == "" {
		return Deal{}, fmt.Errorf("extract: empty input text")
	}

	var p proposal
	_, err := e.exec.Run(ctx, "deal-extract", llm.Request{
		System:      extractSystemPrompt,
		Prompt:      buildExtractPrompt(rawText),
		MaxTokens:   1024,
		Temperature: 0,
	}, &p, func() error { return validateProposal(p) })
	if err != nil {
		log.Printf("dealextract: model pass failed, using fallback: %v", err)
		return FallbackExtract(rawText), nil
	}

	deal := sanitize(rawText, Deal{
		Name:            p.Name,
		Sector:          p.Sector,
		Geography:       p.Geography,
		Revenue:         p.Revenue,
		Earnings:        p.Earnings,
		TransactionSize: p.TransactionSize,
		Description:     p.Description,
	})

	// Independent claim review of the sanitized record. Only an
	// affirmative list of unsupported claims discards the record; a
	// transport failure here keeps it, since every field has already
	// passed deterministic verification.
	recordJSON, merr := json.Marshal(deal)
	if merr != nil {
		return FallbackExtract(rawText), nil
	}
	result, _, cerr := e.checker.Check(ctx, describeRecord(deal), string(recordJSON), rawText)
	if cerr == nil && !result.Supported {
		log.Printf("dealextract: claim check flagged %d claims, using fallback", len(result.Claims))
		return FallbackExtract(rawText), nil
	}
	return deal, nil
}

func buildExtractPrompt(rawText string) string {
	return fmt.Sprintf(`Extract the deal fields from this teaser text.

Teaser:
%s

Schema:
{
  "name": "company name as written",
  "sector": "one of: Software, Healthcare, Manufacturing, Business Services, Consumer, Other",
  "geography": "primary geography as written, or empty",
  "revenue": number (full units, 0 if absent),
  "earnings": number (EBITDA or closest stated earnings metric, full units, 0 if absent),
  "transactionSize": number (enterprise/transaction value, full units, 0 if absent),
  "description": "one or two sentences summarizing the business, using only stated facts"
}

Every number must appear in the teaser (allowing scale suffixes like M or crore). If a metric is given as a range, use 0.`, rawText)
}

func validateProposal(p proposal) error {
	if !ValidSector(p.Sector) {
		return fmt.Errorf("sector %q is not in the enumeration", p.Sector)
	}
	for name, v := range map[string]float64{
		"revenue":         p.Revenue,
		"earnings":        p.Earnings,
		"transactionSize": p.TransactionSize,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

// describeRecord renders the record as short prose for the claim
// reviewer, which compares statements rather than raw JSON.
func describeRecord(d Deal) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s is a %s company", d.Name, strings.ToLower(d.Sector))
	if d.Geography != "" {
		fmt.Fprintf(&sb, " based in the %s", d.Geography)
	}
	sb.WriteString(".")
	if d.Revenue > 0 {
		fmt.Fprintf(&sb, " Revenue is %.0f.", d.Revenue)
	}
	if d.Earnings > 0 {
		fmt.Fprintf(&sb, " Earnings are %.0f.", d.Earnings)
	}
	if d.TransactionSize > 0 {
		fmt.Fprintf(&sb, " The transaction size is %.0f.", d.TransactionSize)
	}
	if d.Description != "" {
		sb.WriteString(" " + d.Description)
	}
	return sb.String()
}

// FallbackExtract is the deterministic extraction path: keyword scans
// and numeric resolution only, no model involved. It always succeeds.
func FallbackExtract(rawText string) Deal {
	rawText = strings.TrimSpace(rawText)
	if rawText == "" {
		return Deal{Name: "Unnamed Company", Sector: SectorOther, Provided: ProvidedAudit{Scale: "unit"}}
	}
	return sanitize(rawText, Deal{})
}
