package dealextract

import (
	"context"
	"errors"
	"testing"

	"github.com/joelkehle/dealdesk/internal/llm"
)

const acmeTeaser = "Acme Co. — US SaaS platform. Revenue: $18.5M. EBITDA: $5M. EV: $60M."

type queueCaller struct {
	responses []string
	errs      []error
	calls     int
}

func (q *queueCaller) GenerateJSON(_ context.Context, _ llm.Request) (string, error) {
	i := q.calls
	q.calls++
	var err error
	if i < len(q.errs) {
		err = q.errs[i]
	}
	var resp string
	if i < len(q.responses) {
		resp = q.responses[i]
	}
	return resp, err
}

func TestFallbackExtractAcme(t *testing.T) {
	deal := FallbackExtract(acmeTeaser)

	if deal.Name != "Acme Co." {
		t.Errorf("name = %q, want %q", deal.Name, "Acme Co.")
	}
	if deal.Sector != SectorSoftware {
		t.Errorf("sector = %q, want Software", deal.Sector)
	}
	if deal.Geography != "US" {
		t.Errorf("geography = %q, want US", deal.Geography)
	}
	if deal.Revenue != 18_500_000 {
		t.Errorf("revenue = %v, want 18,500,000", deal.Revenue)
	}
	if deal.Earnings != 5_000_000 {
		t.Errorf("earnings = %v, want 5,000,000", deal.Earnings)
	}
	if deal.TransactionSize != 60_000_000 {
		t.Errorf("transactionSize = %v, want 60,000,000", deal.TransactionSize)
	}
	if len(deal.Uncertainties) != 0 {
		t.Errorf("uncertainties = %v, want none", deal.Uncertainties)
	}
	if deal.Provided.Currency != "USD" {
		t.Errorf("provided currency = %q, want USD", deal.Provided.Currency)
	}
	if deal.Provided.Scale != "million" {
		t.Errorf("provided scale = %q, want million", deal.Provided.Scale)
	}
}

func TestFallbackExtractNoEVKeyword(t *testing.T) {
	deal := FallbackExtract("Beacon Industrial, a US manufacturer. Revenue: $18.5M.")
	if deal.Revenue != 18_500_000 {
		t.Errorf("revenue = %v", deal.Revenue)
	}
	if deal.TransactionSize != 0 {
		t.Errorf("transactionSize = %v, want 0 (no EV keyword)", deal.TransactionSize)
	}
}

func TestFallbackExtractRangeSafety(t *testing.T) {
	deal := FallbackExtract("Project Orchard. Revenue of $50-100M depending on the segment.")
	if deal.Revenue != 0 {
		t.Errorf("revenue = %v, want 0 for a range", deal.Revenue)
	}
	note, ok := deal.Uncertainties["revenue"]
	if !ok || note == "" {
		t.Errorf("uncertainties = %v, want a revenue note", deal.Uncertainties)
	}
}

func TestFallbackExtractSectorConservatism(t *testing.T) {
	deal := FallbackExtract("Project Kestrel. A diversified holding company. Revenue: $8M.")
	if deal.Sector != SectorOther {
		t.Errorf("sector = %q, want Other without sector keywords", deal.Sector)
	}
}

func TestFallbackExtractPronounIsNotGeography(t *testing.T) {
	deal := FallbackExtract("Project Finch. Contact us for details. Revenue: $5M.")
	if deal.Geography != "" {
		t.Errorf("geography = %q, want empty (lowercase \"us\" is a pronoun)", deal.Geography)
	}
}

func TestFallbackExtractBoilerplateTitleSkipped(t *testing.T) {
	deal := FallbackExtract("Confidential Teaser\nAcme Co. is a US software business.\nRevenue: $12M.")
	if deal.Name != "Acme Co." {
		t.Errorf("name = %q, want %q", deal.Name, "Acme Co.")
	}
}

func TestFallbackExtractEmptyText(t *testing.T) {
	deal := FallbackExtract("   ")
	if deal.Name != "Unnamed Company" || deal.Sector != SectorOther {
		t.Errorf("deal = %+v", deal)
	}
}

func TestExtractVerifiedModelPass(t *testing.T) {
	caller := &queueCaller{responses: []string{
		`{"name":"Acme Co.","sector":"Software","geography":"US","revenue":18500000,"earnings":5000000,"transactionSize":60000000,"description":"US SaaS platform."}`,
		`{"supported":true,"unsupported_claims":[]}`,
	}}
	e := NewExtractor(caller)

	deal, err := e.Extract(context.Background(), acmeTeaser)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if deal.Name != "Acme Co." || deal.Revenue != 18_500_000 || deal.TransactionSize != 60_000_000 {
		t.Errorf("deal = %+v", deal)
	}
	if caller.calls != 2 {
		t.Errorf("calls = %d, want extraction + claim check", caller.calls)
	}
}

func TestExtractZeroesInventedNumbers(t *testing.T) {
	// Model invents a revenue figure absent from the text.
	caller := &queueCaller{responses: []string{
		`{"name":"Acme Co.","sector":"Software","geography":"US","revenue":25000000,"earnings":5000000,"transactionSize":60000000,"description":"US SaaS platform."}`,
		`{"supported":true,"unsupported_claims":[]}`,
	}}
	e := NewExtractor(caller)

	deal, err := e.Extract(context.Background(), acmeTeaser)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	// Verification falls back to the value actually resolvable in text.
	if deal.Revenue != 18_500_000 {
		t.Errorf("revenue = %v, want the source-supported 18,500,000", deal.Revenue)
	}
}

func TestExtractRejectsUnrelatedNumberAsSize(t *testing.T) {
	// The founding year appears in the text, but only the value resolved
	// near an enterprise-value keyword may become the transaction size.
	teaser := "Acme Co. — US SaaS platform, founded in 1998. Revenue: $18.5M. EBITDA: $5M. EV: $60M."
	caller := &queueCaller{responses: []string{
		`{"name":"Acme Co.","sector":"Software","geography":"US","revenue":18500000,"earnings":5000000,"transactionSize":1998,"description":"US SaaS platform."}`,
		`{"supported":true,"unsupported_claims":[]}`,
	}}
	e := NewExtractor(caller)

	deal, err := e.Extract(context.Background(), teaser)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if deal.TransactionSize != 60_000_000 {
		t.Errorf("transactionSize = %v, want the resolved 60,000,000", deal.TransactionSize)
	}
}

func TestExtractClaimCheckTriggersFallback(t *testing.T) {
	caller := &queueCaller{responses: []string{
		`{"name":"Acme Co.","sector":"Software","geography":"US","revenue":18500000,"earnings":5000000,"transactionSize":60000000,"description":"Market-leading platform with 40% YoY growth."}`,
		`{"supported":false,"unsupported_claims":["claims 40% YoY growth"]}`,
	}}
	e := NewExtractor(caller)

	deal, err := e.Extract(context.Background(), acmeTeaser)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := FallbackExtract(acmeTeaser)
	if deal.Description != want.Description {
		t.Errorf("description = %q, want fallback %q", deal.Description, want.Description)
	}
}

func TestExtractModelFailureUsesFallback(t *testing.T) {
	caller := &queueCaller{errs: []error{errors.New("status code: 400 bad request")}}
	e := NewExtractor(caller)

	deal, err := e.Extract(context.Background(), acmeTeaser)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if deal.Revenue != 18_500_000 || deal.Sector != SectorSoftware {
		t.Errorf("fallback deal = %+v", deal)
	}
}

func TestExtractClaimCheckTransportErrorKeepsRecord(t *testing.T) {
	caller := &queueCaller{
		responses: []string{
			`{"name":"Acme Co.","sector":"Software","geography":"US","revenue":18500000,"earnings":5000000,"transactionSize":60000000,"description":"US SaaS platform."}`,
			"",
		},
		errs: []error{nil, errors.New("status code: 400 bad request")},
	}
	e := NewExtractor(caller)

	deal, err := e.Extract(context.Background(), acmeTeaser)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if deal.Description != "US SaaS platform." {
		t.Errorf("description = %q, want the sanitized record kept", deal.Description)
	}
}

func TestExtractEmptyInputIsError(t *testing.T) {
	e := NewExtractor(&queueCaller{})
	if _, err := e.Extract(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestDetectGeographyTokens(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{text: "A U.S. based distributor", want: "US"},
		{text: "Operations across Canada and Mexico", want: "Canada"},
		{text: "Headquartered in the United Kingdom", want: "UK"},
		{text: "A German industrial group", want: ""},
		{text: "Serving European mid-market clients", want: "Europe"},
		{text: "an industrial business", want: ""},
		{text: "UK rollout planned", want: "UK"},
		{text: "give us a call", want: ""},
	}
	for _, c := range cases {
		if got := detectGeography(c.text); got != c.want {
			t.Errorf("detectGeography(%q) = %q, want %q", c.text, got, c.want)
		}
	}
}

func TestDeriveName(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{name: "em dash", text: "Acme Co. — US SaaS platform.", want: "Acme Co."},
		{name: "pipe", text: "Beacon Industrial | Investment Opportunity", want: "Beacon Industrial"},
		{name: "sentence lead", text: "Orchard Medical Group is a dental platform.", want: "Orchard Medical Group is a dental platform."},
		{name: "colon", text: "Project Kestrel: carve-out opportunity", want: "Project Kestrel"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := deriveName(c.text, ""); got != c.want {
				t.Errorf("deriveName = %q, want %q", got, c.want)
			}
		})
	}
}
