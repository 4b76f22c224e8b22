package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/joelkehle/dealdesk/internal/outreach"
)

// BuildTearSheet renders the analysis result as a markdown tear sheet
// suitable for the PDF exporter.
func BuildTearSheet(res Result) string {
	var b strings.Builder
	deal := res.Deal

	fmt.Fprintf(&b, "# Deal Tear Sheet: %s\n\n", sanitizeCell(deal.Name))
	fmt.Fprintf(&b, "- Sector: %s\n", deal.Sector)
	if deal.Geography != "" {
		fmt.Fprintf(&b, "- Geography: %s\n", deal.Geography)
	}
	fmt.Fprintf(&b, "- Generated: %s\n\n", time.Now().Format(time.RFC3339))

	fmt.Fprintf(&b, "## Financials\n\n")
	fmt.Fprintf(&b, "| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Revenue | %s |\n", metricCell(deal.Revenue, deal.Uncertainties["revenue"]))
	fmt.Fprintf(&b, "| EBITDA | %s |\n", metricCell(deal.Earnings, deal.Uncertainties["earnings"]))
	fmt.Fprintf(&b, "| Transaction size | %s |\n\n", metricCell(deal.TransactionSize, deal.Uncertainties["transactionSize"]))
	if deal.Provided.Currency != "" {
		fmt.Fprintf(&b, "Figures as stated in %s (%s scale detected).\n\n", deal.Provided.Currency, deal.Provided.Scale)
	}

	fmt.Fprintf(&b, "## Ranked Counterparties\n\n")
	if len(res.Ranked.Matches) == 0 {
		fmt.Fprintf(&b, "No counterparties survived mandate filtering.\n\n")
	} else {
		fmt.Fprintf(&b, "| # | Counterparty | Type | Score | Sector | Geo | Size | Capacity | Activity | Earnings |\n")
		fmt.Fprintf(&b, "|---|---|---|---|---|---|---|---|---|---|\n")
		for i, m := range res.Ranked.Matches {
			f := m.Features
			fmt.Fprintf(&b, "| %d | %s | %s | %.2f | %.2f | %.2f | %.2f | %.2f | %.2f | %.2f |\n",
				i+1, sanitizeCell(m.Counterparty.Name), m.Counterparty.Type, m.Score,
				f.SectorMatch, f.GeoMatch, f.SizeFit, f.CapacityFit, f.ActivityLevel, f.EarningsFit)
		}
		b.WriteString("\n")
		if res.Ranked.ModelVersion != "" {
			fmt.Fprintf(&b, "Scoring model: %s\n\n", res.Ranked.ModelVersion)
		}
	}

	fmt.Fprintf(&b, "## Summary\n\n%s\n\n", res.Narrative.Narrative.Summary)
	if res.Narrative.State == outreach.StateFallback {
		fmt.Fprintf(&b, "> Narrative generated from the deterministic template after guard checks rejected the model output.\n\n")
	}

	for i, d := range res.Narrative.Narrative.Drafts {
		name := d.CounterpartyID
		for _, m := range res.Ranked.Matches {
			if m.Counterparty.ID == d.CounterpartyID {
				name = m.Counterparty.Name
				break
			}
		}
		fmt.Fprintf(&b, "## Outreach Draft %d: %s\n\n", i+1, sanitizeCell(name))
		fmt.Fprintf(&b, "**Subject:** %s\n\n%s\n\n", sanitizeCell(d.Subject), d.Body)
	}

	if len(deal.Uncertainties) > 0 {
		fmt.Fprintf(&b, "## Uncertainties\n\n")
		for metric, note := range deal.Uncertainties {
			fmt.Fprintf(&b, "- %s: %s\n", metric, note)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func metricCell(v float64, note string) string {
	if note != "" {
		return "withheld (" + sanitizeCell(note) + ")"
	}
	if v == 0 {
		return "not stated"
	}
	return outreach.FormatAmount(v)
}

func sanitizeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}
