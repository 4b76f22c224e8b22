package dealextract

import (
	"strings"

	"github.com/joelkehle/dealdesk/internal/moneytext"
)

// detectSector returns the first sector whose keyword list has a hit in
// the text, or SectorOther.
func detectSector(text string) string {
	lower := strings.ToLower(text)
	for _, sector := range sectorOrder {
		if sectorKeywordPresent(lower, sector) {
			return sector
		}
	}
	return SectorOther
}

func sectorKeywordPresent(lowerText, sector string) bool {
	for _, kw := range sectorKeywords[sector] {
		if containsToken(lowerText, kw) {
			return true
		}
	}
	return false
}

// detectGeography scans for allow-listed geography tokens and returns
// the canonical geography of the earliest hit, or empty. Short
// uppercase tokens ("US", "UK", "USA") must appear uppercase in the
// source so the pronoun "us" never reads as a geography.
func detectGeography(text string) string {
	lower := strings.ToLower(text)
	bestIdx := -1
	best := ""
	for token, canonical := range geographyTokens {
		idx := findToken(lower, token)
		if idx < 0 {
			continue
		}
		if uppercaseOnly(token) && text[idx:idx+len(token)] != strings.ToUpper(token) {
			continue
		}
		if bestIdx < 0 || idx < bestIdx {
			bestIdx = idx
			best = canonical
		}
	}
	return best
}

func uppercaseOnly(token string) bool {
	switch token {
	case "us", "usa", "uk":
		return true
	}
	return false
}

// containsToken reports whether the token appears in the text on word
// boundaries. Both arguments must already be lowercased.
func containsToken(lowerText, token string) bool {
	return findToken(lowerText, token) >= 0
}

func findToken(lowerText, token string) int {
	from := 0
	for {
		rel := strings.Index(lowerText[from:], token)
		if rel < 0 {
			return -1
		}
		idx := from + rel
		from = idx + 1
		if idx > 0 && isWordChar(lowerText[idx-1]) {
			continue
		}
		end := idx + len(token)
		if end < len(lowerText) && isWordChar(lowerText[end]) {
			continue
		}
		return idx
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// metricResolutions is the deterministic view of the three monetary
// metrics in a source text.
type metricResolutions struct {
	revenue  moneytext.Resolution
	earnings moneytext.Resolution
	size     moneytext.Resolution
}

func resolveMetrics(text string) metricResolutions {
	return metricResolutions{
		revenue:  moneytext.ResolveMetric(text, revenueKeywords),
		earnings: moneytext.ResolveMetric(text, earningsKeywords),
		size:     moneytext.ResolveMetric(text, sizeKeywords),
	}
}

// sanitize verifies every field of a proposed deal against the source
// text and returns a record that honors the provenance invariant.
func sanitize(text string, proposed Deal) Deal {
	res := resolveMetrics(text)
	out := Deal{
		Name:        deriveName(text, proposed.Name),
		Description: strings.TrimSpace(proposed.Description),
	}
	if out.Description == "" {
		out.Description = condense(text)
	}

	lower := strings.ToLower(text)
	if ValidSector(proposed.Sector) && proposed.Sector != SectorOther && sectorKeywordPresent(lower, proposed.Sector) {
		out.Sector = proposed.Sector
	} else {
		out.Sector = detectSector(text)
	}

	// The model's geography proposal is never trusted directly; only
	// the allow-listed token scan decides.
	out.Geography = detectGeography(text)

	out.Revenue, out.Uncertainties = sanitizeMetric(text, "revenue", proposed.Revenue, res.revenue, out.Uncertainties)
	out.Earnings, out.Uncertainties = sanitizeMetric(text, "earnings", proposed.Earnings, res.earnings, out.Uncertainties)
	out.TransactionSize, out.Uncertainties = sanitizeSize(proposed.TransactionSize, res.size, out.Uncertainties)
	out.TransactionSize = guardTransactionSize(out.TransactionSize, out.Revenue, out.Earnings, res.size)

	out.Provided = detectProvided(text, res)
	return out
}

// sanitizeMetric keeps a proposed value only when the source supports
// it. A detected range takes priority: the value is withheld with a
// note even when the model proposed an endpoint.
func sanitizeMetric(text, metric string, proposed float64, res moneytext.Resolution, notes map[string]string) (float64, map[string]string) {
	if res.Uncertain {
		if notes == nil {
			notes = map[string]string{}
		}
		notes[metric] = res.Note
		return 0, notes
	}
	if proposed != 0 && moneytext.Supports(text, proposed) {
		return proposed, notes
	}
	if res.Found {
		return res.Amount.Value, notes
	}
	return 0, notes
}

// sanitizeSize ties the transaction size to the value resolved near an
// enterprise-value keyword. A bare match elsewhere in the text is not
// enough; the proposal survives only when it restates that value, so a
// founding year or an unrelated figure can never pass as the size.
func sanitizeSize(proposed float64, res moneytext.Resolution, notes map[string]string) (float64, map[string]string) {
	if res.Uncertain {
		if notes == nil {
			notes = map[string]string{}
		}
		notes["transactionSize"] = res.Note
		return 0, notes
	}
	if !res.Found {
		return 0, notes
	}
	if proposed != 0 && moneytext.SupportsAmount(proposed, res.Amount) {
		return proposed, notes
	}
	return res.Amount.Value, notes
}

// guardTransactionSize applies the two extra rules for the transaction
// size: it must sit near an enterprise-value-style keyword, and it must
// not simply repeat revenue or earnings.
func guardTransactionSize(size, revenue, earnings float64, sizeRes moneytext.Resolution) float64 {
	if size == 0 {
		return 0
	}
	if !sizeRes.Found {
		return 0
	}
	if size == revenue && revenue != 0 {
		return 0
	}
	if size == earnings && earnings != 0 {
		return 0
	}
	return size
}

func detectProvided(text string, res metricResolutions) ProvidedAudit {
	audit := ProvidedAudit{
		Currency: moneytext.DetectCurrency(text),
		Scale:    moneytext.ScaleUnit,
	}
	for _, r := range []moneytext.Resolution{res.revenue, res.earnings, res.size} {
		if r.Found && r.Amount.Scale != moneytext.ScaleUnit {
			audit.Scale = r.Amount.Scale
			break
		}
	}
	return audit
}

var nameSeparators = []string{" — ", " – ", " - ", " | ", ":"}

// deriveName produces the company name: the model's proposal when the
// source actually contains it, otherwise the lead of the first
// non-boilerplate line.
func deriveName(text, proposed string) string {
	proposed = strings.TrimSpace(proposed)
	if proposed != "" && strings.Contains(strings.ToLower(text), strings.ToLower(proposed)) && !isBoilerplateTitle(proposed) {
		return proposed
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isBoilerplateTitle(line) {
			continue
		}
		return nameFromLine(line)
	}
	return "Unnamed Company"
}

func nameFromLine(line string) string {
	cut := len(line)
	for _, sep := range nameSeparators {
		if i := strings.Index(line, sep); i >= 0 && i < cut {
			cut = i
		}
	}
	name := strings.TrimSpace(line[:cut])
	if i := strings.Index(name, ". "); i >= 0 {
		name = name[:i+1]
	}
	if len(name) > 80 {
		name = strings.TrimSpace(name[:80])
	}
	if name == "" {
		return "Unnamed Company"
	}
	return name
}

// condense flattens source text into a short single-line description.
func condense(text string) string {
	fields := strings.Fields(text)
	s := strings.Join(fields, " ")
	const max = 480
	if len(s) > max {
		if i := strings.LastIndex(s[:max], " "); i > 0 {
			s = s[:i]
		} else {
			s = s[:max]
		}
	}
	return s
}
