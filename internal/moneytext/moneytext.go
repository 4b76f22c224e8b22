// Package moneytext resolves numeric money mentions in unstructured deal
// text: currency markers, scale suffixes (thousand through trillion plus
// lakh/crore), tabulated full-precision values, and ranges.
package moneytext

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Scale names attached to a resolved amount. ScaleUnit marks a value that
// was already tabulated in full precision (no suffix in the source).
const (
	ScaleUnit     = "unit"
	ScaleThousand = "thousand"
	ScaleLakh     = "lakh"
	ScaleMillion  = "million"
	ScaleCrore    = "crore"
	ScaleBillion  = "billion"
	ScaleTrillion = "trillion"
)

var scaleMultipliers = map[string]float64{
	ScaleUnit:     1,
	ScaleThousand: 1e3,
	ScaleLakh:     1e5,
	ScaleMillion:  1e6,
	ScaleCrore:    1e7,
	ScaleBillion:  1e9,
	ScaleTrillion: 1e12,
}

var suffixScales = map[string]string{
	"k": ScaleThousand, "thousand": ScaleThousand,
	"lakh": ScaleLakh, "lakhs": ScaleLakh, "lac": ScaleLakh,
	"m": ScaleMillion, "mm": ScaleMillion, "mn": ScaleMillion, "million": ScaleMillion,
	"cr": ScaleCrore, "crore": ScaleCrore, "crores": ScaleCrore,
	"b": ScaleBillion, "bn": ScaleBillion, "billion": ScaleBillion,
	"t": ScaleTrillion, "tn": ScaleTrillion, "trillion": ScaleTrillion,
}

var currencyCodes = map[string]string{
	"$": "USD", "usd": "USD", "us$": "USD",
	"€": "EUR", "eur": "EUR",
	"£": "GBP", "gbp": "GBP",
	"₹": "INR", "inr": "INR", "rs": "INR", "rs.": "INR",
	"c$": "CAD", "cad": "CAD",
}

// Multiplier returns the full-unit multiplier for a scale name.
func Multiplier(scale string) float64 {
	if m, ok := scaleMultipliers[scale]; ok {
		return m
	}
	return 1
}

// Amount is one money mention expanded to full units.
type Amount struct {
	Value    float64
	Base     float64
	Scale    string
	Currency string
}

// Resolution is the outcome of resolving one metric keyword against a
// text window. Uncertain resolutions carry a note instead of a value.
type Resolution struct {
	Amount
	Found     bool
	Uncertain bool
	Note      string
}

var amountRe = regexp.MustCompile(`(?i)([$€£₹]|us\$|c\$|usd|eur|gbp|inr|rs\.?)?\s*([0-9][0-9,]*(?:\.[0-9]+)?)\s*(thousand|million|billion|trillion|lakhs?|lac|crores?|mm|mn|bn|tn|cr|k|m|b|t)?\b`)

// Dash/"to" separated ranges, and "between X and Y" phrasing. The "and"
// separator only counts with the "between" prefix: two amounts joined by
// a bare "and" is ordinary prose, not a range.
var (
	rangeDashRe    = regexp.MustCompile(`(?i)([$€£₹]|usd|eur|gbp|inr)?\s*([0-9][0-9,]*(?:\.[0-9]+)?)\s*(thousand|million|billion|trillion|mm|mn|bn|k|m|b)?\s*(?:[-–—]|\bto\b)\s*([$€£₹]|usd|eur|gbp|inr)?\s*([0-9][0-9,]*(?:\.[0-9]+)?)\s*(thousand|million|billion|trillion|mm|mn|bn|k|m|b)?\b`)
	rangeBetweenRe = regexp.MustCompile(`(?i)\bbetween\s+([$€£₹]|usd|eur|gbp|inr)?\s*([0-9][0-9,]*(?:\.[0-9]+)?)\s*(thousand|million|billion|trillion|mm|mn|bn|k|m|b)?\s+and\s+([$€£₹]|usd|eur|gbp|inr)?\s*([0-9][0-9,]*(?:\.[0-9]+)?)\s*(thousand|million|billion|trillion|mm|mn|bn|k|m|b)?\b`)
)

// ParseAmount parses a single money mention. It returns false when the
// string holds no parseable number, or when a thousand-style suffix
// appears without any currency marker (bare "500k" style tokens are too
// often list numerals or non-monetary counts).
func ParseAmount(raw string) (Amount, bool) {
	m := amountRe.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return Amount{}, false
	}
	return amountFromParts(m[1], m[2], m[3])
}

func amountFromParts(currencyTok, numberTok, suffixTok string) (Amount, bool) {
	base, err := strconv.ParseFloat(strings.ReplaceAll(numberTok, ",", ""), 64)
	if err != nil || math.IsNaN(base) || math.IsInf(base, 0) {
		return Amount{}, false
	}
	currency := ""
	if currencyTok != "" {
		currency = currencyCodes[strings.ToLower(strings.TrimSpace(currencyTok))]
	}
	scale := ScaleUnit
	if suffixTok != "" {
		scale = suffixScales[strings.ToLower(suffixTok)]
		if scale == "" {
			scale = ScaleUnit
		}
	}
	if scale == ScaleThousand && currency == "" {
		return Amount{}, false
	}
	return Amount{
		Value:    base * Multiplier(scale),
		Base:     base,
		Scale:    scale,
		Currency: currency,
	}, true
}

// mention is an amount with its position in the source text.
type mention struct {
	Amount
	start, end int
	inTable    bool
}

func scanMentions(text string) []mention {
	lineIsTable := tableLineMap(text)
	var out []mention
	for _, loc := range amountRe.FindAllStringSubmatchIndex(text, -1) {
		cur, num, suf := group(text, loc, 1), group(text, loc, 2), group(text, loc, 3)
		a, ok := amountFromParts(cur, num, suf)
		if !ok {
			continue
		}
		m := mention{Amount: a, start: loc[0], end: loc[1], inTable: lineIsTable[lineIndexAt(text, loc[0])]}
		if m.inTable && m.Scale == ScaleUnit {
			// Tabulated suffix-less values are already full precision.
			m.Value = m.Base
		}
		out = append(out, m)
	}
	return out
}

func group(text string, loc []int, n int) string {
	if loc[2*n] < 0 {
		return ""
	}
	return text[loc[2*n]:loc[2*n+1]]
}

func tableLineMap(text string) []bool {
	lines := strings.Split(text, "\n")
	out := make([]bool, len(lines))
	for i, line := range lines {
		out[i] = strings.Count(line, "|") >= 2 || strings.Count(line, "\t") >= 2
	}
	return out
}

func lineIndexAt(text string, pos int) int {
	return strings.Count(text[:pos], "\n")
}

// sameSegment reports whether no sentence boundary separates the two
// spans: a period followed by whitespace, a semicolon, or a newline.
func sameSegment(text string, a, b int) bool {
	if a > b {
		a, b = b, a
	}
	between := text[a:b]
	if strings.ContainsAny(between, ";\n") {
		return false
	}
	for i := 0; i < len(between)-1; i++ {
		if between[i] == '.' && (between[i+1] == ' ' || between[i+1] == '\t') {
			return false
		}
	}
	return true
}

const (
	forwardReach  = 96
	backwardReach = 24
)

// ResolveMetric finds the best-supported amount for a metric named by any
// of the given keywords. Values sitting inside a delimited table line win
// over narrative sentence matches; a table value with no suffix is taken
// as already-full-precision (scale "unit"). Among suffixed narrative
// candidates for the same keyword the largest expanded value wins. A
// range near the keyword short-circuits into an uncertain resolution:
// picking either endpoint would fabricate a point value.
func ResolveMetric(text string, keywords []string) Resolution {
	lower := strings.ToLower(text)
	mentions := scanMentions(text)

	for _, kw := range keywords {
		kwLower := strings.ToLower(kw)
		var best Resolution
		from := 0
		for {
			rel := strings.Index(lower[from:], kwLower)
			if rel < 0 {
				break
			}
			idx := from + rel
			from = idx + len(kwLower)
			// Short keywords like "ev" must not fire inside words.
			if !wordBoundary(lower, idx, len(kwLower)) {
				continue
			}

			if r := rangeNear(text, idx, len(kw)); r.Uncertain {
				return r
			}
			for _, m := range mentions {
				if !near(idx, len(kw), m) {
					continue
				}
				// Table rows associate within their own line; narrative
				// mentions within their own sentence.
				if m.inTable && lineIndexAt(text, m.start) != lineIndexAt(text, idx) {
					continue
				}
				if !m.inTable && !sameSegment(text, idx, m.start) {
					continue
				}
				// Narrative bare numbers with no suffix and no
				// currency are list numerals or years, not money.
				if !m.inTable && m.Scale == ScaleUnit && m.Currency == "" {
					continue
				}
				if !best.Found || preferred(m, best.Amount, best.Note == noteTable) {
					note := ""
					if m.inTable {
						note = noteTable
					}
					best = Resolution{Amount: m.Amount, Found: true, Note: note}
				}
			}
		}
		if best.Found {
			best.Note = ""
			return best
		}
	}
	return Resolution{}
}

const noteTable = "table"

func wordBoundary(s string, idx, n int) bool {
	if idx > 0 && isWordChar(s[idx-1]) {
		return false
	}
	end := idx + n
	return end >= len(s) || !isWordChar(s[end])
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func near(kwIdx, kwLen int, m mention) bool {
	if m.start >= kwIdx {
		return m.start-(kwIdx+kwLen) <= forwardReach
	}
	return kwIdx-m.end <= backwardReach
}

// preferred reports whether candidate a should replace b. Table values
// win over narrative ones; otherwise the larger expanded value wins.
func preferred(a mention, b Amount, bInTable bool) bool {
	if a.inTable != bInTable {
		return a.inTable
	}
	return a.Value > b.Value
}

func rangeNear(text string, kwIdx, kwLen int) Resolution {
	for _, re := range []*regexp.Regexp{rangeBetweenRe, rangeDashRe} {
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			m := mention{start: loc[0], end: loc[1]}
			if !near(kwIdx, kwLen, m) || !sameSegment(text, kwIdx, loc[0]) {
				continue
			}
			// Hyphenated plain numbers (year spans, list ranges)
			// carry neither a currency marker nor a scale suffix;
			// they are not money ranges.
			cur1, suf1 := group(text, loc, 1), group(text, loc, 3)
			cur2, suf2 := group(text, loc, 4), group(text, loc, 6)
			if cur1 == "" && suf1 == "" && cur2 == "" && suf2 == "" {
				continue
			}
			lo := strings.TrimSpace(cur1 + group(text, loc, 2) + suf1)
			hi := strings.TrimSpace(cur2 + group(text, loc, 5) + suf2)
			return Resolution{
				Uncertain: true,
				Note:      "range detected (" + lo + " to " + hi + "); point value withheld",
			}
		}
	}
	return Resolution{}
}

// Supports reports whether value (in full units) is re-derivable from
// some money mention in text: exact, rounded to one decimal, or rounded
// to an integer at the mention's own scale. Zero values are trivially
// supported.
func Supports(text string, value float64) bool {
	if value == 0 {
		return true
	}
	for _, loc := range amountRe.FindAllStringSubmatchIndex(text, -1) {
		num := group(text, loc, 2)
		base, err := strconv.ParseFloat(strings.ReplaceAll(num, ",", ""), 64)
		if err != nil {
			continue
		}
		suffix := group(text, loc, 3)
		scale := ScaleUnit
		if suffix != "" {
			if s := suffixScales[strings.ToLower(suffix)]; s != "" {
				scale = s
			}
		}
		if matchesAtScale(value, base, Multiplier(scale)) {
			return true
		}
		// Suffix-less numbers support claims stated at any recognized
		// scale: tabulated values ship with the scale stripped.
		if scale == ScaleUnit {
			for _, mult := range scaleMultipliers {
				if matchesAtScale(value, base, mult) {
					return true
				}
			}
		}
	}
	return false
}

// SupportsAmount reports whether value (in full units) restates amt:
// exact, or rounded to one decimal or an integer at amt's own scale.
func SupportsAmount(value float64, amt Amount) bool {
	return matchesAtScale(value, amt.Base, Multiplier(amt.Scale))
}

func matchesAtScale(value, base, mult float64) bool {
	if mult <= 0 {
		return false
	}
	r := value / mult
	const eps = 1e-6
	if math.Abs(r-base) < eps {
		return true
	}
	if math.Abs(math.Round(r*10)/10-base) < eps {
		return true
	}
	return math.Abs(math.Round(r)-base) < eps
}

// DetectCurrency returns the first currency marker found in the text, or
// empty when none is present.
func DetectCurrency(text string) string {
	for _, loc := range amountRe.FindAllStringSubmatchIndex(text, -1) {
		cur := group(text, loc, 1)
		if cur == "" {
			continue
		}
		if c := currencyCodes[strings.ToLower(strings.TrimSpace(cur))]; c != "" {
			return c
		}
	}
	return ""
}

// NumericToken is a numeric token as displayed in narrative text, with
// the expanded value implied by any scale suffix.
type NumericToken struct {
	Display  float64
	Expanded float64
	Suffixed bool
}

// NumericTokens extracts every numeric token of a narrative string.
func NumericTokens(s string) []NumericToken {
	var out []NumericToken
	for _, loc := range amountRe.FindAllStringSubmatchIndex(s, -1) {
		base, err := strconv.ParseFloat(strings.ReplaceAll(group(s, loc, 2), ",", ""), 64)
		if err != nil {
			continue
		}
		tok := NumericToken{Display: base, Expanded: base}
		if suffix := group(s, loc, 3); suffix != "" {
			if scale := suffixScales[strings.ToLower(suffix)]; scale != "" {
				tok.Expanded = base * Multiplier(scale)
				tok.Suffixed = true
			}
		}
		out = append(out, tok)
	}
	return out
}
