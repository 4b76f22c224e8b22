// Package dealextract turns raw deal-teaser text into a structured deal
// record. Every field a generative model proposes is re-verified against
// the source text before it is kept: sectors need an explicit keyword,
// geographies an allow-listed token, and monetary values must be
// numerically re-findable. Unverifiable values are zeroed, never guessed.
package dealextract

import "strings"

// Sector enumeration shared with the counterparty universe.
const (
	SectorSoftware         = "Software"
	SectorHealthcare       = "Healthcare"
	SectorManufacturing    = "Manufacturing"
	SectorBusinessServices = "Business Services"
	SectorConsumer         = "Consumer"
	SectorOther            = "Other"
)

// ProvidedAudit records the currency and scale markers as detected in
// the source, so downstream consumers can judge reliability.
type ProvidedAudit struct {
	Currency string `json:"currency"`
	Scale    string `json:"scale"`
}

// Deal is one extracted deal record. Monetary fields are full units in
// the detected currency. Uncertainties carries per-metric notes for
// values that were withheld (ranges and similar ambiguity).
type Deal struct {
	Name            string            `json:"name"`
	Sector          string            `json:"sector"`
	Geography       string            `json:"geography"`
	Revenue         float64           `json:"revenue"`
	Earnings        float64           `json:"earnings"`
	TransactionSize float64           `json:"transactionSize"`
	Description     string            `json:"description"`
	Provided        ProvidedAudit     `json:"provided"`
	Uncertainties   map[string]string `json:"uncertainties,omitempty"`
}

// sectorKeywords maps each sector to the tokens that must appear in the
// source text for that sector to be accepted.
var sectorKeywords = map[string][]string{
	SectorSoftware: {
		"software", "saas", "b2b tech", "platform", "cloud", "application",
		"devops", "cybersecurity", "fintech", "it services",
	},
	SectorHealthcare: {
		"healthcare", "health care", "medical", "clinic", "pharma",
		"biotech", "dental", "behavioral health", "home health", "med device",
	},
	SectorManufacturing: {
		"manufacturing", "manufacturer", "industrial", "fabrication",
		"machining", "plant", "oem", "assembly", "precision",
	},
	SectorBusinessServices: {
		"business services", "consulting", "staffing", "outsourcing",
		"logistics", "facilities", "bpo", "professional services", "accounting",
	},
	SectorConsumer: {
		"consumer", "retail", "restaurant", "e-commerce", "ecommerce",
		"apparel", "food and beverage", "franchise", "cpg", "d2c",
	},
}

// sectorOrder fixes the precedence when several sectors have keyword
// hits. More specific verticals come before catch-all service language.
var sectorOrder = []string{
	SectorSoftware,
	SectorHealthcare,
	SectorManufacturing,
	SectorConsumer,
	SectorBusinessServices,
}

// geographyTokens is the allow-list of geography mentions. Keys are the
// tokens scanned for, values the canonical geography they map to.
// Matching is word-boundary exact, never substring: "US" must not fire
// inside ordinary prose words.
var geographyTokens = map[string]string{
	"us":             "US",
	"usa":            "US",
	"u.s.":           "US",
	"united states":  "US",
	"canada":         "Canada",
	"canadian":       "Canada",
	"uk":             "UK",
	"u.k.":           "UK",
	"united kingdom": "UK",
	"britain":        "UK",
	"europe":         "Europe",
	"european":       "Europe",
	"germany":        "Europe",
	"france":         "Europe",
	"mexico":         "Mexico",
	"mexican":        "Mexico",
	"india":          "India",
	"australia":      "Australia",
	"apac":           "APAC",
}

// Metric keyword lists, most specific phrasing first.
var (
	revenueKeywords  = []string{"revenue", "revenues", "sales", "turnover", "arr", "top line"}
	earningsKeywords = []string{"ebitda", "earnings", "operating income", "net income", "profit", "cash flow"}
	sizeKeywords     = []string{"enterprise value", "transaction value", "purchase price", "asking price", "valuation", "deal size", "ev"}
)

// ValidSector reports whether s names a known sector.
func ValidSector(s string) bool {
	switch s {
	case SectorSoftware, SectorHealthcare, SectorManufacturing,
		SectorBusinessServices, SectorConsumer, SectorOther:
		return true
	}
	return false
}

// boilerplateTitles are leading lines that name the document rather
// than the company.
var boilerplateTitles = []string{
	"confidential information memorandum",
	"confidential teaser",
	"executive summary",
	"investment opportunity",
	"project overview",
	"teaser",
	"cim",
}

func isBoilerplateTitle(line string) bool {
	l := strings.ToLower(strings.TrimSpace(line))
	for _, b := range boilerplateTitles {
		if l == b || strings.HasPrefix(l, b+":") || strings.HasPrefix(l, b+" -") {
			return true
		}
	}
	return false
}
