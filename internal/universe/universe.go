// Package universe holds the counterparty universe: the set of private
// equity and strategic acquirers a deal can be matched against, with
// their sector and geography mandates, size bands, and capacity.
package universe

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sort"
	"strings"
)

// Counterparty types.
const (
	TypePrivateEquity = "Private Equity"
	TypeStrategic     = "Strategic"
)

// Sectors a counterparty mandate can name. Deal extraction maps free
// text onto the same enum.
var Sectors = []string{
	"Software",
	"Healthcare",
	"Manufacturing",
	"Business Services",
	"Consumer",
	"Other",
}

// Geographies a mandate can cover.
var Geographies = []string{"US", "Canada", "UK", "Europe", "Mexico"}

var strategyTags = []string{
	"roll-up",
	"platform",
	"add-on",
	"vertical-integration",
	"synergies",
	"turnaround",
	"growth",
	"carve-out",
}

// Counterparty is one acquirer in the universe. Money fields are full
// units. DryPowder is zero for strategics that do not disclose capacity.
type Counterparty struct {
	ID           string   `json:"id" db:"id"`
	Name         string   `json:"name" db:"name"`
	Type         string   `json:"type" db:"type"`
	Sectors      []string `json:"sectors" db:"-"`
	Geographies  []string `json:"geographies" db:"-"`
	MinEbitda    float64  `json:"minEbitda" db:"min_ebitda"`
	MaxEbitda    float64  `json:"maxEbitda" db:"max_ebitda"`
	MinDealSize  float64  `json:"minDealSize" db:"min_deal_size"`
	MaxDealSize  float64  `json:"maxDealSize" db:"max_deal_size"`
	DryPowder    float64  `json:"dryPowder" db:"dry_powder"`
	StrategyTags []string `json:"strategyTags" db:"-"`
	PastDeals    int      `json:"pastDeals" db:"past_deals"`
}

// Validate checks the invariants a counterparty record must hold before
// it can participate in matching.
func (c Counterparty) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("counterparty missing id")
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("counterparty %s missing name", c.ID)
	}
	if c.Type != TypePrivateEquity && c.Type != TypeStrategic {
		return fmt.Errorf("counterparty %s has unknown type %q", c.ID, c.Type)
	}
	if len(c.Sectors) == 0 {
		return fmt.Errorf("counterparty %s has no sectors", c.ID)
	}
	if len(c.Geographies) == 0 {
		return fmt.Errorf("counterparty %s has no geographies", c.ID)
	}
	if c.MinEbitda < 0 || c.MaxEbitda < c.MinEbitda {
		return fmt.Errorf("counterparty %s has invalid ebitda band [%v, %v]", c.ID, c.MinEbitda, c.MaxEbitda)
	}
	if c.MinDealSize < 0 || c.MaxDealSize < c.MinDealSize {
		return fmt.Errorf("counterparty %s has invalid deal size band [%v, %v]", c.ID, c.MinDealSize, c.MaxDealSize)
	}
	return nil
}

// HasTag reports whether the counterparty carries a strategy tag.
func (c Counterparty) HasTag(tag string) bool {
	for _, t := range c.StrategyTags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// LoadFile reads a JSON array of counterparties. Entries that fail
// validation are skipped with a log line; one bad record must not take
// the whole universe down.
func LoadFile(path string) ([]Counterparty, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read universe: %w", err)
	}
	var raw []Counterparty
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse universe: %w", err)
	}
	var out []Counterparty
	for _, c := range raw {
		if err := c.Validate(); err != nil {
			log.Printf("universe: skipping entry: %v", err)
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// DefaultUniverse is the built-in backstop used when no universe is
// configured or a configured one yields nothing usable. Deterministic,
// so matching never starts against an empty set.
func DefaultUniverse() []Counterparty {
	return Generate(1, 40)
}

var peNamePool = []string{
	"Summit Ridge Capital", "Harborline Partners", "Granite Peak Equity",
	"Bluewater Growth", "Ironbridge Capital", "Copperfield Partners",
	"Northgate Equity", "Silverpine Capital", "Crestway Partners",
	"Stonehaven Growth", "Redmond Bay Capital", "Fairhaven Equity",
}

var strategicNamePool = []string{
	"Meridian Industries", "Apex Technology Group", "Cascade Health Holdings",
	"Pinnacle Consumer Brands", "Atlas Manufacturing Corp", "Keystone Services Group",
	"Vantage Software Holdings", "Orchard Medical Group", "Beacon Industrial",
	"Lakeshore Foods", "Trident Business Systems", "Everline Logistics",
}

// Generate builds a deterministic synthetic universe of n counterparties
// from a seed. Roughly 60% private equity, 40% strategic.
func Generate(seed int64, n int) []Counterparty {
	rng := rand.New(rand.NewSource(seed))
	out := make([]Counterparty, 0, n)
	for i := 0; i < n; i++ {
		isPE := rng.Float64() < 0.6
		c := Counterparty{
			ID: fmt.Sprintf("cp-%04d", i+1),
		}
		if isPE {
			c.Type = TypePrivateEquity
			c.Name = pick(rng, peNamePool) + " " + roman(i%8+1)
			c.DryPowder = float64(rng.Intn(46)+5) * 10_000_000 // $50M-$500M
		} else {
			c.Type = TypeStrategic
			c.Name = pick(rng, strategicNamePool)
			if rng.Float64() < 0.5 {
				c.DryPowder = float64(rng.Intn(30)+1) * 10_000_000
			}
		}
		c.Sectors = sample(rng, Sectors[:len(Sectors)-1], rng.Intn(2)+1)
		c.Geographies = sample(rng, Geographies, rng.Intn(2)+1)
		c.MinEbitda = float64(rng.Intn(5)+1) * 1_000_000
		c.MaxEbitda = c.MinEbitda * float64(rng.Intn(8)+3)
		c.MinDealSize = c.MinEbitda * float64(rng.Intn(4)+4)
		c.MaxDealSize = c.MinDealSize * float64(rng.Intn(6)+3)
		c.StrategyTags = sample(rng, strategyTags, rng.Intn(3)+1)
		c.PastDeals = rng.Intn(25)
		out = append(out, c)
	}
	return out
}

func pick(rng *rand.Rand, pool []string) string {
	return pool[rng.Intn(len(pool))]
}

func sample(rng *rand.Rand, pool []string, k int) []string {
	idx := rng.Perm(len(pool))
	if k > len(pool) {
		k = len(pool)
	}
	out := make([]string, 0, k)
	for _, i := range idx[:k] {
		out = append(out, pool[i])
	}
	sort.Strings(out)
	return out
}

func roman(n int) string {
	numerals := []string{"I", "II", "III", "IV", "V", "VI", "VII", "VIII"}
	if n < 1 || n > len(numerals) {
		return "I"
	}
	return numerals[n-1]
}

// Hit is one search result with the fields that matched.
type Hit struct {
	Counterparty Counterparty `json:"counterparty"`
	Score        float64      `json:"score"`
	Reason       string       `json:"reason"`
}

// Query is one search request: free-text terms scored against names and
// mandates, plus structured filters applied as hard constraints first.
// Zero-valued fields are inactive.
type Query struct {
	Text      string
	Sector    string
	Geography string
	Type      string
	Tag       string
	MinSize   float64
	MaxSize   float64
	Limit     int
}

func (q Query) hasFilters() bool {
	return q.Sector != "" || q.Geography != "" || q.Type != "" ||
		q.Tag != "" || q.MinSize > 0 || q.MaxSize > 0
}

// matches applies the structured filters. Size bounds select
// counterparties whose deal size band overlaps the requested range; a
// counterparty without a declared band passes.
func (q Query) matches(c Counterparty) bool {
	if q.Sector != "" && !listHasFold(c.Sectors, q.Sector) {
		return false
	}
	if q.Geography != "" && !listHasFold(c.Geographies, q.Geography) {
		return false
	}
	if q.Type != "" && !strings.EqualFold(c.Type, q.Type) {
		return false
	}
	if q.Tag != "" && !c.HasTag(q.Tag) {
		return false
	}
	if q.MinSize > 0 && c.MaxDealSize > 0 && c.MaxDealSize < q.MinSize {
		return false
	}
	if q.MaxSize > 0 && c.MinDealSize > q.MaxSize {
		return false
	}
	return true
}

// Search runs a query against the universe. Filters narrow first; the
// keyword terms then score names, sectors, geographies, and strategy
// tags, with name matches outranking mandate matches. A filter-only
// query returns every counterparty the filters admit.
func Search(universe []Counterparty, q Query) []Hit {
	terms := strings.Fields(strings.ToLower(strings.TrimSpace(q.Text)))
	if len(terms) == 0 && !q.hasFilters() {
		return nil
	}
	var hits []Hit
	for _, c := range universe {
		if !q.matches(c) {
			continue
		}
		score := 0.0
		var reasons []string
		name := strings.ToLower(c.Name)
		for _, term := range terms {
			switch {
			case strings.Contains(name, term):
				score += 3
				reasons = append(reasons, "name")
			case containsFold(c.Sectors, term):
				score += 2
				reasons = append(reasons, "sector")
			case containsFold(c.Geographies, term):
				score += 1
				reasons = append(reasons, "geography")
			case containsFold(c.StrategyTags, term):
				score += 1
				reasons = append(reasons, "strategy tag")
			}
		}
		if len(terms) > 0 && score == 0 {
			continue
		}
		if len(terms) == 0 {
			score = 1
			reasons = []string{"filters"}
		}
		hits = append(hits, Hit{
			Counterparty: c,
			Score:        score,
			Reason:       "matched on " + strings.Join(dedupe(reasons), ", "),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return hits
}

func listHasFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func containsFold(list []string, term string) bool {
	for _, s := range list {
		if strings.Contains(strings.ToLower(s), term) {
			return true
		}
	}
	return false
}

func dedupe(list []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range list {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
