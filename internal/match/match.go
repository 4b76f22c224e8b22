// Package match ranks counterparties against a deal. An external
// scoring collaborator supplies per-counterparty feature vectors and a
// blended score; this package applies deterministic mandate filters, a
// bounded synergy adjustment, and top-K truncation on top of it.
package match

import (
	"context"
	"log"
	"sort"
	"strings"

	"github.com/joelkehle/dealdesk/internal/dealextract"
	"github.com/joelkehle/dealdesk/internal/universe"
)

// FeatureVector holds the six sub-scores in [0,1] the scoring model
// reports per counterparty.
type FeatureVector struct {
	SectorMatch   float64 `json:"sectorMatch"`
	GeoMatch      float64 `json:"geoMatch"`
	SizeFit       float64 `json:"sizeFit"`
	CapacityFit   float64 `json:"capacityFit"`
	ActivityLevel float64 `json:"activityLevel"`
	EarningsFit   float64 `json:"earningsFit"`
}

// ScoreRequest is the request to the scoring collaborator.
type ScoreRequest struct {
	Deal           dealextract.Deal        `json:"deal"`
	Counterparties []universe.Counterparty `json:"counterparties"`
}

// CounterpartyScore is one entry of the collaborator's response.
type CounterpartyScore struct {
	CounterpartyID string        `json:"counterpartyId"`
	Score          float64       `json:"score"`
	Features       FeatureVector `json:"features"`
}

// ScoreResponse is the collaborator's reply.
type ScoreResponse struct {
	ModelVersion string              `json:"modelVersion"`
	Scores       []CounterpartyScore `json:"scores"`
}

// Scorer is the narrow contract to the external scoring model.
type Scorer interface {
	Score(ctx context.Context, req ScoreRequest) (ScoreResponse, error)
}

// Match is one ranked (counterparty, deal) pairing.
type Match struct {
	Counterparty universe.Counterparty `json:"counterparty"`
	Score        float64               `json:"score"`
	Features     FeatureVector         `json:"features"`
}

// RankedMatches is the ranked shortlist with its provenance metadata.
type RankedMatches struct {
	ModelVersion string  `json:"modelVersion"`
	Matches      []Match `json:"matches"`
}

// SynergyParams tunes the deal-specific adjustment. The coefficients
// are tuned by inspection, not fitted.
type SynergyParams struct {
	StrategicBase float64
	PEBase        float64
	TagBonus      float64
	Max           float64
}

func DefaultSynergyParams() SynergyParams {
	return SynergyParams{StrategicBase: 1.06, PEBase: 1.02, TagBonus: 0.03, Max: 1.15}
}

// synergyTags are the strategy tags that earn the additive bonus.
var synergyTags = []string{"synergies", "vertical-integration", "roll-up"}

// TopK is the shortlist length.
const TopK = 5

// Ranker combines the external scorer with the deterministic steps.
type Ranker struct {
	scorer  Scorer
	synergy SynergyParams
}

func NewRanker(scorer Scorer) *Ranker {
	return &Ranker{scorer: scorer, synergy: DefaultSynergyParams()}
}

// WithSynergy overrides the synergy coefficients.
func (r *Ranker) WithSynergy(p SynergyParams) *Ranker {
	r.synergy = p
	return r
}

// Rank scores the universe against the deal and returns the filtered,
// adjusted, truncated shortlist. A failing or malformed collaborator
// response degrades to zero scores rather than an error; an empty
// result after filtering is a valid outcome.
func (r *Ranker) Rank(ctx context.Context, deal dealextract.Deal, cps []universe.Counterparty) (RankedMatches, error) {
	scores := map[string]CounterpartyScore{}
	version := ""
	resp, err := r.scorer.Score(ctx, ScoreRequest{Deal: deal, Counterparties: cps})
	if err != nil {
		log.Printf("match: scorer unavailable, using zero scores: %v", err)
	} else {
		version = resp.ModelVersion
		for _, s := range resp.Scores {
			scores[s.CounterpartyID] = clampScore(s)
		}
	}

	var matches []Match
	for _, cp := range cps {
		if !PassesMandate(deal, cp) {
			continue
		}
		s := scores[cp.ID] // missing entries stay zero
		adjusted := s.Score * r.synergyFactor(cp)
		if adjusted > 1 {
			adjusted = 1
		}
		matches = append(matches, Match{Counterparty: cp, Score: adjusted, Features: s.Features})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > TopK {
		matches = matches[:TopK]
	}
	return RankedMatches{ModelVersion: version, Matches: matches}, nil
}

// PassesMandate applies the hard constraints: sector coverage, size
// band, earnings band. Size and earnings checks are skipped when the
// deal value is unknown (zero), so incomplete deals are not
// over-filtered.
func PassesMandate(deal dealextract.Deal, cp universe.Counterparty) bool {
	if !sectorCovered(deal.Sector, cp.Sectors) {
		return false
	}
	if deal.TransactionSize != 0 {
		if deal.TransactionSize < cp.MinDealSize || deal.TransactionSize > cp.MaxDealSize {
			return false
		}
	}
	if deal.Earnings != 0 {
		if deal.Earnings < cp.MinEbitda || deal.Earnings > cp.MaxEbitda {
			return false
		}
	}
	return true
}

func sectorCovered(dealSector string, sectors []string) bool {
	for _, s := range sectors {
		if strings.EqualFold(s, dealSector) || strings.EqualFold(s, dealextract.SectorOther) {
			return true
		}
	}
	return false
}

// synergyFactor is the bounded multiplicative nudge per counterparty.
func (r *Ranker) synergyFactor(cp universe.Counterparty) float64 {
	f := r.synergy.PEBase
	if cp.Type == universe.TypeStrategic {
		f = r.synergy.StrategicBase
	}
	for _, tag := range synergyTags {
		if cp.HasTag(tag) {
			f += r.synergy.TagBonus
		}
	}
	if f > r.synergy.Max {
		f = r.synergy.Max
	}
	return f
}

func clampScore(s CounterpartyScore) CounterpartyScore {
	s.Score = clamp01(s.Score)
	s.Features.SectorMatch = clamp01(s.Features.SectorMatch)
	s.Features.GeoMatch = clamp01(s.Features.GeoMatch)
	s.Features.SizeFit = clamp01(s.Features.SizeFit)
	s.Features.CapacityFit = clamp01(s.Features.CapacityFit)
	s.Features.ActivityLevel = clamp01(s.Features.ActivityLevel)
	s.Features.EarningsFit = clamp01(s.Features.EarningsFit)
	return s
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
