package match

import (
	"context"
	"strings"

	"github.com/joelkehle/dealdesk/internal/dealextract"
	"github.com/joelkehle/dealdesk/internal/universe"
)

// HeuristicScorer is a built-in scoring collaborator used when no
// external model process is configured. It blends the six features with
// fixed weights.
type HeuristicScorer struct{}

const heuristicModelVersion = "heuristic-v1"

var heuristicWeights = FeatureVector{
	SectorMatch:   0.30,
	GeoMatch:      0.15,
	SizeFit:       0.20,
	CapacityFit:   0.10,
	ActivityLevel: 0.10,
	EarningsFit:   0.15,
}

func (HeuristicScorer) Score(_ context.Context, req ScoreRequest) (ScoreResponse, error) {
	resp := ScoreResponse{ModelVersion: heuristicModelVersion}
	for _, cp := range req.Counterparties {
		f := featureVector(req.Deal, cp)
		score := f.SectorMatch*heuristicWeights.SectorMatch +
			f.GeoMatch*heuristicWeights.GeoMatch +
			f.SizeFit*heuristicWeights.SizeFit +
			f.CapacityFit*heuristicWeights.CapacityFit +
			f.ActivityLevel*heuristicWeights.ActivityLevel +
			f.EarningsFit*heuristicWeights.EarningsFit
		resp.Scores = append(resp.Scores, CounterpartyScore{
			CounterpartyID: cp.ID,
			Score:          clamp01(score),
			Features:       f,
		})
	}
	return resp, nil
}

func featureVector(deal dealextract.Deal, cp universe.Counterparty) FeatureVector {
	return FeatureVector{
		SectorMatch:   sectorFeature(deal.Sector, cp.Sectors),
		GeoMatch:      geoFeature(deal.Geography, cp.Geographies),
		SizeFit:       bandFit(deal.TransactionSize, cp.MinDealSize, cp.MaxDealSize),
		CapacityFit:   capacityFeature(deal.TransactionSize, cp.DryPowder),
		ActivityLevel: activityFeature(cp.PastDeals),
		EarningsFit:   bandFit(deal.Earnings, cp.MinEbitda, cp.MaxEbitda),
	}
}

func sectorFeature(dealSector string, sectors []string) float64 {
	for _, s := range sectors {
		if strings.EqualFold(s, dealSector) {
			return 1
		}
	}
	for _, s := range sectors {
		if strings.EqualFold(s, dealextract.SectorOther) {
			return 0.5
		}
	}
	return 0
}

func geoFeature(dealGeo string, geos []string) float64 {
	if dealGeo == "" {
		return 0.5
	}
	for _, g := range geos {
		if strings.EqualFold(g, dealGeo) {
			return 1
		}
		// Europe mandates cover UK deals and vice versa at half credit.
		if strings.EqualFold(g, "Europe") && strings.EqualFold(dealGeo, "UK") {
			return 0.5
		}
	}
	return 0
}

// bandFit scores how centrally a value sits inside [lo, hi]. Unknown
// values score a neutral 0.5; out-of-band values decay toward 0 with
// distance from the nearest bound.
func bandFit(value, lo, hi float64) float64 {
	if value == 0 {
		return 0.5
	}
	if hi <= 0 || hi < lo {
		return 0.5
	}
	if value >= lo && value <= hi {
		mid := (lo + hi) / 2
		half := (hi - lo) / 2
		if half == 0 {
			return 1
		}
		dist := value - mid
		if dist < 0 {
			dist = -dist
		}
		return 1 - 0.5*(dist/half)
	}
	var overshoot float64
	if value < lo {
		overshoot = (lo - value) / lo
	} else {
		overshoot = (value - hi) / hi
	}
	f := 0.5 - overshoot
	return clamp01(f)
}

func capacityFeature(transactionSize, dryPowder float64) float64 {
	if dryPowder <= 0 {
		return 0.3
	}
	if transactionSize == 0 {
		return 0.6
	}
	if dryPowder >= transactionSize {
		return 1
	}
	return clamp01(dryPowder / transactionSize)
}

func activityFeature(pastDeals int) float64 {
	const saturation = 20
	if pastDeals <= 0 {
		return 0
	}
	if pastDeals >= saturation {
		return 1
	}
	return float64(pastDeals) / saturation
}
