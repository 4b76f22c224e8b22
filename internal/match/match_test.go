package match

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/joelkehle/dealdesk/internal/dealextract"
	"github.com/joelkehle/dealdesk/internal/universe"
)

type fakeScorer struct {
	resp ScoreResponse
	err  error
	got  ScoreRequest
}

func (f *fakeScorer) Score(_ context.Context, req ScoreRequest) (ScoreResponse, error) {
	f.got = req
	return f.resp, f.err
}

func softwareDeal() dealextract.Deal {
	return dealextract.Deal{
		Name:            "Acme Co.",
		Sector:          dealextract.SectorSoftware,
		Geography:       "US",
		Revenue:         18_500_000,
		Earnings:        5_000_000,
		TransactionSize: 60_000_000,
	}
}

func cp(id string, opts ...func(*universe.Counterparty)) universe.Counterparty {
	c := universe.Counterparty{
		ID:          id,
		Name:        "Counterparty " + id,
		Type:        universe.TypePrivateEquity,
		Sectors:     []string{dealextract.SectorSoftware},
		Geographies: []string{"US"},
		MinEbitda:   1_000_000, MaxEbitda: 20_000_000,
		MinDealSize: 10_000_000, MaxDealSize: 200_000_000,
		DryPowder: 100_000_000,
		PastDeals: 10,
	}
	for _, o := range opts {
		o(&c)
	}
	return c
}

func TestPassesMandate(t *testing.T) {
	deal := softwareDeal()
	cases := []struct {
		name string
		cp   universe.Counterparty
		want bool
	}{
		{name: "fits", cp: cp("a"), want: true},
		{name: "wrong sector", cp: cp("b", func(c *universe.Counterparty) {
			c.Sectors = []string{dealextract.SectorHealthcare}
		}), want: false},
		{name: "generalist other covers any sector", cp: cp("c", func(c *universe.Counterparty) {
			c.Sectors = []string{dealextract.SectorOther}
		}), want: true},
		{name: "deal too large", cp: cp("d", func(c *universe.Counterparty) {
			c.MaxDealSize = 50_000_000
		}), want: false},
		{name: "deal too small", cp: cp("e", func(c *universe.Counterparty) {
			c.MinDealSize = 80_000_000
		}), want: false},
		{name: "earnings below band", cp: cp("f", func(c *universe.Counterparty) {
			c.MinEbitda = 8_000_000
		}), want: false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := PassesMandate(deal, c.cp); got != c.want {
				t.Errorf("PassesMandate = %v, want %v", got, c.want)
			}
		})
	}
}

func TestPassesMandateSkipsSizeWhenUnknown(t *testing.T) {
	deal := softwareDeal()
	deal.TransactionSize = 0
	tight := cp("a", func(c *universe.Counterparty) {
		c.MinDealSize = 500_000_000
		c.MaxDealSize = 900_000_000
	})
	if !PassesMandate(deal, tight) {
		t.Error("size band applied to a deal with unknown transaction size")
	}
}

func TestRankFiltersAndTruncates(t *testing.T) {
	deal := softwareDeal()
	var cps []universe.Counterparty
	var scores []CounterpartyScore
	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("cp-%d", i)
		cps = append(cps, cp(id))
		scores = append(scores, CounterpartyScore{CounterpartyID: id, Score: float64(i) / 10})
	}
	// One that fails the mandate despite a top score.
	cps = append(cps, cp("cp-out", func(c *universe.Counterparty) {
		c.Sectors = []string{dealextract.SectorConsumer}
	}))
	scores = append(scores, CounterpartyScore{CounterpartyID: "cp-out", Score: 0.99})

	scorer := &fakeScorer{resp: ScoreResponse{ModelVersion: "m1", Scores: scores}}
	got, err := NewRanker(scorer).Rank(context.Background(), deal, cps)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if got.ModelVersion != "m1" {
		t.Errorf("model version = %q", got.ModelVersion)
	}
	if len(got.Matches) != TopK {
		t.Fatalf("len = %d, want %d", len(got.Matches), TopK)
	}
	for _, m := range got.Matches {
		if m.Counterparty.ID == "cp-out" {
			t.Error("mandate-failing counterparty ranked")
		}
	}
	for i := 1; i < len(got.Matches); i++ {
		if got.Matches[i].Score > got.Matches[i-1].Score {
			t.Error("matches not sorted descending")
		}
	}
	if got.Matches[0].Counterparty.ID != "cp-7" {
		t.Errorf("top match = %s, want cp-7", got.Matches[0].Counterparty.ID)
	}
	if len(scorer.got.Counterparties) != 9 {
		t.Errorf("scorer received %d counterparties, want full universe", len(scorer.got.Counterparties))
	}
}

func TestRankScorerFailureDegradesToZero(t *testing.T) {
	scorer := &fakeScorer{err: errors.New("model down")}
	got, err := NewRanker(scorer).Rank(context.Background(), softwareDeal(), []universe.Counterparty{cp("a")})
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(got.Matches) != 1 || got.Matches[0].Score != 0 {
		t.Errorf("matches = %+v, want one zero-score match", got.Matches)
	}
}

func TestRankClampsScores(t *testing.T) {
	scorer := &fakeScorer{resp: ScoreResponse{Scores: []CounterpartyScore{
		{CounterpartyID: "a", Score: 1.7, Features: FeatureVector{SectorMatch: -0.2, GeoMatch: 2}},
	}}}
	got, err := NewRanker(scorer).Rank(context.Background(), softwareDeal(), []universe.Counterparty{cp("a")})
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	m := got.Matches[0]
	if m.Score > 1 {
		t.Errorf("score = %v, want clamped to at most 1", m.Score)
	}
	if m.Features.SectorMatch != 0 || m.Features.GeoMatch != 1 {
		t.Errorf("features not clamped: %+v", m.Features)
	}
}

func TestRankEmptyAfterFilteringIsValid(t *testing.T) {
	scorer := &fakeScorer{resp: ScoreResponse{}}
	only := cp("a", func(c *universe.Counterparty) {
		c.Sectors = []string{dealextract.SectorHealthcare}
	})
	got, err := NewRanker(scorer).Rank(context.Background(), softwareDeal(), []universe.Counterparty{only})
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(got.Matches) != 0 {
		t.Errorf("matches = %+v, want empty", got.Matches)
	}
}

func TestSynergyAdjustmentIsBounded(t *testing.T) {
	scorer := &fakeScorer{resp: ScoreResponse{Scores: []CounterpartyScore{
		{CounterpartyID: "pe", Score: 0.5},
		{CounterpartyID: "strat", Score: 0.5},
	}}}
	pe := cp("pe")
	strat := cp("strat", func(c *universe.Counterparty) {
		c.Type = universe.TypeStrategic
		c.StrategyTags = []string{"synergies", "vertical-integration", "roll-up", "growth"}
	})
	got, err := NewRanker(scorer).Rank(context.Background(), softwareDeal(), []universe.Counterparty{pe, strat})
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	byID := map[string]float64{}
	for _, m := range got.Matches {
		byID[m.Counterparty.ID] = m.Score
	}
	if math.Abs(byID["pe"]-0.51) > 1e-9 {
		t.Errorf("pe score = %v, want 0.51", byID["pe"])
	}
	// 1.06 + 3*0.03 hits the 1.15 cap.
	if math.Abs(byID["strat"]-0.575) > 1e-9 {
		t.Errorf("strategic score = %v, want 0.575", byID["strat"])
	}
	if byID["strat"] <= byID["pe"] {
		t.Error("synergy adjustment should favor the aligned strategic")
	}
}

func TestHeuristicScorer(t *testing.T) {
	deal := softwareDeal()
	fit := cp("fit")
	misfit := cp("misfit", func(c *universe.Counterparty) {
		c.Sectors = []string{dealextract.SectorConsumer}
		c.Geographies = []string{"Europe"}
		c.DryPowder = 0
		c.PastDeals = 0
	})
	resp, err := HeuristicScorer{}.Score(context.Background(), ScoreRequest{
		Deal: deal, Counterparties: []universe.Counterparty{fit, misfit},
	})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if resp.ModelVersion == "" {
		t.Error("missing model version")
	}
	byID := map[string]CounterpartyScore{}
	for _, s := range resp.Scores {
		byID[s.CounterpartyID] = s
	}
	if byID["fit"].Score <= byID["misfit"].Score {
		t.Errorf("fit=%v misfit=%v, want fit higher", byID["fit"].Score, byID["misfit"].Score)
	}
	for id, s := range byID {
		for name, v := range map[string]float64{
			"score": s.Score, "sector": s.Features.SectorMatch, "geo": s.Features.GeoMatch,
			"size": s.Features.SizeFit, "capacity": s.Features.CapacityFit,
			"activity": s.Features.ActivityLevel, "earnings": s.Features.EarningsFit,
		} {
			if v < 0 || v > 1 {
				t.Errorf("%s %s = %v out of [0,1]", id, name, v)
			}
		}
	}
	if byID["fit"].Features.SectorMatch != 1 {
		t.Errorf("fit sector feature = %v, want 1", byID["fit"].Features.SectorMatch)
	}
	if byID["misfit"].Features.SectorMatch != 0 {
		t.Errorf("misfit sector feature = %v, want 0", byID["misfit"].Features.SectorMatch)
	}
}

func TestSubprocessScorerNoCommand(t *testing.T) {
	s := NewSubprocessScorer(nil)
	if _, err := s.Score(context.Background(), ScoreRequest{}); err == nil {
		t.Fatal("expected error without a command")
	}
}
