// Package pipeline wires extraction, matching, and guarded generation
// into the end-to-end deal analysis flow. Each stage is traced, and
// stage degradation (fallback extraction, zero scores, template
// narrative) is recorded in the result rather than surfaced as errors.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/joelkehle/dealdesk/internal/dealextract"
	"github.com/joelkehle/dealdesk/internal/match"
	"github.com/joelkehle/dealdesk/internal/outreach"
	"github.com/joelkehle/dealdesk/internal/universe"
)

const tracerName = "github.com/joelkehle/dealdesk/internal/pipeline"

// Input size bounds for a single analysis request.
const (
	MinTeaserChars = 20
	MaxTeaserChars = 40_000
)

type StageProgressFn func(stage, message string)

// Metadata describes how a run went: timing plus which degraded paths
// fired.
type Metadata struct {
	StartedAt      time.Time `json:"startedAt"`
	CompletedAt    time.Time `json:"completedAt"`
	InputTruncated bool      `json:"inputTruncated,omitempty"`
	NarrativeState string    `json:"narrativeState"`
	ModelVersion   string    `json:"modelVersion,omitempty"`
}

// Result is the full outcome of one deal analysis.
type Result struct {
	Deal      dealextract.Deal    `json:"deal"`
	Ranked    match.RankedMatches `json:"ranked"`
	Narrative outreach.Result     `json:"narrative"`
	Metadata  Metadata            `json:"metadata"`
}

// Pipeline runs one deal end to end. The counterparty universe is
// read-only and shared across concurrent runs.
type Pipeline struct {
	extractor *dealextract.Extractor
	ranker    *match.Ranker
	generator *outreach.Generator
	universe  []universe.Counterparty
	tracer    trace.Tracer
}

func New(extractor *dealextract.Extractor, ranker *match.Ranker, generator *outreach.Generator, cps []universe.Counterparty) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		ranker:    ranker,
		generator: generator,
		universe:  cps,
		tracer:    otel.Tracer(tracerName),
	}
}

// Universe exposes the loaded counterparty universe for search.
func (p *Pipeline) Universe() []universe.Counterparty {
	return p.universe
}

func (p *Pipeline) Analyze(ctx context.Context, rawText string) (Result, error) {
	return p.analyze(ctx, rawText, nil)
}

func (p *Pipeline) AnalyzeWithProgress(ctx context.Context, rawText string, progress StageProgressFn) (Result, error) {
	return p.analyze(ctx, rawText, progress)
}

func (p *Pipeline) analyze(ctx context.Context, rawText string, progress StageProgressFn) (Result, error) {
	res := Result{Metadata: Metadata{StartedAt: time.Now()}}

	rawText = strings.TrimSpace(rawText)
	if len(rawText) < MinTeaserChars {
		return res, fmt.Errorf("teaser text is too short to analyze")
	}
	if len(rawText) > MaxTeaserChars {
		rawText = rawText[:MaxTeaserChars]
		res.Metadata.InputTruncated = true
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.analyze")
	defer span.End()

	report(progress, "extract", "extracting deal record")
	deal, err := p.runExtract(ctx, rawText)
	if err != nil {
		return res, err
	}
	res.Deal = deal

	report(progress, "match", "ranking counterparties")
	ranked, err := p.runMatch(ctx, deal)
	if err != nil {
		return res, err
	}
	res.Ranked = ranked

	report(progress, "narrative", "generating summary and outreach drafts")
	res.Narrative = p.runNarrative(ctx, deal, ranked, rawText)

	res.Metadata.CompletedAt = time.Now()
	res.Metadata.NarrativeState = string(res.Narrative.State)
	res.Metadata.ModelVersion = ranked.ModelVersion
	return res, nil
}

func (p *Pipeline) runExtract(ctx context.Context, rawText string) (dealextract.Deal, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.extract")
	defer span.End()

	deal, err := p.extractor.Extract(ctx, rawText)
	if err != nil {
		return dealextract.Deal{}, err
	}
	span.SetAttributes(
		attribute.String("deal.sector", deal.Sector),
		attribute.String("deal.geography", deal.Geography),
		attribute.Int("deal.uncertainties", len(deal.Uncertainties)),
	)
	return deal, nil
}

func (p *Pipeline) runMatch(ctx context.Context, deal dealextract.Deal) (match.RankedMatches, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.match")
	defer span.End()

	ranked, err := p.ranker.Rank(ctx, deal, p.universe)
	if err != nil {
		return match.RankedMatches{}, err
	}
	span.SetAttributes(
		attribute.Int("match.universe_size", len(p.universe)),
		attribute.Int("match.shortlist", len(ranked.Matches)),
		attribute.String("match.model_version", ranked.ModelVersion),
	)
	return ranked, nil
}

func (p *Pipeline) runNarrative(ctx context.Context, deal dealextract.Deal, ranked match.RankedMatches, rawText string) outreach.Result {
	ctx, span := p.tracer.Start(ctx, "pipeline.narrative")
	defer span.End()

	out := p.generator.Generate(ctx, deal, ranked, rawText)
	span.SetAttributes(
		attribute.String("narrative.state", string(out.State)),
		attribute.Int("narrative.drafts", len(out.Narrative.Drafts)),
		attribute.Int("narrative.llm_attempts", out.Metrics.Attempts),
	)
	return out
}

func report(progress StageProgressFn, stage, message string) {
	if progress != nil {
		progress(stage, message)
	}
}
