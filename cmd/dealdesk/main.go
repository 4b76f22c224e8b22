package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joelkehle/dealdesk/internal/dealextract"
	"github.com/joelkehle/dealdesk/internal/export"
	"github.com/joelkehle/dealdesk/internal/llm"
	"github.com/joelkehle/dealdesk/internal/match"
	"github.com/joelkehle/dealdesk/internal/outreach"
	"github.com/joelkehle/dealdesk/internal/pipeline"
	"github.com/joelkehle/dealdesk/internal/teaserpdf"
	"github.com/joelkehle/dealdesk/internal/universe"
)

func main() {
	teaserPath := flag.String("teaser", "", "Path to the teaser text file (default: stdin)")
	universePath := flag.String("universe", "", "Path to a counterparty universe JSON file or SQLite DB")
	scorerCmd := flag.String("scorer", "", "External scoring command ('python3 infer.py' style); built-in heuristic when empty")
	format := flag.String("format", "markdown", "Output format: markdown, json, or pdf")
	outPath := flag.String("out", "", "Output file (default: stdout; required for pdf)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rawText, err := readTeaser(ctx, *teaserPath)
	if err != nil {
		log.Fatal(err)
	}

	cps := loadUniverse(*universePath)

	caller, err := llm.NewAnthropicCallerFromEnv()
	if err != nil {
		log.Fatal(err)
	}

	var scorer match.Scorer = match.HeuristicScorer{}
	if strings.TrimSpace(*scorerCmd) != "" {
		scorer = match.NewSubprocessScorer(strings.Fields(*scorerCmd))
	}

	pipe := pipeline.New(
		dealextract.NewExtractor(caller),
		match.NewRanker(scorer),
		outreach.NewGenerator(caller),
		cps,
	)

	res, err := pipe.AnalyzeWithProgress(ctx, rawText, func(stage, message string) {
		log.Printf("[%s] %s", stage, message)
	})
	if err != nil {
		log.Fatal(err)
	}

	if err := writeOutput(ctx, res, *format, *outPath); err != nil {
		log.Fatal(err)
	}
}

func readTeaser(ctx context.Context, path string) (string, error) {
	if path == "" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		res, err := teaserpdf.Extract(ctx, path)
		if err != nil {
			return "", fmt.Errorf("extract pdf: %w", err)
		}
		log.Printf("extracted %d chars via %s", len(res.Text), res.Method)
		if code := teaserpdf.DetectProjectCode(res.Text); code != "" {
			log.Printf("detected codename %s", code)
		}
		return res.Text, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read teaser: %w", err)
	}
	return string(b), nil
}

func loadUniverse(path string) []universe.Counterparty {
	if path == "" {
		log.Printf("no universe configured, using the built-in default")
		return universe.DefaultUniverse()
	}
	cps, err := readUniverse(path)
	if err != nil {
		log.Printf("universe %s unreadable (%v), using the built-in default", path, err)
		return universe.DefaultUniverse()
	}
	if len(cps) == 0 {
		log.Printf("universe %s is empty, using the built-in default", path)
		return universe.DefaultUniverse()
	}
	return cps
}

func readUniverse(path string) ([]universe.Counterparty, error) {
	if strings.HasSuffix(path, ".db") || strings.HasSuffix(path, ".sqlite") {
		store, err := universe.NewStore(path)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		return store.All()
	}
	return universe.LoadFile(path)
}

func writeOutput(ctx context.Context, res pipeline.Result, format, outPath string) error {
	var blob []byte
	switch format {
	case "json":
		b, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		blob = append(b, '\n')
	case "markdown":
		blob = []byte(pipeline.BuildTearSheet(res))
	case "pdf":
		if outPath == "" {
			return fmt.Errorf("pdf output requires -out")
		}
		b, err := export.NewPDFRenderer().Render(ctx, pipeline.BuildTearSheet(res), res.Deal.Name)
		if err != nil {
			return fmt.Errorf("render pdf: %w", err)
		}
		blob = b
	default:
		return fmt.Errorf("unknown format %q", format)
	}

	if outPath == "" {
		_, err := os.Stdout.Write(blob)
		return err
	}
	if err := os.WriteFile(outPath, blob, 0o644); err != nil {
		return err
	}
	log.Printf("wrote %s (%d bytes)", outPath, len(blob))
	return nil
}
