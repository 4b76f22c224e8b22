package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/joelkehle/dealdesk/internal/dealextract"
	"github.com/joelkehle/dealdesk/internal/httpapi"
	"github.com/joelkehle/dealdesk/internal/llm"
	"github.com/joelkehle/dealdesk/internal/match"
	"github.com/joelkehle/dealdesk/internal/outreach"
	"github.com/joelkehle/dealdesk/internal/pipeline"
	"github.com/joelkehle/dealdesk/internal/universe"
)

func main() {
	addr := flag.String("addr", ":8080", "Listen address")
	universePath := flag.String("universe", "", "Path to a counterparty universe JSON file or SQLite DB")
	scorerCmd := flag.String("scorer", "", "External scoring command; built-in heuristic when empty")
	flag.Parse()

	shutdownTracing := setupTracing()
	defer shutdownTracing()

	cps := loadUniverse(*universePath)
	log.Printf("loaded %d counterparties", len(cps))

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

	srv := &http.Server{
		Addr:              *addr,
		Handler:           httpapi.NewServer(pipe),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("dealdesk server listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

// setupTracing wires the OTLP HTTP exporter when OTEL_EXPORTER_OTLP_ENDPOINT
// is set; otherwise spans stay in-process only.
func setupTracing() func() {
	if strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")) == "" {
		return func() {}
	}
	ctx := context.Background()
	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		log.Printf("tracing disabled: %v", err)
		return func() {}
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}
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
