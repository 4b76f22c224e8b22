package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/joelkehle/dealdesk/internal/universe"
)

func main() {
	seed := flag.Int64("seed", 42, "Random seed")
	count := flag.Int("count", 120, "Number of counterparties to generate")
	out := flag.String("out", "universe.json", "Output path (.json, .db, or .sqlite)")
	flag.Parse()

	cps := universe.Generate(*seed, *count)

	if strings.HasSuffix(*out, ".db") || strings.HasSuffix(*out, ".sqlite") {
		store, err := universe.NewStore(*out)
		if err != nil {
			log.Fatal(err)
		}
		defer store.Close()
		if err := store.Replace(cps); err != nil {
			log.Fatal(err)
		}
		log.Printf("wrote %d counterparties to %s", len(cps), *out)
		return
	}

	blob, err := json.MarshalIndent(cps, "", "  ")
	if err != nil {
		log.Fatal(err)
	}
	if err := os.WriteFile(*out, append(blob, '\n'), 0o644); err != nil {
		log.Fatal(err)
	}
	log.Printf("wrote %d counterparties to %s", len(cps), *out)
}
