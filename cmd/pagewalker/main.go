package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"pagewalker/internal/config"
	"pagewalker/internal/crawler"
	"pagewalker/pkg/types"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "Path to engine configuration file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	engine, err := crawler.NewEngine(*cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise engine: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reports, err := engine.Run(ctx)
	printSummary(reports)
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "engine stopped with error: %v\n", err)
		os.Exit(1)
	}
	for _, report := range reports {
		if report.Outcome == types.CrawlFailed {
			os.Exit(1)
		}
	}
}

func printSummary(reports []*types.CrawlReport) {
	for _, r := range reports {
		fmt.Printf("%s: %s, %d page(s), %d record(s), %d failure(s)\n",
			r.Target, r.Outcome, r.PagesVisited, r.RecordsEmitted, len(r.Failures))
		for _, f := range r.Failures {
			fmt.Printf("  failed page %s: %s\n", f.Location, f.Kind)
		}
	}
}
