package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/toorcn/checkmate/internal/config"
	"github.com/toorcn/checkmate/internal/reputation"
)

func runStats() {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	top := fs.Int("top", 10, "number of creators to list")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: checkmate stats [--top 10]")
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[1:])

	cfg := config.Load()
	store, err := reputation.Open(cfg.Reputation.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "checkmate: open reputation store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	overview, err := store.Overview(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "checkmate: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Analyses:   %d across %d creators\n", overview.TotalAnalyses, overview.Creators)
	fmt.Printf("Verified:   %d\n", overview.VerifiedCount)
	fmt.Printf("Misleading: %d\n", overview.MisleadingCount)
	fmt.Printf("False:      %d\n", overview.FalseCount)

	creators, err := store.TopCreators(ctx, *top)
	if err != nil {
		fmt.Fprintf(os.Stderr, "checkmate: %v\n", err)
		os.Exit(1)
	}
	if len(creators) == 0 {
		return
	}

	fmt.Printf("\n%-10s %-24s %8s %6s\n", "PLATFORM", "CREATOR", "ANALYSES", "AVG")
	for _, c := range creators {
		fmt.Printf("%-10s %-24s %8d %6.1f\n", c.Platform, c.Creator, c.TotalAnalyses, c.AverageRating)
	}
}
