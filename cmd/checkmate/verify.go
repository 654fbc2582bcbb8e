package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/toorcn/checkmate/internal/config"
	"github.com/toorcn/checkmate/internal/pipeline"
	"github.com/toorcn/checkmate/internal/ratelimit"
	"github.com/toorcn/checkmate/internal/tui"
)

func runVerify() {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "print the full result as JSON")
	withTUI := fs.Bool("tui", false, "render live progress in the terminal")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: checkmate verify [--json|--tui] <url>")
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[1:])

	rawURL := strings.TrimSpace(fs.Arg(0))
	if rawURL == "" {
		fs.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, config.Load(), true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "checkmate: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	// The CLI is the operator's own machine; run at the premium tier.
	id := ratelimit.Identity{Key: "cli", Tier: ratelimit.TierPremium}

	var res *pipeline.Result
	if *withTUI {
		res, err = tui.Run(ctx, a.pipeline, rawURL, id)
	} else {
		res, err = a.pipeline.Process(ctx, rawURL, id, func(stage pipeline.Stage, status pipeline.StageStatus) {
			if !*asJSON {
				fmt.Printf("  %-10s %s\n", stage, status)
			}
		})
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "checkmate: %v\n", err)
		os.Exit(1)
	}
	if res == nil {
		os.Exit(130) // interrupted from the TUI
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			fmt.Fprintf(os.Stderr, "checkmate: encode result: %v\n", err)
			os.Exit(1)
		}
		return
	}
	printResult(res)
}

func printResult(res *pipeline.Result) {
	fmt.Printf("\n%s (%s)\n", res.URL, res.Platform)
	if res.Metadata != nil {
		if res.Metadata.Title != "" {
			fmt.Printf("  Title:       %s\n", res.Metadata.Title)
		}
		if res.Metadata.Creator != "" {
			fmt.Printf("  Creator:     %s\n", res.Metadata.Creator)
		}
	}
	if fc := res.FactCheck; fc != nil {
		fmt.Printf("  Verdict:     %s (%.0f%% confidence)\n", strings.ToUpper(fc.Verdict), fc.Confidence)
		if len(fc.Flags) > 0 {
			fmt.Printf("  Flags:       %s\n", strings.Join(fc.Flags, ", "))
		}
		if pb := fc.PoliticalBias; pb != nil {
			if pb.RegionScore != nil {
				fmt.Printf("  Bias:        %s (%d/100)\n", pb.Direction, *pb.RegionScore)
			} else if pb.Direction != "none" {
				fmt.Printf("  Bias:        %s (intensity %.2f)\n", pb.Direction, pb.Intensity)
			}
		}
		if fc.Explanation != "" {
			fmt.Printf("  Explanation: %s\n", fc.Explanation)
		}
		for _, s := range fc.Sources {
			fmt.Printf("    - [%d/10] %s\n", s.Credibility, s.URL)
		}
	}
	if res.CreatorCredibilityRating != nil {
		fmt.Printf("  Credibility: %.1f / 10\n", *res.CreatorCredibilityRating)
		for _, f := range res.Factors {
			fmt.Printf("    %s\n", f)
		}
	}
	fmt.Printf("  Took:        %s\n", res.Duration.Round(10*time.Millisecond))
}
