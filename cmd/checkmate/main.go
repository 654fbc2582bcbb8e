// Command checkmate is the verification CLI and server.
//
// Usage:
//
//	checkmate                     Show help
//	checkmate verify <url>        Verify one URL (--tui, --json)
//	checkmate serve               Run the HTTP API server
//	checkmate stats               Creator reputation summary
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/toorcn/checkmate/internal/logging"
)

const usage = `checkmate - content verification CLI & server

Usage:
  checkmate <command> [flags]

Commands:
  verify <url>   Run the verification pipeline on a URL
  serve          Run the HTTP API server
  stats          Creator reputation summary

Environment:
  ANTHROPIC_API_KEY     Anthropic key for verdict synthesis
  OPENAI_API_KEY        OpenAI key (verdicts, Whisper transcription)
  SEARCH_API_KEY        Web search API key (required for fact-checking)
  SCRAPE_API_KEY        Short-video scrape service key
  TWITTER_BEARER_TOKEN  Twitter/X app bearer token
  DATABASE_URL          Postgres URL for the shared rate-limit store
  NATS_URL              NATS URL for verification events

Run 'checkmate <command> -h' for command-specific help.
`

func main() {
	// Missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	if err := logging.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "checkmate: logging init: %v\n", err)
	}
	defer logging.Close()

	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(0)
	}

	cmd := os.Args[1]
	// Strip the program name + subcommand so flag sets see only their flags
	os.Args = os.Args[1:]

	switch cmd {
	case "verify":
		runVerify()
	case "serve":
		runServe()
	case "stats":
		runStats()
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "checkmate: unknown command %q\n\n", cmd)
		fmt.Print(usage)
		os.Exit(1)
	}
}
