package main

/*
session_copilot reviews recorded Growth Mindset session transcripts and
serves the supervisor dashboard API.

Usage:
  OPENAI_API_KEY=... go run ./cmd/session_copilot serve
  go run ./cmd/session_copilot seed

Commands:
  serve   Start the HTTP API.
  seed    Load the demo supervisor and fellow sessions into the database.

Configuration comes from defaults, an optional YAML file at
$SESSION_COPILOT_CONFIG, and environment overrides (OPENAI_API_KEY,
OPENAI_MODEL, SESSION_COPILOT_DB, SESSION_COPILOT_ADDR).
*/

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/tumainilabs/session_copilot/internal/analysis"
	"github.com/tumainilabs/session_copilot/internal/config"
	"github.com/tumainilabs/session_copilot/internal/logging"
	"github.com/tumainilabs/session_copilot/internal/openai"
	"github.com/tumainilabs/session_copilot/internal/risk"
	"github.com/tumainilabs/session_copilot/internal/sampler"
	"github.com/tumainilabs/session_copilot/internal/seed"
	"github.com/tumainilabs/session_copilot/internal/server"
	"github.com/tumainilabs/session_copilot/internal/store"
)

func main() {
	log.SetFlags(0)
	if err := runCLI(); err != nil {
		log.Fatalf("error: %v", err)
	}
}

func runCLI() error {
	if len(os.Args) < 2 {
		printUsage()
		return nil
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "serve":
		return runServeCmd(args)
	case "seed":
		return runSeedCmd(args)
	case "-h", "--help", "help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", command)
	}
}

func runServeCmd(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", "", "listen address (overrides config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.Load()
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if strings.TrimSpace(cfg.OpenAI.APIKey) == "" {
		return errors.New("OPENAI_API_KEY is required")
	}

	logger, err := logging.New(cfg.Logging.Mode)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	st, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	matcher := risk.NewLexiconMatcher()
	llm := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL, nil)
	pipeline := analysis.NewService(llm, sampler.New(cfg.OpenAI.TranscriptBudget, matcher), matcher, logger)

	srv := server.New(st, pipeline, logger)
	logger.Infow("starting HTTP API", "addr", cfg.Server.Addr, "db", cfg.Storage.DBPath, "model", llm.Model())
	return srv.Router().Run(cfg.Server.Addr)
}

func runSeedCmd(args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	dbPath := fs.String("db", "", "SQLite database path (overrides config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.Load()
	if *dbPath != "" {
		cfg.Storage.DBPath = *dbPath
	}

	st, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	count, err := seed.Run(st, time.Now())
	if err != nil {
		return err
	}
	fmt.Printf("seeded_sessions=%d supervisor=%s db=%s\n", count, seed.DemoSupervisorID, cfg.Storage.DBPath)
	return nil
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  go run ./cmd/session_copilot serve [--addr :8080]")
	fmt.Println("  go run ./cmd/session_copilot seed [--db data/session_copilot.db]")
}
