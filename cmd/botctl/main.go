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

	"github.com/joho/godotenv"

	"llm-trading-dashboard/internal/api"
	"llm-trading-dashboard/internal/api/apiobs"
	"llm-trading-dashboard/internal/control"
	"llm-trading-dashboard/internal/logger"
	"llm-trading-dashboard/internal/store"
	"llm-trading-dashboard/internal/tradelog"
)

const usage = `usage: botctl [-config config.yaml] <command>

commands:
  start               enable the bot and trigger an agent run
  stop                disable the bot
  toggle              stop if running, start otherwise
  close SYMBOL...     submit sell orders for the given positions
  history [YYYY-MM-DD] print the command journal for a day (default today)
`

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	if err := logger.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := store.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	journal := tradelog.FromEnv()
	clientOpts := []api.ClientOption{
		api.WithBaseURL(cfg.Backend.BaseURL),
		api.WithTimeout(cfg.RequestTimeout()),
		api.WithLogging(cfg.Backend.LogRequests),
	}
	for k, v := range cfg.Backend.Headers {
		clientOpts = append(clientOpts, api.WithHeader(k, v))
	}
	backend := apiobs.Wrap(api.NewBackend(api.NewClient(clientOpts...)))
	ctl := control.New(backend, journal)

	var notes []control.Notification
	switch args[0] {
	case "start":
		notes = append(notes, ctl.ToggleBot(ctx, false))
	case "stop":
		notes = append(notes, ctl.ToggleBot(ctx, true))
	case "toggle":
		st, err := backend.Status(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading bot status: %v\n", err)
			os.Exit(1)
		}
		notes = append(notes, ctl.ToggleBot(ctx, st.BotActive))
	case "close":
		notes, err = ctl.ClosePositions(ctx, normalizeSymbols(args[1:]))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
	case "history":
		if err := printHistory(journal, args[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	default:
		flag.Usage()
		os.Exit(2)
	}

	failed := false
	for _, n := range notes {
		fmt.Printf("[%s] %s\n", strings.ToUpper(string(n.Level)), n.Message)
		failed = failed || n.Level == control.LevelError
	}
	if failed {
		os.Exit(1)
	}
}

func normalizeSymbols(args []string) []string {
	var out []string
	for _, a := range args {
		for _, s := range strings.Split(a, ",") {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func printHistory(journal *tradelog.Journal, args []string) error {
	day := time.Now()
	if len(args) > 0 {
		t, err := time.Parse("2006-01-02", args[0])
		if err != nil {
			return fmt.Errorf("invalid date %q: %w", args[0], err)
		}
		day = t
	}

	entries, err := journal.Day(day)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}
