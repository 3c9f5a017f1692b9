package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/seeker/internal/app"
	"github.com/hyperifyio/seeker/internal/session"
)

const (
	exitOK               = 0
	exitInvalidConfig    = 1
	exitDuplicateSession = 2
)

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var (
		configPath   string
		model        string
		sessionName  string
		deepResearch int
		deepDive     bool
		forceSearch  bool
		summarize    bool
		openBrowser  bool
		verbose      bool
		dbPath       string
		cacheDir     string
		cacheClear   bool
		clearSession bool
	)

	flag.StringVar(&configPath, "config", defaultConfigPath(), "Path to YAML configuration file")
	flag.StringVar(&model, "model", "", "Model alias from the [models] config section")
	flag.StringVar(&sessionName, "session", "", "Session name or id to resume (new name creates one)")
	flag.IntVar(&deepResearch, "deep-research", 0, "Require at least N distinct search/fetch actions")
	flag.BoolVar(&deepDive, "deep-dive", false, "Crawl within one domain from a single starting page")
	flag.BoolVar(&forceSearch, "force-search", false, "Always search before answering")
	flag.BoolVar(&summarize, "summarize", false, "Summarize fetched page content before handing it to the model")
	flag.BoolVar(&openBrowser, "open-browser", false, "Open URLs from the answer in a browser (handled by an external opener)")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.BoolVar(&verbose, "verbose", false, "Verbose logging (same as -v)")
	flag.StringVar(&dbPath, "db", "", "Override the SQLite history database path")
	flag.StringVar(&cacheDir, "cache.dir", "", "HTTP/LLM cache directory (empty disables)")
	flag.BoolVar(&cacheClear, "cache.clear", false, "Clear the cache directory before running")
	flag.BoolVar(&clearSession, "clear-session", false, "Detach this shell from its sticky session and exit")
	flag.Parse()

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if clearSession {
		session.ClearShellSession()
		fmt.Fprintln(os.Stderr, "shell session cleared")
		os.Exit(exitOK)
	}

	query := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if query == "" {
		fmt.Fprintln(os.Stderr, "usage: seeker [flags] <query>")
		flag.PrintDefaults()
		os.Exit(exitInvalidConfig)
	}

	cfg := app.Config{
		Query:         query,
		ConfigPath:    configPath,
		ModelAlias:    model,
		SessionName:   sessionName,
		DeepResearchN: deepResearch,
		DeepDive:      deepDive,
		ForceSearch:   forceSearch,
		Summarize:     summarize,
		DBPath:        dbPath,
		CacheDir:      cacheDir,
		CacheClear:    cacheClear,
		Verbose:       verbose,
		OpenBrowser:   openBrowser,
	}

	os.Exit(run(cfg))
}

func run(cfg app.Config) int {
	ctx := context.Background()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return exitInvalidConfig
	}
	defer a.Close()

	answer, err := a.Run(ctx)
	if err != nil {
		var dup *session.DuplicateSessionError
		if errors.As(err, &dup) {
			fmt.Fprintf(os.Stderr, "session name %q is ambiguous:\n", dup.Name)
			for _, c := range dup.Candidates {
				fmt.Fprintf(os.Stderr, "  %d  %s  %s\n", c.ID, c.Name, c.Preview)
			}
			fmt.Fprintln(os.Stderr, "re-run with --session <id>")
			return exitDuplicateSession
		}
		log.Error().Err(err).Msg("run failed")
		return exitInvalidConfig
	}

	fmt.Println(answer)
	log.Debug().Int("tokens", a.Usage()).Msg("model usage")
	return exitOK
}

// defaultConfigPath resolves the per-user config file. A missing file
// simply yields built-in defaults.
func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return dir + "/seeker/config.yaml"
}
