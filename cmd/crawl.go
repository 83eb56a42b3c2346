package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiaz/bgg-crawler/internal/config"
	"github.com/pdiaz/bgg-crawler/internal/crawler"
	"github.com/pdiaz/bgg-crawler/internal/extract"
	"github.com/pdiaz/bgg-crawler/internal/fetcher/headless"
	"github.com/pdiaz/bgg-crawler/internal/logging"
	"github.com/pdiaz/bgg-crawler/internal/metrics"
	"github.com/pdiaz/bgg-crawler/internal/ratings"
	"github.com/pdiaz/bgg-crawler/internal/store"
	"github.com/pdiaz/bgg-crawler/internal/timing"
)

type crawlFlags struct {
	resume      bool
	startPage   int
	limit       int
	gameID      string
	onlyDetails bool
	onlyRatings bool
	yes         bool
}

// newCrawlCmd creates and configures the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	flags := &crawlFlags{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs the catalog crawl and the ratings pass",
		Long: `Walks the browse catalog page by page, committing one batch of game
records per page, then fetches the full rating history of every loaded
game. With --resume the latest existing session directory is reused and
already-loaded games are skipped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd.Context(), flags)
		},
	}

	cmd.Flags().BoolVar(&flags.resume, "resume", false, "reuse the latest session directory instead of allocating a new one")
	cmd.Flags().IntVar(&flags.startPage, "start-page", 1, "browse page to start from")
	cmd.Flags().IntVar(&flags.limit, "limit", 0, "stop after this many items (new + skipped + failed); 0 means unlimited")
	cmd.Flags().StringVar(&flags.gameID, "game-id", "", "skip the crawl and fetch ratings for this game only")
	cmd.Flags().BoolVar(&flags.onlyDetails, "only-details", false, "run the details pass only")
	cmd.Flags().BoolVar(&flags.onlyRatings, "only-ratings", false, "run the ratings pass only")
	cmd.Flags().BoolVar(&flags.yes, "yes", false, "skip the confirmation prompt")

	return cmd
}

func runCrawl(ctx context.Context, flags *crawlFlags) error {
	if flags.onlyDetails && flags.onlyRatings {
		return fmt.Errorf("--only-details and --only-ratings are mutually exclusive")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.With(zap.String("run_id", uuid.NewString()))

	st := store.New(store.Config{
		BaseDir: cfg.Storage.BaseDir,
		Prefix:  cfg.Storage.Prefix,
		Resume:  flags.resume,
	}, logger)
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logger.Warn("closing store", zap.Error(cerr))
		}
	}()

	if !flags.yes && !confirm(cfg.Crawl.StartURL, st.Dir()) {
		logger.Info("crawl aborted at prompt")
		return nil
	}

	mx := metrics.New()
	if cfg.Debug.Addr != "" {
		srv := metrics.NewServer(cfg.Debug.Addr, mx, logger)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	engine, cleanup, err := buildEngine(cfg, flags, st, mx, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	err = runPasses(ctx, engine, flags)
	if interrupted(ctx, err) {
		logger.Info("interrupted, shutting down",
			zap.Int("new", engine.Counters().New),
			zap.Int("skipped", engine.Counters().Skipped),
			zap.Int("failed", engine.Counters().Failed),
		)
		return nil
	}
	return err
}

// buildEngine wires the collaborators. The browser is launched only when a
// details pass will actually run; the ratings passes need just the feed
// client and the store.
func buildEngine(
	cfg config.Config,
	flags *crawlFlags,
	st *store.Store,
	mx *metrics.Metrics,
	logger *zap.Logger,
) (*crawler.Engine, func(), error) {
	engineCfg := crawler.Config{
		StartURL:  cfg.Crawl.StartURL,
		StartPage: flags.startPage,
		Limit:     flags.limit,
		PagePolicy: crawler.RetryPolicy{
			MaxAttempts: 0,
			BaseDelay:   time.Duration(cfg.Crawl.PageBackoffMs) * time.Millisecond,
			MaxDelay:    time.Duration(cfg.Crawl.PageBackoffMaxMs) * time.Millisecond,
		},
		ItemPolicy: crawler.RetryPolicy{
			MaxAttempts: cfg.Crawl.ItemMaxAttempts,
			BaseDelay:   time.Duration(cfg.Crawl.ItemBackoffMs) * time.Millisecond,
			MaxDelay:    time.Duration(cfg.Crawl.ItemBackoffMaxMs) * time.Millisecond,
		},
	}

	feed := ratings.New(ratings.Config{
		BaseURL:   cfg.Ratings.BaseURL,
		UserAgent: cfg.Browser.UserAgent,
		Timeout:   cfg.RatingsTimeout(),
		PageSize:  cfg.Ratings.PageSize,
	})
	timer := timing.New(logger, mx)

	needBrowser := flags.gameID == "" && !flags.onlyRatings
	var (
		// Left as a nil interface when no details pass runs, so a stray
		// Fetch call fails fast instead of hitting a typed-nil fetcher.
		fetcher crawler.Fetcher
		cleanup = func() {}
	)
	if needBrowser {
		browser, err := headless.New(headless.Config{
			UserAgent:  cfg.Browser.UserAgent,
			NavTimeout: cfg.NavTimeout(),
			QPS:        cfg.Browser.QPS,
		}, mx, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("launch browser: %w", err)
		}
		fetcher = browser
		cleanup = browser.Close
	}

	engine := crawler.NewEngine(
		engineCfg,
		fetcher,
		extract.NewListExtractor(),
		extract.NewDetailExtractor(),
		feed,
		st,
		timer,
		mx,
		logger,
	)
	return engine, cleanup, nil
}

func runPasses(ctx context.Context, engine *crawler.Engine, flags *crawlFlags) error {
	if flags.gameID != "" {
		return engine.LoadGameRatings(ctx, flags.gameID)
	}
	if !flags.onlyRatings {
		if err := engine.DetailsPass(ctx); err != nil {
			return err
		}
	}
	if !flags.onlyDetails {
		if err := engine.RatingsPass(ctx); err != nil {
			return err
		}
	}
	return nil
}

// interrupted reports whether a failed run should be treated as an orderly
// interrupt. Only the signal context decides: an engine error that merely
// wraps context.Canceled (a crashed browser tab, for one) stays fatal.
func interrupted(ctx context.Context, err error) bool {
	return err != nil && ctx.Err() != nil
}

func confirm(startURL, sessionDir string) bool {
	fmt.Printf("About to crawl %s into %s. Continue? [y/N]: ", startURL, sessionDir)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
