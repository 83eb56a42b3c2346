package crawler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pdiaz/bgg-crawler/internal/metrics"
)

// Wait selectors marking each page kind as fully rendered.
const (
	listWaitSelector   = ".collection_table"
	detailWaitSelector = ".game-header-body"
)

// Config holds the settings for one crawl run.
type Config struct {
	// StartURL is the browse catalog root.
	StartURL string
	// StartPage offsets the initial bookmark (1-based).
	StartPage int
	// Limit caps the number of items handled this run (new + skipped +
	// failed). Zero means unlimited. When the limit lands mid-page the
	// partial batch is flushed before stopping.
	Limit int

	PagePolicy RetryPolicy
	ItemPolicy RetryPolicy
}

// Engine drives the two crawl passes. It is strictly sequential: the
// browsing session behind the Fetcher is a single shared tab that cannot
// serve concurrent navigations.
type Engine struct {
	cfg     Config
	fetcher Fetcher
	lists   ListExtractor
	details DetailExtractor
	ratings RatingsFetcher
	store   Store
	timer   Timer
	metrics *metrics.Metrics
	logger  *zap.Logger

	counters Counters
}

// NewEngine constructs an Engine. timer and mx may be nil.
func NewEngine(
	cfg Config,
	fetcher Fetcher,
	lists ListExtractor,
	details DetailExtractor,
	ratings RatingsFetcher,
	store Store,
	timer Timer,
	mx *metrics.Metrics,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PagePolicy == (RetryPolicy{}) {
		cfg.PagePolicy = PageRetryPolicy()
	}
	if cfg.ItemPolicy == (RetryPolicy{}) {
		cfg.ItemPolicy = ItemRetryPolicy()
	}
	return &Engine{
		cfg:     cfg,
		fetcher: fetcher,
		lists:   lists,
		details: details,
		ratings: ratings,
		store:   store,
		timer:   timer,
		metrics: mx,
		logger:  logger,
	}
}

// Counters returns a snapshot of the run's item accounting.
func (e *Engine) Counters() Counters {
	return e.counters
}

// pageBatch accumulates one catalog page's worth of committed work.
type pageBatch struct {
	records []GameRecord
	ids     []string
}

func (b *pageBatch) add(record GameRecord) {
	b.records = append(b.records, record)
	b.ids = append(b.ids, record.ID)
}

func (b *pageBatch) reset() {
	b.records = nil
	b.ids = nil
}

// DetailsPass walks the catalog from the configured start bookmark,
// skipping games already present in the loaded index and flushing one
// batch per page. The bookmark lives only in memory; a restarted run
// re-walks pagination and relies on the index for cheap skips.
func (e *Engine) DetailsPass(ctx context.Context) error {
	loadedIDs, err := e.store.ReadLoaded()
	if err != nil {
		return fmt.Errorf("read loaded index: %w", err)
	}
	loaded := make(map[string]struct{}, len(loadedIDs))
	for _, id := range loadedIDs {
		loaded[id] = struct{}{}
	}

	bookmark := BrowsePageURL(e.cfg.StartURL, e.cfg.StartPage)
	e.logger.Info("details pass starting",
		zap.String("bookmark", bookmark),
		zap.Int("already_loaded", len(loadedIDs)),
	)

	for bookmark != "" {
		if err := ctx.Err(); err != nil {
			return err
		}

		listing, err := e.fetchListing(ctx, bookmark)
		if err != nil {
			return err
		}

		var batch pageBatch
		limitHit, err := e.processPage(ctx, listing.Stubs, loaded, &batch)
		if err != nil {
			return err
		}

		pageNew := len(batch.records)
		if err := e.flush(&batch); err != nil {
			return err
		}
		e.counters.Pages++
		if e.metrics != nil {
			e.metrics.Pages.Inc()
		}
		e.logger.Info("page flushed",
			zap.String("bookmark", bookmark),
			zap.Int("page_new", pageNew),
			zap.Int("new", e.counters.New),
			zap.Int("skipped", e.counters.Skipped),
			zap.Int("failed", e.counters.Failed),
		)

		if limitHit {
			e.logger.Info("item limit reached", zap.Int("limit", e.cfg.Limit))
			return nil
		}
		bookmark = listing.NextURL
	}

	e.logger.Info("details pass complete",
		zap.Int("new", e.counters.New),
		zap.Int("skipped", e.counters.Skipped),
		zap.Int("failed", e.counters.Failed),
		zap.Int("pages", e.counters.Pages),
	)
	return nil
}

// processPage handles every stub on one page in listed order. It reports
// whether the run limit was reached; the caller still flushes the batch.
func (e *Engine) processPage(
	ctx context.Context,
	stubs []GameStub,
	loaded map[string]struct{},
	batch *pageBatch,
) (bool, error) {
	for _, stub := range stubs {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if e.cfg.Limit > 0 && e.counters.Processed() >= e.cfg.Limit {
			return true, nil
		}

		id, err := GameIDFromHref(stub.Href)
		if err != nil {
			e.counters.Failed++
			e.observeItem("failed")
			e.logger.Warn("unparseable game href", zap.String("href", stub.Href), zap.Error(err))
			continue
		}
		if _, ok := loaded[id]; ok {
			e.counters.Skipped++
			e.observeItem("skipped")
			continue
		}

		record, ok, err := e.fetchDetails(ctx, stub, id)
		if err != nil {
			return false, err
		}
		if !ok {
			e.counters.Failed++
			e.observeItem("failed")
			continue
		}

		batch.add(record)
		loaded[id] = struct{}{}
		e.counters.New++
		e.observeItem("new")
	}
	return e.cfg.Limit > 0 && e.counters.Processed() >= e.cfg.Limit, nil
}

// fetchListing retries the same bookmark until it yields a parseable page.
// Deliberately unbounded: skipping a catalog page would silently drop every
// game on it, and browse pages are assumed eventually fetchable.
func (e *Engine) fetchListing(ctx context.Context, bookmark string) (Listing, error) {
	for attempt := 0; ; attempt++ {
		if e.timer != nil {
			e.timer.Start("browsePage")
		}
		html, err := e.fetcher.Fetch(ctx, bookmark, listWaitSelector)
		if err == nil {
			var listing Listing
			listing, err = e.lists.Extract(html, bookmark)
			if err == nil {
				if e.timer != nil {
					e.timer.End("browsePage")
				}
				return listing, nil
			}
		}
		if e.timer != nil {
			e.timer.End("browsePage")
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Listing{}, ctxErr
		}
		e.logger.Warn("browse page fetch failed, retrying",
			zap.String("bookmark", bookmark),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		if err := e.cfg.PagePolicy.Wait(ctx, attempt); err != nil {
			return Listing{}, err
		}
	}
}

// fetchDetails attempts one game's detail page under the capped item
// policy. ok == false means the item was abandoned for this run; it stays
// out of the index so a future run retries it.
func (e *Engine) fetchDetails(ctx context.Context, stub GameStub, id string) (GameRecord, bool, error) {
	for attempt := 1; ; attempt++ {
		if e.timer != nil {
			e.timer.Start("gameDetails")
		}
		record, err := e.tryDetails(ctx, stub, id)
		if e.timer != nil {
			e.timer.End("gameDetails")
		}
		if err == nil {
			return record, true, nil
		}
		// A fetch error wrapping a deadline is still transient: the
		// per-navigation timeout fires on slow pages. Only the caller's
		// context decides whether the run is over.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return GameRecord{}, false, ctxErr
		}
		if e.cfg.ItemPolicy.Exhausted(attempt) {
			e.logger.Warn("game abandoned after retry cap",
				zap.String("game_id", id),
				zap.String("href", stub.Href),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return GameRecord{}, false, nil
		}
		e.logger.Debug("game detail fetch failed",
			zap.String("game_id", id),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if err := e.cfg.ItemPolicy.Wait(ctx, attempt); err != nil {
			return GameRecord{}, false, err
		}
	}
}

func (e *Engine) tryDetails(ctx context.Context, stub GameStub, id string) (GameRecord, error) {
	html, err := e.fetcher.Fetch(ctx, stub.Href, detailWaitSelector)
	if err != nil {
		return GameRecord{}, fmt.Errorf("fetch game page: %w", err)
	}
	record, err := e.details.Extract(html, stub)
	if err != nil {
		return GameRecord{}, fmt.Errorf("extract game record: %w", err)
	}
	record.ID = id
	return record, nil
}

// flush commits one page batch: records strictly before the index, so a
// crash between the two can only duplicate a record on resume, never index
// a record that was not written.
func (e *Engine) flush(batch *pageBatch) error {
	if err := e.store.AppendDetails(batch.records); err != nil {
		return fmt.Errorf("append game records: %w", err)
	}
	if err := e.store.AppendLoaded(batch.ids); err != nil {
		return fmt.Errorf("append loaded index: %w", err)
	}
	batch.reset()
	return nil
}

// RatingsPass fetches the full rating history of every loaded game not yet
// present in the ratings index. It runs only after the details pass has
// committed, because its input set is the loaded index itself.
func (e *Engine) RatingsPass(ctx context.Context) error {
	loaded, err := e.store.ReadLoaded()
	if err != nil {
		return fmt.Errorf("read loaded index: %w", err)
	}
	loadedRatings, err := e.store.ReadLoadedRatings()
	if err != nil {
		return fmt.Errorf("read ratings index: %w", err)
	}
	done := make(map[string]struct{}, len(loadedRatings))
	for _, id := range loadedRatings {
		done[id] = struct{}{}
	}

	e.logger.Info("ratings pass starting",
		zap.Int("games", len(loaded)),
		zap.Int("already_loaded", len(done)),
	)

	for _, id := range loaded {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, ok := done[id]; ok {
			continue
		}
		if err := e.LoadGameRatings(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// LoadGameRatings paginates one game's rating feed to exhaustion and
// commits the whole history as a single batch. One record-index pair per
// game: the feed has no page-level checkpoint worth preserving.
func (e *Engine) LoadGameRatings(ctx context.Context, gameID string) error {
	if e.timer != nil {
		e.timer.Start("gameRatings")
		defer e.timer.End("gameRatings")
	}

	var all []RatingRecord
	for page := 1; ; page++ {
		ratings, err := e.fetchRatingsPage(ctx, gameID, page)
		if err != nil {
			return err
		}
		if len(ratings) == 0 {
			break
		}
		all = append(all, ratings...)
		if e.metrics != nil {
			e.metrics.RatingsPages.Inc()
		}
	}

	if err := e.store.AppendRatings(RatingsBatch{GameID: gameID, Ratings: all}); err != nil {
		return fmt.Errorf("append ratings for game %s: %w", gameID, err)
	}
	merged, err := e.store.AppendLoadedRatings([]string{gameID})
	if err != nil {
		return fmt.Errorf("append ratings index for game %s: %w", gameID, err)
	}
	e.logger.Info("game ratings flushed",
		zap.String("game_id", gameID),
		zap.Int("ratings", len(all)),
		zap.Int("games_loaded", len(merged)),
	)
	return nil
}

// fetchRatingsPage retries one feed page under the unbounded page policy,
// mirroring the browse loop.
func (e *Engine) fetchRatingsPage(ctx context.Context, gameID string, page int) ([]RatingRecord, error) {
	for attempt := 0; ; attempt++ {
		ratings, err := e.ratings.Fetch(ctx, gameID, page)
		if err == nil {
			return ratings, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		e.logger.Warn("ratings page fetch failed, retrying",
			zap.String("game_id", gameID),
			zap.Int("page", page),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		if err := e.cfg.PagePolicy.Wait(ctx, attempt); err != nil {
			return nil, err
		}
	}
}

func (e *Engine) observeItem(outcome string) {
	if e.metrics == nil {
		return
	}
	switch outcome {
	case "new":
		e.metrics.ItemsNew.Inc()
	case "skipped":
		e.metrics.ItemsSkipped.Inc()
	case "failed":
		e.metrics.ItemsFailed.Inc()
	}
}
