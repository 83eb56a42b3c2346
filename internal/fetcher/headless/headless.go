// Package headless implements the page fetcher on a single headless Chrome
// tab via chromedp. The tab is a shared mutable resource: the whole crawl
// is serialized through it and Fetch must never be called concurrently.
package headless

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pdiaz/bgg-crawler/internal/metrics"
)

// Config controls the browser session.
type Config struct {
	UserAgent string
	// NavTimeout bounds a single navigation including the selector wait.
	NavTimeout time.Duration
	// QPS throttles navigations site-wide; zero disables throttling.
	QPS float64
}

// Fetcher drives one browser tab for the lifetime of a run.
type Fetcher struct {
	cfg           Config
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	limiter       *rate.Limiter
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

// New launches the browser and opens the session tab. Callers must Close
// on every exit path, including cancellation.
func New(cfg Config, mx *metrics.Metrics, logger *zap.Logger) (*Fetcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 45 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.QPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.QPS), 1)
	}

	return &Fetcher{
		cfg:           cfg,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		limiter:       limiter,
		metrics:       mx,
		logger:        logger,
	}, nil
}

// Close tears down the tab and the browser process.
func (f *Fetcher) Close() {
	if f == nil {
		return
	}
	f.browserCancel()
	f.allocCancel()
}

// Fetch navigates the session tab to url, waits for waitSelector to become
// ready, and returns the rendered DOM. Any failure, including the selector
// wait timing out, is transient from the caller's perspective.
func (f *Fetcher) Fetch(ctx context.Context, url string, waitSelector string) (string, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("navigation rate limit: %w", err)
		}
	}

	taskCtx, cancelTask := context.WithTimeout(f.browserCtx, f.cfg.NavTimeout)
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	start := time.Now()
	var html string
	tasks := chromedp.Tasks{
		network.Enable(),
		emulation.SetUserAgentOverride(f.cfg.UserAgent),
		chromedp.Navigate(url),
		chromedp.WaitReady(waitSelector, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return "", fmt.Errorf("navigate %s: %w", url, err)
	}
	if f.metrics != nil {
		f.metrics.ObserveFetch("navigate", time.Since(start))
	}
	f.logger.Debug("page fetched",
		zap.String("url", url),
		zap.Duration("dur", time.Since(start)),
	)
	return html, nil
}

// forwardCancel propagates cancellation of the caller's context into the
// navigation, since the task context descends from the browser context
// rather than from ctx.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
