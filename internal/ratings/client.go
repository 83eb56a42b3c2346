// Package ratings fetches the paginated per-game rating feed from the
// geekdo collections API over plain HTTP via colly.
package ratings

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/pdiaz/bgg-crawler/internal/crawler"
)

// DefaultBaseURL is the collections API endpoint.
const DefaultBaseURL = "https://api.geekdo.com/api/collections"

const defaultPageSize = 50

// Config controls the feed client.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	PageSize  int
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Client implements crawler.RatingsFetcher.
type Client struct {
	cfg       Config
	collector *colly.Collector
}

// New builds a Client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}

	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	// The engine retries failed feed pages at the same URL.
	c.AllowURLRevisit = true
	c.SetRequestTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	if cfg.Transport != nil {
		c.WithTransport(cfg.Transport)
	}

	return &Client{cfg: cfg, collector: c}
}

// feed wire format; only the fields the crawl persists are decoded.
type feedResponse struct {
	Items []feedItem `json:"items"`
}

type feedItem struct {
	ID     json.Number `json:"id"`
	Rating float64     `json:"rating"`
	Date   string      `json:"rating_tstamp"`
	User   feedUser    `json:"user"`
}

type feedUser struct {
	ID      json.Number `json:"id"`
	Country string      `json:"country"`
	City    string      `json:"city"`
	State   string      `json:"state"`
}

// Fetch returns one page of a game's rating feed, page numbers starting at
// 1. An empty slice means the feed is exhausted; the caller treats that as
// the sole termination signal.
func (c *Client) Fetch(ctx context.Context, gameID string, page int) ([]crawler.RatingRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		body     []byte
		fetchErr error
	)
	collector := c.collector.Clone()
	collector.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	collector.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = fmt.Errorf("ratings feed request (status %d): %w", status, err)
	})

	if err := collector.Visit(c.pageURL(gameID, page)); err != nil {
		return nil, fmt.Errorf("visit ratings feed: %w", err)
	}
	collector.Wait()
	if fetchErr != nil {
		return nil, fetchErr
	}

	var feed feedResponse
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("decode ratings feed for game %s page %d: %w", gameID, page, err)
	}

	records := make([]crawler.RatingRecord, 0, len(feed.Items))
	for _, item := range feed.Items {
		records = append(records, crawler.RatingRecord{
			ID:             item.ID.String(),
			GameID:         gameID,
			UserID:         item.User.ID.String(),
			Country:        item.User.Country,
			City:           item.User.City,
			State:          item.User.State,
			Rating:         item.Rating,
			RatingDateTime: item.Date,
		})
	}
	return records, nil
}

func (c *Client) pageURL(gameID string, page int) string {
	values := url.Values{}
	values.Set("objectid", gameID)
	values.Set("objecttype", "thing")
	values.Set("oneperuser", "1")
	values.Set("rated", "1")
	values.Set("pageid", strconv.Itoa(page))
	values.Set("showcount", strconv.Itoa(c.cfg.PageSize))
	return c.cfg.BaseURL + "?" + values.Encode()
}
