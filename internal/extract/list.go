// Package extract parses rendered BoardGameGeek markup into crawl records
// using goquery selectors.
package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pdiaz/bgg-crawler/internal/crawler"
)

// Browse page selectors.
const (
	collectionRowSelector = ".collection_table tr"
	gameAnchorSelector    = ".collection_objectname a"
	ratingCellSelector    = ".collection_bggrating"
	nextAnchorSelector    = "div.infobox a"
	nextAnchorTitle       = "next page"
)

// ListExtractor parses browse catalog pages.
type ListExtractor struct{}

// NewListExtractor returns a ListExtractor.
func NewListExtractor() *ListExtractor {
	return &ListExtractor{}
}

// Extract returns the page's game stubs in listed order plus the absolute
// next-page URL, empty when pagination is exhausted. A page without the
// collection table is treated as not loaded and therefore retryable.
func (x *ListExtractor) Extract(html string, baseURL string) (crawler.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return crawler.Listing{}, fmt.Errorf("parse browse page: %w", err)
	}

	rows := doc.Find(collectionRowSelector)
	if rows.Length() == 0 {
		return crawler.Listing{}, fmt.Errorf("browse page has no collection table")
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return crawler.Listing{}, fmt.Errorf("parse base url %q: %w", baseURL, err)
	}

	listing := crawler.Listing{}
	rows.Each(func(_ int, row *goquery.Selection) {
		anchor := row.Find(gameAnchorSelector).First()
		if anchor.Length() == 0 {
			// Header and spacer rows carry no game anchor.
			return
		}
		href, _ := anchor.Attr("href")
		ratings := row.Find(ratingCellSelector)
		listing.Stubs = append(listing.Stubs, crawler.GameStub{
			Name:          strings.TrimSpace(anchor.Text()),
			Href:          absoluteURL(base, href),
			AverageRating: strings.TrimSpace(ratings.Eq(1).Text()),
			Votes:         strings.TrimSpace(ratings.Eq(2).Text()),
		})
	})

	doc.Find(nextAnchorSelector).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if title, _ := a.Attr("title"); title != nextAnchorTitle {
			return true
		}
		if href, ok := a.Attr("href"); ok {
			listing.NextURL = absoluteURL(base, href)
		}
		return false
	})

	return listing, nil
}

func absoluteURL(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
