package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pdiaz/bgg-crawler/internal/crawler"
)

// Game page selectors. The gameplay items appear in a fixed order:
// players, play time, age, weight.
const (
	gameHeaderSelector    = ".game-header-body"
	gameplayItemSelector  = ".game-header-body .gameplay .gameplay-item"
	playerSpanSelector    = ".gameplay-item-primary span span"
	timeSpanSelector      = "div span span span"
	ageSpanSelector       = "div span"
	weightSpanSelector    = "div span span"
	rangeLeadCutset       = "–—-+  "
)

// Credit link prefixes keyed by the record field they populate.
var creditPrefixes = map[string]string{
	"designers":  "/boardgamedesigner/",
	"artists":    "/boardgameartist/",
	"publishers": "/boardgamepublisher/",
	"categories": "/boardgamecategory/",
	"mechanisms": "/boardgamemechanic/",
	"families":   "/boardgamefamily/",
	"types":      "/boardgamesubdomain/",
}

// DetailExtractor parses individual game pages.
type DetailExtractor struct{}

// NewDetailExtractor returns a DetailExtractor.
func NewDetailExtractor() *DetailExtractor {
	return &DetailExtractor{}
}

// Extract builds the full game record from a rendered game page. Only a
// missing header body fails the item; absent field groups fall back to
// zero values and empty lists, since partial records are valid output.
func (x *DetailExtractor) Extract(html string, stub crawler.GameStub) (crawler.GameRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return crawler.GameRecord{}, fmt.Errorf("parse game page: %w", err)
	}
	if doc.Find(gameHeaderSelector).Length() == 0 {
		return crawler.GameRecord{}, fmt.Errorf("game page missing header body")
	}

	items := doc.Find(gameplayItemSelector)
	players := spanRange(items.Eq(0), playerSpanSelector)
	times := spanRange(items.Eq(1), timeSpanSelector)

	record := crawler.GameRecord{
		Title:         stub.Name,
		AverageRating: stub.AverageRating,
		Votes:         stub.Votes,
		Age:           strings.TrimSpace(items.Eq(2).Find(ageSpanSelector).First().Text()),
		Players:       crawler.PlayerRange{Min: players[0], Max: players[1]},
		PlayTime:      crawler.TimeRange{Min: times[0], Max: times[1]},
		Weight:        strings.TrimSpace(items.Eq(3).Find(weightSpanSelector).First().Text()),
		Designers:     creditLinks(doc, creditPrefixes["designers"]),
		Artists:       creditLinks(doc, creditPrefixes["artists"]),
		Publishers:    creditLinks(doc, creditPrefixes["publishers"]),
		Categories:    creditLinks(doc, creditPrefixes["categories"]),
		Mechanisms:    creditLinks(doc, creditPrefixes["mechanisms"]),
		Families:      creditLinks(doc, creditPrefixes["families"]),
		Types:         creditLinks(doc, creditPrefixes["types"]),
	}
	return record, nil
}

// spanRange reads a min/max pair from a gameplay item. The second span
// renders as a dash-prefixed upper bound ("–5"); a missing upper bound
// collapses the range to the minimum, a missing group to zeros.
func spanRange(item *goquery.Selection, selector string) [2]string {
	spans := item.Find(selector)
	if spans.Length() == 0 {
		return [2]string{"0", "0"}
	}
	min := strings.TrimSpace(spans.Eq(0).Text())
	max := min
	if spans.Length() > 1 {
		max = strings.TrimLeft(strings.TrimSpace(spans.Eq(1).Text()), rangeLeadCutset)
	}
	return [2]string{min, max}
}

// creditLinks collects the unique anchor texts whose href carries the given
// path prefix, preserving document order.
func creditLinks(doc *goquery.Document, prefix string) []string {
	out := make([]string, 0)
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !strings.Contains(href, prefix) {
			return
		}
		text := strings.TrimSpace(a.Text())
		if text == "" {
			return
		}
		if _, ok := seen[text]; ok {
			return
		}
		seen[text] = struct{}{}
		out = append(out, text)
	})
	return out
}
