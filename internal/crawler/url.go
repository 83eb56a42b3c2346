package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// Path shapes this parser understands: /boardgame/174430/gloomhaven and the
// expansion variant /boardgameexpansion/<id>/<slug>.
const gamePathPrefix = "boardgame"

// GameIDFromHref extracts the numeric game id embedded in a catalog href.
// The id is the canonical identity of a game across runs.
func GameIDFromHref(href string) (string, error) {
	parsed, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse game href %q: %w", href, err)
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	for i, segment := range segments {
		if !strings.HasPrefix(segment, gamePathPrefix) {
			continue
		}
		if i+1 >= len(segments) {
			break
		}
		id := segments[i+1]
		if id != "" && isDigits(id) {
			return id, nil
		}
	}
	return "", fmt.Errorf("no game id in href %q", href)
}

// BrowsePageURL returns the bookmark for a 1-based browse page number.
func BrowsePageURL(root string, page int) string {
	if page <= 1 {
		return root
	}
	return fmt.Sprintf("%s/page/%d", strings.TrimRight(root, "/"), page)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
