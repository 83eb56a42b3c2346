package crawler

import "context"

// Fetcher retrieves the rendered markup of a single URL. The underlying
// browsing session is a shared mutable resource, so implementations are not
// required to be safe for concurrent Fetch calls; the engine is strictly
// sequential. waitSelector names the element that must be present before
// the page counts as loaded.
type Fetcher interface {
	Fetch(ctx context.Context, url string, waitSelector string) (string, error)
}

// ListExtractor parses one browse page into game stubs plus the next page
// URL. baseURL resolves relative hrefs.
type ListExtractor interface {
	Extract(html string, baseURL string) (Listing, error)
}

// DetailExtractor parses one game page into the full record. An error means
// the expected structure is absent; missing optional field groups must fall
// back to defaults instead of failing the item.
type DetailExtractor interface {
	Extract(html string, stub GameStub) (GameRecord, error)
}

// RatingsFetcher returns one page of a game's rating feed. An empty slice
// signals the end of pagination.
type RatingsFetcher interface {
	Fetch(ctx context.Context, gameID string, page int) ([]RatingRecord, error)
}

// Store is the durable persistence surface the engine writes through. A
// batch is committed only once the record append and the matching index
// append have both returned; implementations sequence the index write
// strictly after the record write.
type Store interface {
	ReadLoaded() ([]string, error)
	AppendLoaded(ids []string) error
	AppendDetails(records []GameRecord) error
	ReadLoadedRatings() ([]string, error)
	AppendLoadedRatings(ids []string) ([]string, error)
	AppendRatings(batch RatingsBatch) error
}

// Timer wraps long operations with start/end timing. Purely observational;
// implementations must never affect control flow.
type Timer interface {
	Start(label string)
	End(label string)
}
