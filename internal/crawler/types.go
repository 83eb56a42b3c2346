// Package crawler implements the crawl engine that walks the BoardGameGeek
// browse catalog, persists game records through the durable store, and runs
// the dependent ratings pass. It defines the core types and collaborator
// interfaces shared across subsystems.
package crawler

// GameStub is one row of a browse listing page. It is transient: only the
// id parsed from Href survives into durable state.
type GameStub struct {
	Name          string `json:"name"`
	Href          string `json:"href"`
	AverageRating string `json:"averageRating"`
	Votes         string `json:"votes"`
}

// Listing is the parsed form of one catalog page.
type Listing struct {
	Stubs []GameStub
	// NextURL is the absolute URL of the following page, or empty when
	// pagination is exhausted.
	NextURL string
}

// PlayerRange holds the supported player counts for a game.
type PlayerRange struct {
	Min string `json:"minimum"`
	Max string `json:"maximum"`
}

// TimeRange holds the advertised play time bounds in minutes.
type TimeRange struct {
	Min string `json:"minimum"`
	Max string `json:"maximum"`
}

// GameRecord is the full structured document for one catalog game.
// Records are immutable once written and appended exactly once per ID.
type GameRecord struct {
	ID            string      `json:"id"`
	Title         string      `json:"title"`
	AverageRating string      `json:"averageRating"`
	Votes         string      `json:"votes"`
	Age           string      `json:"age"`
	Players       PlayerRange `json:"players"`
	PlayTime      TimeRange   `json:"time"`
	Weight        string      `json:"weight"`
	Designers     []string    `json:"designers"`
	Artists       []string    `json:"artists"`
	Publishers    []string    `json:"publishers"`
	Categories    []string    `json:"categories"`
	Mechanisms    []string    `json:"mechanisms"`
	Families      []string    `json:"families"`
	Types         []string    `json:"types"`
}

// RatingRecord is one user review of one game.
type RatingRecord struct {
	ID             string  `json:"id"`
	GameID         string  `json:"gameId"`
	UserID         string  `json:"userId"`
	Country        string  `json:"country"`
	City           string  `json:"city"`
	State          string  `json:"state"`
	Rating         float64 `json:"rating"`
	RatingDateTime string  `json:"ratingDateTime"`
}

// RatingsBatch groups a game's full rating history for persistence as a
// single line in the ratings file.
type RatingsBatch struct {
	GameID  string         `json:"gameId"`
	Ratings []RatingRecord `json:"ratings"`
}

// Counters tracks per-run item accounting across both passes.
type Counters struct {
	New     int
	Skipped int
	Failed  int
	Pages   int
}

// Processed is the number of items the run has handled, new or not. The
// optional run limit is checked against this total.
func (c Counters) Processed() int {
	return c.New + c.Skipped + c.Failed
}
