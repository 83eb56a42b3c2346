package extract_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiaz/bgg-crawler/internal/crawler"
	"github.com/pdiaz/bgg-crawler/internal/extract"
)

const gamePage = `<html><body>
<div class="game-header-body">
  <div class="gameplay">
    <div class="gameplay-item">
      <div class="gameplay-item-primary"><span><span>1</span><span>–4</span></span></div>
    </div>
    <div class="gameplay-item">
      <div><span><span><span>60</span><span>–120</span></span></span></div>
    </div>
    <div class="gameplay-item">
      <div><span>14+</span></div>
    </div>
    <div class="gameplay-item">
      <div><span><span>3.89</span></span></div>
    </div>
  </div>
</div>
<div class="credits">
  <a href="/boardgamedesigner/12/isaac-childres">Isaac Childres</a>
  <a href="/boardgamedesigner/12/isaac-childres">Isaac Childres</a>
  <a href="/boardgameartist/77/alexandr-elichev">Alexandr Elichev</a>
  <a href="/boardgamepublisher/27425/cephalofair-games">Cephalofair Games</a>
  <a href="/boardgamecategory/1022/adventure">Adventure</a>
  <a href="/boardgamecategory/1010/fantasy">Fantasy</a>
  <a href="/boardgamemechanic/2001/action-queue">Action Queue</a>
  <a href="/boardgamefamily/25158/campaign-games">Campaign Games</a>
  <a href="/boardgamesubdomain/5496/thematic-games">Thematic Games</a>
</div>
</body></html>`

const sparseGamePage = `<html><body>
<div class="game-header-body"><div class="gameplay"></div></div>
</body></html>`

func TestDetailExtractor_Extract(t *testing.T) {
	t.Parallel()

	stub := crawler.GameStub{
		Name:          "Gloomhaven",
		Href:          "https://boardgamegeek.com/boardgame/174430/gloomhaven",
		AverageRating: "8.8",
		Votes:         "60123",
	}

	x := extract.NewDetailExtractor()
	record, err := x.Extract(gamePage, stub)
	require.NoError(t, err)

	assert.Equal(t, "Gloomhaven", record.Title)
	assert.Equal(t, "8.8", record.AverageRating)
	assert.Equal(t, "60123", record.Votes)
	assert.Equal(t, crawler.PlayerRange{Min: "1", Max: "4"}, record.Players)
	assert.Equal(t, crawler.TimeRange{Min: "60", Max: "120"}, record.PlayTime)
	assert.Equal(t, "14+", record.Age)
	assert.Equal(t, "3.89", record.Weight)

	// Duplicate credit anchors collapse to one entry.
	assert.Equal(t, []string{"Isaac Childres"}, record.Designers)
	assert.Equal(t, []string{"Alexandr Elichev"}, record.Artists)
	assert.Equal(t, []string{"Cephalofair Games"}, record.Publishers)
	assert.Equal(t, []string{"Adventure", "Fantasy"}, record.Categories)
	assert.Equal(t, []string{"Action Queue"}, record.Mechanisms)
	assert.Equal(t, []string{"Campaign Games"}, record.Families)
	assert.Equal(t, []string{"Thematic Games"}, record.Types)
}

func TestDetailExtractor_MissingGroupsFallBackToDefaults(t *testing.T) {
	t.Parallel()

	x := extract.NewDetailExtractor()
	record, err := x.Extract(sparseGamePage, crawler.GameStub{Name: "Mystery Game"})
	require.NoError(t, err)

	assert.Equal(t, crawler.PlayerRange{Min: "0", Max: "0"}, record.Players)
	assert.Equal(t, crawler.TimeRange{Min: "0", Max: "0"}, record.PlayTime)
	assert.Empty(t, record.Age)
	assert.Empty(t, record.Weight)
	assert.Empty(t, record.Designers)
	assert.NotNil(t, record.Designers, "credit lists serialize as empty arrays, not null")
}

func TestDetailExtractor_MissingHeaderIsAnError(t *testing.T) {
	t.Parallel()

	x := extract.NewDetailExtractor()
	_, err := x.Extract("<html><body><h1>rate limited</h1></body></html>", crawler.GameStub{})
	assert.Error(t, err)
}

func TestDetailExtractor_SingleValueRangeCollapses(t *testing.T) {
	t.Parallel()

	page := `<html><body><div class="game-header-body"><div class="gameplay">
<div class="gameplay-item"><div class="gameplay-item-primary"><span><span>2</span></span></div></div>
<div class="gameplay-item"><div><span><span><span>30</span></span></span></div></div>
<div class="gameplay-item"><div><span>8+</span></div></div>
<div class="gameplay-item"><div><span><span>1.2</span></span></div></div>
</div></div></body></html>`

	x := extract.NewDetailExtractor()
	record, err := x.Extract(page, crawler.GameStub{Name: "Solo"})
	require.NoError(t, err)

	assert.Equal(t, crawler.PlayerRange{Min: "2", Max: "2"}, record.Players)
	assert.Equal(t, crawler.TimeRange{Min: "30", Max: "30"}, record.PlayTime)
}
