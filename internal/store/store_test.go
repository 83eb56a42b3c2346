package store_test

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiaz/bgg-crawler/internal/crawler"
	"github.com/pdiaz/bgg-crawler/internal/store"
)

func record(id string) crawler.GameRecord {
	return crawler.GameRecord{ID: id, Title: "Game " + id}
}

func TestResolveSessionDir(t *testing.T) {
	t.Parallel()

	t.Run("FreshRunAllocatesNextSuffix", func(t *testing.T) {
		base := t.TempDir()
		for i := 1; i <= 4; i++ {
			require.NoError(t, os.Mkdir(filepath.Join(base, "bgg-details."+string(rune('0'+i))), 0o750))
		}
		dir := store.ResolveSessionDir(base, "bgg-details", false)
		assert.Equal(t, filepath.Join(base, "bgg-details.5"), dir)
	})

	t.Run("ResumeTargetsLastExisting", func(t *testing.T) {
		base := t.TempDir()
		for i := 1; i <= 4; i++ {
			require.NoError(t, os.Mkdir(filepath.Join(base, "bgg-details."+string(rune('0'+i))), 0o750))
		}
		dir := store.ResolveSessionDir(base, "bgg-details", true)
		assert.Equal(t, filepath.Join(base, "bgg-details.4"), dir)
	})

	t.Run("FirstRunGetsSuffixOne", func(t *testing.T) {
		base := t.TempDir()
		assert.Equal(t, filepath.Join(base, "bgg-details.1"), store.ResolveSessionDir(base, "bgg-details", false))
		// Resume with nothing to resume still lands on the first slot.
		assert.Equal(t, filepath.Join(base, "bgg-details.1"), store.ResolveSessionDir(base, "bgg-details", true))
	})

	t.Run("ResolutionNeverCreatesTheDirectory", func(t *testing.T) {
		base := t.TempDir()
		dir := store.ResolveSessionDir(base, "bgg-details", false)
		_, err := os.Stat(dir)
		assert.True(t, os.IsNotExist(err))
	})
}

func TestStore_ReadLoaded_MissingFile(t *testing.T) {
	t.Parallel()

	s := store.New(store.Config{BaseDir: t.TempDir()}, nil)
	ids, err := s.ReadLoaded()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestStore_EmptyAppendsAreNoOps(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	s := store.New(store.Config{BaseDir: base}, nil)

	require.NoError(t, s.AppendLoaded(nil))
	require.NoError(t, s.AppendDetails(nil))

	// No spurious session directory or files.
	_, err := os.Stat(s.Dir())
	assert.True(t, os.IsNotExist(err))
}

func TestStore_AppendRoundTrip(t *testing.T) {
	t.Parallel()

	s := store.New(store.Config{BaseDir: t.TempDir()}, nil)
	t.Cleanup(func() { require.NoError(t, s.Close()) })

	require.NoError(t, s.AppendDetails([]crawler.GameRecord{record("1"), record("2")}))
	require.NoError(t, s.AppendLoaded([]string{"1", "2"}))
	require.NoError(t, s.AppendDetails([]crawler.GameRecord{record("3")}))
	require.NoError(t, s.AppendLoaded([]string{"3"}))

	ids, err := s.ReadLoaded()
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, ids)

	assert.Equal(t, []string{"1", "2", "3"}, detailIDs(t, filepath.Join(s.Dir(), store.DetailsFile)))
}

// Every indexed id must have a committed record line.
func TestStore_NoOrphanIndexEntries(t *testing.T) {
	t.Parallel()

	s := store.New(store.Config{BaseDir: t.TempDir()}, nil)
	t.Cleanup(func() { require.NoError(t, s.Close()) })

	require.NoError(t, s.AppendDetails([]crawler.GameRecord{record("10"), record("20")}))
	require.NoError(t, s.AppendLoaded([]string{"10", "20"}))

	ids, err := s.ReadLoaded()
	require.NoError(t, err)

	written := make(map[string]struct{})
	for _, id := range detailIDs(t, filepath.Join(s.Dir(), store.DetailsFile)) {
		written[id] = struct{}{}
	}
	for _, id := range ids {
		_, ok := written[id]
		assert.True(t, ok, "indexed id %s has no record", id)
	}
}

func TestStore_ResumeSeesPreviousRun(t *testing.T) {
	t.Parallel()

	base := t.TempDir()

	first := store.New(store.Config{BaseDir: base}, nil)
	require.NoError(t, first.AppendDetails([]crawler.GameRecord{record("1")}))
	require.NoError(t, first.AppendLoaded([]string{"1"}))
	require.NoError(t, first.Close())

	resumed := store.New(store.Config{BaseDir: base, Resume: true}, nil)
	t.Cleanup(func() { require.NoError(t, resumed.Close()) })
	assert.Equal(t, first.Dir(), resumed.Dir())

	ids, err := resumed.ReadLoaded()
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids)

	// A further append lands in the same files.
	require.NoError(t, resumed.AppendDetails([]crawler.GameRecord{record("2")}))
	require.NoError(t, resumed.AppendLoaded([]string{"2"}))
	assert.Equal(t, []string{"1", "2"}, detailIDs(t, filepath.Join(resumed.Dir(), store.DetailsFile)))
}

func TestStore_FreshRunDoesNotTouchPreviousSession(t *testing.T) {
	t.Parallel()

	base := t.TempDir()

	first := store.New(store.Config{BaseDir: base}, nil)
	require.NoError(t, first.AppendLoaded([]string{"1"}))
	require.NoError(t, first.Close())

	second := store.New(store.Config{BaseDir: base}, nil)
	t.Cleanup(func() { require.NoError(t, second.Close()) })
	require.NotEqual(t, first.Dir(), second.Dir())

	ids, err := second.ReadLoaded()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestStore_Ratings(t *testing.T) {
	t.Parallel()

	s := store.New(store.Config{BaseDir: t.TempDir()}, nil)
	t.Cleanup(func() { require.NoError(t, s.Close()) })

	batch := crawler.RatingsBatch{
		GameID: "7",
		Ratings: []crawler.RatingRecord{
			{ID: "r1", GameID: "7", UserID: "u1", Rating: 8.5},
			{ID: "r2", GameID: "7", UserID: "u2", Rating: 6},
		},
	}
	require.NoError(t, s.AppendRatings(batch))

	merged, err := s.AppendLoadedRatings([]string{"7"})
	require.NoError(t, err)
	assert.Equal(t, []string{"7"}, merged)

	merged, err = s.AppendLoadedRatings([]string{"9"})
	require.NoError(t, err)
	assert.Equal(t, []string{"7", "9"}, merged)

	ids, err := s.ReadLoadedRatings()
	require.NoError(t, err)
	assert.Equal(t, []string{"7", "9"}, ids)

	data, err := os.ReadFile(filepath.Join(s.Dir(), store.RatingsFile))
	require.NoError(t, err)
	var got crawler.RatingsBatch
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, batch, got)
}

func TestStore_AppendRatings_EmptyHistoryEncodesArray(t *testing.T) {
	t.Parallel()

	s := store.New(store.Config{BaseDir: t.TempDir()}, nil)
	t.Cleanup(func() { require.NoError(t, s.Close()) })

	require.NoError(t, s.AppendRatings(crawler.RatingsBatch{GameID: "7"}))

	data, err := os.ReadFile(filepath.Join(s.Dir(), store.RatingsFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ratings":[]`)

	var got crawler.RatingsBatch
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "7", got.GameID)
	assert.NotNil(t, got.Ratings)
	assert.Empty(t, got.Ratings)
}

func detailIDs(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec crawler.GameRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		ids = append(ids, rec.ID)
	}
	require.NoError(t, scanner.Err())
	return ids
}
