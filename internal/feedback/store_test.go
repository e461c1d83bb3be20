package feedback

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/math-professor/backend/internal/storage/models"
)

// memLog is an in-memory stand-in for the SQLite feedback log.
type memLog struct {
	records []*models.FeedbackRecord
}

func (m *memLog) AppendFeedback(record *models.FeedbackRecord) error {
	clone := *record
	m.records = append(m.records, &clone)
	return nil
}

func (m *memLog) ScanFeedback(fn func(record *models.FeedbackRecord) error) error {
	for _, rec := range m.records {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func newStoreWithResponse(t *testing.T, queryID, route string) (*Store, *ResponseCache, *memLog) {
	t.Helper()

	cache := NewResponseCache(16)
	cache.Put(&models.Response{
		QueryID:  queryID,
		Question: "what is 2+2",
		Answer:   "4",
		Route:    route,
		Version:  1,
	})

	log := &memLog{}
	store, err := NewStore(log, cache, nil)
	require.NoError(t, err)

	return store, cache, log
}

func TestStoreAddRecordsAndCounts(t *testing.T) {
	store, _, log := newStoreWithResponse(t, "q1", "knowledge")

	err := store.Add(context.Background(), &models.FeedbackRecord{
		QueryID:   "q1",
		Rating:    5,
		IsCorrect: true,
		Comment:   "clear explanation",
	})
	require.NoError(t, err)

	require.Len(t, log.records, 1)
	assert.Equal(t, "knowledge", log.records[0].RouteUsed, "route is copied from the delivered response")
	assert.False(t, log.records[0].CreatedAt.IsZero())

	stats := store.Statistics()
	assert.Equal(t, int64(1), stats.Count)
	assert.Equal(t, int64(1), stats.Correct)
	assert.Equal(t, 1.0, stats.Accuracy)
	assert.Equal(t, 5.0, stats.MeanRating)
	assert.Equal(t, int64(1), stats.PerRoute["knowledge"].Count)
}

func TestStoreAddUnknownQuery(t *testing.T) {
	store, _, _ := newStoreWithResponse(t, "q1", "knowledge")

	err := store.Add(context.Background(), &models.FeedbackRecord{QueryID: "ghost", Rating: 3})

	assert.ErrorIs(t, err, ErrUnknownQuery)
	assert.Equal(t, int64(0), store.Statistics().Count)
}

func TestStoreAddInvalidRating(t *testing.T) {
	store, _, _ := newStoreWithResponse(t, "q1", "knowledge")

	for _, rating := range []int{0, -1, 6} {
		err := store.Add(context.Background(), &models.FeedbackRecord{QueryID: "q1", Rating: rating})
		assert.ErrorIs(t, err, ErrInvalidRating)
	}
}

func TestStoreStatisticsAggregation(t *testing.T) {
	store, cache, _ := newStoreWithResponse(t, "q1", "knowledge")
	cache.Put(&models.Response{QueryID: "q2", Route: "web", Version: 1})

	require.NoError(t, store.Add(context.Background(), &models.FeedbackRecord{QueryID: "q1", Rating: 5, IsCorrect: true}))
	require.NoError(t, store.Add(context.Background(), &models.FeedbackRecord{QueryID: "q2", Rating: 2, IsCorrect: false}))
	require.NoError(t, store.Add(context.Background(), &models.FeedbackRecord{QueryID: "q1", Rating: 4, IsCorrect: true}))

	stats := store.Statistics()
	assert.Equal(t, int64(3), stats.Count)
	assert.Equal(t, int64(2), stats.Correct)
	assert.InDelta(t, 2.0/3.0, stats.Accuracy, 1e-9)
	assert.InDelta(t, 11.0/3.0, stats.MeanRating, 1e-9)
	assert.Equal(t, int64(2), stats.PerRoute["knowledge"].Count)
	assert.Equal(t, int64(2), stats.PerRoute["knowledge"].Correct)
	assert.Equal(t, int64(1), stats.PerRoute["web"].Count)
	assert.Equal(t, int64(0), stats.PerRoute["web"].Correct)
	assert.False(t, stats.LastUpdated.IsZero())
}

func TestStoreRebuildMatchesIncremental(t *testing.T) {
	store, cache, _ := newStoreWithResponse(t, "q1", "knowledge")
	cache.Put(&models.Response{QueryID: "q2", Route: "web", Version: 1})

	require.NoError(t, store.Add(context.Background(), &models.FeedbackRecord{QueryID: "q1", Rating: 5, IsCorrect: true}))
	require.NoError(t, store.Add(context.Background(), &models.FeedbackRecord{QueryID: "q2", Rating: 1, IsCorrect: false}))

	incremental := store.Statistics()
	require.NoError(t, store.Rebuild())
	rebuilt := store.Statistics()

	assert.Equal(t, incremental.Count, rebuilt.Count)
	assert.Equal(t, incremental.Correct, rebuilt.Correct)
	assert.Equal(t, incremental.Accuracy, rebuilt.Accuracy)
	assert.Equal(t, incremental.MeanRating, rebuilt.MeanRating)
	assert.Equal(t, incremental.PerRoute, rebuilt.PerRoute)
}

func TestStoreRebuildsFromLogOnStartup(t *testing.T) {
	log := &memLog{records: []*models.FeedbackRecord{
		{QueryID: "old1", Rating: 4, IsCorrect: true, RouteUsed: "knowledge"},
		{QueryID: "old2", Rating: 2, IsCorrect: false, RouteUsed: "web"},
	}}

	store, err := NewStore(log, NewResponseCache(16), nil)
	require.NoError(t, err)

	stats := store.Statistics()
	assert.Equal(t, int64(2), stats.Count)
	assert.Equal(t, int64(1), stats.Correct)
	assert.Equal(t, 3.0, stats.MeanRating)
}
