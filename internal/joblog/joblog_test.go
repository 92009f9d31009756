package joblog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type captureStore struct {
	entries []Entry
	err     error
}

func (c *captureStore) InsertJobLog(ctx context.Context, e Entry) error {
	if c.err != nil {
		return c.err
	}
	c.entries = append(c.entries, e)
	return nil
}

func TestRecorderPersistsLeveledEntries(t *testing.T) {
	store := &captureStore{}
	rec := New("nightly_compute", zap.NewNop(), store)

	ctx := context.Background()
	rec.Info(ctx, "started")
	rec.Warn(ctx, "slow symbol")
	rec.Error(ctx, "gave up")

	require.Len(t, store.entries, 3)
	assert.Equal(t, "INFO", store.entries[0].Level)
	assert.Equal(t, "WARNING", store.entries[1].Level)
	assert.Equal(t, "ERROR", store.entries[2].Level)
	for _, e := range store.entries {
		assert.Equal(t, "nightly_compute", e.JobName)
		assert.False(t, e.CreatedAt.IsZero())
	}
}

func TestRecorderSurvivesStoreFailure(t *testing.T) {
	rec := New("job", zap.NewNop(), &captureStore{err: errors.New("db down")})
	assert.NotPanics(t, func() {
		rec.Info(context.Background(), "still fine")
	})
}

func TestRecorderWithoutStore(t *testing.T) {
	rec := New("job", zap.NewNop(), nil)
	assert.NotPanics(t, func() {
		rec.Error(context.Background(), "logged only")
	})
}
