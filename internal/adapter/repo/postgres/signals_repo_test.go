package postgres_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-signal-executor/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-signal-executor/internal/domain"
)

func TestSignalRepoGet(t *testing.T) {
	t.Parallel()
	created := time.Now().UTC().Truncate(time.Second)
	messages, _ := json.Marshal([]domain.Message{{Content: "SPY 605C 0DTE"}})
	conf := 0.8
	parsed, _ := json.Marshal(domain.ParsedSignal{Ticker: "SPY", Direction: "CALL", Confidence: &conf})

	pool := &poolStub{row: rowStub{scan: func(dest ...any) error {
		*dest[0].(*string) = "t1"
		*dest[1].(*string) = "SPY 605C"
		*dest[2].(*[]byte) = messages
		*dest[3].(*[]byte) = parsed
		*dest[4].(*time.Time) = created
		*dest[5].(*bool) = false
		// dest[6] *(*time.Time) stays nil
		// dest[7] ai_result stays nil
		return nil
	}}}
	repo := postgres.NewSignalRepo(pool)

	s, err := repo.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", s.ThreadID)
	assert.Equal(t, "SPY 605C", s.ThreadName)
	require.Len(t, s.Messages, 1)
	assert.Equal(t, "SPY 605C 0DTE", s.Messages[0].Content)
	assert.Equal(t, "SPY", s.Parsed.Ticker)
	require.NotNil(t, s.Parsed.Confidence)
	assert.InDelta(t, 0.8, *s.Parsed.Confidence, 1e-9)
	assert.False(t, s.AIProcessed)
	assert.Nil(t, s.AIResult)
}

func TestSignalRepoGetNotFound(t *testing.T) {
	t.Parallel()
	pool := &poolStub{row: rowStub{scan: func(_ ...any) error { return pgx.ErrNoRows }}}
	repo := postgres.NewSignalRepo(pool)
	_, err := repo.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSignalRepoSaveResult(t *testing.T) {
	t.Parallel()
	pool := &poolStub{}
	repo := postgres.NewSignalRepo(pool)

	env := domain.DecisionEnvelope{
		Act:       "skip",
		Decision:  domain.NewSkip(domain.SkipOther, "emergency stop active"),
		ModelUsed: "deepseek/deepseek-reasoner",
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, repo.SaveResult(context.Background(), "t1", env))

	require.Len(t, pool.execSQL, 1)
	assert.Contains(t, pool.execSQL[0], "ON CONFLICT (thread_id)")
	require.Len(t, pool.execArgs[0], 3)
	assert.Equal(t, "t1", pool.execArgs[0][0])

	var stored domain.DecisionEnvelope
	require.NoError(t, json.Unmarshal(pool.execArgs[0][2].([]byte), &stored))
	assert.Equal(t, "skip", stored.Act)
	assert.Equal(t, domain.SkipOther, stored.Decision.Skip.Category)
}

func TestSignalRepoSaveResultReplayIsIdempotent(t *testing.T) {
	t.Parallel()
	pool := &poolStub{}
	repo := postgres.NewSignalRepo(pool)

	env := domain.DecisionEnvelope{
		Act:       "skip",
		Decision:  domain.NewSkip(domain.SkipTiming, "market closed"),
		ModelUsed: "deepseek/deepseek-reasoner",
		Timestamp: time.Date(2024, 12, 9, 15, 30, 0, 0, time.UTC),
	}
	require.NoError(t, repo.SaveResult(context.Background(), "t1", env))
	require.NoError(t, repo.SaveResult(context.Background(), "t1", env))

	// Both writes carry byte-identical statements and arguments, and
	// ai_processed_at comes from the envelope, so the upsert replays to
	// the exact same row state.
	require.Len(t, pool.execSQL, 2)
	assert.Equal(t, pool.execSQL[0], pool.execSQL[1])
	require.Len(t, pool.execArgs, 2)
	assert.Equal(t, pool.execArgs[0][0], pool.execArgs[1][0])
	assert.Equal(t, env.Timestamp, pool.execArgs[0][1])
	assert.Equal(t, pool.execArgs[0][1], pool.execArgs[1][1])
	assert.Equal(t, pool.execArgs[0][2], pool.execArgs[1][2])
}

func TestSignalRepoSaveResultWriteError(t *testing.T) {
	t.Parallel()
	pool := &poolStub{execErr: errors.New("disk full")}
	repo := postgres.NewSignalRepo(pool)
	err := repo.SaveResult(context.Background(), "t1", domain.DecisionEnvelope{Act: "skip"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStoreWrite)
}
