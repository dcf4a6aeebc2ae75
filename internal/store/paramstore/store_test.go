package paramstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"kabuto/internal/params"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "params.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestStoreWriteAndResolve(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteVersion(ctx, params.Version{Date: day("2025-01-06"), Name: "rsi_period", Value: 14}))
	require.NoError(t, s.WriteVersion(ctx, params.Version{Date: day("2025-01-06"), Name: "score_threshold", Value: 5}))

	snap, err := s.Current(ctx, day("2025-02-01"), []string{"rsi_period", "score_threshold"})
	require.NoError(t, err)
	assert.Equal(t, 14.0, snap.Values["rsi_period"])
	assert.Equal(t, 5.0, snap.Values["score_threshold"])
}

func TestStoreAsOfPicksLatestEffective(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteVersion(ctx, params.Version{Date: day("2025-01-06"), Name: "rsi_period", Value: 14}))
	require.NoError(t, s.WriteVersion(ctx, params.Version{Date: day("2025-03-03"), Name: "rsi_period", Value: 21}))

	cases := []struct {
		asOf string
		want float64
	}{
		{"2025-01-06", 14}, // 生效首日即可见
		{"2025-02-14", 14},
		{"2025-03-03", 21},
		{"2025-06-30", 21},
	}
	for _, tc := range cases {
		snap, err := s.Current(ctx, day(tc.asOf), []string{"rsi_period"})
		require.NoError(t, err, "as-of %s", tc.asOf)
		assert.Equal(t, tc.want, snap.Values["rsi_period"], "as-of %s", tc.asOf)
	}
}

func TestStoreAsOfTruncatesClockTime(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteVersion(ctx, params.Version{Date: day("2025-05-01"), Name: "macd_weight", Value: 2}))

	// 参数以天为粒度生效，当天凌晨的 as-of 也要能命中。
	asOf := time.Date(2025, 5, 1, 0, 5, 0, 0, time.UTC)
	snap, err := s.Current(ctx, asOf, []string{"macd_weight"})
	require.NoError(t, err)
	assert.Equal(t, 2.0, snap.Values["macd_weight"])
}

func TestStoreMissingParameter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteVersion(ctx, params.Version{Date: day("2025-01-06"), Name: "rsi_period", Value: 14}))

	_, err := s.Current(ctx, day("2025-02-01"), []string{"rsi_period", "dmi_period", "adx_weight"})
	var missing *params.MissingParameterError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"adx_weight", "dmi_period"}, missing.Names)
}

func TestStoreMissingBeforeFirstVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteVersion(ctx, params.Version{Date: day("2025-03-03"), Name: "rsi_period", Value: 14}))

	_, err := s.Current(ctx, day("2025-03-02"), []string{"rsi_period"})
	var missing *params.MissingParameterError
	require.ErrorAs(t, err, &missing)
}

func TestStoreDuplicateVersionRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteVersion(ctx, params.Version{Date: day("2025-01-06"), Name: "rsi_period", Value: 14}))

	err := s.WriteVersion(ctx, params.Version{Date: day("2025-01-06"), Name: "rsi_period", Value: 21})
	var dup *params.DuplicateVersionError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "rsi_period", dup.Name)

	// 原有版本保持不变。
	snap, err := s.Current(ctx, day("2025-01-06"), []string{"rsi_period"})
	require.NoError(t, err)
	assert.Equal(t, 14.0, snap.Values["rsi_period"])
}

func TestStoreSeedIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	defs := []params.Definition{
		{Name: "rsi_period", Default: 14, Min: 2, Max: 50},
		{Name: "score_threshold", Default: 5, Min: 1, Max: 12},
		{Name: "macd_weight", Default: 2, Min: 0, Max: 5},
	}
	epoch := day("2025-01-06")

	n, err := s.Seed(ctx, defs, epoch)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.Seed(ctx, defs, epoch)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	snap, err := s.Current(ctx, epoch, []string{"rsi_period", "score_threshold", "macd_weight"})
	require.NoError(t, err)
	assert.Equal(t, 14.0, snap.Values["rsi_period"])
}

func TestStoreSeedSkipsTunedParameters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// 已有任何版本的参数（哪怕日期晚于 epoch）不再补默认值。
	require.NoError(t, s.WriteVersion(ctx, params.Version{Date: day("2025-04-01"), Name: "rsi_period", Value: 21}))

	n, err := s.Seed(ctx, []params.Definition{
		{Name: "rsi_period", Default: 14},
		{Name: "dmi_period", Default: 14},
	}, day("2025-01-06"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Current(ctx, day("2025-02-01"), []string{"rsi_period"})
	var missing *params.MissingParameterError
	require.True(t, errors.As(err, &missing))
}

func TestStoreHistoryNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteVersion(ctx, params.Version{Date: day("2025-01-06"), Name: "rsi_period", Value: 14, Description: "seed"}))
	require.NoError(t, s.WriteVersion(ctx, params.Version{Date: day("2025-02-10"), Name: "rsi_period", Value: 18}))
	require.NoError(t, s.WriteVersion(ctx, params.Version{Date: day("2025-03-03"), Name: "rsi_period", Value: 21}))
	require.NoError(t, s.WriteVersion(ctx, params.Version{Date: day("2025-02-01"), Name: "score_threshold", Value: 6}))

	hist, err := s.History(ctx, "rsi_period", 10)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, 21.0, hist[0].Value)
	assert.Equal(t, 18.0, hist[1].Value)
	assert.Equal(t, 14.0, hist[2].Value)
	assert.Equal(t, "seed", hist[2].Description)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.WriteVersion(ctx, params.Version{Date: day("2025-01-06"), Name: "rsi_period", Value: 14}))
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	snap, err := s2.Current(ctx, day("2025-01-06"), []string{"rsi_period"})
	require.NoError(t, err)
	assert.Equal(t, 14.0, snap.Values["rsi_period"])
}
