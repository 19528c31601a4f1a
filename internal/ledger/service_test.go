package ledger

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	accounts []Account
	err      error
	calls    int
}

func (s *stubSource) ListAccounts(ctx context.Context) ([]Account, error) {
	s.calls++
	return s.accounts, s.err
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), mr
}

func TestServiceGlobalStatsCachesBySnapshot(t *testing.T) {
	cache, mr := newTestCache(t)
	src := &stubSource{accounts: sampleAccounts()}
	svc := NewService(src, New(nil), cache, nil)
	ctx := context.Background()

	first, err := svc.GlobalStats(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, mr.Keys())

	second, err := svc.GlobalStats(ctx)
	require.NoError(t, err)
	require.Equal(t, first, second)

	src.accounts[0].Balance += 10
	third, err := svc.GlobalStats(ctx)
	require.NoError(t, err)
	require.Equal(t, first.TotalsByCurrency["USD"]+10, third.TotalsByCurrency["USD"])
}

func TestServiceInvalidateAdvancesGeneration(t *testing.T) {
	cache, _ := newTestCache(t)
	svc := NewService(&stubSource{accounts: sampleAccounts()}, nil, cache, nil)
	ctx := context.Background()

	before, err := cache.Generation(ctx)
	require.NoError(t, err)
	require.Zero(t, before)

	keyBefore, err := cache.StatsKey(ctx, "CNY", sampleAccounts())
	require.NoError(t, err)
	require.NoError(t, svc.Invalidate(ctx))
	after, err := cache.Generation(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), after)

	keyAfter, err := cache.StatsKey(ctx, "CNY", sampleAccounts())
	require.NoError(t, err)
	require.NotEqual(t, keyBefore, keyAfter)
}

func TestCacheServesStoredStats(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	builds := 0
	build := func() Stats {
		builds++
		return Stats{ReferenceCurrency: "CNY", TotalReference: 42, TotalsByCurrency: map[string]float64{"CNY": 42}}
	}

	first, err := cache.Stats(ctx, "ledger:stats:test", build)
	require.NoError(t, err)
	second, err := cache.Stats(ctx, "ledger:stats:test", build)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, builds)

	var disabled *Cache
	_, err = disabled.Stats(ctx, "ignored", build)
	require.NoError(t, err)
	require.Equal(t, 2, builds)
	require.NoError(t, disabled.Invalidate(ctx))
}

func TestServiceWithoutCache(t *testing.T) {
	svc := NewService(&stubSource{accounts: sampleAccounts()}, nil, nil, nil)
	stats, err := svc.GlobalStats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, stats.Accounts)

	roll, err := svc.Rollup(context.Background(), "p-usd")
	require.NoError(t, err)
	require.Equal(t, 2000.0, roll.OwnCurrencyTotal)
}

func TestServicePropagatesSourceErrors(t *testing.T) {
	boom := errors.New("boom")
	svc := NewService(&stubSource{err: boom}, nil, nil, nil)
	_, err := svc.GlobalStats(context.Background())
	require.ErrorIs(t, err, boom)
	_, err = svc.Rollup(context.Background(), "x")
	require.ErrorIs(t, err, boom)
}

func TestServiceGlobalStatsToleratesNonFiniteBalances(t *testing.T) {
	accounts := []Account{
		{ID: "p-usd", Currency: "USD", Category: CategoryPrimary, Balance: 100, Rate: 7},
		{ID: "v-nan", Currency: "USD", Category: CategoryVirtual, ParentID: "p-usd", Balance: math.NaN(), Rate: 7},
	}
	ctx := context.Background()

	uncached, err := NewService(&stubSource{accounts: accounts}, nil, nil, nil).GlobalStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 100.0, uncached.TotalsByCurrency["USD"])
	require.Equal(t, []string{"v-nan"}, uncached.NonFinite)

	cache, _ := newTestCache(t)
	cached, err := NewService(&stubSource{accounts: accounts}, nil, cache, nil).GlobalStats(ctx)
	require.NoError(t, err)
	require.Equal(t, uncached, cached)
}
