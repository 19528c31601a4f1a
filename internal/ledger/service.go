package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"
)

// AccountSource lists the current account snapshot.
type AccountSource interface {
	ListAccounts(ctx context.Context) ([]Account, error)
}

// Service exposes ledger views backed by an AccountSource.
type Service struct {
	source AccountSource
	ledger *Ledger
	cache  *Cache
	logger *slog.Logger
	group  singleflight.Group
}

// NewService constructs the ledger service. cache may be nil.
func NewService(source AccountSource, ledger *Ledger, cache *Cache, logger *slog.Logger) *Service {
	if ledger == nil {
		ledger = New(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, ledger: ledger, cache: cache, logger: logger}
}

// Rollup returns the aggregate balance of one account.
func (s *Service) Rollup(ctx context.Context, accountID string) (RollupResult, error) {
	if s == nil || s.source == nil {
		return RollupResult{}, fmt.Errorf("ledger service not initialised")
	}
	accounts, err := s.source.ListAccounts(ctx)
	if err != nil {
		return RollupResult{}, err
	}
	return s.ledger.RollupByID(accountID, accounts)
}

// GlobalStats returns totals across the whole hierarchy. Identical snapshots
// are served from the cache when one is configured.
func (s *Service) GlobalStats(ctx context.Context) (Stats, error) {
	if s == nil || s.source == nil {
		return Stats{}, fmt.Errorf("ledger service not initialised")
	}
	accounts, err := s.source.ListAccounts(ctx)
	if err != nil {
		return Stats{}, err
	}
	if err := Validate(accounts); err != nil {
		s.logger.Warn("ledger hierarchy violations", slog.Any("error", err))
	}
	if !s.cache.enabled() {
		return s.ledger.GlobalStats(accounts), nil
	}
	key, err := s.cache.StatsKey(ctx, s.ledger.ReferenceCurrency(), accounts)
	if err != nil {
		return Stats{}, err
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.cache.Stats(ctx, key, func() Stats {
			return s.ledger.GlobalStats(accounts)
		})
	})
	if err != nil {
		return Stats{}, err
	}
	return v.(Stats), nil
}

// Invalidate drops cached views after balances change.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Invalidate(ctx)
}
