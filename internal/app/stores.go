package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crossbridge/crossbridge/internal/billing"
)

// OpenBillStore selects the bill store configured by BILL_STORE. The
// returned closer releases resources owned by the store itself; the pool
// stays with the caller.
func OpenBillStore(ctx context.Context, cfg *Config, pool *pgxpool.Pool) (billing.Store, func() error, error) {
	switch cfg.BillStore {
	case BillStoreSQLite:
		store, err := billing.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case BillStorePostgres, "":
		if pool == nil {
			return nil, nil, fmt.Errorf("bill store %s: database pool not configured", BillStorePostgres)
		}
		return billing.NewPGStore(pool), func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown bill store %q", cfg.BillStore)
}
