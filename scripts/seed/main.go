package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/crossbridge/crossbridge/internal/app"
	"github.com/crossbridge/crossbridge/internal/billing"
	"github.com/crossbridge/crossbridge/internal/platform/db"
)

func main() {
	path := flag.String("fixture", "scripts/seed/fixture.yaml", "YAML fixture to load")
	flag.Parse()

	ctx := context.Background()
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	f, err := os.Open(*path)
	if err != nil {
		logger.Error("open fixture", slog.Any("error", err))
		os.Exit(1)
	}
	ds, err := loadFixture(f)
	_ = f.Close()
	if err != nil {
		logger.Error("load fixture", slog.String("path", *path), slog.Any("error", err))
		os.Exit(1)
	}

	switch cfg.BillStore {
	case app.BillStoreSQLite:
		err = seedSQLite(ctx, cfg.SQLitePath, ds, logger)
	default:
		err = seedPostgres(ctx, cfg.PGDSN, ds)
	}
	if err != nil {
		logger.Error("seed", slog.String("store", cfg.BillStore), slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("seed complete",
		slog.String("store", cfg.BillStore),
		slog.Int("accounts", len(ds.Accounts)),
		slog.Int("counterparties", len(ds.Counterparties)),
		slog.Int("records", len(ds.Records)),
	)
}

func seedPostgres(ctx context.Context, dsn string, ds dataset) error {
	pool, err := db.New(ctx, dsn)
	if err != nil {
		return err
	}
	defer pool.Close()
	return writePostgres(ctx, pool, ds)
}

func writePostgres(ctx context.Context, pool *pgxpool.Pool, ds dataset) error {
	return db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, a := range parentsFirst(ds.Accounts) {
			var parent any
			if a.ParentID != "" {
				parent = a.ParentID
			}
			batch.Queue(`INSERT INTO accounts (id, name, currency, category, parent_id, balance, initial_capital, rate)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, currency = EXCLUDED.currency, category = EXCLUDED.category,
parent_id = EXCLUDED.parent_id, balance = EXCLUDED.balance, initial_capital = EXCLUDED.initial_capital, rate = EXCLUDED.rate`,
				a.ID, a.Name, a.Currency, string(a.Category), parent, a.Balance, a.InitialCapital, a.Rate)
		}
		for _, c := range ds.Counterparties {
			batch.Queue(`INSERT INTO counterparties (id, name, kind, credit_term, rebate_period)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, kind = EXCLUDED.kind,
credit_term = EXCLUDED.credit_term, rebate_period = EXCLUDED.rebate_period`,
				c.ID, c.Name, string(c.Kind), c.CreditTerm, string(c.RebatePeriod))
		}
		for _, r := range ds.Records {
			batch.Queue(`INSERT INTO raw_records (id, counterparty_id, sub_entity_id, period, amount, currency, rebate, paid)
VALUES ($1, $2, $3, $4, $5::text::numeric, $6, $7::text::numeric, $8::text::numeric)
ON CONFLICT (id) DO NOTHING`,
				r.ID, r.CounterpartyID, r.SubEntityID, r.Period, r.Amount.String(), r.Currency,
				optionalText(r.Rebate), optionalText(r.Paid))
		}
		results := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("seed statement %d: %w", i, err)
			}
		}
		return results.Close()
	})
}

func seedSQLite(ctx context.Context, path string, ds dataset, logger *slog.Logger) error {
	store, err := billing.OpenSQLite(ctx, path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if len(ds.Accounts) > 0 {
		logger.Warn("sqlite store keeps no account hierarchy, skipping accounts", slog.Int("accounts", len(ds.Accounts)))
	}
	for _, c := range ds.Counterparties {
		if err := store.SaveCounterparty(ctx, c); err != nil {
			return fmt.Errorf("counterparty %s: %w", c.ID, err)
		}
	}
	return store.InsertRecords(ctx, ds.Records...)
}

func optionalText(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}
