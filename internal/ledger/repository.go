package ledger

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGAccountSource reads the account snapshot from PostgreSQL.
type PGAccountSource struct {
	pool *pgxpool.Pool
}

// NewPGAccountSource constructs the source.
func NewPGAccountSource(pool *pgxpool.Pool) *PGAccountSource {
	return &PGAccountSource{pool: pool}
}

const listAccountsSQL = `SELECT id, name, currency, category, COALESCE(parent_id, ''), balance, initial_capital, rate
FROM accounts
ORDER BY id`

// ListAccounts implements AccountSource.
func (r *PGAccountSource) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.pool.Query(ctx, listAccountsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		var (
			a        Account
			category string
		)
		if err := rows.Scan(&a.ID, &a.Name, &a.Currency, &category, &a.ParentID, &a.Balance, &a.InitialCapital, &a.Rate); err != nil {
			return nil, err
		}
		a.Category = Category(strings.ToUpper(category))
		out = append(out, a)
	}
	return out, rows.Err()
}
