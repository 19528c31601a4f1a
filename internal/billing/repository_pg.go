package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/crossbridge/crossbridge/internal/duedate"
)

const pgUniqueViolation = "23505"

// PGStore implements Store on PostgreSQL. The bills_active_key unique
// constraint backs the one-active-bill rule even across processes.
type PGStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PGStore)(nil)

// NewPGStore constructs the store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// WithTx executes fn inside a repeatable-read transaction.
func (r *PGStore) WithTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) (err error) {
	if r == nil || r.pool == nil {
		return fmt.Errorf("billing: repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()
	if err = fn(ctx, tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PGStore) GetCounterparty(ctx context.Context, id string) (Counterparty, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, name, kind, credit_term, rebate_period FROM counterparties WHERE id = $1`, id)
	c, err := scanCounterparty(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Counterparty{}, ErrCounterpartyNotFound
	}
	return c, err
}

func (r *PGStore) ListCounterparties(ctx context.Context) ([]Counterparty, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, kind, credit_term, rebate_period FROM counterparties ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Counterparty
	for rows.Next() {
		c, err := scanCounterparty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCounterparty(row pgx.Row) (Counterparty, error) {
	var (
		c            Counterparty
		kind, rebate string
	)
	if err := row.Scan(&c.ID, &c.Name, &kind, &c.CreditTerm, &rebate); err != nil {
		return Counterparty{}, err
	}
	c.Kind = CounterpartyKind(strings.ToUpper(kind))
	if rp, ok := duedate.ParseRebatePeriod(rebate); ok {
		c.RebatePeriod = rp
	}
	return c, nil
}

const listBillableSQL = `SELECT id, counterparty_id, sub_entity_id, period, amount::text, currency, rebate::text, paid::text
FROM raw_records
WHERE counterparty_id = $1 AND period = $2 AND NOT settled
ORDER BY id`

func (r *PGStore) ListBillableRecords(ctx context.Context, counterpartyID, period string) ([]RawRecord, error) {
	rows, err := r.pool.Query(ctx, listBillableSQL, counterpartyID, period)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RawRecord
	for rows.Next() {
		var (
			rec          RawRecord
			amount       string
			rebate, paid *string
		)
		if err := rows.Scan(&rec.ID, &rec.CounterpartyID, &rec.SubEntityID, &rec.Period, &amount, &rec.Currency, &rebate, &paid); err != nil {
			return nil, err
		}
		if rec.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("record %s amount: %w", rec.ID, err)
		}
		if rec.Rebate, err = optionalDecimal(rebate); err != nil {
			return nil, fmt.Errorf("record %s rebate: %w", rec.ID, err)
		}
		if rec.Paid, err = optionalDecimal(paid); err != nil {
			return nil, fmt.Errorf("record %s paid: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

const billColumns = `id::text, counterparty_id, counterparty_name, period, kind, currency, gross::text, rebate::text, net::text, paid::text,
status, payment_due_date, rebate_due_date, notes, lines, created_at, updated_at`

func (r *PGStore) FindActive(ctx context.Context, key Key) (Bill, bool, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+billColumns+` FROM bills WHERE counterparty_id = $1 AND period = $2 AND kind = $3`,
		key.CounterpartyID, key.Period, string(key.Kind))
	b, err := scanBill(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Bill{}, false, nil
	}
	if err != nil {
		return Bill{}, false, err
	}
	return b, true, nil
}

func (r *PGStore) Create(ctx context.Context, bill Bill) (Bill, error) {
	err := r.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return insertBill(ctx, tx, bill)
	})
	if err != nil {
		return Bill{}, err
	}
	return bill, nil
}

func (r *PGStore) Overwrite(ctx context.Context, previousID string, bill Bill) (Bill, error) {
	err := r.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM bills WHERE id = $1 AND counterparty_id = $2 AND period = $3 AND kind = $4`,
			previousID, bill.CounterpartyID, bill.Period, string(bill.Kind))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrBillNotFound
		}
		return insertBill(ctx, tx, bill)
	})
	if err != nil {
		return Bill{}, err
	}
	return bill, nil
}

func insertBill(ctx context.Context, tx pgx.Tx, b Bill) error {
	lines, err := json.Marshal(b.Lines)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `INSERT INTO bills (id, counterparty_id, counterparty_name, period, kind, currency, gross, rebate, net, paid,
status, payment_due_date, rebate_due_date, notes, lines, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7::text::numeric, $8::text::numeric, $9::text::numeric, $10::text::numeric, $11, $12, $13, $14, $15, $16, $17)`,
		b.ID, b.CounterpartyID, b.CounterpartyName, b.Period, string(b.Kind), b.Currency,
		b.Gross.String(), b.Rebate.String(), b.Net.String(), b.Paid.String(),
		string(b.Status), b.PaymentDueDate, b.RebateDueDate, b.Notes, lines, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return mapPGError(err)
	}
	batch := &pgx.Batch{}
	for _, id := range b.RecordIDs {
		batch.Queue(`INSERT INTO bill_records (bill_id, record_id, kind) VALUES ($1, $2, $3)`, b.ID, id, string(b.Kind))
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return mapPGError(err)
	}
	return nil
}

func mapPGError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		if pgErr.ConstraintName == "bill_records_once_per_kind" {
			return fmt.Errorf("%w: %s", ErrDuplicateRecord, pgErr.Detail)
		}
		return ErrBillConflict
	}
	return err
}

func (r *PGStore) Get(ctx context.Context, id string) (Bill, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+billColumns+` FROM bills WHERE id::text = $1`, id)
	b, err := scanBill(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Bill{}, ErrBillNotFound
	}
	return b, err
}

func (r *PGStore) List(ctx context.Context, f ListFilter) ([]Bill, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.pool.Query(ctx, `SELECT `+billColumns+` FROM bills
WHERE ($1 = '' OR period = $1) AND ($2 = '' OR kind = $2) AND ($3 = '' OR counterparty_id = $3) AND ($4 = '' OR status = $4)
ORDER BY created_at DESC, id
LIMIT $5`, f.Period, string(f.Kind), f.CounterpartyID, string(f.Status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *PGStore) UpdateStatus(ctx context.Context, id string, status BillStatus, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE bills SET status = $2, updated_at = $3 WHERE id::text = $1`, id, string(status), at.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBillNotFound
	}
	return nil
}

func scanBill(row pgx.Row) (Bill, error) {
	var (
		b                        Bill
		kind, status             string
		gross, rebate, net, paid string
		lines                    []byte
	)
	err := row.Scan(&b.ID, &b.CounterpartyID, &b.CounterpartyName, &b.Period, &kind, &b.Currency,
		&gross, &rebate, &net, &paid, &status, &b.PaymentDueDate, &b.RebateDueDate, &b.Notes, &lines, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return Bill{}, err
	}
	b.Kind = BillKind(kind)
	b.Status = BillStatus(status)
	for _, f := range []struct {
		dst *decimal.Decimal
		raw string
	}{{&b.Gross, gross}, {&b.Rebate, rebate}, {&b.Net, net}, {&b.Paid, paid}} {
		if *f.dst, err = decimal.NewFromString(f.raw); err != nil {
			return Bill{}, fmt.Errorf("bill %s amount: %w", b.ID, err)
		}
	}
	if len(lines) > 0 {
		if err := json.Unmarshal(lines, &b.Lines); err != nil {
			return Bill{}, fmt.Errorf("bill %s lines: %w", b.ID, err)
		}
	}
	for _, l := range b.Lines {
		b.RecordIDs = append(b.RecordIDs, l.RecordIDs...)
	}
	return b, nil
}

func optionalDecimal(raw *string) (*decimal.Decimal, error) {
	if raw == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
