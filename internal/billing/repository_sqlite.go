package billing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/crossbridge/crossbridge/internal/duedate"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS counterparties (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    kind          TEXT NOT NULL,
    credit_term   TEXT NOT NULL DEFAULT '',
    rebate_period TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS raw_records (
    id              TEXT PRIMARY KEY,
    counterparty_id TEXT NOT NULL,
    sub_entity_id   TEXT NOT NULL,
    period          TEXT NOT NULL,
    amount          TEXT NOT NULL,
    currency        TEXT NOT NULL,
    rebate          TEXT,
    paid            TEXT,
    settled         INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS bills (
    id                TEXT PRIMARY KEY,
    counterparty_id   TEXT NOT NULL,
    counterparty_name TEXT NOT NULL,
    period            TEXT NOT NULL,
    kind              TEXT NOT NULL,
    currency          TEXT NOT NULL,
    gross             TEXT NOT NULL,
    rebate            TEXT NOT NULL,
    net               TEXT NOT NULL,
    paid              TEXT NOT NULL,
    status            TEXT NOT NULL,
    payment_due_date  TEXT,
    rebate_due_date   TEXT,
    notes             TEXT NOT NULL DEFAULT '',
    lines             TEXT NOT NULL DEFAULT '[]',
    created_at        TEXT NOT NULL,
    updated_at        TEXT NOT NULL,
    UNIQUE (counterparty_id, period, kind)
);
CREATE TABLE IF NOT EXISTS bill_records (
    bill_id   TEXT NOT NULL,
    record_id TEXT NOT NULL,
    kind      TEXT NOT NULL,
    PRIMARY KEY (bill_id, record_id),
    UNIQUE (record_id, kind)
);
`

const sqliteDateLayout = "2006-01-02"

// SQLiteStore implements Store on an embedded SQLite database for
// single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens path (":memory:" is accepted) and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// A second connection to ":memory:" would see an empty database.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveCounterparty upserts a counterparty.
func (s *SQLiteStore) SaveCounterparty(ctx context.Context, c Counterparty) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO counterparties (id, name, kind, credit_term, rebate_period)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET name = excluded.name, kind = excluded.kind,
credit_term = excluded.credit_term, rebate_period = excluded.rebate_period`,
		c.ID, c.Name, string(c.Kind), c.CreditTerm, string(c.RebatePeriod))
	return err
}

// InsertRecords stores raw records. Existing IDs are rejected.
func (s *SQLiteStore) InsertRecords(ctx context.Context, records ...RawRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, r := range records {
		_, err := tx.ExecContext(ctx, `INSERT INTO raw_records (id, counterparty_id, sub_entity_id, period, amount, currency, rebate, paid)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.CounterpartyID, r.SubEntityID, r.Period, r.Amount.String(), r.Currency, decimalText(r.Rebate), decimalText(r.Paid))
		if err != nil {
			if isSQLiteUnique(err) {
				return fmt.Errorf("%w: %s", ErrDuplicateRecord, r.ID)
			}
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetCounterparty(ctx context.Context, id string) (Counterparty, error) {
	var (
		c            Counterparty
		kind, rebate string
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, name, kind, credit_term, rebate_period FROM counterparties WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &kind, &c.CreditTerm, &rebate)
	if errors.Is(err, sql.ErrNoRows) {
		return Counterparty{}, ErrCounterpartyNotFound
	}
	if err != nil {
		return Counterparty{}, err
	}
	c.Kind = CounterpartyKind(strings.ToUpper(kind))
	if rp, ok := duedate.ParseRebatePeriod(rebate); ok {
		c.RebatePeriod = rp
	}
	return c, nil
}

func (s *SQLiteStore) ListCounterparties(ctx context.Context) ([]Counterparty, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM counterparties ORDER BY id`)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]Counterparty, 0, len(ids))
	for _, id := range ids {
		c, err := s.GetCounterparty(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *SQLiteStore) ListBillableRecords(ctx context.Context, counterpartyID, period string) ([]RawRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, counterparty_id, sub_entity_id, period, amount, currency, rebate, paid
FROM raw_records WHERE counterparty_id = ? AND period = ? AND settled = 0 ORDER BY id`, counterpartyID, period)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RawRecord
	for rows.Next() {
		var (
			rec          RawRecord
			amount       string
			rebate, paid sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.CounterpartyID, &rec.SubEntityID, &rec.Period, &amount, &rec.Currency, &rebate, &paid); err != nil {
			return nil, err
		}
		if rec.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("record %s amount: %w", rec.ID, err)
		}
		if rec.Rebate, err = nullDecimal(rebate); err != nil {
			return nil, fmt.Errorf("record %s rebate: %w", rec.ID, err)
		}
		if rec.Paid, err = nullDecimal(paid); err != nil {
			return nil, fmt.Errorf("record %s paid: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

const sqliteBillColumns = `id, counterparty_id, counterparty_name, period, kind, currency, gross, rebate, net, paid,
status, payment_due_date, rebate_due_date, notes, lines, created_at, updated_at`

func (s *SQLiteStore) FindActive(ctx context.Context, key Key) (Bill, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteBillColumns+` FROM bills WHERE counterparty_id = ? AND period = ? AND kind = ?`,
		key.CounterpartyID, key.Period, string(key.Kind))
	b, err := scanSQLiteBill(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Bill{}, false, nil
	}
	if err != nil {
		return Bill{}, false, err
	}
	return b, true, nil
}

func (s *SQLiteStore) Create(ctx context.Context, bill Bill) (Bill, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Bill{}, err
	}
	defer func() { _ = tx.Rollback() }()
	if err := insertSQLiteBill(ctx, tx, bill); err != nil {
		return Bill{}, err
	}
	return bill, tx.Commit()
}

func (s *SQLiteStore) Overwrite(ctx context.Context, previousID string, bill Bill) (Bill, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Bill{}, err
	}
	defer func() { _ = tx.Rollback() }()
	res, err := tx.ExecContext(ctx, `DELETE FROM bills WHERE id = ? AND counterparty_id = ? AND period = ? AND kind = ?`,
		previousID, bill.CounterpartyID, bill.Period, string(bill.Kind))
	if err != nil {
		return Bill{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Bill{}, ErrBillNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM bill_records WHERE bill_id = ?`, previousID); err != nil {
		return Bill{}, err
	}
	if err := insertSQLiteBill(ctx, tx, bill); err != nil {
		return Bill{}, err
	}
	return bill, tx.Commit()
}

func insertSQLiteBill(ctx context.Context, tx *sql.Tx, b Bill) error {
	lines, err := json.Marshal(b.Lines)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO bills (`+sqliteBillColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.CounterpartyID, b.CounterpartyName, b.Period, string(b.Kind), b.Currency,
		b.Gross.String(), b.Rebate.String(), b.Net.String(), b.Paid.String(), string(b.Status),
		dateText(b.PaymentDueDate), dateText(b.RebateDueDate), b.Notes, string(lines),
		sqliteTime(b.CreatedAt), sqliteTime(b.UpdatedAt))
	if err != nil {
		if isSQLiteUnique(err) {
			return ErrBillConflict
		}
		return err
	}
	for _, id := range b.RecordIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO bill_records (bill_id, record_id, kind) VALUES (?, ?, ?)`, b.ID, id, string(b.Kind)); err != nil {
			if isSQLiteUnique(err) {
				return fmt.Errorf("%w: %s", ErrDuplicateRecord, id)
			}
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Bill, error) {
	b, err := scanSQLiteBill(s.db.QueryRowContext(ctx, `SELECT `+sqliteBillColumns+` FROM bills WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Bill{}, ErrBillNotFound
	}
	return b, err
}

func (s *SQLiteStore) List(ctx context.Context, f ListFilter) ([]Bill, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteBillColumns+` FROM bills
WHERE (?1 = '' OR period = ?1) AND (?2 = '' OR kind = ?2) AND (?3 = '' OR counterparty_id = ?3) AND (?4 = '' OR status = ?4)
ORDER BY created_at DESC, id
LIMIT ?5`, f.Period, string(f.Kind), f.CounterpartyID, string(f.Status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Bill
	for rows.Next() {
		b, err := scanSQLiteBill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status BillStatus, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE bills SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), sqliteTime(at), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrBillNotFound
	}
	return nil
}

// sqliteTimeLayout is fixed width so text ordering matches time ordering.
// RFC3339Nano still reads it back, along with rows written before the change.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func sqliteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteBill(row rowScanner) (Bill, error) {
	var (
		b                        Bill
		kind, status             string
		gross, rebate, net, paid string
		payDue, rebateDue        sql.NullString
		lines                    string
		created, updated         string
	)
	err := row.Scan(&b.ID, &b.CounterpartyID, &b.CounterpartyName, &b.Period, &kind, &b.Currency,
		&gross, &rebate, &net, &paid, &status, &payDue, &rebateDue, &b.Notes, &lines, &created, &updated)
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
	if b.PaymentDueDate, err = parseNullDate(payDue); err != nil {
		return Bill{}, err
	}
	if b.RebateDueDate, err = parseNullDate(rebateDue); err != nil {
		return Bill{}, err
	}
	if err := json.Unmarshal([]byte(lines), &b.Lines); err != nil {
		return Bill{}, fmt.Errorf("bill %s lines: %w", b.ID, err)
	}
	for _, l := range b.Lines {
		b.RecordIDs = append(b.RecordIDs, l.RecordIDs...)
	}
	if b.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return Bill{}, err
	}
	if b.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return Bill{}, err
	}
	return b, nil
}

func isSQLiteUnique(err error) bool {
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		return sqErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func decimalText(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullDecimal(v sql.NullString) (*decimal.Decimal, error) {
	if !v.Valid {
		return nil, nil
	}
	return optionalDecimal(&v.String)
}

func dateText(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(sqliteDateLayout)
}

func parseNullDate(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(sqliteDateLayout, v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
