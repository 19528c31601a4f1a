package billing

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Registry persists bills and guards the one-active-bill-per-key rule.
// Detecting a conflict (FindActive) and resolving it (Overwrite) are separate
// calls; Create never resolves a conflict on its own.
type Registry interface {
	FindActive(ctx context.Context, key Key) (Bill, bool, error)
	// Create persists a new bill. ErrBillConflict is returned when the key is
	// already held.
	Create(ctx context.Context, bill Bill) (Bill, error)
	// Overwrite removes previousID and creates bill in one step.
	Overwrite(ctx context.Context, previousID string, bill Bill) (Bill, error)
	Get(ctx context.Context, id string) (Bill, error)
	List(ctx context.Context, filter ListFilter) ([]Bill, error)
	// UpdateStatus sets the status and stamps UpdatedAt with at.
	UpdateStatus(ctx context.Context, id string, status BillStatus, at time.Time) error
}

// RecordSource lists billable, unsettled raw records.
type RecordSource interface {
	ListBillableRecords(ctx context.Context, counterpartyID, period string) ([]RawRecord, error)
}

// CounterpartySource resolves counterparties.
type CounterpartySource interface {
	GetCounterparty(ctx context.Context, id string) (Counterparty, error)
	ListCounterparties(ctx context.Context) ([]Counterparty, error)
}

// Store bundles every persistence port the settlement core needs.
type Store interface {
	Registry
	RecordSource
	CounterpartySource
}

// MemoryStore keeps everything in process. It is the fake behind the service,
// runner and handler tests; nothing selects it at runtime.
type MemoryStore struct {
	mu             sync.Mutex
	bills          map[string]Bill
	active         map[Key]string
	counterparties map[string]Counterparty
	order          []string
	records        []RawRecord
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bills:          make(map[string]Bill),
		active:         make(map[Key]string),
		counterparties: make(map[string]Counterparty),
	}
}

// PutCounterparty registers or replaces a counterparty.
func (m *MemoryStore) PutCounterparty(c Counterparty) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.counterparties[c.ID]; !ok {
		m.order = append(m.order, c.ID)
	}
	m.counterparties[c.ID] = c
}

// AddRecords appends raw records.
func (m *MemoryStore) AddRecords(records ...RawRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, records...)
}

func (m *MemoryStore) GetCounterparty(ctx context.Context, id string) (Counterparty, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counterparties[id]
	if !ok {
		return Counterparty{}, ErrCounterpartyNotFound
	}
	return c, nil
}

func (m *MemoryStore) ListCounterparties(ctx context.Context) ([]Counterparty, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Counterparty, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.counterparties[id])
	}
	return out, nil
}

func (m *MemoryStore) ListBillableRecords(ctx context.Context, counterpartyID, period string) ([]RawRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []RawRecord
	for _, r := range m.records {
		if r.CounterpartyID == counterpartyID && r.Period == period {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryStore) FindActive(ctx context.Context, key Key) (Bill, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.active[key]
	if !ok {
		return Bill{}, false, nil
	}
	return m.bills[id], true, nil
}

func (m *MemoryStore) Create(ctx context.Context, bill Bill) (Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[bill.Key()]; ok {
		return Bill{}, ErrBillConflict
	}
	m.bills[bill.ID] = bill
	m.active[bill.Key()] = bill.ID
	return bill, nil
}

func (m *MemoryStore) Overwrite(ctx context.Context, previousID string, bill Bill) (Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.bills[previousID]
	if !ok || m.active[prev.Key()] != previousID {
		return Bill{}, ErrBillNotFound
	}
	if prev.Key() != bill.Key() {
		return Bill{}, ErrBillConflict
	}
	delete(m.bills, previousID)
	delete(m.active, prev.Key())
	m.bills[bill.ID] = bill
	m.active[bill.Key()] = bill.ID
	return bill, nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bills[id]
	if !ok {
		return Bill{}, ErrBillNotFound
	}
	return b, nil
}

func (m *MemoryStore) List(ctx context.Context, filter ListFilter) ([]Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Bill
	for _, b := range m.bills {
		if filter.matches(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, id string, status BillStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bills[id]
	if !ok {
		return ErrBillNotFound
	}
	b.Status = status
	b.UpdatedAt = at.UTC()
	m.bills[id] = b
	return nil
}
