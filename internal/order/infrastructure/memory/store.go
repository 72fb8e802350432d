// Package memory is an in-process implementation of the order repository.
// Transactions are serialized by a single mutex and work on a copy of the
// state that replaces the live state only on commit, so a failed callback
// leaves nothing behind.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	catalogdom "github.com/dmehra2102/shopeasy/internal/catalog/domain"
	"github.com/dmehra2102/shopeasy/internal/order/application"
	"github.com/dmehra2102/shopeasy/internal/order/domain"
	"github.com/dmehra2102/shopeasy/pkg/outbox"
)

type Op string

const (
	OpGetProduct    Op = "GetProductForUpdate"
	OpDecrement     Op = "DecrementStock"
	OpIncrement     Op = "IncrementStock"
	OpCreateOrder   Op = "CreateOrder"
	OpCreateItems   Op = "CreateOrderItems"
	OpGetOrder      Op = "GetOrderForUpdate"
	OpListItems     Op = "ListOrderItems"
	OpSetStatus     Op = "SetOrderStatus"
	OpAppendEvent   Op = "AppendEvent"
	OpStockConflict Op = "StockConflict"
)

// fault fails one call of an op after letting skip calls through.
type fault struct {
	skip int
	err  error
}

type state struct {
	products map[int64]catalogdom.Product
	orders   map[int64]domain.Order
	items    map[int64][]domain.Item
	events   []outbox.Event
	nextID   int64
}

func (s state) clone() state {
	c := state{
		products: make(map[int64]catalogdom.Product, len(s.products)),
		orders:   make(map[int64]domain.Order, len(s.orders)),
		items:    make(map[int64][]domain.Item, len(s.items)),
		events:   append([]outbox.Event(nil), s.events...),
		nextID:   s.nextID,
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.items {
		c.items[k] = append([]domain.Item(nil), v...)
	}
	return c
}

type Store struct {
	mu     sync.Mutex
	state  state
	faults map[Op]*fault
}

var _ application.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		state: state{
			products: map[int64]catalogdom.Product{},
			orders:   map[int64]domain.Order{},
			items:    map[int64][]domain.Item{},
		},
		faults: map[Op]*fault{},
	}
}

// PutProduct inserts or replaces a product.
func (s *Store) PutProduct(p catalogdom.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.products[p.ID] = p
}

func (s *Store) Product(id int64) (catalogdom.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.state.products[id]
	return p, ok
}

func (s *Store) Order(id int64) (domain.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.state.orders[id]
	return o, ok
}

func (s *Store) Items(orderID int64) []domain.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Item(nil), s.state.items[orderID]...)
}

func (s *Store) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]outbox.Event(nil), s.state.events...)
}

func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.orders)
}

// FailOn makes the next call of op inside a transaction return err.
// OpStockConflict makes the next DecrementStock match no row.
func (s *Store) FailOn(op Op, err error) { s.FailOnCall(op, 1, err) }

// FailOnCall makes the nth call of op from now return err; earlier calls
// succeed.
func (s *Store) FailOnCall(op Op, n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = &fault{skip: n - 1, err: err}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(ctx, &tx{store: s, st: &work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) ListByUser(ctx context.Context, userID int64) ([]domain.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []domain.Summary
	for _, o := range s.state.orders {
		if o.UserID != userID {
			continue
		}
		sum := domain.Summary{Order: o}
		for _, it := range s.state.items[o.ID] {
			sum.ItemCount++
			sum.TotalUnits += it.Quantity
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) Get(ctx context.Context, orderID int64) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	o, ok := s.state.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	o.Items = s.state.namedItems(orderID)
	return o, nil
}

func (st *state) namedItems(orderID int64) []domain.Item {
	items := append([]domain.Item(nil), st.items[orderID]...)
	for i := range items {
		items[i].ProductName = st.products[items[i].ProductID].Name
	}
	return items
}

// tx runs with Store.mu held.
type tx struct {
	store *Store
	st    *state
}

// trip reports whether op's armed fault fires on this call.
func (t *tx) trip(op Op) (bool, error) {
	f, ok := t.store.faults[op]
	if !ok {
		return false, nil
	}
	if f.skip > 0 {
		f.skip--
		return false, nil
	}
	delete(t.store.faults, op)
	return true, f.err
}

func (t *tx) fault(op Op) error {
	_, err := t.trip(op)
	return err
}

func (t *tx) GetProductForUpdate(_ context.Context, productID int64) (catalogdom.Product, error) {
	if err := t.fault(OpGetProduct); err != nil {
		return catalogdom.Product{}, err
	}
	p, ok := t.st.products[productID]
	if !ok {
		return catalogdom.Product{}, catalogdom.ErrProductNotFound
	}
	return p, nil
}

func (t *tx) DecrementStock(_ context.Context, productID int64, qty int) error {
	if err := t.fault(OpDecrement); err != nil {
		return err
	}
	if fired, _ := t.trip(OpStockConflict); fired {
		return domain.ErrStockConflict
	}
	p, ok := t.st.products[productID]
	if !ok || p.Stock < qty {
		return domain.ErrStockConflict
	}
	p.Stock -= qty
	t.st.products[productID] = p
	return nil
}

func (t *tx) IncrementStock(_ context.Context, productID int64, qty int) error {
	if err := t.fault(OpIncrement); err != nil {
		return err
	}
	if p, ok := t.st.products[productID]; ok {
		p.Stock += qty
		t.st.products[productID] = p
	}
	return nil
}

func (t *tx) CreateOrder(_ context.Context, o domain.Order) (int64, error) {
	if err := t.fault(OpCreateOrder); err != nil {
		return 0, err
	}
	t.st.nextID++
	o.ID = t.st.nextID
	o.Items = nil
	t.st.orders[o.ID] = o
	return o.ID, nil
}

func (t *tx) CreateOrderItems(_ context.Context, orderID int64, items []domain.Item) error {
	if err := t.fault(OpCreateItems); err != nil {
		return err
	}
	for _, it := range items {
		it.OrderID = orderID
		it.ProductName = ""
		t.st.items[orderID] = append(t.st.items[orderID], it)
	}
	return nil
}

func (t *tx) GetOrderForUpdate(_ context.Context, orderID int64) (domain.Order, error) {
	if err := t.fault(OpGetOrder); err != nil {
		return domain.Order{}, err
	}
	o, ok := t.st.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

func (t *tx) ListOrderItems(_ context.Context, orderID int64) ([]domain.Item, error) {
	if err := t.fault(OpListItems); err != nil {
		return nil, err
	}
	return t.st.namedItems(orderID), nil
}

func (t *tx) SetOrderStatus(_ context.Context, orderID int64, status domain.Status) error {
	if err := t.fault(OpSetStatus); err != nil {
		return err
	}
	o, ok := t.st.orders[orderID]
	if !ok {
		return domain.ErrNotFound
	}
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	t.st.orders[orderID] = o
	return nil
}

func (t *tx) AppendEvent(_ context.Context, e outbox.Event) error {
	if err := t.fault(OpAppendEvent); err != nil {
		return err
	}
	e.ID = int64(len(t.st.events) + 1)
	e.CreatedAt = time.Now().UTC()
	t.st.events = append(t.st.events, e)
	return nil
}
