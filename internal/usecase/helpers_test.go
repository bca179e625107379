package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/phenrril/orderdesk/internal/adapters/rsge"
	"github.com/phenrril/orderdesk/internal/domain"
)

// fakePersister records queued writes and serves canned row positions.
type fakePersister struct {
	mu       sync.Mutex
	appends  map[string][][]any
	updates  map[string]map[int][]any
	rowIndex map[string]int // "tab/id" -> 1-based row
	rows     map[string][][]any
}

func newFakePersister() *fakePersister {
	return &fakePersister{
		appends:  map[string][][]any{},
		updates:  map[string]map[int][]any{},
		rowIndex: map[string]int{},
		rows:     map[string][][]any{},
	}
}

func (f *fakePersister) AppendRow(tab string, row []any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appends[tab] = append(f.appends[tab], row)
}

func (f *fakePersister) UpdateRow(tab string, rowIndex int, row []any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updates[tab] == nil {
		f.updates[tab] = map[int][]any{}
	}
	f.updates[tab][rowIndex] = row
}

func (f *fakePersister) FindRowIndex(_ context.Context, tab, id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if idx, ok := f.rowIndex[tab+"/"+id]; ok {
		return idx
	}
	return -1
}

func (f *fakePersister) FindRowWhere(_ context.Context, tab string, match func(row []any) bool) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, row := range f.rows[tab] {
		if match(row) {
			return i + 1
		}
	}
	return -1
}

func (f *fakePersister) appendCount(tab string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.appends[tab])
}

// fakeSource returns canned waybills or errors from injected funcs.
type fakeSource struct {
	sale  func(ctx context.Context) ([]rsge.Waybill, error)
	buyer func(ctx context.Context) ([]rsge.Waybill, error)
}

func (f fakeSource) SaleWaybills(ctx context.Context, _, _ time.Time) ([]rsge.Waybill, error) {
	if f.sale == nil {
		return nil, nil
	}
	return f.sale(ctx)
}

func (f fakeSource) BuyerWaybills(ctx context.Context, _, _ time.Time) ([]rsge.Waybill, error) {
	if f.buyer == nil {
		return nil, nil
	}
	return f.buyer(ctx)
}

type fakeNotifier struct {
	err  error
	sent []domain.Order
}

func (f *fakeNotifier) SendOrder(_ context.Context, o domain.Order) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, o)
	return nil
}
