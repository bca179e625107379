// Package store holds the in-memory mirror of the external spreadsheet:
// one table per tab plus secondary indexes, safe for concurrent use.
// It knows nothing about persistence or the network; mutations are
// propagated by the caller.
package store

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/phenrril/orderdesk/internal/domain"
)

type Store struct {
	cmu       sync.RWMutex
	customers map[string]domain.Customer
	tinIndex  map[string]string

	umu       sync.RWMutex
	users     map[string]domain.User
	nameIndex map[string]string
	passwords map[string]string

	omu    sync.RWMutex
	orders map[string]domain.Order

	imu   sync.RWMutex
	items map[string]domain.OrderItem

	dmu    sync.RWMutex
	drafts map[string]domain.Draft

	mmu         sync.RWMutex
	myCustomers []domain.MyCustomer

	smu        sync.RWMutex
	syncStates []domain.SyncState

	bmu    sync.RWMutex
	boards map[string][]string

	ready atomic.Bool
}

func New() *Store {
	return &Store{
		customers: map[string]domain.Customer{},
		tinIndex:  map[string]string{},
		users:     map[string]domain.User{},
		nameIndex: map[string]string{},
		passwords: map[string]string{},
		orders:    map[string]domain.Order{},
		items:     map[string]domain.OrderItem{},
		drafts:    map[string]domain.Draft{},
		boards:    map[string][]string{},
	}
}

// Ready reports whether the initial load has completed. Readers may branch
// on it; the store itself never blocks.
func (s *Store) Ready() bool { return s.ready.Load() }

func (s *Store) SetReady(v bool) { s.ready.Store(v) }

// --- Bulk loads from raw sheet rows ---
//
// Each LoadX replaces its whole table and rebuilds the secondary indexes.
// Malformed cells degrade to ""/0/false; a load never fails.

func (s *Store) LoadCustomers(rows [][]any) {
	customers := make(map[string]domain.Customer, len(rows))
	tinIndex := make(map[string]string)
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		c := domain.Customer{
			ID:             cellStr(row, 0),
			Name:           cellStr(row, 1),
			TIN:            cellStr(row, 2),
			FrequencyScore: cellInt(row, 3),
			AddedBy:        cellStr(row, 4),
			Active:         cellBool(row, 5),
			CreatedAt:      cellStr(row, 6),
			UpdatedAt:      cellStr(row, 7),
		}
		customers[c.ID] = c
		if c.TIN != "" {
			tinIndex[c.TIN] = c.ID
		}
	}
	s.cmu.Lock()
	s.customers = customers
	s.tinIndex = tinIndex
	s.cmu.Unlock()
	log.Info().Int("count", len(customers)).Msg("customers loaded")
}

func (s *Store) LoadUsers(rows [][]any) {
	users := make(map[string]domain.User, len(rows))
	nameIndex := make(map[string]string)
	passwords := make(map[string]string)
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		u := domain.User{
			ID:          cellStr(row, 0),
			Username:    cellStr(row, 1),
			DisplayName: cellStr(row, 3),
			Role:        cellStr(row, 4),
			Active:      cellBool(row, 5),
			CreatedAt:   cellStr(row, 6),
		}
		users[u.ID] = u
		nameIndex[strings.ToLower(u.Username)] = u.ID
		passwords[u.ID] = cellStr(row, 2)
	}
	s.umu.Lock()
	s.users = users
	s.nameIndex = nameIndex
	s.passwords = passwords
	s.umu.Unlock()
	log.Info().Int("count", len(users)).Msg("users loaded")
}

func (s *Store) LoadOrders(rows [][]any) {
	orders := make(map[string]domain.Order, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		o := domain.Order{
			ID:          cellStr(row, 0),
			ManagerID:   cellStr(row, 1),
			ManagerName: cellStr(row, 2),
			Date:        cellStr(row, 3),
			Status:      cellStr(row, 4),
			Notified:    cellBool(row, 5),
			NotifiedAt:  cellStr(row, 6),
			ItemCount:   cellInt(row, 7),
			CreatedAt:   cellStr(row, 8),
		}
		orders[o.ID] = o
	}
	s.omu.Lock()
	s.orders = orders
	s.omu.Unlock()
	log.Info().Int("count", len(orders)).Msg("orders loaded")
}

func (s *Store) LoadOrderItems(rows [][]any) {
	items := make(map[string]domain.OrderItem, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		it := domain.OrderItem{
			ID:           cellStr(row, 0),
			OrderID:      cellStr(row, 1),
			CustomerName: cellStr(row, 2),
			CustomerID:   cellStr(row, 3),
			Comment:      cellStr(row, 4),
			CreatedAt:    cellStr(row, 5),
			Board:        cellStr(row, 6),
		}
		items[it.ID] = it
	}
	s.imu.Lock()
	s.items = items
	s.imu.Unlock()
	log.Info().Int("count", len(items)).Msg("order items loaded")
}

func (s *Store) LoadDrafts(rows [][]any) {
	drafts := make(map[string]domain.Draft, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		d := domain.Draft{
			ID:        cellStr(row, 0),
			ManagerID: cellStr(row, 1),
			Name:      cellStr(row, 2),
			Items:     parseDraftItems(cellStr(row, 3)),
			CreatedAt: cellStr(row, 4),
			UpdatedAt: cellStr(row, 5),
		}
		drafts[d.ID] = d
	}
	s.dmu.Lock()
	s.drafts = drafts
	s.dmu.Unlock()
	log.Info().Int("count", len(drafts)).Msg("drafts loaded")
}

func (s *Store) LoadMyCustomers(rows [][]any) {
	list := make([]domain.MyCustomer, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 || cellStr(row, 0) == "" {
			continue
		}
		list = append(list, domain.MyCustomer{
			ManagerID:    cellStr(row, 0),
			CustomerName: cellStr(row, 1),
			CustomerID:   cellStr(row, 2),
			AddedAt:      cellStr(row, 3),
		})
	}
	s.mmu.Lock()
	s.myCustomers = list
	s.mmu.Unlock()
	log.Info().Int("count", len(list)).Msg("my-customer entries loaded")
}

func (s *Store) LoadSyncStates(rows [][]any) {
	list := make([]domain.SyncState, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		st := domain.SyncState{
			ID:             cellStr(row, 0),
			Type:           cellStr(row, 1),
			StartDate:      cellStr(row, 2),
			EndDate:        cellStr(row, 3),
			Status:         cellStr(row, 4),
			CustomersFound: cellInt(row, 5),
			CustomersAdded: cellInt(row, 6),
			ErrorMessage:   cellStr(row, 7),
			StartedAt:      cellStr(row, 8),
			CompletedAt:    cellStr(row, 9),
		}
		if !st.Valid() {
			skipped++
			continue
		}
		list = append(list, st)
	}
	s.smu.Lock()
	s.syncStates = list
	s.smu.Unlock()
	log.Info().Int("count", len(list)).Int("skippedInvalid", skipped).Msg("sync states loaded")
}

func (s *Store) LoadCustomerBoards(rows [][]any) {
	boards := make(map[string][]string)
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		customerID := cellStr(row, 0)
		board := cellStr(row, 1)
		if customerID == "" || board == "" {
			continue
		}
		boards[customerID] = append(boards[customerID], board)
	}
	s.bmu.Lock()
	s.boards = boards
	s.bmu.Unlock()
	log.Info().Int("customers", len(boards)).Msg("customer boards loaded")
}

// --- Customers ---

// SearchCustomers filters active customers, ranks them, then expands each
// surviving customer into one row per board (one row with an empty board if
// none) before paginating. Pagination runs on the expanded row set.
func (s *Store) SearchCustomers(query, managerID, tab string, page, size int) []domain.Customer {
	mine := s.MyCustomerIDs(managerID)

	s.cmu.RLock()
	filtered := make([]domain.Customer, 0, len(s.customers))
	q := strings.ToLower(strings.TrimSpace(query))
	for _, c := range s.customers {
		if !c.Active {
			continue
		}
		if tab == "my" {
			if _, ok := mine[c.ID]; !ok {
				continue
			}
		}
		if q != "" && !strings.Contains(strings.ToLower(c.Name), q) && !strings.Contains(c.TIN, q) {
			continue
		}
		filtered = append(filtered, c)
	}
	s.cmu.RUnlock()

	sort.SliceStable(filtered, func(i, j int) bool {
		a, b := filtered[i], filtered[j]
		_, aMine := mine[a.ID]
		_, bMine := mine[b.ID]
		if aMine != bMine {
			return aMine
		}
		if a.FrequencyScore != b.FrequencyScore {
			return a.FrequencyScore > b.FrequencyScore
		}
		return lessEmptyLast(a.Name, b.Name)
	})

	s.bmu.RLock()
	expanded := make([]domain.Customer, 0, len(filtered))
	for _, c := range filtered {
		boards := s.boards[c.ID]
		if len(boards) == 0 {
			expanded = append(expanded, c)
			continue
		}
		for _, b := range boards {
			row := c
			row.Board = b
			expanded = append(expanded, row)
		}
	}
	s.bmu.RUnlock()

	return paginate(expanded, page, size)
}

func (s *Store) FrequentCustomers(limit int) []domain.Customer {
	s.cmu.RLock()
	active := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		if c.Active {
			active = append(active, c)
		}
	}
	s.cmu.RUnlock()
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].FrequencyScore > active[j].FrequencyScore
	})
	if limit < len(active) {
		active = active[:limit]
	}
	return active
}

func (s *Store) Customer(id string) (domain.Customer, bool) {
	s.cmu.RLock()
	defer s.cmu.RUnlock()
	c, ok := s.customers[id]
	return c, ok
}

func (s *Store) CustomerByTIN(tin string) (domain.Customer, bool) {
	s.cmu.RLock()
	defer s.cmu.RUnlock()
	id, ok := s.tinIndex[tin]
	if !ok {
		return domain.Customer{}, false
	}
	c, ok := s.customers[id]
	return c, ok
}

// PutCustomer inserts or replaces a customer and refreshes the TIN index.
// On a TIN conflict the last write wins.
func (s *Store) PutCustomer(c domain.Customer) {
	s.cmu.Lock()
	s.customers[c.ID] = c
	if c.TIN != "" {
		s.tinIndex[c.TIN] = c.ID
	}
	s.cmu.Unlock()
}

// IncrementFrequencyScore bumps the score by one; no-op when absent.
func (s *Store) IncrementFrequencyScore(id string) {
	s.cmu.Lock()
	defer s.cmu.Unlock()
	c, ok := s.customers[id]
	if !ok {
		return
	}
	c.FrequencyScore++
	s.customers[c.ID] = c
	if c.TIN != "" {
		s.tinIndex[c.TIN] = c.ID
	}
}

// --- Boards ---

func (s *Store) Boards(customerID string) []string {
	s.bmu.RLock()
	defer s.bmu.RUnlock()
	boards := s.boards[customerID]
	out := make([]string, len(boards))
	copy(out, boards)
	return out
}

func (s *Store) AddBoard(customerID, board string) {
	s.bmu.Lock()
	s.boards[customerID] = append(s.boards[customerID], board)
	s.bmu.Unlock()
}

// RemoveBoard removes the first occurrence of board for the customer and
// reports whether anything was removed.
func (s *Store) RemoveBoard(customerID, board string) bool {
	s.bmu.Lock()
	defer s.bmu.Unlock()
	boards := s.boards[customerID]
	for i, b := range boards {
		if b == board {
			s.boards[customerID] = append(boards[:i:i], boards[i+1:]...)
			return true
		}
	}
	return false
}

// --- Users ---

func (s *Store) User(id string) (domain.User, bool) {
	s.umu.RLock()
	defer s.umu.RUnlock()
	u, ok := s.users[id]
	return u, ok
}

func (s *Store) UserByUsername(username string) (domain.User, bool) {
	s.umu.RLock()
	defer s.umu.RUnlock()
	id, ok := s.nameIndex[strings.ToLower(username)]
	if !ok {
		return domain.User{}, false
	}
	u, ok := s.users[id]
	return u, ok
}

func (s *Store) UserPasswordHash(id string) string {
	s.umu.RLock()
	defer s.umu.RUnlock()
	return s.passwords[id]
}

func (s *Store) Users() []domain.User {
	s.umu.RLock()
	defer s.umu.RUnlock()
	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	return out
}

func (s *Store) PutUser(u domain.User, passwordHash string) {
	s.umu.Lock()
	s.users[u.ID] = u
	s.nameIndex[strings.ToLower(u.Username)] = u.ID
	if passwordHash != "" {
		s.passwords[u.ID] = passwordHash
	}
	s.umu.Unlock()
}

// --- Orders ---

func (s *Store) PutOrder(o domain.Order) {
	s.omu.Lock()
	s.orders[o.ID] = o
	s.omu.Unlock()
}

func (s *Store) Order(id string) (domain.Order, bool) {
	s.omu.RLock()
	defer s.omu.RUnlock()
	o, ok := s.orders[id]
	return o, ok
}

// Orders filters by optional exact date and manager, newest first.
func (s *Store) Orders(date, managerID string, page, size int) []domain.Order {
	s.omu.RLock()
	filtered := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if date != "" && date != o.Date {
			continue
		}
		if managerID != "" && managerID != o.ManagerID {
			continue
		}
		filtered = append(filtered, o)
	}
	s.omu.RUnlock()
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt > filtered[j].CreatedAt
	})
	return paginate(filtered, page, size)
}

// --- Order items ---

func (s *Store) PutOrderItem(it domain.OrderItem) {
	s.imu.Lock()
	s.items[it.ID] = it
	s.imu.Unlock()
}

func (s *Store) OrderItem(id string) (domain.OrderItem, bool) {
	s.imu.RLock()
	defer s.imu.RUnlock()
	it, ok := s.items[id]
	return it, ok
}

func (s *Store) OrderItems(orderID string) []domain.OrderItem {
	s.imu.RLock()
	defer s.imu.RUnlock()
	out := []domain.OrderItem{}
	for _, it := range s.items {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	return out
}

func (s *Store) UpdateOrderItemBoard(itemID, board string) {
	s.imu.Lock()
	defer s.imu.Unlock()
	it, ok := s.items[itemID]
	if !ok {
		return
	}
	it.Board = board
	s.items[itemID] = it
}

// --- Drafts ---

func (s *Store) PutDraft(d domain.Draft) {
	s.dmu.Lock()
	s.drafts[d.ID] = d
	s.dmu.Unlock()
}

func (s *Store) Draft(id string) (domain.Draft, bool) {
	s.dmu.RLock()
	defer s.dmu.RUnlock()
	d, ok := s.drafts[id]
	return d, ok
}

func (s *Store) RemoveDraft(id string) {
	s.dmu.Lock()
	delete(s.drafts, id)
	s.dmu.Unlock()
}

func (s *Store) Drafts(managerID string) []domain.Draft {
	s.dmu.RLock()
	out := []domain.Draft{}
	for _, d := range s.drafts {
		if d.ManagerID == managerID {
			out = append(out, d)
		}
	}
	s.dmu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt > out[j].UpdatedAt
	})
	return out
}

// DraftByName looks up a manager's draft by case-insensitive exact name.
// Ordering among same-named drafts is unspecified; the first match wins.
func (s *Store) DraftByName(managerID, name string) (domain.Draft, bool) {
	s.dmu.RLock()
	defer s.dmu.RUnlock()
	for _, d := range s.drafts {
		if d.ManagerID == managerID && strings.EqualFold(d.Name, name) {
			return d, true
		}
	}
	return domain.Draft{}, false
}

// --- My customers ---

func (s *Store) MyCustomerIDs(managerID string) map[string]struct{} {
	ids := map[string]struct{}{}
	if managerID == "" {
		return ids
	}
	s.mmu.RLock()
	defer s.mmu.RUnlock()
	for _, mc := range s.myCustomers {
		if mc.ManagerID == managerID {
			ids[mc.CustomerID] = struct{}{}
		}
	}
	return ids
}

func (s *Store) MyCustomers(managerID string) []domain.MyCustomer {
	s.mmu.RLock()
	defer s.mmu.RUnlock()
	out := []domain.MyCustomer{}
	for _, mc := range s.myCustomers {
		if mc.ManagerID == managerID {
			out = append(out, mc)
		}
	}
	return out
}

// AddMyCustomer appends without dedup; duplicates are filtered at query
// level via MyCustomerIDs.
func (s *Store) AddMyCustomer(mc domain.MyCustomer) {
	s.mmu.Lock()
	s.myCustomers = append(s.myCustomers, mc)
	s.mmu.Unlock()
}

func (s *Store) RemoveMyCustomer(managerID, customerID string) {
	s.mmu.Lock()
	defer s.mmu.Unlock()
	kept := s.myCustomers[:0]
	for _, mc := range s.myCustomers {
		if mc.ManagerID == managerID && mc.CustomerID == customerID {
			continue
		}
		kept = append(kept, mc)
	}
	s.myCustomers = kept
}

// --- Sync state ---

func (s *Store) AddSyncState(st domain.SyncState) {
	s.smu.Lock()
	s.syncStates = append(s.syncStates, st)
	s.smu.Unlock()
	log.Info().
		Str("syncId", st.ID).Str("status", st.Status).
		Int("found", st.CustomersFound).Int("added", st.CustomersAdded).
		Str("error", truncate(st.ErrorMessage, 240)).
		Msg("sync state added")
}

// UpdateSyncState replaces the record with the same id (remove-then-add;
// concurrent updates to one id race, last write wins).
func (s *Store) UpdateSyncState(st domain.SyncState) {
	s.smu.Lock()
	kept := s.syncStates[:0]
	for _, cur := range s.syncStates {
		if cur.ID != st.ID {
			kept = append(kept, cur)
		}
	}
	s.syncStates = append(kept, st)
	s.smu.Unlock()
	log.Info().
		Str("syncId", st.ID).Str("status", st.Status).
		Int("found", st.CustomersFound).Int("added", st.CustomersAdded).
		Str("error", truncate(st.ErrorMessage, 240)).
		Msg("sync state updated")
}

func (s *Store) SyncStates(limit int) []domain.SyncState {
	s.smu.RLock()
	valid := make([]domain.SyncState, 0, len(s.syncStates))
	for _, st := range s.syncStates {
		if st.Valid() {
			valid = append(valid, st)
		}
	}
	s.smu.RUnlock()
	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].StartedAt > valid[j].StartedAt
	})
	if limit < len(valid) {
		valid = valid[:limit]
	}
	return valid
}

// LatestSyncState returns the valid record with the greatest startedAt;
// an empty startedAt loses against any non-empty one.
func (s *Store) LatestSyncState() (domain.SyncState, bool) {
	s.smu.RLock()
	defer s.smu.RUnlock()
	var best domain.SyncState
	found := false
	for _, st := range s.syncStates {
		if !st.Valid() {
			continue
		}
		if !found || st.StartedAt > best.StartedAt {
			best = st
			found = true
		}
	}
	return best, found
}

func (s *Store) HasSyncHistory() bool {
	s.smu.RLock()
	defer s.smu.RUnlock()
	for _, st := range s.syncStates {
		if st.Valid() {
			return true
		}
	}
	return false
}

func (s *Store) HasSuccessfulSyncHistory() bool {
	s.smu.RLock()
	defer s.smu.RUnlock()
	for _, st := range s.syncStates {
		if st.Valid() && strings.EqualFold(st.Status, domain.SyncStatusSuccess) {
			return true
		}
	}
	return false
}

// --- Helpers ---

func paginate[T any](items []T, page, size int) []T {
	if size <= 0 || page < 0 {
		return nil
	}
	start := page * size
	if start >= len(items) {
		return nil
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// lessEmptyLast orders ascending with empty strings after everything else.
func lessEmptyLast(a, b string) bool {
	if (a == "") != (b == "") {
		return a != ""
	}
	return a < b
}

func parseDraftItems(raw string) []domain.DraftItem {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var items []domain.DraftItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		log.Warn().Err(err).Msg("draft items cell is not valid JSON")
		return nil
	}
	return items
}

func truncate(v string, max int) string {
	v = strings.TrimSpace(v)
	if len(v) <= max {
		return v
	}
	return v[:max] + "..."
}
