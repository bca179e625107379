package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenrril/orderdesk/internal/domain"
)

func seedCustomers(s *Store) {
	s.LoadCustomers([][]any{
		{"c1", "Acme", "123456789", float64(5), "admin", "TRUE", "2024-01-01T00:00:00Z", "2024-01-01T00:00:00Z"},
		{"c2", "Beta", "987654321", float64(9), "admin", "TRUE", "2024-01-02T00:00:00Z", "2024-01-02T00:00:00Z"},
		{"c3", "", "555555555", float64(5), "admin", "true", "2024-01-03T00:00:00Z", "2024-01-03T00:00:00Z"},
		{"c4", "Gone", "", float64(99), "admin", "FALSE", "2024-01-04T00:00:00Z", "2024-01-04T00:00:00Z"},
	})
}

func TestLoadCustomersDegradesMalformedCells(t *testing.T) {
	s := New()
	s.LoadCustomers([][]any{
		{"c1", float64(42), nil, "not-a-number", true, "yes"},
		{},
	})
	c, ok := s.Customer("c1")
	require.True(t, ok)
	assert.Equal(t, "42", c.Name)
	assert.Equal(t, "", c.TIN)
	assert.Equal(t, 0, c.FrequencyScore)
	assert.Equal(t, "TRUE", c.AddedBy)
	assert.False(t, c.Active)
}

func TestSearchCustomersOrdering(t *testing.T) {
	s := New()
	seedCustomers(s)

	got := s.SearchCustomers("", "", "", 0, 10)
	require.Len(t, got, 3, "inactive customers are excluded")
	assert.Equal(t, "c2", got[0].ID, "highest frequency first")
	assert.Equal(t, "c1", got[1].ID, "named before unnamed at equal frequency")
	assert.Equal(t, "c3", got[2].ID)
}

func TestSearchCustomersMineFirst(t *testing.T) {
	s := New()
	seedCustomers(s)
	s.LoadMyCustomers([][]any{
		{"m1", "", "c3", "2024-02-01T00:00:00Z"},
	})

	got := s.SearchCustomers("", "m1", "", 0, 10)
	require.Len(t, got, 3)
	assert.Equal(t, "c3", got[0].ID, "pinned customer leads despite lower frequency")

	mineOnly := s.SearchCustomers("", "m1", "my", 0, 10)
	require.Len(t, mineOnly, 1)
	assert.Equal(t, "c3", mineOnly[0].ID)
}

func TestSearchCustomersByNameAndTIN(t *testing.T) {
	s := New()
	seedCustomers(s)

	byName := s.SearchCustomers("aCmE", "", "", 0, 10)
	require.Len(t, byName, 1)
	assert.Equal(t, "c1", byName[0].ID)

	byTIN := s.SearchCustomers("98765", "", "", 0, 10)
	require.Len(t, byTIN, 1)
	assert.Equal(t, "c2", byTIN[0].ID)

	assert.Empty(t, s.SearchCustomers("zzz", "", "", 0, 10))
}

func TestSearchCustomersBoardExpansionAndPagination(t *testing.T) {
	s := New()
	seedCustomers(s)
	s.LoadCustomerBoards([][]any{
		{"c1", "A"}, {"c1", "B"}, {"c1", "C"},
	})

	rows := s.SearchCustomers("acme", "", "", 0, 10)
	require.Len(t, rows, 3, "one row per board")
	assert.Equal(t, []string{"A", "B", "C"}, []string{rows[0].Board, rows[1].Board, rows[2].Board})

	page0 := s.SearchCustomers("acme", "", "", 0, 2)
	require.Len(t, page0, 2)
	page1 := s.SearchCustomers("acme", "", "", 1, 2)
	require.Len(t, page1, 1)
	assert.Equal(t, "C", page1[0].Board)
	assert.Nil(t, s.SearchCustomers("acme", "", "", 2, 2))
}

func TestTINIndexFollowsWrites(t *testing.T) {
	s := New()
	s.PutCustomer(domain.Customer{ID: "c1", Name: "Acme", TIN: "111", Active: true})

	c, ok := s.CustomerByTIN("111")
	require.True(t, ok)
	assert.Equal(t, "c1", c.ID)

	s.IncrementFrequencyScore("c1")
	s.IncrementFrequencyScore("c1")
	c, _ = s.Customer("c1")
	assert.Equal(t, 2, c.FrequencyScore)

	s.IncrementFrequencyScore("missing") // no-op

	_, ok = s.CustomerByTIN("222")
	assert.False(t, ok)
}

func TestBoards(t *testing.T) {
	s := New()
	s.AddBoard("c1", "A")
	s.AddBoard("c1", "B")
	assert.Equal(t, []string{"A", "B"}, s.Boards("c1"))

	assert.True(t, s.RemoveBoard("c1", "A"))
	assert.False(t, s.RemoveBoard("c1", "A"))
	assert.Equal(t, []string{"B"}, s.Boards("c1"))
}

func TestUsersLoadAndLookup(t *testing.T) {
	s := New()
	s.LoadUsers([][]any{
		{"u1", "Alice", "hash1", "Alice A", "manager", "TRUE", "2024-01-01T00:00:00Z"},
	})

	u, ok := s.UserByUsername("ALICE")
	require.True(t, ok, "username lookup is case-insensitive")
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, "Alice A", u.DisplayName)
	assert.Equal(t, "hash1", s.UserPasswordHash("u1"))

	s.PutUser(domain.User{ID: "u1", Username: "Alice", DisplayName: "Renamed"}, "")
	assert.Equal(t, "hash1", s.UserPasswordHash("u1"), "empty hash keeps the stored one")
}

func TestOrdersFilterAndOrder(t *testing.T) {
	s := New()
	s.PutOrder(domain.Order{ID: "o1", ManagerID: "m1", Date: "2024-03-01", CreatedAt: "2024-03-01T08:00:00Z"})
	s.PutOrder(domain.Order{ID: "o2", ManagerID: "m1", Date: "2024-03-01", CreatedAt: "2024-03-01T09:00:00Z"})
	s.PutOrder(domain.Order{ID: "o3", ManagerID: "m2", Date: "2024-03-02", CreatedAt: "2024-03-02T08:00:00Z"})

	got := s.Orders("2024-03-01", "m1", 0, 10)
	require.Len(t, got, 2)
	assert.Equal(t, "o2", got[0].ID, "newest first")

	assert.Len(t, s.Orders("", "", 0, 10), 3)
	assert.Empty(t, s.Orders("2024-03-03", "", 0, 10))
}

func TestOrderItems(t *testing.T) {
	s := New()
	s.PutOrderItem(domain.OrderItem{ID: "i1", OrderID: "o1", Board: ""})
	s.PutOrderItem(domain.OrderItem{ID: "i2", OrderID: "o2"})

	assert.Len(t, s.OrderItems("o1"), 1)

	s.UpdateOrderItemBoard("i1", "West")
	it, _ := s.OrderItem("i1")
	assert.Equal(t, "West", it.Board)
}

func TestDrafts(t *testing.T) {
	s := New()
	s.LoadDrafts([][]any{
		{"d1", "m1", "Monday", `[{"customerName":"Acme","customerId":"c1","comment":"x","board":"A"}]`, "2024-01-01T00:00:00Z", "2024-01-01T00:00:00Z"},
		{"d2", "m1", "Tuesday", "not json", "2024-01-02T00:00:00Z", "2024-01-02T00:00:00Z"},
	})

	drafts := s.Drafts("m1")
	require.Len(t, drafts, 2)
	assert.Equal(t, "d2", drafts[0].ID, "most recently updated first")
	assert.Nil(t, drafts[0].Items, "unparsable items degrade to none")

	d, ok := s.DraftByName("m1", "MONDAY")
	require.True(t, ok)
	require.Len(t, d.Items, 1)
	assert.Equal(t, "Acme", d.Items[0].CustomerName)

	s.RemoveDraft("d1")
	_, ok = s.Draft("d1")
	assert.False(t, ok)
}

func TestMyCustomers(t *testing.T) {
	s := New()
	s.AddMyCustomer(domain.MyCustomer{ManagerID: "m1", CustomerID: "c1", CustomerName: "Acme"})
	s.AddMyCustomer(domain.MyCustomer{ManagerID: "m1", CustomerID: "c1", CustomerName: "Acme"})
	s.AddMyCustomer(domain.MyCustomer{ManagerID: "m2", CustomerID: "c2"})

	ids := s.MyCustomerIDs("m1")
	assert.Len(t, ids, 1, "duplicates collapse in the id set")

	s.RemoveMyCustomer("m1", "c1")
	assert.Empty(t, s.MyCustomers("m1"), "removal drops every duplicate")
	assert.Len(t, s.MyCustomers("m2"), 1)
}

func TestSyncStateLifecycle(t *testing.T) {
	s := New()
	s.AddSyncState(domain.SyncState{ID: "s1", Status: domain.SyncStatusRunning, StartedAt: "2024-01-01T00:00:00Z"})
	s.AddSyncState(domain.SyncState{ID: "s2", Status: domain.SyncStatusSuccess, StartedAt: "2024-01-02T00:00:00Z"})

	assert.True(t, s.HasSuccessfulSyncHistory())

	s.UpdateSyncState(domain.SyncState{ID: "s1", Status: domain.SyncStatusFailed, StartedAt: "2024-01-01T00:00:00Z", ErrorMessage: "boom"})

	states := s.SyncStates(10)
	require.Len(t, states, 2)
	assert.Equal(t, "s2", states[0].ID, "most recent start first")
	assert.Equal(t, domain.SyncStatusFailed, states[1].Status)

	assert.Len(t, s.SyncStates(1), 1)

	latest, ok := s.LatestSyncState()
	require.True(t, ok)
	assert.Equal(t, "s2", latest.ID)
}

func TestLoadSyncStatesSkipsInvalidRows(t *testing.T) {
	s := New()
	s.LoadSyncStates([][]any{
		{"s1", "FULL", "2024-01-01", "2024-03-01", "SUCCESS", float64(10), float64(2), "", "2024-03-01T00:00:00Z", "2024-03-01T00:05:00Z"},
		{"", "FULL", "2024-01-01", "2024-03-01", "SUCCESS"},
		{"s3", "", "", "", ""},
	})
	assert.Len(t, s.SyncStates(10), 1)
	assert.True(t, s.HasSuccessfulSyncHistory())
}

func TestLatestSyncStateEmptyStartLoses(t *testing.T) {
	s := New()
	s.AddSyncState(domain.SyncState{ID: "s1", Status: domain.SyncStatusSuccess, StartedAt: ""})
	s.AddSyncState(domain.SyncState{ID: "s2", Status: domain.SyncStatusRunning, StartedAt: "2024-01-01T00:00:00Z"})

	latest, ok := s.LatestSyncState()
	require.True(t, ok)
	assert.Equal(t, "s2", latest.ID)
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	assert.Equal(t, []int{1, 2}, paginate(items, 0, 2))
	assert.Equal(t, []int{5}, paginate(items, 2, 2))
	assert.Nil(t, paginate(items, 3, 2))
	assert.Nil(t, paginate(items, 0, 0))
	assert.Nil(t, paginate(items, -1, 2))
}

func TestLessEmptyLast(t *testing.T) {
	assert.True(t, lessEmptyLast("a", "b"))
	assert.True(t, lessEmptyLast("z", ""))
	assert.False(t, lessEmptyLast("", "a"))
	assert.False(t, lessEmptyLast("", ""))
}

func TestCellHelpers(t *testing.T) {
	row := []any{"  x ", float64(3.5), true, nil, "TRUE", "tRuE", float64(7)}
	assert.Equal(t, "x", cellStr(row, 0))
	assert.Equal(t, "3.5", cellStr(row, 1))
	assert.Equal(t, "TRUE", cellStr(row, 2))
	assert.Equal(t, "", cellStr(row, 3))
	assert.Equal(t, "", cellStr(row, 99))
	assert.True(t, cellBool(row, 4))
	assert.True(t, cellBool(row, 5))
	assert.False(t, cellBool(row, 0))
	assert.Equal(t, 7, cellInt(row, 6))
	assert.Equal(t, 3, cellInt(row, 1))
	assert.Equal(t, 0, cellInt(row, 0))
}
