package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/phenrril/orderdesk/internal/adapters/sheets"
	"github.com/phenrril/orderdesk/internal/domain"
	"github.com/phenrril/orderdesk/internal/store"
)

type CustomerUC struct {
	store  *store.Store
	sheets Persister
}

func NewCustomerUC(st *store.Store, sheets Persister) *CustomerUC {
	return &CustomerUC{store: st, sheets: sheets}
}

func (u *CustomerUC) Search(query, managerID, tab string, page, size int) []domain.Customer {
	return u.store.SearchCustomers(sanitize(query), managerID, tab, page, size)
}

func (u *CustomerUC) Frequent(limit int) []domain.Customer {
	return u.store.FrequentCustomers(limit)
}

func (u *CustomerUC) Get(id string) (domain.Customer, error) {
	c, ok := u.store.Customer(id)
	if !ok {
		return domain.Customer{}, fmt.Errorf("%w: customer %s", domain.ErrNotFound, id)
	}
	return c, nil
}

func (u *CustomerUC) Create(ctx context.Context, name, tin, addedBy string) (domain.Customer, error) {
	name = sanitize(name)
	tin = sanitize(tin)
	if name == "" {
		return domain.Customer{}, fmt.Errorf("%w: customer name required", domain.ErrBadRequest)
	}
	if tin != "" {
		if existing, ok := u.store.CustomerByTIN(tin); ok {
			return domain.Customer{}, fmt.Errorf("%w: customer with tin %s already exists (%s)", domain.ErrConflict, tin, existing.Name)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	c := domain.Customer{
		ID:        uuid.NewString(),
		Name:      name,
		TIN:       tin,
		AddedBy:   addedBy,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	u.store.PutCustomer(c)
	u.sheets.AppendRow(sheets.TabCustomers, customerRow(c))
	log.Info().Str("customerId", c.ID).Str("addedBy", addedBy).Msg("customer created")
	return c, nil
}

// CustomerUpdate carries optional field changes; nil means keep.
type CustomerUpdate struct {
	Name   *string
	Active *bool
}

func (u *CustomerUC) Update(ctx context.Context, id string, upd CustomerUpdate) (domain.Customer, error) {
	c, ok := u.store.Customer(id)
	if !ok {
		return domain.Customer{}, fmt.Errorf("%w: customer %s", domain.ErrNotFound, id)
	}
	if upd.Name != nil {
		name := sanitize(*upd.Name)
		if name == "" {
			return domain.Customer{}, fmt.Errorf("%w: customer name required", domain.ErrBadRequest)
		}
		c.Name = name
	}
	if upd.Active != nil {
		c.Active = *upd.Active
	}
	c.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	u.store.PutCustomer(c)
	u.persistCustomer(ctx, c)
	return c, nil
}

// Delete deactivates; rows are never physically removed from the sheet.
func (u *CustomerUC) Delete(ctx context.Context, id string) error {
	inactive := false
	_, err := u.Update(ctx, id, CustomerUpdate{Active: &inactive})
	return err
}

// persistCustomer rewrites the customer's sheet row in place, falling back
// to append when the row is not found (it may still sit in the queue).
func (u *CustomerUC) persistCustomer(ctx context.Context, c domain.Customer) {
	ridx := u.sheets.FindRowIndex(ctx, sheets.TabCustomers, c.ID)
	if ridx > 0 {
		u.sheets.UpdateRow(sheets.TabCustomers, ridx, customerRow(c))
		return
	}
	log.Warn().Str("customerId", c.ID).Msg("customer row not found for update, appending")
	u.sheets.AppendRow(sheets.TabCustomers, customerRow(c))
}

// --- Boards ---

func (u *CustomerUC) Boards(id string) ([]string, error) {
	if c, ok := u.store.Customer(id); !ok || !c.Active {
		return nil, fmt.Errorf("%w: customer %s", domain.ErrNotFound, id)
	}
	return u.store.Boards(id), nil
}

// AddBoard registers a board for an active customer. Adding a board that
// is already present is a no-op.
func (u *CustomerUC) AddBoard(ctx context.Context, id, board, addedBy string) error {
	board = sanitize(board)
	if board == "" {
		return fmt.Errorf("%w: board required", domain.ErrBadRequest)
	}
	if c, ok := u.store.Customer(id); !ok || !c.Active {
		return fmt.Errorf("%w: customer %s", domain.ErrNotFound, id)
	}
	for _, b := range u.store.Boards(id) {
		if b == board {
			return nil
		}
	}
	u.store.AddBoard(id, board)
	u.sheets.AppendRow(sheets.TabCustomerBoards, []any{id, board, addedBy, time.Now().UTC().Format(time.RFC3339Nano)})
	return nil
}

func (u *CustomerUC) RemoveBoard(ctx context.Context, id, board string) error {
	if !u.store.RemoveBoard(id, board) {
		return fmt.Errorf("%w: board %s", domain.ErrNotFound, board)
	}
	ridx := u.sheets.FindRowWhere(ctx, sheets.TabCustomerBoards, func(row []any) bool {
		return len(row) >= 2 && fmt.Sprint(row[0]) == id && fmt.Sprint(row[1]) == board
	})
	if ridx > 0 {
		u.sheets.UpdateRow(sheets.TabCustomerBoards, ridx, []any{"", "", "", ""})
	} else {
		log.Warn().Str("customerId", id).Str("board", board).Msg("board row not found for removal")
	}
	return nil
}

// --- My customers ---

func (u *CustomerUC) MyCustomers(managerID string) []domain.MyCustomer {
	return u.store.MyCustomers(managerID)
}

// AddMyCustomer pins a customer to a manager's list with a name snapshot.
// Pinning an already pinned customer is a no-op.
func (u *CustomerUC) AddMyCustomer(ctx context.Context, managerID, customerID string) error {
	c, ok := u.store.Customer(customerID)
	if !ok {
		return fmt.Errorf("%w: customer %s", domain.ErrNotFound, customerID)
	}
	if _, mine := u.store.MyCustomerIDs(managerID)[customerID]; mine {
		return nil
	}
	mc := domain.MyCustomer{
		ManagerID:    managerID,
		CustomerName: c.Name,
		CustomerID:   c.ID,
		AddedAt:      time.Now().UTC().Format(time.RFC3339Nano),
	}
	u.store.AddMyCustomer(mc)
	u.sheets.AppendRow(sheets.TabMyCustomers, []any{mc.ManagerID, mc.CustomerName, mc.CustomerID, mc.AddedAt})
	return nil
}

func (u *CustomerUC) RemoveMyCustomer(ctx context.Context, managerID, customerID string) error {
	if _, mine := u.store.MyCustomerIDs(managerID)[customerID]; !mine {
		return fmt.Errorf("%w: customer not pinned", domain.ErrNotFound)
	}
	u.store.RemoveMyCustomer(managerID, customerID)
	ridx := u.sheets.FindRowWhere(ctx, sheets.TabMyCustomers, func(row []any) bool {
		return len(row) >= 3 && fmt.Sprint(row[0]) == managerID && fmt.Sprint(row[2]) == customerID
	})
	if ridx > 0 {
		u.sheets.UpdateRow(sheets.TabMyCustomers, ridx, []any{"", "", "", ""})
	} else {
		log.Warn().Str("managerId", managerID).Str("customerId", customerID).Msg("my-customer row not found for removal")
	}
	return nil
}
