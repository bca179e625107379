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

type OrderUC struct {
	store    *store.Store
	sheets   Persister
	notifier domain.Notifier
}

func NewOrderUC(st *store.Store, sheets Persister, notifier domain.Notifier) *OrderUC {
	if notifier == nil {
		notifier = domain.NoopNotifier{}
	}
	return &OrderUC{store: st, sheets: sheets, notifier: notifier}
}

// OrderItemInput is one line of a new order as submitted by a manager.
type OrderItemInput struct {
	CustomerName string
	CustomerID   string
	Comment      string
	Board        string
}

// Create stores the order's items first, then pushes it through the
// notifier; the delivery outcome decides the header's status. Frequency
// scores bump for every item with a known customer.
func (u *OrderUC) Create(ctx context.Context, manager domain.User, items []OrderItemInput) (domain.Order, error) {
	if len(items) == 0 {
		return domain.Order{}, fmt.Errorf("%w: order needs at least one item", domain.ErrBadRequest)
	}
	now := time.Now().UTC()
	order := domain.Order{
		ID:          uuid.NewString(),
		ManagerID:   manager.ID,
		ManagerName: manager.DisplayName,
		Date:        now.Format("2006-01-02"),
		ItemCount:   len(items),
		CreatedAt:   now.Format(time.RFC3339Nano),
	}

	for _, in := range items {
		it := domain.OrderItem{
			ID:           uuid.NewString(),
			OrderID:      order.ID,
			CustomerName: sanitize(in.CustomerName),
			CustomerID:   sanitize(in.CustomerID),
			Comment:      sanitize(in.Comment),
			CreatedAt:    order.CreatedAt,
			Board:        sanitize(in.Board),
		}
		if it.CustomerName == "" {
			return domain.Order{}, fmt.Errorf("%w: item customer name required", domain.ErrBadRequest)
		}
		order.Items = append(order.Items, it)
	}

	for _, it := range order.Items {
		u.store.PutOrderItem(it)
		u.sheets.AppendRow(sheets.TabOrderItems, orderItemRow(it))
		if it.CustomerID != "" {
			u.store.IncrementFrequencyScore(it.CustomerID)
		}
	}

	if err := u.notifier.SendOrder(ctx, order); err != nil {
		log.Error().Err(err).Str("orderId", order.ID).Msg("order notification failed")
		order.Status = domain.OrderStatusFailed
	} else {
		order.Status = domain.OrderStatusSent
		order.Notified = true
		order.NotifiedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}

	u.store.PutOrder(order)
	u.sheets.AppendRow(sheets.TabOrders, orderRow(order))
	log.Info().Str("orderId", order.ID).Str("managerId", manager.ID).
		Int("items", order.ItemCount).Str("status", order.Status).Msg("order created")
	return order, nil
}

func (u *OrderUC) Get(id string) (domain.Order, error) {
	o, ok := u.store.Order(id)
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: order %s", domain.ErrNotFound, id)
	}
	o.Items = u.store.OrderItems(o.ID)
	return o, nil
}

func (u *OrderUC) List(date, managerID string, page, size int) []domain.Order {
	orders := u.store.Orders(date, managerID, page, size)
	for i := range orders {
		orders[i].Items = u.store.OrderItems(orders[i].ID)
	}
	return orders
}

// SetItemBoard reassigns an item to a board and rewrites its sheet row.
func (u *OrderUC) SetItemBoard(ctx context.Context, itemID, board string) error {
	it, ok := u.store.OrderItem(itemID)
	if !ok {
		return fmt.Errorf("%w: order item %s", domain.ErrNotFound, itemID)
	}
	it.Board = sanitize(board)
	u.store.UpdateOrderItemBoard(itemID, it.Board)
	ridx := u.sheets.FindRowIndex(ctx, sheets.TabOrderItems, itemID)
	if ridx > 0 {
		u.sheets.UpdateRow(sheets.TabOrderItems, ridx, orderItemRow(it))
	} else {
		log.Warn().Str("itemId", itemID).Msg("order item row not found for board update")
	}
	return nil
}
