package domain

type OrderStatus = string

const (
	OrderStatusSent   OrderStatus = "SENT"
	OrderStatusFailed OrderStatus = "FAILED"
)

// Order is the header row; one OrderItem row exists per customer in the
// order. Items is hydrated on reads, not stored on the header row.
type Order struct {
	ID          string
	ManagerID   string
	ManagerName string
	Date        string
	Status      OrderStatus
	Notified    bool
	NotifiedAt  string
	ItemCount   int
	CreatedAt   string
	Items       []OrderItem
}

type OrderItem struct {
	ID           string
	OrderID      string
	CustomerName string
	CustomerID   string
	Comment      string
	CreatedAt    string
	Board        string
}
