package domain

// Draft is a named, reusable list of order items owned by one manager.
// The item list is embedded in the sheet row as a JSON cell.
type Draft struct {
	ID        string
	ManagerID string
	Name      string
	Items     []DraftItem
	CreatedAt string
	UpdatedAt string
}

type DraftItem struct {
	CustomerName string `json:"customerName"`
	CustomerID   string `json:"customerId"`
	Comment      string `json:"comment"`
	Board        string `json:"board"`
}
