package domain

// Customer mirrors one row of the Customers tab. Timestamps travel as the
// string form stored in the sheet cell. Board is only populated on
// board-expanded search results, never in storage.
type Customer struct {
	ID             string
	Name           string
	TIN            string
	FrequencyScore int
	AddedBy        string
	Active         bool
	CreatedAt      string
	UpdatedAt      string
	Board          string
}

// MyCustomer is a (manager, customer) affinity pair with a display-name
// snapshot taken at add time.
type MyCustomer struct {
	ManagerID    string
	CustomerName string
	CustomerID   string
	AddedAt      string
}
