package domain

const (
	SyncStatusRunning = "RUNNING"
	SyncStatusSuccess = "SUCCESS"
	SyncStatusFailed  = "FAILED"
)

const (
	SyncTypeFull  = "FULL"
	SyncTypeDaily = "DAILY"
)

// SyncState records one synchronization attempt.
type SyncState struct {
	ID             string
	Type           string
	StartDate      string
	EndDate        string
	Status         string
	CustomersFound int
	CustomersAdded int
	ErrorMessage   string
	StartedAt      string
	CompletedAt    string
}

// Valid reports whether the record carries the minimum identifying fields.
// Rows from the external store can be malformed; invalid records are
// excluded from all reads.
func (s SyncState) Valid() bool {
	return s.ID != "" && s.Status != ""
}
