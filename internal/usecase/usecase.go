// Package usecase holds the application services: thin orchestration over
// the in-memory store, the persistence queue and the waybill source.
package usecase

import (
	"context"
	"strings"

	"github.com/phenrril/orderdesk/internal/domain"
)

// Persister is the slice of the persistence adapter the usecases need.
// Writes are fire-and-forget; the adapter flushes them behind the scenes.
type Persister interface {
	AppendRow(tab string, row []any)
	UpdateRow(tab string, rowIndex int, row []any)
	FindRowIndex(ctx context.Context, tab, id string) int
	FindRowWhere(ctx context.Context, tab string, match func(row []any) bool) int
}

// sanitize strips control characters and trims surrounding whitespace so a
// pasted value cannot corrupt a spreadsheet row.
func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

func equalsFold(a, b string) bool { return strings.EqualFold(a, b) }

func toUpper(s string) string { return strings.ToUpper(s) }

func boolCell(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func customerRow(c domain.Customer) []any {
	return []any{c.ID, c.Name, c.TIN, c.FrequencyScore, c.AddedBy, boolCell(c.Active), c.CreatedAt, c.UpdatedAt}
}

func syncStateRow(s domain.SyncState) []any {
	return []any{s.ID, s.Type, s.StartDate, s.EndDate, s.Status, s.CustomersFound, s.CustomersAdded, s.ErrorMessage, s.StartedAt, s.CompletedAt}
}

func userRow(u domain.User, passwordHash string) []any {
	return []any{u.ID, u.Username, passwordHash, u.DisplayName, u.Role, boolCell(u.Active), u.CreatedAt}
}

func orderRow(o domain.Order) []any {
	return []any{o.ID, o.ManagerID, o.ManagerName, o.Date, o.Status, boolCell(o.Notified), o.NotifiedAt, o.ItemCount, o.CreatedAt}
}

func orderItemRow(it domain.OrderItem) []any {
	return []any{it.ID, it.OrderID, it.CustomerName, it.CustomerID, it.Comment, it.CreatedAt, it.Board}
}
