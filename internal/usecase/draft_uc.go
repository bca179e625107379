package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/phenrril/orderdesk/internal/adapters/sheets"
	"github.com/phenrril/orderdesk/internal/domain"
	"github.com/phenrril/orderdesk/internal/store"
)

// defaultWeekdayNames maps time.Weekday (Sunday==0) to the draft names
// used for suggestion; overridable from config for localized sheets.
var defaultWeekdayNames = []string{
	"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday",
}

type DraftUC struct {
	store        *store.Store
	sheets       Persister
	weekdayNames []string
}

func NewDraftUC(st *store.Store, sheets Persister, weekdayNames []string) *DraftUC {
	if len(weekdayNames) != 7 {
		weekdayNames = defaultWeekdayNames
	}
	return &DraftUC{store: st, sheets: sheets, weekdayNames: weekdayNames}
}

func (u *DraftUC) List(managerID string) []domain.Draft {
	return u.store.Drafts(managerID)
}

func (u *DraftUC) Get(id, managerID string) (domain.Draft, error) {
	d, ok := u.store.Draft(id)
	if !ok || d.ManagerID != managerID {
		return domain.Draft{}, fmt.Errorf("%w: draft %s", domain.ErrNotFound, id)
	}
	return d, nil
}

// Suggest returns the manager's draft named after today's weekday, if any.
func (u *DraftUC) Suggest(managerID string) (domain.Draft, bool) {
	name := u.weekdayNames[int(time.Now().Weekday())]
	return u.store.DraftByName(managerID, name)
}

func (u *DraftUC) Create(ctx context.Context, managerID, name string, items []domain.DraftItem) (domain.Draft, error) {
	name = sanitize(name)
	if name == "" {
		return domain.Draft{}, fmt.Errorf("%w: draft name required", domain.ErrBadRequest)
	}
	if _, exists := u.store.DraftByName(managerID, name); exists {
		return domain.Draft{}, fmt.Errorf("%w: draft %q already exists", domain.ErrConflict, name)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	d := domain.Draft{
		ID:        uuid.NewString(),
		ManagerID: managerID,
		Name:      name,
		Items:     sanitizeDraftItems(items),
		CreatedAt: now,
		UpdatedAt: now,
	}
	u.store.PutDraft(d)
	u.sheets.AppendRow(sheets.TabDrafts, draftRow(d))
	log.Info().Str("draftId", d.ID).Str("managerId", managerID).Msg("draft created")
	return d, nil
}

func (u *DraftUC) Update(ctx context.Context, id, managerID, name string, items []domain.DraftItem) (domain.Draft, error) {
	d, err := u.Get(id, managerID)
	if err != nil {
		return domain.Draft{}, err
	}
	if name = sanitize(name); name != "" {
		d.Name = name
	}
	if items != nil {
		d.Items = sanitizeDraftItems(items)
	}
	d.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	u.store.PutDraft(d)
	ridx := u.sheets.FindRowIndex(ctx, sheets.TabDrafts, d.ID)
	if ridx > 0 {
		u.sheets.UpdateRow(sheets.TabDrafts, ridx, draftRow(d))
	} else {
		log.Warn().Str("draftId", d.ID).Msg("draft row not found for update, appending")
		u.sheets.AppendRow(sheets.TabDrafts, draftRow(d))
	}
	return d, nil
}

func (u *DraftUC) Delete(ctx context.Context, id, managerID string) error {
	d, err := u.Get(id, managerID)
	if err != nil {
		return err
	}
	u.store.RemoveDraft(d.ID)
	ridx := u.sheets.FindRowIndex(ctx, sheets.TabDrafts, d.ID)
	if ridx > 0 {
		u.sheets.UpdateRow(sheets.TabDrafts, ridx, []any{"", "", "", "", "", ""})
	} else {
		log.Warn().Str("draftId", d.ID).Msg("draft row not found for delete")
	}
	return nil
}

// Copy clones one of the manager's own drafts under a new name.
func (u *DraftUC) Copy(ctx context.Context, id, managerID, newName string) (domain.Draft, error) {
	d, err := u.Get(id, managerID)
	if err != nil {
		return domain.Draft{}, err
	}
	if newName = sanitize(newName); newName == "" {
		newName = d.Name + " (copy)"
	}
	return u.Create(ctx, managerID, newName, d.Items)
}

func sanitizeDraftItems(items []domain.DraftItem) []domain.DraftItem {
	out := make([]domain.DraftItem, 0, len(items))
	for _, it := range items {
		it.CustomerName = sanitize(it.CustomerName)
		it.CustomerID = sanitize(it.CustomerID)
		it.Comment = sanitize(it.Comment)
		it.Board = sanitize(it.Board)
		if it.CustomerName == "" {
			continue
		}
		out = append(out, it)
	}
	return out
}

func draftRow(d domain.Draft) []any {
	itemsJSON, err := json.Marshal(d.Items)
	if err != nil {
		itemsJSON = []byte("[]")
	}
	return []any{d.ID, d.ManagerID, d.Name, string(itemsJSON), d.CreatedAt, d.UpdatedAt}
}
