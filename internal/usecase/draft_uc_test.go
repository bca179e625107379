package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenrril/orderdesk/internal/adapters/sheets"
	"github.com/phenrril/orderdesk/internal/domain"
	"github.com/phenrril/orderdesk/internal/store"
)

func newDraftUC() (*DraftUC, *fakePersister, *store.Store) {
	st := store.New()
	p := newFakePersister()
	return NewDraftUC(st, p, nil), p, st
}

func TestDraftCreate(t *testing.T) {
	uc, p, _ := newDraftUC()

	d, err := uc.Create(context.Background(), "m1", " Monday ", []domain.DraftItem{
		{CustomerName: "Acme", CustomerID: "c1", Comment: "usual"},
		{CustomerName: "   "}, // nameless items are dropped
	})
	require.NoError(t, err)
	assert.Equal(t, "Monday", d.Name)
	require.Len(t, d.Items, 1)
	assert.Equal(t, 1, p.appendCount(sheets.TabDrafts))

	_, err = uc.Create(context.Background(), "m1", "monday", nil)
	assert.ErrorIs(t, err, domain.ErrConflict, "names are unique case-insensitively")

	_, err = uc.Create(context.Background(), "m1", "  ", nil)
	assert.ErrorIs(t, err, domain.ErrBadRequest)

	_, err = uc.Create(context.Background(), "m2", "Monday", nil)
	assert.NoError(t, err, "uniqueness is per manager")
}

func TestDraftAccessIsOwnerScoped(t *testing.T) {
	uc, _, _ := newDraftUC()
	d, err := uc.Create(context.Background(), "m1", "Monday", nil)
	require.NoError(t, err)

	_, err = uc.Get(d.ID, "m2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = uc.Update(context.Background(), d.ID, "m2", "Hijacked", nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, uc.Delete(context.Background(), d.ID, "m2"), domain.ErrNotFound)
}

func TestDraftUpdateAndDelete(t *testing.T) {
	uc, p, st := newDraftUC()
	d, err := uc.Create(context.Background(), "m1", "Monday", nil)
	require.NoError(t, err)
	p.rowIndex[sheets.TabDrafts+"/"+d.ID] = 2

	updated, err := uc.Update(context.Background(), d.ID, "m1", "Tuesday", []domain.DraftItem{{CustomerName: "Beta"}})
	require.NoError(t, err)
	assert.Equal(t, "Tuesday", updated.Name)
	require.Len(t, updated.Items, 1)
	assert.Contains(t, p.updates[sheets.TabDrafts], 2)

	require.NoError(t, uc.Delete(context.Background(), d.ID, "m1"))
	_, ok := st.Draft(d.ID)
	assert.False(t, ok)
}

func TestDraftCopy(t *testing.T) {
	uc, _, _ := newDraftUC()
	d, err := uc.Create(context.Background(), "m1", "Monday", []domain.DraftItem{{CustomerName: "Acme"}})
	require.NoError(t, err)

	copied, err := uc.Copy(context.Background(), d.ID, "m1", "")
	require.NoError(t, err)
	assert.Equal(t, "Monday (copy)", copied.Name)
	assert.NotEqual(t, d.ID, copied.ID)
	require.Len(t, copied.Items, 1)

	_, err = uc.Copy(context.Background(), d.ID, "m2", "Stolen")
	assert.ErrorIs(t, err, domain.ErrNotFound, "only the owner can copy")
}

func TestDraftSuggestUsesTodayName(t *testing.T) {
	uc, _, _ := newDraftUC()
	today := defaultWeekdayNames[int(time.Now().Weekday())]

	_, ok := uc.Suggest("m1")
	assert.False(t, ok)

	_, err := uc.Create(context.Background(), "m1", today, nil)
	require.NoError(t, err)

	d, ok := uc.Suggest("m1")
	require.True(t, ok)
	assert.Equal(t, today, d.Name)
}
