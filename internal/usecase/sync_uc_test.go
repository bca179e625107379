package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenrril/orderdesk/internal/adapters/rsge"
	"github.com/phenrril/orderdesk/internal/adapters/sheets"
	"github.com/phenrril/orderdesk/internal/domain"
	"github.com/phenrril/orderdesk/internal/store"
)

func fastSyncConfig() SyncConfig {
	return SyncConfig{
		FullSyncMonths: 2,
		MaxRetries:     1,
		RetryDelays:    []time.Duration{time.Millisecond},
		SourceUser:     "rsge_sync",
	}
}

func waitForStatus(t *testing.T, st *store.Store, status string) domain.SyncState {
	t.Helper()
	var got domain.SyncState
	require.Eventually(t, func() bool {
		latest, ok := st.LatestSyncState()
		if ok && latest.Status == status {
			got = latest
			return true
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	return got
}

func TestTriggerSyncSingleFlight(t *testing.T) {
	st := store.New()
	release := make(chan struct{})
	src := fakeSource{sale: func(context.Context) ([]rsge.Waybill, error) {
		<-release
		return nil, nil
	}}
	uc := NewSyncUC(context.Background(), st, src, newFakePersister(), fastSyncConfig())

	first, err := uc.TriggerSync("FULL", "")
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusRunning, first.Status)

	_, err = uc.TriggerSync("FULL", "")
	require.ErrorIs(t, err, domain.ErrConflict)

	close(release)
	waitForStatus(t, st, domain.SyncStatusSuccess)

	// The flag is released after the run; a new trigger is accepted.
	require.Eventually(t, func() bool {
		_, err := uc.TriggerSync("DAILY", "")
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSyncAddsOnlyNewCustomers(t *testing.T) {
	st := store.New()
	st.PutCustomer(domain.Customer{ID: "c1", Name: "Known", TIN: "111", Active: true})

	src := fakeSource{sale: func(context.Context) ([]rsge.Waybill, error) {
		return []rsge.Waybill{
			{"ID": "1", "STATUS": "1", "BUYER_TIN": "111", "BUYER_NAME": "Known Again"},
			{"ID": "2", "STATUS": "1", "BUYER_TIN": "222", "BUYER_NAME": "Fresh"},
		}, nil
	}}
	persister := newFakePersister()
	uc := NewSyncUC(context.Background(), st, src, persister, fastSyncConfig())

	_, err := uc.TriggerSync("DAILY", "")
	require.NoError(t, err)
	final := waitForStatus(t, st, domain.SyncStatusSuccess)

	assert.Equal(t, 2, final.CustomersFound)
	assert.Equal(t, 1, final.CustomersAdded)

	fresh, ok := st.CustomerByTIN("222")
	require.True(t, ok)
	assert.Equal(t, "Fresh", fresh.Name)
	assert.Equal(t, "rsge_sync", fresh.AddedBy)
	assert.True(t, fresh.Active)

	assert.Equal(t, 1, persister.appendCount(sheets.TabCustomers))
	assert.Equal(t, 1, persister.appendCount(sheets.TabSyncState))
}

func TestSyncToleratesBuyerFailure(t *testing.T) {
	st := store.New()
	src := fakeSource{
		sale: func(context.Context) ([]rsge.Waybill, error) {
			return []rsge.Waybill{{"ID": "1", "STATUS": "1", "BUYER_TIN": "333", "BUYER_NAME": "Solo"}}, nil
		},
		buyer: func(context.Context) ([]rsge.Waybill, error) {
			return nil, errors.New("buyer side down")
		},
	}
	uc := NewSyncUC(context.Background(), st, src, newFakePersister(), fastSyncConfig())

	_, err := uc.TriggerSync("DAILY", "")
	require.NoError(t, err)
	final := waitForStatus(t, st, domain.SyncStatusSuccess)
	assert.Equal(t, 1, final.CustomersAdded)
}

func TestSyncFailsAfterRetries(t *testing.T) {
	st := store.New()
	calls := 0
	src := fakeSource{sale: func(context.Context) ([]rsge.Waybill, error) {
		calls++
		return nil, fmt.Errorf("fetch failed: %w", errors.New("connection reset"))
	}}
	persister := newFakePersister()
	uc := NewSyncUC(context.Background(), st, src, persister, fastSyncConfig())

	_, err := uc.TriggerSync("FULL", "")
	require.NoError(t, err)
	final := waitForStatus(t, st, domain.SyncStatusFailed)

	assert.Equal(t, 2, calls, "one retry after the first attempt")
	assert.Contains(t, final.ErrorMessage, "fetch failed")
	assert.Contains(t, final.ErrorMessage, "root=connection reset")
	assert.NotEmpty(t, final.CompletedAt)
	assert.Equal(t, 1, persister.appendCount(sheets.TabSyncState), "failed runs persist too")
}

func TestSyncCancelledMarksFailed(t *testing.T) {
	st := store.New()
	ctx, cancel := context.WithCancel(context.Background())
	src := fakeSource{sale: func(context.Context) ([]rsge.Waybill, error) {
		cancel()
		return nil, errors.New("interrupted")
	}}
	uc := NewSyncUC(ctx, st, src, newFakePersister(), fastSyncConfig())

	_, err := uc.TriggerSync("DAILY", "")
	require.NoError(t, err)
	final := waitForStatus(t, st, domain.SyncStatusFailed)
	assert.Equal(t, "sync cancelled", final.ErrorMessage)
}

func TestDateRange(t *testing.T) {
	uc := NewSyncUC(context.Background(), store.New(), fakeSource{}, newFakePersister(), fastSyncConfig())
	today := startOfToday()

	start, end, normType, err := uc.dateRange("full", "")
	require.NoError(t, err)
	assert.Equal(t, domain.SyncTypeFull, normType)
	assert.Equal(t, today.AddDate(0, -2, 0), start)
	assert.Equal(t, today, end)

	start, _, normType, err = uc.dateRange("DAILY", "2024-03-05")
	require.NoError(t, err)
	assert.Equal(t, domain.SyncTypeDaily, normType)
	assert.Equal(t, "2024-03-05", start.Format("2006-01-02"))

	start, _, _, err = uc.dateRange("DAILY", "")
	require.NoError(t, err)
	assert.Equal(t, today.AddDate(0, 0, -1), start)

	_, _, _, err = uc.dateRange("DAILY", "not-a-date")
	require.ErrorIs(t, err, domain.ErrBadRequest)

	start, _, normType, err = uc.dateRange("custom", "")
	require.NoError(t, err)
	assert.Equal(t, "CUSTOM", normType)
	assert.Equal(t, today.AddDate(0, 0, -1), start)
}

func TestDiagnosticError(t *testing.T) {
	root := errors.New("root cause")
	wrapped := fmt.Errorf("layer one: %w", root)

	diag := diagnosticError(wrapped)
	assert.Contains(t, diag, "layer one")
	assert.Contains(t, diag, "root=root cause")

	assert.Equal(t, "flat", diagnosticError(errors.New("flat")))
	assert.Equal(t, "unknown error", diagnosticError(nil))

	long := fmt.Errorf("outer: %w", errors.New(strings.Repeat("x", 2000)))
	capped := diagnosticError(long)
	assert.LessOrEqual(t, len(capped), 903)
	assert.True(t, strings.HasSuffix(capped, "..."))
}

func TestSyncHistoryPassthrough(t *testing.T) {
	st := store.New()
	uc := NewSyncUC(context.Background(), st, fakeSource{}, newFakePersister(), fastSyncConfig())

	assert.False(t, uc.HasSyncHistory())
	st.AddSyncState(domain.SyncState{ID: "s1", Status: domain.SyncStatusSuccess, StartedAt: "2024-01-01T00:00:00Z"})
	assert.True(t, uc.HasSyncHistory())
	assert.True(t, uc.HasSuccessfulSyncHistory())
	assert.Len(t, uc.History(5), 1)
	latest, ok := uc.Latest()
	require.True(t, ok)
	assert.Equal(t, "s1", latest.ID)
}
