package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/phenrril/orderdesk/internal/adapters/rsge"
	"github.com/phenrril/orderdesk/internal/adapters/sheets"
	"github.com/phenrril/orderdesk/internal/domain"
	"github.com/phenrril/orderdesk/internal/store"
)

type SyncConfig struct {
	FullSyncMonths int
	MaxRetries     int
	RetryDelays    []time.Duration
	SourceUser     string
}

// SyncUC coordinates the waybill source, the extractor and the cache into
// a single-flight synchronization run with bounded retry.
type SyncUC struct {
	store  *store.Store
	source rsge.WaybillSource
	sheets Persister
	cfg    SyncConfig

	// runCtx bounds every asynchronous run; cancelling it marks the
	// in-flight attempt FAILED instead of leaving it RUNNING forever.
	runCtx   context.Context
	inFlight atomic.Bool
}

func NewSyncUC(runCtx context.Context, st *store.Store, source rsge.WaybillSource, sheets Persister, cfg SyncConfig) *SyncUC {
	if cfg.FullSyncMonths <= 0 {
		cfg.FullSyncMonths = 2
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if len(cfg.RetryDelays) == 0 {
		cfg.RetryDelays = []time.Duration{2 * time.Second}
	}
	if cfg.SourceUser == "" {
		cfg.SourceUser = "rsge_sync"
	}
	if runCtx == nil {
		runCtx = context.Background()
	}
	return &SyncUC{store: st, source: source, sheets: sheets, cfg: cfg, runCtx: runCtx}
}

// TriggerSync records a RUNNING state synchronously and starts the actual
// run on its own goroutine. A second trigger while one run is in flight
// fails with ErrConflict.
func (u *SyncUC) TriggerSync(syncType, dateStr string) (domain.SyncState, error) {
	startDate, endDate, normType, err := u.dateRange(syncType, dateStr)
	if err != nil {
		return domain.SyncState{}, err
	}
	if !u.inFlight.CompareAndSwap(false, true) {
		return domain.SyncState{}, fmt.Errorf("%w: sync already in progress", domain.ErrConflict)
	}

	state := domain.SyncState{
		ID:        uuid.NewString(),
		Type:      normType,
		StartDate: startDate.Format("2006-01-02"),
		EndDate:   endDate.Format("2006-01-02"),
		Status:    domain.SyncStatusRunning,
		StartedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	u.store.AddSyncState(state)
	log.Info().Str("syncId", state.ID).Str("type", normType).
		Str("startDate", state.StartDate).Str("endDate", state.EndDate).
		Int("maxRetries", u.cfg.MaxRetries).Msg("sync queued")

	go u.runWithRetry(state, startDate, endDate)
	return state, nil
}

func (u *SyncUC) dateRange(syncType, dateStr string) (start, end time.Time, normType string, err error) {
	end = startOfToday()
	switch {
	case equalsFold(syncType, domain.SyncTypeFull):
		normType = domain.SyncTypeFull
		start = end.AddDate(0, -u.cfg.FullSyncMonths, 0)
	case equalsFold(syncType, domain.SyncTypeDaily):
		normType = domain.SyncTypeDaily
		if dateStr != "" {
			start, err = time.Parse("2006-01-02", dateStr)
			if err != nil {
				return start, end, "", fmt.Errorf("%w: invalid date %q", domain.ErrBadRequest, dateStr)
			}
		} else {
			start = end.AddDate(0, 0, -1)
		}
	default:
		normType = toUpper(syncType)
		start = end.AddDate(0, 0, -1)
	}
	return start, end, normType, nil
}

func (u *SyncUC) runWithRetry(state domain.SyncState, startDate, endDate time.Time) {
	defer u.inFlight.Store(false)

	for attempt := 0; attempt <= u.cfg.MaxRetries; attempt++ {
		log.Info().Str("syncId", state.ID).Int("attempt", attempt+1).Msg("sync attempt started")
		err := u.execute(u.runCtx, state, startDate, endDate)
		if err == nil {
			log.Info().Str("syncId", state.ID).Int("attempt", attempt+1).Msg("sync attempt succeeded")
			return
		}
		if u.runCtx.Err() != nil {
			u.markFailed(state, startDate, endDate, "sync cancelled")
			return
		}
		if attempt < u.cfg.MaxRetries {
			delay := u.retryDelay(attempt)
			log.Warn().Err(err).Str("syncId", state.ID).Int("attempt", attempt+1).
				Dur("retryIn", delay).Msg("sync attempt failed")
			select {
			case <-u.runCtx.Done():
				u.markFailed(state, startDate, endDate, "sync cancelled")
				return
			case <-time.After(delay):
			}
			continue
		}
		diag := diagnosticError(err)
		log.Error().Err(err).Str("syncId", state.ID).Int("maxRetries", u.cfg.MaxRetries).
			Msg("sync failed after retries")
		u.markFailed(state, startDate, endDate, diag)
	}
}

// retryDelay returns the attempt's slot from the delay schedule; the last
// value is reused when attempts outnumber the schedule.
func (u *SyncUC) retryDelay(attempt int) time.Duration {
	if attempt >= len(u.cfg.RetryDelays) {
		return u.cfg.RetryDelays[len(u.cfg.RetryDelays)-1]
	}
	return u.cfg.RetryDelays[attempt]
}

func (u *SyncUC) markFailed(state domain.SyncState, startDate, endDate time.Time, msg string) {
	failed := domain.SyncState{
		ID:           state.ID,
		Type:         state.Type,
		StartDate:    startDate.Format("2006-01-02"),
		EndDate:      endDate.Format("2006-01-02"),
		Status:       domain.SyncStatusFailed,
		ErrorMessage: msg,
		StartedAt:    state.StartedAt,
		CompletedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	u.store.UpdateSyncState(failed)
	if u.sheets != nil {
		u.sheets.AppendRow(sheets.TabSyncState, syncStateRow(failed))
	}
}

func (u *SyncUC) execute(ctx context.Context, state domain.SyncState, startDate, endDate time.Time) error {
	fetchEnd := endDate.AddDate(0, 0, 1) // the source takes an exclusive end

	sale, err := u.source.SaleWaybills(ctx, startDate, fetchEnd)
	if err != nil {
		return err
	}
	log.Info().Str("syncId", state.ID).Int("count", len(sale)).Msg("sale waybills fetched")

	// Buyer-side failure is tolerated; the sale side alone still yields
	// counterparties.
	buyer, err := u.source.BuyerWaybills(ctx, startDate, fetchEnd)
	if err != nil {
		log.Warn().Err(err).Str("syncId", state.ID).Msg("buyer waybill fetch failed, continuing with sale only")
		buyer = nil
	} else {
		log.Info().Str("syncId", state.ID).Int("count", len(buyer)).Msg("buyer waybills fetched")
	}

	merged := make([]rsge.Waybill, 0, len(sale)+len(buyer))
	merged = append(merged, sale...)
	merged = append(merged, buyer...)

	extracted := rsge.ExtractCounterparties(merged)
	if len(merged) == 0 {
		log.Error().Str("syncId", state.ID).
			Str("start", startDate.Format("2006-01-02")).Str("end", endDate.Format("2006-01-02")).
			Msg("sync produced 0 merged waybills; check credentials and response statuses")
	}

	added := 0
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, cp := range extracted {
		if _, exists := u.store.CustomerByTIN(cp.TIN); exists {
			continue
		}
		customer := domain.Customer{
			ID:        uuid.NewString(),
			Name:      cp.Name,
			TIN:       cp.TIN,
			AddedBy:   u.cfg.SourceUser,
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		u.store.PutCustomer(customer)
		if u.sheets != nil {
			u.sheets.AppendRow(sheets.TabCustomers, customerRow(customer))
		}
		added++
	}
	log.Info().Str("syncId", state.ID).Int("extracted", len(extracted)).
		Int("added", added).Int("existing", len(extracted)-added).Msg("customer merge summary")
	if len(extracted) == 0 || added == 0 {
		u.logDiagnostics(state.ID, merged, extracted, added)
	}

	completed := domain.SyncState{
		ID:             state.ID,
		Type:           state.Type,
		StartDate:      startDate.Format("2006-01-02"),
		EndDate:        endDate.Format("2006-01-02"),
		Status:         domain.SyncStatusSuccess,
		CustomersFound: len(extracted),
		CustomersAdded: added,
		StartedAt:      state.StartedAt,
		CompletedAt:    time.Now().UTC().Format(time.RFC3339Nano),
	}
	u.store.UpdateSyncState(completed)
	if u.sheets != nil {
		u.sheets.AppendRow(sheets.TabSyncState, syncStateRow(completed))
	}
	log.Info().Str("syncId", state.ID).Int("found", completed.CustomersFound).
		Int("added", completed.CustomersAdded).Msg("sync completed")
	return nil
}

func (u *SyncUC) Latest() (domain.SyncState, bool) { return u.store.LatestSyncState() }

func (u *SyncUC) History(limit int) []domain.SyncState { return u.store.SyncStates(limit) }

func (u *SyncUC) HasSyncHistory() bool { return u.store.HasSyncHistory() }

func (u *SyncUC) HasSuccessfulSyncHistory() bool { return u.store.HasSuccessfulSyncHistory() }

// logDiagnostics emits triage data for runs that yielded nothing: counts
// of cancelled and tin-carrying waybills, a status sample, and the first
// record's field set.
func (u *SyncUC) logDiagnostics(syncID string, waybills []rsge.Waybill, extracted []rsge.Counterparty, added int) {
	cancelled, withBuyerTIN, withSellerTIN, withAnyTIN := 0, 0, 0, 0
	uniqueTINs := map[string]struct{}{}
	var sampleStatuses []string
	for _, wb := range waybills {
		buyer := firstWaybillField(wb, "BUYER_TIN", "BUYER_UN_ID")
		seller := firstWaybillField(wb, "SELLER_TIN", "SELLER_UN_ID")
		status := firstWaybillField(wb, "STATUS")
		if status == "-1" || status == "-2" {
			cancelled++
		}
		if buyer != "" {
			withBuyerTIN++
			uniqueTINs[buyer] = struct{}{}
		}
		if seller != "" {
			withSellerTIN++
			uniqueTINs[seller] = struct{}{}
		}
		if buyer != "" || seller != "" {
			withAnyTIN++
		}
		if status != "" && len(sampleStatuses) < 8 {
			sampleStatuses = append(sampleStatuses, status)
		}
	}
	log.Warn().Str("syncId", syncID).Int("waybillsTotal", len(waybills)).
		Int("cancelled", cancelled).Int("withBuyerTin", withBuyerTIN).
		Int("withSellerTin", withSellerTIN).Int("withAnyTin", withAnyTIN).
		Int("rawUniqueTins", len(uniqueTINs)).Int("extractedUnique", len(extracted)).
		Int("added", added).Strs("sampleStatuses", sampleStatuses).
		Msg("sync diagnostics")
	if len(waybills) > 0 {
		keys := make([]string, 0, len(waybills[0]))
		for k := range waybills[0] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		log.Warn().Str("syncId", syncID).Strs("firstWaybillKeys", keys).Msg("sync diagnostics")
	}
}

func firstWaybillField(wb rsge.Waybill, keys ...string) string {
	for _, k := range keys {
		if v, ok := wb[k].(string); ok && v != "" {
			return v
		}
		if v, ok := wb[k].(float64); ok {
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// diagnosticError formats the top-level and root-cause errors, capped so a
// giant response body cannot blow up the sync-state cell.
func diagnosticError(err error) string {
	if err == nil {
		return "unknown error"
	}
	root := err
	for {
		next := errors.Unwrap(root)
		if next == nil {
			break
		}
		root = next
	}
	diag := err.Error()
	if root != err {
		diag = fmt.Sprintf("%s | root=%s", err.Error(), root.Error())
	}
	if len(diag) > 900 {
		diag = diag[:900] + "..."
	}
	return diag
}

func startOfToday() time.Time {
	y, m, d := time.Now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}
