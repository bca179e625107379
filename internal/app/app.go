// Package app wires the cache, persistence, waybill source and usecases
// together and owns the background schedules.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/phenrril/orderdesk/internal/adapters/rsge"
	"github.com/phenrril/orderdesk/internal/adapters/sheets"
	"github.com/phenrril/orderdesk/internal/config"
	"github.com/phenrril/orderdesk/internal/domain"
	"github.com/phenrril/orderdesk/internal/store"
	"github.com/phenrril/orderdesk/internal/usecase"
)

type App struct {
	cfg    config.Config
	Store  *store.Store
	Sheets *sheets.Client

	Customers *usecase.CustomerUC
	Orders    *usecase.OrderUC
	Drafts    *usecase.DraftUC
	Users     *usecase.UserUC
	Sync      *usecase.SyncUC

	workbook *sheets.Workbook
}

// New builds the full dependency graph and performs the initial cache
// load. The context bounds every background goroutine the app starts.
func New(ctx context.Context, cfg config.Config, notifier domain.Notifier) (*App, error) {
	a := &App{cfg: cfg, Store: store.New()}

	api, err := a.buildAPI(ctx)
	if err != nil {
		return nil, err
	}
	a.Sheets = sheets.NewClient(api, a.Store, cfg.Sheets.FlushInterval, cfg.Sheets.RefreshInterval)

	if err := a.Sheets.LoadAll(ctx); err != nil {
		return nil, fmt.Errorf("initial cache load: %w", err)
	}
	a.Store.SetReady(true)

	source := a.buildSource()

	a.Customers = usecase.NewCustomerUC(a.Store, a.Sheets)
	a.Orders = usecase.NewOrderUC(a.Store, a.Sheets, notifier)
	a.Drafts = usecase.NewDraftUC(a.Store, a.Sheets, cfg.WeekdayNames)
	a.Users = usecase.NewUserUC(a.Store, a.Sheets)
	a.Sync = usecase.NewSyncUC(ctx, a.Store, source, a.Sheets, usecase.SyncConfig{
		FullSyncMonths: cfg.Sync.FullSyncMonths,
		MaxRetries:     cfg.Sync.MaxRetries,
		RetryDelays:    cfg.Sync.RetryDelays,
		SourceUser:     cfg.Sync.SourceUser,
	})
	return a, nil
}

func (a *App) buildAPI(ctx context.Context) (sheets.API, error) {
	if a.cfg.Sheets.Enabled {
		api, err := sheets.NewRESTAPI(ctx, a.cfg.Sheets.CredentialsPath, a.cfg.Sheets.SpreadsheetID)
		if err != nil {
			return nil, fmt.Errorf("sheets api: %w", err)
		}
		log.Info().Str("spreadsheetId", a.cfg.Sheets.SpreadsheetID).Msg("using google sheets persistence")
		return api, nil
	}
	wb, err := sheets.OpenWorkbook(a.cfg.Sheets.WorkbookPath, sheets.TabNames)
	if err != nil {
		return nil, fmt.Errorf("workbook: %w", err)
	}
	a.workbook = wb
	log.Info().Str("path", a.cfg.Sheets.WorkbookPath).Msg("using local workbook persistence")
	return wb, nil
}

func (a *App) buildSource() rsge.WaybillSource {
	if !a.cfg.RSGE.Enabled {
		log.Warn().Msg("rsge disabled, using fixture waybill source")
		return rsge.FixtureSource{}
	}
	return rsge.NewClient(rsge.Config{
		Endpoint:         a.cfg.RSGE.Endpoint,
		Username:         a.cfg.RSGE.Username,
		Password:         a.cfg.RSGE.Password,
		Timeout:          a.cfg.RSGE.Timeout,
		ChunkDays:        a.cfg.RSGE.ChunkDays,
		ChunkParallelism: a.cfg.RSGE.ChunkParallelism,
		Namespace:        a.cfg.RSGE.Namespace,
		DateLayout:       a.cfg.RSGE.DateLayout,
	})
}

// Start launches the flush/refresh loops and the sync schedules.
func (a *App) Start(ctx context.Context) {
	a.Sheets.Start(ctx)
	go a.startupSync(ctx)
	go a.dailySyncLoop(ctx)
}

// startupSync runs once after boot: a FULL sync when the sheet has no
// successful history yet, otherwise a catch-up DAILY sync.
func (a *App) startupSync(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(a.cfg.Sync.StartupDelay):
	}
	syncType := domain.SyncTypeDaily
	if !a.Sync.HasSuccessfulSyncHistory() {
		syncType = domain.SyncTypeFull
	}
	if _, err := a.Sync.TriggerSync(syncType, ""); err != nil {
		log.Warn().Err(err).Str("type", syncType).Msg("startup sync not started")
	}
}

func (a *App) dailySyncLoop(ctx context.Context) {
	loc, err := time.LoadLocation(a.cfg.Sync.Timezone)
	if err != nil {
		log.Warn().Err(err).Str("timezone", a.cfg.Sync.Timezone).Msg("falling back to local timezone")
		loc = time.Local
	}
	for {
		now := time.Now().In(loc)
		next := time.Date(now.Year(), now.Month(), now.Day(), a.cfg.Sync.DailyHour, 0, 0, 0, loc)
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(next.Sub(now)):
		}
		if _, err := a.Sync.TriggerSync(domain.SyncTypeDaily, ""); err != nil {
			log.Warn().Err(err).Msg("scheduled daily sync not started")
		}
	}
}

// Healthy reports whether the cache is loaded and persistence reachable.
func (a *App) Healthy(ctx context.Context) bool {
	return a.Store.Ready() && a.Sheets.Healthy(ctx)
}

// Shutdown flushes pending writes and closes the local workbook if one is
// in use.
func (a *App) Shutdown(ctx context.Context) {
	a.Sheets.Flush(ctx)
	if a.workbook != nil {
		if err := a.workbook.Close(); err != nil {
			log.Error().Err(err).Msg("workbook close failed")
		}
	}
}
