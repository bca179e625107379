package sheets

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/phenrril/orderdesk/internal/domain"
	"github.com/phenrril/orderdesk/internal/store"
)

// Tab names in declaration order. Load dispatch and batch reads follow
// this order; row column layout per tab is fixed and must match on both
// load and write.
var TabNames = []string{
	TabCustomers, TabUsers, TabOrders, TabOrderItems,
	TabDrafts, TabMyCustomers, TabSyncState, TabCustomerBoards,
}

const (
	TabCustomers      = "Customers"
	TabUsers          = "Users"
	TabOrders         = "Orders"
	TabOrderItems     = "Order_Items"
	TabDrafts         = "Drafts"
	TabMyCustomers    = "My_Customers"
	TabSyncState      = "Sync_State"
	TabCustomerBoards = "Customer_Boards"
)

type opKind int

const (
	opAppend opKind = iota
	opUpdate
)

type writeOp struct {
	kind     opKind
	tab      string
	row      []any
	rowIndex int
}

// Client is the persistence adapter: bulk loads every tab into the cache,
// queues row writes for asynchronous flushing, and periodically reloads
// the whole cache from the store of record.
type Client struct {
	api   API
	store *store.Store

	flushInterval   time.Duration
	refreshInterval time.Duration

	mu      sync.Mutex
	pending []writeOp

	flushing atomic.Bool
}

func NewClient(api API, st *store.Store, flushInterval, refreshInterval time.Duration) *Client {
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	if refreshInterval <= 0 {
		refreshInterval = 5 * time.Minute
	}
	return &Client{
		api:             api,
		store:           st,
		flushInterval:   flushInterval,
		refreshInterval: refreshInterval,
	}
}

// LoadAll reads every tab in one batch and replaces the cache tables in
// declaration order. Any fetch failure fails the whole load; the caller
// decides whether that is fatal.
func (c *Client) LoadAll(ctx context.Context) error {
	started := time.Now()
	grids, err := c.api.BatchGet(ctx, TabNames)
	if err != nil {
		return domain.NewExternal("sheets", "loading all tabs", err)
	}
	if len(grids) < len(TabNames) {
		log.Warn().Int("got", len(grids)).Int("want", len(TabNames)).Msg("not all tabs returned")
	}
	for i, tab := range TabNames {
		if i >= len(grids) {
			break
		}
		rows := grids[i]
		switch tab {
		case TabCustomers:
			c.store.LoadCustomers(rows)
		case TabUsers:
			c.store.LoadUsers(rows)
		case TabOrders:
			c.store.LoadOrders(rows)
		case TabOrderItems:
			c.store.LoadOrderItems(rows)
		case TabDrafts:
			c.store.LoadDrafts(rows)
		case TabMyCustomers:
			c.store.LoadMyCustomers(rows)
		case TabSyncState:
			c.store.LoadSyncStates(rows)
		case TabCustomerBoards:
			c.store.LoadCustomerBoards(rows)
		}
	}
	log.Info().Dur("elapsed", time.Since(started)).Msg("all tabs loaded")
	return nil
}

// AppendRow queues a row append; the caller is never blocked on I/O.
func (c *Client) AppendRow(tab string, row []any) {
	c.enqueue(writeOp{kind: opAppend, tab: tab, row: row})
}

// UpdateRow queues an update of the 1-based external row index.
func (c *Client) UpdateRow(tab string, rowIndex int, row []any) {
	c.enqueue(writeOp{kind: opUpdate, tab: tab, row: row, rowIndex: rowIndex})
}

func (c *Client) enqueue(op writeOp) {
	c.mu.Lock()
	c.pending = append(c.pending, op)
	c.mu.Unlock()
}

// PendingWrites reports the queue length.
func (c *Client) PendingWrites() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Flush drains the queue, groups operations by tab in enqueue order, and
// executes them. Operations that fail are re-enqueued at the tail for the
// next pass (at-least-once). The flush lock is advisory and non-blocking:
// if a flush is already running this call is a no-op.
func (c *Client) Flush(ctx context.Context) {
	if c.PendingWrites() == 0 {
		return
	}
	if !c.flushing.CompareAndSwap(false, true) {
		return
	}
	defer c.flushing.Store(false)

	c.mu.Lock()
	drained := c.pending
	c.pending = nil
	c.mu.Unlock()

	byTab := map[string][]writeOp{}
	var tabOrder []string
	for _, op := range drained {
		if _, ok := byTab[op.tab]; !ok {
			tabOrder = append(tabOrder, op.tab)
		}
		byTab[op.tab] = append(byTab[op.tab], op)
	}

	for _, tab := range tabOrder {
		for _, op := range byTab[tab] {
			var err error
			switch op.kind {
			case opAppend:
				err = c.api.Append(ctx, tab, [][]any{sanitizeRow(op.row)})
			case opUpdate:
				err = c.api.Update(ctx, tab, op.rowIndex, [][]any{sanitizeRow(op.row)})
			}
			if err != nil {
				log.Error().Err(err).Str("tab", tab).Msg("write flush failed, re-queueing")
				c.enqueue(op)
				continue
			}
			log.Debug().Str("tab", tab).Int("cells", len(op.row)).Msg("row flushed")
		}
	}
}

// FindRowIndex scans the tab's id column and returns the 1-based external
// row position for the id, or -1. Linear in table size.
func (c *Client) FindRowIndex(ctx context.Context, tab, id string) int {
	col, err := c.api.Column(ctx, tab)
	if err != nil {
		log.Error().Err(err).Str("tab", tab).Msg("row index lookup failed")
		return -1
	}
	for i, v := range col {
		if v == id {
			return i + 1
		}
	}
	return -1
}

// FindRowWhere fetches the tab and returns the 1-based position of the
// first row the predicate accepts, or -1. Used for tabs whose key spans
// more than one column.
func (c *Client) FindRowWhere(ctx context.Context, tab string, match func(row []any) bool) int {
	data, err := c.api.BatchGet(ctx, []string{tab})
	if err != nil || len(data) == 0 {
		log.Error().Err(err).Str("tab", tab).Msg("row scan failed")
		return -1
	}
	for i, row := range data[0] {
		if match(row) {
			return i + 1
		}
	}
	return -1
}

// Healthy probes the external store, independent of load and flush.
func (c *Client) Healthy(ctx context.Context) bool {
	if err := c.api.Probe(ctx); err != nil {
		log.Error().Err(err).Msg("sheets health check failed")
		return false
	}
	return true
}

// Start runs the periodic flush and the periodic full reload until ctx is
// cancelled. The reload unconditionally replaces the cache; the store of
// record wins over any cache drift, at the cost of transient staleness of
// local writes that have not round-tripped yet.
func (c *Client) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Flush(ctx)
			}
		}
	}()
	go func() {
		ticker := time.NewTicker(c.refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.Info().Msg("periodic refresh from tabular store")
				if err := c.LoadAll(ctx); err != nil {
					log.Error().Err(err).Msg("periodic refresh failed")
				}
			}
		}
	}()
}

// sanitizeRow strips control characters that can break row parsing and
// replaces nil cells with empty strings. Tabs and newlines survive.
func sanitizeRow(row []any) []any {
	out := make([]any, len(row))
	for i, cell := range row {
		switch v := cell.(type) {
		case nil:
			out[i] = ""
		case string:
			out[i] = stripControl(v)
		default:
			out[i] = v
		}
	}
	return out
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		if r < 0x20 || r == 0x7F {
			return -1
		}
		return r
	}, s)
}
