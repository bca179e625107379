// Package rsge talks to the RS.GE tax-waybill SOAP service and turns its
// loosely shaped responses into counterparty records.
package rsge

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/phenrril/orderdesk/internal/domain"
)

// WaybillSource retrieves counterparty waybill records for a date range.
// Both bounds are dates; end is exclusive. Cancelled waybills are included;
// filtering them is the extractor's job.
type WaybillSource interface {
	SaleWaybills(ctx context.Context, start, end time.Time) ([]Waybill, error)
	BuyerWaybills(ctx context.Context, start, end time.Time) ([]Waybill, error)
}

type Config struct {
	Endpoint         string
	Username         string
	Password         string
	Timeout          time.Duration
	ChunkDays        int
	ChunkParallelism int
	Namespace        string
	DateLayout       string
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.ChunkDays < 1 {
		cfg.ChunkDays = 1
	}
	if cfg.ChunkParallelism < 1 {
		cfg.ChunkParallelism = 1
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "http://tempuri.org/"
	}
	if cfg.DateLayout == "" {
		cfg.DateLayout = "2006-01-02T15:04:05"
	}
	return &Client{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
}

func (c *Client) SaleWaybills(ctx context.Context, start, end time.Time) ([]Waybill, error) {
	return c.fetch(ctx, "get_waybills", start, end)
}

func (c *Client) BuyerWaybills(ctx context.Context, start, end time.Time) ([]Waybill, error) {
	return c.fetch(ctx, "get_buyer_waybills", start, end)
}

type param struct {
	Key, Value string
}

func (c *Client) fetch(ctx context.Context, operation string, start, end time.Time) ([]Waybill, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	start, end = startOfDay(start), startOfDay(end)
	log.Info().Str("operation", operation).
		Str("start", start.Format("2006-01-02")).
		Str("end", end.Format("2006-01-02")).
		Msg("fetching waybills")

	params := c.baseParams()
	params = append(params,
		param{"create_date_s", start.Format(c.cfg.DateLayout)},
		param{"create_date_e", end.Format(c.cfg.DateLayout)},
	)
	return c.callWithRetry(ctx, operation, params, start, end)
}

// baseParams holds credentials plus the seller identity when the username
// embeds one (format username:seller_id).
func (c *Client) baseParams() []param {
	params := []param{{"su", c.cfg.Username}, {"sp", c.cfg.Password}}
	if idx := strings.IndexByte(c.cfg.Username, ':'); idx >= 0 {
		if sellerID := c.cfg.Username[idx+1:]; sellerID != "" {
			params = append(params, param{"seller_un_id", sellerID})
		}
	}
	return params
}

func (c *Client) callWithRetry(ctx context.Context, operation string, params []param, start, end time.Time) ([]Waybill, error) {
	result, err := c.call(ctx, operation, params)
	if err != nil {
		return nil, err
	}
	status := statusCode(result)
	log.Info().Str("operation", operation).Int("status", status).Msg("waybill call done")

	// -101 means the service wants an explicit seller identity. Retry once
	// with the full credential string before giving up.
	if status == -101 {
		if hasParam(params, "seller_un_id") {
			return nil, domain.NewExternal("rs.ge", "missing seller credentials", nil)
		}
		log.Warn().Str("operation", operation).Msg("status -101, retrying with full username as seller id")
		retried := withParam(params, "seller_un_id", c.cfg.Username)
		result, err = c.call(ctx, operation, retried)
		if err != nil {
			return nil, err
		}
		status = statusCode(result)
		if status == -101 {
			return nil, domain.NewExternal("rs.ge", "missing seller credentials (after retry)", nil)
		}
	}

	// -1064 means the range is too large for one call.
	if status == -1064 {
		log.Info().Str("operation", operation).Msg("date range too large, fetching in chunks")
		return c.fetchInChunks(ctx, operation, params, start, end)
	}

	if status != 0 && status != 1 {
		log.Warn().Str("operation", operation).Int("status", status).
			Msg("non-success status, proceeding with returned data")
	}
	waybills := collectWaybills(result)
	log.Info().Str("operation", operation).Int("waybills", len(waybills)).Msg("waybills extracted")
	return waybills, nil
}

type dateRange struct {
	start, end time.Time // end exclusive
}

// chunkRange splits [start, end) into fixed-size day chunks covering the
// range exactly with no gaps and no overlaps.
func chunkRange(start, end time.Time, chunkDays int) []dateRange {
	if chunkDays < 1 {
		chunkDays = 1
	}
	var chunks []dateRange
	for s := start; s.Before(end); {
		e := s.AddDate(0, 0, chunkDays)
		if e.After(end) {
			e = end
		}
		chunks = append(chunks, dateRange{s, e})
		s = e
	}
	return chunks
}

func (c *Client) fetchInChunks(ctx context.Context, operation string, params []param, start, end time.Time) ([]Waybill, error) {
	chunks := chunkRange(start, end, c.cfg.ChunkDays)
	log.Info().Str("operation", operation).Int("chunks", len(chunks)).
		Int("chunkDays", c.cfg.ChunkDays).Int("parallelism", c.cfg.ChunkParallelism).
		Msg("chunked fetch prepared")

	results := make([][]Waybill, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.ChunkParallelism)
	for i, ch := range chunks {
		i, ch := i, ch
		g.Go(func() error {
			got, err := c.fetchChunk(gctx, operation, params, ch)
			if err != nil {
				return err
			}
			results[i] = got
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// The endpoint caps concurrent HTTP/2 streams; degrade to one
		// chunk at a time instead of failing the whole batch.
		if isTooManyStreams(err) {
			log.Warn().Str("operation", operation).Int("chunks", len(chunks)).
				Msg("stream limit hit, retrying chunks sequentially")
			return c.fetchSequential(ctx, operation, params, chunks)
		}
		return nil, domain.NewExternal("rs.ge", "chunk fetch failed", err)
	}

	var merged []Waybill
	for _, r := range results {
		merged = append(merged, r...)
	}
	return merged, nil
}

func (c *Client) fetchSequential(ctx context.Context, operation string, params []param, chunks []dateRange) ([]Waybill, error) {
	var merged []Waybill
	for _, ch := range chunks {
		got, err := c.fetchChunk(ctx, operation, params, ch)
		if err != nil {
			return nil, domain.NewExternal("rs.ge",
				fmt.Sprintf("sequential chunk fetch failed for %s..%s",
					ch.start.Format("2006-01-02"), ch.end.Format("2006-01-02")), err)
		}
		merged = append(merged, got...)
	}
	return merged, nil
}

func (c *Client) fetchChunk(ctx context.Context, operation string, params []param, ch dateRange) ([]Waybill, error) {
	chunkParams := withParam(withParam(params,
		"create_date_s", ch.start.Format(c.cfg.DateLayout)),
		"create_date_e", ch.end.Format(c.cfg.DateLayout))
	result, err := c.call(ctx, operation, chunkParams)
	if err != nil {
		return nil, err
	}
	if status := statusCode(result); status != 0 && status != 1 {
		log.Warn().Str("operation", operation).Int("status", status).
			Str("start", ch.start.Format("2006-01-02")).
			Str("end", ch.end.Format("2006-01-02")).
			Msg("chunk returned non-success status")
	}
	return collectWaybills(result), nil
}

// call performs one SOAP round trip and parses the response tree.
func (c *Client) call(ctx context.Context, operation string, params []param) (map[string]any, error) {
	envelope := buildEnvelope(operation, c.cfg.Namespace, params)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, strings.NewReader(envelope))
	if err != nil {
		return nil, domain.NewExternal("rs.ge", "building request", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", `"`+c.cfg.Namespace+operation+`"`)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewExternal("rs.ge", "request failed", err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, domain.NewExternal("rs.ge", "reading response", err)
	}
	log.Debug().Str("operation", operation).Int("httpStatus", res.StatusCode).
		Int("bodySize", len(body)).Msg("soap response received")
	// 500 carries a SOAP fault body; anything else unexpected is fatal.
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusInternalServerError {
		return nil, domain.NewExternal("rs.ge",
			fmt.Sprintf("HTTP %d body=%s", res.StatusCode, snippet(string(body), 500)), nil)
	}
	return parseResponse(body, operation)
}

func buildEnvelope(operation, namespace string, params []param) string {
	var body strings.Builder
	for _, p := range params {
		body.WriteString("<" + p.Key + ">" + xmlEscape(p.Value) + "</" + p.Key + ">")
	}
	return `<?xml version="1.0" encoding="utf-8"?>` + "\n" +
		`<soap:Envelope xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"` + "\n" +
		`               xmlns:xsd="http://www.w3.org/2001/XMLSchema"` + "\n" +
		`               xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">` + "\n" +
		`  <soap:Body>` + "\n" +
		`    <` + operation + ` xmlns="` + namespace + `">` + body.String() + `</` + operation + `>` + "\n" +
		`  </soap:Body>` + "\n" +
		`</soap:Envelope>` + "\n"
}

func statusCode(result map[string]any) int {
	v := scalarString(result["STATUS"])
	if v == "" {
		if inner, ok := result["RESULT"].(map[string]any); ok {
			v = scalarString(inner["STATUS"])
		}
	}
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func (c *Client) validate() error {
	if c.cfg.Endpoint == "" {
		return domain.NewExternal("rs.ge", "endpoint is not configured", nil)
	}
	if c.cfg.Username == "" {
		return domain.NewExternal("rs.ge", "service user is not configured", nil)
	}
	if c.cfg.Password == "" {
		return domain.NewExternal("rs.ge", "service password is not configured", nil)
	}
	return nil
}

func hasParam(params []param, key string) bool {
	for _, p := range params {
		if p.Key == key {
			return true
		}
	}
	return false
}

// withParam returns a copy with the given key set, replacing in place or
// appending while keeping parameter order.
func withParam(params []param, key, value string) []param {
	out := make([]param, len(params))
	copy(out, params)
	for i := range out {
		if out[i].Key == key {
			out[i].Value = value
			return out
		}
	}
	return append(out, param{key, value})
}

func isTooManyStreams(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "too many concurrent streams")
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func snippet(s string, max int) string {
	s = strings.ReplaceAll(strings.ReplaceAll(s, "\r", " "), "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// xmlEscape escapes markup characters and drops control characters that
// are invalid in XML 1.0.
func xmlEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\'':
			b.WriteString("&apos;")
		default:
			if r >= 0x20 || r == '\t' || r == '\n' || r == '\r' {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}
