// Package sheets is the only component that talks to the external tabular
// store. It owns the table layout, bulk loads the cache, and propagates
// mutations through a write-behind queue.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/oauth2/google"

	"github.com/phenrril/orderdesk/internal/domain"
)

// API is the raw tabular-store boundary: a fixed set of named tabs, each a
// 2-D grid of cells. Row indexes are 1-based as the store counts them.
type API interface {
	BatchGet(ctx context.Context, tabs []string) ([][][]any, error)
	Append(ctx context.Context, tab string, rows [][]any) error
	Update(ctx context.Context, tab string, rowIndex int, rows [][]any) error
	Column(ctx context.Context, tab string) ([]string, error)
	Probe(ctx context.Context) error
}

const (
	sheetsScope   = "https://www.googleapis.com/auth/spreadsheets"
	sheetsBaseURL = "https://sheets.googleapis.com/v4/spreadsheets"
)

// RESTAPI implements API against the Google Sheets v4 REST endpoints using
// a service-account credential.
type RESTAPI struct {
	spreadsheetID string
	baseURL       string
	httpClient    *http.Client
}

func NewRESTAPI(ctx context.Context, credentialsPath, spreadsheetID string) (*RESTAPI, error) {
	data, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("reading sheets credentials: %w", err)
	}
	conf, err := google.JWTConfigFromJSON(data, sheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parsing sheets credentials: %w", err)
	}
	client := conf.Client(ctx)
	client.Timeout = 30 * time.Second
	return &RESTAPI{
		spreadsheetID: spreadsheetID,
		baseURL:       sheetsBaseURL,
		httpClient:    client,
	}, nil
}

type valueRange struct {
	Range          string  `json:"range,omitempty"`
	MajorDimension string  `json:"majorDimension,omitempty"`
	Values         [][]any `json:"values,omitempty"`
}

func (a *RESTAPI) BatchGet(ctx context.Context, tabs []string) ([][][]any, error) {
	q := url.Values{}
	for _, tab := range tabs {
		q.Add("ranges", tab+"!A:Z")
	}
	q.Set("valueRenderOption", "UNFORMATTED_VALUE")
	endpoint := fmt.Sprintf("%s/%s/values:batchGet?%s", a.baseURL, a.spreadsheetID, q.Encode())

	var out struct {
		ValueRanges []valueRange `json:"valueRanges"`
	}
	if err := a.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	grids := make([][][]any, len(tabs))
	for i := range tabs {
		if i < len(out.ValueRanges) {
			grids[i] = out.ValueRanges[i].Values
		}
	}
	return grids, nil
}

func (a *RESTAPI) Append(ctx context.Context, tab string, rows [][]any) error {
	endpoint := fmt.Sprintf("%s/%s/values/%s:append?valueInputOption=RAW&insertDataOption=INSERT_ROWS",
		a.baseURL, a.spreadsheetID, url.PathEscape(tab+"!A1"))
	body := valueRange{Range: tab + "!A1", MajorDimension: "ROWS", Values: rows}
	return a.do(ctx, http.MethodPost, endpoint, body, nil)
}

func (a *RESTAPI) Update(ctx context.Context, tab string, rowIndex int, rows [][]any) error {
	rng := fmt.Sprintf("%s!A%d", tab, rowIndex)
	endpoint := fmt.Sprintf("%s/%s/values/%s?valueInputOption=RAW",
		a.baseURL, a.spreadsheetID, url.PathEscape(rng))
	body := valueRange{MajorDimension: "ROWS", Values: rows}
	return a.do(ctx, http.MethodPut, endpoint, body, nil)
}

func (a *RESTAPI) Column(ctx context.Context, tab string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/%s/values/%s?valueRenderOption=UNFORMATTED_VALUE",
		a.baseURL, a.spreadsheetID, url.PathEscape(tab+"!A:A"))
	var out valueRange
	if err := a.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	col := make([]string, len(out.Values))
	for i, row := range out.Values {
		if len(row) > 0 {
			col[i] = fmt.Sprint(row[0])
		}
	}
	return col, nil
}

func (a *RESTAPI) Probe(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/%s?fields=spreadsheetId", a.baseURL, a.spreadsheetID)
	return a.do(ctx, http.MethodGet, endpoint, nil, nil)
}

func (a *RESTAPI) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding sheets request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return domain.NewExternal("sheets", "building request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := a.httpClient.Do(req)
	if err != nil {
		return domain.NewExternal("sheets", "request failed", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 500))
		return domain.NewExternal("sheets", fmt.Sprintf("HTTP %d body=%s", res.StatusCode, b), nil)
	}
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return domain.NewExternal("sheets", "decoding response", err)
		}
	}
	return nil
}
