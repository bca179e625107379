package sheets

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/xuri/excelize/v2"
)

// Workbook implements API against a local .xlsx file. It backs the same
// persistence path when the hosted spreadsheet is disabled, and doubles as
// a test double with real workbook semantics.
type Workbook struct {
	mu   sync.Mutex
	path string
	file *excelize.File
}

// OpenWorkbook opens the workbook at path, creating it with one sheet per
// tab when it does not exist yet.
func OpenWorkbook(path string, tabs []string) (*Workbook, error) {
	var f *excelize.File
	if _, err := os.Stat(path); err == nil {
		f, err = excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("opening workbook: %w", err)
		}
	} else {
		f = excelize.NewFile()
	}
	for _, tab := range tabs {
		if idx, _ := f.GetSheetIndex(tab); idx < 0 {
			if _, err := f.NewSheet(tab); err != nil {
				return nil, fmt.Errorf("creating sheet %s: %w", tab, err)
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		return nil, fmt.Errorf("saving workbook: %w", err)
	}
	return &Workbook{path: path, file: f}, nil
}

func (w *Workbook) BatchGet(_ context.Context, tabs []string) ([][][]any, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	grids := make([][][]any, len(tabs))
	for i, tab := range tabs {
		rows, err := w.file.GetRows(tab)
		if err != nil {
			return nil, fmt.Errorf("reading sheet %s: %w", tab, err)
		}
		grid := make([][]any, len(rows))
		for r, row := range rows {
			cells := make([]any, len(row))
			for c, cell := range row {
				cells[c] = cell
			}
			grid[r] = cells
		}
		grids[i] = grid
	}
	return grids, nil
}

func (w *Workbook) Append(_ context.Context, tab string, rows [][]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	existing, err := w.file.GetRows(tab)
	if err != nil {
		return fmt.Errorf("reading sheet %s: %w", tab, err)
	}
	next := len(existing) + 1
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, next+i)
		if err != nil {
			return err
		}
		if err := w.file.SetSheetRow(tab, cell, &row); err != nil {
			return fmt.Errorf("appending to sheet %s: %w", tab, err)
		}
	}
	return w.file.Save()
}

func (w *Workbook) Update(_ context.Context, tab string, rowIndex int, rows [][]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, rowIndex+i)
		if err != nil {
			return err
		}
		if err := w.file.SetSheetRow(tab, cell, &row); err != nil {
			return fmt.Errorf("updating sheet %s: %w", tab, err)
		}
	}
	return w.file.Save()
}

func (w *Workbook) Column(_ context.Context, tab string) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rows, err := w.file.GetRows(tab)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", tab, err)
	}
	col := make([]string, len(rows))
	for i, row := range rows {
		if len(row) > 0 {
			col[i] = row[0]
		}
	}
	return col, nil
}

func (w *Workbook) Probe(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := os.Stat(w.path)
	return err
}

func (w *Workbook) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
