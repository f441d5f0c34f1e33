package adapter

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/valpere/xliffqe/internal"
	"github.com/valpere/xliffqe/internal/scorer"
)

// Header aliases accepted for the three text columns.
var (
	sourceHeaders = []string{"source", "src"}
	mtHeaders     = []string{"mt"}
	refHeaders    = []string{"ref", "reference"}
)

// EmptyTableWarning is the Input warning for a spreadsheet without data rows.
type EmptyTableWarning struct {
	File string
}

func (w *EmptyTableWarning) Error() string {
	return fmt.Sprintf("%s has no data rows", w.File)
}

// ExcelAdapter reads the first sheet of an .xlsx workbook.
type ExcelAdapter struct {
	opts Options
}

func (a *ExcelAdapter) Name() string { return "excel" }

func (a *ExcelAdapter) Load(ctx context.Context, r io.Reader, filename string) (*Input, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", filename, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no sheets", filename)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return buildTable(ctx, rows, filename, a.opts.Mode)
}

type CSVAdapter struct {
	opts Options
}

func (a *CSVAdapter) Name() string { return "csv" }

func (a *CSVAdapter) Load(ctx context.Context, r io.Reader, filename string) (*Input, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV %s: %w", filename, err)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return buildTable(ctx, rows, filename, a.opts.Mode)
}

// buildTable maps header-plus-rows into segments. Every non-blank data row
// becomes a segment so the report can reproduce the sheet; rows lacking
// text are simply left unscored.
func buildTable(ctx context.Context, rows [][]string, filename string, mode scorer.Mode) (*Input, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s is empty: expected a header row", filename)
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}

	srcCol := findColumn(header, sourceHeaders)
	mtCol := findColumn(header, mtHeaders)
	refCol := findColumn(header, refHeaders)

	var missing []string
	if srcCol < 0 {
		missing = append(missing, "source")
	}
	if mtCol < 0 {
		missing = append(missing, "mt")
	}
	if refCol < 0 && mode != scorer.ModeQE {
		missing = append(missing, "ref")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: [%s] in %s (found %v)",
			strings.Join(missing, ", "), filename, header)
	}

	in := &Input{Format: FormatTable, Columns: header, MTColumn: mtCol}
	for n, row := range rows[1:] {
		if n%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if blankRow(row) {
			continue
		}

		mt := cell(row, mtCol)
		seg := internal.Segment{
			Source: cell(row, srcCol),
			MT:     mt,
			HasMT:  mt != "",
			Ref:    cell(row, refCol),
			Row:    n + 2,
		}
		for i, h := range header {
			seg.Extra = append(seg.Extra, internal.Cell{Header: h, Value: rawCell(row, i)})
		}
		in.Segments = append(in.Segments, seg)
	}

	if len(in.Segments) == 0 {
		in.warning = &EmptyTableWarning{File: filename}
	}
	return in, nil
}

func findColumn(header []string, names []string) int {
	for _, name := range names {
		for i, h := range header {
			if strings.EqualFold(h, name) {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, i int) string {
	return strings.TrimSpace(rawCell(row, i))
}

func rawCell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
