// Package report lays scored segments out as a sheet and writes it as XLSX
// or CSV.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/valpere/xliffqe/internal"
	"github.com/valpere/xliffqe/internal/adapter"
	"github.com/valpere/xliffqe/internal/mtengine"
	"github.com/valpere/xliffqe/internal/pipeline"
	"github.com/valpere/xliffqe/internal/scorer"
)

// SheetName is the worksheet name of every XLSX report.
const SheetName = "COMET_Scores"

// LangCheckColumn is added when references were checked.
const LangCheckColumn = "lang_check"

// Sheet is a header row plus data rows. Cells are strings or float64; a nil
// cell is left blank.
type Sheet struct {
	Headers []string
	Rows    [][]interface{}
}

type Options struct {
	Mode scorer.Mode
	// LangCheck adds the lang_check column.
	LangCheck bool
}

// Build lays out one row per segment. XLIFF input gets the fixed metadata
// columns; spreadsheet input keeps its own columns. The score column comes
// last in both cases.
func Build(in *adapter.Input, res *pipeline.Result, opts Options) *Sheet {
	var sheet *Sheet
	if in.Format == adapter.FormatTable {
		sheet = tableSheet(in, opts)
	} else {
		sheet = xliffSheet(in, opts)
	}
	sheet.Headers = append(sheet.Headers, opts.Mode.ScoreColumn())

	for i := range sheet.Rows {
		var score interface{}
		if res != nil && i < len(res.Scored) && res.Scored[i] {
			score = res.Scores[i]
		}
		sheet.Rows[i] = append(sheet.Rows[i], score)
	}
	return sheet
}

func xliffSheet(in *adapter.Input, opts Options) *Sheet {
	qe := opts.Mode == scorer.ModeQE

	headers := []string{"trans_unit_id", "segmentguid", "mt_provider", "source", "mt"}
	if !qe {
		headers = append(headers, "ref")
	}
	headers = append(headers, "source_language", "target_language")
	if opts.LangCheck {
		headers = append(headers, LangCheckColumn)
	}

	sheet := &Sheet{Headers: headers}
	for _, seg := range in.Segments {
		row := []interface{}{seg.UnitID, seg.SegmentGUID, seg.MTProvider, seg.Source, mtCell(seg)}
		if !qe {
			row = append(row, seg.Ref)
		}
		row = append(row, orDefault(seg.SourceLang, in.SourceLang), orDefault(seg.TargetLang, in.TargetLang))
		if opts.LangCheck {
			row = append(row, seg.LangCheck)
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	return sheet
}

func tableSheet(in *adapter.Input, opts Options) *Sheet {
	headers := append([]string(nil), in.Columns...)
	if opts.LangCheck {
		headers = append(headers, LangCheckColumn)
	}

	sheet := &Sheet{Headers: headers}
	for _, seg := range in.Segments {
		row := make([]interface{}, 0, len(headers)+1)
		for _, c := range seg.Extra {
			row = append(row, c.Value)
		}
		for len(row) < len(in.Columns) {
			row = append(row, "")
		}
		if backfilled(seg) && in.MTColumn >= 0 && in.MTColumn < len(row) {
			row[in.MTColumn] = seg.MT
		}
		if opts.LangCheck {
			row = append(row, seg.LangCheck)
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	return sheet
}

// backfilled reports whether the MT text was produced by a backfill engine
// rather than read from the input.
func backfilled(seg internal.Segment) bool {
	return seg.HasMT && strings.HasPrefix(seg.MTProvider, mtengine.ProviderPrefix)
}

func mtCell(seg internal.Segment) interface{} {
	if !seg.HasMT {
		return nil
	}
	return seg.MT
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// WriteXLSX writes the sheet as a single-worksheet workbook.
func WriteXLSX(w io.Writer, sheet *Sheet) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("failed to create stream writer: %w", err)
	}

	header := make([]interface{}, len(sheet.Headers))
	for i, h := range sheet.Headers {
		header[i] = h
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, row := range sheet.Rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cellRef, row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// WriteCSV writes the sheet as CSV. Scores keep full precision.
func WriteCSV(w io.Writer, sheet *Sheet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(sheet.Headers); err != nil {
		return err
	}
	record := make([]string, len(sheet.Headers))
	for _, row := range sheet.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = formatCell(row[i])
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatCell(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// ProviderSummary aggregates scores of one MT provider.
type ProviderSummary struct {
	Provider string
	pipeline.Summary
}

// ByProvider groups scored segments by MT provider, sorted by provider name.
// Segments without a provider are grouped under "(unknown)".
func ByProvider(segs []internal.Segment, res *pipeline.Result) []ProviderSummary {
	if res == nil {
		return nil
	}

	type acc struct {
		scores []float64
		scored []bool
	}
	groups := map[string]*acc{}
	for i, seg := range segs {
		if i >= len(res.Scored) || !res.Scored[i] {
			continue
		}
		name := seg.MTProvider
		if name == "" {
			name = "(unknown)"
		}
		g, ok := groups[name]
		if !ok {
			g = &acc{}
			groups[name] = g
		}
		g.scores = append(g.scores, res.Scores[i])
		g.scored = append(g.scored, true)
	}

	out := make([]ProviderSummary, 0, len(groups))
	for name, g := range groups {
		out = append(out, ProviderSummary{Provider: name, Summary: pipeline.Summarize(g.scores, g.scored)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// WriteFile writes sheet to path, as CSV when the extension is .csv and as
// XLSX otherwise.
func WriteFile(path string, sheet *Sheet) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		err = WriteCSV(f, sheet)
	} else {
		err = WriteXLSX(f, sheet)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// OutputName derives the default report name for an input file, e.g.
// "job.mqxliff" becomes "job_comet_scores.xlsx".
func OutputName(input string, mode scorer.Mode) string {
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	if mode == scorer.ModeQE {
		return stem + "_comet_qe_scores.xlsx"
	}
	return stem + "_comet_scores.xlsx"
}
