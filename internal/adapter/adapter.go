// Package adapter turns input files into ordered segments, whatever their
// format.
package adapter

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/valpere/xliffqe/internal"
	"github.com/valpere/xliffqe/internal/scorer"
	"github.com/valpere/xliffqe/internal/xliff"
)

// Adapter reads one input format.
type Adapter interface {
	Name() string
	Load(ctx context.Context, r io.Reader, filename string) (*Input, error)
}

// Format tells the report writer which column layout to use.
type Format string

const (
	FormatXLIFF Format = "xliff"
	FormatTable Format = "table"
)

// Input is what an adapter produces.
type Input struct {
	Format     Format
	Segments   []internal.Segment
	SourceLang string
	TargetLang string
	// Columns lists the original headers of a spreadsheet input, in order.
	Columns []string
	// MTColumn is the index in Columns of the MT column, -1 for XLIFF input.
	MTColumn int
	// Stats is set for XLIFF input only.
	Stats *xliff.Stats

	warning error
}

// Warning reports a non-fatal condition, such as an input with nothing to
// score.
func (in *Input) Warning() error {
	return in.warning
}

type Options struct {
	Mode      scorer.Mode
	MissingMT xliff.MissingMTPolicy
}

// SupportedExtensions lists file extensions ForFile can handle.
var SupportedExtensions = map[string]bool{
	".mqxliff": true,
	".xliff":   true,
	".xlf":     true,
	".xlsx":    true,
	".csv":     true,
}

// ForFile returns the adapter for a filename.
func ForFile(filename string, opts Options) (Adapter, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".mqxliff", ".xliff", ".xlf":
		return &XliffAdapter{opts: opts}, nil
	case ".xlsx":
		return &ExcelAdapter{opts: opts}, nil
	case ".csv":
		return &CSVAdapter{opts: opts}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %q", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

type XliffAdapter struct {
	opts Options
}

func (a *XliffAdapter) Name() string { return "xliff" }

func (a *XliffAdapter) Load(ctx context.Context, r io.Reader, filename string) (*Input, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := xliff.ExtractReader(r, xliff.Options{MissingMT: a.opts.MissingMT})
	if err != nil {
		return nil, err
	}
	stats := res.Stats
	return &Input{
		Format:     FormatXLIFF,
		Segments:   res.Records,
		SourceLang: res.SourceLang,
		TargetLang: res.TargetLang,
		MTColumn:   -1,
		Stats:      &stats,
		warning:    res.Warning(),
	}, nil
}

// DropMissingMT removes XLIFF segments that have no MT candidate and returns
// how many were removed. Spreadsheet rows are never dropped.
func (in *Input) DropMissingMT() int {
	if in.Format != FormatXLIFF {
		return 0
	}
	kept := in.Segments[:0]
	for _, seg := range in.Segments {
		if seg.HasMT {
			kept = append(kept, seg)
		}
	}
	dropped := len(in.Segments) - len(kept)
	in.Segments = kept

	if in.Stats != nil {
		in.Stats.DroppedMissingMT += dropped
		in.Stats.Extracted = len(kept)
		if len(kept) == 0 && in.warning == nil {
			in.warning = &xliff.EmptyResultWarning{Stats: *in.Stats}
		}
	}
	return dropped
}
