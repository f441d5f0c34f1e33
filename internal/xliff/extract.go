package xliff

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/valpere/xliffqe/internal"
)

const (
	// StatusManuallyConfirmed marks a unit a human reviewer has finalized.
	StatusManuallyConfirmed = "ManuallyConfirmed"

	// MatchTypeInserted is the matchtype of an exact/leveraged insertion.
	MatchTypeInserted = "1"

	// MTSourceMarker identifies an inserted match that came from an MT engine
	// rather than a translation memory.
	MTSourceMarker = "MT /"
)

// MissingMTPolicy decides what happens to a confirmed unit with no
// recoverable machine-translation candidate.
type MissingMTPolicy int

const (
	// KeepMissingMT emits the record with HasMT false.
	KeepMissingMT MissingMTPolicy = iota
	// DropMissingMT omits the record entirely.
	DropMissingMT
)

func (p MissingMTPolicy) String() string {
	if p == DropMissingMT {
		return "drop"
	}
	return "keep"
}

// ParseMissingMTPolicy accepts "keep" or "drop".
func ParseMissingMTPolicy(s string) (MissingMTPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "keep":
		return KeepMissingMT, nil
	case "drop":
		return DropMissingMT, nil
	default:
		return KeepMissingMT, fmt.Errorf("unknown missing-mt policy %q (want keep or drop)", s)
	}
}

type Options struct {
	MissingMT MissingMTPolicy
}

// Stats counts what happened to every trans-unit in the document.
type Stats struct {
	Units            int `json:"units"`
	SkippedStatus    int `json:"skipped_status"`
	SkippedEmpty     int `json:"skipped_empty"`
	MissingMT        int `json:"missing_mt"`
	DroppedMissingMT int `json:"dropped_missing_mt"`
	Extracted        int `json:"extracted"`
}

// Result holds the extracted records in document order.
type Result struct {
	Records    []internal.Segment
	SourceLang string
	TargetLang string
	Stats      Stats
}

// EmptyResultWarning is returned by Result.Warning when a well-formed
// document produced no records. It is not a failure.
type EmptyResultWarning struct {
	Stats Stats
}

func (w *EmptyResultWarning) Error() string {
	return fmt.Sprintf("no usable translation units: %d found, %d not %s, %d with empty source or target, %d without MT dropped",
		w.Stats.Units, w.Stats.SkippedStatus, StatusManuallyConfirmed, w.Stats.SkippedEmpty, w.Stats.DroppedMissingMT)
}

// Warning returns an *EmptyResultWarning when there is nothing to evaluate.
func (r *Result) Warning() error {
	if len(r.Records) == 0 {
		return &EmptyResultWarning{Stats: r.Stats}
	}
	return nil
}

// Extract walks doc and returns one record per confirmed unit with
// non-empty source and target text.
func Extract(doc *Document, opts Options) *Result {
	res := &Result{}
	if doc == nil || doc.Root == nil {
		return res
	}
	walk(doc.Root, "", "", opts, res)
	res.Stats.Extracted = len(res.Records)
	return res
}

func walk(n *Node, srcLang, tgtLang string, opts Options, res *Result) {
	if n.Name.Local == "file" && !n.IsMemoQ() {
		srcLang = firstAttr(n, "source-language", "source_language")
		tgtLang = firstAttr(n, "target-language", "target_language")
		if res.SourceLang == "" {
			res.SourceLang = srcLang
		}
		if res.TargetLang == "" {
			res.TargetLang = tgtLang
		}
	}

	if n.Name.Local == "trans-unit" && !n.IsMemoQ() {
		res.Stats.Units++
		if seg, ok := unitRecord(n, opts, &res.Stats); ok {
			seg.SourceLang = srcLang
			seg.TargetLang = tgtLang
			res.Records = append(res.Records, seg)
		}
		return
	}

	for _, c := range n.Children {
		walk(c, srcLang, tgtLang, opts, res)
	}
}

func unitRecord(tu *Node, opts Options, st *Stats) (internal.Segment, bool) {
	if tu.MemoQAttr("status") != StatusManuallyConfirmed {
		st.SkippedStatus++
		return internal.Segment{}, false
	}

	src := strings.TrimSpace(tu.Child("source").Text())
	ref := strings.TrimSpace(tu.Child("target").Text())
	if src == "" || ref == "" {
		st.SkippedEmpty++
		return internal.Segment{}, false
	}

	seg := internal.Segment{
		Source:      src,
		Ref:         ref,
		UnitID:      firstAttr(tu, "id"),
		SegmentGUID: tu.MemoQAttr("segmentguid"),
	}

	seg.MTProvider, seg.MT, seg.HasMT = mtMatch(tu)

	if !seg.HasMT {
		st.MissingMT++
		if opts.MissingMT == DropMissingMT {
			st.DroppedMissingMT++
			return internal.Segment{}, false
		}
	}
	return seg, true
}

// mtMatch returns the provider and text of the first inserted match that
// came from an MT engine. Only that match is considered: when its target is
// empty the unit has no MT, even if a later match would qualify.
func mtMatch(tu *Node) (provider, text string, ok bool) {
	for _, m := range tu.MemoQChildren("insertedmatch") {
		if attrOrEmpty(m, "matchtype") != MatchTypeInserted {
			continue
		}
		source := strings.TrimSpace(attrOrEmpty(m, "source"))
		if !strings.Contains(source, MTSourceMarker) {
			continue
		}
		if text = strings.TrimSpace(m.Child("target").Text()); text == "" {
			return "", "", false
		}
		return source, text, true
	}
	return "", "", false
}

func attrOrEmpty(n *Node, local string) string {
	v, _ := n.AttrValue("", local)
	return v
}

func firstAttr(n *Node, names ...string) string {
	for _, name := range names {
		if v, ok := n.AttrValue("", name); ok && v != "" {
			return v
		}
	}
	return ""
}

// ExtractReader parses r and extracts its records. A malformed document
// yields a *ParseError and no result.
func ExtractReader(r io.Reader, opts Options) (*Result, error) {
	doc, err := Parse(r)
	if err != nil {
		return nil, err
	}
	return Extract(doc, opts), nil
}

func ExtractFile(path string, opts Options) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return ExtractReader(f, opts)
}
