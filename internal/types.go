package internal

// Segment is one (source, machine translation, reference) triple produced by
// an input adapter. MT is meaningful only when HasMT is true.
type Segment struct {
	Source string `json:"source"`
	MT     string `json:"mt,omitempty"`
	HasMT  bool   `json:"has_mt"`
	Ref    string `json:"ref,omitempty"`

	UnitID      string `json:"trans_unit_id,omitempty"`
	SegmentGUID string `json:"segmentguid,omitempty"`
	MTProvider  string `json:"mt_provider,omitempty"`
	SourceLang  string `json:"source_language,omitempty"`
	TargetLang  string `json:"target_language,omitempty"`

	// Row is the 1-based spreadsheet row the segment was read from (0 for XLIFF).
	Row int `json:"row,omitempty"`
	// LangCheck is filled when references are checked against the target language.
	LangCheck string `json:"lang_check,omitempty"`
	// Extra holds passthrough spreadsheet cells in their original column order.
	Extra []Cell `json:"extra,omitempty"`
}

// Cell is a single passthrough spreadsheet value keyed by its header.
type Cell struct {
	Header string `json:"header"`
	Value  string `json:"value"`
}
