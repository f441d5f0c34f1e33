package server

import (
	"time"

	"github.com/valpere/xliffqe/internal/store"
)

type runJSON struct {
	ID         string    `json:"id"`
	InputFile  string    `json:"input_file"`
	OutputFile string    `json:"output_file"`
	Model      string    `json:"model"`
	Mode       string    `json:"mode"`
	SourceLang string    `json:"source_language,omitempty"`
	TargetLang string    `json:"target_language,omitempty"`
	Segments   int       `json:"segments"`
	Scored     int       `json:"scored"`
	MeanScore  *float64  `json:"mean_score,omitempty"`
	MinScore   *float64  `json:"min_score,omitempty"`
	MaxScore   *float64  `json:"max_score,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func toRunJSON(r *store.Run) runJSON {
	out := runJSON{
		ID:         r.ID,
		InputFile:  r.InputFile,
		OutputFile: r.OutputFile,
		Model:      r.Model,
		Mode:       r.Mode,
		SourceLang: r.SourceLang,
		TargetLang: r.TargetLang,
		Segments:   r.Segments,
		Scored:     r.Scored,
		Status:     r.Status,
		Error:      r.Error,
		CreatedAt:  r.CreatedAt,
	}
	if r.MeanScore.Valid {
		out.MeanScore = &r.MeanScore.Float64
	}
	if r.MinScore.Valid {
		out.MinScore = &r.MinScore.Float64
	}
	if r.MaxScore.Valid {
		out.MaxScore = &r.MaxScore.Float64
	}
	return out
}
