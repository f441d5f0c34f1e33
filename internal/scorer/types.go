package scorer

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Mode selects between reference-based scoring and reference-free quality
// estimation.
type Mode string

const (
	ModeReference Mode = "reference"
	ModeQE        Mode = "qe"
)

const (
	DefaultReferenceModel = "Unbabel/wmt22-comet-da"
	DefaultQEModel        = "Unbabel/wmt22-cometkiwi-da"
	// SmallReferenceModel fits hosts with about 1GB of RAM.
	SmallReferenceModel = "Unbabel/wmt20-comet-da"

	DefaultBatchSize = 8
)

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reference", "ref", "da":
		return ModeReference, nil
	case "qe", "kiwi", "reference-free":
		return ModeQE, nil
	default:
		return "", fmt.Errorf("unknown scoring mode %q (want reference or qe)", s)
	}
}

// DefaultModel returns the model loaded when none is configured.
func (m Mode) DefaultModel() string {
	if m == ModeQE {
		return DefaultQEModel
	}
	return DefaultReferenceModel
}

// ScoreColumn is the spreadsheet header the scores are written under.
func (m Mode) ScoreColumn() string {
	if m == ModeQE {
		return "comet_qe_score"
	}
	return "comet_score"
}

// Config is handed to a scorer at construction time.
type Config struct {
	ModelName  string        `mapstructure:"model_name" json:"model_name"`
	Credential string        `mapstructure:"credential" json:"-"`
	BatchSize  int           `mapstructure:"batch_size" json:"batch_size"`
	BaseURL    string        `mapstructure:"base_url" json:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout" json:"timeout"`
	GPUs       int           `mapstructure:"gpus" json:"gpus"`
}

// Triple is one scoring input. Ref is empty in QE mode.
type Triple struct {
	Src string `json:"src"`
	MT  string `json:"mt"`
	Ref string `json:"ref,omitempty"`
}

// Scorer maps triples to one score each, in order. A scorer either returns
// exactly len(triples) scores or fails the whole call.
type Scorer interface {
	Name() string
	Model() string
	Score(ctx context.Context, triples []Triple) ([]float64, error)
	IsAvailable(ctx context.Context) error
}
