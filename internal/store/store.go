package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer; scoring workers share this handle.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS score_cache (
		model TEXT NOT NULL,
		mode TEXT NOT NULL,
		source_text TEXT NOT NULL,
		mt_text TEXT NOT NULL,
		ref_text TEXT NOT NULL,
		score REAL NOT NULL,
		usage_count INTEGER DEFAULT 1,
		last_used TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (model, mode, source_text, mt_text, ref_text)
	);

	-- evaluation_runs records one scoring job over one input file
	CREATE TABLE IF NOT EXISTS evaluation_runs (
		id TEXT PRIMARY KEY,
		input_file TEXT NOT NULL,
		output_file TEXT NOT NULL,
		model TEXT NOT NULL,
		mode TEXT NOT NULL,
		source_lang TEXT,
		target_lang TEXT,
		segments INTEGER DEFAULT 0,
		scored INTEGER DEFAULT 0,
		mean_score REAL,
		min_score REAL,
		max_score REAL,
		status TEXT DEFAULT 'running',
		error TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS run_segments (
		run_id TEXT NOT NULL,
		idx INTEGER NOT NULL,
		source_text TEXT NOT NULL,
		mt_text TEXT,
		ref_text TEXT,
		score REAL,
		PRIMARY KEY (run_id, idx),
		FOREIGN KEY (run_id) REFERENCES evaluation_runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created ON evaluation_runs(created_at);
	CREATE INDEX IF NOT EXISTS idx_run_segments ON run_segments(run_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CacheKey identifies one scored triple for one model and mode.
type CacheKey struct {
	Model  string
	Mode   string
	Source string
	MT     string
	Ref    string
}

func (k CacheKey) normalized() CacheKey {
	return CacheKey{
		Model:  k.Model,
		Mode:   k.Mode,
		Source: normalizeText(k.Source),
		MT:     normalizeText(k.MT),
		Ref:    normalizeText(k.Ref),
	}
}

// GetCachedScore returns a previously computed score for the triple.
func (s *Store) GetCachedScore(ctx context.Context, key CacheKey) (float64, bool, error) {
	k := key.normalized()

	var score float64
	err := s.db.QueryRowContext(ctx,
		`SELECT score FROM score_cache WHERE model = ? AND mode = ? AND source_text = ? AND mt_text = ? AND ref_text = ?`,
		k.Model, k.Mode, k.Source, k.MT, k.Ref).Scan(&score)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE score_cache SET usage_count = usage_count + 1, last_used = ? WHERE model = ? AND mode = ? AND source_text = ? AND mt_text = ? AND ref_text = ?`,
		time.Now(), k.Model, k.Mode, k.Source, k.MT, k.Ref)

	return score, true, err
}

func (s *Store) SaveScore(ctx context.Context, key CacheKey, score float64) error {
	k := key.normalized()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO score_cache (model, mode, source_text, mt_text, ref_text, score, usage_count, last_used, created_at) VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		k.Model, k.Mode, k.Source, k.MT, k.Ref, score, time.Now(), time.Now())
	return err
}

// CacheStats summarises score cache usage.
type CacheStats struct {
	TotalEntries int
	Models       int
	TotalUsage   int
}

func (s *Store) CacheStats(ctx context.Context) (*CacheStats, error) {
	stats := &CacheStats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(DISTINCT model),
			COALESCE(SUM(usage_count), 0)
		FROM score_cache`).Scan(
		&stats.TotalEntries,
		&stats.Models,
		&stats.TotalUsage,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// ClearCache removes cached scores, optionally only those of one model.
func (s *Store) ClearCache(ctx context.Context, model string) (int64, error) {
	query := `DELETE FROM score_cache`
	var args []interface{}
	if model != "" {
		query += ` WHERE model = ?`
		args = append(args, model)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Run is a row from the evaluation_runs table.
type Run struct {
	ID         string
	InputFile  string
	OutputFile string
	Model      string
	Mode       string
	SourceLang string
	TargetLang string
	Segments   int
	Scored     int
	MeanScore  sql.NullFloat64
	MinScore   sql.NullFloat64
	MaxScore   sql.NullFloat64
	Status     string
	Error      string
	CreatedAt  time.Time
}

// RunSummary is written when a run finishes.
type RunSummary struct {
	Segments int
	Scored   int
	Mean     float64
	Min      float64
	Max      float64
}

// CreateRun inserts a running evaluation and returns its ID.
func (s *Store) CreateRun(ctx context.Context, inputFile, outputFile, model, mode, sourceLang, targetLang string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO evaluation_runs (id, input_file, output_file, model, mode, source_lang, target_lang, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, inputFile, outputFile, model, mode, sourceLang, targetLang, time.Now(), time.Now())
	return id, err
}

func (s *Store) CompleteRun(ctx context.Context, id string, sum RunSummary) error {
	var mean, lo, hi sql.NullFloat64
	if sum.Scored > 0 {
		mean = sql.NullFloat64{Float64: sum.Mean, Valid: true}
		lo = sql.NullFloat64{Float64: sum.Min, Valid: true}
		hi = sql.NullFloat64{Float64: sum.Max, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE evaluation_runs SET status = 'completed', segments = ?, scored = ?, mean_score = ?, min_score = ?, max_score = ?, updated_at = ? WHERE id = ?`,
		sum.Segments, sum.Scored, mean, lo, hi, time.Now(), id)
	return err
}

func (s *Store) FailRun(ctx context.Context, id, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE evaluation_runs SET status = 'failed', error = ?, updated_at = ? WHERE id = ?`,
		errMsg, time.Now(), id)
	return err
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM evaluation_runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	return r, err
}

// ListRuns returns runs newest first. limit ≤ 0 returns all of them.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM evaluation_runs ORDER BY created_at DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

const runColumns = `id, input_file, output_file, model, mode, COALESCE(source_lang, ''), COALESCE(target_lang, ''),
	segments, scored, mean_score, min_score, max_score, status, COALESCE(error, ''), created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	err := row.Scan(&r.ID, &r.InputFile, &r.OutputFile, &r.Model, &r.Mode, &r.SourceLang, &r.TargetLang,
		&r.Segments, &r.Scored, &r.MeanScore, &r.MinScore, &r.MaxScore, &r.Status, &r.Error, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// RunSegment is one scored (or unscored) row of a run.
type RunSegment struct {
	Index  int
	Source string
	MT     string
	Ref    string
	Score  sql.NullFloat64
}

// SaveRunSegments stores all segments of a run in one transaction.
func (s *Store) SaveRunSegments(ctx context.Context, runID string, segs []RunSegment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO run_segments (run_id, idx, source_text, mt_text, ref_text, score) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, seg := range segs {
		if _, err := stmt.ExecContext(ctx, runID, seg.Index, seg.Source, seg.MT, seg.Ref, seg.Score); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) GetRunSegments(ctx context.Context, runID string) ([]RunSegment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, source_text, COALESCE(mt_text, ''), COALESCE(ref_text, ''), score FROM run_segments WHERE run_id = ? ORDER BY idx`,
		runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var segs []RunSegment
	for rows.Next() {
		var seg RunSegment
		if err := rows.Scan(&seg.Index, &seg.Source, &seg.MT, &seg.Ref, &seg.Score); err != nil {
			return nil, err
		}
		segs = append(segs, seg)
	}
	return segs, rows.Err()
}

// normalizeText trims whitespace and applies Unicode NFC normalization
// for consistent cache key comparison.
func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}
