package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/valpere/xliffqe/internal"
	"github.com/valpere/xliffqe/internal/adapter"
	"github.com/valpere/xliffqe/internal/evaluator"
	"github.com/valpere/xliffqe/internal/report"
	"github.com/valpere/xliffqe/internal/scorer"
	"github.com/valpere/xliffqe/internal/xliff"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type upload struct {
	filename string
	data     []byte
	req      Request
}

func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*upload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return nil, false
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !adapter.IsSupportedExtension(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return nil, false
	}

	data, err := readLimited(file, s.cfg.MaxUploadBytes)
	if err != nil {
		jsonError(w, err.Error(), http.StatusRequestEntityTooLarge)
		return nil, false
	}

	up := &upload{filename: filename, data: data}
	if v := r.FormValue("mode"); v != "" {
		mode, err := scorer.ParseMode(v)
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return nil, false
		}
		up.req.Mode = mode
	}
	if v := r.FormValue("batch_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 256 {
			jsonError(w, "batch_size must be between 1 and 256", http.StatusBadRequest)
			return nil, false
		}
		up.req.BatchSize = n
	}
	return up, true
}

func readLimited(f multipart.File, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("file exceeds max size (%d bytes)", limit)
	}
	return data, nil
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	up, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	defer r.MultipartForm.RemoveAll()

	ev, err := s.factory(up.req)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	// The factory falls back to the server's mode when the upload names none.
	outName := report.OutputName(up.filename, ev.Mode())

	out, err := ev.Evaluate(r.Context(), bytes.NewReader(up.data), up.filename, outName)
	if err != nil {
		jsonError(w, err.Error(), statusFor(err))
		return
	}

	var buf bytes.Buffer
	if err := report.WriteXLSX(&buf, out.Sheet); err != nil {
		jsonError(w, "failed to write workbook: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", outName))
	if out.RunID != "" {
		w.Header().Set("X-Run-ID", out.RunID)
	}
	if out.Result != nil {
		w.Header().Set("X-Segments-Scored", strconv.Itoa(out.Result.Summary.Scored))
		if out.Result.Summary.Scored > 0 {
			w.Header().Set("X-Mean-Score", strconv.FormatFloat(out.Result.Summary.Mean, 'f', 4, 64))
		}
	}
	if out.Warning != nil {
		w.Header().Set("X-Warning", out.Warning.Error())
	}
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

type extractResponse struct {
	File           string             `json:"file"`
	SourceLanguage string             `json:"source_language,omitempty"`
	TargetLanguage string             `json:"target_language,omitempty"`
	Segments       []internal.Segment `json:"segments"`
	Stats          *xliff.Stats       `json:"stats,omitempty"`
	Warning        string             `json:"warning,omitempty"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	up, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	defer r.MultipartForm.RemoveAll()

	ev, err := s.factory(up.req)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	in, _, err := ev.Load(r.Context(), bytes.NewReader(up.data), up.filename)
	if err != nil {
		jsonError(w, err.Error(), statusFor(err))
		return
	}

	resp := extractResponse{
		File:           up.filename,
		SourceLanguage: in.SourceLang,
		TargetLanguage: in.TargetLang,
		Segments:       in.Segments,
		Stats:          in.Stats,
	}
	if resp.Segments == nil {
		resp.Segments = []internal.Segment{}
	}
	if warn := in.Warning(); warn != nil {
		resp.Warning = warn.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		jsonError(w, "run history is disabled", http.StatusNotFound)
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]runJSON, 0, len(runs))
	for i := range runs {
		out = append(out, toRunJSON(&runs[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		jsonError(w, "run history is disabled", http.StatusNotFound)
		return
	}

	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toRunJSON(run))
}

// statusFor maps evaluation errors to HTTP status codes. Anything that is
// not the upload's fault is a failure of an upstream service.
func statusFor(err error) int {
	var inErr *evaluator.InputError
	switch {
	case errors.As(err, &inErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
