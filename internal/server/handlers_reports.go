package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/supervity/company-research/internal/db"
	"github.com/supervity/company-research/internal/document"
	"github.com/supervity/company-research/internal/generation"
	"github.com/supervity/company-research/internal/pipeline"
	"github.com/supervity/company-research/internal/sections"
	"github.com/supervity/company-research/internal/storage"
)

// reportRequest is the body of POST /reports and POST /reports/stream.
type reportRequest struct {
	Company     string   `json:"company" validate:"required,max=200"`
	Requester   string   `json:"requester,omitempty" validate:"omitempty,max=200"`
	Language    string   `json:"language,omitempty"`
	Sections    []string `json:"sections,omitempty" validate:"omitempty,dive,required"`
	Summary     *bool    `json:"summary,omitempty"`
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
}

// decodeReportRequest parses and validates the body, filling defaults. An empty section
// list selects the whole catalog.
func (s *Server) decodeReportRequest(r *http.Request) (generation.Request, bool, error) {
	var body reportRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		return generation.Request{}, false, &ErrValidation{Field: "body", Message: "invalid JSON: " + err.Error()}
	}
	if err := s.validate.Struct(body); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return generation.Request{}, false, &ErrValidation{
				Field:   strings.ToLower(fe.Field()),
				Message: fmt.Sprintf("fails %q validation", fe.Tag()),
			}
		}
		return generation.Request{}, false, &ErrValidation{Field: "body", Message: err.Error()}
	}

	d := s.cfg.Defaults
	req := generation.Request{
		TargetCompany:    strings.TrimSpace(body.Company),
		RequesterCompany: d.RequesterCompany,
		Language:         d.Language,
		SectionIDs:       body.Sections,
		Model:            generation.ModelConfig{ModelName: d.ModelName, Temperature: d.Temperature},
	}
	if body.Requester != "" {
		req.RequesterCompany = strings.TrimSpace(body.Requester)
	}
	if body.Language != "" {
		lang, err := sections.ParseLanguage(body.Language)
		if err != nil {
			return generation.Request{}, false, &ErrValidation{Field: "language", Message: err.Error()}
		}
		req.Language = lang
	}
	if len(req.SectionIDs) == 0 {
		req.SectionIDs = s.cfg.Catalog.IDs()
	}
	if body.Model != "" {
		req.Model.ModelName = body.Model
	}
	if body.Temperature != nil {
		req.Model.Temperature = *body.Temperature
	}
	if _, err := generation.Validate(s.cfg.Catalog, req); err != nil {
		return generation.Request{}, false, err
	}

	summary := d.Summary
	if body.Summary != nil {
		summary = *body.Summary
	}
	return req, summary, nil
}

// pipelineOptions builds the options for one run, wiring stop support through rn.
func (s *Server) pipelineOptions(rn *run, summary bool, onProgress pipeline.ProgressCallback) pipeline.RunOptions {
	d := s.cfg.Defaults
	opts := pipeline.RunOptions{
		RunID:       rn.id,
		Request:     rn.req,
		Client:      s.cfg.Client,
		Store:       storage.Tee(storage.FileStoreAt(s.runSections(rn.id)), s.cfg.Store),
		Catalog:     s.cfg.Catalog,
		PoolSize:    d.PoolSize,
		Retry:       d.Retry,
		Provider:    d.Provider,
		CallTimeout: d.CallTimeout,
		Summary:     summary,
		OutputDir:   rn.outputDir,
		Renderer:    s.cfg.Renderer,
		Logger:      s.logger,
		OnProgress:  onProgress,
		OnStart:     rn.attach,
	}
	if s.cfg.DB != nil {
		opts.Recorder = s.cfg.DB
	}
	return opts
}

func (s *Server) newRun(req generation.Request) *run {
	id := uuid.NewString()
	rn := newRun(id, req, s.runDir(id), s.now())
	s.runs.add(rn)
	return rn
}

// execute runs the pipeline and records the outcome on rn.
func (s *Server) execute(ctx context.Context, rn *run, opts pipeline.RunOptions) {
	res, err := pipeline.RunPipeline(ctx, opts)
	if err != nil {
		s.logger.Error("report run failed", zap.String("run_id", rn.id), zap.Error(err))
	}
	rn.finish(res, err, s.now())
}

// handleCreateReport starts a run in the background and returns its id.
func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	req, summary, err := s.decodeReportRequest(r)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	if !s.chargeGeneration(w, r) {
		return
	}

	rn := s.newRun(req)
	opts := s.pipelineOptions(rn, summary, nil)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(s.baseCtx, rn, opts)
	}()

	s.logger.Info("report run started",
		zap.String("run_id", rn.id),
		zap.String("company", req.TargetCompany),
		zap.Int("sections", len(req.SectionIDs)))
	s.jsonResponse(w, http.StatusAccepted, map[string]string{
		"run_id": rn.id,
		"status": db.RunStatusRunning,
	})
}

// handleStreamReport runs synchronously and streams progress as SSE. A client that
// disconnects stops the run.
func (s *Server) handleStreamReport(w http.ResponseWriter, r *http.Request) {
	req, summary, err := s.decodeReportRequest(r)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	if !s.chargeGeneration(w, r) {
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	rn := s.newRun(req)
	onProgress := func(ev pipeline.ProgressEvent) {
		if ev.Section != nil {
			_ = sse.WriteEvent("section", ev.Section)
			return
		}
		_ = sse.WriteEvent("stage", ev)
	}
	_ = sse.WriteEvent("started", map[string]string{"run_id": rn.id})

	s.wg.Add(1)
	defer s.wg.Done()
	go func() {
		select {
		case <-r.Context().Done():
			rn.stop()
		case <-rn.done:
		}
	}()
	s.execute(s.baseCtx, rn, s.pipelineOptions(rn, summary, onProgress))

	v := rn.view()
	if v.Error != "" {
		sse.WriteError(v.Error)
		return
	}
	v.Document = documentView(rn.outputDir)
	sse.WriteComplete(v)
}

// handleListReports lists runs, from the database when one is configured.
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := db.RunFilter{Company: q.Get("company"), Status: q.Get("status")}
	var err error
	if f.Limit, err = intParam(q.Get("limit"), db.DefaultListLimit); err != nil || f.Limit < 1 || f.Limit > 500 {
		s.errorFrom(w, &ErrValidation{Field: "limit", Message: "must be between 1 and 500"})
		return
	}
	if f.Offset, err = intParam(q.Get("offset"), 0); err != nil || f.Offset < 0 {
		s.errorFrom(w, &ErrValidation{Field: "offset", Message: "must be a non-negative integer"})
		return
	}

	var views []RunView
	if s.cfg.DB != nil {
		runs, err := s.cfg.DB.ListRuns(r.Context(), f)
		if err != nil {
			s.errorFrom(w, fmt.Errorf("failed to list runs: %w", err))
			return
		}
		views = make([]RunView, 0, len(runs))
		for i := range runs {
			v := viewFromDB(&runs[i])
			v.Report = nil
			// In-process state is fresher than the row while a run is going.
			if rn, ok := s.runs.get(v.RunID); ok {
				v.Status = rn.view().Status
			}
			views = append(views, v)
		}
	} else {
		views = s.runs.list(f)
	}
	if views == nil {
		views = []RunView{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"runs": views, "count": len(views)})
}

// lookupRun finds a run in this process first, then in the database.
func (s *Server) lookupRun(ctx context.Context, id string) (RunView, error) {
	if err := checkRunID(id); err != nil {
		return RunView{}, err
	}
	if rn, ok := s.runs.get(id); ok {
		return rn.view(), nil
	}
	if s.cfg.DB != nil {
		dr, err := s.cfg.DB.GetRun(ctx, id)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return RunView{}, &ErrNotFound{What: "run", ID: id}
			}
			return RunView{}, fmt.Errorf("failed to load run: %w", err)
		}
		return viewFromDB(dr), nil
	}
	return RunView{}, &ErrNotFound{What: "run", ID: id}
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	v, err := s.lookupRun(r.Context(), id)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	if v.Status != db.RunStatusRunning {
		v.Document = documentView(s.runDir(id))
	}
	s.jsonResponse(w, http.StatusOK, v)
}

func (s *Server) handleStopReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rn, ok := s.runs.get(id)
	if !ok {
		if _, err := s.lookupRun(r.Context(), id); err != nil {
			s.errorFrom(w, err)
			return
		}
		s.errorFrom(w, &ErrConflict{Message: "run is not running"})
		return
	}
	if !rn.stop() {
		s.errorFrom(w, &ErrConflict{Message: "run is not running"})
		return
	}
	s.logger.Info("report run stop requested", zap.String("run_id", id))
	s.jsonResponse(w, http.StatusAccepted, map[string]string{"run_id": id, "status": "stopping"})
}

// handleGetSection returns the stored markdown of one section of a run.
func (s *Server) handleGetSection(w http.ResponseWriter, r *http.Request) {
	id, sectionID := r.PathValue("id"), r.PathValue("section")
	v, err := s.lookupRun(r.Context(), id)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	if _, ok := s.cfg.Catalog.Lookup(sectionID); !ok {
		s.errorFrom(w, &ErrNotFound{What: "section", ID: sectionID})
		return
	}

	key := storage.Key{Company: v.Company, Language: v.Language, SectionID: sectionID}
	// Runs without their own section directory (recorded elsewhere, or by an older
	// server) fall back to the shared store.
	store := s.cfg.Store
	if info, statErr := os.Stat(s.runSections(id)); statErr == nil && info.IsDir() {
		store = storage.FileStoreAt(s.runSections(id))
	}
	text, err := store.Read(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.errorFrom(w, &ErrNotFound{What: "section text", ID: sectionID})
			return
		}
		s.errorFrom(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}

// handleGetDocument serves the assembled report, HTML by default or PDF with ?format=pdf.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.lookupRun(r.Context(), id); err != nil {
		s.errorFrom(w, err)
		return
	}

	name, contentType := document.HTMLFile, "text/html; charset=utf-8"
	switch format := r.URL.Query().Get("format"); format {
	case "", "html":
	case "pdf":
		name, contentType = document.PDFFile, "application/pdf"
	default:
		s.errorFrom(w, &ErrValidation{Field: "format", Message: fmt.Sprintf("unsupported format %q", format)})
		return
	}

	path := filepath.Join(s.runDir(id), name)
	if _, err := os.Stat(path); err != nil {
		s.errorFrom(w, &ErrNotFound{What: "document", ID: id})
		return
	}
	w.Header().Set("Content-Type", contentType)
	http.ServeFile(w, r, path)
}

// handleDeleteReport removes a finished run, its row and its report files.
func (s *Server) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := checkRunID(id); err != nil {
		s.errorFrom(w, err)
		return
	}
	rn, inProcess := s.runs.get(id)
	if inProcess && rn.running() {
		s.errorFrom(w, &ErrConflict{Message: "run is still running; stop it first"})
		return
	}

	found := inProcess
	if s.cfg.DB != nil {
		err := s.cfg.DB.DeleteRun(r.Context(), id)
		switch {
		case err == nil:
			found = true
		case errors.Is(err, db.ErrNotFound):
		default:
			s.errorFrom(w, fmt.Errorf("failed to delete run: %w", err))
			return
		}
	}
	if !found {
		s.errorFrom(w, &ErrNotFound{What: "run", ID: id})
		return
	}

	s.runs.remove(id)
	if err := os.RemoveAll(s.runDir(id)); err != nil {
		s.logger.Warn("failed to remove run output", zap.String("run_id", id), zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

// documentView reports which report files exist in dir, or nil when there are none.
func documentView(dir string) *DocumentView {
	exists := func(name string) bool {
		_, err := os.Stat(filepath.Join(dir, name))
		return err == nil
	}
	v := &DocumentView{HTML: exists(document.HTMLFile), PDF: exists(document.PDFFile)}
	if !v.HTML && !v.PDF {
		return nil
	}
	return v
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
