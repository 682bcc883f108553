// Package pipeline runs a full research request: section generation, the optional
// executive summary, the report document, usage files and run persistence.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/supervity/company-research/internal/db"
	"github.com/supervity/company-research/internal/document"
	"github.com/supervity/company-research/internal/generation"
	"github.com/supervity/company-research/internal/llm"
	"github.com/supervity/company-research/internal/rendering"
	"github.com/supervity/company-research/internal/sections"
	"github.com/supervity/company-research/internal/storage"
	"github.com/supervity/company-research/internal/summary"
)

// Stage names a pipeline phase in progress events.
type Stage string

// Pipeline stages in execution order.
const (
	StageGeneration  Stage = "generation"
	StageSummary     Stage = "summary"
	StageDocument    Stage = "document"
	StageUsage       Stage = "usage"
	StagePersistence Stage = "persistence"
	StageDone        Stage = "done"
)

// ProgressEvent represents a progress update during pipeline execution
type ProgressEvent struct {
	Stage   Stage                     `json:"stage"`
	Message string                    `json:"message,omitempty"`
	RunID   string                    `json:"run_id,omitempty"`
	Section *generation.ProgressEvent `json:"section,omitempty"`
}

// ProgressCallback is called when pipeline progress occurs. Calls are serialized.
type ProgressCallback func(event ProgressEvent)

// RunRecorder persists runs and their analytics rows. *db.DB implements it.
type RunRecorder interface {
	CreateRun(ctx context.Context, in db.RunInput) (*db.Run, error)
	CompleteRun(ctx context.Context, id string, res db.RunResult) error
	LogGeneration(ctx context.Context, e db.GenerationLogEntry) error
}

// RunOptions holds configuration for running the pipeline
type RunOptions struct {
	RunID   string
	Request generation.Request
	Client  llm.Client
	Store   storage.Store
	Catalog *sections.Catalog

	PoolSize int
	Retry    generation.RetryPolicy
	// Provider and CallTimeout are only recorded in generation_config.yaml.
	Provider    string
	CallTimeout time.Duration

	Summary bool
	// SummaryModel overrides the lite tier model for the executive summary.
	SummaryModel string

	// OutputDir receives report.html, report.pdf and the usage files. Empty skips them.
	OutputDir string
	Renderer  rendering.Renderer

	// Recorder is optional.
	Recorder RunRecorder
	Logger   *zap.Logger

	OnProgress ProgressCallback
	// OnStart receives the orchestrator before any section starts so callers can Stop it.
	OnStart func(*generation.Orchestrator)
}

// Result collects everything a run produced.
type Result struct {
	Report     *generation.Report
	Summary    *summary.Result
	Document   *document.BuildResult
	UsagePath  string
	ConfigPath string
	// Warnings lists stage failures that did not abort the run.
	Warnings []error
}

type warnings struct {
	mu   sync.Mutex
	errs []error
}

func (w *warnings) add(err error) {
	w.mu.Lock()
	w.errs = append(w.errs, err)
	w.mu.Unlock()
}

// emitProgress calls the progress callback if configured
func emitProgress(opts *RunOptions, stage Stage, runID, message string) {
	if opts.OnProgress != nil {
		opts.OnProgress(ProgressEvent{Stage: stage, RunID: runID, Message: message})
	}
}

// RunPipeline orchestrates the full report generation pipeline. It returns an error only
// when the request is invalid; everything after generation degrades to warnings.
func RunPipeline(ctx context.Context, opts RunOptions) (*Result, error) {
	if opts.Client == nil {
		return nil, errors.New("pipeline: no model client")
	}
	if opts.Store == nil {
		return nil, errors.New("pipeline: no section store")
	}
	if opts.Catalog == nil {
		opts.Catalog = sections.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if _, err := generation.Validate(opts.Catalog, opts.Request); err != nil {
		return nil, err
	}
	if cb := opts.OnProgress; cb != nil {
		var mu sync.Mutex
		opts.OnProgress = func(ev ProgressEvent) {
			mu.Lock()
			defer mu.Unlock()
			cb(ev)
		}
	}

	gen := generation.NewGenerator(opts.Client, opts.Store, logger)
	orch := generation.NewOrchestrator(gen, generation.Options{
		RunID:    opts.RunID,
		PoolSize: opts.PoolSize,
		Retry:    opts.Retry,
		Catalog:  opts.Catalog,
		Logger:   logger,
		OnProgress: func(ev generation.ProgressEvent) {
			if opts.OnProgress != nil {
				opts.OnProgress(ProgressEvent{Stage: StageGeneration, RunID: ev.RunID, Section: &ev})
			}
		},
	})
	runID := orch.RunID()
	logger = logger.With(zap.String("run_id", runID))
	if opts.OnStart != nil {
		opts.OnStart(orch)
	}

	var warn warnings
	req := opts.Request
	if opts.Recorder != nil {
		_, err := opts.Recorder.CreateRun(ctx, db.RunInput{
			ID:         runID,
			Company:    req.TargetCompany,
			Requester:  req.RequesterCompany,
			Language:   string(req.Language),
			SectionIDs: req.SectionIDs,
			Model:      req.Model.ModelName,
		})
		if err != nil {
			logger.Warn("failed to record run start", zap.Error(err))
			warn.add(err)
		}
	}

	emitProgress(&opts, StageGeneration, runID, fmt.Sprintf("generating %d sections", len(req.SectionIDs)))
	report, err := orch.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	res := &Result{Report: report}

	// The document branch and the usage-file branch are independent once the
	// sections are in; neither failure cancels the other.
	var g errgroup.Group
	g.Go(func() error {
		buildDocument(ctx, &opts, orch, res, &warn, logger)
		return nil
	})
	g.Go(func() error {
		writeUsageFiles(&opts, res, &warn, logger)
		return nil
	})
	_ = g.Wait()

	if opts.Recorder != nil {
		emitProgress(&opts, StagePersistence, runID, "recording run")
		if err := persist(context.WithoutCancel(ctx), opts.Recorder, report, orch.Stopped()); err != nil {
			logger.Warn("failed to record run", zap.Error(err))
			warn.add(err)
		}
	}

	res.Warnings = warn.errs
	emitProgress(&opts, StageDone, runID, string(report.OverallStatus))
	return res, nil
}

func buildDocument(ctx context.Context, opts *RunOptions, orch *generation.Orchestrator, res *Result, warn *warnings, logger *zap.Logger) {
	report := res.Report
	ok := report.SucceededIDs()
	if len(ok) == 0 {
		logger.Info("no section succeeded, skipping document")
		return
	}

	withSummary := false
	if opts.Summary && !orch.Stopped() {
		emitProgress(opts, StageSummary, report.RunID, "writing executive summary")
		in := summary.Input{
			Company:   report.Request.TargetCompany,
			Requester: report.Request.RequesterCompany,
			Language:  report.Request.Language,
		}
		for _, r := range report.Ordered() {
			if r.Succeeded() {
				in.Sections = append(in.Sections, summary.Section{ID: r.ID, Title: opts.Catalog.Title(r.ID), Text: r.Text})
			}
		}
		sg := summary.NewGenerator(opts.Client, opts.Store, logger, opts.SummaryModel, report.Request.Model.Temperature)
		sum, err := sg.Generate(ctx, in)
		if err != nil {
			logger.Warn("executive summary failed", zap.Error(err))
			warn.add(err)
		} else {
			res.Summary = sum
			withSummary = true
		}
	}

	if opts.OutputDir == "" {
		return
	}
	emitProgress(opts, StageDocument, report.RunID, "building report document")
	builder := document.NewBuilder(opts.Store, opts.Catalog, opts.Renderer, logger)
	built, err := builder.Build(ctx, document.BuildInput{
		Company:        report.Request.TargetCompany,
		Requester:      report.Request.RequesterCompany,
		Language:       report.Request.Language,
		SectionIDs:     ok,
		IncludeSummary: withSummary,
		OutputDir:      opts.OutputDir,
		GeneratedAt:    report.FinishedAt,
	})
	if err != nil {
		logger.Warn("document build failed", zap.Error(err))
		warn.add(err)
		return
	}
	if built.RenderErr != nil {
		warn.add(built.RenderErr)
	}
	res.Document = built
}

func writeUsageFiles(opts *RunOptions, res *Result, warn *warnings, logger *zap.Logger) {
	if opts.OutputDir == "" {
		return
	}
	report := res.Report
	emitProgress(opts, StageUsage, report.RunID, "writing usage report")

	usagePath, err := generation.WriteUsageReport(opts.OutputDir,
		generation.NewUsageReport(report, opts.Catalog, report.Request.Model.ModelName))
	if err != nil {
		logger.Warn("failed to write usage report", zap.Error(err))
		warn.add(err)
	} else {
		res.UsagePath = usagePath
	}

	cfg := generation.GenerationConfig{
		RunID:       report.RunID,
		GeneratedAt: report.FinishedAt.UTC(),
		Provider:    opts.Provider,
		Model:       report.Request.Model.ModelName,
		PoolSize:    opts.PoolSize,
		MaxAttempts: max(opts.Retry.MaxAttempts, 1),
		Request:     report.Request,
	}
	if opts.CallTimeout > 0 {
		cfg.Timeout = opts.CallTimeout.String()
	}
	configPath, err := generation.WriteGenerationConfig(opts.OutputDir, cfg)
	if err != nil {
		logger.Warn("failed to write generation config", zap.Error(err))
		warn.add(err)
	} else {
		res.ConfigPath = configPath
	}
}

// RunStatus maps a finished report to the stored run status.
func RunStatus(report *generation.Report, stopped bool) string {
	switch {
	case stopped || report.Interrupted:
		return db.RunStatusStopped
	case report.OverallStatus == generation.AllFailed:
		return db.RunStatusFailed
	default:
		return db.RunStatusCompleted
	}
}

func persist(ctx context.Context, rec RunRecorder, report *generation.Report, stopped bool) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	var firstErr string
	for _, r := range report.Ordered() {
		if !r.Succeeded() {
			firstErr = fmt.Sprintf("%s: %s", r.ID, r.Error)
			break
		}
	}

	errs := []error{
		rec.CompleteRun(ctx, report.RunID, db.RunResult{
			Status:        RunStatus(report, stopped),
			OverallStatus: string(report.OverallStatus),
			InputTokens:   report.TotalInputTokens,
			OutputTokens:  report.TotalOutputTokens,
			Report:        data,
			ErrorMessage:  firstErr,
		}),
	}

	ok, _ := report.Counts()
	entry := db.GenerationLogEntry{
		RunID:            report.RunID,
		TargetCompany:    report.Request.TargetCompany,
		RequesterCompany: report.Request.RequesterCompany,
		Language:         string(report.Request.Language),
		Sections:         report.SucceededIDs(),
		TotalSections:    len(report.Request.SectionIDs),
		Success:          ok > 0,
		ElapsedSeconds:   report.WallClockSeconds,
		InputTokens:      report.TotalInputTokens,
		OutputTokens:     report.TotalOutputTokens,
	}
	if firstErr != "" {
		entry.ErrorMessage = &firstErr
	}
	errs = append(errs, rec.LogGeneration(ctx, entry))
	return errors.Join(errs...)
}
