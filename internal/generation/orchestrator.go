package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/supervity/company-research/internal/sections"
)

// DefaultPoolSize is the number of sections generated concurrently.
const DefaultPoolSize = 10

// RetryPolicy controls how often a section is retried after a Timeout or
// RateLimited failure. Other failures are never retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts per section. Values below 1 mean 1.
	MaxAttempts int
	// BaseDelay is the wait before the second attempt; it doubles for each further one.
	BaseDelay time.Duration
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	return p.BaseDelay << (attempt - 1)
}

// ProgressStatus is the lifecycle state reported for a section.
type ProgressStatus string

// Progress states.
const (
	ProgressPending  ProgressStatus = "pending"
	ProgressWorking  ProgressStatus = "working"
	ProgressComplete ProgressStatus = "complete"
	ProgressFailed   ProgressStatus = "failed"
)

// ProgressEvent reports a section state change.
type ProgressEvent struct {
	RunID   string         `json:"run_id"`
	Section string         `json:"section"`
	Title   string         `json:"title"`
	Status  ProgressStatus `json:"status"`
	Message string         `json:"message,omitempty"`
	Attempt int            `json:"attempt,omitempty"`
	Result  *SectionResult `json:"result,omitempty"`
}

// ProgressCallback receives progress events. Calls are serialized.
type ProgressCallback func(ProgressEvent)

// Options configures an Orchestrator.
type Options struct {
	// RunID identifies the run; a random UUID is used when empty.
	RunID      string
	PoolSize   int
	Retry      RetryPolicy
	Catalog    *sections.Catalog
	OnProgress ProgressCallback
	Logger     *zap.Logger
}

// Orchestrator runs the section generators of one request through a bounded pool.
type Orchestrator struct {
	gen     *Generator
	opts    Options
	catalog *sections.Catalog
	logger  *zap.Logger

	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc

	progressMu sync.Mutex
}

// NewOrchestrator creates an Orchestrator. Zero options get defaults.
func NewOrchestrator(gen *Generator, opts Options) *Orchestrator {
	if opts.PoolSize < 1 {
		opts.PoolSize = DefaultPoolSize
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	catalog := opts.Catalog
	if catalog == nil {
		catalog = sections.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{gen: gen, opts: opts, catalog: catalog, logger: logger}
}

// RunID returns the identifier of the run.
func (o *Orchestrator) RunID() string { return o.opts.RunID }

// Stop asks the run to stop: no new section starts, in-flight ones finish.
// It is safe to call at any time and more than once.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopped = true
	if o.cancel != nil {
		o.cancel()
	}
}

// Stopped reports whether Stop was called.
func (o *Orchestrator) Stopped() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stopped
}

// Validate checks req against catalog and renders every selected prompt. It returns
// the selected specs in request order, a *RequestValidationError or a *sections.TemplateError.
func Validate(catalog *sections.Catalog, req Request) ([]sections.Spec, error) {
	if strings.TrimSpace(req.TargetCompany) == "" {
		return nil, &RequestValidationError{Field: "target_company", Message: "must not be empty"}
	}
	if strings.TrimSpace(req.RequesterCompany) == "" {
		return nil, &RequestValidationError{Field: "requester_company", Message: "must not be empty"}
	}
	if !req.Language.Valid() {
		return nil, &RequestValidationError{Field: "language", Message: fmt.Sprintf("unsupported language %q", req.Language)}
	}
	if len(req.SectionIDs) == 0 {
		return nil, &RequestValidationError{Field: "section_ids", Message: "at least one section is required"}
	}

	seen := make(map[string]bool, len(req.SectionIDs))
	specs := make([]sections.Spec, 0, len(req.SectionIDs))
	for _, id := range req.SectionIDs {
		if seen[id] {
			return nil, &RequestValidationError{Field: "section_ids", Message: fmt.Sprintf("duplicate section %q", id)}
		}
		seen[id] = true
		spec, ok := catalog.Lookup(id)
		if !ok {
			return nil, &RequestValidationError{Field: "section_ids", Message: fmt.Sprintf("unknown section %q", id)}
		}
		if _, err := spec.Render(req.Values()); err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// Run generates every requested section and returns the report. Errors are returned
// only for invalid requests, before any model call is made. Cancelling ctx behaves like Stop.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Report, error) {
	specs, err := Validate(o.catalog, req)
	if err != nil {
		return nil, err
	}

	dispatchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.mu.Lock()
	o.cancel = cancel
	if o.stopped {
		cancel()
	}
	o.mu.Unlock()

	// Started calls are allowed to finish even after a stop; only the per-call timeout bounds them.
	callCtx := context.WithoutCancel(ctx)

	report := &Report{
		RunID:      o.opts.RunID,
		Request:    req,
		PerSection: make(map[string]SectionResult, len(specs)),
		StartedAt:  time.Now(),
	}
	col := &collector{report: report}

	o.logger.Info("starting generation",
		zap.String("run_id", report.RunID),
		zap.String("company", req.TargetCompany),
		zap.String("language", string(req.Language)),
		zap.Int("sections", len(specs)),
		zap.Int("pool_size", o.opts.PoolSize))

	for _, spec := range specs {
		o.emit(ProgressEvent{Section: spec.ID, Title: spec.Title, Status: ProgressPending})
	}

	sem := semaphore.NewWeighted(int64(o.opts.PoolSize))
	var wg sync.WaitGroup
	started := 0
	for _, spec := range specs {
		if err := sem.Acquire(dispatchCtx, 1); err != nil {
			break
		}
		if dispatchCtx.Err() != nil {
			sem.Release(1)
			break
		}
		started++
		wg.Add(1)
		go func(spec sections.Spec) {
			defer wg.Done()
			defer sem.Release(1)
			res := o.generate(callCtx, dispatchCtx, spec, req, col)
			col.record(res)
			o.emitResult(spec, res)
		}(spec)
	}
	wg.Wait()

	for _, spec := range specs[started:] {
		report.NotStarted = append(report.NotStarted, spec.ID)
	}
	col.mu.Lock()
	report.Interrupted = len(report.NotStarted) > 0 || col.interrupted
	col.mu.Unlock()
	report.FinishedAt = time.Now()
	report.WallClockSeconds = report.FinishedAt.Sub(report.StartedAt).Seconds()
	report.finalize()

	o.logger.Info("generation finished",
		zap.String("run_id", report.RunID),
		zap.String("status", string(report.OverallStatus)),
		zap.Int("input_tokens", report.TotalInputTokens),
		zap.Int("output_tokens", report.TotalOutputTokens),
		zap.Bool("interrupted", report.Interrupted),
		zap.Strings("not_started", report.NotStarted))
	return report, nil
}

// generate runs spec with the retry policy. Backoff waits are abandoned on stop.
func (o *Orchestrator) generate(callCtx, dispatchCtx context.Context, spec sections.Spec, req Request, col *collector) SectionResult {
	maxAttempts := o.opts.Retry.attempts()
	var res SectionResult
	elapsed := 0.0
	for attempt := 1; ; attempt++ {
		o.emit(ProgressEvent{Section: spec.ID, Title: spec.Title, Status: ProgressWorking, Attempt: attempt,
			Message: fmt.Sprintf("generating %s (attempt %d/%d)", spec.Title, attempt, maxAttempts)})

		res = o.gen.Generate(callCtx, spec, req)
		elapsed += res.ElapsedSeconds
		res.ElapsedSeconds = elapsed
		res.Attempts = attempt

		if res.Succeeded() || !res.Error.Retryable() || attempt >= maxAttempts {
			return res
		}

		wait := o.opts.Retry.delay(attempt)
		o.logger.Info("retrying section",
			zap.String("section", spec.ID),
			zap.String("kind", string(res.Error)),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait))

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-dispatchCtx.Done():
			timer.Stop()
			col.markInterrupted()
			return res
		}
	}
}

func (o *Orchestrator) emitResult(spec sections.Spec, res SectionResult) {
	ev := ProgressEvent{Section: spec.ID, Title: spec.Title, Attempt: res.Attempts, Result: &res}
	if res.Succeeded() {
		ev.Status = ProgressComplete
		ev.Message = fmt.Sprintf("%s completed in %.1fs", spec.Title, res.ElapsedSeconds)
	} else {
		ev.Status = ProgressFailed
		ev.Message = fmt.Sprintf("%s failed: %s", spec.Title, res.Error)
	}
	o.emit(ev)
}

func (o *Orchestrator) emit(ev ProgressEvent) {
	if o.opts.OnProgress == nil {
		return
	}
	ev.RunID = o.opts.RunID
	o.progressMu.Lock()
	defer o.progressMu.Unlock()
	o.opts.OnProgress(ev)
}

// collector records each result exactly once.
type collector struct {
	mu          sync.Mutex
	report      *Report
	interrupted bool
}

func (c *collector) record(res SectionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.report.PerSection[res.ID]; dup {
		panic(fmt.Sprintf("section %s recorded twice", res.ID))
	}
	c.report.PerSection[res.ID] = res
}

func (c *collector) markInterrupted() {
	c.mu.Lock()
	c.interrupted = true
	c.mu.Unlock()
}

// IsValidationError reports whether err is a request or template error raised before work started.
func IsValidationError(err error) bool {
	var reqErr *RequestValidationError
	var tmplErr *sections.TemplateError
	return errors.As(err, &reqErr) || errors.As(err, &tmplErr)
}
