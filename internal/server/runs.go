package server

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/supervity/company-research/internal/db"
	"github.com/supervity/company-research/internal/generation"
	"github.com/supervity/company-research/internal/pipeline"
)

// DocumentView tells which report files a run has.
type DocumentView struct {
	HTML bool `json:"html"`
	PDF  bool `json:"pdf"`
}

// RunView is the API representation of a run.
type RunView struct {
	RunID       string             `json:"run_id"`
	Status      string             `json:"status"`
	Company     string             `json:"company"`
	Requester   string             `json:"requester"`
	Language    string             `json:"language"`
	Sections    []string           `json:"sections"`
	CreatedAt   time.Time          `json:"created_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
	Report      *generation.Report `json:"report,omitempty"`
	Document    *DocumentView      `json:"document,omitempty"`
	Warnings    []string           `json:"warnings,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// run is the in-process state of a report generation.
type run struct {
	mu          sync.Mutex
	id          string
	req         generation.Request
	outputDir   string
	status      string
	orch        *generation.Orchestrator
	stopPending bool
	result      *pipeline.Result
	err         error
	createdAt   time.Time
	completedAt *time.Time
	done        chan struct{}
}

func newRun(id string, req generation.Request, outputDir string, now time.Time) *run {
	return &run{
		id:        id,
		req:       req,
		outputDir: outputDir,
		status:    db.RunStatusRunning,
		createdAt: now,
		done:      make(chan struct{}),
	}
}

// attach records the orchestrator; a stop requested before it existed is applied now.
func (r *run) attach(o *generation.Orchestrator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orch = o
	if r.stopPending {
		o.Stop()
	}
}

// stop asks the run to stop. It reports false when the run already finished.
func (r *run) stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != db.RunStatusRunning {
		return false
	}
	if r.orch != nil {
		r.orch.Stop()
	} else {
		r.stopPending = true
	}
	return true
}

func (r *run) finish(res *pipeline.Result, err error, now time.Time) {
	r.mu.Lock()
	r.result = res
	r.err = err
	r.completedAt = &now
	switch {
	case err != nil:
		r.status = db.RunStatusFailed
	default:
		stopped := r.stopPending || (r.orch != nil && r.orch.Stopped())
		r.status = pipeline.RunStatus(res.Report, stopped)
	}
	r.mu.Unlock()
	close(r.done)
}

func (r *run) running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status == db.RunStatusRunning
}

func (r *run) view() RunView {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := RunView{
		RunID:       r.id,
		Status:      r.status,
		Company:     r.req.TargetCompany,
		Requester:   r.req.RequesterCompany,
		Language:    string(r.req.Language),
		Sections:    r.req.SectionIDs,
		CreatedAt:   r.createdAt,
		CompletedAt: r.completedAt,
	}
	if r.err != nil {
		v.Error = r.err.Error()
	}
	if r.result != nil {
		v.Report = r.result.Report
		if d := r.result.Document; d != nil {
			v.Document = &DocumentView{HTML: d.HTMLPath != "", PDF: d.PDFPath != ""}
		}
		for _, w := range r.result.Warnings {
			v.Warnings = append(v.Warnings, w.Error())
		}
	}
	return v
}

// viewFromDB converts a persisted run.
func viewFromDB(dr *db.Run) RunView {
	v := RunView{
		RunID:       dr.ID,
		Status:      dr.Status,
		Company:     dr.Company,
		Requester:   dr.Requester,
		Language:    dr.Language,
		Sections:    dr.SectionIDs,
		CreatedAt:   dr.CreatedAt,
		CompletedAt: dr.CompletedAt,
	}
	if dr.ErrorMessage != nil {
		v.Error = *dr.ErrorMessage
	}
	if len(dr.Report) > 0 {
		var report generation.Report
		if err := json.Unmarshal(dr.Report, &report); err == nil {
			v.Report = &report
		}
	}
	return v
}

// registry tracks runs started by this process.
type registry struct {
	mu   sync.RWMutex
	runs map[string]*run
}

func newRegistry() *registry {
	return &registry{runs: make(map[string]*run)}
}

func (g *registry) add(r *run) {
	g.mu.Lock()
	g.runs[r.id] = r
	g.mu.Unlock()
}

func (g *registry) get(id string) (*run, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.runs[id]
	return r, ok
}

func (g *registry) remove(id string) {
	g.mu.Lock()
	delete(g.runs, id)
	g.mu.Unlock()
}

// all returns the runs newest first.
func (g *registry) all() []*run {
	g.mu.RLock()
	out := make([]*run, 0, len(g.runs))
	for _, r := range g.runs {
		out = append(out, r)
	}
	g.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].createdAt.Equal(out[j].createdAt) {
			return out[i].id < out[j].id
		}
		return out[i].createdAt.After(out[j].createdAt)
	})
	return out
}

// list applies the same filters as db.ListRuns to the in-process runs.
func (g *registry) list(f db.RunFilter) []RunView {
	limit := f.Limit
	if limit <= 0 {
		limit = db.DefaultListLimit
	}
	var out []RunView
	skipped := 0
	for _, r := range g.all() {
		v := r.view()
		if f.Company != "" && !strings.EqualFold(v.Company, f.Company) {
			continue
		}
		if f.Status != "" && v.Status != f.Status {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		v.Report = nil
		out = append(out, v)
		if len(out) == limit {
			break
		}
	}
	return out
}

// stopAll stops every running run and returns their done channels.
func (g *registry) stopAll() []chan struct{} {
	var waits []chan struct{}
	for _, r := range g.all() {
		if r.stop() {
			waits = append(waits, r.done)
		}
	}
	return waits
}
