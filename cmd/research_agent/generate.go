package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/supervity/company-research/internal/config"
	"github.com/supervity/company-research/internal/generation"
	"github.com/supervity/company-research/internal/llm"
	"github.com/supervity/company-research/internal/logging"
	"github.com/supervity/company-research/internal/observability"
	"github.com/supervity/company-research/internal/pipeline"
	"github.com/supervity/company-research/internal/sections"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a research report for a company",
	Long: `Generates the selected report sections concurrently, stores each as markdown, then
builds the report document and the token usage files.

The first Ctrl-C stops cooperatively: sections already running finish, no new ones
start. A second Ctrl-C exits immediately with code 130.

Exit codes: 0 all sections succeeded, 2 some failed, 1 all failed or an error occurred.`,
	RunE: runGenerate,
}

var (
	genCompany     string
	genRequester   string
	genLanguage    string
	genSections    []string
	genAll         bool
	genModel       string
	genTemperature float64
	genPoolSize    int
	genTimeout     time.Duration
	genRetries     int
	genOutput      string
	genStore       string
	genDBURL       string
	genSummary     bool
	genRenderer    string
)

// exitFunc is os.Exit; tests replace it.
var exitFunc = os.Exit

func init() {
	f := generateCmd.Flags()
	f.StringVarP(&genCompany, "company", "c", "", "Target company to research (required)")
	f.StringVar(&genRequester, "requester", "", "Company the report is prepared for")
	f.StringVarP(&genLanguage, "language", "l", "", "Output language, by name or menu number 1-10")
	f.StringSliceVarP(&genSections, "sections", "s", nil, "Comma-separated section ids")
	f.BoolVar(&genAll, "all", false, "Generate every section in the catalog")
	f.StringVar(&genModel, "model", "", "Model name for section generation")
	f.Float64Var(&genTemperature, "temperature", 0, "Sampling temperature")
	f.IntVar(&genPoolSize, "pool-size", 0, "Maximum concurrent model calls")
	f.DurationVar(&genTimeout, "timeout", 0, "Per-call timeout")
	f.IntVar(&genRetries, "retries", 0, "Retries per section for timeouts and rate limits")
	f.StringVarP(&genOutput, "output", "o", "", "Output root directory")
	f.StringVar(&genStore, "store", "", "Section store: file or sqlite")
	f.StringVar(&genDBURL, "db-url", "", "PostgreSQL URL for run history (defaults to DATABASE_URL)")
	f.BoolVar(&genSummary, "summary", false, "Generate an executive summary")
	f.StringVar(&genRenderer, "renderer", "", "PDF renderer: chrome, weasyprint or none")

	_ = generateCmd.MarkFlagRequired("company")
	generateCmd.MarkFlagsMutuallyExclusive("sections", "all")
	generateCmd.MarkFlagsOneRequired("sections", "all")

	rootCmd.AddCommand(generateCmd)
}

// applyGenerateFlags copies explicitly set flags over the loaded configuration.
func applyGenerateFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("requester") {
		cfg.RequesterCompany = genRequester
	}
	if f.Changed("language") {
		cfg.Language = genLanguage
	}
	if f.Changed("model") {
		cfg.Model = genModel
	}
	if f.Changed("temperature") {
		cfg.Temperature = genTemperature
	}
	if f.Changed("pool-size") {
		cfg.PoolSize = genPoolSize
	}
	if f.Changed("timeout") {
		cfg.CallTimeout = genTimeout
	}
	if f.Changed("retries") {
		cfg.MaxAttempts = genRetries + 1
	}
	if f.Changed("output") {
		cfg.OutputDir = genOutput
	}
	if f.Changed("store") {
		cfg.Store = genStore
	}
	if f.Changed("db-url") {
		cfg.DatabaseURL = genDBURL
	}
	if f.Changed("summary") {
		cfg.Summary = genSummary
	}
	if f.Changed("renderer") {
		cfg.Renderer = genRenderer
	}
	return cfg.Validate()
}

// buildRequest turns the configuration and section selection into a generation request.
func buildRequest(cfg *config.Config, catalog *sections.Catalog, company string, ids []string, all bool) (generation.Request, error) {
	lang, err := sections.ParseLanguage(cfg.Language)
	if err != nil {
		return generation.Request{}, err
	}
	if all {
		ids = catalog.IDs()
	}
	var cleaned []string
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			cleaned = append(cleaned, id)
		}
	}
	return generation.Request{
		TargetCompany:    strings.TrimSpace(company),
		RequesterCompany: cfg.RequesterCompany,
		Language:         lang,
		SectionIDs:       cleaned,
		Model: generation.ModelConfig{
			ModelName:   cfg.ModelName(),
			Temperature: cfg.Temperature,
		},
	}, nil
}

// exitCodeFor maps the overall status to the process exit code.
func exitCodeFor(report *generation.Report) int {
	switch report.OverallStatus {
	case generation.AllSucceeded:
		return 0
	case generation.PartialFailure:
		return 2
	default:
		return 1
	}
}

// stopper lets a signal stop a run whose orchestrator may not exist yet.
type stopper struct {
	mu      sync.Mutex
	orch    *generation.Orchestrator
	pending bool
}

func (s *stopper) attach(o *generation.Orchestrator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orch = o
	if s.pending {
		o.Stop()
	}
}

func (s *stopper) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.orch != nil {
		s.orch.Stop()
		return
	}
	s.pending = true
}

// handleSignals stops the run on the first signal and exits with 130 on the second.
func handleSignals(sigCh <-chan os.Signal, done <-chan struct{}, st *stopper, printer *observability.Printer) {
	select {
	case <-sigCh:
		printer.Notice("Stopping: running sections will finish, no new sections will start. Press Ctrl-C again to exit now.")
		st.stop()
	case <-done:
		return
	}
	select {
	case <-sigCh:
		exitFunc(130)
	case <-done:
	}
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	cfg := *appCfg
	if err := applyGenerateFlags(cmd, &cfg); err != nil {
		return err
	}
	catalog := sections.Default()
	req, err := buildRequest(&cfg, catalog, genCompany, genSections, genAll)
	if err != nil {
		return err
	}
	if _, err := generation.Validate(catalog, req); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()
	printer := observability.NewPrinter(out)

	st, err := openStores(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	client, err := newClient(ctx, cfg.LLM())
	if err != nil {
		return fmt.Errorf("failed to create model client: %w", err)
	}
	defer client.Close()

	renderer, err := newRenderer(&cfg)
	if err != nil {
		return err
	}

	printer.PrintRequest(req, catalog)

	log := logger
	stop := &stopper{}
	done := make(chan struct{})
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go handleSignals(sigCh, done, stop, printer)
	defer close(done)

	opts := pipeline.RunOptions{
		Request:     req,
		Client:      client,
		Store:       st.store,
		Catalog:     catalog,
		PoolSize:    cfg.PoolSize,
		Retry:       generation.RetryPolicy{MaxAttempts: cfg.MaxAttempts, BaseDelay: cfg.RetryBaseDelay},
		Provider:    cfg.Provider,
		CallTimeout: cfg.CallTimeout,
		Summary:     cfg.Summary,
		OutputDir:   st.files.Dir(req.TargetCompany, string(req.Language)),
		Renderer:    renderer,
		Logger:      logger,
		OnStart: func(o *generation.Orchestrator) {
			stop.attach(o)
			log = logging.ForRun(logger, o.RunID(), req.TargetCompany)
		},
		OnProgress: func(ev pipeline.ProgressEvent) {
			if ev.Section != nil {
				printer.PrintProgress(*ev.Section)
				return
			}
			log.Debug("pipeline stage", zap.String("stage", string(ev.Stage)), zap.String("message", ev.Message))
		},
	}
	opts.SummaryModel = cfg.LLM().GetModel(llm.TierLite)
	if st.db != nil {
		opts.Recorder = st.db
	}

	res, err := pipeline.RunPipeline(ctx, opts)
	if err != nil {
		return err
	}

	printer.PrintReport(res.Report, catalog)
	printer.PrintBuild(res.Document)
	for _, w := range res.Warnings {
		log.Warn("run completed with warning", zap.Error(w))
	}
	if res.UsagePath != "" {
		printer.Notice("Usage report: " + res.UsagePath)
	}

	if code := exitCodeFor(res.Report); code != 0 {
		return &exitError{code: code}
	}
	return nil
}
