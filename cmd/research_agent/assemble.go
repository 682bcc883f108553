package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/supervity/company-research/internal/document"
	"github.com/supervity/company-research/internal/generation"
	"github.com/supervity/company-research/internal/observability"
	"github.com/supervity/company-research/internal/schemas"
	"github.com/supervity/company-research/internal/sections"
	"github.com/supervity/company-research/internal/storage"
	"github.com/supervity/company-research/internal/summary"
	"github.com/supervity/company-research/internal/validation"
)

var assembleCmd = &cobra.Command{
	Use:   "assemble <report-dir>",
	Short: "Rebuild the report document from an existing report directory",
	Long: `Reads the section markdown files in a report directory written by "generate" and
rebuilds report.html and report.pdf. Company, language and section order come from
generation_config.yaml when present; flags override them.

With --watch the document is rebuilt whenever a markdown file changes.`,
	Args: cobra.ExactArgs(1),
	RunE: runAssemble,
}

var (
	asmCompany   string
	asmRequester string
	asmLanguage  string
	asmRenderer  string
	asmNoSummary bool
	asmWatch     bool
	asmCheck     bool
	asmDebounce  time.Duration
)

func init() {
	f := assembleCmd.Flags()
	f.StringVarP(&asmCompany, "company", "c", "", "Target company (default: from generation_config.yaml)")
	f.StringVar(&asmRequester, "requester", "", "Company the report is prepared for")
	f.StringVarP(&asmLanguage, "language", "l", "", "Report language (default: from generation_config.yaml)")
	f.StringVar(&asmRenderer, "renderer", "", "PDF renderer: chrome, weasyprint or none")
	f.BoolVar(&asmNoSummary, "no-summary", false, "Leave out the executive summary even if it exists")
	f.BoolVarP(&asmWatch, "watch", "w", false, "Rebuild when markdown files change")
	f.BoolVar(&asmCheck, "check", false, "Only report markdown defects in the section files; build nothing")
	f.DurationVar(&asmDebounce, "debounce", 500*time.Millisecond, "Quiet period before a watched rebuild")
	rootCmd.AddCommand(assembleCmd)
}

// assemblePlan is everything needed to rebuild one directory.
type assemblePlan struct {
	dir   string
	store *storage.FileStore
	input document.BuildInput
}

// planAssemble resolves the report metadata for dir from its generation config and flags.
func planAssemble(dir, company, requester, language string, includeSummary bool, catalog *sections.Catalog) (*assemblePlan, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("report directory not found: %s", dir)
	}

	var ids []string
	if gc, err := generation.ReadGenerationConfig(dir); err == nil {
		if company == "" {
			company = gc.Request.TargetCompany
		}
		if requester == "" {
			requester = gc.Request.RequesterCompany
		}
		if language == "" {
			language = string(gc.Request.Language)
		}
		ids = gc.Request.SectionIDs
	}
	if company == "" || language == "" {
		return nil, errors.New("no generation_config.yaml in the directory; pass --company and --language")
	}
	lang, err := sections.ParseLanguage(language)
	if err != nil {
		return nil, err
	}

	stored, err := storage.ListDir(dir)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		have := make(map[string]bool, len(stored))
		for _, id := range stored {
			have[id] = true
		}
		for _, id := range catalog.IDs() {
			if have[id] {
				ids = append(ids, id)
			}
		}
	}
	hasSummary := false
	for _, id := range stored {
		hasSummary = hasSummary || id == summary.SectionID
	}

	files, err := storage.NewFileStore(filepath.Dir(dir))
	if err != nil {
		return nil, err
	}
	if files.Dir(company, string(lang)) != dir {
		return nil, fmt.Errorf("directory %s does not hold the %s report for %s (expected %s)",
			dir, lang, company, files.Dir(company, string(lang)))
	}

	return &assemblePlan{
		dir:   dir,
		store: files,
		input: document.BuildInput{
			Company:        company,
			Requester:      requester,
			Language:       lang,
			SectionIDs:     ids,
			IncludeSummary: includeSummary && hasSummary,
			OutputDir:      dir,
		},
	}, nil
}

func runAssemble(cmd *cobra.Command, args []string) error {
	cfg := *appCfg
	if cmd.Flags().Changed("renderer") {
		cfg.Renderer = asmRenderer
	}
	if asmRequester == "" {
		asmRequester = cfg.RequesterCompany
	}
	catalog := sections.Default()
	plan, err := planAssemble(args[0], asmCompany, asmRequester, asmLanguage, !asmNoSummary, catalog)
	if err != nil {
		return err
	}
	if asmCheck {
		return checkSections(cmd.OutOrStdout(), plan)
	}
	renderer, err := newRenderer(&cfg)
	if err != nil {
		return err
	}

	builder := document.NewBuilder(plan.store, catalog, renderer, logger)
	printer := observability.NewPrinter(cmd.OutOrStdout())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := rebuild(ctx, builder, plan, printer); err != nil {
		return err
	}
	if !asmWatch {
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return watchAndRebuild(ctx, plan.dir, asmDebounce, func() {
		if err := rebuild(ctx, builder, plan, printer); err != nil {
			logger.Error("rebuild failed", zap.Error(err))
		}
	})
}

// checkSections validates every planned section file and lists what a build would repair.
func checkSections(w io.Writer, plan *assemblePlan) error {
	ids := plan.input.SectionIDs
	if plan.input.IncludeSummary {
		ids = append([]string{summary.SectionID}, ids...)
	}
	total := 0
	for _, id := range ids {
		res, err := validation.ValidateFile(plan.store.Path(storage.Key{
			Company:   plan.input.Company,
			Language:  string(plan.input.Language),
			SectionID: id,
		}))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		for _, issue := range res.Issues {
			fmt.Fprintf(w, "%s.md: %s\n", id, issue) //nolint:errcheck
		}
		total += len(res.Issues)
	}
	fmt.Fprintf(w, "%d sections checked, %d issues\n", len(ids), total) //nolint:errcheck

	usage := filepath.Join(plan.dir, generation.UsageReportFile)
	if _, err := os.Stat(usage); err == nil {
		if err := schemas.ValidateFile(schemas.UsageReportSchema, usage); err != nil {
			return fmt.Errorf("%s: %w", generation.UsageReportFile, err)
		}
		fmt.Fprintf(w, "%s matches its schema\n", generation.UsageReportFile) //nolint:errcheck
	}
	return nil
}

func rebuild(ctx context.Context, builder *document.Builder, plan *assemblePlan, printer *observability.Printer) error {
	in := plan.input
	in.GeneratedAt = time.Now()
	res, err := builder.Build(ctx, in)
	if err != nil {
		return fmt.Errorf("failed to build document: %w", err)
	}
	printer.PrintBuild(res)
	return nil
}

// isSectionFile reports whether a watch event concerns a section markdown file.
func isSectionFile(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, ".md") && !strings.HasPrefix(base, ".")
}

// watchAndRebuild calls rebuild after markdown changes in dir settle for debounce. It
// returns when ctx is done.
func watchAndRebuild(ctx context.Context, dir string, debounce time.Duration, rebuild func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	logger.Info("watching for changes", zap.String("dir", dir))

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isSectionFile(ev.Name) || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) {
				continue
			}
			logger.Debug("section changed", zap.String("file", ev.Name), zap.String("op", ev.Op.String()))
			timer.Reset(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", zap.Error(err))
		case <-timer.C:
			rebuild()
		}
	}
}
