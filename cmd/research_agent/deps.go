package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/supervity/company-research/internal/config"
	"github.com/supervity/company-research/internal/db"
	"github.com/supervity/company-research/internal/llm"
	"github.com/supervity/company-research/internal/rendering"
	"github.com/supervity/company-research/internal/storage"
)

// newClient builds the model client. Tests replace it with a scripted fake.
var newClient = func(ctx context.Context, cfg *llm.Config) (llm.Client, error) {
	return llm.NewClient(ctx, cfg)
}

// stores bundles the section stores selected by the configuration.
type stores struct {
	// files always backs the report directories.
	files *storage.FileStore
	// store is what sections are written to and read from.
	store storage.Store
	// db is set when a database URL is configured.
	db      *db.DB
	closers []func()
}

// openStores opens the file store plus the configured SQLite or Postgres stores. Section
// writes go to every store; reads come from the first store that has the key.
func openStores(ctx context.Context, cfg *config.Config, log *zap.Logger) (*stores, error) {
	files, err := storage.NewFileStore(cfg.OutputDir)
	if err != nil {
		return nil, err
	}
	s := &stores{files: files}

	var all []storage.Store
	if cfg.Store == "sqlite" {
		lite, err := storage.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		s.closers = append(s.closers, func() { _ = lite.Close() })
		all = append(all, lite)
		log.Debug("using sqlite section store", zap.String("path", cfg.SQLitePath))
	}
	if cfg.DatabaseURL != "" {
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		s.closers = append(s.closers, database.Close)
		if err := database.Migrate(ctx); err != nil {
			s.close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		s.db = database
		all = append(all, database.SectionTexts())
		log.Debug("using postgres section store")
	}
	all = append(all, files)

	s.store = storage.Tee(all...)
	return s, nil
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// newRenderer builds the PDF renderer named by the configuration.
func newRenderer(cfg *config.Config) (rendering.Renderer, error) {
	opts := rendering.Options{Timeout: cfg.RenderTimeout}
	if cfg.Renderer == rendering.EngineChrome {
		opts.ExecPath = cfg.ChromePath
	}
	r, err := rendering.New(cfg.Renderer, opts)
	if err != nil {
		return nil, err
	}
	if w, ok := r.(*rendering.WeasyPrintRenderer); ok && !w.Available() {
		return nil, fmt.Errorf("renderer %q selected but the weasyprint binary was not found", cfg.Renderer)
	}
	return r, nil
}
