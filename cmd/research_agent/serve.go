package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/supervity/company-research/internal/generation"
	"github.com/supervity/company-research/internal/llm"
	"github.com/supervity/company-research/internal/sections"
	"github.com/supervity/company-research/internal/server"
	"github.com/supervity/company-research/internal/server/ratelimit"
)

var (
	serveAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that exposes REST endpoints for generating and browsing research reports.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Address to listen on (default from config, :8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := *appCfg
	if serveAddr != "" {
		cfg.ListenAddr = serveAddr
	}
	lang, err := sections.ParseLanguage(cfg.Language)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	srvCfg := server.Config{
		Addr:       cfg.ListenAddr,
		Client:     client,
		Store:      st.store,
		Catalog:    sections.Default(),
		OutputRoot: filepath.Join(cfg.OutputDir, "runs"),
		Renderer:   renderer,
		Defaults: server.Defaults{
			RequesterCompany: cfg.RequesterCompany,
			Language:         lang,
			ModelName:        cfg.LLM().GetModel(llm.TierStandard),
			Temperature:      cfg.Temperature,
			Summary:          cfg.Summary,
			PoolSize:         cfg.PoolSize,
			Retry:            generation.RetryPolicy{MaxAttempts: cfg.MaxAttempts, BaseDelay: cfg.RetryBaseDelay},
			Provider:         cfg.Provider,
			CallTimeout:      cfg.CallTimeout,
		},
		RateLimit:   ratelimit.NewConfig(cfg.RateLimitRPS, cfg.RateLimitBurst, nil),
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,
	}
	if st.db != nil {
		srvCfg.DB = st.db
	}

	srv, err := server.New(srvCfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return srv.Start(ctx)
}
