// main.go
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gewnthar/favdemand/config"
	"github.com/gewnthar/favdemand/database"
	"github.com/gewnthar/favdemand/handlers"
	"github.com/gewnthar/favdemand/services"
	"github.com/gewnthar/favdemand/sources"
	"github.com/gewnthar/favdemand/utils"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

// Config file locations tried in order when --config is not given.
var defaultConfigPaths = []string{"backend/config/config.yaml", "config/config.yaml"}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "favdemand",
		Short:         "Favorites demand analytics over marketplace exports",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (default: first of "+fmt.Sprint(defaultConfigPaths)+")")

	root.AddCommand(newServeCmd(&configPath), newIngestCmd(&configPath))
	return root
}

func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	for _, p := range defaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// app holds the wired services shared by every subcommand.
type app struct {
	cfg       *config.Config
	log       *utils.Logger
	db        *sql.DB
	store     *database.CacheStore
	ingest    *services.IngestionService
	loader    *services.Loader
	products  *services.ProductService
	analytics *services.AnalyticsService
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(resolveConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}
	log, err := utils.NewLogger(cfg.Logging.Mode)
	if err != nil {
		return nil, fmt.Errorf("error building logger: %w", err)
	}

	db, dialect, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("error opening cache database: %w", err)
	}
	store := database.NewCacheStore(db, dialect, cfg.Cache.StrictKey, log)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error preparing cache schema: %w", err)
	}

	ingest := services.NewIngestionService(services.IngestionOptions{
		DataDir:    cfg.Data.Dir,
		Extensions: cfg.Data.Extensions,
		Workers:    cfg.Data.Workers,
		QuickStart: cfg.Data.QuickStartFile,
	}, store, log)
	loader := services.NewLoader(ingest, services.NewPlaceholderGenerator(nil, nil), services.LoaderOptions{
		PlaceholderCount: cfg.Data.PlaceholderCount,
		WarmupDelay:      cfg.Data.WarmupDelay,
	}, log)

	log.Info("Configuration loaded",
		"port", cfg.Server.Port,
		"data_dir", cfg.Data.Dir,
		"cache_driver", string(dialect),
		"strict_cache_key", cfg.Cache.StrictKey)

	return &app{
		cfg:       cfg,
		log:       log,
		db:        db,
		store:     store,
		ingest:    ingest,
		loader:    loader,
		products:  services.NewProductService(loader, store, log),
		analytics: services.NewAnalyticsService(loader, nil, log),
	}, nil
}

func (a *app) close() {
	a.loader.Stop()
	if err := a.db.Close(); err != nil {
		a.log.Warn("Closing cache database failed", "err", err)
	}
	a.log.Sync()
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, loading data in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.close()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	if a.cfg.Logging.Mode == "prod" || a.cfg.Logging.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	a.loader.Start(ctx)

	router := handlers.NewRouter(handlers.RouterConfig{
		Products:       a.products,
		Analytics:      a.analytics,
		Log:            a.log,
		CORSOrigins:    a.cfg.Server.CORSOrigins,
		AdminRateLimit: a.cfg.Server.AdminRateLimitRPS,
		AdminRateBurst: a.cfg.Server.AdminRateBurst,
	})
	srv := &http.Server{
		Addr:              ":" + a.cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("Server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("error starting server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func newIngestCmd(configPath *string) *cobra.Command {
	var (
		force bool
		urls  []string
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run the ingestion pipeline once and refresh the persistent cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			out := cmd.OutOrStdout()
			for _, u := range urls {
				p, err := sources.Fetch(cmd.Context(), nil, u, a.cfg.Data.Dir)
				if err != nil {
					return err
				}
				a.log.Info("Fetched source file", "url", u, "path", p)
				fmt.Fprintf(out, "fetched:    %s\n", p)
			}

			start := time.Now()
			res, err := a.ingest.Ingest(cmd.Context(), force)
			if err != nil {
				return fmt.Errorf("ingestion failed: %w", err)
			}
			fmt.Fprintf(out, "key:        %s\n", res.Key)
			fmt.Fprintf(out, "from cache: %t\n", res.FromCache)
			fmt.Fprintf(out, "rows:       %d\n", len(res.Rows))
			fmt.Fprintf(out, "files:      %d\n", len(res.Files))
			for _, f := range res.Failed {
				fmt.Fprintf(out, "failed:     %s\n", f)
			}
			fmt.Fprintf(out, "took:       %s\n", time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Bypass the persistent cache and re-read every source file")
	cmd.Flags().StringSliceVar(&urls, "fetch", nil, "Download a remote export into the data directory before ingesting (repeatable)")
	return cmd
}
