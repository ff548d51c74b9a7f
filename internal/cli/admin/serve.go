package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/docsage/internal/api/handlers"
	"github.com/cloo-solutions/docsage/internal/cli"
	"github.com/cloo-solutions/docsage/internal/jobs"
	"github.com/cloo-solutions/docsage/internal/server"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the docsage API server exposing /ask, /search and /documents",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides DOCSAGE_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().String("migrations", defaultMigrationsDir, "Directory containing SQL migrations")
	cli.AnnotateEnv(cmd.Flags(), "port", "DOCSAGE_PORT")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log, flush, err := loadConfig()
	if err != nil {
		return err
	}
	defer flush()

	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}

	if noMigrate, _ := cmd.Flags().GetBool("no-migrate"); !noMigrate {
		dir, _ := cmd.Flags().GetString("migrations")
		if err := migrateUp(cfg.DatabaseURL, dir, log); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	d, err := newDaemon(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer d.Close()

	store, evictor, err := d.dedupStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to create dedup store: %w", err)
	}

	var sweeper *jobs.Worker
	if evictor != nil {
		sweeper = jobs.NewWorker("dedup-sweeper", jobs.NewDedupSweeper(evictor, log), cfg.DedupSweepInterval, log)
		go sweeper.Start(ctx)
	}

	var raw handlers.RawPageArchive
	if d.raw != nil {
		raw = d.raw
	}

	router := server.NewRouter(server.RouterConfig{
		AskHandler:      handlers.NewAskHandler(d.answers, d.deduplicator(store), log),
		SearchHandler:   handlers.NewSearchHandler(d.retriever),
		DocumentHandler: handlers.NewDocumentHandler(d.ingest, d.documents, raw),
		Logger:          log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info("shutting down")

	if sweeper != nil {
		sweeper.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exited")
	return nil
}
