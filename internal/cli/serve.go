package cli

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

	"stockbook/m/internal/api"
	"stockbook/m/internal/seed"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var shutdownTO time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Initialize the ledger file, optionally seed the item catalog, and serve
the JSON API until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts, cmd, shutdownTO)
		},
	}
	cmd.Flags().DurationVar(&shutdownTO, "shutdown-timeout", 15*time.Second, "graceful shutdown timeout")
	return cmd
}

func runServe(opts *RootOptions, cmd *cobra.Command, shutdownTO time.Duration) error {
	cfg := opts.Config
	log := opts.Logger

	store, err := opts.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := store.InitializeStore(ctx); err != nil {
		return ledgerExit("initialize ledger", err)
	}
	if cfg.CatalogCSV != "" {
		if _, err := seed.LoadCatalogFile(ctx, store, cfg.CatalogCSV, log); err != nil {
			log.Warn("catalog not loaded", "path", cfg.CatalogCSV, "error", err)
		}
	}

	handler, err := api.New(store, api.Options{
		Secret:            cfg.Secret,
		OperatorUser:      cfg.OperatorUser,
		OperatorPassword:  cfg.OperatorPassword,
		LowStockThreshold: cfg.LowStockThreshold,
		HorizonDays:       cfg.DueHorizonDays,
		CORSOrigins:       cfg.CORSOrigins,
		Logger:            log,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "configure API", err)
	}
	if cfg.Secret == "dev_secret" || cfg.OperatorPassword == "admin" {
		log.Warn("using development credentials, set SECRET and OPERATOR_PASSWORD")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("stockbook server starting", "addr", srv.Addr, "db", cfg.DatabasePath, "version", version.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		log.Error("server error", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTO)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown incomplete", "error", err)
	}
	log.Info("shutdown complete")

	if serveErr != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("serve on %s", srv.Addr), serveErr)
	}
	return nil
}
