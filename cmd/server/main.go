package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/freightdesk/shipledger/history"
	"github.com/freightdesk/shipledger/internal/auth"
	"github.com/freightdesk/shipledger/internal/config"
	"github.com/freightdesk/shipledger/internal/db"
	"github.com/freightdesk/shipledger/internal/extraction"
	"github.com/freightdesk/shipledger/internal/filestore"
	"github.com/freightdesk/shipledger/internal/httpapi"
	"github.com/freightdesk/shipledger/ledger/postgresengine"
	"github.com/freightdesk/shipledger/restore"
	"github.com/freightdesk/shipledger/validation"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err.Error())
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		return err
	}

	if err := db.RunMigrations(cfg.Database.URL); err != nil {
		return err
	}

	validator := validation.NewValidator(validation.CollectAll)

	shipmentLedger, closeDB, err := newShipmentLedger(ctx, cfg,
		postgresengine.WithTableName(cfg.Ledger.TableName),
		postgresengine.WithLogger(logger),
		postgresengine.WithSnapshotValidator(validator),
		postgresengine.WithMaxAppendAttempts(cfg.Ledger.MaxAppendAttempts),
	)
	if err != nil {
		return err
	}
	defer closeDB()

	historyService := history.NewService(shipmentLedger)
	restorer := restore.NewOrchestrator(shipmentLedger)
	authenticator := auth.NewAuthenticator(cfg.Auth)

	files, err := filestore.NewStore(cfg.Uploads.Dir)
	if err != nil {
		return err
	}

	var extractor *extraction.FieldExtractor
	if cfg.Extraction.OpenAIAPIKey != "" {
		extractor, err = extraction.NewFieldExtractor(cfg.Extraction.OpenAIAPIKey, cfg.Extraction.Model)
		if err != nil {
			return err
		}
	} else {
		logger.Warn("no OpenAI API key configured, document extraction disabled")
	}

	apiServer := httpapi.NewServer(httpapi.ServerConfig{
		Appender:       shipmentLedger,
		History:        historyService,
		Restorer:       restorer,
		Authenticator:  authenticator,
		Extractor:      extractor,
		Files:          files,
		Logger:         logger,
		MaxUploadBytes: cfg.Uploads.MaxBytes,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      apiServer.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Info("starting server", "addr", cfg.Server.Addr)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("server exited")

	return nil
}

// newShipmentLedger connects with the configured database driver and
// builds the ledger on it. The returned func closes the connection.
func newShipmentLedger(
	ctx context.Context,
	cfg config.Config,
	options ...postgresengine.Option,
) (postgresengine.Ledger, func(), error) {

	switch cfg.Database.Driver {
	case "pgx":
		pool, err := db.NewPGXPool(ctx, cfg.Database.URL)
		if err != nil {
			return postgresengine.Ledger{}, nil, err
		}

		shipmentLedger, err := postgresengine.NewLedgerFromPGXPool(pool, options...)
		if err != nil {
			pool.Close()
			return postgresengine.Ledger{}, nil, err
		}

		return shipmentLedger, pool.Close, nil

	case "pq":
		handle, err := db.NewSQLDB(ctx, cfg.Database.URL)
		if err != nil {
			return postgresengine.Ledger{}, nil, err
		}

		shipmentLedger, err := postgresengine.NewLedgerFromSQLDB(handle, options...)
		if err != nil {
			_ = handle.Close()
			return postgresengine.Ledger{}, nil, err
		}

		return shipmentLedger, func() { _ = handle.Close() }, nil

	case "sqlx":
		handle, err := db.NewSQLX(ctx, cfg.Database.URL)
		if err != nil {
			return postgresengine.Ledger{}, nil, err
		}

		shipmentLedger, err := postgresengine.NewLedgerFromSQLX(handle, options...)
		if err != nil {
			_ = handle.Close()
			return postgresengine.Ledger{}, nil, err
		}

		return shipmentLedger, func() { _ = handle.Close() }, nil

	default:
		return postgresengine.Ledger{}, nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}
