package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/petrofield/fieldops/cmd/fieldops/cli"
	"github.com/petrofield/fieldops/internal/agreements"
	"github.com/petrofield/fieldops/internal/app"
	"github.com/petrofield/fieldops/internal/platform/db"
)

const usage = `usage: fieldops [command]

commands:
  serve                         run the HTTP API (default)
  migrate up                    apply pending migrations
  migrate down N                roll back N migrations
  jobs trigger NAME [flags]     enqueue ledger:verify or idempotency:cleanup
  jobs stats                    print queue statistics
  ledger verify [flags]         check balances against the journal now`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	args := os.Args[1:]
	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	switch command {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "migrate":
		err = migrate(cfg, logger, args)
	case "jobs":
		err = jobsCommand(ctx, cfg, args)
	case "ledger":
		os.Exit(ledgerCommand(ctx, cfg, logger, args))
	case "help", "-h", "--help":
		fmt.Println(usage)
		return
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error(command, slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	srv, err := app.NewServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Warn("close server resources", slog.Any("error", err))
		}
	}()

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      srv.Handler,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func migrate(cfg *app.Config, logger *slog.Logger, args []string) error {
	if len(args) == 0 {
		return errors.New("migrate: expected up or down")
	}
	switch args[0] {
	case "up":
		if err := db.MigrateUp(cfg.PGDSN); err != nil {
			return err
		}
		logger.Info("migrations applied")
		return nil
	case "down":
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("migrate down: invalid step count %q", args[1])
			}
			steps = n
		}
		if err := db.MigrateDown(cfg.PGDSN, steps); err != nil {
			return err
		}
		logger.Info("migrations rolled back", slog.Int("steps", steps))
		return nil
	default:
		return fmt.Errorf("migrate: unknown direction %q", args[0])
	}
}

func jobsCommand(ctx context.Context, cfg *app.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("jobs: expected trigger or stats")
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisOpts())
	if err != nil {
		return err
	}
	defer jobsCLI.Close()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return errors.New("jobs trigger: job name required")
		}
		fs := flag.NewFlagSet("jobs trigger", flag.ContinueOnError)
		agreement := fs.String("agreement", "", "sub-agreement id, empty for all")
		repair := fs.Bool("repair", false, "rewrite drifted balances")
		retention := fs.Duration("retention", 0, "idempotency key retention override")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		info, err := jobsCLI.Trigger(ctx, args[1], cli.TriggerOptions{AgreementID: *agreement, Repair: *repair, Retention: *retention})
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s as %s on queue %s\n", info.Type, info.ID, info.Queue)
		return nil
	case "stats":
		stats, err := jobsCLI.InspectQueues(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	default:
		return fmt.Errorf("jobs: unknown command %q", args[0])
	}
}

func ledgerCommand(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	if len(args) == 0 || args[0] != "verify" {
		fmt.Fprintln(os.Stderr, "ledger: expected verify")
		return 2
	}
	fs := flag.NewFlagSet("ledger verify", flag.ContinueOnError)
	agreement := fs.String("agreement", "", "sub-agreement id, empty for all")
	repair := fs.Bool("repair", false, "rewrite drifted balances")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer pool.Close()

	ledgerCLI, err := cli.NewLedgerOpsCLI(agreements.NewService(agreements.NewRepository(pool), logger))
	if err != nil {
		logger.Error("ledger cli", slog.Any("error", err))
		return 1
	}
	return ledgerCLI.VerifyCommand(ctx, cli.LedgerVerifyOptions{AgreementID: *agreement, Repair: *repair, JSONOutput: *asJSON})
}
