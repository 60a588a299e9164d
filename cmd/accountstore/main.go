package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/pflag"

	"github.com/mkorchagin/accountstore/internal/config"
	"github.com/mkorchagin/accountstore/internal/fallback"
	"github.com/mkorchagin/accountstore/internal/mailer"
	"github.com/mkorchagin/accountstore/internal/storage"
	"github.com/mkorchagin/accountstore/pkg/models"
)

func main() {
	exportMode := pflag.Bool("export", false, "write the persisted account set back to the accounts file")
	checkMail := pflag.String("check-mail", "", "poll the given account's mailbox for a verification code")
	pflag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	store := storage.New(storage.Options{
		DatabaseURL:  cfg.DatabaseURL,
		MinConns:     cfg.PoolMinConns,
		MaxConns:     cfg.PoolMaxConns,
		QueryTimeout: cfg.QueryTimeout,
	}, logger)
	defer store.Close()

	files := fallback.NewStore(cfg.AccountsFile, logger)

	var code int
	switch {
	case *checkMail != "":
		code = runCheckMail(cfg, store, files, logger, *checkMail)
	case *exportMode:
		code = runExport(store, files, logger)
	default:
		code = runImport(store, files, logger)
	}
	os.Exit(code)
}

// runImport reconciles the accounts file into the database.
func runImport(store *storage.Manager, files *fallback.Store, logger *slog.Logger) int {
	if !store.Enabled() {
		logger.Error("DATABASE_URL is not set, nothing to import into")
		return 1
	}

	accounts, err := files.Load()
	if err != nil {
		logger.Error("failed to read accounts file", "path", files.Path(), "error", err)
		return 1
	}

	if !store.SyncAccounts(accounts) {
		logger.Error("account import failed")
		return 1
	}
	logger.Info("accounts imported", "count", len(accounts), "from", files.Path())
	return 0
}

// runExport dumps the persisted account set back to the accounts file.
func runExport(store *storage.Manager, files *fallback.Store, logger *slog.Logger) int {
	accounts := store.LoadAccounts()
	if accounts == nil {
		logger.Error("database disabled or unreadable, keeping accounts file as is")
		return 1
	}

	if err := files.Save(accounts); err != nil {
		logger.Error("failed to write accounts file", "path", files.Path(), "error", err)
		return 1
	}
	logger.Info("accounts exported", "count", len(accounts), "to", files.Path())
	return 0
}

// runCheckMail polls one account's mailbox for a verification code and
// prints it.
func runCheckMail(cfg *config.Config, store *storage.Manager, files *fallback.Store, logger *slog.Logger, id string) int {
	accounts := store.LoadAccounts()
	if accounts == nil {
		var err error
		accounts, err = files.Load()
		if err != nil {
			logger.Error("failed to read accounts file", "path", files.Path(), "error", err)
			return 1
		}
	}

	var account *models.Account
	for i := range accounts {
		if accounts[i].ID == id {
			account = &accounts[i]
			break
		}
	}
	if account == nil {
		logger.Error("account not found", "id", id)
		return 1
	}

	creds, err := mailer.CredentialsFromAccount(*account)
	if err != nil {
		logger.Error("account has no usable mail credentials", "id", id, "error", err)
		return 1
	}

	provider, err := mailer.New(creds, mailer.Options{
		PollTimeout:  cfg.MailPollTimeout,
		PollInterval: cfg.MailPollInterval,
		DialTimeout:  cfg.IMAPDialTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to build mail provider", "id", id, "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("polling for verification code", "id", id, "address", provider.Address())
	verificationCode, err := provider.PollForCode(ctx, time.Time{})
	if err != nil {
		logger.Error("no verification code", "id", id, "error", err)
		return 1
	}

	fmt.Println(verificationCode)
	return 0
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		// Pretty colored output for console
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
