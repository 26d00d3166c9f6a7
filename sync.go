package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/customeros/mailscope/dto"
	"github.com/customeros/mailscope/internal/database"
	"github.com/customeros/mailscope/internal/logger"
	"github.com/customeros/mailscope/internal/models"
	"github.com/customeros/mailscope/internal/repository"
	"github.com/customeros/mailscope/internal/utils"
	"github.com/customeros/mailscope/services"
)

const statusPollInterval = 2 * time.Second

func syncCommand() *cli.Command {
	accountFlag := &cli.StringFlag{
		Name:     "account",
		Usage:    "account id",
		Required: true,
	}

	return &cli.Command{
		Name:  "sync",
		Usage: "Run or inspect mailbox syncs",
		Subcommands: []*cli.Command{
			{
				Name:  "start",
				Usage: "Sync an account in this process and wait for it to finish",
				Flags: []cli.Flag{
					accountFlag,
					&cli.IntFlag{Name: "batch-size", Usage: "messages per fetch window (1-1000)"},
					&cli.IntFlag{Name: "max-emails", Usage: "stop after this many messages, 0 for no cap"},
					&cli.StringSliceFlag{Name: "folder", Usage: "folder to sync, repeatable; all folders when omitted"},
				},
				Action: syncStart,
			},
			{
				Name:   "status",
				Usage:  "Print the last sync progress of an account",
				Flags:  []cli.Flag{accountFlag},
				Action: syncStatus,
			},
		},
	}
}

func initCLIServices() (*services.Services, logger.Logger, error) {
	cfg := loadConfig()

	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	db, err := database.InitDatabase(cfg.DatabaseConfig)
	if err != nil {
		return nil, nil, err
	}

	svcs, err := services.InitServices(cfg, appLogger, repository.InitRepositories(db))
	if err != nil {
		return nil, nil, err
	}
	return svcs, appLogger, nil
}

func cliContext(accountID string) context.Context {
	return utils.WithCustomContext(context.Background(), &utils.CustomContext{
		AppSource: utils.AppSourceCLI,
		AccountID: accountID,
	})
}

func syncStart(c *cli.Context) error {
	svcs, appLogger, err := initCLIServices()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer svcs.EventsService.Close()

	accountID := c.String("account")
	ctx := cliContext(accountID)

	progress, err := svcs.SyncService.Start(ctx, accountID, dto.SyncParams{
		BatchSize: c.Int("batch-size"),
		MaxEmails: c.Int("max-emails"),
		Folders:   c.StringSlice("folder"),
	})
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	appLogger.Infof("Sync %s started for account %s", progress.RunID, accountID)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-interrupt:
			appLogger.Info("Interrupted, pausing sync")
			svcs.SyncService.Shutdown(10 * time.Second)
			return printProgress(svcs.SyncService.Status(ctx, accountID))
		case <-ticker.C:
			progress, err = svcs.SyncService.Status(ctx, accountID)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			appLogger.Infof("%s: %d/%d processed, %d failed, %.1f emails/s",
				progress.Status, progress.ProcessedEmails, progress.TotalEmails, progress.FailedEmails, progress.EmailsPerSecond)
			if progress.Status.IsTerminal() {
				svcs.SyncService.Shutdown(10 * time.Second)
				return printProgress(progress, nil)
			}
		}
	}
}

func syncStatus(c *cli.Context) error {
	svcs, _, err := initCLIServices()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer svcs.EventsService.Close()

	accountID := c.String("account")
	return printProgress(svcs.SyncService.Status(cliContext(accountID), accountID))
}

func printProgress(progress *models.SyncProgress, err error) error {
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	out, err := json.MarshalIndent(progress, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
