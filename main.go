package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/customeros/mailscope/config"
	"github.com/customeros/mailscope/internal/database"
	"github.com/customeros/mailscope/internal/repository"
	"github.com/customeros/mailscope/server"
)

func main() {
	app := &cli.App{
		Name:  "mailscope",
		Usage: "Mailbox sync and sender analysis service",
		Commands: []*cli.Command{
			migrateCommand(),
			serverCommand(),
			syncCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatalf("Config initialization failed: %v", err)
	}
	if cfg == nil {
		log.Fatalf("config is empty")
	}
	return cfg
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Run database migrations",
		Action: func(c *cli.Context) error {
			cfg := loadConfig()

			db, err := database.InitDatabase(cfg.DatabaseConfig)
			if err != nil {
				return cli.Exit("database initialization failed: "+err.Error(), 1)
			}

			if err := repository.MigrateDB(db); err != nil {
				return cli.Exit("database migration failed: "+err.Error(), 1)
			}
			log.Println("Database migration completed successfully")
			return nil
		},
	}
}

func serverCommand() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "Start the API server and the sync scheduler",
		Action: func(c *cli.Context) error {
			cfg := loadConfig()

			db, err := database.InitDatabase(cfg.DatabaseConfig)
			if err != nil {
				return cli.Exit("database initialization failed: "+err.Error(), 1)
			}

			log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
			log.Println("Mailscope starting up...")

			srv, err := server.NewServer(cfg, db)
			if err != nil {
				return cli.Exit("server setup failed: "+err.Error(), 1)
			}

			if err := srv.Run(); err != nil {
				return cli.Exit("server startup failed: "+err.Error(), 1)
			}

			log.Println("Shutdown complete")
			return nil
		},
	}
}
