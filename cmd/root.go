/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/libranet/apiserver/config"
	"github.com/libranet/apiserver/internal/db"
	"github.com/libranet/apiserver/internal/server"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "libranet",
	Short: "Library management backend",
	Long: `Library management backend: catalog, book requests, loans, and accounts.

	libranet migrate up
	libranet server
	libranet worker
`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		slog.SetDefault(newLogger())
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, nil))
}

// openServices connects to Postgres and builds the service layer for
// commands that run outside the HTTP server.
func openServices(ctx context.Context, cfg config.Config) (*server.Services, *sql.DB, error) {
	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	svc, err := server.NewServices(ctx, cfg, dbConn, slog.Default())
	if err != nil {
		_ = dbConn.Close()
		return nil, nil, err
	}
	return svc, dbConn, nil
}
