package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	rootCmd = &cobra.Command{
		Use:   "reviewer",
		Short: "Manage a reviewer rewards multisig on Solana",
		Long: "This CLI creates a Squads multisig, manages its members and pays " +
			"reviewer rewards out of its vault",
		SilenceUsage: true,
		Version:      fmt.Sprintf("%s, commit: %s, date: %s", version, commit, date),
	}
)

func init() {
	rootCmd.AddCommand(demoCmd, infoCmd, membersCmd, executeCmd, serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.WithError(err).Error("command failed")
		os.Exit(1)
	}
}
