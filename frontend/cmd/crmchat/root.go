package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wavoo-crm/crmchat/frontend/internal/setup"
	"github.com/wavoo-crm/crmchat/shared/config"
	"github.com/wavoo-crm/crmchat/shared/logger"
)

var (
	version = "dev"

	configFolder string
	cfg          *config.Config
	deps         *setup.Dependencies
)

var rootCmd = &cobra.Command{
	Use:   "crmchat",
	Short: "Terminal client for CRM WhatsApp conversations",
	Long: `crmchat talks to the CRM API and its Socket.IO endpoint: it keeps a
conversation in sync with live pushes, shows the WhatsApp link status and
sends text, files and voice notes.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.Load(configFolder)
		if err != nil {
			return err
		}
		cfg = loaded
		logger.Initialize(cfg.Public.LogLevel, cfg.Public.LogJSON)

		deps, err = setup.SetupDependencies(cfg)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		if deps != nil {
			deps.Close()
		}
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if deps != nil {
			deps.Close()
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&configFolder, "config_folder", "config", "folder with public.yaml and optional private.yaml")

	rootCmd.AddCommand(
		loginCmd,
		superLoginCmd,
		logoutCmd,
		contactsCmd,
		chatCmd,
		statusCmd,
		presenceCmd,
		notificationsCmd,
	)
}
