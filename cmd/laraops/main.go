package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

var (
	flagProjectRoot string
	flagStateDir    string
	flagLogLevel    string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "laraops",
		Short: "Maintenance and task scheduling for Laravel application servers",
		Long: "laraops keeps a Laravel server tidy: it provisions the project, clears\n" +
			"caches, drives the service scripts and manages scheduled tasks that it\n" +
			"installs into the system crontab.",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flagProjectRoot, "project-root", "", "Laravel project root (default: walk up until an artisan file is found)")
	cmd.PersistentFlags().StringVar(&flagStateDir, "state-dir", "", "directory for the task store and run history")
	cmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(scheduleCmd())
	cmd.AddCommand(setupCmd())
	cmd.AddCommand(cleanCmd())
	cmd.AddCommand(servicesCmd())
	cmd.AddCommand(serveCmd())
	cmd.AddCommand(mcpCmd())
	cmd.AddCommand(versionCmd())
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("laraops %s\n", version)
		},
	}
}
