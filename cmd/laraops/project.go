package main

import (
	"github.com/spf13/cobra"
)

func setupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Run the project's setup script",
		Long:  "Runs scripts/setup.sh from the project root, typically composer install,\nmigrations and cache warming after a deploy.",
		Run: func(cmd *cobra.Command, args []string) {
			p := mustProject()
			if err := p.Setup(cmd.Context()); err != nil {
				fail(err)
			}
		},
	}
}

func cleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Run the project's clean script",
		Long:  "Runs scripts/clean.sh from the project root, typically clearing caches,\ncompiled views and stale logs.",
		Run: func(cmd *cobra.Command, args []string) {
			p := mustProject()
			if err := p.Clean(cmd.Context()); err != nil {
				fail(err)
			}
		},
	}
}

func servicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "services [start|stop|restart|status]",
		Short: "Control the project's background services",
		Long:  "Runs scripts/services.sh from the project root with the given action,\ntypically driving queue workers, Horizon or a websocket server.",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			p := mustProject()
			if err := p.Services(cmd.Context(), args[0]); err != nil {
				fail(err)
			}
		},
	}
}
