package main

import (
	"github.com/spf13/cobra"

	"github.com/okian/spc/pkg/logger"
)

func newRootCmd() *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:           "spcctl",
		Short:         "Statistical process control toolkit",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return logger.SetLevelString(logLevel)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	root.AddCommand(
		newIChartCmd(),
		newCapabilityCmd(),
		newRulesCmd(),
		newLoadTestCmd(),
	)
	return root
}
