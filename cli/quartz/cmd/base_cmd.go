package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

type quartzApp struct {
	baseCmd    *cobra.Command
	baseConfig *baseConfiguration
}

// New creates the quartz command line application.
func New(logF LoggerFactory) *quartzApp {
	baseCmd, baseConfig := newBaseCmd(logF)
	return &quartzApp{baseCmd, baseConfig}
}

// Execute adds all child commands and runs the application.
func (a *quartzApp) Execute(ctx context.Context) error {
	a.baseCmd.AddCommand(newInitCmd(a.baseConfig))
	a.baseCmd.AddCommand(newStateCmd(a.baseConfig))
	return a.baseCmd.ExecuteContext(ctx)
}

func newBaseCmd(logF LoggerFactory) (*cobra.Command, *baseConfiguration) {
	config := &baseConfiguration{loggerBuilder: logF}
	baseCmd := &cobra.Command{
		Use:           "quartz",
		Short:         "The quartz ledger node CLI",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initializeConfig(cmd, config); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}
			return nil
		},
	}
	config.addConfigurationFlags(baseCmd)
	return baseCmd, config
}

func initializeConfig(cmd *cobra.Command, config *baseConfiguration) error {
	if err := config.initConfig(cmd); err != nil {
		return fmt.Errorf("reading configuration: %w", err)
	}
	if err := config.initLogger(cmd); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	return nil
}
