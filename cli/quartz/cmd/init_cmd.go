package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/quartzledger/quartz/dispatch"
	"github.com/quartzledger/quartz/logger"
)

// newInitCmd creates the command writing default configuration files into
// the quartz home directory.
func newInitCmd(baseConfig *baseConfiguration) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write default node and logger configuration files into $QUARTZ_HOME",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(baseConfig.HomeDir, 0700); err != nil {
				return fmt.Errorf("creating home directory: %w", err)
			}
			if err := writeYAML(baseConfig.CfgFile, dispatch.DefaultConfig(), force); err != nil {
				return err
			}
			logCfg := &logger.LogConfiguration{Level: "INFO", Format: "text", OutputPath: "stderr"}
			if err := writeYAML(baseConfig.loggerCfgFilename(), logCfg, force); err != nil {
				return err
			}
			baseConfig.log.Info(fmt.Sprintf("configuration written to %s", baseConfig.HomeDir))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite existing configuration files")
	return cmd
}

func writeYAML(path string, v any, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		}
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
