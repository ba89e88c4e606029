package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danmuck/atbench/internal/config"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create or check station config files",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config template",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "atbench.toml"
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.WriteTemplate(path, configForce); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote %s\n", path)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate <path>",
	Short: "Load a config and report the resolved station settings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s: ok (transport=%s, commands=%d, limits=%d)\n",
			args[0], cfg.Transport.Kind, len(cfg.Batch.Commands), len(cfg.Limits))
		return nil
	},
}

var configLimitsCmd = &cobra.Command{
	Use:   "limits <path>",
	Short: "Print the resolved validation rules as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(args[0])
		if err != nil {
			return err
		}
		out, err := config.MarshalLimitsYAML(cfg.Limits)
		if err != nil {
			return err
		}
		_, err = stdout.Write(out)
		return err
	},
}

func init() {
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configValidateCmd, configLimitsCmd)
}
