package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/relaybot/internal/config"
)

var revealSecrets bool

func init() {
	configGetCmd.Flags().BoolVar(&revealSecrets, "reveal", false, "print secret values unmasked")
	configCmd.AddCommand(configListCmd, configGetCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the resolved configuration",
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all config values (secrets masked)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		entries, err := config.ListValues(cfg, true)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, e := range entries {
			fmt.Fprintf(out, "%s = %v\n", e.Key, e.Value)
		}
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a single config value (secrets masked unless --reveal)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		val, err := config.GetValue(cfg, args[0])
		if err != nil {
			return err
		}
		if config.IsSecretKey(args[0]) && !revealSecrets {
			val = config.Mask(val)
		}
		fmt.Fprintln(cmd.OutOrStdout(), val)
		return nil
	},
}
