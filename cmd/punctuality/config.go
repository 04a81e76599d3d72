package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and update classification thresholds",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return err
		}
		return printJSON(e.Config().All())
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key>=<value> ...",
	Short: "Update configuration values",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		values := map[string]string{}
		for _, arg := range args {
			parts := strings.SplitN(arg, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("'%s' is not on form <key>=<value>", arg)
			}
			values[parts[0]] = parts[1]
		}

		e, err := newEngine()
		if err != nil {
			return err
		}
		if err := e.Config().Update(values); err != nil {
			return err
		}
		return printJSON(e.Config().All())
	},
}
