package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rohankatakam/pipepilot/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage PipePilot configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration and any problems with it",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the current configuration to a file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigInit,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	settings := cfg.Settings()
	keys := make([]string, 0, len(settings)+1)
	for k := range settings {
		keys = append(keys, k)
	}
	keys = append(keys, "backend.token")
	settings["backend.token"] = config.MaskToken(cfg.Backend.Token)
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(out, "%-28s %v\n", k, settings[k])
	}

	mode := cfg.ResolvedMode()
	fmt.Fprintf(out, "\nDeployment mode: %s (%s)\n", mode, mode.Description())

	result := cfg.ValidateWithMode(config.ValidationContextAll, mode)
	if result.HasErrors() {
		fmt.Fprint(out, result.Error())
	} else {
		for _, w := range result.Warnings {
			fmt.Fprintf(out, "  ! %s\n", w)
		}
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := filepath.Join(".pipepilot", "config.yaml")
	if len(args) == 1 {
		path = args[0]
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n", path)
	if cfg.Backend.Token == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "→ Run 'pilot login' to store your token")
	}
	return nil
}
