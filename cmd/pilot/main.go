package main

import (
	"fmt"
	"os"

	"github.com/rohankatakam/pipepilot/internal/config"
	"github.com/rohankatakam/pipepilot/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile string
	verbose bool
	logger  *logrus.Logger
	cfg     *config.Config
)

func main() {
	err := rootCmd.Execute()
	logging.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pilot",
	Short: "PipePilot - build data pipelines by talking to an agent",
	Long: `PipePilot connects to the pipeline agent and walks you through the
decisions it asks for: sources, credentials, tables, filters, schemas,
destinations, costs and alerts, one confirmation at a time.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = logrus.New()
		logger.SetOutput(os.Stderr)
		if verbose {
			logger.SetLevel(logrus.DebugLevel)
		} else {
			logger.SetLevel(logrus.InfoLevel)
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			logger.WithError(err).Warn("Failed to load config, using defaults")
			cfg = config.Default()
		}

		lc := logging.DefaultConfig(cfg.Log.Dir, verbose)
		if !verbose {
			lc.Level = logging.ParseLevel(cfg.Log.Level)
			lc.JSONFormat = cfg.Log.JSON
		}
		if err := logging.Initialize(lc); err != nil {
			logger.WithError(err).Warn("File logging disabled")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .pipepilot/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.SetVersionTemplate(`PipePilot {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(configCmd)
}
