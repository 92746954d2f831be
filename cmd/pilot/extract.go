package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rohankatakam/pipepilot/internal/directive"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var extractTurnID string

var extractCmd = &cobra.Command{
	Use:   "extract FILE",
	Short: "Show the directives embedded in an agent reply",
	Long: `Run the directive extractor on a saved assistant reply and print the
narrative and the normalized directives as YAML. Use "-" to read stdin.

Example:
  pilot extract reply.txt --turn-id turn-12`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVar(&extractTurnID, "turn-id", "turn", "turn id used to build directive ids")
}

type extractOutput struct {
	Narrative  string                `yaml:"narrative"`
	Directives []directive.Directive `yaml:"directives"`
}

func runExtract(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	narrative, found := directive.ExtractTurn(directive.ChatTurn{
		ID:      extractTurnID,
		Role:    directive.RoleAssistant,
		Content: string(data),
	})
	logger.WithField("directives", len(found)).Debug("Extraction complete")

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(extractOutput{Narrative: narrative, Directives: found})
}
