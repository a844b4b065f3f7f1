package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/color"
)

var (
	jsonOutput bool
	configPath string
	noColor    bool
	stdout     io.Writer = os.Stdout
	rootCmd              = &cobra.Command{
		Use:   "mdhistory",
		Short: "mdhistory - metadata editing history",
		Long: `mdhistory records metadata edits made to audio files and reverses or
reapplies them on request. The history is bounded, artwork is stored once
per distinct image, and renamed files keep their history.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			color.Init(noColor || jsonOutput)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmtErr("%v", err)
		os.Exit(1)
	}
}

// outputJSON prints v as indented JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printf(format string, args ...any) {
	fmt.Fprintf(stdout, format, args...)
}
