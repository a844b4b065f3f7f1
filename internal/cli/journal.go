package cli

import (
	"github.com/spf13/cobra"

	"github.com/wow-signal-dev/metadata-remote-sub000/internal/audit"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/color"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect the audit journal",
}

var journalVerifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Verify the journal's hash chain",
	Long: `Verify the hash chain of an audit journal. The path defaults to
audit.path from the configuration.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		} else {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			path = cfg.Audit.Path
		}
		if path == "" {
			return errNoJournal
		}

		n, err := audit.NewFileAppender(path).Verify()
		if jsonOutput {
			out := map[string]any{"path": path, "records": n, "valid": err == nil}
			if err != nil {
				out["error"] = err.Error()
			}
			if jerr := outputJSON(out); jerr != nil {
				return jerr
			}
			return err
		}
		if err != nil {
			return err
		}
		printf("%s %d records in %s\n", color.Success("OK"), n, path)
		return nil
	},
}

func init() {
	journalCmd.AddCommand(journalVerifyCmd)
	rootCmd.AddCommand(journalCmd)
}
