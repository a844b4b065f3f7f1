package cli

import (
	"fmt"
	"os"

	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/wow-signal-dev/metadata-remote-sub000/internal/memtags"
	"github.com/wow-signal-dev/metadata-remote-sub000/internal/replay"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/color"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/history"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/model"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/progress"
)

var (
	replayMetrics  bool
	replayProgress bool
)

// replayReport is the --json output of replay.
type replayReport struct {
	Steps   []replay.StepResult      `json:"steps"`
	History []model.ActionSummary    `json:"history"`
	Files   map[string]*memtags.File `json:"files"`
}

var replayCmd = &cobra.Command{
	Use:   "replay <script.yaml>",
	Short: "Run a scripted editing session",
	Long: `Run a scripted editing session against in-memory files.

The script seeds files and lists steps. Mutating steps (set, clear,
create-field, delete-field, set-art, remove-art, batch-set, batch-art,
batch-delete, batch-create) edit a file and record the edit. undo and redo
name the step that recorded the action with ref. rename, fail, recover, gc
and clear-history drive the rest of the engine.

Example:
  files:
    /music/a.mp3: {fields: {title: Old}}
  steps:
    - {op: set, file: /music/a.mp3, field: title, value: New}
    - {op: undo, ref: 1}`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		script, err := replay.Load(args[0])
		if err != nil {
			return err
		}

		opts := history.Options{
			Config: cfg,
			Logger: newLogger(cfg),
		}
		if replayProgress && !jsonOutput {
			opts.Progress = progress.NewTerminal(os.Stderr).Callback()
		}
		store := memtags.New()
		opts.Writer = store
		eng, err := history.Open(opts)
		if err != nil {
			return err
		}
		defer eng.Close()

		results, err := replay.NewRunner(eng, store).Run(cmd.Context(), script)
		if err != nil {
			return err
		}

		if jsonOutput {
			report := replayReport{Steps: results, History: eng.RecentActions(), Files: map[string]*memtags.File{}}
			for _, p := range store.Paths() {
				report.Files[p], _ = store.Get(p)
			}
			return outputJSON(report)
		}

		for _, r := range results {
			printStep(r)
		}
		printf("\n%s\n", color.Header(fmt.Sprintf("History (%d of max %d)", eng.Len(), cfg.History.MaxItems)))
		for _, s := range eng.RecentActions() {
			printf("  %s  %-20s %-8s %s\n", color.ActionID(s.ID), color.Kind(s.Kind), color.Reverted(s.Reverted), s.Description)
		}

		if replayMetrics && eng.Metrics() != nil {
			families, err := eng.Metrics().Gatherer().Gather()
			if err != nil {
				return fmt.Errorf("gather metrics: %w", err)
			}
			printf("\n%s\n", color.Header("Metrics"))
			for _, mf := range families {
				if _, err := expfmt.MetricFamilyToText(stdout, mf); err != nil {
					return fmt.Errorf("write metrics: %w", err)
				}
			}
		}
		return nil
	},
}

func printStep(r replay.StepResult) {
	prefix := fmt.Sprintf("%3d %-14s", r.Step, r.Op)
	switch {
	case r.Error != "":
		printf("%s %s\n", prefix, color.Error(r.Error))
	case r.Result != nil:
		printf("%s %s %s: %d updated, %d failed\n", prefix, color.ActionID(r.ActionID),
			color.Status(r.Result.Status), r.Result.FilesUpdated, len(r.Result.Errors))
		for _, fe := range r.Result.Errors {
			printf("      %s %s\n", color.Warning(fe.Target), color.Dim(fe.Message))
		}
	case r.Summary != "":
		printf("%s %s %s\n", prefix, color.ActionID(r.ActionID), r.Summary)
	case r.GC != nil:
		printf("%s removed %d blobs (%d bytes)\n", prefix, len(r.GC.Deleted), r.GC.BytesReclaimed)
	case r.Op == replay.OpRename:
		printf("%s %d actions updated\n", prefix, r.Count)
	default:
		printf("%s ok\n", prefix)
	}
}

func init() {
	replayCmd.Flags().BoolVar(&replayMetrics, "metrics", false, "print collected metrics after the session")
	replayCmd.Flags().BoolVar(&replayProgress, "progress", false, "show per-file progress for undo and redo")
	rootCmd.AddCommand(replayCmd)
}
