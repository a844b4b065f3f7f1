package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/config"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config <command>",
	Short: "Inspect or create configuration",
	Long: `Inspect or create the engine configuration.

Configuration options:
  history.max_items      - Actions kept before the oldest is evicted
  history.blob_dir       - Artwork storage; empty means a private temp dir
  history.orphan_grace   - Age before unrecorded artwork may be collected
  field_names.policy     - reverse-map or stored
  logging.level          - debug, info, warn, error
  logging.format         - json or text
  metrics.enabled        - Collect prometheus metrics
  audit.path             - Hash-chained journal file; empty disables it`,
	DisableFlagsInUseLine: true,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cfg)
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		if configPath != "" {
			printf("# %s\n", configPath)
		}
		printf("%s", data)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Write the default configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.Save(path, config.Default()); err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(map[string]string{"path": path})
		}
		printf("Wrote default configuration to %s\n", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
