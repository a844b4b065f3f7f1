package cli

import (
	"fmt"
	"os"

	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/color"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/config"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/errclass"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/logging"
)

// loadConfig reads --config, falling back to defaults.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the logger described by cfg. Logs go to stderr so that
// --json output stays machine readable.
func newLogger(cfg *config.Config) *logging.Logger {
	l := logging.NewLogger(logging.ParseLevel(cfg.Logging.Level))
	l.SetOutput(os.Stderr)
	if cfg.Logging.Format != "" {
		l.SetFormat(logging.Format(cfg.Logging.Format))
	}
	return l
}

func fmtErr(format string, args ...any) {
	prefix := "mdhistory: "
	if color.Enabled() {
		prefix = color.Error("mdhistory:") + " "
	}
	fmt.Fprintf(os.Stderr, prefix+format+"\n", args...)
}

var errNoJournal = errclass.ErrConfigInvalid.WithMessage("no journal path given and audit.path is not set")
