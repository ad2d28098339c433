package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/hobgoblin/qao/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
}

// NewRootCommand creates the root command for qaosim.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "qaosim",
		Short: "qaosim - active object runtime simulator",
		Long: `Drives a scene of Lua-scripted active objects through the nine-event
frame cycle, resolves category priorities and stores runtime snapshots.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "",
		"config file (default $QAO_CONFIG or "+config.DefaultPath+")")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewResolveCommand(opts))
	cmd.AddCommand(NewSnapshotsCommand(opts))

	return cmd
}

// LoadConfig reads the config named by --config, then $QAO_CONFIG, then the
// default path. Only the default path may be missing, in which case the
// built-in defaults are used.
func (o *RootOptions) LoadConfig() (*config.Config, error) {
	path := o.ConfigPath
	if path == "" {
		path = os.Getenv("QAO_CONFIG")
	}
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return o.adjust(cfg), nil
	}

	cfg, err := config.Load(config.DefaultPath)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = config.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return o.adjust(cfg), nil
}

func (o *RootOptions) adjust(cfg *config.Config) *config.Config {
	if o.Verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg
}
