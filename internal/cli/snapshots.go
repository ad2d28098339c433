package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hobgoblin/qao/internal/persist"
)

// NewSnapshotsCommand creates the snapshots command.
func NewSnapshotsCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		limit  int
		export string
	)

	cmd := &cobra.Command{
		Use:   "snapshots <name>",
		Short: "List stored snapshots, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.LoadConfig()
			if err != nil {
				return err
			}
			log, err := NewLogger(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer log.Sync()

			store, err := persist.OpenStore(cmd.Context(), cfg.Database, log)
			if err != nil {
				return fmt.Errorf("snapshot store: %w", err)
			}
			defer store.Close()

			snaps, err := store.List(cmd.Context(), args[0], limit)
			if err != nil {
				return fmt.Errorf("list snapshots: %w", err)
			}
			log.Debug("listed snapshots", zap.String("name", args[0]), zap.Int("count", len(snaps)))
			printSnapshots(cmd.OutOrStdout(), args[0], snaps)

			if export == "" {
				return nil
			}
			if len(snaps) == 0 {
				return fmt.Errorf("no snapshot named %q", args[0])
			}
			if err := exportSnapshot(export, snaps[0]); err != nil {
				return err
			}
			newPrinter().Fprintf(cmd.OutOrStdout(), "exported %s to %s\n", snaps[0].ID, export)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 10, "maximum snapshots to list (0 = all)")
	cmd.Flags().StringVar(&export, "export", "", "write the newest snapshot to this file")
	return cmd
}

func exportSnapshot(path string, s *persist.Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export snapshot: %w", err)
	}
	if err := persist.WriteFile(f, s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
