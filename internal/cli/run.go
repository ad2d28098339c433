package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hobgoblin/qao/internal/config"
	"github.com/hobgoblin/qao/internal/core/event"
	"github.com/hobgoblin/qao/internal/core/loop"
	"github.com/hobgoblin/qao/internal/core/qao"
	"github.com/hobgoblin/qao/internal/persist"
	"github.com/hobgoblin/qao/internal/scene"
	"github.com/hobgoblin/qao/internal/scripting"
	"github.com/hobgoblin/qao/internal/telemetry"
)

type runOptions struct {
	frames  int
	save    string
	restore string
	file    string
	trace   bool
	scene   string
	scripts string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scene through the frame loop",
		Long: `Load the configured scene and scripts, then drive frames.

With --frames N the loop runs N frames on simulated time, one tick per frame.
Without it the loop runs in real time until interrupted or loop.max_steps is
reached.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSim(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.frames, "frames", "n", 0, "number of simulated frames (0 = real time)")
	cmd.Flags().StringVar(&opts.save, "save", "", "save a snapshot under this name when done")
	cmd.Flags().StringVar(&opts.restore, "restore", "", "start from the latest snapshot with this name")
	cmd.Flags().StringVar(&opts.file, "restore-file", "", "start from an exported snapshot file")
	cmd.Flags().BoolVar(&opts.trace, "trace", false, "print every rt.emit record")
	cmd.Flags().StringVar(&opts.scene, "scene", "", "scene file (overrides scene.path)")
	cmd.Flags().StringVar(&opts.scripts, "scripts", "", "scripts directory (overrides scripting.dir)")

	return cmd
}

func runSim(cmd *cobra.Command, rootOpts *RootOptions, opts *runOptions) error {
	cfg, err := rootOpts.LoadConfig()
	if err != nil {
		return err
	}
	if opts.scene != "" {
		cfg.Scene.Path = opts.scene
	}
	if opts.scripts != "" {
		cfg.Scripting.Dir = opts.scripts
	}

	log, err := NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer shutdown(context.Background())

	engine, err := scripting.NewEngine(cfg.Scripting.Dir, log)
	if err != nil {
		return err
	}
	defer engine.Close()

	bus := event.NewBus()
	summary := RunSummary{Scene: cfg.Scene.Path}
	event.Subscribe(bus, func(event.ObjectAdded) { summary.Added++ })
	event.Subscribe(bus, func(event.ObjectReleased) { summary.Released++ })
	event.Subscribe(bus, func(event.PriorityChanged) { summary.Reordered++ })

	rt := qao.NewRuntime(qao.WithLogger(log), qao.WithListener(event.NewRecorder(bus)))
	defer rt.Close()
	engine.Bind(rt)

	var store persist.Store
	if opts.save != "" || opts.restore != "" {
		store, err = persist.OpenStore(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("snapshot store: %w", err)
		}
		defer store.Close()
	}

	switch {
	case opts.restore != "" && opts.file != "":
		return fmt.Errorf("--restore and --restore-file are exclusive")
	case opts.restore != "":
		snap, err := store.Latest(ctx, opts.restore)
		if errors.Is(err, persist.ErrNotFound) {
			return fmt.Errorf("no snapshot named %q", opts.restore)
		}
		if err != nil {
			return err
		}
		if err := restore(snap, rt, engine); err != nil {
			return err
		}
		summary.Restored = snap.ID.String()
	case opts.file != "":
		snap, err := readSnapshotFile(opts.file)
		if err != nil {
			return err
		}
		if err := restore(snap, rt, engine); err != nil {
			return err
		}
		summary.Restored = snap.ID.String()
	default:
		s, err := scene.Load(cfg.Scene.Path)
		if err != nil {
			return err
		}
		if _, err := s.Spawn(engine); err != nil {
			return fmt.Errorf("spawn scene: %w", err)
		}
		log.Info("scene loaded", zap.String("scene", s.Name), zap.Int("objects", rt.ObjectCount()))
	}

	runner := loop.New(rt, loopConfig(cfg.Loop), loop.WithLogger(log), loop.WithBus(bus))
	if err := drive(ctx, runner, opts.frames); err != nil {
		return err
	}

	// Deliver the events of the last frame.
	bus.SwapBuffers()
	bus.DispatchAll()

	if opts.save != "" {
		snap, err := persist.Capture(opts.save, rt)
		if err != nil {
			return err
		}
		if err := store.Save(ctx, snap); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
		summary.Saved = snap.ID.String()
	}

	summary.Frames = runner.Frames()
	summary.Steps = runner.StepOrdinal()
	summary.StepCounter = rt.StepCounter()
	summary.Objects = rt.ObjectCount()
	summary.ScriptErrors = len(engine.Errors())

	out := cmd.OutOrStdout()
	if opts.trace {
		for _, em := range engine.Trace() {
			fmt.Fprintln(out, em.String())
		}
	}
	printRunSummary(out, summary)
	return nil
}

func loopConfig(c config.LoopConfig) loop.Config {
	return loop.Config{
		TickRate:            c.TickRate,
		MaxConsecutiveSteps: c.MaxConsecutiveSteps,
		Headless:            c.Headless,
		MaxSteps:            c.MaxSteps,
	}
}

// drive runs frames on simulated time when frames > 0, in real time otherwise.
func drive(ctx context.Context, runner *loop.Runner, frames int) error {
	if frames <= 0 {
		return runner.Run(ctx)
	}
	for i := 0; i < frames && !runner.Done(); i++ {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if _, err := runner.Frame(ctx, runner.TickRate()); err != nil {
			return err
		}
	}
	return nil
}

func restore(snap *persist.Snapshot, rt *qao.Runtime, engine *scripting.Engine) error {
	types := qao.NewTypeRegistry()
	scripting.RegisterTypes(types)
	return snap.Restore(rt, types, engine)
}

func readSnapshotFile(path string) (*persist.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot file: %w", err)
	}
	defer f.Close()
	return persist.ReadFile(f)
}
