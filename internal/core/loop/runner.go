package loop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hobgoblin/qao/internal/core/event"
	"github.com/hobgoblin/qao/internal/core/qao"
)

// ErrHookPanic wraps a panic recovered from an object hook.
var ErrHookPanic = errors.New("object hook panicked")

type Config struct {
	TickRate            time.Duration // simulated time per step
	MaxConsecutiveSteps int           // step iterations allowed per frame
	Headless            bool          // skip draw events
	MaxSteps            int64         // 0 = unlimited
}

type Option func(*Runner)

func WithLogger(log *zap.Logger) Option {
	return func(r *Runner) { r.log = log }
}

// WithBus makes the runner swap and dispatch bus at the start of every frame
// and emit FrameCompleted at its end.
func WithBus(bus *event.Bus) Option {
	return func(r *Runner) { r.bus = bus }
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) { r.tracer = t }
}

// Runner drives a Runtime on a fixed timestep. Each frame runs up to
// MaxConsecutiveSteps step iterations while a full tick is accumulated, then
// a draw iteration (if any step ran and not headless), then a finalize
// iteration.
type Runner struct {
	rt     *qao.Runtime
	cfg    Config
	log    *zap.Logger
	bus    *event.Bus
	tracer trace.Tracer

	accumulator time.Duration
	stepOrdinal int64
	frames      int64
}

func New(rt *qao.Runtime, cfg Config, opts ...Option) *Runner {
	if cfg.TickRate <= 0 {
		cfg.TickRate = time.Second / 60
	}
	if cfg.MaxConsecutiveSteps <= 0 {
		cfg.MaxConsecutiveSteps = 1
	}
	r := &Runner{
		rt:          rt,
		cfg:         cfg,
		log:         zap.NewNop(),
		accumulator: cfg.TickRate,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer("github.com/hobgoblin/qao/internal/core/loop")
	}
	return r
}

// StepOrdinal returns the number of step iterations run so far.
func (r *Runner) StepOrdinal() int64 { return r.stepOrdinal }

// TickRate returns the simulated time per step.
func (r *Runner) TickRate() time.Duration { return r.cfg.TickRate }

// Frames returns the number of frames run so far.
func (r *Runner) Frames() int64 { return r.frames }

// Done reports whether MaxSteps has been reached.
func (r *Runner) Done() bool {
	return r.cfg.MaxSteps > 0 && r.stepOrdinal >= r.cfg.MaxSteps
}

// Iterate runs one StartStep and advances until the masked events are done.
// A panicking hook is recovered into an error wrapping ErrHookPanic.
func (r *Runner) Iterate(mask qao.EventMask) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("object hook panicked",
				zap.Any("panic", p),
				zap.Stringer("event", r.rt.CurrentEvent()),
				zap.Int64("step", r.stepOrdinal),
			)
			err = fmt.Errorf("%w during %s: %v", ErrHookPanic, r.rt.CurrentEvent(), p)
		}
	}()

	if err := r.rt.StartStep(); err != nil {
		return err
	}
	for done := false; !done; {
		if done, err = r.rt.AdvanceStep(mask); err != nil {
			return err
		}
	}
	return nil
}

// Frame runs one frame and then credits elapsed wall time to the accumulator.
// It returns the number of step iterations run.
func (r *Runner) Frame(ctx context.Context, elapsed time.Duration) (steps int, err error) {
	_, span := r.tracer.Start(ctx, "qao.frame")
	defer func() {
		span.SetAttributes(
			attribute.Int64("qao.frame", r.frames),
			attribute.Int("qao.steps", steps),
			attribute.Int("qao.objects", r.rt.ObjectCount()),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if r.bus != nil {
		r.bus.SwapBuffers()
		r.bus.DispatchAll()
	}

	tick := r.cfg.TickRate
	for i := 0; i < r.cfg.MaxConsecutiveSteps; i++ {
		if r.Done() || r.accumulator < tick {
			break
		}
		if err := r.Iterate(qao.StepEvents); err != nil {
			return steps, fmt.Errorf("step %d: %w", r.stepOrdinal, err)
		}
		steps++
		r.accumulator -= tick
		r.stepOrdinal++
	}

	if steps > 0 && !r.cfg.Headless {
		if err := r.Iterate(qao.DrawEvents); err != nil {
			return steps, fmt.Errorf("draw: %w", err)
		}
	}
	if steps > 0 && r.accumulator > tick/2 {
		r.log.Debug("accumulator clamped",
			zap.Duration("from", r.accumulator),
			zap.Duration("to", tick/2),
		)
		r.accumulator = tick / 2
	}

	if err := r.Iterate(qao.FinalizeEvents); err != nil {
		return steps, fmt.Errorf("finalize: %w", err)
	}

	r.accumulator += elapsed
	r.frames++

	if r.bus != nil {
		event.Emit(r.bus, event.FrameCompleted{
			Frame:       r.frames,
			Steps:       steps,
			StepCounter: r.rt.StepCounter(),
			Objects:     r.rt.ObjectCount(),
		})
	}
	r.log.Debug("frame",
		zap.Int64("frame", r.frames),
		zap.Int("steps", steps),
		zap.Duration("accumulator", r.accumulator),
	)
	return steps, nil
}

// Run drives frames on a ticker at TickRate until ctx is done, MaxSteps is
// reached, or a frame fails.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.TickRate)
	defer ticker.Stop()

	last := time.Now()
	for {
		if r.Done() {
			return nil
		}
		now := time.Now()
		if _, err := r.Frame(ctx, now.Sub(last)); err != nil {
			return err
		}
		last = now

		select {
		case <-ticker.C:
		case <-ctx.Done():
			r.log.Info("loop stopped", zap.Int64("frames", r.frames), zap.Int64("steps", r.stepOrdinal))
			return nil
		}
	}
}
