package robot

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/gwillem/armlink/pkg/command"
	"github.com/gwillem/armlink/pkg/gesture"
)

// axes maps each operator arm to the servos it drives: [raised/back, left/right].
var axes = map[gesture.Arm][2]ServoName{
	gesture.LeftArm:  {LinearA, LinearB},
	gesture.RightArm: {RotateA, RotateB},
}

// Rig holds the servo targets and steps them while a direction command is in effect.
type Rig struct {
	bus    Bus
	cfg    RigConfig
	logger *slog.Logger

	mu     sync.Mutex
	target Pose
	dir    map[ServoName]float64
	dirty  bool
}

// NewRig creates a rig on an open bus. Targets start at mid travel until Start reads the
// actual positions.
func NewRig(bus Bus, cfg RigConfig, logger *slog.Logger) *Rig {
	if cfg.Calibration == nil {
		cfg.Calibration = DefaultCalibration()
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Rig{
		bus:    bus,
		cfg:    cfg,
		logger: logger,
		target: make(Pose, 4),
		dir:    make(map[ServoName]float64, 4),
	}
	for _, name := range AllServos() {
		r.target[name] = MaxDeg / 2
	}
	return r
}

// Targets returns a copy of the current servo targets in degrees.
func (r *Rig) Targets() Pose {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.target)
}

// Moving reports whether any servo has a held direction.
func (r *Rig) Moving() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.dir {
		if d != 0 {
			return true
		}
	}
	return false
}

// Apply sets the rig's motion from a decoded command.
func (r *Rig) Apply(_ context.Context, cmd command.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch cmd.Kind {
	case command.Pair:
		if !cmd.Left.Valid() || !cmd.Right.Valid() {
			return fmt.Errorf("invalid pair %s", cmd)
		}
		r.drive(gesture.LeftArm, cmd.Left)
		r.drive(gesture.RightArm, cmd.Right)
	case command.Single:
		if !cmd.Code.Valid() {
			return fmt.Errorf("invalid code in %s", cmd)
		}
		for _, arm := range gesture.Arms() {
			if arm == cmd.Arm {
				r.drive(arm, cmd.Code)
			} else {
				r.drive(arm, gesture.Still)
			}
		}
	case command.Composite:
		r.stop()
		switch cmd.Name {
		case command.GlobalStill:
		case command.GestureA:
			r.moveTo(r.cfg.GestureA)
		case command.GestureB:
			r.moveTo(r.cfg.GestureB)
		default:
			return fmt.Errorf("unknown composite %s", cmd)
		}
	case command.Home:
		r.stop()
		r.moveTo(Pose{RotateA: r.cfg.HomeDeg, RotateB: r.cfg.HomeDeg})
	default:
		return fmt.Errorf("not an actuator command: %s", cmd)
	}
	return nil
}

// drive sets the held direction of the two servos belonging to arm.
func (r *Rig) drive(arm gesture.Arm, code gesture.Code) {
	a, b := axes[arm][0], axes[arm][1]
	r.dir[a], r.dir[b] = 0, 0
	switch code {
	case gesture.Raised:
		r.dir[a] = 1
	case gesture.Back:
		r.dir[a] = -1
	case gesture.Left:
		r.dir[b] = -1
	case gesture.Right:
		r.dir[b] = 1
	}
}

func (r *Rig) stop() {
	clear(r.dir)
}

func (r *Rig) moveTo(p Pose) {
	for name, deg := range p {
		r.target[name] = clampDeg(deg)
	}
	r.dirty = true
}

// Start enables torque, adopts the current servo positions as targets and steps the rig
// until ctx is done. Torque is disabled on return.
func (r *Rig) Start(ctx context.Context) error {
	if err := r.bus.Enable(ctx); err != nil {
		return fmt.Errorf("enable servos: %w", err)
	}
	defer func() {
		if err := r.bus.Disable(context.Background()); err != nil {
			r.logger.Warn("disable servos", "err", err)
		}
	}()

	if err := r.sync(ctx); err != nil {
		r.logger.Warn("read initial positions", "err", err)
	}
	r.logger.Info("rig started", "hz", r.cfg.Hz, "step_deg", r.cfg.StepDeg)

	ticker := time.NewTicker(r.cfg.interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("rig stopped")
			return nil
		case <-ticker.C:
			if err := r.Step(ctx); err != nil {
				r.logger.Warn("step", "err", err)
			}
		}
	}
}

func (r *Rig) sync(ctx context.Context) error {
	raw, err := r.bus.Positions(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, pos := range raw {
		name, cal, ok := r.cfg.Calibration.ByID(id)
		if !ok {
			continue
		}
		r.target[name] = cal.Degrees(pos)
	}
	return nil
}

// Step advances held directions by one increment and writes targets that changed.
func (r *Rig) Step(ctx context.Context) error {
	r.mu.Lock()
	for name, d := range r.dir {
		if d == 0 {
			continue
		}
		next := clampDeg(r.target[name] + d*r.cfg.StepDeg)
		if next != r.target[name] {
			r.target[name] = next
			r.dirty = true
		}
	}
	if !r.dirty {
		r.mu.Unlock()
		return nil
	}
	raw := make(map[int]int, len(r.target))
	for name, deg := range r.target {
		cal, ok := r.cfg.Calibration[name]
		if !ok {
			continue
		}
		raw[cal.ID] = cal.Raw(deg)
	}
	r.dirty = false
	r.mu.Unlock()

	if err := r.bus.SetPositions(ctx, raw); err != nil {
		// Retry on the next tick; one-shot targets like Home are not recomputed.
		r.mu.Lock()
		r.dirty = true
		r.mu.Unlock()
		return err
	}
	r.logger.Debug("positions", "raw", raw)
	return nil
}
