package robot

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/gwillem/armlink/internal/log"
	"github.com/gwillem/armlink/pkg/command"
	"github.com/gwillem/armlink/pkg/gesture"
)

func newTestRig() (*Rig, *MemoryBus) {
	cfg := DefaultRigConfig()
	bus := NewMemoryBus(nil)
	return NewRig(bus, cfg, log.Discard()), bus
}

func TestRig_Home(t *testing.T) {
	rig, bus := newTestRig()
	ctx := context.Background()

	if err := rig.Apply(ctx, command.NewHome()); err != nil {
		t.Fatalf("Apply(home): %v", err)
	}
	if err := rig.Step(ctx); err != nil {
		t.Fatalf("Step: %v", err)
	}

	targets := rig.Targets()
	for _, name := range []ServoName{RotateA, RotateB} {
		if targets[name] != 110 {
			t.Errorf("%s target = %f, want 110", name, targets[name])
		}
	}

	pos, _ := bus.Positions(ctx)
	cal := DefaultCalibration()[RotateA]
	if got, want := pos[cal.ID], cal.Raw(110); got != want {
		t.Errorf("raw position of servo %d = %d, want %d", cal.ID, got, want)
	}
}

// flakyBus fails the first n writes.
type flakyBus struct {
	*MemoryBus
	fail int
}

func (b *flakyBus) SetPositions(ctx context.Context, positions map[int]int) error {
	if b.fail > 0 {
		b.fail--
		return errors.New("bus timeout")
	}
	return b.MemoryBus.SetPositions(ctx, positions)
}

func TestRig_RetriesFailedWrite(t *testing.T) {
	bus := &flakyBus{MemoryBus: NewMemoryBus(nil), fail: 1}
	rig := NewRig(bus, DefaultRigConfig(), log.Discard())
	ctx := context.Background()

	if err := rig.Apply(ctx, command.NewHome()); err != nil {
		t.Fatalf("Apply(home): %v", err)
	}
	if err := rig.Step(ctx); err == nil {
		t.Fatal("Step succeeded on a failing bus")
	}
	if err := rig.Step(ctx); err != nil {
		t.Fatalf("Step after failure: %v", err)
	}

	pos, _ := bus.Positions(ctx)
	cal := DefaultCalibration()[RotateB]
	if got, want := pos[cal.ID], cal.Raw(110); got != want {
		t.Errorf("raw position of servo %d = %d, want %d", cal.ID, got, want)
	}
	if n := bus.Writes(); n != 1 {
		t.Errorf("writes = %d, want 1", n)
	}
}

func TestRig_DirectionsStep(t *testing.T) {
	tests := []struct {
		cmd   command.Command
		servo ServoName
		delta float64
	}{
		{command.NewSingle(gesture.LeftArm, gesture.Raised), LinearA, 2},
		{command.NewSingle(gesture.LeftArm, gesture.Back), LinearA, -2},
		{command.NewSingle(gesture.LeftArm, gesture.Left), LinearB, -2},
		{command.NewSingle(gesture.LeftArm, gesture.Right), LinearB, 2},
		{command.NewSingle(gesture.RightArm, gesture.Raised), RotateA, 2},
		{command.NewSingle(gesture.RightArm, gesture.Back), RotateA, -2},
		{command.NewSingle(gesture.RightArm, gesture.Left), RotateB, -2},
		{command.NewSingle(gesture.RightArm, gesture.Right), RotateB, 2},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.cmd.String(), func(t *testing.T) {
			rig, _ := newTestRig()
			before := rig.Targets()
			if err := rig.Apply(ctx, tt.cmd); err != nil {
				t.Fatalf("Apply: %v", err)
			}
			for i := 0; i < 3; i++ {
				if err := rig.Step(ctx); err != nil {
					t.Fatalf("Step: %v", err)
				}
			}
			after := rig.Targets()
			for _, name := range AllServos() {
				want := before[name]
				if name == tt.servo {
					want += 3 * tt.delta
				}
				if math.Abs(after[name]-want) > 1e-9 {
					t.Errorf("%s = %f, want %f", name, after[name], want)
				}
			}
		})
	}
}

func TestRig_StillStops(t *testing.T) {
	rig, bus := newTestRig()
	ctx := context.Background()

	rig.Apply(ctx, command.NewPair(gesture.Raised, gesture.Right))
	rig.Step(ctx)
	if !rig.Moving() {
		t.Fatal("pair did not start motion")
	}

	rig.Apply(ctx, command.NewComposite(command.GlobalStill))
	if rig.Moving() {
		t.Fatal("global still left a servo moving")
	}
	writes := bus.Writes()
	held := rig.Targets()
	rig.Step(ctx)
	if bus.Writes() != writes {
		t.Error("idle step wrote positions")
	}
	if got := rig.Targets(); got[LinearA] != held[LinearA] {
		t.Errorf("target moved after stop: %f -> %f", held[LinearA], got[LinearA])
	}
}

func TestRig_SingleRestsOtherArm(t *testing.T) {
	rig, _ := newTestRig()
	ctx := context.Background()

	rig.Apply(ctx, command.NewPair(gesture.Raised, gesture.Raised))
	rig.Apply(ctx, command.NewSingle(gesture.RightArm, gesture.Left))

	before := rig.Targets()
	rig.Step(ctx)
	after := rig.Targets()
	if after[LinearA] != before[LinearA] {
		t.Error("left arm servo kept moving after a right-arm single")
	}
	if after[RotateB] != before[RotateB]-2 {
		t.Errorf("rotate_b = %f, want %f", after[RotateB], before[RotateB]-2)
	}
}

func TestRig_Clamps(t *testing.T) {
	rig, _ := newTestRig()
	ctx := context.Background()

	rig.Apply(ctx, command.NewSingle(gesture.LeftArm, gesture.Raised))
	for i := 0; i < 200; i++ {
		rig.Step(ctx)
	}
	if got := rig.Targets()[LinearA]; got != MaxDeg {
		t.Errorf("linear_a = %f, want clamp at %f", got, MaxDeg)
	}
}

func TestRig_GesturePoses(t *testing.T) {
	rig, _ := newTestRig()
	ctx := context.Background()
	cfg := DefaultRigConfig()

	rig.Apply(ctx, command.NewComposite(command.GestureA))
	for name, want := range cfg.GestureA {
		if got := rig.Targets()[name]; got != want {
			t.Errorf("gesture A %s = %f, want %f", name, got, want)
		}
	}
	rig.Apply(ctx, command.NewComposite(command.GestureB))
	for name, want := range cfg.GestureB {
		if got := rig.Targets()[name]; got != want {
			t.Errorf("gesture B %s = %f, want %f", name, got, want)
		}
	}
}

func TestRig_RejectsSentinels(t *testing.T) {
	rig, _ := newTestRig()
	for _, cmd := range []command.Command{{}, command.NewInvalid(), command.NewPair(gesture.Code(7), gesture.Still)} {
		if err := rig.Apply(context.Background(), cmd); err == nil {
			t.Errorf("Apply(%s) accepted", cmd)
		}
	}
}

func TestRig_StartAdoptsPositions(t *testing.T) {
	cal := DefaultCalibration()
	initial := map[int]int{}
	for _, name := range AllServos() {
		initial[cal[name].ID] = cal[name].Raw(40)
	}
	bus := NewMemoryBus(initial)
	rig := NewRig(bus, DefaultRigConfig(), log.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rig.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && math.Abs(rig.Targets()[LinearA]-40) > 0.1 {
		time.Sleep(5 * time.Millisecond)
	}
	if !bus.Enabled() {
		t.Fatal("torque not enabled")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start: %v", err)
	}
	if bus.Enabled() {
		t.Error("torque left enabled after stop")
	}
	for name, deg := range rig.Targets() {
		if math.Abs(deg-40) > 0.1 {
			t.Errorf("%s target = %f, want 40", name, deg)
		}
	}
}
