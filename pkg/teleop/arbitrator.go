package teleop

import (
	"fmt"
	"time"

	"github.com/gwillem/armlink/pkg/command"
	"github.com/gwillem/armlink/pkg/gesture"
	"github.com/gwillem/armlink/pkg/pose"
)

// Mode selects where arm codes come from.
type Mode int

const (
	Automatic Mode = iota // codes come from the pose classifier
	Manual                // codes come from operator key presses
)

func (m Mode) String() string {
	if m == Manual {
		return "manual"
	}
	return "automatic"
}

// Policy decides which arm combinations are valid in automatic mode.
type Policy int

const (
	// Exclusive allows at most one moving arm; the rig drives one actuator set at a time.
	Exclusive Policy = iota
	// Independent sends both arms as a pair every cycle.
	Independent
)

func (p Policy) String() string {
	if p == Independent {
		return "independent"
	}
	return "exclusive"
}

// ParsePolicy parses "exclusive" or "independent".
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "exclusive", "":
		return Exclusive, nil
	case "independent":
		return Independent, nil
	}
	return 0, fmt.Errorf("unknown policy %q", s)
}

// SentTracker reports the last command the transport actually wrote.
type SentTracker interface {
	LastSent() (command.Command, bool)
}

// ArbiterConfig configures an Arbitrator.
type ArbiterConfig struct {
	Policy      Policy
	Homing      bool
	HomingArm   gesture.Arm
	LostAfter   time.Duration // fall back to Still after this long without a person
	WarningHold time.Duration // keep the invalid-combination warning visible this long
}

// DefaultArbiterConfig returns the exclusive policy with right-arm homing.
func DefaultArbiterConfig() ArbiterConfig {
	return ArbiterConfig{
		Policy:      Exclusive,
		Homing:      true,
		HomingArm:   gesture.RightArm,
		LostAfter:   time.Second,
		WarningHold: 1500 * time.Millisecond,
	}
}

// ArmView is the display state of one arm.
type ArmView struct {
	Code    gesture.Code
	Label   string
	Sample  gesture.Sample
	Sampled bool // Sample holds a real detection
}

// Arbitrator turns per-arm codes into the single command to transmit. It is not safe for
// concurrent use; the Controller serializes access.
type Arbitrator struct {
	cfg        ArbiterConfig
	classifier gesture.Classifier
	sent       SentTracker

	mode    Mode
	auto    [2]gesture.Code
	manual  [2]gesture.Code
	samples [2]gesture.Sample
	sampled bool
	seen    time.Time

	lastPress   gesture.Arm
	homeArm     gesture.Code // homing arm code at the previous evaluation, -1 before the first
	homePending bool
	invalid     bool
	invalidAt   time.Time
	emitted     command.Command // fallback for LastSent when no tracker is set
	emittedOK   bool
	pending     command.Command
}

// NewArbitrator returns an arbitrator in automatic mode with both arms still.
// sent may be nil, in which case the arbitrator tracks its own emissions.
func NewArbitrator(cfg ArbiterConfig, classifier gesture.Classifier, sent SentTracker) *Arbitrator {
	return &Arbitrator{
		cfg:        cfg,
		classifier: classifier,
		sent:       sent,
		homeArm:    gesture.Code(-1),
	}
}

// Mode returns the current mode.
func (a *Arbitrator) Mode() Mode {
	return a.mode
}

// Codes returns the effective left and right codes.
func (a *Arbitrator) Codes() (left, right gesture.Code) {
	c := a.codes()
	return c[gesture.LeftArm], c[gesture.RightArm]
}

// Pending returns the command computed by the last evaluation.
func (a *Arbitrator) Pending() command.Command {
	return a.pending
}

// Warning reports whether an invalid combination was seen within the warning hold.
func (a *Arbitrator) Warning(now time.Time) bool {
	return a.invalid || (!a.invalidAt.IsZero() && now.Sub(a.invalidAt) < a.cfg.WarningHold)
}

// Arm returns the display state of one arm.
func (a *Arbitrator) Arm(arm gesture.Arm) ArmView {
	code := a.codes()[arm]
	return ArmView{
		Code:    code,
		Label:   code.Label(arm),
		Sample:  a.samples[arm],
		Sampled: a.sampled,
	}
}

// Observe feeds one detection result. Nil landmarks is a detection miss: codes hold until
// LostAfter has passed since the last detection, then both arms fall back to Still.
// Observations are ignored in manual mode.
func (a *Arbitrator) Observe(lm *pose.Landmarks, now time.Time) command.Command {
	if a.mode == Manual {
		return a.Evaluate(now)
	}

	if lm == nil {
		a.sampled = false
		if a.cfg.LostAfter > 0 && !a.seen.IsZero() && now.Sub(a.seen) >= a.cfg.LostAfter {
			a.auto = [2]gesture.Code{}
		}
		return a.Evaluate(now)
	}

	a.seen = now
	a.sampled = true
	for _, arm := range gesture.Arms() {
		s := lm.Arm(arm)
		a.samples[arm] = s
		a.auto[arm] = a.classifier.Classify(arm, s)
	}
	return a.Evaluate(now)
}

// SetMode switches the operation mode. Both arms are reset to Still on every change.
func (a *Arbitrator) SetMode(m Mode, now time.Time) command.Command {
	if m != a.mode {
		a.mode = m
		a.auto = [2]gesture.Code{}
		a.manual = [2]gesture.Code{}
	}
	return a.Evaluate(now)
}

// Press sets arm to code while in manual mode. It reports false when the press was ignored.
func (a *Arbitrator) Press(arm gesture.Arm, code gesture.Code, now time.Time) (command.Command, bool) {
	if a.mode != Manual || !arm.Valid() || !code.Valid() {
		return a.Evaluate(now), false
	}
	a.manual[arm] = code
	if code != gesture.Still {
		a.lastPress = arm
	}
	return a.Evaluate(now), true
}

// Release returns arm to Still while in manual mode.
func (a *Arbitrator) Release(arm gesture.Arm, now time.Time) command.Command {
	if a.mode == Manual && arm.Valid() {
		a.manual[arm] = gesture.Still
	}
	return a.Evaluate(now)
}

// Evaluate recomputes the pending command from the current codes.
func (a *Arbitrator) Evaluate(now time.Time) command.Command {
	codes := a.codes()
	cmd := a.combine(codes[gesture.LeftArm], codes[gesture.RightArm])

	a.invalid = cmd.Kind == command.Invalid
	if a.invalid {
		a.invalidAt = now
	}

	if a.cfg.Homing {
		cmd = a.home(codes[a.cfg.HomingArm], cmd)
	}

	a.pending = cmd
	if cmd.Sendable() {
		a.emitted, a.emittedOK = cmd, true
	}
	return cmd
}

func (a *Arbitrator) codes() [2]gesture.Code {
	if a.mode == Manual {
		return a.manual
	}
	return a.auto
}

func (a *Arbitrator) combine(left, right gesture.Code) command.Command {
	switch {
	case left == gesture.Still && right == gesture.Still:
		return command.NewComposite(command.GlobalStill)
	case left == gesture.Raised && right == gesture.Raised:
		return command.NewComposite(command.GestureA)
	case left == gesture.Back && right == gesture.Back:
		return command.NewComposite(command.GestureB)
	}

	if a.cfg.Policy == Independent {
		return command.NewPair(left, right)
	}

	switch {
	case right == gesture.Still:
		return command.NewSingle(gesture.LeftArm, left)
	case left == gesture.Still:
		return command.NewSingle(gesture.RightArm, right)
	case a.mode == Manual:
		// Both keys held: the latest press wins.
		code := left
		if a.lastPress == gesture.RightArm {
			code = right
		}
		return command.NewSingle(a.lastPress, code)
	}
	return command.NewInvalid()
}

// home replaces cmd with Home while a rest transition of the homing arm has not been
// confirmed by a still-equivalent transmission.
func (a *Arbitrator) home(code gesture.Code, cmd command.Command) command.Command {
	arm := a.cfg.HomingArm
	if code == gesture.Still && a.homeArm != gesture.Still {
		a.homePending = true
	}
	if code != gesture.Still {
		a.homePending = false
	}
	a.homeArm = code

	if !a.homePending {
		return cmd
	}
	if last, ok := a.lastSent(); ok && last.StillFor(arm) {
		a.homePending = false
		return cmd
	}
	return command.NewHome()
}

func (a *Arbitrator) lastSent() (command.Command, bool) {
	if a.sent != nil {
		return a.sent.LastSent()
	}
	return a.emitted, a.emittedOK
}
