// Package teleop turns the operator's pose or key input into rig commands.
package teleop

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gwillem/armlink/internal/log"
	"github.com/gwillem/armlink/pkg/command"
	"github.com/gwillem/armlink/pkg/gesture"
	"github.com/gwillem/armlink/pkg/link"
	"github.com/gwillem/armlink/pkg/mailbox"
	"github.com/gwillem/armlink/pkg/pose"
)

// Snapshot is a consistent view of the pipeline for presentation.
type Snapshot struct {
	Mode      Mode
	Left      ArmView
	Right     ArmView
	Pending   command.Command
	LastSent  command.Command
	Warning   bool
	Link      link.State
	Session   string
	Sent      uint64
	Detecting bool // a pose source is attached
	Timestamp time.Time
}

// Config holds configuration for the controller.
type Config struct {
	Arbiter    ArbiterConfig
	Classifier gesture.Classifier
	Link       link.Config
	Codec      *command.Codec
	// Reevaluate recomputes the pending command at this interval even without new frames,
	// so time-based rules (lost person, warning hold) apply in manual-only runs.
	Reevaluate time.Duration
}

type eventKind int

const (
	evMode eventKind = iota
	evPress
	evRelease
)

type event struct {
	kind eventKind
	mode Mode
	arm  gesture.Arm
	code gesture.Code
}

// Controller runs the capture, detection and transport loops.
type Controller struct {
	source pose.Source // nil for manual-only operation
	oracle pose.Oracle
	link   *link.Client
	logger *slog.Logger
	reeval time.Duration

	mu      sync.RWMutex
	arb     *Arbitrator
	running bool

	frames  *mailbox.Mailbox[pose.Frame]
	pending *mailbox.Mailbox[command.Command]
	events  chan event
	stateCh chan Snapshot
	logCh   chan string
}

// NewController creates a controller. source and oracle may both be nil, in which case only
// manual mode produces motion.
func NewController(cfg Config, source pose.Source, oracle pose.Oracle, logger *slog.Logger) (*Controller, error) {
	if (source == nil) != (oracle == nil) {
		return nil, fmt.Errorf("pose source and oracle must be set together")
	}
	if cfg.Codec == nil {
		cfg.Codec = command.DefaultCodec()
	}
	if cfg.Reevaluate <= 0 {
		cfg.Reevaluate = 100 * time.Millisecond
	}
	if logger == nil {
		logger = log.L()
	}

	c := &Controller{
		source:  source,
		oracle:  oracle,
		reeval:  cfg.Reevaluate,
		frames:  mailbox.New[pose.Frame](),
		pending: mailbox.New[command.Command](),
		events:  make(chan event, 32),
		stateCh: make(chan Snapshot, 1),
		logCh:   make(chan string, 10),
	}
	c.logger = slog.New(log.Fanout{logger.Handler(), log.NewChannelHandler(c.logCh, slog.LevelInfo)})
	c.link = link.New(cfg.Link, cfg.Codec, c.pending, c.logger.With("component", "link"))
	c.arb = NewArbitrator(cfg.Arbiter, cfg.Classifier, c.link)

	if source == nil {
		c.arb.SetMode(Manual, time.Now())
	}
	return c, nil
}

// States returns a channel that receives snapshot updates.
func (c *Controller) States() <-chan Snapshot {
	return c.stateCh
}

// Logs returns a channel that receives log messages.
func (c *Controller) Logs() <-chan string {
	return c.logCh
}

// Link returns the transport client.
func (c *Controller) Link() *link.Client {
	return c.link
}

// Snapshot returns the current pipeline state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot(time.Now())
}

func (c *Controller) snapshot(now time.Time) Snapshot {
	last, _ := c.link.LastSent()
	return Snapshot{
		Mode:      c.arb.Mode(),
		Left:      c.arb.Arm(gesture.LeftArm),
		Right:     c.arb.Arm(gesture.RightArm),
		Pending:   c.arb.Pending(),
		LastSent:  last,
		Warning:   c.arb.Warning(now),
		Link:      c.link.State(),
		Session:   c.link.Session(),
		Sent:      c.link.Sent(),
		Detecting: c.source != nil,
		Timestamp: now,
	}
}

// SetMode switches between automatic and manual mode. Without a pose source the controller
// stays in manual mode.
func (c *Controller) SetMode(m Mode) {
	if m == Automatic && c.source == nil {
		c.logger.Warn("no camera attached, staying in manual mode")
		return
	}
	c.submit(event{kind: evMode, mode: m})
}

// ToggleMode flips between automatic and manual mode.
func (c *Controller) ToggleMode() {
	c.mu.RLock()
	m := c.arb.Mode()
	c.mu.RUnlock()
	if m == Manual {
		c.SetMode(Automatic)
	} else {
		c.SetMode(Manual)
	}
}

// Press holds arm at code. Ignored outside manual mode.
func (c *Controller) Press(arm gesture.Arm, code gesture.Code) {
	c.submit(event{kind: evPress, arm: arm, code: code})
}

// Release returns arm to Still. Ignored outside manual mode.
func (c *Controller) Release(arm gesture.Arm) {
	c.submit(event{kind: evRelease, arm: arm})
}

// Connect asks the transport to connect.
func (c *Controller) Connect() {
	c.link.Connect()
}

// Disconnect asks the transport to close the link.
func (c *Controller) Disconnect() {
	c.link.Disconnect()
}

func (c *Controller) submit(ev event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("input queue full, event dropped")
	}
}

// Run starts all loops and blocks until ctx is done or the camera fails.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("already running")
	}
	c.running = true
	c.mu.Unlock()

	defer c.shutdown()

	c.logger.Info("teleoperation started", "rig", c.link.Addr(), "camera", c.source != nil)

	g, ctx := errgroup.WithContext(ctx)
	if c.source != nil {
		g.Go(func() error { return c.capture(ctx) })
	}
	g.Go(func() error { return c.arbitrate(ctx) })
	g.Go(func() error { return c.link.Run(ctx) })
	g.Go(func() error { return c.forwardLink(ctx) })

	return g.Wait()
}

// capture keeps the newest frame in the mailbox, releasing frames nobody picked up.
func (c *Controller) capture(ctx context.Context) error {
	defer func() {
		if err := c.source.Close(); err != nil {
			c.logger.Warn("close camera", "err", err)
		}
	}()

	for {
		frame, err := c.source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("camera failed", "err", err)
			return fmt.Errorf("capture: %w", err)
		}
		if old, replaced := c.frames.Put(frame); replaced && old != nil {
			old.Close()
		}
	}
}

func (c *Controller) arbitrate(ctx context.Context) error {
	ticker := time.NewTicker(c.reeval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-c.events:
			c.apply(ev)
		case <-c.frames.Updated():
			c.detect()
		case <-ticker.C:
			c.update(func(a *Arbitrator, now time.Time) command.Command {
				return a.Evaluate(now)
			})
		}
	}
}

func (c *Controller) apply(ev event) {
	c.update(func(a *Arbitrator, now time.Time) command.Command {
		switch ev.kind {
		case evMode:
			if a.Mode() != ev.mode {
				c.logger.Info("mode changed", "mode", ev.mode.String())
			}
			return a.SetMode(ev.mode, now)
		case evPress:
			cmd, ok := a.Press(ev.arm, ev.code, now)
			if !ok {
				c.logger.Debug("press ignored", "arm", ev.arm.String(), "mode", a.Mode().String())
			}
			return cmd
		default:
			return a.Release(ev.arm, now)
		}
	})
}

// detect runs the pose oracle on the newest frame. In manual mode frames are dropped unread.
func (c *Controller) detect() {
	frame, ok := c.frames.Take()
	if !ok {
		return
	}
	defer frame.Close()

	c.mu.RLock()
	manual := c.arb.Mode() == Manual
	c.mu.RUnlock()
	if manual {
		return
	}

	lm, err := c.oracle.Estimate(frame)
	if err != nil {
		c.logger.Warn("pose estimation failed", "err", err)
		lm = nil
	}

	c.update(func(a *Arbitrator, now time.Time) command.Command {
		return a.Observe(lm, now)
	})
}

// update applies fn under the state lock and publishes the result.
func (c *Controller) update(fn func(a *Arbitrator, now time.Time) command.Command) {
	now := time.Now()

	c.mu.Lock()
	wasWarning := c.arb.Warning(now)
	cmd := fn(c.arb, now)
	warning := c.arb.Warning(now)
	snap := c.snapshot(now)
	c.mu.Unlock()

	if warning && !wasWarning {
		c.logger.Warn("invalid motion: move one arm at a time")
	}

	if prev, ok := c.pending.Load(); !ok || prev != cmd {
		c.logger.Debug("pending", "cmd", cmd.String())
	}
	c.pending.Put(cmd)
	c.sendState(snap)
}

// forwardLink republishes snapshots when the link state changes.
func (c *Controller) forwardLink(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.link.States():
			c.sendState(c.Snapshot())
		}
	}
}

func (c *Controller) sendState(s Snapshot) {
	select {
	case c.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-c.stateCh:
		default:
		}
		select {
		case c.stateCh <- s:
		default:
		}
	}
}

func (c *Controller) shutdown() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	if frame, ok := c.frames.Take(); ok {
		frame.Close()
	}
	if c.oracle != nil {
		if err := c.oracle.Close(); err != nil {
			c.logger.Warn("close pose model", "err", err)
		}
	}
	c.logger.Info("teleoperation stopped")
}
