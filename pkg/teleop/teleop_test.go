package teleop

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gwillem/armlink/internal/log"
	"github.com/gwillem/armlink/pkg/command"
	"github.com/gwillem/armlink/pkg/gesture"
	"github.com/gwillem/armlink/pkg/link"
	"github.com/gwillem/armlink/pkg/peer"
	"github.com/gwillem/armlink/pkg/pose"
)

type fakeFrame struct {
	lm     *pose.Landmarks
	closed *atomic.Int64
}

func (f *fakeFrame) Close() error {
	f.closed.Add(1)
	return nil
}

type fakeSource struct {
	lm        atomic.Pointer[pose.Landmarks]
	failAfter int64
	opened    atomic.Int64
	closed    atomic.Int64
}

func (s *fakeSource) Read(ctx context.Context) (pose.Frame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(2 * time.Millisecond):
	}
	if s.failAfter > 0 && s.opened.Load() >= s.failAfter {
		return nil, errors.New("device unplugged")
	}
	s.opened.Add(1)
	return &fakeFrame{lm: s.lm.Load(), closed: &s.closed}, nil
}

func (s *fakeSource) Close() error { return nil }

type fakeOracle struct{}

func (fakeOracle) Estimate(f pose.Frame) (*pose.Landmarks, error) {
	return f.(*fakeFrame).lm, nil
}

func (fakeOracle) Close() error { return nil }

type recorder struct {
	mu   sync.Mutex
	cmds []command.Command
}

func (r *recorder) Apply(_ context.Context, cmd command.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, cmd)
	return nil
}

func (r *recorder) all() []command.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]command.Command(nil), r.cmds...)
}

func (r *recorder) last() (command.Command, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.cmds) == 0 {
		return command.Command{}, false
	}
	return r.cmds[len(r.cmds)-1], true
}

func startRig(t *testing.T) (*recorder, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	rec := &recorder{}
	srv := peer.NewServer(command.DefaultCodec(), rec, log.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return rec, ln.Addr().String()
}

func testControllerConfig(addr string) Config {
	lc := link.DefaultConfig(addr)
	lc.SendInterval = 5 * time.Millisecond
	lc.Retry = link.PolicyOnce()
	return Config{
		Arbiter:    DefaultArbiterConfig(),
		Classifier: gesture.NewClassifier(false),
		Link:       lc,
		Reevaluate: 10 * time.Millisecond,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func runController(t *testing.T, c *Controller) <-chan error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	stopped := make(chan struct{})
	go func() {
		done <- c.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-stopped:
		case <-time.After(3 * time.Second):
			t.Error("controller did not stop")
		}
	})
	return done
}

func TestController_AutomaticPipeline(t *testing.T) {
	rec, addr := startRig(t)
	src := &fakeSource{}
	src.lm.Store(landmarks(gesture.Raised, gesture.Still))

	c, err := NewController(testControllerConfig(addr), src, fakeOracle{}, log.Discard())
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	runController(t, c)

	want := command.NewSingle(gesture.LeftArm, gesture.Raised)
	waitFor(t, "left raised at the rig", func() bool {
		last, ok := rec.last()
		return ok && last == want
	})
	if first := rec.all()[0]; first != command.NewHome() {
		t.Errorf("first command = %s, want home", first)
	}

	snap := c.Snapshot()
	if snap.Mode != Automatic || snap.Left.Code != gesture.Raised || snap.Left.Label != "Forward" {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.Link != link.Connected {
		t.Errorf("link = %s, want connected", snap.Link)
	}

	// Both arms moving is rejected: nothing new reaches the rig.
	src.lm.Store(landmarks(gesture.Raised, gesture.Left))
	waitFor(t, "warning", func() bool { return c.Snapshot().Warning })
	n := len(rec.all())
	time.Sleep(50 * time.Millisecond)
	if got := len(rec.all()); got != n {
		t.Errorf("rig received %d commands during a violation", got-n)
	}

	src.lm.Store(landmarks(gesture.Raised, gesture.Raised))
	waitFor(t, "gesture A", func() bool {
		last, _ := rec.last()
		return last == command.NewComposite(command.GestureA)
	})
}

func TestController_ManualOnly(t *testing.T) {
	rec, addr := startRig(t)
	c, err := NewController(testControllerConfig(addr), nil, nil, log.Discard())
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	runController(t, c)

	waitFor(t, "connected", func() bool { return c.Snapshot().Link == link.Connected })
	if c.Snapshot().Mode != Manual {
		t.Fatal("controller without camera not in manual mode")
	}

	c.SetMode(Automatic)
	c.Press(gesture.RightArm, gesture.Left)
	want := command.NewSingle(gesture.RightArm, gesture.Left)
	waitFor(t, "right left at the rig", func() bool {
		last, _ := rec.last()
		return last == want
	})

	c.Release(gesture.RightArm)
	waitFor(t, "home after release", func() bool {
		last, _ := rec.last()
		return last == command.NewHome() || last == command.NewComposite(command.GlobalStill)
	})
}

func TestController_ManualOverridesCamera(t *testing.T) {
	rec, addr := startRig(t)
	src := &fakeSource{}
	src.lm.Store(landmarks(gesture.Left, gesture.Still))

	c, err := NewController(testControllerConfig(addr), src, fakeOracle{}, log.Discard())
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	runController(t, c)

	c.SetMode(Manual)
	waitFor(t, "manual mode", func() bool { return c.Snapshot().Mode == Manual })

	c.Press(gesture.LeftArm, gesture.Back)
	want := command.NewSingle(gesture.LeftArm, gesture.Back)
	waitFor(t, "manual command", func() bool {
		last, _ := rec.last()
		return last == want
	})
	if got := c.Snapshot().Left.Code; got != gesture.Back {
		t.Errorf("left code = %s, want back", got)
	}
}

func TestController_CameraFailureStops(t *testing.T) {
	_, addr := startRig(t)
	src := &fakeSource{failAfter: 5}
	src.lm.Store(landmarks(gesture.Still, gesture.Still))

	c, err := NewController(testControllerConfig(addr), src, fakeOracle{}, log.Discard())
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	done := runController(t, c)

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Run returned nil after camera failure")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run kept going after camera failure")
	}

	if opened, closed := src.opened.Load(), src.closed.Load(); opened != closed {
		t.Errorf("frames opened %d, closed %d", opened, closed)
	}
}

func TestNewController_RequiresBothPoseParts(t *testing.T) {
	if _, err := NewController(testControllerConfig("rig:1"), &fakeSource{}, nil, nil); err == nil {
		t.Error("expected error with a source but no oracle")
	}
}
