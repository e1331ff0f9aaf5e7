package peer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gwillem/armlink/internal/log"
	"github.com/gwillem/armlink/pkg/command"
	"github.com/gwillem/armlink/pkg/gesture"
)

type recorder struct {
	mu   sync.Mutex
	cmds []command.Command
	fail error
}

func (r *recorder) Apply(_ context.Context, cmd command.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.cmds = append(r.cmds, cmd)
	return nil
}

func (r *recorder) all() []command.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]command.Command(nil), r.cmds...)
}

func startServer(t *testing.T, act Actuator) (*Server, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(command.DefaultCodec(), act, log.Discard())

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Serve: %v", err)
		}
	})
	return srv, ln.Addr().String()
}

func roundTrip(t *testing.T, conn net.Conn, r *bufio.Reader, line string) string {
	t.Helper()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
		t.Fatalf("write %q: %v", line, err)
	}
	reply, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read reply to %q: %v", line, err)
	}
	return reply
}

func TestServer_Replies(t *testing.T) {
	rec := &recorder{}
	_, addr := startServer(t, rec)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	r := bufio.NewReader(conn)

	tests := []struct {
		line, want string
	}{
		{"2,1", "OK 2,1\n"},
		{"QUIETO_TOTAL", "OK QUIETO_TOTAL\n"},
		{"11", "OK 11\n"},
		{"bogus", "ERR unknown command\n"},
	}
	for _, tt := range tests {
		if got := roundTrip(t, conn, r, tt.line); got != tt.want {
			t.Errorf("reply to %q = %q, want %q", tt.line, got, tt.want)
		}
	}

	want := []command.Command{
		command.NewPair(gesture.Raised, gesture.Still),
		command.NewComposite(command.GlobalStill),
		command.NewHome(),
	}
	got := rec.all()
	if len(got) != len(want) {
		t.Fatalf("applied %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("applied[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestServer_ActuatorError(t *testing.T) {
	_, addr := startServer(t, &recorder{fail: errors.New("bus offline")})

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if got := roundTrip(t, conn, bufio.NewReader(conn), "8"); got != "ERR bus offline\n" {
		t.Errorf("reply = %q", got)
	}
}

func TestServer_SequentialClients(t *testing.T) {
	rec := &recorder{}
	srv, addr := startServer(t, rec)

	for i := 0; i < 2; i++ {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}
		if got := roundTrip(t, conn, bufio.NewReader(conn), "A,A"); got != "OK A,A\n" {
			t.Errorf("client %d reply = %q", i, got)
		}
		conn.Close()
	}

	if n := srv.Clients(); n != 2 {
		t.Errorf("Clients = %d, want 2", n)
	}
	if n := len(rec.all()); n != 2 {
		t.Errorf("applied %d commands, want 2", n)
	}
}
