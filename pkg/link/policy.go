package link

import (
	"fmt"
	"time"
)

// State is the connection state of the transport.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Policy controls how connection attempts are retried.
type Policy struct {
	Name     string
	Attempts int           // attempts per connect; 0 means unbounded
	Delay    time.Duration // pause between failed attempts
	Auto     bool          // reconnect by itself after the link drops
}

// PolicyOnce makes a single attempt and leaves reconnecting to the operator.
func PolicyOnce() Policy {
	return Policy{Name: "once", Attempts: 1}
}

// PolicyBounded retries 30 times, half a second apart.
func PolicyBounded() Policy {
	return Policy{Name: "bounded", Attempts: 30, Delay: 500 * time.Millisecond}
}

// PolicyPersistent retries forever every 5 seconds and reconnects after link loss.
func PolicyPersistent() Policy {
	return Policy{Name: "persistent", Delay: 5 * time.Second, Auto: true}
}

// ParsePolicy returns the named retry policy.
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "once":
		return PolicyOnce(), nil
	case "bounded", "":
		return PolicyBounded(), nil
	case "persistent":
		return PolicyPersistent(), nil
	}
	return Policy{}, fmt.Errorf("unknown retry policy %q", name)
}

// more reports whether another attempt is allowed after attempt n (1-based).
func (p Policy) more(n int) bool {
	return p.Attempts <= 0 || n < p.Attempts
}
