package robot

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
)

// Bus reads and writes raw positions of a servo group.
type Bus interface {
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	Positions(ctx context.Context) (map[int]int, error)
	SetPositions(ctx context.Context, positions map[int]int) error
	Close() error
}

type servoBus struct {
	bus   *feetech.Bus
	group *feetech.ServoGroup
}

// OpenBus opens the serial bus on port and groups the servos with the given IDs.
func OpenBus(port string, ids ...int) (Bus, error) {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}

	return &servoBus{
		bus:   bus,
		group: feetech.NewServoGroupByIDs(bus, ids...),
	}, nil
}

func (b *servoBus) Enable(ctx context.Context) error {
	return b.group.EnableAll(ctx)
}

func (b *servoBus) Disable(ctx context.Context) error {
	return b.group.DisableAll(ctx)
}

func (b *servoBus) Positions(ctx context.Context) (map[int]int, error) {
	raw, err := b.group.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}
	out := make(map[int]int, len(raw))
	for id, pos := range raw {
		out[id] = pos
	}
	return out, nil
}

func (b *servoBus) SetPositions(ctx context.Context, positions map[int]int) error {
	raw := make(feetech.PositionMap, len(positions))
	for id, pos := range positions {
		raw[id] = pos
	}
	if err := b.group.SetPositions(ctx, raw); err != nil {
		return fmt.Errorf("write positions: %w", err)
	}
	return nil
}

func (b *servoBus) Close() error {
	return b.bus.Close()
}

// MemoryBus keeps positions in memory. It stands in for hardware in dry runs.
type MemoryBus struct {
	mu      sync.Mutex
	pos     map[int]int
	enabled bool
	writes  int
}

// NewMemoryBus returns a bus whose servos start at the given raw positions.
func NewMemoryBus(initial map[int]int) *MemoryBus {
	return &MemoryBus{pos: maps.Clone(initial)}
}

func (b *MemoryBus) Enable(context.Context) error {
	b.mu.Lock()
	b.enabled = true
	b.mu.Unlock()
	return nil
}

func (b *MemoryBus) Disable(context.Context) error {
	b.mu.Lock()
	b.enabled = false
	b.mu.Unlock()
	return nil
}

func (b *MemoryBus) Positions(context.Context) (map[int]int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return maps.Clone(b.pos), nil
}

func (b *MemoryBus) SetPositions(_ context.Context, positions map[int]int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pos == nil {
		b.pos = make(map[int]int, len(positions))
	}
	maps.Copy(b.pos, positions)
	b.writes++
	return nil
}

func (b *MemoryBus) Close() error {
	return nil
}

// Enabled reports whether torque is on.
func (b *MemoryBus) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled
}

// Writes returns the number of SetPositions calls.
func (b *MemoryBus) Writes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writes
}
