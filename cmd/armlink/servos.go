package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.bug.st/serial"

	"github.com/gwillem/armlink/pkg/robot"
)

// rigPort is a serial port with rig servos attached.
type rigPort struct {
	port   string
	servos []feetech.FoundServo
	bus    *feetech.Bus
}

func (r rigPort) Close() error {
	return r.bus.Close()
}

// complete reports whether all four rig servo IDs answered.
func (r rigPort) complete() bool {
	ids := make(map[int]bool)
	for _, s := range r.servos {
		ids[s.ID] = true
	}
	for i := 1; i <= len(robot.AllServos()); i++ {
		if !ids[i] {
			return false
		}
	}
	return true
}

// findRigs scans every serial port for servos with IDs 1..maxID. The caller closes
// the returned ports.
func findRigs(maxID int) ([]rigPort, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}

	var found []rigPort
	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}

		bus, err := feetech.NewBus(feetech.BusConfig{
			Port:     port,
			BaudRate: 1_000_000,
			Protocol: feetech.ProtocolSTS,
			Timeout:  100 * time.Millisecond,
		})
		if err != nil {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		servos, err := bus.Scan(ctx, 1, maxID)
		cancel()
		if err != nil || len(servos) == 0 {
			bus.Close()
			continue
		}
		found = append(found, rigPort{port: port, servos: servos, bus: bus})
	}
	return found, nil
}

// wiggle moves servo 1 on the port back and forth so the operator can tell which rig it is.
func wiggle(r rigPort) error {
	var servo *feetech.Servo
	for _, s := range r.servos {
		if s.ID == 1 {
			servo = feetech.NewServo(r.bus, s.ID, s.Model)
			break
		}
	}
	if servo == nil {
		return fmt.Errorf("servo 1 not found on %s", r.port)
	}

	ctx := context.Background()
	origin, err := servo.Position(ctx)
	if err != nil {
		return fmt.Errorf("read position: %w", err)
	}
	if err := servo.Enable(ctx); err != nil {
		return fmt.Errorf("enable servo: %w", err)
	}
	defer servo.Disable(ctx)

	const amount, moveMs = 30, 500
	for _, pos := range []int{origin + amount, origin - amount, origin} {
		servo.SetPositionWithTime(ctx, pos, moveMs)
		time.Sleep(time.Duration(moveMs+100) * time.Millisecond)
	}
	return nil
}
