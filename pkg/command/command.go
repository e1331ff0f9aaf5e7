// Package command defines the motion commands sent to the rig and their wire encoding.
package command

import (
	"fmt"

	"github.com/gwillem/armlink/pkg/gesture"
)

// Kind tags the variant held by a Command.
type Kind int

const (
	// None means there is nothing to transmit. It is the zero value.
	None Kind = iota
	// Invalid marks a rejected arm combination. Like None it is never transmitted.
	Invalid
	// Pair carries both arms' codes.
	Pair
	// Single carries one arm's code while the other rests.
	Single
	// Composite is a named whole-body command.
	Composite
	// Home drives the actuators back to their rest position.
	Home
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Invalid:
		return "invalid"
	case Pair:
		return "pair"
	case Single:
		return "single"
	case Composite:
		return "composite"
	case Home:
		return "home"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Name identifies a composite command.
type Name int

const (
	GlobalStill Name = iota + 1 // both arms at rest
	GestureA                    // both arms raised
	GestureB                    // both wrists held at the shoulders
)

func (n Name) String() string {
	switch n {
	case GlobalStill:
		return "global-still"
	case GestureA:
		return "gesture-a"
	case GestureB:
		return "gesture-b"
	default:
		return fmt.Sprintf("name(%d)", int(n))
	}
}

// Command is a closed tagged union. Construct it with the helper functions; the zero value is
// the None sentinel. Commands are comparable with ==.
type Command struct {
	Kind  Kind
	Left  gesture.Code // Pair
	Right gesture.Code // Pair
	Arm   gesture.Arm  // Single
	Code  gesture.Code // Single
	Name  Name         // Composite
}

// NewPair returns a command carrying both arms.
func NewPair(left, right gesture.Code) Command {
	return Command{Kind: Pair, Left: left, Right: right}
}

// NewSingle returns a command for one arm.
func NewSingle(arm gesture.Arm, code gesture.Code) Command {
	return Command{Kind: Single, Arm: arm, Code: code}
}

// NewComposite returns a named composite command.
func NewComposite(name Name) Command {
	return Command{Kind: Composite, Name: name}
}

// NewHome returns the homing command.
func NewHome() Command {
	return Command{Kind: Home}
}

// NewInvalid returns the rejected-combination sentinel.
func NewInvalid() Command {
	return Command{Kind: Invalid}
}

// Sendable reports whether c is a real command rather than a sentinel.
func (c Command) Sendable() bool {
	return c.Kind != None && c.Kind != Invalid
}

// StillFor reports whether c leaves arm at rest: homing, a global still, or an explicit still
// for that arm.
func (c Command) StillFor(arm gesture.Arm) bool {
	switch c.Kind {
	case Home:
		return true
	case Composite:
		return c.Name == GlobalStill
	case Single:
		return c.Arm == arm && c.Code == gesture.Still
	case Pair:
		if arm == gesture.LeftArm {
			return c.Left == gesture.Still
		}
		return c.Right == gesture.Still
	}
	return false
}

func (c Command) String() string {
	switch c.Kind {
	case Pair:
		return fmt.Sprintf("pair(%s,%s)", c.Left, c.Right)
	case Single:
		return fmt.Sprintf("single(%s:%s)", c.Arm, c.Code)
	case Composite:
		return c.Name.String()
	default:
		return c.Kind.String()
	}
}
