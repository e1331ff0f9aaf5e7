package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gwillem/armlink/pkg/gesture"
)

// ErrUnknownToken is returned by Decode for lines that match no command.
var ErrUnknownToken = errors.New("unknown command token")

// Tokens is the wire vocabulary. It matches the rig firmware and can be overridden in the
// config file.
type Tokens struct {
	// Arm holds the digit of each gesture code, indexed by gesture.Code. Used for pairs and
	// left-arm singles.
	Arm [5]string `json:"arm"`
	// RightSingle holds the right-arm digits for singles, indexed by gesture.Code.
	RightSingle [5]string `json:"right_single"`
	PairSep     string    `json:"pair_sep"`
	GlobalStill string    `json:"global_still"`
	GestureA    string    `json:"gesture_a"`
	GestureB    string    `json:"gesture_b"`
	Home        string    `json:"home"`
}

// DefaultTokens returns the token set understood by the stock rig firmware.
func DefaultTokens() Tokens {
	return Tokens{
		Arm:         [5]string{"1", "2", "3", "4", "5"},
		RightSingle: [5]string{"8", "9", "7", "6", "10"},
		PairSep:     ",",
		GlobalStill: "QUIETO_TOTAL",
		GestureA:    "A,A",
		GestureB:    "B,B",
		Home:        "11",
	}
}

// Validate checks that every token is set and that no two commands share a token.
func (t Tokens) Validate() error {
	seen := make(map[string]string)
	add := func(tok, what string) error {
		if tok == "" {
			return fmt.Errorf("empty token for %s", what)
		}
		if strings.ContainsAny(tok, "\r\n") {
			return fmt.Errorf("token for %s contains a line break", what)
		}
		if prev, ok := seen[tok]; ok {
			return fmt.Errorf("token %q used by both %s and %s", tok, prev, what)
		}
		seen[tok] = what
		return nil
	}
	for _, c := range gesture.Codes() {
		if err := add(t.Arm[c], "left "+c.String()); err != nil {
			return err
		}
		if err := add(t.RightSingle[c], "right "+c.String()); err != nil {
			return err
		}
	}
	if t.PairSep == "" {
		return errors.New("empty pair separator")
	}
	for _, tok := range []struct{ v, what string }{
		{t.GlobalStill, "global-still"},
		{t.GestureA, "gesture-a"},
		{t.GestureB, "gesture-b"},
		{t.Home, "home"},
	} {
		if err := add(tok.v, tok.what); err != nil {
			return err
		}
	}
	return nil
}

// Codec converts commands to and from wire lines.
type Codec struct {
	tokens Tokens
	lookup map[string]Command
}

// NewCodec builds a codec for the given token set.
func NewCodec(t Tokens) (*Codec, error) {
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tokens: %w", err)
	}
	c := &Codec{tokens: t, lookup: make(map[string]Command)}
	for _, code := range gesture.Codes() {
		c.lookup[t.Arm[code]] = NewSingle(gesture.LeftArm, code)
		c.lookup[t.RightSingle[code]] = NewSingle(gesture.RightArm, code)
	}
	c.lookup[t.GlobalStill] = NewComposite(GlobalStill)
	c.lookup[t.GestureA] = NewComposite(GestureA)
	c.lookup[t.GestureB] = NewComposite(GestureB)
	c.lookup[t.Home] = NewHome()
	return c, nil
}

// DefaultCodec returns a codec for DefaultTokens.
func DefaultCodec() *Codec {
	c, err := NewCodec(DefaultTokens())
	if err != nil {
		panic(err)
	}
	return c
}

// Encode returns the newline-terminated wire line for cmd. Sentinels and malformed commands
// report ok=false and must not be sent.
func (c *Codec) Encode(cmd Command) (line string, ok bool) {
	var tok string
	switch cmd.Kind {
	case Pair:
		if !cmd.Left.Valid() || !cmd.Right.Valid() {
			return "", false
		}
		tok = c.tokens.Arm[cmd.Left] + c.tokens.PairSep + c.tokens.Arm[cmd.Right]
	case Single:
		if !cmd.Code.Valid() {
			return "", false
		}
		if cmd.Arm == gesture.RightArm {
			tok = c.tokens.RightSingle[cmd.Code]
		} else {
			tok = c.tokens.Arm[cmd.Code]
		}
	case Composite:
		switch cmd.Name {
		case GlobalStill:
			tok = c.tokens.GlobalStill
		case GestureA:
			tok = c.tokens.GestureA
		case GestureB:
			tok = c.tokens.GestureB
		default:
			return "", false
		}
	case Home:
		tok = c.tokens.Home
	default:
		return "", false
	}
	return tok + "\n", true
}

// Decode parses one wire line. Surrounding whitespace and the line terminator are ignored.
// Named tokens take precedence over the pair syntax, so "A,A" is always gesture-a.
func (c *Codec) Decode(line string) (Command, error) {
	tok := strings.TrimSpace(line)
	if cmd, ok := c.lookup[tok]; ok {
		return cmd, nil
	}
	left, right, found := strings.Cut(tok, c.tokens.PairSep)
	if found {
		l, lok := c.armCode(left)
		r, rok := c.armCode(right)
		if lok && rok {
			return NewPair(l, r), nil
		}
	}
	return Command{}, fmt.Errorf("%w: %q", ErrUnknownToken, tok)
}

func (c *Codec) armCode(tok string) (gesture.Code, bool) {
	for _, code := range gesture.Codes() {
		if c.tokens.Arm[code] == tok {
			return code, true
		}
	}
	return 0, false
}
