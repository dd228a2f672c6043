// Package protocol defines the messages exchanged between the operator panel,
// the control loop and the page actuator.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ayusman/camscroll/internal/gesture"
)

var (
	// ErrInvalidCommand is returned for commands that do not carry exactly one
	// of train, infer or reset.
	ErrInvalidCommand = errors.New("invalid command")
	// ErrInvalidActuation is returned for actuator messages that carry neither
	// off nor a valid on direction.
	ErrInvalidActuation = errors.New("invalid actuation")
)

// Command is sent from the operator panel (or the HTTP API) to the control
// loop. Exactly one field is set.
type Command struct {
	Train *gesture.Option `json:"train,omitempty"`
	Infer *bool           `json:"infer,omitempty"`
	Reset *bool           `json:"reset,omitempty"`
}

// Train builds a {train: option} command.
func Train(o gesture.Option) Command {
	return Command{Train: &o}
}

// Infer builds an {infer: on} command.
func Infer(on bool) Command {
	return Command{Infer: &on}
}

// Reset builds a {reset: true} command.
func Reset() Command {
	t := true
	return Command{Reset: &t}
}

// Validate checks that c carries exactly one well-formed field.
func (c Command) Validate() error {
	n := 0
	if c.Train != nil {
		n++
		if _, err := c.Train.Target(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCommand, err)
		}
	}
	if c.Infer != nil {
		n++
	}
	if c.Reset != nil {
		n++
		if !*c.Reset {
			return fmt.Errorf("%w: reset must be true", ErrInvalidCommand)
		}
	}
	if n != 1 {
		return fmt.Errorf("%w: expected exactly one of train, infer, reset; got %d", ErrInvalidCommand, n)
	}
	return nil
}

// String renders c in its wire form, for logging.
func (c Command) String() string {
	b, err := json.Marshal(c)
	if err != nil {
		return "<invalid command>"
	}
	return string(b)
}

// DecodeCommand parses and validates a command.
func DecodeCommand(data []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(data, &c); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if err := c.Validate(); err != nil {
		return Command{}, err
	}
	return c, nil
}

// On starts scrolling in a direction.
type On struct {
	Direction gesture.Direction `json:"direction"`
}

// Actuation is sent from the control loop to the page actuator. When both
// fields are set, Off is applied before On.
type Actuation struct {
	Off bool `json:"off,omitempty"`
	On  *On  `json:"on,omitempty"`
}

// Stop builds an {off: true} message.
func Stop() Actuation {
	return Actuation{Off: true}
}

// Start builds an {on: {direction}} message.
func Start(d gesture.Direction) Actuation {
	return Actuation{On: &On{Direction: d}}
}

// Validate checks that a carries something to do.
func (a Actuation) Validate() error {
	if a.On != nil && !a.On.Direction.Valid() {
		return fmt.Errorf("%w: direction %q", ErrInvalidActuation, string(a.On.Direction))
	}
	if !a.Off && a.On == nil {
		return fmt.Errorf("%w: empty message", ErrInvalidActuation)
	}
	return nil
}

// String renders a in its wire form, for logging.
func (a Actuation) String() string {
	b, err := json.Marshal(a)
	if err != nil {
		return "<invalid actuation>"
	}
	return string(b)
}

// DecodeActuation parses and validates an actuator message.
func DecodeActuation(data []byte) (Actuation, error) {
	var a Actuation
	if err := json.Unmarshal(data, &a); err != nil {
		return Actuation{}, fmt.Errorf("%w: %v", ErrInvalidActuation, err)
	}
	if err := a.Validate(); err != nil {
		return Actuation{}, err
	}
	return a, nil
}
