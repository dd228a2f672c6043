// Package gesture defines the fixed set of scroll gestures the classifier
// is trained on and the training options that select them.
package gesture

import (
	"errors"
	"fmt"
)

// ErrUnknownOption is returned when a training option is not recognised.
var ErrUnknownOption = errors.New("unknown training option")

// Class is a gesture class index. Indices are stored alongside trained
// weights, so they must never be renumbered.
type Class int

const (
	// None means "no class": not training, or no prediction available.
	None Class = -1
	// NoAction is the resting pose; it never scrolls.
	NoAction Class = 0
	// Down scrolls the page down.
	Down Class = 1
	// Up scrolls the page up.
	Up Class = 2
)

// NumClasses is the number of trainable classes.
const NumClasses = 3

// All lists every trainable class in index order.
var All = [NumClasses]Class{NoAction, Down, Up}

// Valid reports whether c is a trainable class.
func (c Class) Valid() bool {
	return c >= 0 && int(c) < NumClasses
}

// String returns the training option name for c.
func (c Class) String() string {
	switch c {
	case NoAction:
		return "noaction"
	case Down:
		return "down"
	case Up:
		return "up"
	case None:
		return "none"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Direction returns the scroll direction bound to c, or DirectionNone for
// classes that do not scroll.
func (c Class) Direction() Direction {
	switch c {
	case Down:
		return DirectionDown
	case Up:
		return DirectionUp
	default:
		return DirectionNone
	}
}

// Direction is a page scroll direction as carried on the wire.
type Direction string

const (
	DirectionNone Direction = ""
	DirectionDown Direction = "down"
	DirectionUp   Direction = "up"
)

// Valid reports whether d names an actual scroll direction.
func (d Direction) Valid() bool {
	return d == DirectionDown || d == DirectionUp
}

// Option is a value of the "train" command.
type Option string

const (
	OptionSave     Option = "save"
	OptionOff      Option = "off"
	OptionNoAction Option = "noaction"
	OptionDown     Option = "down"
	OptionUp       Option = "up"
)

// Target maps a training option to the class to collect samples for.
// "save" and "off" both map to None: neither collects samples.
func (o Option) Target() (Class, error) {
	switch o {
	case OptionSave, OptionOff:
		return None, nil
	case OptionNoAction:
		return NoAction, nil
	case OptionDown:
		return Down, nil
	case OptionUp:
		return Up, nil
	default:
		return None, fmt.Errorf("%w: %q", ErrUnknownOption, string(o))
	}
}
