package wire

import (
	"math"
	"strconv"
)

// Mode is a subscription mode.
type Mode string

// Subscription modes.
const (
	ModeMerge    Mode = "MERGE"
	ModeDistinct Mode = "DISTINCT"
	ModeRaw      Mode = "RAW"
	ModeCommand  Mode = "COMMAND"
)

// Valid reports whether m is one of the four protocol modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeMerge, ModeDistinct, ModeRaw, ModeCommand:
		return true
	}
	return false
}

// Frequency is an update rate in updates per second. The zero value is a
// rate of 0; Unlimited marks the absence of a limit.
type Frequency struct {
	Unlimited bool
	Value     float64
}

// UnlimitedFrequency is the rate reported as "unlimited".
var UnlimitedFrequency = Frequency{Unlimited: true}

// ParseFrequency parses "unlimited" or a decimal number.
func ParseFrequency(s string) (Frequency, error) {
	if s == "unlimited" {
		return UnlimitedFrequency, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return Frequency{}, strconv.ErrSyntax
	}
	return Frequency{Value: v}, nil
}

// Less orders frequencies with unlimited as the largest value.
func (f Frequency) Less(o Frequency) bool {
	switch {
	case f.Unlimited:
		return false
	case o.Unlimited:
		return true
	default:
		return f.Value < o.Value
	}
}

// Equal compares two frequencies.
func (f Frequency) Equal(o Frequency) bool {
	if f.Unlimited || o.Unlimited {
		return f.Unlimited == o.Unlimited
	}
	return f.Value == o.Value
}

func (f Frequency) String() string {
	if f.Unlimited {
		return "unlimited"
	}
	return strconv.FormatFloat(f.Value, 'f', -1, 64)
}
