// Package signal maps mouth ratios onto the bounded control ranges sent downstream.
package signal

import (
	"github.com/ayusman/mouthosc/internal/geometry"
	"github.com/ayusman/mouthosc/internal/metrics"
)

// Channel identifies an output control channel.
type Channel string

// Output channels, named by their OSC address.
const (
	ChannelWidth  Channel = "/gesture/mouth/width"
	ChannelHeight Channel = "/gesture/mouth/height"
)

// Address returns the OSC address the channel is sent on.
func (c Channel) Address() string {
	return string(c)
}

// MappingRange describes how a raw ratio is remapped onto an output range.
type MappingRange struct {
	InMin  float64
	InMax  float64
	OutMin float64
	OutMax float64
}

// Apply remaps value through the range. The result is clamped to [OutMin, OutMax].
func (r MappingRange) Apply(value float64) float64 {
	return geometry.MapRange(value, r.InMin, r.InMax, r.OutMin, r.OutMax)
}

// Empirical ratio domains and output ranges. They are fixed for the process lifetime.
var (
	WidthRange = MappingRange{
		InMin:  0.35,
		InMax:  0.65,
		OutMin: 10.0,
		OutMax: 16.0,
	}
	HeightRange = MappingRange{
		InMin:  0.05,
		InMax:  0.65,
		OutMin: 5.0,
		OutMax: 10.0,
	}
)

// Signal is one mapped value on one channel.
type Signal struct {
	Channel Channel `json:"channel"`
	Value   float64 `json:"value"`
}

// Pair is the two signals produced for a frame with a detected face.
type Pair struct {
	Width  Signal
	Height Signal
}

// Signals returns the pair in emission order: width, then height.
func (p Pair) Signals() [2]Signal {
	return [2]Signal{p.Width, p.Height}
}

// Mapper converts RatioPairs into signal Pairs.
type Mapper struct {
	Width  MappingRange
	Height MappingRange
}

// DefaultMapper returns a Mapper using WidthRange and HeightRange.
func DefaultMapper() Mapper {
	return Mapper{
		Width:  WidthRange,
		Height: HeightRange,
	}
}

// Map converts one RatioPair. It has no side effects.
func (m Mapper) Map(r metrics.RatioPair) Pair {
	return Pair{
		Width:  Signal{Channel: ChannelWidth, Value: m.Width.Apply(r.Width)},
		Height: Signal{Channel: ChannelHeight, Value: m.Height.Apply(r.Height)},
	}
}
