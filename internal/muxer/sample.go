package muxer

import (
	"time"
)

// SampleFlags are flags of a sample.
type SampleFlags int

// sample flags.
const (
	FlagKeyFrame SampleFlags = 1 << iota
	FlagEndOfStream
)

// SampleInfo contains timing and flags of a sample.
type SampleInfo struct {
	// presentation timestamp, with microsecond precision.
	PTS   time.Duration
	Flags SampleFlags
}

// IsKeyFrame returns whether the sample is a sync sample.
func (i SampleInfo) IsKeyFrame() bool {
	return (i.Flags & FlagKeyFrame) != 0
}

// IsEndOfStream returns whether the sample terminates its track.
func (i SampleInfo) IsEndOfStream() bool {
	return (i.Flags & FlagEndOfStream) != 0
}
