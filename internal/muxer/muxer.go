// Package muxer contains the session-based muxer contract.
package muxer

import (
	"math"
	"time"
)

// DefaultMaxDelayBetweenSamples is the default interleaving bound.
const DefaultMaxDelayBetweenSamples = 10 * time.Second

// DurationUnset disables the enforcement of a duration.
const DurationUnset = time.Duration(math.MinInt64)

// Muxer writes samples of multiple tracks into a single container.
//
// Calls must come from a single goroutine.
// Every muxer must be terminated with Close or Release.
type Muxer interface {
	// AddTrack registers a track and returns its token.
	AddTrack(format Format) (TrackToken, error)

	// WriteSampleData writes a sample. The buffer is not retained after the call returns.
	WriteSampleData(token TrackToken, data []byte, info SampleInfo) error

	// AddMetadataEntry attaches a metadata entry to the container.
	AddMetadataEntry(entry MetadataEntry) error

	// Close finalizes the container.
	Close() error

	// Release finalizes the container, or discards it when forCancellation is true.
	Release(forCancellation bool) error

	// MaxDelayBetweenSamples returns the maximum delay between samples of different tracks.
	MaxDelayBetweenSamples() time.Duration
}

// Factory creates muxers.
type Factory interface {
	// Create creates a muxer that writes to the given path.
	Create(path string) (Muxer, error)

	// SupportedSampleMIMETypes returns the sample MIME types accepted for a track type.
	SupportedSampleMIMETypes(trackType TrackType) []string
}
