package muxer

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/bluenviron/mediamux/internal/logger"
)

type sessionState int

const (
	sessionStateOpen sessionState = iota
	sessionStateClosing
	sessionStateClosed
)

type sessionTrack struct {
	inner   TrackToken
	format  Format
	lastPTS time.Duration
	written bool
	ended   bool
}

// Session is a Muxer that validates calls and runs the session state machine,
// forwarding the work to an inner Muxer.
type Session struct {
	Path                     string
	Inner                    Muxer
	SupportedSampleMIMETypes func(TrackType) []string
	Parent                   logger.Writer

	id      uuid.UUID
	state   sessionState
	tracks  map[TrackToken]*sessionTrack
	started bool
	failure error
}

// Initialize initializes Session.
func (s *Session) Initialize() {
	s.id = uuid.New()
	s.tracks = make(map[TrackToken]*sessionTrack)

	s.Log(logger.Debug, "opened, destination '%s'", s.Path)
}

// Log implements logger.Writer.
func (s *Session) Log(level logger.Level, format string, args ...interface{}) {
	s.Parent.Log(level, "[session %s] "+format, append([]interface{}{s.id.String()[:8]}, args...)...)
}

func (s *Session) checkWritable(op string) error {
	if s.state != sessionStateOpen {
		return NewError(op, ErrIllegalState, fmt.Errorf("session is not open"))
	}
	if s.failure != nil {
		return NewError(op, ErrIllegalState, fmt.Errorf("session was compromised by a previous failure: %v", s.failure))
	}
	return nil
}

func (s *Session) setFailure(op string, err error) error {
	s.failure = WrapError(op, ErrWriteFailed, err)
	s.Log(logger.Error, "%v", s.failure)
	return s.failure
}

// AddTrack implements Muxer.
func (s *Session) AddTrack(format Format) (TrackToken, error) {
	err := s.checkWritable("add track")
	if err != nil {
		return TrackToken{}, err
	}

	if s.started {
		return TrackToken{}, NewError("add track", ErrIllegalState,
			fmt.Errorf("tracks can't be added after the first sample"))
	}

	trackType := format.TrackType()
	if trackType == TrackTypeUnknown ||
		!slices.Contains(s.SupportedSampleMIMETypes(trackType), format.SampleMIMEType) {
		return TrackToken{}, NewError("add track", ErrUnsupportedFormat,
			fmt.Errorf("sample MIME type '%s' is not supported", format.SampleMIMEType))
	}

	innerToken, err := s.Inner.AddTrack(format)
	if err != nil {
		return TrackToken{}, WrapError("add track", ErrUnsupportedFormat, err)
	}

	token := NewTrackToken(s.id, len(s.tracks))
	s.tracks[token] = &sessionTrack{
		inner:  innerToken,
		format: format,
	}

	s.Log(logger.Debug, "added %s track %s (%s)", trackType, token, format.SampleMIMEType)

	return token, nil
}

// WriteSampleData implements Muxer.
func (s *Session) WriteSampleData(token TrackToken, data []byte, info SampleInfo) error {
	track, ok := s.tracks[token]
	if !ok {
		return NewError("write sample", ErrInvalidTrackToken,
			fmt.Errorf("track %s does not belong to this session", token))
	}

	err := s.checkWritable("write sample")
	if err != nil {
		return err
	}

	if track.ended {
		return NewError("write sample", ErrIllegalState,
			fmt.Errorf("track %s has ended", token))
	}

	if track.written && info.PTS < track.lastPTS {
		s.Log(logger.Debug, "track %s: timestamp went backwards (%v < %v)", token, info.PTS, track.lastPTS)
	}

	s.started = true

	err = s.Inner.WriteSampleData(track.inner, data, info)
	if err != nil {
		return s.setFailure("write sample", err)
	}

	track.lastPTS = info.PTS
	track.written = true

	if info.IsEndOfStream() {
		track.ended = true
		s.Log(logger.Debug, "track %s ended at %v", token, info.PTS)
	}

	return nil
}

// AddMetadataEntry implements Muxer.
func (s *Session) AddMetadataEntry(entry MetadataEntry) error {
	err := s.checkWritable("add metadata")
	if err != nil {
		return err
	}

	err = entry.Validate()
	if err != nil {
		return NewError("add metadata", ErrUnsupportedMetadata, err)
	}

	err = s.Inner.AddMetadataEntry(entry)
	if err != nil {
		return s.setFailure("add metadata", err)
	}

	return nil
}

// Close implements Muxer.
func (s *Session) Close() error {
	if s.state != sessionStateOpen {
		return nil
	}
	s.state = sessionStateClosing
	defer func() { s.state = sessionStateClosed }()

	if s.failure != nil {
		s.discard()
		return s.failure
	}

	err := s.Inner.Close()
	if err != nil {
		s.Log(logger.Error, "finalization failed: %v", err)
		return WrapError("close", ErrWriteFailed, err)
	}

	s.Log(logger.Debug, "closed")
	return nil
}

// Release implements Muxer.
func (s *Session) Release(forCancellation bool) error {
	if !forCancellation {
		return s.Close()
	}

	if s.state != sessionStateOpen {
		return nil
	}
	s.state = sessionStateClosing
	s.discard()
	s.state = sessionStateClosed

	return nil
}

func (s *Session) discard() {
	err := s.Inner.Release(true)
	if err != nil {
		s.Log(logger.Warn, "cleanup failed: %v", err)
	}
	s.Log(logger.Debug, "released for cancellation")
}

// MaxDelayBetweenSamples implements Muxer.
func (s *Session) MaxDelayBetweenSamples() time.Duration {
	return s.Inner.MaxDelayBetweenSamples()
}
