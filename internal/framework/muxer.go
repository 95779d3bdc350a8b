package framework

import (
	"bufio"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/bluenviron/mediamux/internal/conf"
	"github.com/bluenviron/mediamux/internal/counterdumper"
	"github.com/bluenviron/mediamux/internal/logger"
	"github.com/bluenviron/mediamux/internal/muxer"
)

type format interface {
	initialize() error
	writeSample(t *track, s *sample) error
	close() error
	cancel()
}

type fileMuxer struct {
	path                   string
	containerFormat        conf.ContainerFormat
	videoDuration          time.Duration
	maxDelayBetweenSamples time.Duration
	partDuration           time.Duration
	writeBufferSize        int
	spoolDirectory         string
	parent                 logger.Writer
	file                   *os.File
	ownsFile               bool

	id            uuid.UUID
	bw            *bufio.Writer
	format        format
	tracks        []*track
	tracksByToken map[muxer.TrackToken]*track
	metadata      []muxer.MetadataEntry
	il            *interleaver
	started       bool
	closed        bool
	dtsOffset     time.Duration
	dtsOffsetSet  bool
	discarded     *counterdumper.CounterDumper
}

func (m *fileMuxer) initialize() error {
	m.id = uuid.New()
	m.tracksByToken = make(map[muxer.TrackToken]*track)
	m.bw = bufio.NewWriterSize(m.file, m.writeBufferSize)

	switch m.containerFormat {
	case conf.ContainerFormatMP4:
		m.format = &formatMP4{m: m}

	case conf.ContainerFormatFMP4:
		m.format = &formatFMP4{m: m}

	case conf.ContainerFormatMPEGTS:
		m.format = &formatMPEGTS{m: m}

	case conf.ContainerFormatWebM:
		m.format = &formatWebM{m: m}

	default:
		return fmt.Errorf("unsupported container format: %v", m.containerFormat)
	}

	m.Log(logger.Debug, "writing %s to '%s'", m.containerFormat, m.path)

	return nil
}

// Log implements logger.Writer.
func (m *fileMuxer) Log(level logger.Level, format string, args ...interface{}) {
	m.parent.Log(level, "[muxer] "+format, args...)
}

func (m *fileMuxer) carriesMetadata() bool {
	return m.containerFormat == conf.ContainerFormatMP4 || m.containerFormat == conf.ContainerFormatFMP4
}

// progressive MP4 stores negative decode times in track offsets.
func (m *fileMuxer) requiresNonNegativeDTS() bool {
	return m.containerFormat != conf.ContainerFormatMP4
}

// AddTrack implements muxer.Muxer.
func (m *fileMuxer) AddTrack(format muxer.Format) (muxer.TrackToken, error) {
	if m.closed || m.started {
		return muxer.TrackToken{}, muxer.NewError("add track", muxer.ErrIllegalState,
			fmt.Errorf("tracks can only be added before the first sample"))
	}

	if !slices.Contains(supportedMIMETypes[m.containerFormat][format.TrackType()], format.SampleMIMEType) {
		return muxer.TrackToken{}, muxer.NewError("add track", muxer.ErrUnsupportedFormat,
			fmt.Errorf("%s does not support '%s'", m.containerFormat, format.SampleMIMEType))
	}

	t := &track{
		id:     len(m.tracks) + 1,
		format: format,
	}
	err := t.initialize()
	if err != nil {
		return muxer.TrackToken{}, muxer.NewError("add track", muxer.ErrUnsupportedFormat, err)
	}

	token := muxer.NewTrackToken(m.id, t.id)
	m.tracks = append(m.tracks, t)
	m.tracksByToken[token] = t

	m.Log(logger.Debug, "track %d: %s, clock rate %d", t.id, format.SampleMIMEType, t.clockRate)

	return token, nil
}

func (m *fileMuxer) start() error {
	m.il = &interleaver{
		maxDelay: m.maxDelayBetweenSamples,
		tracks:   m.tracks,
		onSample: m.writeInterleaved,
	}

	err := m.format.initialize()
	if err != nil {
		return err
	}

	m.discarded = &counterdumper.CounterDumper{
		OnReport: func(v uint64) {
			m.Log(logger.Warn, "%d %s discarded", v, func() string {
				if v == 1 {
					return "sample"
				}
				return "samples"
			}())
		},
	}
	m.discarded.Start()

	m.started = true
	return nil
}

func (m *fileMuxer) stopDiscardedCounter() {
	if m.discarded != nil {
		m.discarded.Stop()
		m.discarded = nil
	}
}

// WriteSampleData implements muxer.Muxer.
func (m *fileMuxer) WriteSampleData(token muxer.TrackToken, data []byte, info muxer.SampleInfo) error {
	t, ok := m.tracksByToken[token]
	if !ok {
		return muxer.NewError("write sample", muxer.ErrInvalidTrackToken,
			fmt.Errorf("track %s does not belong to this muxer", token))
	}

	if m.closed {
		return muxer.NewError("write sample", muxer.ErrIllegalState, fmt.Errorf("muxer is closed"))
	}

	if t.ended {
		return muxer.NewError("write sample", muxer.ErrIllegalState, fmt.Errorf("track %d has ended", t.id))
	}

	if !m.started {
		err := m.start()
		if err != nil {
			return muxer.NewError("write sample", muxer.ErrWriteFailed, err)
		}
	}

	err := m.writeSample(t, data, info)
	if err != nil {
		return muxer.NewError("write sample", muxer.ErrWriteFailed, err)
	}

	return nil
}

func (m *fileMuxer) writeSample(t *track, data []byte, info muxer.SampleInfo) error {
	if info.IsEndOfStream() && len(data) == 0 {
		t.ended = true
		if t.finished {
			return nil
		}
		t.endPTS = info.PTS
		t.hasEndPTS = true
		return m.finishTrack(t)
	}

	if t.isVideo && m.videoDuration != muxer.DurationUnset && info.PTS > m.videoDuration {
		// a video track is finished as soon as it passes the video duration.
		if !t.truncated {
			t.truncated = true
			m.Log(logger.Debug, "track %d reached the video duration (%v), dropping following samples",
				t.id, m.videoDuration)

			err := m.finishTrack(t)
			if err != nil {
				return err
			}
		}
	} else {
		s, err := t.process(data, info)
		if err != nil {
			return err
		}

		if s == nil {
			m.discarded.Increase()
		} else if prev := t.push(s); prev != nil {
			err = m.il.push(t, prev)
			if err != nil {
				return err
			}
		}
	}

	if info.IsEndOfStream() {
		t.ended = true
		if t.finished {
			return nil
		}
		return m.finishTrack(t)
	}

	return nil
}

func (m *fileMuxer) finishTrack(t *track) error {
	t.finished = true

	if t.pending == nil {
		return m.il.drain(false)
	}

	s := t.pending
	t.pending = nil
	s.duration = t.finalDuration(s, m.videoDuration)

	return m.il.push(t, s)
}

func (m *fileMuxer) writeInterleaved(t *track, s *sample) error {
	if m.requiresNonNegativeDTS() {
		if !m.dtsOffsetSet {
			m.dtsOffsetSet = true
			if s.dts < 0 {
				m.dtsOffset = -s.dts
				m.Log(logger.Debug, "shifting timestamps by %v", m.dtsOffset)
			}
		}

		s.dts += m.dtsOffset
		s.pts += m.dtsOffset

		if s.dts < 0 {
			m.discarded.Increase()
			return nil
		}
	}

	err := m.format.writeSample(t, s)
	if err != nil {
		return err
	}

	t.written++
	return nil
}

// AddMetadataEntry implements muxer.Muxer.
func (m *fileMuxer) AddMetadataEntry(entry muxer.MetadataEntry) error {
	if m.closed {
		return muxer.NewError("add metadata", muxer.ErrIllegalState, fmt.Errorf("muxer is closed"))
	}

	if !m.carriesMetadata() {
		m.Log(logger.Debug, "%s can't carry metadata, ignoring '%s'", m.containerFormat, entry.Key())
		return nil
	}

	m.metadata = append(m.metadata, entry)
	return nil
}

// containerMetadata returns the metadata entries to write,
// including the orientation of rotated video tracks.
func (m *fileMuxer) containerMetadata() []muxer.MetadataEntry {
	entries := m.metadata

	hasOrientation := false
	for _, e := range entries {
		if _, ok := e.(muxer.Orientation); ok {
			hasOrientation = true
		}
	}

	if !hasOrientation {
		for _, t := range m.tracks {
			if t.isVideo && t.format.Rotation != 0 {
				entries = append(entries, muxer.Orientation{Degrees: t.format.Rotation})
				break
			}
		}
	}

	return entries
}

// Close implements muxer.Muxer.
func (m *fileMuxer) Close() error {
	if m.closed {
		return nil
	}

	err := m.finalize()
	if err != nil {
		m.closed = false
		m.Release(true) //nolint:errcheck
		return muxer.NewError("close", muxer.ErrWriteFailed, err)
	}

	m.Log(logger.Debug, "finalized '%s'", m.path)
	return nil
}

func (m *fileMuxer) finalize() error {
	m.closed = true

	if !m.started {
		err := m.start()
		if err != nil {
			return err
		}
	}

	for _, t := range m.tracks {
		if !t.finished {
			err := m.finishTrack(t)
			if err != nil {
				return err
			}
		}
	}

	err := m.il.drain(true)
	if err != nil {
		return err
	}

	m.stopDiscardedCounter()

	for _, t := range m.tracks {
		if t.written == 0 {
			m.Log(logger.Warn, "track %d has no samples", t.id)
		}
	}

	err = m.format.close()
	if err != nil {
		return err
	}

	err = m.bw.Flush()
	if err != nil {
		return err
	}

	err = m.file.Sync()
	if err != nil {
		return err
	}

	return m.file.Close()
}

// Release implements muxer.Muxer.
func (m *fileMuxer) Release(forCancellation bool) error {
	if !forCancellation {
		return m.Close()
	}

	if m.closed {
		return nil
	}
	m.closed = true

	if m.started {
		m.stopDiscardedCounter()
		m.il.reset()
		m.format.cancel()
	}

	m.file.Close()

	if m.ownsFile {
		err := os.Remove(m.path)
		if err != nil && !os.IsNotExist(err) {
			m.Log(logger.Warn, "unable to remove '%s': %v", m.path, err)
		}
	}

	m.Log(logger.Debug, "discarded '%s'", m.path)
	return nil
}

// MaxDelayBetweenSamples implements muxer.Muxer.
func (m *fileMuxer) MaxDelayBetweenSamples() time.Duration {
	return m.maxDelayBetweenSamples
}
