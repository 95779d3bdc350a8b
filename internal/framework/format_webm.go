package framework

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/at-wat/ebml-go/mkvcore"
	"github.com/at-wat/ebml-go/webm"

	"github.com/bluenviron/mediamux/internal/muxer"
)

const (
	webmCloseTimeout = 5 * time.Second
)

// webmWriteCloser lets the block writers close the stream
// without closing the destination.
type webmWriteCloser struct {
	w      io.Writer
	closed chan struct{}
	once   sync.Once
}

func (w *webmWriteCloser) Write(p []byte) (int, error) {
	return w.w.Write(p)
}

func (w *webmWriteCloser) Close() error {
	w.once.Do(func() { close(w.closed) })
	return nil
}

func opusHead(channelCount int) []byte {
	buf := make([]byte, 19)
	copy(buf, "OpusHead")
	buf[8] = 1
	buf[9] = byte(channelCount)
	binary.LittleEndian.PutUint16(buf[10:], 312)
	binary.LittleEndian.PutUint32(buf[12:], 48000)
	return buf
}

func webmTrackEntry(t *track) (webm.TrackEntry, error) {
	entry := webm.TrackEntry{
		Name:        fmt.Sprintf("track%d", t.id),
		TrackNumber: uint64(t.id),
		TrackUID:    uint64(t.id),
	}

	switch t.format.SampleMIMEType {
	case muxer.MIMETypeVideoVP9:
		entry.CodecID = "V_VP9"

	case muxer.MIMETypeVideoVP8:
		entry.CodecID = "V_VP8"

	case muxer.MIMETypeVideoAV1:
		entry.CodecID = "V_AV1"

	case muxer.MIMETypeAudioOpus:
		entry.CodecID = "A_OPUS"
		entry.TrackType = 2
		entry.Audio = &webm.Audio{
			SamplingFrequency: 48000.0,
			Channels:          uint64(t.format.ChannelCount),
		}
		if len(t.format.InitializationData) >= 1 {
			entry.CodecPrivate = t.format.InitializationData[0]
		} else {
			entry.CodecPrivate = opusHead(t.format.ChannelCount)
		}
		return entry, nil

	default:
		return webm.TrackEntry{}, fmt.Errorf("unsupported sample MIME type '%s'", t.format.SampleMIMEType)
	}

	entry.TrackType = 1
	entry.Video = &webm.Video{
		PixelWidth:  uint64(t.format.Width),
		PixelHeight: uint64(t.format.Height),
	}
	if t.format.FrameRate > 0 {
		entry.DefaultDuration = uint64(float64(time.Second) / t.format.FrameRate)
	}

	return entry, nil
}

type formatWebM struct {
	m *fileMuxer

	wc           *webmWriteCloser
	blockWriters []webm.BlockWriteCloser

	mutex    sync.Mutex
	fatalErr error
	closed   bool
}

func (f *formatWebM) initialize() error {
	if len(f.m.tracks) == 0 {
		return fmt.Errorf("WebM requires at least one track")
	}

	entries := make([]webm.TrackEntry, len(f.m.tracks))

	for i, t := range f.m.tracks {
		var err error
		entries[i], err = webmTrackEntry(t)
		if err != nil {
			return err
		}
	}

	f.wc = &webmWriteCloser{
		w:      f.m.bw,
		closed: make(chan struct{}),
	}

	var err error
	f.blockWriters, err = webm.NewSimpleBlockWriter(f.wc, entries,
		mkvcore.WithOnFatalHandler(func(err error) {
			f.mutex.Lock()
			defer f.mutex.Unlock()
			if f.fatalErr == nil {
				f.fatalErr = err
			}
		}))
	return err
}

func (f *formatWebM) error() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.fatalErr
}

func (f *formatWebM) writeSample(t *track, s *sample) error {
	err := f.error()
	if err != nil {
		return err
	}

	// block timestamps are expressed in milliseconds
	ts := s.pts.Milliseconds()
	if ts < 0 {
		ts = 0
	}

	_, err = f.blockWriters[t.id-1].Write(s.keyFrame, ts, s.payload)
	return err
}

func (f *formatWebM) close() error {
	if f.closed {
		return nil
	}
	f.closed = true

	for _, bw := range f.blockWriters {
		bw.Close()
	}

	select {
	case <-f.wc.closed:
	case <-time.After(webmCloseTimeout):
		return fmt.Errorf("timed out while finalizing the WebM stream")
	}

	return f.error()
}

func (f *formatWebM) cancel() {
	f.close() //nolint:errcheck
}
