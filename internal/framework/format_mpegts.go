package framework

import (
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"

	"github.com/bluenviron/mediamux/internal/muxer"
)

func mpegtsCodec(t *track) (mpegts.Codec, error) {
	switch t.format.SampleMIMEType {
	case muxer.MIMETypeVideoH264:
		return &mpegts.CodecH264{}, nil

	case muxer.MIMETypeVideoH265:
		return &mpegts.CodecH265{}, nil

	case muxer.MIMETypeAudioAAC:
		return &mpegts.CodecMPEG4Audio{
			Config: *t.audioConfig,
		}, nil

	case muxer.MIMETypeAudioOpus:
		return &mpegts.CodecOpus{
			ChannelCount: t.format.ChannelCount,
		}, nil

	case muxer.MIMETypeApplicationKLV:
		return &mpegts.CodecKLV{
			Synchronous: true,
		}, nil
	}

	return nil, fmt.Errorf("unsupported sample MIME type '%s'", t.format.SampleMIMEType)
}

type formatMPEGTS struct {
	m *fileMuxer

	mw     *mpegts.Writer
	tracks []*mpegts.Track
}

func (f *formatMPEGTS) initialize() error {
	f.tracks = make([]*mpegts.Track, len(f.m.tracks))

	for i, t := range f.m.tracks {
		codec, err := mpegtsCodec(t)
		if err != nil {
			return err
		}

		f.tracks[i] = &mpegts.Track{
			Codec: codec,
		}
	}

	f.mw = &mpegts.Writer{W: f.m.bw, Tracks: f.tracks}
	return f.mw.Initialize()
}

func (f *formatMPEGTS) writeSample(t *track, s *sample) error {
	track := f.tracks[t.id-1]

	// MPEG-TS uses a 90khz clock for every codec
	pts := durationToTimestamp(s.pts, 90000)

	switch t.format.SampleMIMEType {
	case muxer.MIMETypeVideoH264:
		return f.mw.WriteH264(track, pts, durationToTimestamp(s.dts, 90000), s.au)

	case muxer.MIMETypeVideoH265:
		return f.mw.WriteH265(track, pts, durationToTimestamp(s.dts, 90000), s.au)

	case muxer.MIMETypeAudioAAC:
		return f.mw.WriteMPEG4Audio(track, pts, [][]byte{s.payload})

	case muxer.MIMETypeAudioOpus:
		return f.mw.WriteOpus(track, pts, [][]byte{s.payload})

	case muxer.MIMETypeApplicationKLV:
		return f.mw.WriteKLV(track, pts, s.payload)
	}

	return nil
}

func (f *formatMPEGTS) close() error {
	return nil
}

func (f *formatMPEGTS) cancel() {
}
