package framework

import (
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/pmp4"

	"github.com/bluenviron/mediamux/internal/logger"
)

type formatMP4Track struct {
	pmp4.Track
}

type formatMP4 struct {
	m *fileMuxer

	spool  *spool
	tracks []*formatMP4Track
}

func (f *formatMP4) initialize() error {
	f.tracks = make([]*formatMP4Track, len(f.m.tracks))

	for i, t := range f.m.tracks {
		codec, err := mp4Codec(t)
		if err != nil {
			return err
		}

		f.tracks[i] = &formatMP4Track{
			Track: pmp4.Track{
				ID:        t.id,
				TimeScale: uint32(t.clockRate),
				Codec:     codec,
			},
		}
	}

	f.spool = &spool{
		dir:        f.m.spoolDirectory,
		bufferSize: f.m.writeBufferSize,
	}
	return f.spool.initialize()
}

func (f *formatMP4) writeSample(t *track, s *sample) error {
	payload, err := mp4Payload(s)
	if err != nil {
		return err
	}

	off, err := f.spool.write(payload)
	if err != nil {
		return err
	}

	dts := durationToTimestamp(s.dts, t.clockRate)
	pts := durationToTimestamp(s.pts, t.clockRate)
	end := durationToTimestamp(s.dts+s.duration, t.clockRate)

	ft := f.tracks[t.id-1]

	if len(ft.Samples) == 0 {
		ft.TimeOffset = int32(dts)
	}

	ft.Samples = append(ft.Samples, &pmp4.Sample{
		Duration:        uint32(end - dts),
		PTSOffset:       int32(pts - dts),
		IsNonSyncSample: !s.keyFrame,
		PayloadSize:     uint32(len(payload)),
		GetPayload:      f.spool.payload(off, uint32(len(payload))),
	})

	return nil
}

func (f *formatMP4) close() error {
	defer f.spool.close()

	err := f.spool.flush()
	if err != nil {
		return err
	}

	var p pmp4.Presentation

	// sample tables can't be empty
	for _, track := range f.tracks {
		if len(track.Samples) == 0 {
			f.m.Log(logger.Debug, "omitting track %d from the MP4 header", track.ID)
			continue
		}
		p.Tracks = append(p.Tracks, &track.Track)
	}

	hw := &mp4HeaderWriter{
		w:       f.m.bw,
		rewrite: newMP4HeaderMetadata(f.m, f.m.containerMetadata()).rewrite,
	}

	err = p.Marshal(hw)
	if err != nil {
		return err
	}

	if !hw.done {
		return fmt.Errorf("MP4 header was not written")
	}

	return nil
}

func (f *formatMP4) cancel() {
	f.spool.close()
}
