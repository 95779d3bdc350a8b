package framework

import (
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
)

type formatFMP4Track struct {
	initTrack *fmp4.InitTrack
	baseTime  int64
	samples   []*fmp4.Sample
}

type formatFMP4 struct {
	m *fileMuxer

	tracks             []*formatFMP4Track
	nextSequenceNumber uint32
	partStarted        bool
	partStartDTS       time.Duration
	outBuf             seekablebuffer.Buffer
	headerEntryCount   int
}

func (f *formatFMP4) initialize() error {
	f.tracks = make([]*formatFMP4Track, len(f.m.tracks))
	f.nextSequenceNumber = 1

	init := fmp4.Init{
		Tracks: make([]*fmp4.InitTrack, len(f.m.tracks)),
	}

	for i, t := range f.m.tracks {
		codec, err := mp4Codec(t)
		if err != nil {
			return err
		}

		f.tracks[i] = &formatFMP4Track{
			initTrack: &fmp4.InitTrack{
				ID:        t.id,
				TimeScale: uint32(t.clockRate),
				Codec:     codec,
			},
		}
		init.Tracks[i] = f.tracks[i].initTrack
	}

	err := init.Marshal(&f.outBuf)
	if err != nil {
		return err
	}

	// entries added after this point are appended at the end of the file
	f.headerEntryCount = len(f.m.metadata)

	header, err := newMP4HeaderMetadata(f.m, f.m.containerMetadata()).rewrite(f.outBuf.Bytes())
	f.outBuf.Reset()
	if err != nil {
		return err
	}

	_, err = f.m.bw.Write(header)
	return err
}

func (f *formatFMP4) writeSample(t *track, s *sample) error {
	if !f.partStarted {
		f.partStarted = true
		f.partStartDTS = s.dts
	} else if (s.dts - f.partStartDTS) >= f.m.partDuration {
		err := f.flushPart()
		if err != nil {
			return err
		}
		f.partStartDTS = s.dts
	}

	payload, err := mp4Payload(s)
	if err != nil {
		return err
	}

	dts := durationToTimestamp(s.dts, t.clockRate)
	pts := durationToTimestamp(s.pts, t.clockRate)
	end := durationToTimestamp(s.dts+s.duration, t.clockRate)

	ft := f.tracks[t.id-1]

	if len(ft.samples) == 0 {
		ft.baseTime = dts
	}

	ft.samples = append(ft.samples, &fmp4.Sample{
		Duration:        uint32(end - dts),
		PTSOffset:       int32(pts - dts),
		IsNonSyncSample: !s.keyFrame,
		Payload:         payload,
	})

	return nil
}

func (f *formatFMP4) flushPart() error {
	part := fmp4.Part{
		SequenceNumber: f.nextSequenceNumber,
	}

	for _, ft := range f.tracks {
		if len(ft.samples) != 0 {
			part.Tracks = append(part.Tracks, &fmp4.PartTrack{
				ID:       ft.initTrack.ID,
				BaseTime: uint64(ft.baseTime),
				Samples:  ft.samples,
			})
			ft.samples = nil
		}
	}

	if part.Tracks == nil {
		return nil
	}

	f.nextSequenceNumber++

	err := part.Marshal(&f.outBuf)
	if err != nil {
		return err
	}

	_, err = f.m.bw.Write(f.outBuf.Bytes())
	f.outBuf.Reset()
	return err
}

func (f *formatFMP4) close() error {
	err := f.flushPart()
	if err != nil {
		return err
	}

	return writeMetadataBox(f.m.bw, f.m.metadata[f.headerEntryCount:])
}

func (f *formatFMP4) cancel() {
	for _, ft := range f.tracks {
		ft.samples = nil
	}
}
