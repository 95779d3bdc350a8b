// Package source contains a reader of progressive MP4 files.
package source

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/av1"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"

	"github.com/bluenviron/mediamux/internal/logger"
	"github.com/bluenviron/mediamux/internal/muxer"
)

func durationMp4ToGo(v int64, timeScale uint32) time.Duration {
	timeScale64 := int64(timeScale)
	secs := v / timeScale64
	dec := v % timeScale64
	return time.Duration(secs)*time.Second + time.Duration(dec)*time.Second/time.Duration(timeScale64)
}

// Track is a track of a Source.
type Track struct {
	ID     int
	Format muxer.Format

	track *mp4Track
}

// Source reads samples from a progressive MP4 file.
type Source struct {
	Path   string
	Parent logger.Writer

	Tracks []*Track

	f *os.File
}

// Initialize opens the file and reads its tracks.
func (s *Source) Initialize() error {
	f, err := os.Open(s.Path)
	if err != nil {
		return err
	}

	tracks, err := readMP4Tracks(f)
	if err != nil {
		f.Close()
		return err
	}

	s.f = f

	for _, pt := range tracks {
		var format muxer.Format
		format, err = trackFormat(pt)
		if err != nil {
			s.Log(logger.Warn, "skipping track %d: %v", pt.id, err)
			continue
		}

		s.Tracks = append(s.Tracks, &Track{
			ID:     pt.id,
			Format: format,
			track:  pt,
		})
	}

	if len(s.Tracks) == 0 {
		f.Close()
		return fmt.Errorf("no supported tracks found")
	}

	return nil
}

// Close closes the file.
func (s *Source) Close() {
	s.f.Close()
}

// Log implements logger.Writer.
func (s *Source) Log(level logger.Level, format string, args ...interface{}) {
	s.Parent.Log(level, "[source] "+format, args...)
}

// Duration returns the duration of the longest track.
func (s *Source) Duration() time.Duration {
	var ret time.Duration

	for _, t := range s.Tracks {
		elapsed := t.track.timeOffset
		for _, sa := range t.track.samples {
			elapsed += int64(sa.duration)
		}

		d := durationMp4ToGo(elapsed, t.track.timeScale)
		if d > ret {
			ret = d
		}
	}

	return ret
}

// Read reads samples in decode order, across all tracks, and passes them to cb.
// After the last sample of each track, an empty end-of-stream sample
// that carries the end time of the track is passed too.
func (s *Source) Read(
	ctx context.Context,
	cb func(t *Track, payload []byte, info muxer.SampleInfo) error,
) error {
	processed := make([]int, len(s.Tracks))
	elapsed := make([]int64, len(s.Tracks))
	ended := make([]bool, len(s.Tracks))

	for i, t := range s.Tracks {
		elapsed[i] = t.track.timeOffset
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		bestTrack := -1
		var bestElapsed time.Duration

		for i, t := range s.Tracks {
			if !ended[i] {
				elapsedGo := durationMp4ToGo(elapsed[i], t.track.timeScale)

				if bestTrack == -1 || elapsedGo < bestElapsed {
					bestTrack = i
					bestElapsed = elapsedGo
				}
			}
		}

		if bestTrack == -1 {
			return nil
		}

		t := s.Tracks[bestTrack]

		if processed[bestTrack] >= len(t.track.samples) {
			ended[bestTrack] = true

			err := cb(t, nil, muxer.SampleInfo{
				PTS:   bestElapsed,
				Flags: muxer.FlagEndOfStream,
			})
			if err != nil {
				return err
			}
			continue
		}

		sa := t.track.samples[processed[bestTrack]]

		payload := make([]byte, sa.size)
		_, err := s.f.ReadAt(payload, int64(sa.offset))
		if err != nil {
			return fmt.Errorf("unable to read sample of track %d: %w", t.ID, err)
		}

		info := muxer.SampleInfo{
			PTS: durationMp4ToGo(elapsed[bestTrack]+int64(sa.ptsOffset), t.track.timeScale),
		}
		if sa.sync {
			info.Flags |= muxer.FlagKeyFrame
		}

		err = cb(t, payload, info)
		if err != nil {
			return err
		}

		processed[bestTrack]++
		elapsed[bestTrack] += int64(sa.duration)
	}
}

func frameRate(pt *mp4Track) float64 {
	var total int64
	for _, sa := range pt.samples {
		total += int64(sa.duration)
	}

	if total == 0 {
		return 0
	}

	return float64(len(pt.samples)) * float64(pt.timeScale) / float64(total)
}

func trackFormat(pt *mp4Track) (muxer.Format, error) {
	if pt.codecErr != nil {
		return muxer.Format{}, pt.codecErr
	}

	switch codec := pt.codec.(type) {
	case *mp4.CodecH264:
		format := muxer.Format{
			SampleMIMEType:     muxer.MIMETypeVideoH264,
			FrameRate:          frameRate(pt),
			InitializationData: [][]byte{codec.SPS, codec.PPS},
		}

		var sps h264.SPS
		if err := sps.Unmarshal(codec.SPS); err == nil {
			format.Width = sps.Width()
			format.Height = sps.Height()
		}

		return format, nil

	case *mp4.CodecH265:
		format := muxer.Format{
			SampleMIMEType:     muxer.MIMETypeVideoH265,
			FrameRate:          frameRate(pt),
			InitializationData: [][]byte{codec.VPS, codec.SPS, codec.PPS},
		}

		var sps h265.SPS
		if err := sps.Unmarshal(codec.SPS); err == nil {
			format.Width = sps.Width()
			format.Height = sps.Height()
		}

		return format, nil

	case *mp4.CodecAV1:
		format := muxer.Format{
			SampleMIMEType:     muxer.MIMETypeVideoAV1,
			FrameRate:          frameRate(pt),
			InitializationData: [][]byte{codec.SequenceHeader},
		}

		var sh av1.SequenceHeader
		if err := sh.Unmarshal(codec.SequenceHeader); err == nil {
			format.Width = sh.Width()
			format.Height = sh.Height()
		}

		return format, nil

	case *mp4.CodecVP9:
		return muxer.Format{
			SampleMIMEType: muxer.MIMETypeVideoVP9,
			Width:          codec.Width,
			Height:         codec.Height,
			FrameRate:      frameRate(pt),
		}, nil

	case *mp4.CodecMPEG4Audio:
		asc, err := codec.Config.Marshal()
		if err != nil {
			return muxer.Format{}, err
		}

		return muxer.Format{
			SampleMIMEType:     muxer.MIMETypeAudioAAC,
			SampleRate:         codec.Config.SampleRate,
			ChannelCount:       codec.Config.ChannelCount,
			InitializationData: [][]byte{asc},
		}, nil

	case *mp4.CodecOpus:
		return muxer.Format{
			SampleMIMEType: muxer.MIMETypeAudioOpus,
			SampleRate:     48000,
			ChannelCount:   codec.ChannelCount,
		}, nil

	case *mp4.CodecLPCM:
		if !codec.LittleEndian {
			return muxer.Format{}, fmt.Errorf("big-endian LPCM is not supported")
		}

		return muxer.Format{
			SampleMIMEType: muxer.MIMETypeAudioRaw,
			SampleRate:     codec.SampleRate,
			ChannelCount:   codec.ChannelCount,
			BitDepth:       codec.BitDepth,
		}, nil
	}

	return muxer.Format{}, fmt.Errorf("unsupported codec '%s'", pt.entryType)
}
