package framework

import (
	"bytes"
	"fmt"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"

	"github.com/bluenviron/mediamux/internal/muxer"
)

type sample struct {
	pts      time.Duration
	dts      time.Duration
	duration time.Duration
	keyFrame bool

	// NAL units of H264 and H265 access units
	au [][]byte

	payload []byte
}

type track struct {
	id        int
	format    muxer.Format
	isVideo   bool
	clockRate int

	// codec parameters
	vps         []byte
	sps         []byte
	pps         []byte
	audioConfig *mpeg4audio.AudioSpecificConfig

	h264DTS      *h264.DTSExtractor
	h265DTS      *h265.DTSExtractor
	pending      *sample
	lastDuration time.Duration
	endPTS       time.Duration
	hasEndPTS    bool
	ended        bool
	finished     bool
	truncated    bool
	written      int

	// samples waiting in the interleaver
	queue []*sample
}

func (t *track) initialize() error {
	t.isVideo = t.format.TrackType() == muxer.TrackTypeVideo
	csd := t.format.InitializationData

	switch t.format.SampleMIMEType {
	case muxer.MIMETypeVideoH264:
		if len(csd) < 2 {
			return fmt.Errorf("H264 tracks require SPS and PPS")
		}
		t.sps = csd[0]
		t.pps = csd[1]
		t.clockRate = 90000

	case muxer.MIMETypeVideoH265:
		if len(csd) < 3 {
			return fmt.Errorf("H265 tracks require VPS, SPS and PPS")
		}
		t.vps = csd[0]
		t.sps = csd[1]
		t.pps = csd[2]
		t.clockRate = 90000

	case muxer.MIMETypeVideoAV1, muxer.MIMETypeVideoVP9, muxer.MIMETypeVideoVP8,
		muxer.MIMETypeApplicationKLV:
		t.clockRate = 90000

	case muxer.MIMETypeAudioAAC:
		var conf mpeg4audio.AudioSpecificConfig

		if len(csd) >= 1 {
			err := conf.Unmarshal(csd[0])
			if err != nil {
				return fmt.Errorf("invalid AudioSpecificConfig: %w", err)
			}
		} else {
			if t.format.SampleRate <= 0 || t.format.ChannelCount <= 0 {
				return fmt.Errorf("AAC tracks require an AudioSpecificConfig or sample rate and channel count")
			}
			conf = mpeg4audio.AudioSpecificConfig{
				Type:         mpeg4audio.ObjectTypeAACLC,
				SampleRate:   t.format.SampleRate,
				ChannelCount: t.format.ChannelCount,
			}
		}

		t.audioConfig = &conf
		t.clockRate = conf.SampleRate

	case muxer.MIMETypeAudioOpus:
		if t.format.ChannelCount <= 0 {
			t.format.ChannelCount = 2
		}
		t.clockRate = 48000

	case muxer.MIMETypeAudioRaw:
		if t.format.SampleRate <= 0 || t.format.ChannelCount <= 0 {
			return fmt.Errorf("raw audio tracks require sample rate and channel count")
		}
		if t.format.BitDepth <= 0 {
			t.format.BitDepth = 16
		}
		t.clockRate = t.format.SampleRate

	default:
		return fmt.Errorf("unsupported sample MIME type '%s'", t.format.SampleMIMEType)
	}

	return nil
}

// process converts an input buffer into a sample.
// It returns nil when the sample must be skipped.
func (t *track) process(data []byte, info muxer.SampleInfo) (*sample, error) {
	buf := append([]byte(nil), data...)

	switch t.format.SampleMIMEType {
	case muxer.MIMETypeVideoH264:
		return t.processH264(buf, info)

	case muxer.MIMETypeVideoH265:
		return t.processH265(buf, info)
	}

	return &sample{
		pts:      info.PTS,
		dts:      info.PTS,
		keyFrame: !t.isVideo || info.IsKeyFrame(),
		payload:  buf,
	}, nil
}

// splitAccessUnit decodes an AVCC or Annex-B access unit.
// AVCC is tried first since a length prefix can look like a start code.
func splitAccessUnit(buf []byte) ([][]byte, error) {
	var avcc h264.AVCC
	err := avcc.Unmarshal(buf)
	if err == nil {
		return avcc, nil
	}

	if !bytes.HasPrefix(buf, []byte{0, 0, 0, 1}) && !bytes.HasPrefix(buf, []byte{0, 0, 1}) {
		return nil, err
	}

	var annexb h264.AnnexB
	err = annexb.Unmarshal(buf)
	if err != nil {
		return nil, err
	}
	return annexb, nil
}

func (t *track) processH264(buf []byte, info muxer.SampleInfo) (*sample, error) {
	au, err := splitAccessUnit(buf)
	if err != nil {
		return nil, err
	}

	randomAccess := h264.IsRandomAccess(au)

	if t.h264DTS == nil {
		if !randomAccess {
			return nil, nil
		}
		t.h264DTS = &h264.DTSExtractor{}
		t.h264DTS.Initialize()
	}

	if randomAccess {
		au = h264PrependParameters(au, t.sps, t.pps)
	}

	dts, err := t.h264DTS.Extract(au, durationToTimestamp(info.PTS, 90000))
	if err != nil {
		return nil, err
	}

	return &sample{
		pts:      info.PTS,
		dts:      timestampToDuration(dts, 90000),
		keyFrame: randomAccess,
		au:       au,
	}, nil
}

func (t *track) processH265(buf []byte, info muxer.SampleInfo) (*sample, error) {
	au, err := splitAccessUnit(buf)
	if err != nil {
		return nil, err
	}

	randomAccess := h265.IsRandomAccess(au)

	if t.h265DTS == nil {
		if !randomAccess {
			return nil, nil
		}
		t.h265DTS = &h265.DTSExtractor{}
		t.h265DTS.Initialize()
	}

	if randomAccess {
		au = h265PrependParameters(au, t.vps, t.sps, t.pps)
	}

	dts, err := t.h265DTS.Extract(au, durationToTimestamp(info.PTS, 90000))
	if err != nil {
		return nil, err
	}

	return &sample{
		pts:      info.PTS,
		dts:      timestampToDuration(dts, 90000),
		keyFrame: randomAccess,
		au:       au,
	}, nil
}

func h264PrependParameters(au [][]byte, sps []byte, pps []byte) [][]byte {
	for _, nalu := range au {
		if len(nalu) != 0 && h264.NALUType(nalu[0]&0x1F) == h264.NALUTypeSPS {
			return au
		}
	}

	return append([][]byte{sps, pps}, au...)
}

func h265PrependParameters(au [][]byte, vps []byte, sps []byte, pps []byte) [][]byte {
	for _, nalu := range au {
		if len(nalu) != 0 && h265.NALUType((nalu[0]>>1)&0b111111) == h265.NALUType_SPS_NUT {
			return au
		}
	}

	return append([][]byte{vps, sps, pps}, au...)
}

// push stores a sample and returns the previous one, whose duration is now known.
func (t *track) push(s *sample) *sample {
	prev := t.pending
	t.pending = s

	if prev == nil {
		return nil
	}

	duration := s.dts - prev.dts
	if duration < 0 {
		s.dts = prev.dts
		duration = 0
	}

	prev.duration = duration
	t.lastDuration = duration

	return prev
}

// finalDuration computes the duration of the last sample of the track.
func (t *track) finalDuration(s *sample, videoDuration time.Duration) time.Duration {
	hasEnd := false
	var end time.Duration

	if t.hasEndPTS {
		hasEnd = true
		end = t.endPTS
	}

	if t.isVideo && videoDuration != muxer.DurationUnset && (!hasEnd || videoDuration < end) {
		hasEnd = true
		end = videoDuration
	}

	if hasEnd {
		d := end - s.dts
		if d < 0 {
			d = 0
		}
		return d
	}

	if t.lastDuration > 0 {
		return t.lastDuration
	}

	if t.format.FrameRate > 0 {
		return time.Duration(float64(time.Second) / t.format.FrameRate)
	}

	return 0
}
