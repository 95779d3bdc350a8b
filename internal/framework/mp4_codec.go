package framework

import (
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"

	"github.com/bluenviron/mediamux/internal/muxer"
)

func mp4Codec(t *track) (mp4.Codec, error) {
	switch t.format.SampleMIMEType {
	case muxer.MIMETypeVideoH264:
		return &mp4.CodecH264{
			SPS: t.sps,
			PPS: t.pps,
		}, nil

	case muxer.MIMETypeVideoH265:
		return &mp4.CodecH265{
			VPS: t.vps,
			SPS: t.sps,
			PPS: t.pps,
		}, nil

	case muxer.MIMETypeVideoAV1:
		if len(t.format.InitializationData) < 1 {
			return nil, fmt.Errorf("AV1 tracks require a sequence header")
		}
		return &mp4.CodecAV1{
			SequenceHeader: t.format.InitializationData[0],
		}, nil

	case muxer.MIMETypeVideoVP9:
		return &mp4.CodecVP9{
			Width:             t.format.Width,
			Height:            t.format.Height,
			Profile:           0,
			BitDepth:          8,
			ChromaSubsampling: 1,
			ColorRange:        false,
		}, nil

	case muxer.MIMETypeAudioAAC:
		return &mp4.CodecMPEG4Audio{
			Config: *t.audioConfig,
		}, nil

	case muxer.MIMETypeAudioOpus:
		return &mp4.CodecOpus{
			ChannelCount: t.format.ChannelCount,
		}, nil

	case muxer.MIMETypeAudioRaw:
		return &mp4.CodecLPCM{
			LittleEndian: true,
			BitDepth:     t.format.BitDepth,
			SampleRate:   t.format.SampleRate,
			ChannelCount: t.format.ChannelCount,
		}, nil
	}

	return nil, fmt.Errorf("unsupported sample MIME type '%s'", t.format.SampleMIMEType)
}

// mp4Payload returns the payload of a sample as stored in MP4 containers.
func mp4Payload(s *sample) ([]byte, error) {
	if s.au != nil {
		return h264.AVCC(s.au).Marshal()
	}
	return s.payload, nil
}
