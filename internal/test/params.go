package test

import (
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
)

// H264SPS is a H264 SPS (1920x1080, baseline).
var H264SPS = []byte{
	0x67, 0x42, 0xc0, 0x28, 0xd9, 0x00, 0x78, 0x02,
	0x27, 0xe5, 0x84, 0x00, 0x00, 0x03, 0x00, 0x04,
	0x00, 0x00, 0x03, 0x00, 0xf0, 0x3c, 0x60, 0xc9, 0x20,
}

// H264PPS is a H264 PPS.
var H264PPS = []byte{0x08, 0x06, 0x07, 0x08}

// H265VPS is a H265 VPS.
var H265VPS = []byte{
	0x40, 0x01, 0x0c, 0x01, 0xff, 0xff, 0x02, 0x20,
	0x00, 0x00, 0x03, 0x00, 0xb0, 0x00, 0x00, 0x03,
	0x00, 0x00, 0x03, 0x00, 0x7b, 0x18, 0xb0, 0x24,
}

// H265SPS is a H265 SPS.
var H265SPS = []byte{
	0x42, 0x01, 0x01, 0x02, 0x20, 0x00, 0x00, 0x03,
	0x00, 0xb0, 0x00, 0x00, 0x03, 0x00, 0x00, 0x03,
	0x00, 0x7b, 0xa0, 0x07, 0x82, 0x00, 0x88, 0x7d,
	0xb6, 0x71, 0x8b, 0x92, 0x44, 0x80, 0x53, 0x88,
	0x88, 0x92, 0xcf, 0x24, 0xa6, 0x92, 0x72, 0xc9,
	0x12, 0x49, 0x22, 0xdc, 0x91, 0xaa, 0x48, 0xfc,
	0xa2, 0x23, 0xff, 0x00, 0x01, 0x00, 0x01, 0x6a,
	0x02, 0x02, 0x02, 0x01,
}

// H265PPS is a H265 PPS.
var H265PPS = []byte{
	0x44, 0x01, 0xc0, 0x25, 0x2f, 0x05, 0x32, 0x40,
}

// AV1SequenceHeader is an AV1 sequence header.
var AV1SequenceHeader = []byte{8, 0, 0, 0, 66, 167, 191, 228, 96, 13, 0, 64}

// MPEG4AudioConfig is a MPEG-4 audio configuration (AAC-LC, 44.1khz, stereo).
var MPEG4AudioConfig = mpeg4audio.AudioSpecificConfig{
	Type:         mpeg4audio.ObjectTypeAACLC,
	SampleRate:   44100,
	ChannelCount: 2,
}

// MPEG4AudioConfigBytes returns the encoded MPEG4AudioConfig.
func MPEG4AudioConfigBytes() []byte {
	buf, err := MPEG4AudioConfig.Marshal()
	if err != nil {
		panic(err)
	}
	return buf
}
