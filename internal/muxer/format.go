package muxer

import (
	"strings"
)

// MIME types of sample encodings.
const (
	MIMETypeVideoH264      = "video/avc"
	MIMETypeVideoH265      = "video/hevc"
	MIMETypeVideoAV1       = "video/av01"
	MIMETypeVideoVP9       = "video/x-vnd.on2.vp9"
	MIMETypeVideoVP8       = "video/x-vnd.on2.vp8"
	MIMETypeAudioAAC       = "audio/mp4a-latm"
	MIMETypeAudioOpus      = "audio/opus"
	MIMETypeAudioRaw       = "audio/raw"
	MIMETypeApplicationKLV = "application/x-klv"
)

// TrackType is the category of a track.
type TrackType int

// track types.
const (
	TrackTypeUnknown TrackType = iota
	TrackTypeVideo
	TrackTypeAudio
	TrackTypeMetadata
)

// String implements fmt.Stringer.
func (t TrackType) String() string {
	switch t {
	case TrackTypeVideo:
		return "video"

	case TrackTypeAudio:
		return "audio"

	case TrackTypeMetadata:
		return "metadata"
	}
	return "unknown"
}

// TrackTypeOf returns the track type of a MIME type.
func TrackTypeOf(mimeType string) TrackType {
	switch {
	case strings.HasPrefix(mimeType, "video/"):
		return TrackTypeVideo

	case strings.HasPrefix(mimeType, "audio/"):
		return TrackTypeAudio

	case strings.HasPrefix(mimeType, "application/"), strings.HasPrefix(mimeType, "text/"):
		return TrackTypeMetadata
	}
	return TrackTypeUnknown
}

// Format describes the encoding of a track.
type Format struct {
	SampleMIMEType string

	// video
	Width     int
	Height    int
	Rotation  int
	FrameRate float64

	// audio
	SampleRate   int
	ChannelCount int
	BitDepth     int

	// codec-specific data, in the order
	// VPS, SPS, PPS for H265,
	// SPS, PPS for H264,
	// AudioSpecificConfig for AAC,
	// sequence header for AV1,
	// identification header for Opus.
	InitializationData [][]byte
}

// TrackType returns the track type.
func (f Format) TrackType() TrackType {
	return TrackTypeOf(f.SampleMIMEType)
}
