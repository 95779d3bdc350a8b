// Package framework contains muxers that write real containers.
package framework

import (
	"os"
	"time"

	"github.com/bluenviron/mediamux/internal/conf"
	"github.com/bluenviron/mediamux/internal/logger"
	"github.com/bluenviron/mediamux/internal/muxer"
)

const (
	defaultPartDuration    = 1 * time.Second
	defaultWriteBufferSize = 64 * 1024
)

var supportedMIMETypes = map[conf.ContainerFormat]map[muxer.TrackType][]string{
	conf.ContainerFormatMP4: {
		muxer.TrackTypeVideo: {
			muxer.MIMETypeVideoH264,
			muxer.MIMETypeVideoH265,
			muxer.MIMETypeVideoAV1,
			muxer.MIMETypeVideoVP9,
		},
		muxer.TrackTypeAudio: {
			muxer.MIMETypeAudioAAC,
			muxer.MIMETypeAudioOpus,
			muxer.MIMETypeAudioRaw,
		},
	},
	conf.ContainerFormatFMP4: {
		muxer.TrackTypeVideo: {
			muxer.MIMETypeVideoH264,
			muxer.MIMETypeVideoH265,
			muxer.MIMETypeVideoAV1,
			muxer.MIMETypeVideoVP9,
		},
		muxer.TrackTypeAudio: {
			muxer.MIMETypeAudioAAC,
			muxer.MIMETypeAudioOpus,
			muxer.MIMETypeAudioRaw,
		},
	},
	conf.ContainerFormatMPEGTS: {
		muxer.TrackTypeVideo: {
			muxer.MIMETypeVideoH264,
			muxer.MIMETypeVideoH265,
		},
		muxer.TrackTypeAudio: {
			muxer.MIMETypeAudioAAC,
			muxer.MIMETypeAudioOpus,
		},
		muxer.TrackTypeMetadata: {
			muxer.MIMETypeApplicationKLV,
		},
	},
	conf.ContainerFormatWebM: {
		muxer.TrackTypeVideo: {
			muxer.MIMETypeVideoVP9,
			muxer.MIMETypeVideoVP8,
			muxer.MIMETypeVideoAV1,
		},
		muxer.TrackTypeAudio: {
			muxer.MIMETypeAudioOpus,
		},
	},
}

// Factory is a muxer.Factory that writes containers to files.
type Factory struct {
	Format conf.ContainerFormat

	// pre-opened destination. When set, the path passed to Create
	// is only used to name the muxer.
	File *os.File

	// zero or muxer.DurationUnset disables enforcement.
	VideoDuration time.Duration

	MaxDelayBetweenSamples time.Duration
	PartDuration           time.Duration
	WriteBufferSize        int
	SpoolDirectory         string
	Parent                 logger.Writer
}

// Create implements muxer.Factory.
func (f *Factory) Create(path string) (muxer.Muxer, error) {
	m := &fileMuxer{
		path:                   path,
		containerFormat:        f.Format,
		videoDuration:          f.VideoDuration,
		maxDelayBetweenSamples: f.MaxDelayBetweenSamples,
		partDuration:           f.PartDuration,
		writeBufferSize:        f.WriteBufferSize,
		spoolDirectory:         f.SpoolDirectory,
		parent:                 f.Parent,
	}

	if m.videoDuration <= 0 {
		m.videoDuration = muxer.DurationUnset
	}
	if m.maxDelayBetweenSamples <= 0 {
		m.maxDelayBetweenSamples = muxer.DefaultMaxDelayBetweenSamples
	}
	if m.partDuration <= 0 {
		m.partDuration = defaultPartDuration
	}
	if m.writeBufferSize <= 0 {
		m.writeBufferSize = defaultWriteBufferSize
	}

	if f.File != nil {
		m.file = f.File
	} else {
		fi, err := os.Create(path)
		if err != nil {
			return nil, muxer.NewError("create", muxer.ErrDestination, err)
		}
		m.file = fi
		m.ownsFile = true
	}

	err := m.initialize()
	if err != nil {
		m.file.Close()
		if m.ownsFile {
			os.Remove(path)
		}
		return nil, muxer.NewError("create", muxer.ErrDestination, err)
	}

	return m, nil
}

// SupportedSampleMIMETypes implements muxer.Factory.
func (f *Factory) SupportedSampleMIMETypes(trackType muxer.TrackType) []string {
	return append([]string(nil), supportedMIMETypes[f.Format][trackType]...)
}
