package muxer

import (
	"github.com/bluenviron/mediamux/internal/logger"
)

// SessionFactory is a Factory that wraps the muxers of an inner Factory into Sessions.
type SessionFactory struct {
	Inner  Factory
	Parent logger.Writer
}

// Create implements Factory.
func (f *SessionFactory) Create(path string) (Muxer, error) {
	inner, err := f.Inner.Create(path)
	if err != nil {
		return nil, WrapError("create", ErrDestination, err)
	}

	s := &Session{
		Path:                     path,
		Inner:                    inner,
		SupportedSampleMIMETypes: f.Inner.SupportedSampleMIMETypes,
		Parent:                   f.Parent,
	}
	s.Initialize()

	return s, nil
}

// SupportedSampleMIMETypes implements Factory.
func (f *SessionFactory) SupportedSampleMIMETypes(trackType TrackType) []string {
	return f.Inner.SupportedSampleMIMETypes(trackType)
}
