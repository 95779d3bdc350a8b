package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bluenviron/mediamux/internal/logger"
	"github.com/bluenviron/mediamux/internal/muxer"
	"github.com/bluenviron/mediamux/internal/source"
)

// remux copies the tracks of a MP4 file into a muxer session.
type remux struct {
	inputPath  string
	outputPath string
	factory    muxer.Factory
	parent     logger.Writer
}

func (r *remux) Log(level logger.Level, format string, args ...interface{}) {
	r.parent.Log(level, "[remux] "+format, args...)
}

func (r *remux) run(ctx context.Context) (time.Duration, error) {
	src := &source.Source{
		Path:   r.inputPath,
		Parent: r,
	}
	err := src.Initialize()
	if err != nil {
		return 0, fmt.Errorf("unable to read '%s': %w", r.inputPath, err)
	}
	defer src.Close()

	m, err := r.factory.Create(r.outputPath)
	if err != nil {
		return 0, err
	}

	tokens := make(map[*source.Track]muxer.TrackToken)

	for _, t := range src.Tracks {
		var token muxer.TrackToken
		token, err = m.AddTrack(t.Format)
		if err != nil {
			if errors.Is(err, muxer.ErrUnsupportedFormat) {
				r.Log(logger.Warn, "skipping track %d: %v", t.ID, err)
				continue
			}
			m.Release(true) //nolint:errcheck
			return 0, err
		}

		r.Log(logger.Debug, "track %d (%s) added as %s", t.ID, t.Format.SampleMIMEType, token)
		tokens[t] = token
	}

	if len(tokens) == 0 {
		m.Release(true) //nolint:errcheck
		return 0, fmt.Errorf("none of the tracks of '%s' can be written", r.inputPath)
	}

	err = m.AddMetadataEntry(muxer.KeyValue{K: "encoder", V: "mediamux " + version})
	if err != nil {
		m.Release(true) //nolint:errcheck
		return 0, err
	}

	err = src.Read(ctx, func(t *source.Track, payload []byte, info muxer.SampleInfo) error {
		token, ok := tokens[t]
		if !ok {
			return nil
		}
		return m.WriteSampleData(token, payload, info)
	})
	if err != nil {
		m.Release(true) //nolint:errcheck
		if errors.Is(err, context.Canceled) {
			return src.Duration(), fmt.Errorf("remux canceled")
		}
		return src.Duration(), err
	}

	err = m.Close()
	if err != nil {
		return src.Duration(), err
	}

	return src.Duration(), nil
}
