package source

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	amp4 "github.com/abema/go-mp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/pmp4"
	"github.com/stretchr/testify/require"

	"github.com/bluenviron/mediamux/internal/conf"
	"github.com/bluenviron/mediamux/internal/framework"
	"github.com/bluenviron/mediamux/internal/logger"
	"github.com/bluenviron/mediamux/internal/muxer"
	"github.com/bluenviron/mediamux/internal/test"
)

func payloadGetter(b []byte) func() ([]byte, error) {
	return func() ([]byte, error) {
		return b, nil
	}
}

func writeTestFile(t *testing.T, tracks []*pmp4.Track) string {
	p := pmp4.Presentation{Tracks: tracks}

	var buf bytes.Buffer
	err := p.Marshal(&buf)
	require.NoError(t, err)

	fpath, err := test.CreateTempFile(buf.Bytes())
	require.NoError(t, err)

	return fpath
}

func testTracks() []*pmp4.Track {
	video := []byte{0, 0, 0, 1, 5}
	audio := []byte{1, 2, 3, 4}

	return []*pmp4.Track{
		{
			ID:        1,
			TimeScale: 90000,
			Codec: &mp4.CodecH264{
				SPS: test.H264SPS,
				PPS: test.H264PPS,
			},
			Samples: []*pmp4.Sample{
				{
					Duration:    3000,
					PayloadSize: uint32(len(video)),
					GetPayload:  payloadGetter(video),
				},
				{
					Duration:        3000,
					PTSOffset:       3000,
					IsNonSyncSample: true,
					PayloadSize:     uint32(len(video)),
					GetPayload:      payloadGetter(video),
				},
				{
					Duration:        3000,
					IsNonSyncSample: true,
					PayloadSize:     uint32(len(video)),
					GetPayload:      payloadGetter(video),
				},
			},
		},
		{
			ID:        2,
			TimeScale: 44100,
			Codec: &mp4.CodecMPEG4Audio{
				Config: test.MPEG4AudioConfig,
			},
			Samples: []*pmp4.Sample{
				{
					Duration:    1024,
					PayloadSize: uint32(len(audio)),
					GetPayload:  payloadGetter(audio),
				},
				{
					Duration:    1024,
					PayloadSize: uint32(len(audio)),
					GetPayload:  payloadGetter(audio),
				},
				{
					Duration:    1024,
					PayloadSize: uint32(len(audio)),
					GetPayload:  payloadGetter(audio),
				},
			},
		},
	}
}

func TestSourceTracks(t *testing.T) {
	fpath := writeTestFile(t, testTracks())
	defer os.Remove(fpath)

	s := &Source{
		Path:   fpath,
		Parent: test.NilLogger,
	}
	err := s.Initialize()
	require.NoError(t, err)
	defer s.Close()

	require.Len(t, s.Tracks, 2)

	require.Equal(t, muxer.Format{
		SampleMIMEType:     muxer.MIMETypeVideoH264,
		Width:              1920,
		Height:             1080,
		FrameRate:          30,
		InitializationData: [][]byte{test.H264SPS, test.H264PPS},
	}, s.Tracks[0].Format)

	require.Equal(t, muxer.Format{
		SampleMIMEType:     muxer.MIMETypeAudioAAC,
		SampleRate:         44100,
		ChannelCount:       2,
		InitializationData: [][]byte{test.MPEG4AudioConfigBytes()},
	}, s.Tracks[1].Format)

	require.Equal(t, 100*time.Millisecond, s.Duration())
}

func TestSourceRead(t *testing.T) {
	fpath := writeTestFile(t, testTracks())
	defer os.Remove(fpath)

	s := &Source{
		Path:   fpath,
		Parent: test.NilLogger,
	}
	err := s.Initialize()
	require.NoError(t, err)
	defer s.Close()

	type entry struct {
		id    int
		size  int
		pts   time.Duration
		flags muxer.SampleFlags
	}

	var entries []entry

	err = s.Read(context.Background(), func(tr *Track, payload []byte, info muxer.SampleInfo) error {
		entries = append(entries, entry{tr.ID, len(payload), info.PTS, info.Flags})
		return nil
	})
	require.NoError(t, err)

	require.Equal(t, []entry{
		{1, 5, 0, muxer.FlagKeyFrame},
		{2, 4, 0, muxer.FlagKeyFrame},
		{2, 4, 23219954, muxer.FlagKeyFrame},
		{1, 5, 66666666, 0},
		{2, 4, 46439909, muxer.FlagKeyFrame},
		{1, 5, 66666666, 0},
		{2, 0, 69659863, muxer.FlagEndOfStream},
		{1, 0, 100 * time.Millisecond, muxer.FlagEndOfStream},
	}, entries)
}

func TestSourceReadCanceled(t *testing.T) {
	fpath := writeTestFile(t, testTracks())
	defer os.Remove(fpath)

	s := &Source{
		Path:   fpath,
		Parent: test.NilLogger,
	}
	err := s.Initialize()
	require.NoError(t, err)
	defer s.Close()

	ctx, ctxCancel := context.WithCancel(context.Background())

	count := 0

	err = s.Read(ctx, func(_ *Track, _ []byte, _ muxer.SampleInfo) error {
		count++
		if count == 2 {
			ctxCancel()
		}
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 2, count)
}

func TestSourceUnsupportedTrack(t *testing.T) {
	tracks := testTracks()
	tracks[1].Codec = &mp4.CodecLPCM{
		LittleEndian: false,
		BitDepth:     16,
		SampleRate:   44100,
		ChannelCount: 2,
	}

	fpath := writeTestFile(t, tracks)
	defer os.Remove(fpath)

	var warnings []string

	s := &Source{
		Path: fpath,
		Parent: test.Logger(func(level logger.Level, format string, _ ...interface{}) {
			if level == logger.Warn {
				warnings = append(warnings, format)
			}
		}),
	}
	err := s.Initialize()
	require.NoError(t, err)
	defer s.Close()

	require.Len(t, s.Tracks, 1)
	require.Equal(t, []string{"[source] skipping track %d: %v"}, warnings)
}

func TestSourceNoTracks(t *testing.T) {
	tracks := testTracks()[1:]
	tracks[0].Codec = &mp4.CodecLPCM{
		LittleEndian: false,
		BitDepth:     16,
		SampleRate:   44100,
		ChannelCount: 2,
	}

	fpath := writeTestFile(t, tracks)
	defer os.Remove(fpath)

	s := &Source{
		Path:   fpath,
		Parent: test.NilLogger,
	}
	err := s.Initialize()
	require.EqualError(t, err, "no supported tracks found")
}

func TestSourceMissingFile(t *testing.T) {
	s := &Source{
		Path:   "/nonexisting/file.mp4",
		Parent: test.NilLogger,
	}
	err := s.Initialize()
	require.Error(t, err)
}

func TestSourceSampleTables(t *testing.T) {
	tr := &mp4Track{
		id:        1,
		timeScale: 1000,
		tables: mp4SampleTables{
			stts: []amp4.SttsEntry{
				{SampleCount: 4, SampleDelta: 10},
				{SampleCount: 1, SampleDelta: 5},
			},
			stss:        []uint32{1, 4},
			hasStss:     true,
			sampleCount: 5,
			entrySizes:  []uint32{1, 2, 3, 4, 5},
			stsc: []amp4.StscEntry{
				{FirstChunk: 1, SamplesPerChunk: 2, SampleDescriptionIndex: 1},
				{FirstChunk: 2, SamplesPerChunk: 1, SampleDescriptionIndex: 1},
			},
			chunkOffsets: []uint64{100, 200, 300, 400},
		},
	}

	err := tr.buildSamples()
	require.NoError(t, err)

	require.Equal(t, []*mp4Sample{
		{duration: 10, sync: true, offset: 100, size: 1},
		{duration: 10, sync: false, offset: 101, size: 2},
		{duration: 10, sync: false, offset: 200, size: 3},
		{duration: 10, sync: true, offset: 300, size: 4},
		{duration: 5, sync: false, offset: 400, size: 5},
	}, tr.samples)
}

func TestSourceInvalidSampleTables(t *testing.T) {
	for _, ca := range []struct {
		name   string
		tables mp4SampleTables
		err    string
	}{
		{
			"stts too short",
			mp4SampleTables{
				stts:         []amp4.SttsEntry{{SampleCount: 1, SampleDelta: 10}},
				sampleCount:  2,
				sampleSize:   1,
				stsc:         []amp4.StscEntry{{FirstChunk: 1, SamplesPerChunk: 2}},
				chunkOffsets: []uint64{0},
			},
			"invalid stts",
		},
		{
			"stsc beyond chunks",
			mp4SampleTables{
				stts:         []amp4.SttsEntry{{SampleCount: 2, SampleDelta: 10}},
				sampleCount:  2,
				sampleSize:   1,
				stsc:         []amp4.StscEntry{{FirstChunk: 1, SamplesPerChunk: 1}},
				chunkOffsets: []uint64{0},
			},
			"invalid stsc",
		},
		{
			"stss out of range",
			mp4SampleTables{
				stts:         []amp4.SttsEntry{{SampleCount: 1, SampleDelta: 10}},
				stss:         []uint32{2},
				hasStss:      true,
				sampleCount:  1,
				sampleSize:   1,
				stsc:         []amp4.StscEntry{{FirstChunk: 1, SamplesPerChunk: 1}},
				chunkOffsets: []uint64{0},
			},
			"invalid stss",
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			tr := &mp4Track{timeScale: 1000, tables: ca.tables}
			err := tr.buildSamples()
			require.EqualError(t, err, ca.err)
		})
	}
}

func TestSourceMuxerOutput(t *testing.T) {
	dir, err := os.MkdirTemp("", "mediamux-source")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	fpath := filepath.Join(dir, "out.mp4")

	f := &framework.Factory{
		Format:         conf.ContainerFormatMP4,
		SpoolDirectory: dir,
		Parent:         test.NilLogger,
	}

	m, err := f.Create(fpath)
	require.NoError(t, err)

	video, err := m.AddTrack(muxer.Format{
		SampleMIMEType:     muxer.MIMETypeVideoH264,
		Width:              1920,
		Height:             1080,
		InitializationData: [][]byte{test.H264SPS, test.H264PPS},
	})
	require.NoError(t, err)

	audio, err := m.AddTrack(muxer.Format{
		SampleMIMEType:     muxer.MIMETypeAudioAAC,
		SampleRate:         44100,
		ChannelCount:       2,
		InitializationData: [][]byte{test.MPEG4AudioConfigBytes()},
	})
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		if (i % 2) == 0 {
			err = m.WriteSampleData(video, []byte{0, 0, 0, 1, 5}, muxer.SampleInfo{
				PTS:   time.Duration(i/2) * 100 * time.Millisecond,
				Flags: muxer.FlagKeyFrame,
			})
			require.NoError(t, err)
		}

		err = m.WriteSampleData(audio, []byte{1, 2, byte(i)}, muxer.SampleInfo{
			PTS:   time.Duration(i) * 1024 * time.Second / 44100,
			Flags: muxer.FlagKeyFrame,
		})
		require.NoError(t, err)
	}

	err = m.Close()
	require.NoError(t, err)

	s := &Source{
		Path:   fpath,
		Parent: test.NilLogger,
	}
	err = s.Initialize()
	require.NoError(t, err)
	defer s.Close()

	require.Len(t, s.Tracks, 2)
	require.Equal(t, muxer.MIMETypeVideoH264, s.Tracks[0].Format.SampleMIMEType)
	require.Equal(t, muxer.MIMETypeAudioAAC, s.Tracks[1].Format.SampleMIMEType)

	var audioPayloads [][]byte
	videoCount := 0

	err = s.Read(context.Background(), func(tr *Track, payload []byte, info muxer.SampleInfo) error {
		if info.IsEndOfStream() {
			return nil
		}

		if tr.ID == 1 {
			require.Equal(t, []byte{0, 0, 0, 1, 5}, payload)
			videoCount++
		} else {
			audioPayloads = append(audioPayloads, payload)
		}
		return nil
	})
	require.NoError(t, err)

	require.Equal(t, 10, videoCount)
	require.Len(t, audioPayloads, 20)
	for i, pl := range audioPayloads {
		require.Equal(t, []byte{1, 2, byte(i)}, pl)
	}
}
