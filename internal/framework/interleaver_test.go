package framework

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type releasedSample struct {
	track int
	dts   time.Duration
}

func newTestInterleaver(maxDelay time.Duration, trackCount int) (*interleaver, *[]releasedSample) {
	var released []releasedSample

	tracks := make([]*track, trackCount)
	for i := range tracks {
		tracks[i] = &track{id: i + 1}
	}

	return &interleaver{
		maxDelay: maxDelay,
		tracks:   tracks,
		onSample: func(t *track, s *sample) error {
			released = append(released, releasedSample{track: t.id, dts: s.dts})
			return nil
		},
	}, &released
}

func TestInterleaverOrder(t *testing.T) {
	il, released := newTestInterleaver(10*time.Second, 2)

	for _, e := range []releasedSample{
		{1, 0},
		{1, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 50 * time.Millisecond},
		{2, 150 * time.Millisecond},
		{2, 250 * time.Millisecond},
	} {
		err := il.push(il.tracks[e.track-1], &sample{dts: e.dts})
		require.NoError(t, err)
	}

	require.Equal(t, []releasedSample{
		{1, 0},
		{2, 50 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 150 * time.Millisecond},
		{1, 200 * time.Millisecond},
	}, *released)

	err := il.drain(true)
	require.NoError(t, err)
	require.Len(t, *released, 6)
	require.Equal(t, releasedSample{2, 250 * time.Millisecond}, (*released)[5])
}

func TestInterleaverMaxDelay(t *testing.T) {
	il, released := newTestInterleaver(1*time.Second, 2)

	for i := 0; i < 10; i++ {
		err := il.push(il.tracks[0], &sample{dts: time.Duration(i) * 200 * time.Millisecond})
		require.NoError(t, err)
	}

	// track 2 never received anything; samples older than
	// newest - maxDelay (1.8s - 1s) are released anyway.
	require.Equal(t, []releasedSample{
		{1, 0},
		{1, 200 * time.Millisecond},
		{1, 400 * time.Millisecond},
		{1, 600 * time.Millisecond},
	}, *released)
}

func TestInterleaverFinishedTrack(t *testing.T) {
	il, released := newTestInterleaver(10*time.Second, 2)

	err := il.push(il.tracks[0], &sample{dts: 0})
	require.NoError(t, err)
	require.Empty(t, *released)

	il.tracks[1].finished = true
	err = il.drain(false)
	require.NoError(t, err)
	require.Equal(t, []releasedSample{{1, 0}}, *released)
}
