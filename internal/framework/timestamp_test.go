package framework

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDurationToTimestamp(t *testing.T) {
	for _, ca := range []struct {
		name      string
		d         time.Duration
		clockRate int
		ts        int64
	}{
		{"zero", 0, 90000, 0},
		{"video", 100 * time.Millisecond, 90000, 9000},
		{"rounding", 1024 * time.Second / 44100, 44100, 1024},
		{"negative", -1024 * time.Second / 44100, 44100, -1024},
		{"large", 10 * time.Hour, 48000, 10 * 3600 * 48000},
	} {
		t.Run(ca.name, func(t *testing.T) {
			require.Equal(t, ca.ts, durationToTimestamp(ca.d, ca.clockRate))
		})
	}
}

func TestTimestampToDuration(t *testing.T) {
	require.Equal(t, 100*time.Millisecond, timestampToDuration(9000, 90000))
	require.Equal(t, 20*time.Millisecond, timestampToDuration(960, 48000))
}
