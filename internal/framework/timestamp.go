package framework

import (
	"time"
)

func multiplyAndDivide2(v, m, d time.Duration) time.Duration {
	secs := v / d
	dec := v % d
	return (secs*m + dec*m/d)
}

func timestampToDuration(t int64, clockRate int) time.Duration {
	return multiplyAndDivide2(time.Duration(t), time.Second, time.Duration(clockRate))
}

// durationToTimestamp converts a duration into a timestamp, rounding to the nearest tick.
func durationToTimestamp(d time.Duration, clockRate int) int64 {
	if d < 0 {
		return -durationToTimestamp(-d, clockRate)
	}

	secs := int64(d / time.Second)
	dec := int64(d % time.Second)
	return secs*int64(clockRate) + (dec*int64(clockRate)+int64(time.Second)/2)/int64(time.Second)
}
