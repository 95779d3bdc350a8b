package framework

import (
	"time"
)

// interleaver releases samples of multiple tracks in decode order.
// A sample is released when every unfinished track has a sample queued,
// or when it is older than the newest queued sample minus maxDelay.
type interleaver struct {
	maxDelay time.Duration
	tracks   []*track
	onSample func(*track, *sample) error

	newestDTS    time.Duration
	hasNewestDTS bool
}

func (i *interleaver) push(t *track, s *sample) error {
	t.queue = append(t.queue, s)

	if !i.hasNewestDTS || s.dts > i.newestDTS {
		i.newestDTS = s.dts
		i.hasNewestDTS = true
	}

	return i.drain(false)
}

func (i *interleaver) oldest() *track {
	var oldest *track

	for _, t := range i.tracks {
		if len(t.queue) != 0 && (oldest == nil || t.queue[0].dts < oldest.queue[0].dts) {
			oldest = t
		}
	}

	return oldest
}

func (i *interleaver) canRelease(s *sample) bool {
	if s.dts < (i.newestDTS - i.maxDelay) {
		return true
	}

	for _, t := range i.tracks {
		if len(t.queue) == 0 && !t.finished {
			return false
		}
	}

	return true
}

// drain releases samples. When all is true, every queued sample is released.
func (i *interleaver) drain(all bool) error {
	for {
		t := i.oldest()
		if t == nil {
			return nil
		}

		s := t.queue[0]
		if !all && !i.canRelease(s) {
			return nil
		}

		t.queue[0] = nil
		t.queue = t.queue[1:]

		err := i.onSample(t, s)
		if err != nil {
			return err
		}
	}
}

func (i *interleaver) reset() {
	for _, t := range i.tracks {
		t.queue = nil
	}
}
