package framework

import (
	"bufio"
	"os"
)

// spool stores sample payloads in a temporary file
// until the progressive MP4 header can be written.
type spool struct {
	dir        string
	bufferSize int

	f    *os.File
	bw   *bufio.Writer
	size int64
}

func (s *spool) initialize() error {
	var err error
	s.f, err = os.CreateTemp(s.dir, "mediamux-spool-")
	if err != nil {
		return err
	}

	s.bw = bufio.NewWriterSize(s.f, s.bufferSize)
	return nil
}

func (s *spool) write(p []byte) (int64, error) {
	off := s.size
	n, err := s.bw.Write(p)
	s.size += int64(n)
	return off, err
}

func (s *spool) flush() error {
	return s.bw.Flush()
}

func (s *spool) payload(off int64, size uint32) func() ([]byte, error) {
	return func() ([]byte, error) {
		buf := make([]byte, size)
		_, err := s.f.ReadAt(buf, off)
		if err != nil {
			return nil, err
		}
		return buf, nil
	}
}

func (s *spool) close() {
	if s.f == nil {
		return
	}
	s.f.Close()
	os.Remove(s.f.Name())
	s.f = nil
}
