package logger

import (
	"bytes"
	"io"
	"os"
	"time"

	"golang.org/x/term"
)

type destinationStdout struct {
	structured bool
	useColor   bool
	stdout     io.Writer

	buf bytes.Buffer
}

func newDestionationStdout(structured bool, stdout io.Writer) destination {
	useColor := false

	if stdout == nil {
		stdout = os.Stdout
		useColor = !structured && term.IsTerminal(int(os.Stdout.Fd()))
	}

	return &destinationStdout{
		structured: structured,
		useColor:   useColor,
		stdout:     stdout,
	}
}

func (d *destinationStdout) log(t time.Time, level Level, format string, args ...interface{}) {
	d.buf.Reset()
	writeEntry(&d.buf, t, level, d.structured, d.useColor, format, args)
	d.stdout.Write(d.buf.Bytes()) //nolint:errcheck
}

func (d *destinationStdout) close() {
}
