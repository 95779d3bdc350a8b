package conf

import (
	"encoding/json"
	"fmt"

	"github.com/bluenviron/mediamux/internal/conf/jsonwrapper"
)

// ContainerFormat is the format parameter.
type ContainerFormat int

// supported values.
const (
	ContainerFormatMP4 ContainerFormat = iota
	ContainerFormatFMP4
	ContainerFormatMPEGTS
	ContainerFormatWebM
)

// String implements fmt.Stringer.
func (d ContainerFormat) String() string {
	switch d {
	case ContainerFormatFMP4:
		return "fmp4"

	case ContainerFormatMPEGTS:
		return "mpegts"

	case ContainerFormatWebM:
		return "webm"

	default:
		return "mp4"
	}
}

// MarshalJSON implements json.Marshaler.
func (d ContainerFormat) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *ContainerFormat) UnmarshalJSON(b []byte) error {
	var in string
	if err := jsonwrapper.Unmarshal(b, &in); err != nil {
		return err
	}

	switch in {
	case "mp4":
		*d = ContainerFormatMP4

	case "fmp4":
		*d = ContainerFormatFMP4

	case "mpegts":
		*d = ContainerFormatMPEGTS

	case "webm":
		*d = ContainerFormatWebM

	default:
		return fmt.Errorf("invalid container format '%s'", in)
	}

	return nil
}

// UnmarshalEnv implements env.Unmarshaler.
func (d *ContainerFormat) UnmarshalEnv(_ string, v string) error {
	return d.UnmarshalJSON([]byte(`"` + v + `"`))
}
