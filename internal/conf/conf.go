// Package conf contains the struct that holds the configuration of the software.
package conf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/bluenviron/mediamux/internal/conf/env"
	"github.com/bluenviron/mediamux/internal/conf/yamlwrapper"
	"github.com/bluenviron/mediamux/internal/logger"
)

func firstThatExists(paths []string) string {
	for _, pa := range paths {
		_, err := os.Stat(pa)
		if err == nil {
			return pa
		}
	}
	return ""
}

// Conf is a configuration.
type Conf struct {
	// General
	LogLevel        LogLevel        `json:"logLevel"`
	LogDestinations LogDestinations `json:"logDestinations"`
	LogStructured   bool            `json:"logStructured"`
	LogFile         string          `json:"logFile"`

	// Muxer
	Format                 ContainerFormat `json:"format"`
	MaxDelayBetweenSamples StringDuration  `json:"maxDelayBetweenSamples"`
	VideoDuration          *StringDuration `json:"videoDuration,omitempty"`
	FMP4PartDuration       StringDuration  `json:"fmp4PartDuration"`
	WriteBufferSize        StringSize      `json:"writeBufferSize"`
	SpoolDirectory         string          `json:"spoolDirectory"`

	// Hooks
	RunOnComplete string `json:"runOnComplete"`
	RunOnCancel   string `json:"runOnCancel"`
}

func (conf *Conf) setDefaults() {
	// General
	conf.LogLevel = LogLevel(logger.Info)
	conf.LogDestinations = LogDestinations{logger.DestinationStdout}
	conf.LogFile = "mediamux.log"

	// Muxer
	conf.Format = ContainerFormatMP4
	conf.MaxDelayBetweenSamples = 10 * StringDuration(time.Second)
	conf.FMP4PartDuration = 1 * StringDuration(time.Second)
	conf.WriteBufferSize = 64 * 1024
}

// Load loads a Conf.
func Load(fpath string, defaultConfPaths []string) (*Conf, string, error) {
	conf := &Conf{}

	fpath, err := conf.loadFromFile(fpath, defaultConfPaths)
	if err != nil {
		return nil, "", err
	}

	err = env.Load("MUX", conf)
	if err != nil {
		return nil, "", err
	}

	err = conf.Validate()
	if err != nil {
		return nil, "", err
	}

	return conf, fpath, nil
}

func (conf *Conf) loadFromFile(fpath string, defaultConfPaths []string) (string, error) {
	if fpath == "" {
		fpath = firstThatExists(defaultConfPaths)

		// when the configuration file is not explicitly set,
		// it is optional.
		if fpath == "" {
			conf.setDefaults()
			return "", nil
		}
	}

	byts, err := os.ReadFile(fpath)
	if err != nil {
		return "", err
	}

	// an empty file still needs defaults, since UnmarshalJSON is not called
	conf.setDefaults()

	err = yamlwrapper.Unmarshal(byts, conf)
	if err != nil {
		return "", err
	}

	return fpath, nil
}

// Validate checks the configuration for errors.
func (conf *Conf) Validate() error {
	if conf.MaxDelayBetweenSamples <= 0 {
		return fmt.Errorf("'maxDelayBetweenSamples' must be greater than zero")
	}
	if conf.VideoDuration != nil && *conf.VideoDuration <= 0 {
		return fmt.Errorf("'videoDuration' must be greater than zero")
	}
	if conf.FMP4PartDuration <= 0 {
		return fmt.Errorf("'fmp4PartDuration' must be greater than zero")
	}
	if conf.FMP4PartDuration > conf.MaxDelayBetweenSamples {
		return fmt.Errorf("'fmp4PartDuration' can't be greater than 'maxDelayBetweenSamples'")
	}
	if conf.WriteBufferSize < 1024 {
		return fmt.Errorf("'writeBufferSize' must be at least 1KB")
	}
	if conf.SpoolDirectory != "" {
		st, err := os.Stat(conf.SpoolDirectory)
		if err != nil {
			return fmt.Errorf("'spoolDirectory': %w", err)
		}
		if !st.IsDir() {
			return fmt.Errorf("'spoolDirectory' is not a directory")
		}
	}
	if len(conf.LogDestinations) == 0 {
		return fmt.Errorf("at least one log destination must be set")
	}

	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (conf *Conf) UnmarshalJSON(b []byte) error {
	conf.setDefaults()

	type alias Conf
	d := json.NewDecoder(bytes.NewReader(b))
	d.DisallowUnknownFields()
	return d.Decode((*alias)(conf))
}
