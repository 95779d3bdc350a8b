// Package core contains the main struct of the software.
package core

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/bluenviron/mediamux/internal/conf"
	"github.com/bluenviron/mediamux/internal/externalcmd"
	"github.com/bluenviron/mediamux/internal/framework"
	"github.com/bluenviron/mediamux/internal/logger"
	"github.com/bluenviron/mediamux/internal/muxer"
)

var version = "v0.0.0"

var defaultConfPaths = []string{
	"mediamux.yml",
	"/usr/local/etc/mediamux.yml",
	"/usr/etc/mediamux.yml",
	"/etc/mediamux/mediamux.yml",
}

type cliArgs struct {
	Version     bool   `help:"print version"`
	ListFormats bool   `help:"print the sample MIME types supported by the container format and exit"`
	Conf        string `help:"path to a config file"`
	Format      string `help:"container format (mp4, fmp4, mpegts, webm). Overrides the configuration."`
	Input       string `arg:"" optional:"" help:"input MP4 file"`
	Output      string `arg:"" optional:"" help:"output file"`
}

// Core is an instance of mediamux.
type Core struct {
	ctx       context.Context
	ctxCancel func()
	conf      *conf.Conf
	logger    *logger.Logger
	input     string
	output    string
	factory   *muxer.SessionFactory
	err       error

	// out
	done chan struct{}
}

// New allocates a Core.
func New(args []string) (*Core, bool) {
	var cli cliArgs

	parser, err := kong.New(&cli,
		kong.Description("mediamux "+version),
		kong.UsageOnError(),
		kong.ValueFormatter(func(value *kong.Value) string {
			switch value.Name {
			case "conf":
				return "path to a config file. The default is mediamux.yml."

			default:
				return kong.DefaultHelpValueFormatter(value)
			}
		}))
	if err != nil {
		panic(err)
	}

	_, err = parser.Parse(args)
	parser.FatalIfErrorf(err)

	if cli.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	p := &Core{
		ctx:       ctx,
		ctxCancel: ctxCancel,
		input:     cli.Input,
		output:    cli.Output,
		done:      make(chan struct{}),
	}

	var confPath string
	p.conf, confPath, err = conf.Load(cli.Conf, defaultConfPaths)
	if err != nil {
		fmt.Printf("ERR: %s\n", err)
		return nil, false
	}

	if cli.Format != "" {
		err = p.conf.Format.UnmarshalEnv("", cli.Format)
		if err != nil {
			fmt.Printf("ERR: %s\n", err)
			return nil, false
		}
	}

	p.logger = &logger.Logger{
		Level:        logger.Level(p.conf.LogLevel),
		Destinations: p.conf.LogDestinations,
		Structured:   p.conf.LogStructured,
		File:         p.conf.LogFile,
	}
	err = p.logger.Initialize()
	if err != nil {
		fmt.Printf("ERR: %s\n", err)
		return nil, false
	}

	p.Log(logger.Debug, "mediamux %s", version)

	if confPath != "" {
		p.Log(logger.Debug, "configuration loaded from %s", confPath)
	}

	p.factory = &muxer.SessionFactory{
		Inner:  p.newFrameworkFactory(),
		Parent: p,
	}

	if cli.ListFormats {
		p.listFormats()
		p.logger.Close()
		close(p.done)
		return p, true
	}

	if cli.Input == "" || cli.Output == "" {
		p.Log(logger.Error, "input and output files are required")
		p.logger.Close()
		return nil, false
	}

	go p.run()

	return p, true
}

// Close cancels the remux and waits for all goroutines to return.
func (p *Core) Close() {
	p.ctxCancel()
	<-p.done
}

// Wait waits for the Core to exit and returns the outcome of the remux.
func (p *Core) Wait() error {
	<-p.done
	return p.err
}

// Log is the main logging function.
func (p *Core) Log(level logger.Level, format string, args ...interface{}) {
	p.logger.Log(level, format, args...)
}

func (p *Core) newFrameworkFactory() *framework.Factory {
	f := &framework.Factory{
		Format:                 p.conf.Format,
		MaxDelayBetweenSamples: time.Duration(p.conf.MaxDelayBetweenSamples),
		PartDuration:           time.Duration(p.conf.FMP4PartDuration),
		WriteBufferSize:        int(p.conf.WriteBufferSize),
		SpoolDirectory:         p.conf.SpoolDirectory,
		Parent:                 p,
	}

	if p.conf.VideoDuration != nil {
		f.VideoDuration = time.Duration(*p.conf.VideoDuration)
	}

	return f
}

func (p *Core) listFormats() {
	for _, trackType := range []muxer.TrackType{
		muxer.TrackTypeVideo,
		muxer.TrackTypeAudio,
		muxer.TrackTypeMetadata,
	} {
		for _, mimeType := range p.factory.SupportedSampleMIMETypes(trackType) {
			fmt.Printf("%s\t%s\t%s\n", p.conf.Format, trackType, mimeType)
		}
	}
}

func (p *Core) run() {
	defer close(p.done)
	defer p.logger.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	r := &remux{
		inputPath:  p.input,
		outputPath: p.output,
		factory:    p.factory,
		parent:     p,
	}

	type result struct {
		duration time.Duration
		err      error
	}

	remuxDone := make(chan result)

	go func() {
		duration, err := r.run(p.ctx)
		remuxDone <- result{duration, err}
	}()

	var res result

outer:
	for {
		select {
		case <-interrupt:
			p.Log(logger.Info, "shutting down gracefully")
			p.ctxCancel()

		case res = <-remuxDone:
			break outer
		}
	}

	p.ctxCancel()

	p.err = res.err

	if res.err != nil {
		p.Log(logger.Error, "%s", res.err)
		p.runHook("runOnCancel", p.conf.RunOnCancel, res.duration)
	} else {
		p.Log(logger.Info, "written %s (%s, %v)", p.output, p.conf.Format, res.duration)
		p.runHook("runOnComplete", p.conf.RunOnComplete, res.duration)
	}
}

func (p *Core) runHook(name string, cmdstr string, duration time.Duration) {
	if cmdstr == "" {
		return
	}

	p.Log(logger.Info, "%s command started", name)

	cmd := &externalcmd.Cmd{
		Cmdstr: cmdstr,
		Env: externalcmd.Environment{
			"MUX_OUTPUT":   p.output,
			"MUX_FORMAT":   p.conf.Format.String(),
			"MUX_DURATION": strconv.FormatFloat(duration.Seconds(), 'f', -1, 64),
		},
	}
	cmd.Initialize()

	err := cmd.Wait()
	if err != nil {
		p.Log(logger.Warn, "%s command exited with error: %v", name, err)
	}
}
