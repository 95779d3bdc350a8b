// Package externalcmd allows to launch external commands.
package externalcmd

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

var errTerminated = errors.New("terminated")

// Environment is a Cmd environment.
type Environment map[string]string

// Cmd is an external command that runs once.
type Cmd struct {
	Cmdstr string
	Env    Environment

	terminate chan struct{}
	done      chan struct{}
	err       error
}

// Initialize starts the command.
func (e *Cmd) Initialize() {
	// replace variables in both Linux and Windows, in order to allow using the
	// same commands on both of them.
	for key, val := range e.Env {
		e.Cmdstr = strings.ReplaceAll(e.Cmdstr, "$"+key, val)
	}

	e.terminate = make(chan struct{})
	e.done = make(chan struct{})

	go e.run()
}

// Close terminates the command and waits for it to exit.
func (e *Cmd) Close() {
	close(e.terminate)
	<-e.done
}

// Wait waits for the command to exit and returns its outcome.
func (e *Cmd) Wait() error {
	<-e.done
	return e.err
}

func (e *Cmd) run() {
	defer close(e.done)

	env := append([]string(nil), os.Environ()...)
	for key, val := range e.Env {
		env = append(env, key+"="+val)
	}

	e.err = e.runOSSpecific(env)
}

// exitError converts the result of exec.Cmd.Wait into the outcome of the command.
func exitError(err error) error {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return fmt.Errorf("command exited with code %d", ee.ExitCode())
	}
	return err
}
