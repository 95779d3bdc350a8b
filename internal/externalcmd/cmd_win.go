//go:build windows

package externalcmd

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"unsafe"

	"github.com/kballard/go-shellquote"
	"golang.org/x/sys/windows"
)

// newKillOnCloseJob returns a job object that terminates
// its processes when its handle is closed.
func newKillOnCloseJob(p *os.Process) (windows.Handle, error) {
	job, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return 0, err
	}

	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{
		BasicLimitInformation: windows.JOBOBJECT_BASIC_LIMIT_INFORMATION{
			LimitFlags: windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE,
		},
	}
	_, err = windows.SetInformationJobObject(
		job,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)),
		uint32(unsafe.Sizeof(info)))
	if err != nil {
		windows.CloseHandle(job) //nolint:errcheck
		return 0, err
	}

	ph, err := windows.OpenProcess(windows.PROCESS_SET_QUOTA|windows.PROCESS_TERMINATE, false, uint32(p.Pid))
	if err != nil {
		windows.CloseHandle(job) //nolint:errcheck
		return 0, fmt.Errorf("unable to open process: %w", err)
	}
	defer windows.CloseHandle(ph) //nolint:errcheck

	err = windows.AssignProcessToJobObject(job, ph)
	if err != nil {
		windows.CloseHandle(job) //nolint:errcheck
		return 0, fmt.Errorf("unable to assign process to job: %w", err)
	}

	return job, nil
}

func (e *Cmd) runOSSpecific(env []string) error {
	var cmd *exec.Cmd

	// cmd.exe does its own unquoting, therefore the command line is passed as is.
	if strings.HasPrefix(e.Cmdstr, "cmd ") || strings.HasPrefix(e.Cmdstr, "cmd.exe ") {
		cmd = exec.Command("cmd.exe")
		cmd.SysProcAttr = &syscall.SysProcAttr{
			CmdLine: strings.TrimPrefix(strings.TrimPrefix(e.Cmdstr, "cmd "), "cmd.exe "),
		}
	} else {
		parts, err := shellquote.Split(e.Cmdstr)
		if err != nil {
			return err
		}
		if len(parts) == 0 {
			return fmt.Errorf("empty command")
		}

		cmd = exec.Command(parts[0], parts[1:]...)
	}

	cmd.Env = env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Start()
	if err != nil {
		return err
	}

	// subprocesses of the hook are terminated together with it
	job, err := newKillOnCloseJob(cmd.Process)
	if err != nil {
		cmd.Process.Kill() //nolint:errcheck
		cmd.Wait()         //nolint:errcheck
		return err
	}

	cmdDone := make(chan error)
	go func() {
		cmdDone <- cmd.Wait()
	}()

	select {
	case <-e.terminate:
		windows.CloseHandle(job) //nolint:errcheck
		<-cmdDone
		return errTerminated

	case err := <-cmdDone:
		windows.CloseHandle(job) //nolint:errcheck
		return exitError(err)
	}
}
