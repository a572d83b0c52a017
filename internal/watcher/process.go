package watcher

import (
	"bufio"
	"bytes"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
)

// Process is one process-table entry.
type Process struct {
	PID     int
	Command string
}

// ProcessManager abstracts child-process spawn, kill, and process-table
// listing so the supervisor is testable without real processes.
type ProcessManager interface {
	SpawnDetached(name string, args ...string) (int, error)
	Kill(pid int) error
	Processes() ([]Process, error)
}

// OSProcessManager is the real ProcessManager.
type OSProcessManager struct{}

// SpawnDetached starts a child in its own session so it survives the
// supervisor. Stdout and stderr are discarded; the child logs for
// itself.
func (OSProcessManager) SpawnDetached(name string, args ...string) (int, error) {
	cmd := exec.Command(name, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	// Reap the child when it exits so it never lingers as a zombie.
	go func() { _ = cmd.Wait() }()
	return pid, nil
}

// Kill terminates a process by pid.
func (OSProcessManager) Kill(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return proc.Kill()
	}
	return nil
}

// Processes lists the process table via ps.
func (OSProcessManager) Processes() ([]Process, error) {
	out, err := exec.Command("ps", "axww", "-o", "pid=,command=").Output()
	if err != nil {
		return nil, err
	}
	return parseProcessTable(out), nil
}

func parseProcessTable(out []byte) []Process {
	var procs []Process
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		procs = append(procs, Process{PID: pid, Command: strings.TrimSpace(fields[1])})
	}
	return procs
}
