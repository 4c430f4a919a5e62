package helper

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// Signal sends sig to the process recorded in the PID file
func (p *PIDFile) Signal(sig syscall.Signal) error {
	if p.path == "" {
		return fmt.Errorf("PID file path is empty")
	}

	pid, err := p.read()
	if err != nil {
		return err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("process not found: %w", err)
	}
	if err := process.Signal(sig); err != nil {
		return fmt.Errorf("failed to send signal to %d: %w", pid, err)
	}
	return nil
}

func (p *PIDFile) read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID format in file: %w", err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("invalid PID value: %d", pid)
	}
	return pid, nil
}
