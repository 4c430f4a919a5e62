package helper

import (
	"fmt"
	"os"
	"path/filepath"
)

// PIDFile owns a file holding the current process id.
type PIDFile struct {
	path string
}

// NewPIDFile resolves filename relative to the working directory.
// An empty filename yields a no-op PIDFile.
func NewPIDFile(filename string) *PIDFile {
	if filename == "" || filepath.IsAbs(filename) {
		return &PIDFile{path: filename}
	}
	abs, err := filepath.Abs(filename)
	if err != nil {
		return &PIDFile{path: filename}
	}
	return &PIDFile{path: abs}
}

// Path returns the resolved file path
func (p *PIDFile) Path() string {
	return p.path
}

// Write writes the current process id, creating parent directories
func (p *PIDFile) Write() error {
	if p.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return fmt.Errorf("failed to create PID directory: %w", err)
	}
	return os.WriteFile(p.path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}

// Remove deletes the file; a missing file is not an error
func (p *PIDFile) Remove() error {
	if p.path == "" {
		return nil
	}
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
