package helper

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFile_WriteRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "chat.pid")
	p := NewPIDFile(path)
	assert.Equal(t, path, p.Path())

	require.NoError(t, p.Write())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	assert.NoError(t, p.Remove())
	assert.NoError(t, p.Remove())
}

func TestPIDFile_Empty(t *testing.T) {
	p := NewPIDFile("")
	assert.NoError(t, p.Write())
	assert.NoError(t, p.Remove())
}

func TestPIDFile_Relative(t *testing.T) {
	p := NewPIDFile("chat.pid")
	assert.True(t, filepath.IsAbs(p.Path()))
}
