package bench

import (
	"os"
	"path/filepath"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountRows(t *testing.T) {
	tests := []struct {
		name    string
		content string
		rows    int
	}{
		{"trailing newline", "a|b|\nc|d|\n", 2},
		{"no trailing newline", "a|b|\nc|d|", 2},
		{"single line", "a|b|", 1},
		{"empty", "", 0},
	}
	dir := t.TempDir()
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, string(rune('a'+i))+".tbl")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			assert.Equal(t, tt.rows, CountRows(path))
		})
	}
}

func TestCountRowsMissingFile(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	missing := filepath.Join(t.TempDir(), "missing.tbl")
	assert.Zero(t, CountRows(missing))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "Error: Unable to open file "+missing, hook.LastEntry().Message)
}
