package github

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettings(t *testing.T) {
	t.Setenv("GITHUB_REPOSITORY", "acme/app")
	t.Setenv("GITHUB_RUN_ID", "123")
	t.Setenv("GITHUB_ACTOR", "octocat")
	t.Setenv("GITHUB_SHA", "deadbeef")
	t.Setenv("GITHUB_SERVER_URL", "https://github.example.com/")

	s, err := LoadSettings()
	require.NoError(t, err)

	assert.Equal(t, "acme/app", s.Repository)
	assert.Equal(t, "123", s.RunID)
	assert.Equal(t, "octocat", s.Actor)
	assert.Equal(t, "deadbeef", s.SHA)
	assert.True(t, s.InActions())
	assert.Equal(t, "https://github.example.com/acme/app/actions/runs/123", s.RunURL())
	assert.Equal(t, "https://github.example.com/acme/app/actions/runs/7", s.RunURLFor("7"))
}

func TestSettings_RunURLRequiresContext(t *testing.T) {
	s := &Settings{ServerURL: "https://github.com"}
	assert.Empty(t, s.RunURL())
	assert.False(t, s.InActions())
}

func TestSetOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output")
	s := &Settings{Output: path}

	require.NoError(t, s.SetOutput("trace_id", "4bf92f3577b34da6a3ce929d0e0e4736"))
	require.NoError(t, s.SetOutput("summary", "line one\nline two"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")

	require.Len(t, lines, 5)
	assert.Equal(t, "trace_id=4bf92f3577b34da6a3ce929d0e0e4736", lines[0])
	require.True(t, strings.HasPrefix(lines[1], "summary<<ghadelimiter_"))
	delim := strings.TrimPrefix(lines[1], "summary<<")
	assert.Equal(t, "line one", lines[2])
	assert.Equal(t, "line two", lines[3])
	assert.Equal(t, delim, lines[4])
}

func TestSetOutput_NoFile(t *testing.T) {
	assert.ErrorIs(t, (&Settings{}).SetOutput("a", "b"), ErrNoOutputFile)
}
