package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFullString(t *testing.T) {
	orig := Version
	t.Cleanup(func() { Version = orig })

	Version = "dev"
	assert.Equal(t, "buildtrace development version", FullString())

	Version = "v1.2.0"
	assert.Equal(t, "buildtrace v1.2.0", FullString())
	assert.Equal(t, "v1.2.0", String())
	assert.Equal(t, "v1.2.0", Info()["version"])
}

func TestInfoKeys(t *testing.T) {
	info := Info()
	for _, key := range []string{"version", "buildTime", "gitCommit", "goVersion"} {
		assert.Contains(t, info, key)
	}
	assert.NotEmpty(t, info["goVersion"])
}
