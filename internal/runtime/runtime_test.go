//go:build linux

package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfo(t *testing.T) {
	host, err := Info()
	require.NoError(t, err)

	assert.Equal(t, "Linux", host.Sysname)
	assert.NotEmpty(t, host.Release)
	assert.LessOrEqual(t, host.FdSoft, host.FdHard)

	value := host.LogValue()
	assert.Len(t, value.Group(), 4)
}

func TestLimit(t *testing.T) {
	assert.Equal(t, "unlimited", limit(unlimited))
	assert.Equal(t, "1024", limit(1024))
}
