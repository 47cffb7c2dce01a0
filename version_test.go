package roundtable

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersion(t *testing.T) {
	info := GetVersion()

	assert.Equal(t, Version, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.NotEmpty(t, info.Platform)

	s := info.String()
	assert.Contains(t, s, "Roundtable "+Version)
	assert.Contains(t, s, info.GoVersion)
}
