package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	assert.Equal(t, uint32(0), OverridedDuration())
	assert.False(t, OverridedHasAudio())
	assert.False(t, OverridedHasAudioSet())
	assert.False(t, OverridedHasVideo())
	assert.False(t, OverridedHasVideoSet())
	assert.Equal(t, uint32(0), TimestampBase())
	assert.False(t, ReuseRedirectedURL())
	assert.Equal(t, "info", LogLevel())
}

func TestSetters(t *testing.T) {
	SetOverridedDuration(120000)
	SetOverridedHasAudio(true)
	SetOverridedHasVideo(true)
	SetTimestampBase(500)

	assert.Equal(t, uint32(120000), OverridedDuration())
	assert.True(t, OverridedHasAudio())
	assert.True(t, OverridedHasAudioSet())
	assert.True(t, OverridedHasVideo())
	assert.True(t, OverridedHasVideoSet())
	assert.Equal(t, uint32(500), TimestampBase())

	// Reset for any tests that run after this one in the same process.
	SetOverridedDuration(0)
	SetOverridedHasAudio(false)
	SetOverridedHasVideo(false)
	SetTimestampBase(0)
}

func TestSettersCanForceFalse(t *testing.T) {
	SetOverridedHasAudio(false)
	SetOverridedHasVideo(false)

	assert.True(t, OverridedHasAudioSet())
	assert.False(t, OverridedHasAudio())
	assert.True(t, OverridedHasVideoSet())
	assert.False(t, OverridedHasVideo())
}
