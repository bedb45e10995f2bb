package sps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// baselineSPS encodes profile_idc=66 (baseline), level_idc=30, no VUI,
// 320x240, no cropping: a hand-built RBSP so the expected values below are
// exact rather than derived from an opaque fixture.
var baselineSPS = []byte{0x42, 0xC0, 0x1E, 0xF8, 0x28, 0x3F, 0x00}

func TestParseBaselineNoVUI(t *testing.T) {
	info, err := Parse(baselineSPS)
	require.NoError(t, err)

	assert.Equal(t, uint8(0x42), info.Profile)
	assert.Equal(t, uint8(0x1E), info.Level)
	assert.Equal(t, uint32(1), info.ChromaFormat)
	assert.Equal(t, uint8(8), info.BitDepth)
	assert.Equal(t, uint32(320), info.CodecWidth)
	assert.Equal(t, uint32(240), info.CodecHeight)
	assert.Equal(t, uint32(320), info.PresentWidth)
	assert.Equal(t, uint32(240), info.PresentHeight)
	assert.Equal(t, Ratio{1, 1}, info.SarRatio)

	// No VUI timing info present: substitute the default frame rate.
	assert.Equal(t, DefaultFrameRate, info.FrameRate)
}

func TestParseRejectsTooShortPayload(t *testing.T) {
	_, err := Parse([]byte{0x42, 0xC0})
	assert.Error(t, err)
}

func TestReadUEExamples(t *testing.T) {
	// 0 -> "1", 1 -> "010", 2 -> "011", 3 -> "00100"
	r := newBitReader([]byte{0b1_010_011_0, 0b0100_0000})
	assert.Equal(t, uint32(0), r.readUE())
	assert.Equal(t, uint32(1), r.readUE())
	assert.Equal(t, uint32(2), r.readUE())
	assert.Equal(t, uint32(3), r.readUE())
}
