package mp4box

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func be32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func be16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func TestParseFtyp(t *testing.T) {
	body := append([]byte("isom"), be32(512)...)
	body = append(body, []byte("isomiso2avc1mp41")...)
	got, err := ParseFtyp(body)
	require.NoError(t, err)
	assert.Equal(t, "isom", got.MajorBrand)
	assert.Equal(t, uint32(512), got.MinorVersion)
	assert.Equal(t, []string{"isom", "iso2", "avc1", "mp41"}, got.CompatibleBrands)
}

func TestParseMvhd(t *testing.T) {
	body := make([]byte, 92)
	copy(body[8:12], be32(90000))
	copy(body[12:16], be32(180000))
	got, err := ParseMvhd(body)
	require.NoError(t, err)
	assert.Equal(t, uint32(90000), got.Timescale)
	assert.Equal(t, uint32(180000), got.Duration)
}

func TestParseTkhdTrackID(t *testing.T) {
	v0 := make([]byte, 76)
	copy(v0[8:12], be32(1))
	id, err := ParseTkhdTrackID(v0, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), id)

	v1 := make([]byte, 92)
	copy(v1[16:20], be32(2))
	id, err = ParseTkhdTrackID(v1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), id)
}

func TestParseMdhd(t *testing.T) {
	body := make([]byte, 20)
	copy(body[8:12], be32(90000))
	copy(body[12:16], be32(45000))
	got, err := ParseMdhd(body)
	require.NoError(t, err)
	assert.Equal(t, uint32(90000), got.Timescale)
	assert.Equal(t, uint32(45000), got.Duration)
}

func TestParseElstFirstEntry(t *testing.T) {
	body := append([]byte{}, be32(1)...)
	body = append(body, be32(0)...)     // segDuration
	body = append(body, be32(9000)...)  // mediaTime
	body = append(body, be16(1)...)     // rate int
	body = append(body, be16(0)...)     // rate frac
	entries, err := ParseElst(body)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, uint32(9000), entries[0].MediaTime)
}

func TestParseStsc(t *testing.T) {
	body := append([]byte{}, be32(2)...)
	body = append(body, be32(1)...)
	body = append(body, be32(2)...)
	body = append(body, be32(1)...)
	body = append(body, be32(3)...)
	body = append(body, be32(1)...)
	body = append(body, be32(1)...)
	entries, err := ParseStsc(body)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, StscEntry{FirstChunk: 1, SamplesPerChunk: 2, SampleDescriptionIndex: 1}, entries[0])
	assert.Equal(t, StscEntry{FirstChunk: 3, SamplesPerChunk: 1, SampleDescriptionIndex: 1}, entries[1])
}

func TestParseStszConstant(t *testing.T) {
	body := append([]byte{}, be32(1024)...)
	body = append(body, be32(5)...)
	got, err := ParseStsz(body)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), got.SampleCount)
	assert.Nil(t, got.Sizes)
	assert.Equal(t, uint32(1024), got.SizeOf(3))
}

func TestParseStszExplicit(t *testing.T) {
	body := append([]byte{}, be32(0)...)
	body = append(body, be32(3)...)
	body = append(body, be32(10)...)
	body = append(body, be32(20)...)
	body = append(body, be32(30)...)
	got, err := ParseStsz(body)
	require.NoError(t, err)
	assert.Equal(t, []uint32{10, 20, 30}, got.Sizes)
	assert.Equal(t, uint32(20), got.SizeOf(1))
}

func TestParseStco(t *testing.T) {
	body := append([]byte{}, be32(2)...)
	body = append(body, be32(2048)...)
	body = append(body, be32(4096)...)
	offsets, err := ParseStco(body)
	require.NoError(t, err)
	assert.Equal(t, []uint32{2048, 4096}, offsets)
}

func TestParseStts(t *testing.T) {
	body := append([]byte{}, be32(1)...)
	body = append(body, be32(10)...)
	body = append(body, be32(3000)...)
	entries, err := ParseStts(body)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, SttsEntry{SampleCount: 10, SampleDelta: 3000}, entries[0])
}

func TestParseStsdRejectsNonAvc1(t *testing.T) {
	body := append([]byte{}, be32(1)...)
	entry := append([]byte{}, be32(16)...)
	entry = append(entry, []byte("mp4a")...)
	entry = append(entry, make([]byte, 8)...)
	body = append(body, entry...)
	_, err := ParseStsd(body)
	assert.ErrorIs(t, err, ErrUnsupportedCodec)
}
