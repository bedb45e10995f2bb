package mp4box

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func box(fcc string, body []byte) []byte {
	size := be32(uint32(8 + len(body)))
	out := append([]byte{}, size...)
	out = append(out, []byte(fcc)...)
	out = append(out, body...)
	return out
}

func TestWalkSiblingBoxes(t *testing.T) {
	buf := append(box("ftyp", []byte("isom")), box("free", []byte{1, 2, 3})...)

	var seen []string
	err := Walk(buf, 0, len(buf), func(h Header) (bool, error) {
		seen = append(seen, h.Type)
		return false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ftyp", "free"}, seen)
}

func TestWalkRecursesIntoContainers(t *testing.T) {
	tkhd := box("tkhd", make([]byte, 84)) // full box, version+flags consumed
	trak := box("trak", tkhd)
	moov := box("moov", trak)

	var seen []string
	err := Walk(moov, 0, len(moov), func(h Header) (bool, error) {
		seen = append(seen, h.Type)
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"moov", "trak", "tkhd"}, seen)
}

func TestWalkDoesNotRecurseWhenVisitorDeclines(t *testing.T) {
	trak := box("trak", box("tkhd", make([]byte, 84)))
	moov := box("moov", trak)

	var seen []string
	err := Walk(moov, 0, len(moov), func(h Header) (bool, error) {
		seen = append(seen, h.Type)
		return h.Type != TypeTrak, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"moov", "trak"}, seen)
}

func TestWalkRejectsUndersizedBox(t *testing.T) {
	buf := be32(4) // size 4 is less than the minimum 8-byte header
	buf = append(buf, []byte("free")...)
	err := Walk(buf, 0, len(buf), func(Header) (bool, error) { return false, nil })
	assert.ErrorIs(t, err, ErrMalformedBox)
}

func TestWalkRejectsBoxOverflowingParent(t *testing.T) {
	buf := be32(100)
	buf = append(buf, []byte("free")...)
	buf = append(buf, make([]byte, 10)...)
	err := Walk(buf, 0, len(buf), func(Header) (bool, error) { return false, nil })
	assert.ErrorIs(t, err, ErrMalformedBox)
}

func TestWalkFullBoxVersionAndFlags(t *testing.T) {
	body := make([]byte, 16)
	body[0] = 1 // version 1
	buf := box("tkhd", body)
	var gotVersion uint8
	err := Walk(buf, 0, len(buf), func(h Header) (bool, error) {
		gotVersion = h.Version
		return false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint8(1), gotVersion)
}
