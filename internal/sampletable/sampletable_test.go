package sampletable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babelcloud/mp4demux/internal/mp4box"
)

func TestResolveSingleChunk(t *testing.T) {
	stsc := []mp4box.StscEntry{{FirstChunk: 1, SamplesPerChunk: 1, SampleDescriptionIndex: 1}}
	stsz := mp4box.Stsz{SampleCount: 1, Sizes: []uint32{1024}}
	stco := []uint32{2048}

	table, err := Resolve(stsc, stsz, stco)
	require.NoError(t, err)
	require.Len(t, table, 1)
	assert.Equal(t, int64(2048), table[0].FileOffset)
	assert.Equal(t, uint32(1024), table[0].Size)
}

func TestResolveMultiChunkRunLength(t *testing.T) {
	stsc := []mp4box.StscEntry{
		{FirstChunk: 1, SamplesPerChunk: 2, SampleDescriptionIndex: 1},
		{FirstChunk: 3, SamplesPerChunk: 1, SampleDescriptionIndex: 1},
	}
	stco := []uint32{100, 300, 500, 600}
	stsz := mp4box.Stsz{SampleCount: 5, Sizes: []uint32{50, 50, 50, 50, 50}}

	table, err := Resolve(stsc, stsz, stco)
	require.NoError(t, err)
	require.Len(t, table, 5)

	offsets := make([]int64, len(table))
	for i, s := range table {
		offsets[i] = s.FileOffset
	}
	assert.Equal(t, []int64{100, 150, 300, 350, 500}, offsets)
}

func TestResolveSampleCountMismatch(t *testing.T) {
	stsc := []mp4box.StscEntry{{FirstChunk: 1, SamplesPerChunk: 1, SampleDescriptionIndex: 1}}
	stco := []uint32{100}
	stsz := mp4box.Stsz{SampleCount: 5, Sizes: []uint32{1, 2, 3, 4, 5}}

	_, err := Resolve(stsc, stsz, stco)
	assert.ErrorIs(t, err, ErrSampleCountMismatch)
}

func TestAssignTimingNoEditList(t *testing.T) {
	table := []Sample{{}}
	stts := []mp4box.SttsEntry{{SampleCount: 1, SampleDelta: 3000}}

	AssignTiming(table, stts, nil, 90000, 0)
	assert.Equal(t, int64(0), table[0].DTS)
	assert.Equal(t, int64(0), table[0].PTS)
}

func TestAssignTimingWithEditListShift(t *testing.T) {
	table := []Sample{{}, {}}
	stts := []mp4box.SttsEntry{{SampleCount: 2, SampleDelta: 3000}}
	elst := []mp4box.ElstEntry{{MediaTime: 9000}}

	AssignTiming(table, stts, elst, 90000, 1000)
	assert.Equal(t, int64(-810000), table[0].DTS)
	assert.Equal(t, int64(-810000+3000), table[1].DTS)
}

func TestAssignTimingMonotonicAcrossRuns(t *testing.T) {
	table := make([]Sample, 3)
	stts := []mp4box.SttsEntry{
		{SampleCount: 2, SampleDelta: 1000},
		{SampleCount: 1, SampleDelta: 2000},
	}
	AssignTiming(table, stts, nil, 90000, 0)
	for i := 1; i < len(table); i++ {
		assert.GreaterOrEqual(t, table[i].DTS, table[i-1].DTS)
	}
	assert.Equal(t, int64(2000), table[2].DTS)
}
