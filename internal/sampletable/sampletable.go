// Package sampletable implements the sample-to-chunk resolver and the
// timing resolver: the algorithmic heart of the demuxer, turning the four
// compact MP4 sample tables into a flat, per-sample table of file offsets,
// sizes, and timestamps.
package sampletable

import (
	"errors"
	"fmt"

	"github.com/babelcloud/mp4demux/internal/mp4box"
)

// ErrSampleCountMismatch is returned when stsc and stco together describe
// fewer samples than stsz.SampleCount. Samples they describe beyond
// stsz.SampleCount are left out of the table without an error.
var ErrSampleCountMismatch = errors.New("sampletable: sample count mismatch")

// Sample is one entry of the flat sample table.
type Sample struct {
	ChunkIndex   int
	IndexInChunk int
	FileOffset   int64
	Size         uint32
	DTS          int64
	PTS          int64
	CTS          int64 // always 0: ctts composition offsets are out of scope
}

// Resolve combines stsc, stsz, and stco into a flat sample table, covering
// every sample the three tables jointly describe.
//
// Algorithm: build a per-chunk array of {samplesPerChunk} by walking stsc
// entries from last to first (each entry i applies to chunks
// [firstChunk[i]-1, nextFirstChunk-1)), then walk chunks in order, tracking
// a running file-offset cursor per chunk seeded from stco.
func Resolve(stsc []mp4box.StscEntry, stsz mp4box.Stsz, stco []uint32) ([]Sample, error) {
	if len(stco) == 0 {
		if stsz.SampleCount == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: stco has no chunks but stsz declares %d samples", ErrSampleCountMismatch, stsz.SampleCount)
	}

	samplesPerChunk := make([]uint32, len(stco))
	for i := len(stsc) - 1; i >= 0; i-- {
		entry := stsc[i]
		var nextFirstChunk uint32
		if i+1 < len(stsc) {
			nextFirstChunk = stsc[i+1].FirstChunk
		} else {
			nextFirstChunk = uint32(len(stco)) + 1
		}
		start := entry.FirstChunk - 1
		end := nextFirstChunk - 1
		if end > uint32(len(stco)) {
			end = uint32(len(stco))
		}
		for chunk := start; chunk < end; chunk++ {
			samplesPerChunk[chunk] = entry.SamplesPerChunk
		}
	}

	table := make([]Sample, 0, stsz.SampleCount)
	globalIdx := 0
	for chunkIdx, n := range samplesPerChunk {
		cursor := int64(stco[chunkIdx])
		for i := uint32(0); i < n; i++ {
			if globalIdx >= int(stsz.SampleCount) {
				break
			}
			size := stsz.SizeOf(globalIdx)
			table = append(table, Sample{
				ChunkIndex:   chunkIdx,
				IndexInChunk: int(i),
				FileOffset:   cursor,
				Size:         size,
			})
			cursor += int64(size)
			globalIdx++
		}
	}

	if len(table) != int(stsz.SampleCount) {
		return nil, fmt.Errorf("%w: resolved %d samples, stsz declares %d", ErrSampleCountMismatch, len(table), stsz.SampleCount)
	}

	return table, nil
}

// AssignTiming fills in DTS/PTS for each sample in decode order from the
// stts run-length table and an optional edit-list shift.
// table is mutated in place and also returned for convenience.
func AssignTiming(table []Sample, stts []mp4box.SttsEntry, elst []mp4box.ElstEntry, timescaleMdhd, timescaleMvhd uint32) []Sample {
	var startOffset int64
	if len(elst) > 0 && timescaleMvhd != 0 {
		startOffset = int64(elst[0].MediaTime) * int64(timescaleMdhd) / int64(timescaleMvhd)
	}

	idx := 0
	var cumulative int64
	for _, entry := range stts {
		for j := uint32(0); j < entry.SampleCount && idx < len(table); j++ {
			dts := cumulative + int64(entry.SampleDelta)*int64(j) - startOffset
			table[idx].DTS = dts
			table[idx].PTS = dts
			table[idx].CTS = 0
			idx++
		}
		cumulative += int64(entry.SampleDelta) * int64(entry.SampleCount)
	}
	return table
}
