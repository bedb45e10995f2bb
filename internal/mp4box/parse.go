package mp4box

import (
	"errors"
	"fmt"

	"github.com/babelcloud/mp4demux/internal/bitreader"
)

// Ftyp is the decoded ftyp box: the major brand, minor version, and the
// list of compatible brands that fill the remainder of the box.
type Ftyp struct {
	MajorBrand       string
	MinorVersion     uint32
	CompatibleBrands []string
}

// ParseFtyp decodes an ftyp box body.
func ParseFtyp(body []byte) (Ftyp, error) {
	r := bitreader.New(body)
	major, err := r.FourCC(0)
	if err != nil {
		return Ftyp{}, err
	}
	minor, err := r.U32(4)
	if err != nil {
		return Ftyp{}, err
	}
	var brands []string
	for off := 8; off+4 <= len(body); off += 4 {
		b, err := r.FourCC(off)
		if err != nil {
			return Ftyp{}, err
		}
		brands = append(brands, b)
	}
	return Ftyp{MajorBrand: major, MinorVersion: minor, CompatibleBrands: brands}, nil
}

// Mvhd is the decoded (version-0) mvhd box fields this demuxer needs.
type Mvhd struct {
	Timescale uint32
	Duration  uint32
}

// ParseMvhd decodes a version-0 mvhd box body. body excludes the 4-byte
// version+flags field, per the walker's full-box convention:
// creation_time(4) and modification_time(4) precede timescale.
func ParseMvhd(body []byte) (Mvhd, error) {
	r := bitreader.New(body)
	timescale, err := r.U32(8)
	if err != nil {
		return Mvhd{}, err
	}
	duration, err := r.U32(12)
	if err != nil {
		return Mvhd{}, err
	}
	return Mvhd{Timescale: timescale, Duration: duration}, nil
}

// ParseTkhdTrackID extracts the track id from a tkhd box body (version+
// flags already stripped by the walker), honoring the version-dependent
// field offset: 8 for v0 (32-bit creation/modification time), 16 for v1
// (64-bit creation/modification time).
func ParseTkhdTrackID(body []byte, version uint8) (uint32, error) {
	r := bitreader.New(body)
	off := 8
	if version == 1 {
		off = 16
	}
	return r.U32(off)
}

// Mdhd is the decoded (version-0) mdhd box fields this demuxer needs.
type Mdhd struct {
	Timescale uint32
	Duration  uint32
}

// ParseMdhd decodes a version-0 mdhd box body.
func ParseMdhd(body []byte) (Mdhd, error) {
	r := bitreader.New(body)
	timescale, err := r.U32(8)
	if err != nil {
		return Mdhd{}, err
	}
	duration, err := r.U32(12)
	if err != nil {
		return Mdhd{}, err
	}
	return Mdhd{Timescale: timescale, Duration: duration}, nil
}

// ElstEntry is one edit-list entry.
type ElstEntry struct {
	SegmentDuration uint32
	MediaTime       uint32
	MediaRateInt    uint16
	MediaRateFrac   uint16
}

// ParseElst decodes an elst box body. Only entries[0] is consulted by the
// timing resolver, but all entries are parsed.
func ParseElst(body []byte) ([]ElstEntry, error) {
	r := bitreader.New(body)
	count, err := r.U32(0)
	if err != nil {
		return nil, err
	}
	entries := make([]ElstEntry, 0, count)
	off := 4
	for i := uint32(0); i < count; i++ {
		segDur, err := r.U32(off)
		if err != nil {
			return nil, err
		}
		mediaTime, err := r.U32(off + 4)
		if err != nil {
			return nil, err
		}
		rateInt, err := r.U16(off + 8)
		if err != nil {
			return nil, err
		}
		rateFrac, err := r.U16(off + 10)
		if err != nil {
			return nil, err
		}
		entries = append(entries, ElstEntry{
			SegmentDuration: segDur,
			MediaTime:       mediaTime,
			MediaRateInt:    rateInt,
			MediaRateFrac:   rateFrac,
		})
		off += 12
	}
	return entries, nil
}

// Avc1SampleEntry is the decoded fixed-layout fields of an avc1 SampleEntry
// (ISO/IEC 14496-15), not including the nested avcC box.
type Avc1SampleEntry struct {
	Width      uint16
	Height     uint16
	FrameCount uint16
	Depth      uint16
	// AvcCOffset/AvcCEnd bound the nested avcC box within the stsd body,
	// relative to the same buffer ParseStsd was given.
	AvcCOffset int
	AvcCEnd    int
}

// ErrUnsupportedCodec is returned when an stsd sample entry is not avc1.
var ErrUnsupportedCodec = errors.New("mp4box: unsupported codec")

// ParseStsd decodes an stsd box body down to the avc1 SampleEntry's fixed
// fields and the byte range of its nested avcC box. A non-avc1 entry is a
// fatal CODEC_UNSUPPORTED condition.
func ParseStsd(body []byte) (Avc1SampleEntry, error) {
	r := bitreader.New(body)
	entryCount, err := r.U32(0)
	if err != nil {
		return Avc1SampleEntry{}, err
	}
	if entryCount == 0 {
		return Avc1SampleEntry{}, fmt.Errorf("%w: stsd has no sample entries", ErrUnsupportedCodec)
	}

	// SampleEntry header: size(4) + format(4).
	entryStart := 4
	if entryStart+8 > len(body) {
		return Avc1SampleEntry{}, bitreader.ErrBufferUnderflow
	}
	entrySize, err := r.U32(entryStart)
	if err != nil {
		return Avc1SampleEntry{}, err
	}
	format, err := r.FourCC(entryStart + 4)
	if err != nil {
		return Avc1SampleEntry{}, err
	}
	if format != TypeAvc1 {
		return Avc1SampleEntry{}, fmt.Errorf("%w: stsd sample entry is %q, not avc1", ErrUnsupportedCodec, format)
	}

	// avc1 VisualSampleEntry fixed layout, starting right after the 8-byte
	// SampleEntry header: 6 reserved + 2 dataReferenceIndex + 16 pre-defined
	// + 2 width + 2 height + 4 horiz-res + 4 vert-res + 4 reserved +
	// 2 frameCount + 32 compressorname + 2 depth + 2 pre-defined = 78 bytes.
	fixed := entryStart + 8
	width, err := r.U16(fixed + 24)
	if err != nil {
		return Avc1SampleEntry{}, err
	}
	height, err := r.U16(fixed + 26)
	if err != nil {
		return Avc1SampleEntry{}, err
	}
	frameCount, err := r.U16(fixed + 40)
	if err != nil {
		return Avc1SampleEntry{}, err
	}
	depth, err := r.U16(fixed + 74)
	if err != nil {
		return Avc1SampleEntry{}, err
	}

	avcCStart := fixed + 78
	entryEnd := entryStart + int(entrySize)
	if entryEnd > len(body) {
		return Avc1SampleEntry{}, fmt.Errorf("%w: avc1 entry extends past stsd body", ErrUnsupportedCodec)
	}

	return Avc1SampleEntry{
		Width:      width,
		Height:     height,
		FrameCount: frameCount,
		Depth:      depth,
		AvcCOffset: avcCStart,
		AvcCEnd:    entryEnd,
	}, nil
}

// StscEntry is one run-length sample-to-chunk entry.
type StscEntry struct {
	FirstChunk             uint32
	SamplesPerChunk        uint32
	SampleDescriptionIndex uint32
}

// ParseStsc decodes an stsc box body.
func ParseStsc(body []byte) ([]StscEntry, error) {
	r := bitreader.New(body)
	count, err := r.U32(0)
	if err != nil {
		return nil, err
	}
	entries := make([]StscEntry, 0, count)
	off := 4
	for i := uint32(0); i < count; i++ {
		firstChunk, err := r.U32(off)
		if err != nil {
			return nil, err
		}
		samplesPerChunk, err := r.U32(off + 4)
		if err != nil {
			return nil, err
		}
		sdi, err := r.U32(off + 8)
		if err != nil {
			return nil, err
		}
		entries = append(entries, StscEntry{
			FirstChunk:             firstChunk,
			SamplesPerChunk:        samplesPerChunk,
			SampleDescriptionIndex: sdi,
		})
		off += 12
	}
	return entries, nil
}

// Stsz is the decoded sample-size table: either a constant SampleSize (when
// non-zero, Sizes is nil) or an explicit per-sample Sizes array.
type Stsz struct {
	SampleSize  uint32
	SampleCount uint32
	Sizes       []uint32
}

// SizeOf returns the size of sample index i (0-based).
func (s Stsz) SizeOf(i int) uint32 {
	if s.SampleSize != 0 {
		return s.SampleSize
	}
	return s.Sizes[i]
}

// ParseStsz decodes an stsz box body.
func ParseStsz(body []byte) (Stsz, error) {
	r := bitreader.New(body)
	sampleSize, err := r.U32(0)
	if err != nil {
		return Stsz{}, err
	}
	sampleCount, err := r.U32(4)
	if err != nil {
		return Stsz{}, err
	}
	out := Stsz{SampleSize: sampleSize, SampleCount: sampleCount}
	if sampleSize == 0 {
		sizes := make([]uint32, 0, sampleCount)
		off := 8
		for i := uint32(0); i < sampleCount; i++ {
			v, err := r.U32(off)
			if err != nil {
				return Stsz{}, err
			}
			sizes = append(sizes, v)
			off += 4
		}
		out.Sizes = sizes
	}
	return out, nil
}

// ParseStco decodes an stco box body into the per-chunk file offsets.
func ParseStco(body []byte) ([]uint32, error) {
	r := bitreader.New(body)
	count, err := r.U32(0)
	if err != nil {
		return nil, err
	}
	offsets := make([]uint32, 0, count)
	off := 4
	for i := uint32(0); i < count; i++ {
		v, err := r.U32(off)
		if err != nil {
			return nil, err
		}
		offsets = append(offsets, v)
		off += 4
	}
	return offsets, nil
}

// SttsEntry is one run-length decode-time-delta entry.
type SttsEntry struct {
	SampleCount uint32
	SampleDelta uint32
}

// ParseStts decodes an stts box body.
func ParseStts(body []byte) ([]SttsEntry, error) {
	r := bitreader.New(body)
	count, err := r.U32(0)
	if err != nil {
		return nil, err
	}
	entries := make([]SttsEntry, 0, count)
	off := 4
	for i := uint32(0); i < count; i++ {
		sc, err := r.U32(off)
		if err != nil {
			return nil, err
		}
		sd, err := r.U32(off + 4)
		if err != nil {
			return nil, err
		}
		entries = append(entries, SttsEntry{SampleCount: sc, SampleDelta: sd})
		off += 8
	}
	return entries, nil
}
