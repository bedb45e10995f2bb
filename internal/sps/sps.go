// Package sps decodes the H.264 Sequence Parameter Set fields the AVC
// configuration parser (internal/avc) needs to populate a media-information
// record: profile, level, chroma format, bit depth, coded/display
// resolution, sample aspect ratio, and frame rate.
package sps

import "fmt"

// Ratio is a numerator/denominator pair, used for both the sample aspect
// ratio and the frame-rate fraction.
type Ratio struct {
	Num uint32
	Den uint32
}

// FrameRate describes the frame rate derived from the VUI timing_info, or
// the demuxer's default when the SPS carries none.
type FrameRate struct {
	Fixed bool
	Fps   float64
	Num   uint32
	Den   uint32
}

// DefaultFrameRate is substituted when the SPS's VUI timing info is absent,
// not fixed, or degenerate (zero numerator or denominator).
var DefaultFrameRate = FrameRate{Fixed: true, Fps: 23.976, Num: 23976, Den: 1000}

// Info is everything the AVC configuration parser reads out of one SPS.
type Info struct {
	Profile      uint8
	Level        uint8
	ChromaFormat uint32
	BitDepth     uint8
	CodecWidth   uint32
	CodecHeight  uint32
	PresentWidth uint32
	PresentHeight uint32
	SarRatio     Ratio
	FrameRate    FrameRate
}

// bitReader reads individual bits and Exp-Golomb codes out of a NAL payload
// with emulation-prevention bytes (0x00 0x00 0x03) already removed.
type bitReader struct {
	data []byte
	pos  int // bit position
}

func newBitReader(data []byte) *bitReader {
	return &bitReader{data: stripEmulationPrevention(data)}
}

func stripEmulationPrevention(data []byte) []byte {
	out := make([]byte, 0, len(data))
	zeroRun := 0
	for _, b := range data {
		if zeroRun >= 2 && b == 0x03 {
			zeroRun = 0
			continue
		}
		if b == 0x00 {
			zeroRun++
		} else {
			zeroRun = 0
		}
		out = append(out, b)
	}
	return out
}

func (r *bitReader) readBit() uint32 {
	if r.pos/8 >= len(r.data) {
		return 0
	}
	b := r.data[r.pos/8]
	shift := 7 - uint(r.pos%8)
	r.pos++
	return uint32(b>>shift) & 1
}

func (r *bitReader) readBits(n int) uint32 {
	var v uint32
	for i := 0; i < n; i++ {
		v = v<<1 | r.readBit()
	}
	return v
}

func (r *bitReader) readUE() uint32 {
	zeros := 0
	for r.readBit() == 0 {
		zeros++
		if zeros > 32 {
			return 0
		}
	}
	if zeros == 0 {
		return 0
	}
	return (1 << uint(zeros)) - 1 + r.readBits(zeros)
}

func (r *bitReader) readSE() int32 {
	v := r.readUE()
	if v%2 == 0 {
		return -int32(v / 2)
	}
	return int32(v+1) / 2
}

func (r *bitReader) skipScalingList(size int) {
	lastScale, nextScale := int32(8), int32(8)
	for i := 0; i < size; i++ {
		if nextScale != 0 {
			delta := r.readSE()
			nextScale = (lastScale + delta + 256) % 256
		}
		if nextScale != 0 {
			lastScale = nextScale
		}
	}
}

// Parse decodes the Sequence Parameter Set payload (the NAL unit's RBSP,
// without the leading NAL header byte or any length/start-code framing).
func Parse(payload []byte) (Info, error) {
	if len(payload) < 4 {
		return Info{}, fmt.Errorf("sps: payload too short (%d bytes)", len(payload))
	}

	r := newBitReader(payload)

	profile := uint8(r.readBits(8))
	r.readBits(8) // constraint flags + reserved
	level := uint8(r.readBits(8))

	r.readUE() // seq_parameter_set_id

	chromaFormat := uint32(1) // default 4:2:0 when absent (profiles without this field)
	bitDepthLuma := uint8(8)

	switch profile {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134, 135:
		chromaFormat = r.readUE()
		if chromaFormat == 3 {
			r.readBits(1) // separate_colour_plane_flag
		}
		bitDepthLuma = uint8(r.readUE()) + 8
		r.readUE() // bit_depth_chroma_minus8
		r.readBits(1) // qpprime_y_zero_transform_bypass_flag
		seqScalingMatrixPresent := r.readBits(1)
		if seqScalingMatrixPresent == 1 {
			count := 8
			if chromaFormat == 3 {
				count = 12
			}
			for i := 0; i < count; i++ {
				present := r.readBits(1)
				if present == 1 {
					size := 16
					if i >= 6 {
						size = 64
					}
					r.skipScalingList(size)
				}
			}
		}
	}

	r.readUE() // log2_max_frame_num_minus4
	picOrderCntType := r.readUE()
	if picOrderCntType == 0 {
		r.readUE() // log2_max_pic_order_cnt_lsb_minus4
	} else if picOrderCntType == 1 {
		r.readBits(1) // delta_pic_order_always_zero_flag
		r.readSE()    // offset_for_non_ref_pic
		r.readSE()    // offset_for_top_to_bottom_field
		numRefFrames := r.readUE()
		for i := uint32(0); i < numRefFrames; i++ {
			r.readSE()
		}
	}

	r.readUE() // max_num_ref_frames
	r.readBits(1) // gaps_in_frame_num_value_allowed_flag

	picWidthInMbs := r.readUE() + 1
	picHeightInMapUnits := r.readUE() + 1
	frameMbsOnly := r.readBits(1)
	frameHeightInMbs := (2 - frameMbsOnly) * picHeightInMapUnits
	if frameMbsOnly == 0 {
		r.readBits(1) // mb_adaptive_frame_field_flag
	}
	r.readBits(1) // direct_8x8_inference_flag

	var cropLeft, cropRight, cropTop, cropBottom uint32
	frameCropping := r.readBits(1)
	if frameCropping == 1 {
		cropLeft = r.readUE()
		cropRight = r.readUE()
		cropTop = r.readUE()
		cropBottom = r.readUE()
	}

	codecWidth := picWidthInMbs * 16
	codecHeight := frameHeightInMbs * 16

	var subWidthC, subHeightC uint32 = 1, 1
	switch chromaFormat {
	case 1:
		subWidthC, subHeightC = 2, 2
	case 2:
		subWidthC, subHeightC = 2, 1
	}
	presentWidth := codecWidth - (cropLeft+cropRight)*subWidthC
	presentHeight := codecHeight - (cropTop+cropBottom)*subHeightC*(2-frameMbsOnly)

	sar := Ratio{Num: 1, Den: 1}
	fr := DefaultFrameRate

	vuiPresent := r.readBits(1)
	if vuiPresent == 1 {
		aspectRatioPresent := r.readBits(1)
		if aspectRatioPresent == 1 {
			aspectRatioIdc := r.readBits(8)
			if aspectRatioIdc == 255 { // Extended_SAR
				sar.Num = r.readBits(16)
				sar.Den = r.readBits(16)
			} else if idc, ok := sarTable[aspectRatioIdc]; ok {
				sar = idc
			}
		}
		if r.readBits(1) == 1 { // overscan_info_present_flag
			r.readBits(1)
		}
		if r.readBits(1) == 1 { // video_signal_type_present_flag
			r.readBits(4)
			if r.readBits(1) == 1 { // colour_description_present_flag
				r.readBits(24)
			}
		}
		if r.readBits(1) == 1 { // chroma_loc_info_present_flag
			r.readUE()
			r.readUE()
		}
		timingInfoPresent := r.readBits(1)
		if timingInfoPresent == 1 {
			numUnitsInTick := r.readBits(32)
			timeScale := r.readBits(32)
			fixedFrameRate := r.readBits(1) == 1
			if fixedFrameRate && numUnitsInTick != 0 && timeScale != 0 {
				fr = FrameRate{
					Fixed: true,
					Fps:   float64(timeScale) / (2 * float64(numUnitsInTick)),
					Num:   timeScale,
					Den:   numUnitsInTick * 2,
				}
			} else {
				fr = FrameRate{Fixed: fixedFrameRate}
			}
		}
	}

	if !fr.Fixed || fr.Num == 0 || fr.Den == 0 {
		fr = DefaultFrameRate
	}

	return Info{
		Profile:       profile,
		Level:         level,
		ChromaFormat:  chromaFormat,
		BitDepth:      bitDepthLuma,
		CodecWidth:    codecWidth,
		CodecHeight:   codecHeight,
		PresentWidth:  presentWidth,
		PresentHeight: presentHeight,
		SarRatio:      sar,
		FrameRate:     fr,
	}, nil
}

var sarTable = map[uint32]Ratio{
	1:  {1, 1},
	2:  {12, 11},
	3:  {10, 11},
	4:  {16, 11},
	5:  {40, 33},
	6:  {24, 11},
	7:  {20, 11},
	8:  {32, 11},
	9:  {80, 33},
	10: {18, 11},
	11: {15, 11},
	12: {64, 33},
	13: {160, 99},
	14: {4, 3},
	15: {3, 2},
	16: {2, 1},
}
