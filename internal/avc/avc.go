// Package avc implements the AVC decoder-configuration parser and the
// NAL-unit framer.
package avc

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/babelcloud/mp4demux/internal/bitreader"
	"github.com/babelcloud/mp4demux/internal/sps"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
)

// ErrFormatError wraps every avcC structural violation; callers surface
// it through Sink.OnError with kind FORMAT_ERROR.
var ErrFormatError = errors.New("avc: format error")

// DecoderConfig is the decoded AVCDecoderConfigurationRecord this demuxer
// needs: the NAL length size and the first SPS's decoded fields. PPS bodies
// are validated to exist but not otherwise inspected.
type DecoderConfig struct {
	NaluLengthSize int
	SPS            sps.Info
	SPSNAL         []byte // first SPS NAL unit, header byte included
	PPSNAL         []byte // first PPS NAL unit, header byte included
	Raw            []byte // the raw avcC box body (the record, no box header), kept for MediaInfo.Avcc
}

// ParseAvcC validates and decodes an avcC box body. logger may be nil, in
// which case anomalies are decoded but not logged.
func ParseAvcC(logger *slog.Logger, body []byte) (DecoderConfig, error) {
	r := bitreader.New(body)

	version, err := r.U8(0)
	if err != nil {
		return DecoderConfig{}, err
	}
	profile, err := r.U8(1)
	if err != nil {
		return DecoderConfig{}, err
	}
	if version != 1 || profile == 0 {
		return DecoderConfig{}, fmt.Errorf("%w: MP4: Invalid AVCDecoderConfigurationRecord", ErrFormatError)
	}

	lengthByte, err := r.U8(4)
	if err != nil {
		return DecoderConfig{}, err
	}
	naluLengthSize := int(lengthByte&0x03) + 1
	if naluLengthSize != 3 && naluLengthSize != 4 {
		return DecoderConfig{}, fmt.Errorf("%w: MP4: Strange NaluLengthSizeMinusOne: %d", ErrFormatError, naluLengthSize-1)
	}

	numSPSByte, err := r.U8(5)
	if err != nil {
		return DecoderConfig{}, err
	}
	numSPS := int(numSPSByte & 0x1f)
	if numSPS == 0 {
		return DecoderConfig{}, fmt.Errorf("%w: MP4: Invalid AVCDecoderConfigurationRecord: No SPS", ErrFormatError)
	}
	if numSPS > 1 && logger != nil {
		logger.Warn("avcC declares more than one SPS, using only the first", "count", numSPS)
	}

	off := 6
	var firstSPS sps.Info
	var firstSPSNAL []byte
	for i := 0; i < numSPS; i++ {
		spsLen, err := r.U16(off)
		if err != nil {
			return DecoderConfig{}, err
		}
		off += 2
		spsBytes, err := r.Slice(off, int(spsLen))
		if err != nil {
			return DecoderConfig{}, err
		}
		off += int(spsLen)
		if i == 0 {
			firstSPSNAL = append([]byte{}, spsBytes...)
			// NAL header byte precedes the RBSP; skip it before decoding.
			payload := spsBytes
			if len(payload) > 0 {
				payload = payload[1:]
			}
			firstSPS, err = sps.Parse(payload)
			if err != nil {
				return DecoderConfig{}, fmt.Errorf("%w: failed to parse SPS: %v", ErrFormatError, err)
			}
		}
	}

	numPPSByte, err := r.U8(off)
	if err != nil {
		return DecoderConfig{}, err
	}
	numPPS := int(numPPSByte)
	off++
	if numPPS == 0 {
		return DecoderConfig{}, fmt.Errorf("%w: MP4: Invalid AVCDecoderConfigurationRecord: No PPS", ErrFormatError)
	}
	var firstPPSNAL []byte
	for i := 0; i < numPPS; i++ {
		ppsLen, err := r.U16(off)
		if err != nil {
			return DecoderConfig{}, err
		}
		off += 2
		if i == 0 {
			ppsBytes, err := r.Slice(off, int(ppsLen))
			if err != nil {
				return DecoderConfig{}, err
			}
			firstPPSNAL = append([]byte{}, ppsBytes...)
		}
		off += int(ppsLen)
	}

	return DecoderConfig{
		NaluLengthSize: naluLengthSize,
		SPS:            firstSPS,
		SPSNAL:         firstSPSNAL,
		PPSNAL:         firstPPSNAL,
		Raw:            append([]byte{}, body...),
	}, nil
}

// CodecString builds the "avc1.XXYYZZ" codec string from the three profile/
// constraint/level bytes at SPS offsets 1..4.
func CodecString(spsNALPayload []byte) (string, error) {
	if len(spsNALPayload) < 4 {
		return "", fmt.Errorf("%w: SPS too short to build codec string", ErrFormatError)
	}
	return fmt.Sprintf("avc1.%02x%02x%02x", spsNALPayload[1], spsNALPayload[2], spsNALPayload[3]), nil
}

// NALUnit is one length-prefixed NAL unit extracted from a sample.
type NALUnit struct {
	Type h264.NALUType
	Data []byte // length prefix + payload
}

// FrameSample is the result of framing one MP4 sample's bytes into NAL
// units.
type FrameSample struct {
	NALUnits   []NALUnit
	IsKeyframe bool
}

// Frame splits sample bytes into length-prefixed NAL units using
// naluLengthSize from the avcC record. If a declared NAL size exceeds the
// remaining bytes, framing stops and ok is false: the caller drops the
// sample.
func Frame(data []byte, naluLengthSize int) (result FrameSample, ok bool) {
	r := bitreader.New(data)
	off := 0
	for off+naluLengthSize <= len(data) {
		var naluSize int
		if naluLengthSize == 3 {
			v, err := r.U24(off)
			if err != nil {
				return result, false
			}
			naluSize = int(v)
		} else {
			v, err := r.U32(off)
			if err != nil {
				return result, false
			}
			naluSize = int(v)
		}

		remaining := len(data) - off - naluLengthSize
		if naluSize > remaining {
			return result, false
		}

		typeByte, err := r.U8(off + naluLengthSize)
		if err != nil {
			return result, false
		}
		naluType := h264.NALUType(typeByte & 0x1f)
		if naluType == h264.NALUTypeIDR {
			result.IsKeyframe = true
		}

		unitEnd := off + naluLengthSize + naluSize
		unit, err := r.Slice(off, unitEnd-off)
		if err != nil {
			return result, false
		}
		result.NALUnits = append(result.NALUnits, NALUnit{Type: naluType, Data: unit})

		off = unitEnd
	}
	return result, true
}
