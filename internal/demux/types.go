package demux

import (
	"github.com/babelcloud/mp4demux/internal/avc"
	"github.com/babelcloud/mp4demux/internal/sps"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
)

// ErrorKind classifies a fatal condition surfaced through Sink.OnError.
type ErrorKind string

const (
	FormatError      ErrorKind = "FORMAT_ERROR"
	CodecUnsupported ErrorKind = "CODEC_UNSUPPORTED"
	Exception        ErrorKind = "EXCEPTION"
)

// VideoSample is one decoded video sample, split into its NAL units.
type VideoSample struct {
	DTS        int64
	PTS        int64
	CTS        int64
	IsKeyframe bool
	Length     int
	NALUnits   []avc.NALUnit
}

// MediaInfo is the video metadata record accumulated across boxes. A
// single type serves both the Sink.OnTrackMetadata payload and the
// Sink.OnMediaInfo payload, since the two do not need distinct shapes.
type MediaInfo struct {
	TrackID   uint32
	Timescale uint32 // mvhd
	Duration  uint32 // mvhd, overridable by Config.OverridedDuration

	TimescaleMdhd uint32
	DurationMdhd  uint32

	CodecWidth    uint32
	CodecHeight   uint32
	PresentWidth  uint32
	PresentHeight uint32
	Profile       uint8
	Level         uint8
	BitDepth      uint8
	ChromaFormat  uint32
	SarRatio      sps.Ratio
	FrameRate     sps.FrameRate

	// RefSampleDuration = timescale * (fps_den / fps_num).
	RefSampleDuration float64

	Avcc  []byte
	Codec string

	// CodecRecord is the typed SPS/PPS pair mediacommon's fmp4 writer
	// consumes when muxing this track into an init segment; the CLI prints
	// it alongside Codec for callers that want the raw parameter sets
	// rather than the "avc1.XXYYZZ" string.
	CodecRecord *mp4.CodecH264

	HasAudio bool
	HasVideo bool

	// AudioCodec is always empty: audio track handling is out of scope.
	// Complete() requires it non-empty only when HasAudio is true, which can
	// only happen via Config.OverridedHasAudio.
	AudioCodec string
}

// Complete reports whether every field required before Sink.OnMediaInfo
// fires has been populated: width, height, fps, and
// codec must be set; if HasAudio, its codec must also be present.
func (m MediaInfo) Complete() bool {
	if m.CodecWidth == 0 || m.CodecHeight == 0 || m.Codec == "" {
		return false
	}
	if m.FrameRate.Num == 0 || m.FrameRate.Den == 0 {
		return false
	}
	if m.HasAudio && m.AudioCodec == "" {
		return false
	}
	return true
}

// Sink receives demux events synchronously during ParseChunks, replacing
// four separate callbacks with one typed-event interface.
type Sink interface {
	OnError(kind ErrorKind, info string)
	OnMediaInfo(info MediaInfo)
	OnTrackMetadata(trackType string, meta MediaInfo)
	OnDataAvailable(audio, video []VideoSample)
}

// Config carries the demuxer's recognized options. ReuseRedirectedURL
// is loader-only and has no effect here; it is kept so callers can pass a
// single options struct through to both the loader and the demuxer.
type Config struct {
	ReuseRedirectedURL bool

	// OverridedDuration, in milliseconds, replaces the mvhd-derived
	// duration in MediaInfo when non-nil; it is converted to the mvhd
	// timescale first.
	OverridedDuration *uint32

	// OverridedHasAudio/OverridedHasVideo force-set track presence flags,
	// overriding what probing determined.
	OverridedHasAudio *bool
	OverridedHasVideo *bool

	// TimestampBase, in milliseconds, is converted to mdhd timescale ticks
	// and added to output timestamps.
	TimestampBase uint32
}

// state is the stream driver's state machine.
type state int

const (
	stateIdleAwaitingHeader state = iota
	stateFtypParsed
	stateMoovParsing
	stateTrackTablesReady
	stateDispatching
	stateComplete
	stateError
)
