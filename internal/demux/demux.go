// Package demux implements the streaming stream driver: the state machine
// that turns a growing byte buffer into media info, one track-metadata
// announcement, and an ordered sequence of video samples, dispatched
// through a Sink as bytes arrive.
package demux

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"

	"github.com/babelcloud/mp4demux/internal/avc"
	"github.com/babelcloud/mp4demux/internal/mp4box"
	"github.com/babelcloud/mp4demux/internal/sampletable"
)

// errFoundHeader stops mp4box.Walk right after it hands the first sibling
// box to the visitor, so a not-yet-buffered later sibling (typically mdat)
// cannot turn into a false "wait for more data" signal.
var errFoundHeader = errors.New("demux: found header")

// defaultVideoTrackID is the track id the driver is looking for among a
// moov's trak children. The exercise's scope is a single video track, so
// this is fixed rather than negotiated.
const defaultVideoTrackID = 1

// Demuxer drives one demux session over a single, monotonically growing
// byte buffer. It is not safe for concurrent use: ParseChunks must be
// called from a single goroutine at a time.
type Demuxer struct {
	ctx    context.Context
	logger *slog.Logger
	sink   Sink
	cfg    Config

	buf   []byte
	state state

	probeResult ProbeResult

	info          MediaInfo
	decoderConfig avc.DecoderConfig
	trackMetaSent bool
	mediaInfoSent bool

	sampleTable   []sampletable.Sample
	nextSampleIdx int
}

// New constructs a Demuxer. ctx governs the session's lifetime: once
// cancelled, ParseChunks stops doing work and returns immediately.
func New(ctx context.Context, logger *slog.Logger, sink Sink, cfg Config) *Demuxer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Demuxer{ctx: ctx, logger: logger, sink: sink, cfg: cfg, state: stateIdleAwaitingHeader}
}

// Destroy releases the session's buffered bytes. It is idempotent and safe
// to call after an error or after the stream completed.
func (d *Demuxer) Destroy() {
	d.buf = nil
	d.sampleTable = nil
	d.state = stateComplete
}

// ParseChunks appends chunk to the session buffer and advances parsing as
// far as the currently buffered bytes allow. byteStart is
// the absolute offset of chunk[0] in the overall stream; chunks are
// expected to arrive in order with no gaps. It returns the number of bytes
// consumed from chunk: 0 means "not enough data yet, resend a bigger
// chunk starting at the same offset".
func (d *Demuxer) ParseChunks(chunk []byte, byteStart uint64) (consumed uint32, err error) {
	if d.ctx.Err() != nil || d.state == stateError || d.state == stateComplete {
		return 0, nil
	}

	if byteStart == 0 && len(d.buf) == 0 && len(chunk) <= 36 {
		return 0, nil // too little data to even hold a minimal ftyp+mvhd skeleton
	}

	if int(byteStart) != len(d.buf) {
		return 0, d.fail(Exception, fmt.Errorf("demux: chunk at byteStart=%d does not follow buffered %d bytes", byteStart, len(d.buf)))
	}
	d.buf = append(d.buf, chunk...)

	if err := d.advance(); err != nil {
		return uint32(len(chunk)), err
	}
	return uint32(len(chunk)), nil
}

// advance runs every parsing step the current buffer now permits, moving
// the state machine forward until it either blocks on more data or
// reaches a terminal state.
func (d *Demuxer) advance() error {
	if d.state == stateIdleAwaitingHeader || d.state == stateFtypParsed {
		if err := d.tryProbe(); err != nil {
			return err
		}
	}
	if d.state == stateMoovParsing {
		if err := d.tryParseMoov(); err != nil {
			return err
		}
	}
	if d.state == stateTrackTablesReady || d.state == stateDispatching {
		d.tryFrameSamples()
	}
	return nil
}

func (d *Demuxer) tryProbe() error {
	result := probe(d.buf)
	if !result.Match {
		if len(d.buf) >= 8 {
			return d.fail(FormatError, fmt.Errorf("mp4: does not start with an ftyp box"))
		}
		return nil // wait for more bytes before deciding
	}
	d.probeResult = result
	d.state = stateFtypParsed
	if result.Complete {
		d.state = stateMoovParsing
	}
	return nil
}

func (d *Demuxer) tryParseMoov() error {
	if !d.probeResult.Complete {
		d.probeResult = probe(d.buf)
		if !d.probeResult.Complete {
			return nil
		}
	}

	// The moov box's own size field tells us its full extent; until that
	// many bytes have arrived, wait rather than attempt a partial parse.
	if d.probeResult.InfoOffset+8 > len(d.buf) {
		return nil
	}
	var moovHeader mp4box.Header
	found := false
	err := mp4box.Walk(d.buf, d.probeResult.InfoOffset, len(d.buf), func(h mp4box.Header) (bool, error) {
		moovHeader = h
		found = true
		return false, errFoundHeader
	})
	if err != nil && !errors.Is(err, errFoundHeader) {
		return nil // moov's own header, or its declared size, isn't fully buffered yet
	}
	if !found {
		return nil
	}
	if moovHeader.Type != mp4box.TypeMoov {
		return d.fail(FormatError, fmt.Errorf("mp4: expected moov at offset %d, found %q", d.probeResult.InfoOffset, moovHeader.Type))
	}

	return d.parseMoovBody(d.buf[moovHeader.BodyStart:moovHeader.BodyEnd])
}

func (d *Demuxer) parseMoovBody(body []byte) error {
	trackFound := false

	err := mp4box.Walk(body, 0, len(body), func(h mp4box.Header) (bool, error) {
		switch h.Type {
		case mp4box.TypeMvhd:
			mvhd, err := mp4box.ParseMvhd(body[h.BodyStart:h.BodyEnd])
			if err != nil {
				return false, err
			}
			d.info.Timescale = mvhd.Timescale
			d.info.Duration = mvhd.Duration
			d.info.TrackID = defaultVideoTrackID
			return false, nil
		case mp4box.TypeTrak:
			acc, matched, err := scanTrak(d.logger, body[h.BodyStart:h.BodyEnd], defaultVideoTrackID)
			if err != nil {
				return false, err
			}
			if matched {
				trackFound = true
				if err := d.applyTrakAccumulator(acc); err != nil {
					return false, err
				}
			}
			return false, nil
		default:
			return false, nil
		}
	})
	if err != nil {
		if errors.Is(err, mp4box.ErrUnsupportedCodec) {
			return d.fail(CodecUnsupported, fmt.Errorf("mp4: %w", err))
		}
		return d.fail(FormatError, fmt.Errorf("mp4: malformed moov: %w", err))
	}

	if !trackFound {
		return d.fail(FormatError, fmt.Errorf("mp4: no trak with track id %d found in moov", defaultVideoTrackID))
	}

	if d.cfg.OverridedDuration != nil {
		d.info.Duration = uint32(uint64(*d.cfg.OverridedDuration) * uint64(d.info.Timescale) / 1000)
	}
	d.info.HasVideo = true
	if d.cfg.OverridedHasVideo != nil {
		d.info.HasVideo = *d.cfg.OverridedHasVideo
	}
	if d.cfg.OverridedHasAudio != nil {
		d.info.HasAudio = *d.cfg.OverridedHasAudio
	}

	if !d.trackMetaSent {
		d.sink.OnTrackMetadata("video", d.info)
		d.trackMetaSent = true
	}
	d.maybeSendMediaInfo()

	d.state = stateTrackTablesReady
	return nil
}

// trakAccumulator collects the boxes found inside one trak's subtree, per
// before they are folded into the session's MediaInfo and
// sample table.
type trakAccumulator struct {
	mdhd mp4box.Mdhd
	elst []mp4box.ElstEntry
	avc1 mp4box.Avc1SampleEntry
	stsc []mp4box.StscEntry
	stsz mp4box.Stsz
	stco []uint32
	stts []mp4box.SttsEntry
	avcC avc.DecoderConfig
}

// scanTrak walks one trak's body, matching it against videoTrackID via its
// tkhd. Every trak is inspected this way — the caller loops over all of a
// moov's trak children, not just the first — and a non-matching trak's leaf
// boxes are left unparsed.
func scanTrak(logger *slog.Logger, trakBody []byte, videoTrackID uint32) (acc trakAccumulator, matched bool, err error) {
	seenTkhd := false

	walkErr := mp4box.Walk(trakBody, 0, len(trakBody), func(h mp4box.Header) (bool, error) {
		switch h.Type {
		case mp4box.TypeTkhd:
			id, err := mp4box.ParseTkhdTrackID(trakBody[h.BodyStart:h.BodyEnd], h.Version)
			if err != nil {
				return false, err
			}
			seenTkhd = true
			matched = id == videoTrackID
			return false, nil
		case mp4box.TypeEdts, mp4box.TypeMdia, mp4box.TypeMinf, mp4box.TypeStbl:
			return true, nil
		case mp4box.TypeElst:
			if !matched {
				return false, nil
			}
			entries, err := mp4box.ParseElst(trakBody[h.BodyStart:h.BodyEnd])
			if err != nil {
				return false, err
			}
			acc.elst = entries
			return false, nil
		case mp4box.TypeMdhd:
			if !matched {
				return false, nil
			}
			mdhd, err := mp4box.ParseMdhd(trakBody[h.BodyStart:h.BodyEnd])
			if err != nil {
				return false, err
			}
			acc.mdhd = mdhd
			return false, nil
		case mp4box.TypeStsd:
			if !matched {
				return false, nil
			}
			entry, err := mp4box.ParseStsd(trakBody[h.BodyStart:h.BodyEnd])
			if err != nil {
				return false, err
			}
			acc.avc1 = entry
			decoderConfig, err := findAndParseAvcC(logger, trakBody[h.BodyStart:h.BodyEnd], entry)
			if err != nil {
				return false, err
			}
			acc.avcC = decoderConfig
			return false, nil
		case mp4box.TypeStsc:
			if !matched {
				return false, nil
			}
			acc.stsc, err = mp4box.ParseStsc(trakBody[h.BodyStart:h.BodyEnd])
			return false, err
		case mp4box.TypeStsz:
			if !matched {
				return false, nil
			}
			acc.stsz, err = mp4box.ParseStsz(trakBody[h.BodyStart:h.BodyEnd])
			return false, err
		case mp4box.TypeStco:
			if !matched {
				return false, nil
			}
			acc.stco, err = mp4box.ParseStco(trakBody[h.BodyStart:h.BodyEnd])
			return false, err
		case mp4box.TypeStts:
			if !matched {
				return false, nil
			}
			acc.stts, err = mp4box.ParseStts(trakBody[h.BodyStart:h.BodyEnd])
			return false, err
		default:
			return false, nil
		}
	})
	if walkErr != nil {
		return trakAccumulator{}, false, walkErr
	}
	if !seenTkhd {
		return trakAccumulator{}, false, fmt.Errorf("mp4: trak has no tkhd")
	}
	return acc, matched, nil
}

// findAndParseAvcC locates the avcC box nested in an avc1 stsd entry and
// decodes it.
func findAndParseAvcC(logger *slog.Logger, stsdBody []byte, entry mp4box.Avc1SampleEntry) (avc.DecoderConfig, error) {
	var cfg avc.DecoderConfig
	found := false
	err := mp4box.Walk(stsdBody, entry.AvcCOffset, entry.AvcCEnd, func(h mp4box.Header) (bool, error) {
		if h.Type != mp4box.TypeAvcC || found {
			return false, nil
		}
		found = true
		decoded, err := avc.ParseAvcC(logger, stsdBody[h.BodyStart:h.BodyEnd])
		if err != nil {
			return false, err
		}
		cfg = decoded
		return false, nil
	})
	if err != nil {
		return avc.DecoderConfig{}, err
	}
	if !found {
		return avc.DecoderConfig{}, avc.ErrFormatError
	}
	return cfg, nil
}

func (d *Demuxer) applyTrakAccumulator(acc trakAccumulator) error {
	table, err := sampletable.Resolve(acc.stsc, acc.stsz, acc.stco)
	if err != nil {
		return fmt.Errorf("mp4: %w", err)
	}
	sampletable.AssignTiming(table, acc.stts, acc.elst, acc.mdhd.Timescale, d.info.Timescale)
	d.sampleTable = table
	d.decoderConfig = acc.avcC

	d.info.TimescaleMdhd = acc.mdhd.Timescale
	d.info.DurationMdhd = acc.mdhd.Duration
	d.info.CodecWidth = acc.avcC.SPS.CodecWidth
	d.info.CodecHeight = acc.avcC.SPS.CodecHeight
	d.info.PresentWidth = acc.avcC.SPS.PresentWidth
	d.info.PresentHeight = acc.avcC.SPS.PresentHeight
	d.info.Profile = acc.avcC.SPS.Profile
	d.info.Level = acc.avcC.SPS.Level
	d.info.BitDepth = acc.avcC.SPS.BitDepth
	d.info.ChromaFormat = acc.avcC.SPS.ChromaFormat
	d.info.SarRatio = acc.avcC.SPS.SarRatio
	d.info.FrameRate = acc.avcC.SPS.FrameRate
	d.info.Avcc = acc.avcC.Raw

	codecStr, err := avc.CodecString(acc.avcC.SPSNAL)
	if err != nil {
		return fmt.Errorf("mp4: %w", err)
	}
	d.info.Codec = codecStr

	if acc.avcC.SPS.FrameRate.Den != 0 && acc.avcC.SPS.FrameRate.Num != 0 {
		d.info.RefSampleDuration = float64(d.info.Timescale) * float64(acc.avcC.SPS.FrameRate.Den) / float64(acc.avcC.SPS.FrameRate.Num)
	}

	d.info.CodecRecord = &mp4.CodecH264{SPS: acc.avcC.SPSNAL, PPS: acc.avcC.PPSNAL}

	return nil
}

func (d *Demuxer) maybeSendMediaInfo() {
	if d.mediaInfoSent || !d.info.Complete() {
		return
	}
	d.sink.OnMediaInfo(d.info)
	d.mediaInfoSent = true
}

// tryFrameSamples frames as many not-yet-framed samples as the currently
// buffered bytes allow, and dispatches them through the sink. Audio is
// always an empty slice: audio track handling is out of scope.
func (d *Demuxer) tryFrameSamples() {
	base := int64(d.cfg.TimestampBase) * int64(d.info.TimescaleMdhd) / 1000
	var framed []VideoSample
	for d.nextSampleIdx < len(d.sampleTable) {
		s := d.sampleTable[d.nextSampleIdx]
		end := s.FileOffset + int64(s.Size)
		if end > int64(len(d.buf)) {
			break
		}
		sampleBytes := d.buf[s.FileOffset:end]
		result, ok := avc.Frame(sampleBytes, d.decoderConfig.NaluLengthSize)
		if !ok {
			d.logger.Warn("dropping sample with truncated NAL unit", "index", d.nextSampleIdx, "offset", s.FileOffset, "size", s.Size)
			d.nextSampleIdx++
			continue
		}
		framed = append(framed, VideoSample{
			DTS:        s.DTS + base,
			PTS:        s.PTS + base,
			CTS:        s.CTS,
			IsKeyframe: result.IsKeyframe,
			Length:     len(sampleBytes),
			NALUnits:   result.NALUnits,
		})
		d.nextSampleIdx++
	}

	if len(framed) == 0 {
		return
	}
	d.state = stateDispatching
	d.maybeSendMediaInfo()
	d.sink.OnDataAvailable(nil, framed)

	if d.nextSampleIdx == len(d.sampleTable) {
		d.state = stateComplete
	}
}

func (d *Demuxer) fail(kind ErrorKind, err error) error {
	d.state = stateError
	d.sink.OnError(kind, err.Error())
	d.logger.Error("demux failed", "kind", kind, "error", err)
	return fmt.Errorf("%s: %w", kind, err)
}
