package demux

import (
	"errors"

	"github.com/babelcloud/mp4demux/internal/mp4box"
)

// ProbeResult is the outcome of a lightweight scan of the first buffered
// bytes.
type ProbeResult struct {
	Match       bool // the buffer starts with a recognizable ftyp box
	Complete    bool // moov's start offset has been located
	DataOffset  int  // byte offset right after ftyp
	RawDataSize int  // bytes between ftyp and moov (leading free/skip/mdat boxes)
	InfoOffset  int  // DataOffset + RawDataSize: where moov begins
}

// errProbeStop halts mp4box.Walk once probe has seen what it needs; it
// never escapes probe.
var errProbeStop = errors.New("demux: probe stop")

// probe scans buf for a leading ftyp box and, if enough data has arrived,
// the start of moov. It never reports a hard error: an unrecognized or
// not-yet-fully-buffered top-level box simply yields a ProbeResult the
// caller waits on (Match false, or Match true and Complete false).
func probe(buf []byte) ProbeResult {
	var result ProbeResult
	sawFtyp := false

	err := mp4box.Walk(buf, 0, len(buf), func(h mp4box.Header) (bool, error) {
		if !sawFtyp {
			sawFtyp = true
			if h.Type != mp4box.TypeFtyp {
				return false, errProbeStop // Match stays false
			}
			result.Match = true
			result.DataOffset = h.BoxStart + h.Size()
			return false, nil
		}
		if h.Type == mp4box.TypeMoov {
			result.RawDataSize = h.BoxStart - result.DataOffset
			result.InfoOffset = h.BoxStart
			result.Complete = true
			return false, errProbeStop
		}
		return false, nil // free/skip/mdat before moov: keep scanning siblings
	})
	_ = err // truncated/oversized trailing box or errProbeStop both just mean "wait for more data"

	return result
}
