// Package mp4box implements the box-tree walker and leaf-box parsers for a
// progressive (non-fragmented) ISO-BMFF file: the part of the MP4 format
// this module understands is exactly the subtree rooted at moov/trak that
// carries a single AVC video track.
package mp4box

import "errors"

// ErrMalformedBox is returned when a box's size field is invalid or would
// make the box extend past its parent's bounds.
var ErrMalformedBox = errors.New("mp4box: malformed box")

// Recognized four-character codes. Only the boxes this demuxer understands
// are named; anything else is skipped as an opaque leaf.
const (
	TypeFtyp = "ftyp"
	TypeMoov = "moov"
	TypeMvhd = "mvhd"
	TypeTrak = "trak"
	TypeTkhd = "tkhd"
	TypeEdts = "edts"
	TypeElst = "elst"
	TypeMdia = "mdia"
	TypeMdhd = "mdhd"
	TypeMinf = "minf"
	TypeStbl = "stbl"
	TypeStsd = "stsd"
	TypeStsc = "stsc"
	TypeStsz = "stsz"
	TypeStco = "stco"
	TypeStts = "stts"
	TypeAvc1 = "avc1"
	TypeAvcC = "avcC"
)

var containerTypes = map[string]bool{
	TypeMoov: true,
	TypeTrak: true,
	TypeMdia: true,
	TypeMinf: true,
	TypeStbl: true,
	TypeEdts: true,
}

// IsContainer reports whether a box of this type holds child boxes that the
// walker should recurse into.
func IsContainer(t string) bool {
	return containerTypes[t]
}

var fullBoxTypes = map[string]bool{
	TypeMvhd: true,
	TypeTkhd: true,
	TypeMdhd: true,
	TypeElst: true,
	TypeStsd: true,
	TypeStsc: true,
	TypeStsz: true,
	TypeStco: true,
	TypeStts: true,
}

// IsFullBox reports whether a box of this type carries a 4-byte
// version+flags field before its body.
func IsFullBox(t string) bool {
	return fullBoxTypes[t]
}
