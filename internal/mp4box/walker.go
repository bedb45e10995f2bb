package mp4box

import (
	"fmt"

	"github.com/babelcloud/mp4demux/internal/bitreader"
)

// Header describes one box found during a walk: its type, the byte range of
// its body (after the 8-byte size+type header, and past the version+flags
// field for full boxes), and the absolute start offset of the box itself.
type Header struct {
	Type      string
	BoxStart  int
	BodyStart int
	BodyEnd   int
	Version   uint8
	Flags     uint32
}

// Size returns the total size of the box, header included.
func (h Header) Size() int { return h.BodyEnd - h.BoxStart }

// Visitor is invoked once per box encountered by Walk. Returning recurse=true
// for a container box tells Walk to descend into its body before moving to
// the next sibling; returning recurse=true for a leaf box is a no-op.
// Returning a non-nil error aborts the walk.
type Visitor func(h Header) (recurse bool, err error)

// Walk iterates the type+size-tagged boxes in buf[start:end], invoking visit
// for each one. Terminates when offset >= end; fails with
// ErrMalformedBox if any box's size is < 8 or would extend past end.
func Walk(buf []byte, start, end int, visit Visitor) error {
	r := bitreader.New(buf)
	offset := start

	for offset < end {
		if end-offset < 8 {
			return fmt.Errorf("%w: truncated header at offset %d", ErrMalformedBox, offset)
		}

		size, err := r.U32(offset)
		if err != nil {
			return err
		}
		if size < 8 {
			return fmt.Errorf("%w: box at offset %d declares size %d (< 8)", ErrMalformedBox, offset, size)
		}
		boxEnd := offset + int(size)
		if boxEnd > end {
			return fmt.Errorf("%w: box at offset %d (size %d) extends past parent end %d", ErrMalformedBox, offset, size, end)
		}

		fcc, err := r.FourCC(offset + 4)
		if err != nil {
			return err
		}

		bodyStart := offset + 8
		var version uint8
		var flags uint32
		if IsFullBox(fcc) {
			vf, err := r.U32(bodyStart)
			if err != nil {
				return err
			}
			version = uint8(vf >> 24)
			flags = vf & 0x00ffffff
			bodyStart += 4
		}

		h := Header{
			Type:      fcc,
			BoxStart:  offset,
			BodyStart: bodyStart,
			BodyEnd:   boxEnd,
			Version:   version,
			Flags:     flags,
		}

		recurse, err := visit(h)
		if err != nil {
			return err
		}

		if recurse && IsContainer(fcc) {
			if err := Walk(buf, bodyStart, boxEnd, visit); err != nil {
				return err
			}
		}

		offset = boxEnd
	}

	return nil
}
