package imaf

type readerFrame struct {
	next int
	end  int
}

// Reader is a cursor over a box sequence in a byte buffer. Next advances to
// the following sibling; Enter descends into the current box and Exit
// returns to its siblings. Iteration does not allocate; accessors hand out
// subslices of the original buffer.
//
// A declared box size smaller than the header, or one that overruns the
// enclosing range, ends iteration without error: trailing garbage and
// truncated files yield the boxes that were parseable.
type Reader struct {
	buf  []byte
	next int
	end  int

	boxStart int
	boxEnd   int
	hdrSize  int
	typ      BoxType
	version  uint8
	flags    uint32

	stack []readerFrame
}

// NewReader creates a Reader over buf.
func NewReader(buf []byte) Reader {
	return Reader{buf: buf, end: len(buf)}
}

// Next advances to the next sibling box. It returns false at the end of the
// current range or when the next box header is malformed.
func (r *Reader) Next() bool {
	pos := r.next
	if r.end-pos < 8 {
		return false
	}
	size := uint64(be.Uint32(r.buf[pos:]))
	var t BoxType
	copy(t[:], r.buf[pos+4:])
	ptr := pos + 8

	switch size {
	case 0:
		// Box extends to the end of the enclosing range.
		size = uint64(r.end - pos)
	case 1:
		if r.end-pos < 16 {
			return false
		}
		size = be.Uint64(r.buf[ptr:])
		ptr += 8
	}

	if size < uint64(ptr-pos) || size > uint64(r.end-pos) {
		return false
	}
	boxEnd := pos + int(size)

	r.version, r.flags = 0, 0
	if fullBoxes[t] {
		if boxEnd-ptr < 4 {
			return false
		}
		vf := be.Uint32(r.buf[ptr:])
		r.version = uint8(vf >> 24)
		r.flags = vf & 0x00ffffff
		ptr += 4
	}

	r.typ = t
	r.boxStart = pos
	r.boxEnd = boxEnd
	r.hdrSize = ptr - pos
	r.next = boxEnd
	return true
}

// Type returns the current box type.
func (r *Reader) Type() BoxType { return r.typ }

// Size returns the total size of the current box including its header.
func (r *Reader) Size() uint64 { return uint64(r.boxEnd - r.boxStart) }

// HeaderSize returns the current box's header length, including the
// version+flags field of full boxes.
func (r *Reader) HeaderSize() int { return r.hdrSize }

// Offset returns the position of the current box within the buffer.
func (r *Reader) Offset() int { return r.boxStart }

// Version returns the version field of the current full box.
func (r *Reader) Version() uint8 { return r.version }

// Flags returns the flags field of the current full box.
func (r *Reader) Flags() uint32 { return r.flags }

// Data returns the current box payload, after the header.
func (r *Reader) Data() []byte { return r.buf[r.boxStart+r.hdrSize : r.boxEnd] }

// RawBox returns the entire current box including its header.
func (r *Reader) RawBox() []byte { return r.buf[r.boxStart:r.boxEnd] }

// EntryCount reads the leading 32-bit entry count of the current payload
// (stsd, dref). It returns 0 when the payload is too short.
func (r *Reader) EntryCount() uint32 {
	d := r.Data()
	if len(d) < 4 {
		return 0
	}
	return be.Uint32(d)
}

// Enter descends into the current box: subsequent Next calls iterate its
// children. The payload starts after the full header, so meta's extra
// version+flags bytes are already accounted for.
func (r *Reader) Enter() {
	r.stack = append(r.stack, readerFrame{next: r.next, end: r.end})
	r.next = r.boxStart + r.hdrSize
	r.end = r.boxEnd
}

// Exit returns to the enclosing sibling sequence.
func (r *Reader) Exit() {
	n := len(r.stack) - 1
	f := r.stack[n]
	r.stack = r.stack[:n]
	r.next = f.next
	r.end = f.end
}

// Skip advances past n payload bytes before the next child (stsd's entry
// count, sample entry fixed fields).
func (r *Reader) Skip(n int) {
	r.next += n
	if r.next > r.end {
		r.next = r.end
	}
}

// Child returns the payload of the first direct child of type t in data.
func Child(data []byte, t BoxType) ([]byte, bool) {
	r := NewReader(data)
	for r.Next() {
		if r.typ == t {
			return r.Data(), true
		}
	}
	return nil, false
}

// FindDeep searches data depth-first for the first box of type t and returns
// its payload. Sample entries are descended into without hard-coding which
// entry class wraps the target, so esds and chan are found at any depth.
func FindDeep(data []byte, t BoxType) ([]byte, bool) {
	r := NewReader(data)
	for r.Next() {
		if r.typ == t {
			return r.Data(), true
		}
		if region, ok := childRegion(r.typ, r.Data()); ok {
			if found, ok := FindDeep(region, t); ok {
				return found, true
			}
		}
	}
	return nil, false
}

// sample entry fixed-field prefix lengths probed by childRegion: none,
// plain SampleEntry, AudioSampleEntry, TextSampleEntry, VisualSampleEntry
var entryPrefixes = [...]int{0, 8, 28, 38, 78}

func childRegion(t BoxType, data []byte) ([]byte, bool) {
	if containerBoxes[t] {
		return data, true
	}
	if t == TypeStsd {
		if len(data) < 4 {
			return nil, false
		}
		return data[4:], true
	}
	for _, skip := range entryPrefixes {
		if len(data) >= skip+8 && looksLikeBoxes(data[skip:]) {
			return data[skip:], true
		}
	}
	return nil, false
}

// looksLikeBoxes reports whether data plausibly starts with a well-formed
// box header: sane size and a printable type tag.
func looksLikeBoxes(data []byte) bool {
	if len(data) < 8 {
		return false
	}
	size := be.Uint32(data)
	if size != 0 && size != 1 && (size < 8 || uint64(size) > uint64(len(data))) {
		return false
	}
	for _, c := range data[4:8] {
		if c < 0x20 || c == 0x7f {
			return false
		}
	}
	return true
}
