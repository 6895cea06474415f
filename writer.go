package imaf

import "fmt"

// Writer builds a box tree into a growable buffer. StartBox opens a box with
// a placeholder size that EndBox patches once the content length is known;
// all numeric fields are fixed-width, so a tree rebuilt with different
// values always has the same byte length.
//
// The writer never emits the extended (64-bit) size form. A box larger than
// 4 GiB fails with ErrRange; the error is sticky and reported by Err.
type Writer struct {
	buf   []byte
	stack []int
	err   error
}

// NewWriter creates a Writer reusing buf's storage.
func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf[:0]}
}

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// Err returns the first encoding error, if any.
func (w *Writer) Err() error { return w.err }

// StartBox opens a box of type t. Every StartBox must be matched by EndBox.
func (w *Writer) StartBox(t BoxType) {
	w.stack = append(w.stack, len(w.buf))
	w.buf = be.AppendUint32(w.buf, 0)
	w.buf = append(w.buf, t[:]...)
}

// StartFullBox opens a full box of type t with the given version and flags.
func (w *Writer) StartFullBox(t BoxType, version uint8, flags uint32) {
	w.StartBox(t)
	w.PutFullHeader(version, flags)
}

// EndBox closes the innermost open box, patching its size field.
func (w *Writer) EndBox() {
	n := len(w.stack) - 1
	off := w.stack[n]
	w.stack = w.stack[:n]
	size := len(w.buf) - off
	if uint64(size) > uint32Max {
		w.setErr(fmt.Errorf("%w: box of %d bytes", ErrRange, size))
		return
	}
	be.PutUint32(w.buf[off:], uint32(size))
}

func (w *Writer) setErr(err error) {
	if w.err == nil {
		w.err = err
	}
}

// PutU8 appends a byte.
func (w *Writer) PutU8(v uint8) { w.buf = append(w.buf, v) }

// PutU16 appends a big-endian 16-bit value.
func (w *Writer) PutU16(v uint16) { w.buf = be.AppendUint16(w.buf, v) }

// PutU24 appends the low 24 bits of v, big-endian.
func (w *Writer) PutU24(v uint32) {
	w.buf = append(w.buf, byte(v>>16), byte(v>>8), byte(v))
}

// PutU32 appends a big-endian 32-bit value.
func (w *Writer) PutU32(v uint32) { w.buf = be.AppendUint32(w.buf, v) }

// PutU64 appends a big-endian 64-bit value.
func (w *Writer) PutU64(v uint64) { w.buf = be.AppendUint64(w.buf, v) }

// PutI16 appends a big-endian signed 16-bit value.
func (w *Writer) PutI16(v int16) { w.buf = be.AppendUint16(w.buf, uint16(v)) }

// PutBytes appends raw bytes.
func (w *Writer) PutBytes(b []byte) { w.buf = append(w.buf, b...) }

// PutZero appends n zero bytes.
func (w *Writer) PutZero(n int) {
	w.buf = append(w.buf, make([]byte, n)...)
}

// PutTag appends s as ASCII, each character truncated to 7 bits. Box type
// tags only use ASCII.
func (w *Writer) PutTag(s string) {
	for i := 0; i < len(s); i++ {
		w.buf = append(w.buf, s[i]&0x7f)
	}
}

// PutCString appends s as UTF-8 followed by a NUL terminator.
func (w *Writer) PutCString(s string) {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

// PutVlen appends v as a big-endian base-128 quantity.
func (w *Writer) PutVlen(v uint32) { w.buf = appendVlen(w.buf, v) }

// PutFullHeader appends a FullBox header: one version byte and 24 bits of
// flags.
func (w *Writer) PutFullHeader(version uint8, flags uint32) {
	w.PutU32(uint32(version)<<24 | flags&0x00ffffff)
}

var identityMatrix = [9]uint32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000}

func (w *Writer) putMatrix() {
	for _, v := range identityMatrix {
		w.PutU32(v)
	}
}

// WriteFtyp writes a complete ftyp box.
func (w *Writer) WriteFtyp(major BoxType, minor uint32, compatible []BoxType) {
	w.StartBox(TypeFtyp)
	w.PutBytes(major[:])
	w.PutU32(minor)
	for _, b := range compatible {
		w.PutBytes(b[:])
	}
	w.EndBox()
}

// WriteMvhd writes a version-0 movie header.
func (w *Writer) WriteMvhd(timescale, duration, nextTrackID uint32) {
	w.StartFullBox(TypeMvhd, 0, 0)
	w.PutU32(0) // creation time
	w.PutU32(0) // modification time
	w.PutU32(timescale)
	w.PutU32(duration)
	w.PutU32(0x00010000) // rate 1.0
	w.PutU16(0x0100)     // volume 1.0
	w.PutZero(10)
	w.putMatrix()
	w.PutZero(24) // pre-defined
	w.PutU32(nextTrackID)
	w.EndBox()
}

// WriteTkhd writes a version-0 track header. duration is expressed in the
// movie timescale.
func (w *Writer) WriteTkhd(flags, trackID, duration uint32, volume uint16) {
	w.StartFullBox(TypeTkhd, 0, flags)
	w.PutU32(0) // creation time
	w.PutU32(0) // modification time
	w.PutU32(trackID)
	w.PutU32(0) // reserved
	w.PutU32(duration)
	w.PutZero(8)
	w.PutU16(0) // layer
	w.PutU16(0) // alternate group
	w.PutU16(volume)
	w.PutU16(0) // reserved
	w.putMatrix()
	w.PutU32(0) // width
	w.PutU32(0) // height
	w.EndBox()
}

// WriteMdhd writes a version-0 media header with a packed language triple.
func (w *Writer) WriteMdhd(timescale, duration uint32, language uint16) {
	w.StartFullBox(TypeMdhd, 0, 0)
	w.PutU32(0) // creation time
	w.PutU32(0) // modification time
	w.PutU32(timescale)
	w.PutU32(duration)
	w.PutU16(language)
	w.PutU16(0) // pre-defined
	w.EndBox()
}

// WriteHdlr writes a handler reference box.
func (w *Writer) WriteHdlr(handlerType BoxType, name string) {
	w.StartFullBox(TypeHdlr, 0, 0)
	w.PutU32(0) // pre-defined
	w.PutBytes(handlerType[:])
	w.PutZero(12)
	w.PutCString(name)
	w.EndBox()
}

// WriteSmhd writes a sound media header.
func (w *Writer) WriteSmhd() {
	w.StartFullBox(TypeSmhd, 0, 0)
	w.PutU16(0) // balance
	w.PutU16(0) // reserved
	w.EndBox()
}

// WriteNmhd writes a null media header (timed text).
func (w *Writer) WriteNmhd() {
	w.StartFullBox(TypeNmhd, 0, 0)
	w.EndBox()
}

// WriteDinf writes a dinf/dref/url chain declaring self-contained media
// data.
func (w *Writer) WriteDinf() {
	w.StartBox(TypeDinf)
	w.StartFullBox(TypeDref, 0, 0)
	w.PutU32(1) // entry count
	w.StartFullBox(TypeURL, 0, 0x000001)
	w.EndBox()
	w.EndBox()
	w.EndBox()
}

// WriteXML writes an xml box carrying an opaque payload.
func (w *Writer) WriteXML(payload []byte) {
	w.StartFullBox(TypeXML, 0, 0)
	w.PutBytes(payload)
	w.EndBox()
}

// WriteFree writes a free-space box of n payload bytes.
func (w *Writer) WriteFree(n int) {
	w.StartBox(TypeFree)
	w.PutZero(n)
	w.EndBox()
}
