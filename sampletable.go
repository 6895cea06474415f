package imaf

import "fmt"

// SttsEntry is a time-to-sample run: Count consecutive samples sharing one
// delta.
type SttsEntry struct {
	Count uint32
	Delta uint32
}

// StscEntry is a sample-to-chunk run. FirstChunk is 1-based; the entry
// applies to every chunk up to the next entry's FirstChunk.
type StscEntry struct {
	FirstChunk             uint32
	SamplesPerChunk        uint32
	SampleDescriptionIndex uint32
}

// SampleTable holds one track's decoded sample tables.
type SampleTable struct {
	Durations    []uint32
	Sizes        []uint32
	ChunkOffsets []uint64
	Stsc         []StscEntry
}

// CoalesceDurations greedily merges consecutive equal durations into stts
// runs. Only adjacent values merge; the expansion of the result is always
// the input.
func CoalesceDurations(durations []uint32) []SttsEntry {
	var entries []SttsEntry
	for _, d := range durations {
		if n := len(entries); n > 0 && entries[n-1].Delta == d {
			entries[n-1].Count++
			continue
		}
		entries = append(entries, SttsEntry{Count: 1, Delta: d})
	}
	return entries
}

// WriteStts writes a time-to-sample box from pre-coalesced runs.
func (w *Writer) WriteStts(entries []SttsEntry) {
	w.StartFullBox(TypeStts, 0, 0)
	w.PutU32(uint32(len(entries)))
	for _, e := range entries {
		w.PutU32(e.Count)
		w.PutU32(e.Delta)
	}
	w.EndBox()
}

// WriteStsc writes a sample-to-chunk box.
func (w *Writer) WriteStsc(entries []StscEntry) {
	w.StartFullBox(TypeStsc, 0, 0)
	w.PutU32(uint32(len(entries)))
	for _, e := range entries {
		w.PutU32(e.FirstChunk)
		w.PutU32(e.SamplesPerChunk)
		w.PutU32(e.SampleDescriptionIndex)
	}
	w.EndBox()
}

// WriteStsz writes a sample-size box. When every sample shares one nonzero
// size the compact form (default size + count, no table) is used. A default
// size of 0 signals a per-sample table, so all-zero sequences take the
// explicit form.
func (w *Writer) WriteStsz(sizes []uint32) {
	w.StartFullBox(TypeStsz, 0, 0)
	uniform := len(sizes) > 0 && sizes[0] != 0
	if uniform {
		for _, s := range sizes[1:] {
			if s != sizes[0] {
				uniform = false
				break
			}
		}
	}
	if uniform {
		w.PutU32(sizes[0])
		w.PutU32(uint32(len(sizes)))
		w.EndBox()
		return
	}
	w.PutU32(0)
	w.PutU32(uint32(len(sizes)))
	for _, s := range sizes {
		w.PutU32(s)
	}
	w.EndBox()
}

// WriteStco writes a 32-bit chunk-offset box.
func (w *Writer) WriteStco(offsets []uint32) {
	w.StartFullBox(TypeStco, 0, 0)
	w.PutU32(uint32(len(offsets)))
	for _, o := range offsets {
		w.PutU32(o)
	}
	w.EndBox()
}

// WriteCo64 writes a 64-bit chunk-offset box.
func (w *Writer) WriteCo64(offsets []uint64) {
	w.StartFullBox(TypeCo64, 0, 0)
	w.PutU32(uint32(len(offsets)))
	for _, o := range offsets {
		w.PutU64(o)
	}
	w.EndBox()
}

// SttsIter iterates the runs of an stts payload.
type SttsIter struct {
	data []byte
	n    int
	i    int
}

// NewSttsIter creates an iterator over an stts payload (after the full box
// header). A declared count beyond the payload is clamped.
func NewSttsIter(data []byte) SttsIter {
	return SttsIter{data: data, n: clampCount(data, 4, 8)}
}

// Count returns the number of runs.
func (it *SttsIter) Count() int { return it.n }

// Next returns the next run.
func (it *SttsIter) Next() (SttsEntry, bool) {
	if it.i >= it.n {
		return SttsEntry{}, false
	}
	p := 4 + it.i*8
	it.i++
	return SttsEntry{Count: be.Uint32(it.data[p:]), Delta: be.Uint32(it.data[p+4:])}, true
}

// StscIter iterates the entries of an stsc payload.
type StscIter struct {
	data []byte
	n    int
	i    int
}

// NewStscIter creates an iterator over an stsc payload.
func NewStscIter(data []byte) StscIter {
	return StscIter{data: data, n: clampCount(data, 4, 12)}
}

// Count returns the number of entries.
func (it *StscIter) Count() int { return it.n }

// Next returns the next entry.
func (it *StscIter) Next() (StscEntry, bool) {
	if it.i >= it.n {
		return StscEntry{}, false
	}
	p := 4 + it.i*12
	it.i++
	return StscEntry{
		FirstChunk:             be.Uint32(it.data[p:]),
		SamplesPerChunk:        be.Uint32(it.data[p+4:]),
		SampleDescriptionIndex: be.Uint32(it.data[p+8:]),
	}, true
}

// StszIter iterates sample sizes, expanding the compact uniform form.
type StszIter struct {
	data    []byte
	uniform uint32
	n       int
	i       int
}

// NewStszIter creates an iterator over an stsz payload.
func NewStszIter(data []byte) StszIter {
	if len(data) < 8 {
		return StszIter{}
	}
	uniform := be.Uint32(data)
	n := int(be.Uint32(data[4:]))
	if uniform == 0 {
		if max := (len(data) - 8) / 4; n > max {
			n = max
		}
	}
	return StszIter{data: data, uniform: uniform, n: n}
}

// Count returns the number of samples.
func (it *StszIter) Count() int { return it.n }

// Next returns the next sample size.
func (it *StszIter) Next() (uint32, bool) {
	if it.i >= it.n {
		return 0, false
	}
	i := it.i
	it.i++
	if it.uniform != 0 {
		return it.uniform, true
	}
	return be.Uint32(it.data[8+i*4:]), true
}

// Uint32Iter iterates a 32-bit entry table (stco).
type Uint32Iter struct {
	data []byte
	n    int
	i    int
}

// NewUint32Iter creates an iterator over a count-prefixed uint32 table.
func NewUint32Iter(data []byte) Uint32Iter {
	return Uint32Iter{data: data, n: clampCount(data, 4, 4)}
}

// Count returns the number of entries.
func (it *Uint32Iter) Count() int { return it.n }

// Next returns the next entry.
func (it *Uint32Iter) Next() (uint32, bool) {
	if it.i >= it.n {
		return 0, false
	}
	p := 4 + it.i*4
	it.i++
	return be.Uint32(it.data[p:]), true
}

// Co64Iter iterates a 64-bit chunk-offset table.
type Co64Iter struct {
	data []byte
	n    int
	i    int
}

// NewCo64Iter creates an iterator over a co64 payload.
func NewCo64Iter(data []byte) Co64Iter {
	return Co64Iter{data: data, n: clampCount(data, 4, 8)}
}

// Count returns the number of entries.
func (it *Co64Iter) Count() int { return it.n }

// Next returns the next offset.
func (it *Co64Iter) Next() (uint64, bool) {
	if it.i >= it.n {
		return 0, false
	}
	p := 4 + it.i*8
	it.i++
	return be.Uint64(it.data[p:]), true
}

// clampCount reads the declared entry count at the head of data and clamps
// it to what the payload actually holds.
func clampCount(data []byte, headerLen, entryLen int) int {
	if len(data) < headerLen {
		return 0
	}
	n := int(be.Uint32(data[headerLen-4:]))
	if max := (len(data) - headerLen) / entryLen; n > max {
		n = max
	}
	return n
}

// declaredCount returns the raw entry count without clamping, for
// truncation checks.
func declaredCount(data []byte, headerLen int) int {
	if len(data) < headerLen {
		return 0
	}
	return int(be.Uint32(data[headerLen-4:]))
}

// DecodeStts expands an stts payload into one duration per sample.
func DecodeStts(data []byte, lim Limits) ([]uint32, error) {
	lim = lim.withDefaults()
	it := NewSttsIter(data)
	if declaredCount(data, 4) != it.Count() {
		return nil, fmt.Errorf("%w: truncated stts", ErrCorruptData)
	}
	var out []uint32
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		if len(out)+int(e.Count) > lim.MaxSamples {
			return nil, fmt.Errorf("%w: stts expands past %d samples", ErrLimitExceeded, lim.MaxSamples)
		}
		for i := uint32(0); i < e.Count; i++ {
			out = append(out, e.Delta)
		}
	}
	if out == nil {
		out = []uint32{}
	}
	return out, nil
}

// DecodeStsz decodes an stsz payload, either form, into one size per
// sample.
func DecodeStsz(data []byte, lim Limits) ([]uint32, error) {
	lim = lim.withDefaults()
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: short stsz", ErrCorruptData)
	}
	it := NewStszIter(data)
	if it.Count() != int(be.Uint32(data[4:])) {
		return nil, fmt.Errorf("%w: truncated stsz", ErrCorruptData)
	}
	if it.Count() > lim.MaxSamples {
		return nil, fmt.Errorf("%w: stsz declares %d samples", ErrLimitExceeded, it.Count())
	}
	out := make([]uint32, 0, it.Count())
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, v)
	}
	return out, nil
}

// DecodeStsc decodes an stsc payload. Entries must have strictly increasing
// FirstChunk values starting at 1.
func DecodeStsc(data []byte, lim Limits) ([]StscEntry, error) {
	lim = lim.withDefaults()
	it := NewStscIter(data)
	if declaredCount(data, 4) != it.Count() {
		return nil, fmt.Errorf("%w: truncated stsc", ErrCorruptData)
	}
	if it.Count() > lim.MaxTableEntries {
		return nil, fmt.Errorf("%w: stsc declares %d entries", ErrLimitExceeded, it.Count())
	}
	out := make([]StscEntry, 0, it.Count())
	prev := uint32(0)
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		if e.FirstChunk <= prev {
			return nil, fmt.Errorf("%w: stsc first-chunk values not increasing", ErrCorruptData)
		}
		prev = e.FirstChunk
		out = append(out, e)
	}
	return out, nil
}

// DecodeStco decodes a 32-bit chunk-offset payload.
func DecodeStco(data []byte, lim Limits) ([]uint64, error) {
	lim = lim.withDefaults()
	it := NewUint32Iter(data)
	if declaredCount(data, 4) != it.Count() {
		return nil, fmt.Errorf("%w: truncated stco", ErrCorruptData)
	}
	if it.Count() > lim.MaxTableEntries {
		return nil, fmt.Errorf("%w: stco declares %d entries", ErrLimitExceeded, it.Count())
	}
	out := make([]uint64, 0, it.Count())
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, uint64(v))
	}
	return out, nil
}

// DecodeCo64 decodes a 64-bit chunk-offset payload.
func DecodeCo64(data []byte, lim Limits) ([]uint64, error) {
	lim = lim.withDefaults()
	it := NewCo64Iter(data)
	if declaredCount(data, 4) != it.Count() {
		return nil, fmt.Errorf("%w: truncated co64", ErrCorruptData)
	}
	if it.Count() > lim.MaxTableEntries {
		return nil, fmt.Errorf("%w: co64 declares %d entries", ErrLimitExceeded, it.Count())
	}
	out := make([]uint64, 0, it.Count())
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, v)
	}
	return out, nil
}

// SamplesPerChunk returns the sample count of 1-based chunk c: the entry
// with the largest FirstChunk not exceeding c applies.
func SamplesPerChunk(stsc []StscEntry, c uint32) uint32 {
	per := uint32(0)
	for _, e := range stsc {
		if e.FirstChunk > c {
			break
		}
		per = e.SamplesPerChunk
	}
	return per
}

// ResolveSampleOffsets places samples into chunks: within chunk c,
// SamplesPerChunk(c) consecutive samples start at the chunk offset, each
// subsequent sample advancing by the previous sample's size. This exactly
// inverts the placement the muxer used at encode time.
func ResolveSampleOffsets(sizes []uint32, chunkOffsets []uint64, stsc []StscEntry) ([]uint64, error) {
	offsets := make([]uint64, len(sizes))
	if len(sizes) == 0 {
		return offsets, nil
	}
	if len(stsc) == 0 || len(chunkOffsets) == 0 {
		return nil, fmt.Errorf("%w: empty sample-to-chunk tables", ErrCorruptData)
	}

	si := 0
	entry := 0
	for c := uint32(1); int(c) <= len(chunkOffsets) && si < len(sizes); c++ {
		for entry+1 < len(stsc) && stsc[entry+1].FirstChunk <= c {
			entry++
		}
		off := chunkOffsets[c-1]
		for k := uint32(0); k < stsc[entry].SamplesPerChunk && si < len(sizes); k++ {
			offsets[si] = off
			off += uint64(sizes[si])
			si++
		}
	}
	if si < len(sizes) {
		return nil, fmt.Errorf("%w: %d samples not covered by chunks", ErrCorruptData, len(sizes)-si)
	}
	return offsets, nil
}
