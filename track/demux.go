package track

import (
	"encoding/binary"

	"github.com/tetsuo/imaf"
)

var be = binary.BigEndian

// Movie is the result of demuxing a container.
type Movie struct {
	Timescale uint32
	Duration  uint64
	Tracks    []*DemuxedTrack

	// Spec is the interactive structure, nil when the container has none.
	Spec *imaf.Spec

	// SongXML and AlbumXML are the raw metadata documents, nil when absent.
	SongXML  []byte
	AlbumXML []byte
}

// DemuxedTrack is one track recovered from a container. Samples are views
// into the demuxed buffer, valid as long as the buffer is.
type DemuxedTrack struct {
	ID        uint32
	Kind      Kind
	Codec     CodecID
	Timescale uint32
	Duration  uint64
	Language  string

	ChannelCount  uint16
	SampleSize    uint16
	SampleRate    uint32
	DecoderConfig []byte
	ChannelLayout []byte
	SampleEntry   []byte // first stsd entry, raw box

	Table   imaf.SampleTable
	Offsets []uint64
	Samples [][]byte
}

// Demux parses a complete container from buf. Tracks missing required
// structure are skipped with a warning rather than failing the whole file;
// a missing moov is a hard error.
func Demux(buf []byte, opts ...Option) (*Movie, error) {
	cfg := newConfig(opts)
	lim := cfg.limits

	var moov []byte
	var albumXML []byte
	r := imaf.NewReader(buf)
	for r.Next() {
		switch r.Type() {
		case imaf.TypeMoov:
			if moov == nil {
				moov = r.Data()
			}
		case imaf.TypeMeta:
			if xml, ok := imaf.Child(r.Data(), imaf.TypeXML); ok {
				albumXML = xml
			}
		}
	}
	if moov == nil {
		return nil, ErrMoovNotFound
	}

	m := &Movie{AlbumXML: albumXML}
	if mvhd, ok := childFull(moov, imaf.TypeMvhd); ok {
		if mvhd.version == 1 && len(mvhd.data) >= 28 {
			m.Timescale = be.Uint32(mvhd.data[16:])
			m.Duration = be.Uint64(mvhd.data[20:])
		} else if len(mvhd.data) >= 16 {
			m.Timescale = be.Uint32(mvhd.data[8:])
			m.Duration = uint64(be.Uint32(mvhd.data[12:]))
		}
	}

	if udta, ok := imaf.Child(moov, imaf.TypeUdta); ok {
		if meta, ok := imaf.Child(udta, imaf.TypeMeta); ok {
			if xml, ok := imaf.Child(meta, imaf.TypeXML); ok {
				m.SongXML = xml
			}
		}
	}

	spec, err := imaf.ExtractSpec(buf, lim, cfg.log)
	if err != nil {
		return nil, err
	}
	m.Spec = spec

	tr := imaf.NewReader(moov)
	for tr.Next() {
		if tr.Type() != imaf.TypeTrak {
			continue
		}
		t, err := demuxTrak(buf, tr.Data(), lim, cfg)
		if err != nil {
			return nil, err
		}
		if t != nil {
			m.Tracks = append(m.Tracks, t)
		}
	}
	return m, nil
}

// fullBoxView is a full box payload together with its header version.
type fullBoxView struct {
	version uint8
	data    []byte
}

func childFull(data []byte, typ imaf.BoxType) (fullBoxView, bool) {
	r := imaf.NewReader(data)
	for r.Next() {
		if r.Type() == typ {
			return fullBoxView{version: r.Version(), data: r.Data()}, true
		}
	}
	return fullBoxView{}, false
}

// demuxTrak parses one trak box. It returns (nil, nil) when the track lacks
// required structure and is skipped.
func demuxTrak(buf, trak []byte, lim imaf.Limits, cfg config) (*DemuxedTrack, error) {
	t := &DemuxedTrack{Codec: CodecUnknown}

	if tkhd, ok := childFull(trak, imaf.TypeTkhd); ok {
		if tkhd.version == 1 && len(tkhd.data) >= 20 {
			t.ID = be.Uint32(tkhd.data[16:])
		} else if len(tkhd.data) >= 12 {
			t.ID = be.Uint32(tkhd.data[8:])
		}
	}

	mdia, ok := imaf.Child(trak, imaf.TypeMdia)
	if !ok {
		cfg.log.Warn().Uint32("track", t.ID).Msg("skipping track without mdia")
		return nil, nil
	}
	hdlr, ok := imaf.Child(mdia, imaf.TypeHdlr)
	if !ok || len(hdlr) < 8 {
		cfg.log.Warn().Uint32("track", t.ID).Msg("skipping track without hdlr")
		return nil, nil
	}
	var handler imaf.BoxType
	copy(handler[:], hdlr[4:8])
	switch handler {
	case imaf.HandlerSoun:
		t.Kind = KindAudio
	case imaf.HandlerText:
		t.Kind = KindTimedText
		t.Codec = CodecText
	default:
		cfg.log.Warn().Uint32("track", t.ID).Str("handler", handler.String()).Msg("skipping track with unknown handler")
		return nil, nil
	}

	mdhd, ok := childFull(mdia, imaf.TypeMdhd)
	if !ok {
		cfg.log.Warn().Uint32("track", t.ID).Msg("skipping track without mdhd")
		return nil, nil
	}
	var lang uint16
	if mdhd.version == 1 && len(mdhd.data) >= 30 {
		t.Timescale = be.Uint32(mdhd.data[16:])
		t.Duration = be.Uint64(mdhd.data[20:])
		lang = be.Uint16(mdhd.data[28:])
	} else if len(mdhd.data) >= 18 {
		t.Timescale = be.Uint32(mdhd.data[8:])
		t.Duration = uint64(be.Uint32(mdhd.data[12:]))
		lang = be.Uint16(mdhd.data[16:])
	}
	t.Language = imaf.UnpackLanguage(lang)

	minf, ok := imaf.Child(mdia, imaf.TypeMinf)
	if !ok {
		cfg.log.Warn().Uint32("track", t.ID).Msg("skipping track without minf")
		return nil, nil
	}
	stbl, ok := imaf.Child(minf, imaf.TypeStbl)
	if !ok {
		cfg.log.Warn().Uint32("track", t.ID).Msg("skipping track without stbl")
		return nil, nil
	}

	if stsd, ok := imaf.Child(stbl, imaf.TypeStsd); ok {
		t.readSampleEntry(stsd)
	}

	complete, err := t.readSampleTable(stbl, lim)
	if err != nil {
		return nil, err
	}
	if !complete {
		cfg.log.Warn().Uint32("track", t.ID).Msg("skipping track with incomplete sample table")
		return nil, nil
	}
	offsets, err := imaf.ResolveSampleOffsets(t.Table.Sizes, t.Table.ChunkOffsets, t.Table.Stsc)
	if err != nil {
		return nil, err
	}
	t.Offsets = offsets

	t.Samples = make([][]byte, len(offsets))
	for i, off := range offsets {
		end := off + uint64(t.Table.Sizes[i])
		if end > uint64(len(buf)) || off > end {
			cfg.log.Warn().Uint32("track", t.ID).Int("sample", i).Msg("skipping track with out-of-range sample")
			return nil, nil
		}
		t.Samples[i] = buf[off:end]
	}
	return t, nil
}

// readSampleEntry extracts codec parameters from the first stsd entry.
// An mp4a entry alone does not decide the codec: the object type indication
// inside the nested esds does. 0x6B means MP3 carried in mp4a; any other
// object type with decoder specific info is AAC.
func (t *DemuxedTrack) readSampleEntry(stsd []byte) {
	if len(stsd) < 4 || be.Uint32(stsd) == 0 {
		return
	}
	entries := stsd[4:]
	r := imaf.NewReader(entries)
	if !r.Next() {
		return
	}
	t.SampleEntry = r.RawBox()
	entryType := r.Type()
	data := t.SampleEntry[8:]

	if t.Kind == KindAudio && len(data) >= 28 {
		t.ChannelCount = be.Uint16(data[16:])
		t.SampleSize = be.Uint16(data[18:])
		t.SampleRate = be.Uint32(data[24:]) >> 16
	}

	if esds, ok := imaf.FindDeep(entries, imaf.TypeEsds); ok {
		oti, asc := imaf.ParseESDescriptor(esds)
		t.DecoderConfig = asc
		switch {
		case oti == imaf.OTIAudioISO11172:
			t.Codec = CodecMP3
		case len(asc) > 0:
			t.Codec = CodecAAC
		}
	}
	if layout, ok := imaf.FindDeep(entries, imaf.TypeChan); ok {
		t.ChannelLayout = layout
	}

	if t.Codec == CodecUnknown {
		switch entryType.String() {
		case "mp4a":
			t.Codec = CodecAAC
		case "sowt", "twos", "lpcm", "raw ":
			t.Codec = CodecPCM
		case "tx3g", "text":
			t.Codec = CodecText
		}
	}
}

// readSampleTable decodes the four required tables from stbl. It reports
// false without an error when one of them is absent; the caller skips the
// track. Decode failures on tables that are present remain hard errors.
func (t *DemuxedTrack) readSampleTable(stbl []byte, lim imaf.Limits) (bool, error) {
	stts, ok := imaf.Child(stbl, imaf.TypeStts)
	if !ok {
		return false, nil
	}
	durations, err := imaf.DecodeStts(stts, lim)
	if err != nil {
		return false, err
	}
	stsz, ok := imaf.Child(stbl, imaf.TypeStsz)
	if !ok {
		return false, nil
	}
	sizes, err := imaf.DecodeStsz(stsz, lim)
	if err != nil {
		return false, err
	}
	stsc, ok := imaf.Child(stbl, imaf.TypeStsc)
	if !ok {
		return false, nil
	}
	entries, err := imaf.DecodeStsc(stsc, lim)
	if err != nil {
		return false, err
	}
	var offsets []uint64
	if stco, ok := imaf.Child(stbl, imaf.TypeStco); ok {
		offsets, err = imaf.DecodeStco(stco, lim)
	} else if co64, ok := imaf.Child(stbl, imaf.TypeCo64); ok {
		offsets, err = imaf.DecodeCo64(co64, lim)
	} else {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	t.Table = imaf.SampleTable{
		Durations:    durations,
		Sizes:        sizes,
		ChunkOffsets: offsets,
		Stsc:         entries,
	}
	return true, nil
}
