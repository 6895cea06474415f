package track

import (
	"fmt"

	"github.com/tetsuo/imaf"
)

// Movie-level timescale for mvhd and tkhd durations.
const movieTimescale = 600

// trackPlan is the per-track state shared between the two moov passes.
type trackPlan struct {
	track     *Track
	entry     []byte
	sizes     []uint32
	durations []uint32
	total     uint64 // sum of sizes
}

// Mux assembles a complete file from the given tracks. Audio tracks must
// precede timed-text tracks. Every track's samples are packed into a single
// contiguous chunk inside one shared mdat, in track order.
func Mux(tracks []*Track, opts ...Option) ([]byte, error) {
	cfg := newConfig(opts)
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: no tracks", ErrInvalidTrack)
	}
	seenText := false
	for i, t := range tracks {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("track %d: %w", i, err)
		}
		if t.Kind == KindTimedText {
			seenText = true
		} else if seenText {
			return nil, fmt.Errorf("%w: audio track %d after timed text", ErrInvalidTrack, i)
		}
	}

	plans := make([]trackPlan, len(tracks))
	var mdatPayload uint64
	for i, t := range tracks {
		entry, err := t.sampleEntry()
		if err != nil {
			return nil, fmt.Errorf("track %d: %w", i, err)
		}
		sizes := make([]uint32, len(t.Frames))
		var total uint64
		for j, f := range t.Frames {
			sz, err := imaf.CheckU32(uint64(len(f)))
			if err != nil {
				return nil, err
			}
			sizes[j] = sz
			total += uint64(sz)
		}
		plans[i] = trackPlan{track: t, entry: entry, sizes: sizes, durations: t.frameDurations(), total: total}
		mdatPayload += total
	}
	if _, err := imaf.CheckU32(mdatPayload + 8); err != nil {
		return nil, err
	}

	spec := cfg.spec
	if spec == nil {
		spec = defaultSpec(tracks)
	}

	ftyp := writeFtyp()
	albumMeta := writeAlbumMeta(cfg.albumXML)

	buildMoov := func(base uint64) ([]byte, error) {
		return writeMoov(plans, base, spec, cfg)
	}

	var moov []byte
	var err error
	switch cfg.layout {
	case LayoutMoovMdat:
		// moov's length feeds back into the offsets it contains. A draft
		// pass with zero offsets measures the length; every table field is
		// fixed width, so the rebuilt moov has the same length.
		var draft []byte
		draft, err = buildMoov(0)
		if err != nil {
			return nil, err
		}
		moov, err = buildMoov(uint64(len(ftyp)) + uint64(len(draft)) + 8)
		if err == nil && len(moov) != len(draft) {
			err = fmt.Errorf("%w: moov length changed between passes", imaf.ErrRange)
		}
	default:
		moov, err = buildMoov(uint64(len(ftyp)) + 8)
	}
	if err != nil {
		return nil, err
	}

	total := len(ftyp) + 8 + int(mdatPayload) + len(albumMeta) + len(moov)
	out := make([]byte, 0, total)
	out = append(out, ftyp...)
	if cfg.layout == LayoutMoovMdat {
		out = append(out, moov...)
	}
	out = be.AppendUint32(out, uint32(mdatPayload+8))
	out = append(out, imaf.TypeMdat[:]...)
	for i := range plans {
		for _, f := range plans[i].track.Frames {
			out = append(out, f...)
		}
	}
	out = append(out, albumMeta...)
	if cfg.layout != LayoutMoovMdat {
		out = append(out, moov...)
	}
	return out, nil
}

func writeFtyp() []byte {
	w := imaf.NewWriter(nil)
	w.WriteFtyp(imaf.BrandIsom, 0x200, []imaf.BoxType{imaf.BrandIsom, imaf.BrandMp42})
	return w.Bytes()
}

// writeAlbumMeta wraps the album metadata document in a meta box, or
// returns nil when there is none.
func writeAlbumMeta(xml []byte) []byte {
	if len(xml) == 0 {
		return nil
	}
	w := imaf.NewWriter(nil)
	w.StartFullBox(imaf.TypeMeta, 0, 0)
	w.WriteXML(xml)
	w.EndBox()
	return w.Bytes()
}

// defaultSpec spans all audio tracks equally: one always-active group at
// reference volume 1.0 and one flat preset.
func defaultSpec(tracks []*Track) *imaf.Spec {
	var elems []uint32
	for i, t := range tracks {
		if t.Kind == KindAudio {
			elems = append(elems, uint32(i+1))
		}
	}
	if len(elems) == 0 {
		return &imaf.Spec{}
	}
	vols := make([]uint8, len(elems))
	for i := range vols {
		vols[i] = 7
	}
	return &imaf.Spec{
		Groups: []imaf.Group{{
			ID:              1,
			ElementIDs:      elems,
			ActivationMode:  imaf.ActivationAlways,
			ReferenceVolume: 1.0,
			Name:            "all",
			Description:     "all audio elements",
		}},
		Presets: []imaf.Preset{{
			ID:                 1,
			ElementIDs:         elems,
			GlobalVolumeIndex:  7,
			ElementVolumeIndex: vols,
			Name:               "default",
		}},
		GlobalPresetSteps: 8,
	}
}

// writeMoov builds the complete moov for the given mdat payload base
// offset. Chunk offsets are the only values that depend on base.
func writeMoov(plans []trackPlan, base uint64, spec *imaf.Spec, cfg config) ([]byte, error) {
	var movieDuration uint64
	for i := range plans {
		d := rescale(plans[i].track.mediaDuration(), plans[i].track.Timescale)
		if d > movieDuration {
			movieDuration = d
		}
	}
	movieDur32, err := imaf.CheckU32(movieDuration)
	if err != nil {
		return nil, err
	}

	w := imaf.NewWriter(nil)
	w.StartBox(imaf.TypeMoov)
	w.WriteMvhd(movieTimescale, movieDur32, uint32(len(plans)+1))

	offset := base
	for i := range plans {
		if err := writeTrak(w, &plans[i], uint32(i+1), offset); err != nil {
			return nil, err
		}
		offset += plans[i].total
	}

	if len(cfg.songXML) > 0 {
		w.StartBox(imaf.TypeUdta)
		w.StartFullBox(imaf.TypeMeta, 0, 0)
		w.WriteXML(cfg.songXML)
		w.EndBox()
		w.EndBox()
	}
	if err := w.WriteSpec(spec, cfg.log); err != nil {
		return nil, err
	}
	w.EndBox()
	if err := w.Err(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func writeTrak(w *imaf.Writer, p *trackPlan, trackID uint32, chunkOffset uint64) error {
	t := p.track
	mediaDur, err := imaf.CheckU32(t.mediaDuration())
	if err != nil {
		return err
	}
	movieDur, err := imaf.CheckU32(rescale(t.mediaDuration(), t.Timescale))
	if err != nil {
		return err
	}
	stco, err := imaf.CheckU32(chunkOffset)
	if err != nil {
		return err
	}

	var volume uint16
	handler, handlerName := imaf.HandlerText, "TextHandler"
	if t.Kind == KindAudio {
		volume = 0x0100
		handler, handlerName = imaf.HandlerSoun, "SoundHandler"
	}

	w.StartBox(imaf.TypeTrak)
	w.WriteTkhd(3, trackID, movieDur, volume)
	w.StartBox(imaf.TypeMdia)
	w.WriteMdhd(t.Timescale, mediaDur, t.language())
	w.WriteHdlr(handler, handlerName)
	w.StartBox(imaf.TypeMinf)
	if t.Kind == KindAudio {
		w.WriteSmhd()
	} else {
		w.WriteNmhd()
	}
	w.WriteDinf()
	w.StartBox(imaf.TypeStbl)
	w.StartFullBox(imaf.TypeStsd, 0, 0)
	w.PutU32(1)
	w.PutBytes(p.entry)
	w.EndBox()
	w.WriteStts(imaf.CoalesceDurations(p.durations))
	w.WriteStsc([]imaf.StscEntry{{FirstChunk: 1, SamplesPerChunk: uint32(len(p.sizes)), SampleDescriptionIndex: 1}})
	w.WriteStsz(p.sizes)
	w.WriteStco([]uint32{stco})
	w.EndBox() // stbl
	w.EndBox() // minf
	w.EndBox() // mdia
	w.EndBox() // trak
	return w.Err()
}

// rescale converts a duration in units of ts to movie timescale units,
// rounding to nearest.
func rescale(dur uint64, ts uint32) uint64 {
	return (dur*movieTimescale + uint64(ts)/2) / uint64(ts)
}
