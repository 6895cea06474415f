// Package track assembles and dissects interactive music containers: Mux
// builds a complete file from in-memory tracks, Demux recovers tracks and
// sample data from one.
package track

import (
	"errors"
	"fmt"

	"github.com/tetsuo/imaf"
)

// Kind distinguishes audio element tracks from timed-text tracks.
type Kind int

const (
	KindAudio Kind = iota
	KindTimedText
)

// CodecID identifies the payload encoding of a demuxed track.
type CodecID int

const (
	CodecUnknown CodecID = iota
	CodecAAC
	CodecMP3
	CodecPCM
	CodecText
)

func (c CodecID) String() string {
	switch c {
	case CodecAAC:
		return "aac"
	case CodecMP3:
		return "mp3"
	case CodecPCM:
		return "pcm"
	case CodecText:
		return "text"
	}
	return "unknown"
}

var (
	// ErrMoovNotFound is returned when a buffer has no top-level moov box.
	ErrMoovNotFound = errors.New("track: moov not found")

	// ErrInvalidTrack is returned when a track's fields are inconsistent.
	ErrInvalidTrack = errors.New("track: invalid track")

	// ErrUnsupportedEncoding is returned when a track carries neither a
	// prebuilt sample entry nor the fields needed to synthesize one.
	ErrUnsupportedEncoding = errors.New("track: unsupported encoding")
)

// Track is one media track to be muxed. Frames hold the raw sample payloads
// in presentation order.
//
// Audio tracks time every frame uniformly via SamplesPerFrame (media units
// per frame, e.g. 1024 for AAC). Timed-text tracks carry an explicit
// per-frame duration list instead.
//
// SampleEntry, when set, is a complete raw sample entry box placed into stsd
// as is. Otherwise an mp4a entry with a nested esds is synthesized from
// ChannelCount, SampleSize, SampleRate, ObjectType and DecoderConfig for
// audio, and a default tx3g entry for timed text.
type Track struct {
	Kind      Kind
	Timescale uint32
	Duration  uint64 // media duration; summed from frame durations when zero
	Language  string // ISO 639-2/T code, "und" when empty

	Frames          [][]byte
	SamplesPerFrame uint32   // audio only
	Durations       []uint32 // timed text only, one entry per frame

	SampleEntry []byte

	ChannelCount  uint16
	SampleSize    uint16 // bits per sample, 16 when zero
	SampleRate    uint32
	ObjectType    byte // object type indication, AAC when zero
	DecoderConfig []byte
}

// Validate checks that the track can be muxed.
func (t *Track) Validate() error {
	if t.Timescale == 0 {
		return fmt.Errorf("%w: zero timescale", ErrInvalidTrack)
	}
	if len(t.Frames) == 0 {
		return fmt.Errorf("%w: no frames", ErrInvalidTrack)
	}
	switch t.Kind {
	case KindAudio:
		if t.SamplesPerFrame == 0 {
			return fmt.Errorf("%w: audio track without samples per frame", ErrInvalidTrack)
		}
	case KindTimedText:
		if len(t.Durations) != len(t.Frames) {
			return fmt.Errorf("%w: %d durations for %d frames", ErrInvalidTrack, len(t.Durations), len(t.Frames))
		}
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidTrack, t.Kind)
	}
	if t.SampleEntry == nil && t.Kind == KindAudio && t.SampleRate == 0 {
		return fmt.Errorf("%w: no sample entry and no fields to synthesize one", ErrUnsupportedEncoding)
	}
	if t.Language != "" {
		if _, err := imaf.PackLanguage(t.Language); err != nil {
			return err
		}
	}
	return nil
}

// frameDurations returns the per-frame duration sequence in media units.
func (t *Track) frameDurations() []uint32 {
	if t.Kind == KindTimedText {
		return t.Durations
	}
	d := make([]uint32, len(t.Frames))
	for i := range d {
		d[i] = t.SamplesPerFrame
	}
	return d
}

// mediaDuration returns Duration, or the sum of frame durations when unset.
func (t *Track) mediaDuration() uint64 {
	if t.Duration != 0 {
		return t.Duration
	}
	var sum uint64
	for _, d := range t.frameDurations() {
		sum += uint64(d)
	}
	return sum
}

func (t *Track) language() uint16 {
	code := t.Language
	if code == "" {
		code = "und"
	}
	v, err := imaf.PackLanguage(code)
	if err != nil {
		v, _ = imaf.PackLanguage("und")
	}
	return v
}

// sampleEntry returns the raw sample entry box for stsd.
func (t *Track) sampleEntry() ([]byte, error) {
	if t.SampleEntry != nil {
		return t.SampleEntry, nil
	}
	switch t.Kind {
	case KindAudio:
		if t.SampleRate == 0 {
			return nil, fmt.Errorf("%w: cannot synthesize mp4a entry", ErrUnsupportedEncoding)
		}
		return t.mp4aEntry(), nil
	case KindTimedText:
		return Tx3gSampleEntry(), nil
	}
	return nil, fmt.Errorf("%w: kind %d", ErrUnsupportedEncoding, t.Kind)
}

func (t *Track) mp4aEntry() []byte {
	channels := t.ChannelCount
	if channels == 0 {
		channels = 2
	}
	sampleSize := t.SampleSize
	if sampleSize == 0 {
		sampleSize = 16
	}
	oti := t.ObjectType
	if oti == 0 {
		oti = imaf.OTIAudioISO14496
	}
	w := imaf.NewWriter(nil)
	w.StartBox(imaf.TypeMp4a)
	w.PutZero(6)
	w.PutU16(1) // data reference index
	w.PutZero(8)
	w.PutU16(channels)
	w.PutU16(sampleSize)
	w.PutZero(4)
	w.PutU32(t.SampleRate << 16)
	w.StartFullBox(imaf.TypeEsds, 0, 0)
	w.WriteESDescriptor(1, oti, t.DecoderConfig)
	w.EndBox()
	w.EndBox()
	return w.Bytes()
}

// Tx3gSampleEntry builds a 3GPP timed-text sample entry with a default style
// record and a single-entry font table.
func Tx3gSampleEntry() []byte {
	w := imaf.NewWriter(nil)
	w.StartBox(imaf.TypeTx3g)
	w.PutZero(6)
	w.PutU16(1)    // data reference index
	w.PutU32(0)    // display flags
	w.PutU8(1)     // horizontal justification: center
	w.PutU8(0xFF)  // vertical justification: bottom
	w.PutZero(4)   // background color
	w.PutZero(8)   // default text box
	w.PutU16(0)          // style: start char
	w.PutU16(0)          // style: end char
	w.PutU16(1)          // style: font ID
	w.PutU8(0)           // style: face
	w.PutU8(12)          // style: size
	w.PutU32(0xFFFFFFFF) // style: text color, opaque white
	w.StartBox(imaf.TypeFtab)
	w.PutU16(1)
	w.PutU16(1)
	w.PutU8(5)
	w.PutTag("Serif")
	w.EndBox()
	w.EndBox()
	return w.Bytes()
}
