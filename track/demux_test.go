package track_test

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/tetsuo/imaf"
	"github.com/tetsuo/imaf/track"
)

func TestDemuxRecoversAudioTrack(t *testing.T) {
	fr := frames(100, 120, 110, 130, 105)
	buf, err := track.Mux([]*track.Track{audioTrack(fr...)})
	require.NoError(t, err)

	mov, err := track.Demux(buf)
	require.NoError(t, err)
	require.Len(t, mov.Tracks, 1)

	tr := mov.Tracks[0]
	require.Equal(t, uint32(1), tr.ID)
	require.Equal(t, track.KindAudio, tr.Kind)
	require.Equal(t, track.CodecAAC, tr.Codec)
	require.Equal(t, uint32(44100), tr.Timescale)
	require.Equal(t, uint64(5*1024), tr.Duration)
	require.Equal(t, "eng", tr.Language)
	require.Equal(t, uint16(2), tr.ChannelCount)
	require.Equal(t, uint16(16), tr.SampleSize)
	require.Equal(t, uint32(44100), tr.SampleRate)
	require.Equal(t, []byte{0x12, 0x10}, tr.DecoderConfig)
	require.Equal(t, fr, tr.Samples)
}

func TestDemuxSamplesAreViews(t *testing.T) {
	buf, err := track.Mux([]*track.Track{audioTrack(frames(64)...)})
	require.NoError(t, err)

	mov, err := track.Demux(buf)
	require.NoError(t, err)
	s := mov.Tracks[0].Samples[0]

	// The sample aliases the demuxed buffer rather than copying it.
	require.Equal(t, &buf[mov.Tracks[0].Offsets[0]], &s[0])
}

func TestDemuxMP3Discriminant(t *testing.T) {
	mp3 := &track.Track{
		Kind:            track.KindAudio,
		Timescale:       44100,
		Frames:          frames(417, 417),
		SamplesPerFrame: 1152,
		ChannelCount:    2,
		SampleRate:      44100,
		ObjectType:      imaf.OTIAudioISO11172,
	}
	buf, err := track.Mux([]*track.Track{mp3})
	require.NoError(t, err)

	mov, err := track.Demux(buf)
	require.NoError(t, err)
	require.Len(t, mov.Tracks, 1)

	// The sample entry is still the generic mp4a wrapper; only the object
	// type indication inside esds says the payload is MP3.
	require.Equal(t, "mp4a", string(mov.Tracks[0].SampleEntry[4:8]))
	require.Equal(t, track.CodecMP3, mov.Tracks[0].Codec)
}

func TestDemuxTimedTextTrack(t *testing.T) {
	buf, err := track.Mux([]*track.Track{audioTrack(frames(10)...), textTrack()})
	require.NoError(t, err)

	mov, err := track.Demux(buf)
	require.NoError(t, err)
	require.Len(t, mov.Tracks, 2)

	tr := mov.Tracks[1]
	require.Equal(t, track.KindTimedText, tr.Kind)
	require.Equal(t, track.CodecText, tr.Codec)
	require.Equal(t, []uint32{2000, 3000}, tr.Table.Durations)
	require.Equal(t, "tx3g", string(tr.SampleEntry[4:8]))
}

func TestDemuxMissingMoov(t *testing.T) {
	w := imaf.NewWriter(nil)
	w.WriteFtyp(imaf.BrandIsom, 0x200, nil)
	_, err := track.Demux(w.Bytes())
	require.ErrorIs(t, err, track.ErrMoovNotFound)

	_, err = track.Demux(nil)
	require.ErrorIs(t, err, track.ErrMoovNotFound)
}

func TestDemuxSkipsTrackMissingStructure(t *testing.T) {
	// moov with an mvhd and a trak that carries nothing but a tkhd.
	w := imaf.NewWriter(nil)
	w.StartBox(imaf.TypeMoov)
	w.WriteMvhd(600, 0, 2)
	w.StartBox(imaf.TypeTrak)
	w.WriteTkhd(3, 1, 0, 0)
	w.EndBox()
	w.EndBox()
	require.NoError(t, w.Err())

	var logBuf bytes.Buffer
	mov, err := track.Demux(w.Bytes(), track.WithLogger(zerolog.New(&logBuf)))
	require.NoError(t, err)
	require.Empty(t, mov.Tracks)
	require.Contains(t, logBuf.String(), "skipping track")
}

func TestDemuxSkipsTrackWithOutOfRangeSamples(t *testing.T) {
	// moov first, then cut the file short so the sample data is gone.
	buf, err := track.Mux([]*track.Track{audioTrack(frames(40, 40)...)},
		track.WithLayout(track.LayoutMoovMdat))
	require.NoError(t, err)
	truncated := buf[:len(buf)-50]

	var logBuf bytes.Buffer
	mov, err := track.Demux(truncated, track.WithLogger(zerolog.New(&logBuf)))
	require.NoError(t, err)
	require.Empty(t, mov.Tracks)
	require.Contains(t, logBuf.String(), "out-of-range sample")
}

func TestDemuxHonorsLimits(t *testing.T) {
	buf, err := track.Mux([]*track.Track{audioTrack(frames(10, 10, 10)...)})
	require.NoError(t, err)

	_, err = track.Demux(buf, track.WithLimits(imaf.Limits{MaxSamples: 2}))
	require.ErrorIs(t, err, imaf.ErrLimitExceeded)
}

func TestMuxZeroLengthFramesRoundTrip(t *testing.T) {
	buf, err := track.Mux([]*track.Track{audioTrack([][]byte{{}, {}, {1, 2, 3}}...)})
	require.NoError(t, err)

	mov, err := track.Demux(buf)
	require.NoError(t, err)
	require.Len(t, mov.Tracks, 1)
	require.Equal(t, []uint32{0, 0, 3}, mov.Tracks[0].Table.Sizes)
	require.Empty(t, mov.Tracks[0].Samples[0])
	require.Equal(t, []byte{1, 2, 3}, mov.Tracks[0].Samples[2])
}

func TestDemuxSkipsTrackWithIncompleteSampleTable(t *testing.T) {
	lang, err := imaf.PackLanguage("eng")
	require.NoError(t, err)

	// stbl is present but holds only an stsz.
	w := imaf.NewWriter(nil)
	w.StartBox(imaf.TypeMoov)
	w.WriteMvhd(600, 0, 2)
	w.StartBox(imaf.TypeTrak)
	w.WriteTkhd(3, 1, 0, 0x0100)
	w.StartBox(imaf.TypeMdia)
	w.WriteMdhd(44100, 0, lang)
	w.WriteHdlr(imaf.HandlerSoun, "SoundHandler")
	w.StartBox(imaf.TypeMinf)
	w.WriteSmhd()
	w.WriteDinf()
	w.StartBox(imaf.TypeStbl)
	w.WriteStsz([]uint32{10})
	w.EndBox()
	w.EndBox()
	w.EndBox()
	w.EndBox()
	w.EndBox()
	require.NoError(t, w.Err())

	var logBuf bytes.Buffer
	mov, err := track.Demux(w.Bytes(), track.WithLogger(zerolog.New(&logBuf)))
	require.NoError(t, err)
	require.Empty(t, mov.Tracks)
	require.Contains(t, logBuf.String(), "incomplete sample table")
}
