package track_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetsuo/imaf"
	"github.com/tetsuo/imaf/track"
)

func audioTrack(frames ...[]byte) *track.Track {
	return &track.Track{
		Kind:            track.KindAudio,
		Timescale:       44100,
		Language:        "eng",
		Frames:          frames,
		SamplesPerFrame: 1024,
		ChannelCount:    2,
		SampleRate:      44100,
		DecoderConfig:   []byte{0x12, 0x10},
	}
}

func textTrack() *track.Track {
	return &track.Track{
		Kind:      track.KindTimedText,
		Timescale: 1000,
		Frames:    [][]byte{[]byte("\x00\x05hello"), []byte("\x00\x05world")},
		Durations: []uint32{2000, 3000},
	}
}

func frames(sizes ...int) [][]byte {
	out := make([][]byte, len(sizes))
	for i, n := range sizes {
		f := make([]byte, n)
		for j := range f {
			f[j] = byte(i + 1)
		}
		out[i] = f
	}
	return out
}

func TestMuxSingleAudioTrackLayout(t *testing.T) {
	sizes := []int{100, 120, 110, 130, 105}
	buf, err := track.Mux([]*track.Track{audioTrack(frames(sizes...)...)})
	require.NoError(t, err)

	// ftyp is 24 bytes, so the mdat payload and the single chunk start
	// at byte 32.
	require.Equal(t, "ftyp", string(buf[4:8]))
	require.Equal(t, "mdat", string(buf[28:32]))
	require.Equal(t, uint32(8+100+120+110+130+105), binary.BigEndian.Uint32(buf[24:28]))

	mov, err := track.Demux(buf)
	require.NoError(t, err)
	require.Len(t, mov.Tracks, 1)

	tr := mov.Tracks[0]
	require.Equal(t, []uint64{32}, tr.Table.ChunkOffsets)
	require.Equal(t, []imaf.StscEntry{{FirstChunk: 1, SamplesPerChunk: 5, SampleDescriptionIndex: 1}}, tr.Table.Stsc)
	require.Equal(t, []uint32{100, 120, 110, 130, 105}, tr.Table.Sizes)
	require.Equal(t, []uint32{1024, 1024, 1024, 1024, 1024}, tr.Table.Durations)

	// Offsets advance by each preceding sample's size from the chunk start.
	require.Equal(t, []uint64{32, 132, 252, 362, 492}, tr.Offsets)
}

func TestMuxSttsCoalescesUniformDurations(t *testing.T) {
	buf, err := track.Mux([]*track.Track{audioTrack(frames(10, 10, 10, 10, 10)...)})
	require.NoError(t, err)

	stts := findBoxPayload(t, buf, imaf.TypeStts)
	require.Equal(t, uint32(1), binary.BigEndian.Uint32(stts))
	require.Equal(t, uint32(5), binary.BigEndian.Uint32(stts[4:]))
	require.Equal(t, uint32(1024), binary.BigEndian.Uint32(stts[8:]))
}

func TestMuxLayoutsDemuxIdentically(t *testing.T) {
	tracks := func() []*track.Track {
		return []*track.Track{
			audioTrack(frames(100, 120, 110, 130, 105)...),
			textTrack(),
		}
	}

	bufA, err := track.Mux(tracks(), track.WithSongXML([]byte("<song/>")))
	require.NoError(t, err)
	bufB, err := track.Mux(tracks(), track.WithSongXML([]byte("<song/>")),
		track.WithLayout(track.LayoutMoovMdat))
	require.NoError(t, err)

	movA, err := track.Demux(bufA)
	require.NoError(t, err)
	movB, err := track.Demux(bufB)
	require.NoError(t, err)

	require.Len(t, movA.Tracks, 2)
	require.Len(t, movB.Tracks, 2)
	require.Equal(t, movA.SongXML, movB.SongXML)
	for i := range movA.Tracks {
		a, b := movA.Tracks[i], movB.Tracks[i]
		require.Equal(t, a.Table.Sizes, b.Table.Sizes)
		require.Equal(t, a.Table.Durations, b.Table.Durations)
		require.Equal(t, a.Samples, b.Samples)
	}
}

func TestMuxMoovFirstLayout(t *testing.T) {
	buf, err := track.Mux([]*track.Track{audioTrack(frames(50, 60)...)},
		track.WithLayout(track.LayoutMoovMdat))
	require.NoError(t, err)

	require.Equal(t, "ftyp", string(buf[4:8]))
	require.Equal(t, "moov", string(buf[28:32]))

	mov, err := track.Demux(buf)
	require.NoError(t, err)
	require.Len(t, mov.Tracks, 1)
	require.Equal(t, [][]byte{make([]byte, 50), make([]byte, 60)}, sizesOnly(mov.Tracks[0].Samples))
}

func TestMuxRejectsAudioAfterText(t *testing.T) {
	_, err := track.Mux([]*track.Track{textTrack(), audioTrack(frames(10)...)})
	require.ErrorIs(t, err, track.ErrInvalidTrack)
}

func TestMuxRejectsEmptyTrackList(t *testing.T) {
	_, err := track.Mux(nil)
	require.ErrorIs(t, err, track.ErrInvalidTrack)
}

func TestMuxRequiresSampleEntrySource(t *testing.T) {
	bad := &track.Track{
		Kind:            track.KindAudio,
		Timescale:       44100,
		Frames:          frames(10),
		SamplesPerFrame: 1024,
	}
	_, err := track.Mux([]*track.Track{bad})
	require.ErrorIs(t, err, track.ErrUnsupportedEncoding)
}

func TestMuxMovieHeader(t *testing.T) {
	a := audioTrack(frames(10, 10)...) // 2048/44100 s
	buf, err := track.Mux([]*track.Track{a, textTrack()})
	require.NoError(t, err)

	mov, err := track.Demux(buf)
	require.NoError(t, err)
	require.Equal(t, uint32(600), mov.Timescale)
	// The text track is the longest: 5000/1000 s = 3000 movie units.
	require.Equal(t, uint64(3000), mov.Duration)
}

func TestMuxMetadataRoundTrip(t *testing.T) {
	song := []byte("<song>title</song>")
	album := []byte("<album>title</album>")
	buf, err := track.Mux([]*track.Track{audioTrack(frames(10)...)},
		track.WithSongXML(song), track.WithAlbumXML(album))
	require.NoError(t, err)

	mov, err := track.Demux(buf)
	require.NoError(t, err)
	require.Equal(t, song, mov.SongXML)
	require.Equal(t, album, mov.AlbumXML)
}

func TestMuxDefaultSpec(t *testing.T) {
	buf, err := track.Mux([]*track.Track{
		audioTrack(frames(10)...),
		audioTrack(frames(20)...),
		textTrack(),
	})
	require.NoError(t, err)

	mov, err := track.Demux(buf)
	require.NoError(t, err)
	require.NotNil(t, mov.Spec)
	require.Len(t, mov.Spec.Groups, 1)
	require.Equal(t, []uint32{1, 2}, mov.Spec.Groups[0].ElementIDs)
	require.Equal(t, uint8(imaf.ActivationAlways), mov.Spec.Groups[0].ActivationMode)
	require.Len(t, mov.Spec.Presets, 1)
	require.Equal(t, uint8(8), mov.Spec.GlobalPresetSteps)
}

func TestMuxCallerSpec(t *testing.T) {
	spec := &imaf.Spec{
		Groups: []imaf.Group{{
			ID:              9,
			ElementIDs:      []uint32{1},
			ActivationMode:  imaf.ActivationManual,
			ReferenceVolume: 0.5,
			Name:            "custom",
			Description:     "caller supplied",
		}},
	}
	buf, err := track.Mux([]*track.Track{audioTrack(frames(10)...)}, track.WithSpec(spec))
	require.NoError(t, err)

	mov, err := track.Demux(buf)
	require.NoError(t, err)
	require.NotNil(t, mov.Spec)
	require.Equal(t, spec.Groups, mov.Spec.Groups)
	require.Empty(t, mov.Spec.Presets)
}

// findBoxPayload returns the payload of the first box of the given type,
// searching depth first.
func findBoxPayload(t *testing.T, buf []byte, typ imaf.BoxType) []byte {
	t.Helper()
	data, ok := imaf.FindDeep(buf, typ)
	require.True(t, ok, "box %s not found", typ)
	return data
}

func sizesOnly(samples [][]byte) [][]byte {
	out := make([][]byte, len(samples))
	for i, s := range samples {
		out[i] = make([]byte, len(s))
	}
	return out
}
