package track_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetsuo/imaf"
	"github.com/tetsuo/imaf/track"
)

func TestTrackValidate(t *testing.T) {
	good := audioTrack(frames(10)...)
	require.NoError(t, good.Validate())

	noFrames := audioTrack()
	require.ErrorIs(t, noFrames.Validate(), track.ErrInvalidTrack)

	zeroTimescale := audioTrack(frames(10)...)
	zeroTimescale.Timescale = 0
	require.ErrorIs(t, zeroTimescale.Validate(), track.ErrInvalidTrack)

	noFrameDuration := audioTrack(frames(10)...)
	noFrameDuration.SamplesPerFrame = 0
	require.ErrorIs(t, noFrameDuration.Validate(), track.ErrInvalidTrack)

	badLang := audioTrack(frames(10)...)
	badLang.Language = "english"
	require.ErrorIs(t, badLang.Validate(), imaf.ErrValidation)

	text := textTrack()
	text.Durations = text.Durations[:1]
	require.ErrorIs(t, text.Validate(), track.ErrInvalidTrack)
}

func TestPrebuiltSampleEntryPassesThrough(t *testing.T) {
	entry := track.Tx3gSampleEntry()
	tr := textTrack()
	tr.SampleEntry = entry

	buf, err := track.Mux([]*track.Track{audioTrack(frames(10)...), tr})
	require.NoError(t, err)

	mov, err := track.Demux(buf)
	require.NoError(t, err)
	require.Equal(t, entry, mov.Tracks[1].SampleEntry)
}

func TestTx3gSampleEntry(t *testing.T) {
	entry := track.Tx3gSampleEntry()
	require.Equal(t, "tx3g", string(entry[4:8]))

	// Fixed fields span 38 bytes of payload, then the font table whose
	// type tag sits 4 bytes into its own header.
	require.Equal(t, "ftab", string(entry[50:54]))
	ftab, ok := imaf.FindDeep(entry, imaf.TypeFtab)
	require.True(t, ok)
	require.Equal(t, []byte{0, 1, 0, 1, 5, 'S', 'e', 'r', 'i', 'f'}, ftab)
}
