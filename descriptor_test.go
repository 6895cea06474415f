package imaf_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetsuo/imaf"
)

func TestESDescriptorRoundTrip(t *testing.T) {
	asc := []byte{0x12, 0x10}
	w := imaf.NewWriter(nil)
	w.WriteESDescriptor(1, imaf.OTIAudioISO14496, asc)

	oti, got := imaf.ParseESDescriptor(w.Bytes())
	require.Equal(t, byte(imaf.OTIAudioISO14496), oti)
	require.Equal(t, asc, got)
}

func TestESDescriptorWithoutDecoderSpecificInfo(t *testing.T) {
	w := imaf.NewWriter(nil)
	w.WriteESDescriptor(1, imaf.OTIAudioISO11172, nil)

	oti, asc := imaf.ParseESDescriptor(w.Bytes())
	require.Equal(t, byte(imaf.OTIAudioISO11172), oti)
	require.Empty(t, asc)
}

func TestESDescriptorLongDecoderSpecificInfo(t *testing.T) {
	// Long enough to force multi-byte descriptor lengths.
	asc := make([]byte, 300)
	for i := range asc {
		asc[i] = byte(i)
	}
	w := imaf.NewWriter(nil)
	w.WriteESDescriptor(2, imaf.OTIAudioISO14496, asc)

	oti, got := imaf.ParseESDescriptor(w.Bytes())
	require.Equal(t, byte(imaf.OTIAudioISO14496), oti)
	require.Equal(t, asc, got)
}

func TestParseESDescriptorGarbage(t *testing.T) {
	oti, asc := imaf.ParseESDescriptor(nil)
	require.Zero(t, oti)
	require.Nil(t, asc)

	oti, asc = imaf.ParseESDescriptor([]byte{0xFF, 0x01, 0x02})
	require.Zero(t, oti)
	require.Nil(t, asc)
}
