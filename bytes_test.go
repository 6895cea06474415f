package imaf_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetsuo/imaf"
)

func TestCheckU32(t *testing.T) {
	v, err := imaf.CheckU32(0xFFFFFFFF)
	require.NoError(t, err)
	require.Equal(t, uint32(0xFFFFFFFF), v)

	_, err = imaf.CheckU32(1 << 32)
	require.ErrorIs(t, err, imaf.ErrRange)
}

func TestFixedPoint(t *testing.T) {
	v, err := imaf.Fixed1616(1.5)
	require.NoError(t, err)
	require.Equal(t, uint32(0x00018000), v)

	_, err = imaf.Fixed1616(-0.1)
	require.ErrorIs(t, err, imaf.ErrRange)

	q, err := imaf.Fixed88(1.0)
	require.NoError(t, err)
	require.Equal(t, int16(256), q)

	q, err = imaf.Fixed88(-0.5)
	require.NoError(t, err)
	require.Equal(t, int16(-128), q)

	_, err = imaf.Fixed88(200)
	require.ErrorIs(t, err, imaf.ErrRange)

	require.InDelta(t, 1.0, imaf.Fixed88Float(256), 1e-9)
	require.InDelta(t, -0.5, imaf.Fixed88Float(-128), 1e-9)
}

func TestVlenEncoding(t *testing.T) {
	cases := []struct {
		v    uint32
		want []byte
	}{
		{0, []byte{0x00}},
		{0x7F, []byte{0x7F}},
		{0x80, []byte{0x81, 0x00}},
		{300, []byte{0x82, 0x2C}},
		{1 << 21, []byte{0x81, 0x80, 0x80, 0x00}},
	}
	for _, c := range cases {
		w := imaf.NewWriter(nil)
		w.PutVlen(c.v)
		require.Equal(t, c.want, w.Bytes(), "vlen(%d)", c.v)
	}
}

func TestPackLanguage(t *testing.T) {
	v, err := imaf.PackLanguage("eng")
	require.NoError(t, err)
	require.Equal(t, uint16(0x15C7), v)
	require.Equal(t, "eng", imaf.UnpackLanguage(v))

	_, err = imaf.PackLanguage("EN")
	require.ErrorIs(t, err, imaf.ErrValidation)
	_, err = imaf.PackLanguage("e1g")
	require.ErrorIs(t, err, imaf.ErrValidation)

	require.Equal(t, "und", imaf.UnpackLanguage(0))
}

func TestPutTagTruncatesTo7Bits(t *testing.T) {
	w := imaf.NewWriter(nil)
	w.PutTag("ab\xE9d")
	require.Equal(t, []byte{'a', 'b', 0xE9 & 0x7F, 'd'}, w.Bytes())
}

func TestPutCString(t *testing.T) {
	w := imaf.NewWriter(nil)
	w.PutCString("mix")
	require.Equal(t, []byte{'m', 'i', 'x', 0}, w.Bytes())
}
