package imaf

import (
	"fmt"
	"math"
)

// CheckU32 converts v to uint32, failing with ErrRange when v does not fit.
func CheckU32(v uint64) (uint32, error) {
	if v > uint32Max {
		return 0, fmt.Errorf("%w: %d does not fit in 32 bits", ErrRange, v)
	}
	return uint32(v), nil
}

// Fixed1616 converts v to Q16.16 fixed point, rounding to the nearest
// integer representation.
func Fixed1616(v float64) (uint32, error) {
	r := math.Round(v * 65536)
	if r < 0 || r > uint32Max {
		return 0, fmt.Errorf("%w: %g does not fit in Q16.16", ErrRange, v)
	}
	return uint32(r), nil
}

// Fixed88 converts v to signed Q8.8 fixed point, rounding to the nearest
// integer representation.
func Fixed88(v float64) (int16, error) {
	r := math.Round(v * 256)
	if r < math.MinInt16 || r > math.MaxInt16 {
		return 0, fmt.Errorf("%w: %g does not fit in Q8.8", ErrRange, v)
	}
	return int16(r), nil
}

// Fixed88Float converts a signed Q8.8 value back to a float.
func Fixed88Float(v int16) float64 {
	return float64(v) / 256
}

// appendVlen appends v as a big-endian base-128 quantity: 7 payload bits per
// byte, high bit set on every byte except the last.
func appendVlen(dst []byte, v uint32) []byte {
	n := 1
	for x := v >> 7; x != 0; x >>= 7 {
		n++
	}
	for i := n - 1; i >= 1; i-- {
		dst = append(dst, byte(v>>(uint(i)*7))|0x80)
	}
	return append(dst, byte(v)&0x7f)
}

// vlenSize returns the encoded length of v in bytes.
func vlenSize(v uint32) int {
	n := 1
	for x := v >> 7; x != 0; x >>= 7 {
		n++
	}
	return n
}

// readVlen decodes a base-128 quantity from data[ptr:end]. It returns the
// value and the offset past its last byte, or -1 when data runs out.
func readVlen(data []byte, ptr, end int) (uint32, int) {
	var v uint32
	for ptr < end {
		b := data[ptr]
		ptr++
		v = v<<7 | uint32(b&0x7f)
		if b&0x80 == 0 {
			return v, ptr
		}
	}
	return 0, -1
}

// PackLanguage packs a 3-letter ISO 639-2/T code into the 15-bit triple used
// by mdhd. Codes that are not three lowercase letters fail validation.
func PackLanguage(code string) (uint16, error) {
	if len(code) != 3 {
		return 0, fmt.Errorf("%w: language %q is not a 3-letter code", ErrValidation, code)
	}
	var v uint16
	for i := 0; i < 3; i++ {
		c := code[i]
		if c < 'a' || c > 'z' {
			return 0, fmt.Errorf("%w: language %q is not lowercase ASCII", ErrValidation, code)
		}
		v = v<<5 | uint16(c-0x60)
	}
	return v, nil
}

// UnpackLanguage expands a packed mdhd language triple. Values outside the
// letter range decode to "und".
func UnpackLanguage(v uint16) string {
	var b [3]byte
	for i := 2; i >= 0; i-- {
		c := byte(v&0x1f) + 0x60
		if c < 'a' || c > 'z' {
			return "und"
		}
		b[i] = c
		v >>= 5
	}
	return string(b[:])
}

// readCString reads a NUL-terminated UTF-8 string from data[ptr:]. It
// returns the string and the offset past the terminator. A missing
// terminator or a string longer than maxLen is an error.
func readCString(data []byte, ptr, maxLen int) (string, int, error) {
	end := ptr
	for end < len(data) && data[end] != 0 {
		end++
	}
	if end == len(data) {
		return "", 0, fmt.Errorf("%w: unterminated string", ErrCorruptData)
	}
	if end-ptr > maxLen {
		return "", 0, fmt.Errorf("%w: string of %d bytes", ErrLimitExceeded, end-ptr)
	}
	return string(data[ptr:end]), end + 1, nil
}
