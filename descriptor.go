package imaf

// MPEG-4 descriptor support for esds boxes: enough of ISO 14496-1 to write
// an ES descriptor for an audio sample entry and to read the object type
// indication and decoder configuration back out.

// Descriptor tags.
const (
	tagESDescriptor        = 0x03
	tagDecoderConfig       = 0x04
	tagDecoderSpecificInfo = 0x05
	tagSLConfig            = 0x06
)

// Object type indications (ISO 14496-1, table 5).
const (
	OTIAudioISO14496 = 0x40 // MPEG-4 audio (AAC)
	OTIAudioISO11172 = 0x6B // MPEG-1 audio layer III carried in mp4a
)

const (
	streamTypeAudio = 0x05
)

// WriteESDescriptor writes an esds payload (after the full box header)
// describing an audio elementary stream: ES descriptor wrapping a decoder
// config with the given object type indication, the decoder-specific info
// when present, and an SL config. Descriptor lengths use the base-128
// variable-length form.
func (w *Writer) WriteESDescriptor(esID uint16, oti byte, decoderSpecific []byte) {
	dsiLen := len(decoderSpecific)
	dcdLen := 13
	if dsiLen > 0 {
		dcdLen += 1 + vlenSize(uint32(dsiLen)) + dsiLen
	}
	esLen := 3 + 1 + vlenSize(uint32(dcdLen)) + dcdLen + 3

	w.PutU8(tagESDescriptor)
	w.PutVlen(uint32(esLen))
	w.PutU16(esID)
	w.PutU8(0) // no dependencies, no URL, no OCR

	w.PutU8(tagDecoderConfig)
	w.PutVlen(uint32(dcdLen))
	w.PutU8(oti)
	w.PutU8(streamTypeAudio<<2 | 0x01) // stream type, reserved bit
	w.PutU24(0)                        // buffer size
	w.PutU32(0)                        // max bitrate
	w.PutU32(0)                        // avg bitrate
	if dsiLen > 0 {
		w.PutU8(tagDecoderSpecificInfo)
		w.PutVlen(uint32(dsiLen))
		w.PutBytes(decoderSpecific)
	}

	w.PutU8(tagSLConfig)
	w.PutVlen(1)
	w.PutU8(0x02) // predefined: MP4 file
}

// ParseESDescriptor extracts the object type indication and the
// decoder-specific info bytes from an esds payload. Both return values are
// zero when the descriptor chain cannot be followed.
func ParseESDescriptor(data []byte) (oti byte, decoderSpecific []byte) {
	ptr, end := 0, len(data)
	if ptr >= end || data[ptr] != tagESDescriptor {
		return 0, nil
	}
	_, ptr = readVlen(data, ptr+1, end)
	if ptr < 0 || ptr+3 > end {
		return 0, nil
	}
	flags := data[ptr+2]
	ptr += 3
	if flags&0x80 != 0 { // stream dependency
		ptr += 2
	}
	if flags&0x40 != 0 { // URL
		if ptr >= end {
			return 0, nil
		}
		ptr += 1 + int(data[ptr])
	}
	if flags&0x20 != 0 { // OCR stream
		ptr += 2
	}
	if ptr >= end || data[ptr] != tagDecoderConfig {
		return 0, nil
	}
	_, ptr = readVlen(data, ptr+1, end)
	if ptr < 0 || ptr+13 > end {
		return 0, nil
	}
	oti = data[ptr]
	ptr += 13
	if ptr >= end || data[ptr] != tagDecoderSpecificInfo {
		return oti, nil
	}
	dsiLen, ptr := readVlen(data, ptr+1, end)
	if ptr < 0 {
		return oti, nil
	}
	dsiEnd := ptr + int(dsiLen)
	if dsiEnd > end {
		dsiEnd = end
	}
	return oti, data[ptr:dsiEnd]
}
