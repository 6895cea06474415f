// Package imaf implements encoding and decoding of ISO Base Media File Format
// containers carrying IMAF (ISO/IEC 23000-12) extension boxes.
//
// The package operates on in-memory byte buffers only. Reader walks a box
// tree, Writer builds one, and the sample-table and extension codecs sit on
// top of both. Assembling and reading whole containers from Track records
// lives in the track subpackage.
package imaf

import (
	"encoding/binary"
	"math"
)

var be = binary.BigEndian

const uint32Max = math.MaxUint32

// BoxType is a 4-byte box type identifier.
type BoxType [4]byte

func (t BoxType) String() string {
	return string(t[:])
}

// newBoxType creates a BoxType from a 4-character string.
func newBoxType(s string) BoxType {
	var t BoxType
	copy(t[:], s)
	return t
}

// Known box types.
var (
	TypeFtyp = newBoxType("ftyp")
	TypeMoov = newBoxType("moov")
	TypeMvhd = newBoxType("mvhd")
	TypeTrak = newBoxType("trak")
	TypeTkhd = newBoxType("tkhd")
	TypeMdia = newBoxType("mdia")
	TypeMdhd = newBoxType("mdhd")
	TypeHdlr = newBoxType("hdlr")
	TypeMinf = newBoxType("minf")
	TypeSmhd = newBoxType("smhd")
	TypeNmhd = newBoxType("nmhd")
	TypeDinf = newBoxType("dinf")
	TypeDref = newBoxType("dref")
	TypeURL  = newBoxType("url ")
	TypeStbl = newBoxType("stbl")
	TypeStsd = newBoxType("stsd")
	TypeStts = newBoxType("stts")
	TypeStsc = newBoxType("stsc")
	TypeStsz = newBoxType("stsz")
	TypeStco = newBoxType("stco")
	TypeCo64 = newBoxType("co64")
	TypeUdta = newBoxType("udta")
	TypeMeta = newBoxType("meta")
	TypeXML  = newBoxType("xml ")
	TypeMdat = newBoxType("mdat")
	TypeFree = newBoxType("free")

	TypeMp4a = newBoxType("mp4a")
	TypeEsds = newBoxType("esds")
	TypeChan = newBoxType("chan")
	TypeTx3g = newBoxType("tx3g")
	TypeFtab = newBoxType("ftab")

	// IMAF extension boxes.
	TypeGrco = newBoxType("grco")
	TypeGrup = newBoxType("grup")
	TypePrco = newBoxType("prco")
	TypePrst = newBoxType("prst")
	TypeRuco = newBoxType("ruco")
	TypeRusc = newBoxType("rusc")
	TypeRumx = newBoxType("rumx")
)

// File type brands and handler subtypes.
var (
	BrandIsom = newBoxType("isom")
	BrandMp42 = newBoxType("mp42")

	HandlerSoun = newBoxType("soun")
	HandlerText = newBoxType("text")
)

// fullBoxes is the set of box types that carry version+flags in their header.
// meta is listed here so that its 4-byte version/flags field is consumed as
// header everywhere children are enumerated.
var fullBoxes = map[BoxType]bool{
	TypeMvhd: true, TypeTkhd: true, TypeMdhd: true, TypeHdlr: true,
	TypeSmhd: true, TypeNmhd: true, TypeStsd: true, TypeDref: true,
	TypeURL: true, TypeStts: true, TypeStsc: true, TypeStsz: true,
	TypeStco: true, TypeCo64: true, TypeMeta: true, TypeXML: true,
	TypeEsds: true,
	TypeGrup: true, TypePrst: true, TypeRusc: true, TypeRumx: true,
}

// containerBoxes is the set of pure container types whose payload is a box
// sequence starting at offset 0. meta qualifies too but gets its extra
// header bytes through fullBoxes above; grco/prco/ruco carry count fields
// before their children and are decoded by the extension codec instead.
var containerBoxes = map[BoxType]bool{
	TypeMoov: true, TypeTrak: true, TypeMdia: true, TypeMinf: true,
	TypeDinf: true, TypeStbl: true, TypeUdta: true, TypeMeta: true,
}

// IsFullBox reports whether boxes of type t carry a version+flags header.
func IsFullBox(t BoxType) bool { return fullBoxes[t] }

// IsContainerBox reports whether boxes of type t contain child boxes
// immediately after the header.
func IsContainerBox(t BoxType) bool { return containerBoxes[t] }
