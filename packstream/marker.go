package packstream

// Marker bytes for the tag-first wire grammar. Tiny ranges are not listed
// individually; Packer/Unpacker compute them from the tag byte directly.
const (
	MarkerTinyStringBase = 0x80
	MarkerTinyListBase   = 0x90
	MarkerTinyMapBase    = 0xA0
	MarkerTinyStructBase = 0xB0

	MarkerNull    = 0xC0
	MarkerFloat64 = 0xC1
	MarkerFalse   = 0xC2
	MarkerTrue    = 0xC3

	MarkerInt8  = 0xC8
	MarkerInt16 = 0xC9
	MarkerInt32 = 0xCA
	MarkerInt64 = 0xCB

	MarkerString8  = 0xD0
	MarkerString16 = 0xD1
	MarkerString32 = 0xD2

	MarkerList8  = 0xD4
	MarkerList16 = 0xD5
	MarkerList32 = 0xD6

	MarkerMap8  = 0xD8
	MarkerMap16 = 0xD9
	MarkerMap32 = 0xDA

	MarkerStruct8  = 0xDC
	MarkerStruct16 = 0xDD

	tinyPositiveMax = 0x7F
	tinyNegativeMin = 0xF0

	maxTinySize   = 0x0F
	maxContainer  = 1<<32 - 1
	maxStructSize = 1<<16 - 1
)

// Struct is the wire-opaque representation of any tagged structure whose
// signature has no registered mapper: protocol messages before dispatch,
// and any graph-typed value this module does not materialise itself.
type Struct struct {
	Signature byte
	Fields    []any
}
