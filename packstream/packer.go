package packstream

// Packer serialises dynamic values onto a Buffer using the tag-byte
// grammar. Values are plain Go types: nil, bool, int, int8-int64 and
// uint8-uint32 (always packed as the narrowest wire width able to hold
// them; uint, uint64 and uintptr are rejected), float64, string,
// []any, map[string]any, and *Struct for protocol messages or any graph
// structure the caller wants to pass through opaquely.
type Packer struct {
	buf Buffer
}

func NewPacker(buf Buffer) *Packer {
	return &Packer{buf: buf}
}

// Pack writes v to the underlying buffer, choosing the grammar production
// that matches its Go type.
func (p *Packer) Pack(v any) error {
	switch val := v.(type) {
	case nil:
		return p.buf.WriteU8(MarkerNull)
	case bool:
		return p.packBool(val)
	case int:
		return p.PackInt(int64(val))
	case int8:
		return p.PackInt(int64(val))
	case int16:
		return p.PackInt(int64(val))
	case int32:
		return p.PackInt(int64(val))
	case int64:
		return p.PackInt(val)
	case uint8:
		return p.PackInt(int64(val))
	case uint16:
		return p.PackInt(int64(val))
	case uint32:
		return p.PackInt(int64(val))
	case float64:
		return p.packFloat(val)
	case float32:
		return p.packFloat(float64(val))
	case string:
		return p.packString(val)
	case []any:
		return p.packList(val)
	case map[string]any:
		return p.packMap(val)
	case *Struct:
		return p.packStruct(val.Signature, val.Fields)
	default:
		return newEncodingError("unsupported value type %T", v)
	}
}

func (p *Packer) packBool(v bool) error {
	if v {
		return p.buf.WriteU8(MarkerTrue)
	}
	return p.buf.WriteU8(MarkerFalse)
}

// PackInt chooses the shortest encoding able to represent v: the tiny
// range [-16, 127] first, then int8, int16, int32, int64.
func (p *Packer) PackInt(v int64) error {
	switch {
	case v >= -16 && v <= tinyPositiveMax:
		return p.buf.WriteU8(byte(v))
	case v >= -128 && v <= 127:
		if err := p.buf.WriteU8(MarkerInt8); err != nil {
			return err
		}
		return p.buf.WriteI8(int8(v))
	case v >= -32768 && v <= 32767:
		if err := p.buf.WriteU8(MarkerInt16); err != nil {
			return err
		}
		return p.buf.WriteI16(int16(v))
	case v >= -2147483648 && v <= 2147483647:
		if err := p.buf.WriteU8(MarkerInt32); err != nil {
			return err
		}
		return p.buf.WriteI32(int32(v))
	default:
		if err := p.buf.WriteU8(MarkerInt64); err != nil {
			return err
		}
		return p.buf.WriteI64(v)
	}
}

func (p *Packer) packFloat(v float64) error {
	if err := p.buf.WriteU8(MarkerFloat64); err != nil {
		return err
	}
	return p.buf.WriteF64(v)
}

func (p *Packer) packString(s string) error {
	n := len(s)
	if err := p.packSize(n, MarkerTinyStringBase, MarkerString8, MarkerString16, MarkerString32); err != nil {
		return err
	}
	return p.buf.WriteBytes([]byte(s))
}

func (p *Packer) packList(items []any) error {
	n := len(items)
	if err := p.packSize(n, MarkerTinyListBase, MarkerList8, MarkerList16, MarkerList32); err != nil {
		return err
	}
	for _, item := range items {
		if err := p.Pack(item); err != nil {
			return err
		}
	}
	return nil
}

// packMap writes entries in Go's (randomised) map iteration order — the
// wire format does not assign meaning to key order, only to the final
// key->value association, so this satisfies "iteration order of the source
// mapping" without needing a deterministic map type.
func (p *Packer) packMap(m map[string]any) error {
	n := len(m)
	if err := p.packSize(n, MarkerTinyMapBase, MarkerMap8, MarkerMap16, MarkerMap32); err != nil {
		return err
	}
	for k, v := range m {
		if err := p.packString(k); err != nil {
			return err
		}
		if err := p.Pack(v); err != nil {
			return err
		}
	}
	return nil
}

func (p *Packer) packStruct(signature byte, fields []any) error {
	n := len(fields)
	if n > maxStructSize {
		return newEncodingError("struct field count %d exceeds %d", n, maxStructSize)
	}
	if n <= maxTinySize {
		if err := p.buf.WriteU8(byte(MarkerTinyStructBase | n)); err != nil {
			return err
		}
	} else if n <= 0xFF {
		if err := p.buf.WriteU8(MarkerStruct8); err != nil {
			return err
		}
		if err := p.buf.WriteU8(byte(n)); err != nil {
			return err
		}
	} else {
		if err := p.buf.WriteU8(MarkerStruct16); err != nil {
			return err
		}
		if err := p.buf.WriteI16(int16(uint16(n))); err != nil {
			return err
		}
	}
	if err := p.buf.WriteU8(signature); err != nil {
		return err
	}
	for _, f := range fields {
		if err := p.Pack(f); err != nil {
			return err
		}
	}
	return nil
}

// PackStruct is the public entry point for message/graph-structure values:
// Message{Signature, Fields} and friends build a *Struct and call Pack, but
// code that already has signature+fields apart can call this directly.
func (p *Packer) PackStruct(signature byte, fields []any) error {
	return p.packStruct(signature, fields)
}

func (p *Packer) packSize(n int, tinyBase, m8, m16, m32 byte) error {
	if n < 0 || uint64(n) > maxContainer {
		return newEncodingError("container size %d exceeds %d", n, maxContainer)
	}
	switch {
	case n <= maxTinySize:
		return p.buf.WriteU8(byte(int(tinyBase) | n))
	case n <= 0xFF:
		if err := p.buf.WriteU8(m8); err != nil {
			return err
		}
		return p.buf.WriteU8(byte(n))
	case n <= 0xFFFF:
		if err := p.buf.WriteU8(m16); err != nil {
			return err
		}
		return p.buf.WriteI16(int16(uint16(n)))
	default:
		if err := p.buf.WriteU8(m32); err != nil {
			return err
		}
		return p.buf.WriteI32(int32(uint32(n)))
	}
}
