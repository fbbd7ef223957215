package packstream

import "unicode/utf8"

// EncodeUTF8 returns a new contiguous buffer holding s's UTF-8 bytes.
func EncodeUTF8(s string) *Contiguous {
	return NewContiguous([]byte(s))
}

// DecodeUTF8 reads exactly n bytes from buf's current position, advances
// the position by that amount, and returns the decoded string. Validity is
// checked against the fully read byte slice rather than incrementally
// across sub-buffer boundaries; on a Composed buffer this costs one copy
// of the n bytes (see Composed.ReadBytes), which is fine
// at the field sizes this protocol actually sends (strings, not blobs).
func DecodeUTF8(buf Buffer, n int) (string, error) {
	raw, err := buf.ReadBytes(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", newDecodingError("invalid UTF-8 in %d-byte string", n)
	}
	return string(raw), nil
}
