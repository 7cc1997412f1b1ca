// Package encoding converts between UTF-8 strings and the fixed-size,
// null-padded Latin-1 fields used by printer file headers.
package encoding

import (
	"bytes"
	"errors"
	"fmt"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Fixed field errors.
var (
	ErrFieldOverflow = errors.New("value does not fit fixed-size field")
	ErrUnencodable   = errors.New("value has characters outside Latin-1")
)

// UTF8ToLatin1 converts s to Latin-1 bytes.
func UTF8ToLatin1(s string) ([]byte, error) {
	out, _, err := transform.Bytes(charmap.ISO8859_1.NewEncoder(), []byte(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnencodable, s)
	}
	return out, nil
}

// Latin1ToUTF8 converts Latin-1 bytes to a UTF-8 string.
// Returns the original bytes as a string if conversion fails.
func Latin1ToUTF8(data []byte) string {
	out, _, err := transform.Bytes(charmap.ISO8859_1.NewDecoder(), data)
	if err != nil {
		return string(data)
	}
	return string(out)
}

// FixedString encodes s into a null-padded field of exactly size bytes.
// A value longer than the field is an error, never truncated.
func FixedString(s string, size int) ([]byte, error) {
	encoded, err := UTF8ToLatin1(s)
	if err != nil {
		return nil, err
	}
	if len(encoded) > size {
		return nil, fmt.Errorf("%w: %q is %d bytes, field holds %d", ErrFieldOverflow, s, len(encoded), size)
	}
	field := make([]byte, size)
	copy(field, encoded)
	return field, nil
}

// PutFixedString encodes s into dst, which is cleared first.
func PutFixedString(dst []byte, s string) error {
	field, err := FixedString(s, len(dst))
	if err != nil {
		return err
	}
	copy(dst, field)
	return nil
}

// FixedStringToUTF8 decodes a null-terminated Latin-1 field.
func FixedStringToUTF8(data []byte) string {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	return Latin1ToUTF8(data)
}
