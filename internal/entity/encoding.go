package entity

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ankurah/ankurah/internal/value"
)

// writeUvarint/writeBytes/readBytes are the length-prefix framing shared by
// the lww and yrs backend diff/state codecs.
func writeUvarint(buf *bytes.Buffer, n uint64) {
	var tmp [binary.MaxVarintLen64]byte
	w := binary.PutUvarint(tmp[:], n)
	buf.Write(tmp[:w])
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUvarint(buf, uint64(len(b)))
	buf.Write(b)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func encodeValue(v value.Value) []byte { return value.Encode(v) }

func decodeValue(t value.Type, b []byte) (value.Value, error) {
	v, err := value.Decode(t, b)
	if err != nil {
		return value.Value{}, fmt.Errorf("entity: %w", err)
	}
	return v, nil
}
