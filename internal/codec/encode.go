package codec

import (
	"encoding/binary"
	"math"
)

// Marshal encodes a single top-level value (almost always a Mapping)
// into its tagged representation: tag(1) || length(8 LE) || payload.
func Marshal(v any) ([]byte, error) {
	tag, payload, err := encodeValue(v)
	if err != nil {
		return nil, err
	}
	return frame(tag, payload), nil
}

func frame(tag Tag, payload []byte) []byte {
	out := make([]byte, 0, 9+len(payload))
	out = append(out, byte(tag))
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(payload)))
	out = append(out, lenBuf[:]...)
	out = append(out, payload...)
	return out
}

func encodeValue(v any) (Tag, []byte, error) {
	switch x := v.(type) {
	case nil:
		return TagNull, []byte{0x00}, nil
	case bool:
		if x {
			return TagBool, []byte{0x01}, nil
		}
		return TagBool, []byte{0x00}, nil
	case int:
		return TagInt, encodeInt(int64(x)), nil
	case int64:
		return TagInt, encodeInt(x), nil
	case float32:
		return TagFloat32, encodeFloat32(x), nil
	case string:
		return TagText, []byte(x), nil
	case []byte:
		return TagBytes, x, nil
	case List:
		payload, err := encodeElements([]any(x))
		return TagList, payload, err
	case []any:
		payload, err := encodeElements(x)
		return TagList, payload, err
	case Tuple:
		payload, err := encodeElements([]any(x))
		return TagTuple, payload, err
	case Mapping:
		return encodeMapping(x)
	default:
		return 0, nil, errf("codec: unsupported value type %T", v)
	}
}

func encodeElements(elems []any) ([]byte, error) {
	var out []byte
	for _, e := range elems {
		tag, payload, err := encodeValue(e)
		if err != nil {
			return nil, err
		}
		out = append(out, frame(tag, payload)...)
	}
	return out, nil
}

func encodeMapping(m Mapping) (Tag, []byte, error) {
	pairs := make([]any, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, List{k, v})
	}
	payload, err := encodeElements(pairs)
	return TagMapping, payload, err
}

func encodeFloat32(f float32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], math.Float32bits(f))
	return buf[:]
}

// encodeInt renders v as little-endian two's complement using the
// minimum byte length that keeps the sign bit intact: for each
// candidate length n (starting at 1), v must fit in the signed range
// representable by n bytes.
func encodeInt(v int64) []byte {
	n := 1
	for !fitsSigned(v, n) {
		n++
	}
	out := make([]byte, n)
	uv := uint64(v)
	for i := 0; i < n; i++ {
		out[i] = byte(uv)
		uv >>= 8
	}
	return out
}

func fitsSigned(v int64, n int) bool {
	if n >= 8 {
		return true
	}
	bits := uint(n * 8)
	min := -(int64(1) << (bits - 1))
	max := (int64(1) << (bits - 1)) - 1
	return v >= min && v <= max
}
