package resp

import (
	"fmt"
	"strconv"
)

// Encode serializes v into its canonical RESP wire form. Every Value
// produced by this package round-trips through Decode.
func Encode(v Value) []byte {
	switch v.Kind {
	case SimpleString:
		return []byte("+" + v.Str + "\r\n")
	case Error:
		return []byte("-" + v.Str + "\r\n")
	case Integer:
		return []byte(":" + strconv.FormatInt(v.Int, 10) + "\r\n")
	case BulkString:
		if v.Bulk == nil {
			return []byte("$-1\r\n")
		}
		out := make([]byte, 0, len(v.Bulk)+16)
		out = append(out, '$')
		out = strconv.AppendInt(out, int64(len(v.Bulk)), 10)
		out = append(out, '\r', '\n')
		out = append(out, v.Bulk...)
		out = append(out, '\r', '\n')
		return out
	case Array:
		if v.NullArr {
			return []byte("*-1\r\n")
		}
		out := make([]byte, 0, 64)
		out = append(out, '*')
		out = strconv.AppendInt(out, int64(len(v.Array)), 10)
		out = append(out, '\r', '\n')
		for _, el := range v.Array {
			out = append(out, Encode(el)...)
		}
		return out
	default:
		panic(fmt.Sprintf("resp: unknown Kind %d", v.Kind))
	}
}

// EncodeErrorf builds and encodes a Simple Error frame in one call, the way
// every command handler in this module reports a failure.
func EncodeErrorf(format string, args ...interface{}) []byte {
	return Encode(NewError(fmt.Sprintf(format, args...)))
}
