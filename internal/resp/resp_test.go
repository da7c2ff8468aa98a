package resp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		v    Value
	}{
		{"simple string", NewSimpleString("OK")},
		{"error", NewError("ERR boom")},
		{"integer", NewInteger(-42)},
		{"bulk string", NewBulkStringFromString("hello")},
		{"empty bulk string", NewBulkStringFromString("")},
		{"null bulk", NullBulk()},
		{"null array", NullArray()},
		{"empty array", NewArray(nil)},
		{"command array", CommandFrame("SET", "k", "v")},
		{"nested array", NewArray([]Value{NewInteger(1), NewArray([]Value{NewSimpleString("x")})})},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded := Encode(tc.v)
			decoded, n, err := Decode(encoded)
			require.NoError(t, err)
			assert.Equal(t, len(encoded), n)
			assert.Equal(t, Encode(decoded), encoded)
		})
	}
}

func TestDecodeIncompleteNeverConsumes(t *testing.T) {
	full := Encode(CommandFrame("SET", "key", "value"))

	for i := 0; i < len(full); i++ {
		_, n, err := Decode(full[:i])
		assert.ErrorIsf(t, err, ErrIncomplete, "prefix length %d", i)
		assert.Equal(t, 0, n)
	}

	v, n, err := Decode(full)
	require.NoError(t, err)
	assert.Equal(t, len(full), n)
	args, err := v.AsCommand()
	require.NoError(t, err)
	assert.Equal(t, []string{"SET", "key", "value"}, args)
}

func TestDecodeBulkStringRejectsMissingCRLF(t *testing.T) {
	_, _, err := Decode([]byte("$3\r\nabcXX"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrIncomplete)
}

func TestAsCommandRejectsNonArray(t *testing.T) {
	_, err := NewSimpleString("PING").AsCommand()
	assert.Error(t, err)
}

func TestAsCommandRejectsNonBulkElements(t *testing.T) {
	v := NewArray([]Value{NewInteger(1)})
	_, err := v.AsCommand()
	assert.Error(t, err)
}

func TestPipelinedFramesDecodeSequentially(t *testing.T) {
	buf := append(Encode(CommandFrame("SET", "a", "1")), Encode(CommandFrame("SET", "b", "2"))...)

	first, n1, err := Decode(buf)
	require.NoError(t, err)
	args1, _ := first.AsCommand()
	assert.Equal(t, []string{"SET", "a", "1"}, args1)

	second, n2, err := Decode(buf[n1:])
	require.NoError(t, err)
	args2, _ := second.AsCommand()
	assert.Equal(t, []string{"SET", "b", "2"}, args2)
	assert.Equal(t, len(buf), n1+n2)
}
