package rdb

import (
	"encoding/binary"
	"hash/crc64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redisreplica/internal/store"
)

func TestEmptySnapshotIsValid(t *testing.T) {
	snap := EmptySnapshot()

	version, err := Version(snap)
	require.NoError(t, err)
	assert.Equal(t, "0011", version)

	ok, err := VerifyChecksum(snap)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVersionRejectsBadMagic(t *testing.T) {
	_, err := Version([]byte("NOTREDIS0011"))
	assert.Error(t, err)
}

func TestVerifyChecksumDetectsCorruption(t *testing.T) {
	table := crc64.MakeTable(crc64.ECMA)
	body := []byte("REDIS0011\xffpayload")
	sum := crc64.Checksum(body, table)

	trailer := make([]byte, 8)
	binary.LittleEndian.PutUint64(trailer, sum)
	good := append(append([]byte{}, body...), trailer...)

	ok, err := VerifyChecksum(good)
	require.NoError(t, err)
	assert.True(t, ok)

	corrupted := append([]byte{}, good...)
	corrupted[len(body)-1] ^= 0xFF // flip a payload byte after the checksum was computed
	ok, err = VerifyChecksum(corrupted)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyChecksumZeroMeansDisabled(t *testing.T) {
	data := append([]byte("REDIS0011\xff"), make([]byte, 8)...)
	ok, err := VerifyChecksum(data)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEncodeOfEmptyKeyspaceIsValid(t *testing.T) {
	snap := Encode(map[string]store.Value{})

	version, err := Version(snap)
	require.NoError(t, err)
	assert.Equal(t, "0011", version)

	ok, err := VerifyChecksum(snap)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEncodeCarriesLiveKeyspaceBytes(t *testing.T) {
	entries := map[string]store.Value{
		"greeting": {Kind: store.KindString, Str: []byte("hello")},
		"ttlkey":   {Kind: store.KindString, Str: []byte("soon"), ExpiresAt: time.Now().Add(time.Minute)},
		"mylist":   {Kind: store.KindList, List: [][]byte{[]byte("a"), []byte("b")}},
	}

	snap := Encode(entries)

	version, err := Version(snap)
	require.NoError(t, err)
	assert.Equal(t, "0011", version)

	ok, err := VerifyChecksum(snap)
	require.NoError(t, err)
	assert.True(t, ok, "checksum must cover the real keyspace bytes, not just the header")

	assert.Contains(t, string(snap), "greeting")
	assert.Contains(t, string(snap), "hello")
	assert.Contains(t, string(snap), "mylist")

	corrupted := append([]byte{}, snap...)
	corrupted[len(corrupted)-9] ^= 0xFF // flip a byte just before the trailer
	ok, err = VerifyChecksum(corrupted)
	require.NoError(t, err)
	assert.False(t, ok)
}
