// Package rdb reads just enough of the RDB snapshot format to satisfy the
// replication handshake: the "REDIS<version>" header, and an optional
// trailing CRC64 checksum check. Parsing a received body back into records
// is out of scope — a follower only needs to validate what it received
// before discarding or keeping it opaque; it catches up via the live
// command stream that follows FULLRESYNC, not by replaying the snapshot.
package rdb

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"hash/crc64"

	"redisreplica/internal/store"
)

const (
	magic      = "REDIS"
	headerSize = len(magic) + 4 // magic + 4-digit version
	crc64Size  = 8
)

var crc64Table = crc64.MakeTable(crc64.ECMA)

// emptySnapshotB64 is a hard-coded minimal valid RDB: "REDIS0011" followed
// by the EOF opcode (0xFF) and an all-zero 8-byte checksum trailer — a
// zero checksum is the documented "checksum disabled" sentinel, so this
// decodes and verifies as a legitimate, if empty, snapshot.
const emptySnapshotB64 = "UkVESVMwMDEx/wAAAAAAAAAA"

// EmptySnapshot returns the built-in empty RDB payload, kept as a fixture
// for the header and checksum checks. Encode of an empty keyspace writes
// the same header and EOF opcode but a computed checksum instead of the
// zero trailer.
func EmptySnapshot() []byte {
	b, err := base64.StdEncoding.DecodeString(emptySnapshotB64)
	if err != nil {
		panic("rdb: invalid built-in empty snapshot: " + err.Error())
	}
	return b
}

const (
	opcodeEOF  = 0xFF
	typeString = 0x00
	typeList   = 0x01
)

// Encode serializes a live keyspace snapshot (as produced by
// store.Store.Snapshot) into an RDB-shaped payload: the header, one record
// per key (type byte, TTL as unix-millis or 0 for none, length-prefixed key,
// length-prefixed value or element list), the EOF opcode, and a real CRC64
// trailer computed over everything before it. This is what PSYNC serves a
// freshly-attached follower; the follower itself never parses past the
// header and checksum (see the package doc), so the record layout only has
// to round-trip through Version/VerifyChecksum, not a full reader.
func Encode(entries map[string]store.Value) []byte {
	var buf bytes.Buffer
	buf.WriteString(magic)
	buf.WriteString("0011")

	for key, v := range entries {
		var ttlMs uint64
		if !v.ExpiresAt.IsZero() {
			ttlMs = uint64(v.ExpiresAt.UnixMilli())
		}

		switch v.Kind {
		case store.KindList:
			buf.WriteByte(typeList)
			writeUint64(&buf, ttlMs)
			writeBytes(&buf, []byte(key))
			writeUint64(&buf, uint64(len(v.List)))
			for _, el := range v.List {
				writeBytes(&buf, el)
			}
		default:
			buf.WriteByte(typeString)
			writeUint64(&buf, ttlMs)
			writeBytes(&buf, []byte(key))
			writeBytes(&buf, v.Str)
		}
	}
	buf.WriteByte(opcodeEOF)

	trailer := make([]byte, crc64Size)
	binary.LittleEndian.PutUint64(trailer, crc64.Checksum(buf.Bytes(), crc64Table))
	buf.Write(trailer)

	return buf.Bytes()
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUint64(buf, uint64(len(b)))
	buf.Write(b)
}

// Version reads and validates the "REDIS" magic plus the 4-character
// version string from the start of data, returning the version digits.
func Version(data []byte) (string, error) {
	if len(data) < headerSize {
		return "", fmt.Errorf("rdb: snapshot too short for header")
	}
	if string(data[:len(magic)]) != magic {
		return "", fmt.Errorf("rdb: bad magic %q", data[:len(magic)])
	}
	return string(data[len(magic):headerSize]), nil
}

// VerifyChecksum checks the trailing 8-byte little-endian CRC64/ECMA
// checksum against everything preceding it, per the teacher's
// loadRDBIntoStore. A checksum of zero means "disabled" and always
// verifies — real Redis writes zero there when checksums are turned off.
// Mismatches are reported, not fatal: callers should log and continue,
// since this module never depends on the snapshot body being correct.
func VerifyChecksum(data []byte) (bool, error) {
	if len(data) < headerSize+crc64Size {
		return false, fmt.Errorf("rdb: snapshot too short for checksum trailer")
	}
	body := data[:len(data)-crc64Size]
	trailer := data[len(data)-crc64Size:]
	want := binary.LittleEndian.Uint64(trailer)
	if want == 0 {
		return true, nil
	}
	got := crc64.Checksum(body, crc64Table)
	return got == want, nil
}
