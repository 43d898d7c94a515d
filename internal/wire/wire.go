package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const (
	version   byte = 1
	kindEntry byte = 1
)

const hdrLen = 4 + 1 + 1 + 8 + 8 + 8 + 4

var (
	ErrCorrupt = errors.New("tradesync: corrupt cache entry")
	magic4     = [...]byte{'T', 'S', 'C', 'E'}
)

// Entry is one cached value with the generations it was written under.
type Entry struct {
	Gen       uint64
	Epoch     uint64
	FetchedAt time.Time
	Payload   []byte
}

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Encode lays out:
//
//	magic(4) | ver(1) | kind(1) | gen(u64 be) | epoch(u64 be) | fetchedAt(i64 be, unix nanos) | vlen(u32 be) | payload(vlen)
func Encode(e Entry) []byte {
	var buf bytes.Buffer
	buf.Grow(hdrLen + len(e.Payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindEntry)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], e.Gen)
	buf.Write(u8[:])
	binary.BigEndian.PutUint64(u8[:], e.Epoch)
	buf.Write(u8[:])
	binary.BigEndian.PutUint64(u8[:], uint64(e.FetchedAt.UnixNano()))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(e.Payload)))
	buf.Write(u4[:])

	buf.Write(e.Payload)
	return buf.Bytes()
}

// Decode parses a frame produced by Encode. Payload aliases b.
func Decode(b []byte) (Entry, error) {
	if len(b) < hdrLen || !hasMagic(b) || b[4] != version || b[5] != kindEntry {
		return Entry{}, ErrCorrupt
	}

	off := 6
	gen := binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	epoch := binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	nanos := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off { // exact length, no trailing bytes
		return Entry{}, ErrCorrupt
	}

	return Entry{
		Gen:       gen,
		Epoch:     epoch,
		FetchedAt: time.Unix(0, nanos),
		Payload:   b[off : off+vlen],
	}, nil
}

// PeekFetchedAt reads only the timestamp of a frame.
func PeekFetchedAt(b []byte) (time.Time, error) {
	e, err := Decode(b)
	if err != nil {
		return time.Time{}, err
	}
	return e.FetchedAt, nil
}
