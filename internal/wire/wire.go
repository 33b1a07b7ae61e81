// Package wire frames snapshots for byte stores.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sort"
)

const formatVersion byte = 1

var (
	ErrCorrupt = errors.New("flagcache: corrupt snapshot entry")
	magic4     = [...]byte{'F', 'L', 'G', 'S'}
)

// Snapshot: magic(4) | fmt(1) | verLen(u16 be) | version(verLen) | n(u32 be)
//
//	flagLen(u16 be) | flag(flagLen) * n
//
// Flags are written sorted so equal sets produce equal bytes.
func EncodeSnapshot(version string, flags []string) ([]byte, error) {
	if len(version) > 0xFFFF {
		return nil, errors.New("flagcache: version too long to frame")
	}
	sorted := make([]string, len(flags))
	copy(sorted, flags)
	sort.Strings(sorted)

	total := 4 + 1 + 2 + len(version) + 4
	for _, f := range sorted {
		if l := len(f); l == 0 || l > 0xFFFF {
			return nil, errors.New("flagcache: invalid flag length in snapshot")
		}
		total += 2 + len(f)
	}

	var buf bytes.Buffer
	buf.Grow(total)
	buf.Write(magic4[:])
	buf.WriteByte(formatVersion)

	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint16(u2[:], uint16(len(version)))
	buf.Write(u2[:])
	buf.WriteString(version)

	binary.BigEndian.PutUint32(u4[:], uint32(len(sorted)))
	buf.Write(u4[:])

	for _, f := range sorted {
		binary.BigEndian.PutUint16(u2[:], uint16(len(f)))
		buf.Write(u2[:])
		buf.WriteString(f)
	}
	return buf.Bytes(), nil
}

// DecodeSnapshot is strict: any short read, bad header or trailing byte is ErrCorrupt.
func DecodeSnapshot(b []byte) (version string, flags []string, err error) {
	const hdr = 4 + 1 + 2
	if len(b) < hdr || !bytes.Equal(b[:4], magic4[:]) || b[4] != formatVersion {
		return "", nil, ErrCorrupt
	}
	off := 5

	vlen := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if vlen > len(b)-off {
		return "", nil, ErrCorrupt
	}
	version = string(b[off : off+vlen])
	off += vlen

	if off+4 > len(b) {
		return "", nil, ErrCorrupt
	}
	n := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	// each flag needs at least 3 bytes; rejects absurd counts before allocating
	if n < 0 || n > (len(b)-off)/3 {
		return "", nil, ErrCorrupt
	}

	flags = make([]string, 0, n)
	for i := 0; i < n; i++ {
		if off+2 > len(b) {
			return "", nil, ErrCorrupt
		}
		flen := int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
		if flen == 0 || flen > len(b)-off {
			return "", nil, ErrCorrupt
		}
		flags = append(flags, string(b[off:off+flen]))
		off += flen
	}
	if off != len(b) {
		return "", nil, ErrCorrupt
	}
	return version, flags, nil
}
