package columnar

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/pierrec/lz4/v4"
)

// Fragment file format:
//
//	[magic 4B][version u16][flags u16][dimension u32][rows u32][payload]
//
// The payload holds the row data column by column: row IDs, paths, block
// IDs, block types, contents, model names, checksums, positions, creation
// times, then all vectors. When flagLZ4 is set the payload is an lz4
// frame.
const (
	fragmentMagic   = "MNCF"
	fragmentVersion = 1

	flagLZ4 uint16 = 1 << 0
)

// record is one row of a collection. Document-level rows leave the block
// fields empty.
type record struct {
	RowID     uint32
	Path      string
	BlockID   string
	BlockType string
	Content   string
	ModelName string
	Checksum  string
	StartPos  uint32
	EndPos    uint32
	CreatedAt int64
	Vector    []float32
}

// writeFragment writes recs as an immutable fragment file. The file is
// written to a temp name and renamed into place so readers never observe
// a partial fragment.
func writeFragment(path string, dimension int, compress bool, recs []record) error {
	var payload bytes.Buffer
	encodeColumns(&payload, dimension, recs)

	var buf bytes.Buffer
	buf.WriteString(fragmentMagic)

	var flags uint16
	if compress {
		flags |= flagLZ4
	}
	writeU16(&buf, fragmentVersion)
	writeU16(&buf, flags)
	writeU32(&buf, uint32(dimension))
	writeU32(&buf, uint32(len(recs)))

	if compress {
		zw := lz4.NewWriter(&buf)
		if _, err := zw.Write(payload.Bytes()); err != nil {
			return fmt.Errorf("compressing fragment: %w", err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("closing compressor: %w", err)
		}
	} else {
		buf.Write(payload.Bytes())
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing fragment: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("committing fragment: %w", err)
	}
	return nil
}

// readFragment loads all rows of a fragment file.
func readFragment(path string, dimension int) ([]record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fragment: %w", err)
	}
	if len(raw) < 16 || string(raw[:4]) != fragmentMagic {
		return nil, fmt.Errorf("fragment %s: bad magic", path)
	}

	version := binary.LittleEndian.Uint16(raw[4:6])
	if version != fragmentVersion {
		return nil, fmt.Errorf("fragment %s: unsupported version %d", path, version)
	}
	flags := binary.LittleEndian.Uint16(raw[6:8])
	dim := binary.LittleEndian.Uint32(raw[8:12])
	rows := binary.LittleEndian.Uint32(raw[12:16])
	if int(dim) != dimension {
		return nil, fmt.Errorf("fragment %s: dimension %d, want %d", path, dim, dimension)
	}

	payload := raw[16:]
	if flags&flagLZ4 != 0 {
		decompressed, err := io.ReadAll(lz4.NewReader(bytes.NewReader(payload)))
		if err != nil {
			return nil, fmt.Errorf("decompressing fragment %s: %w", path, err)
		}
		payload = decompressed
	}

	return decodeColumns(payload, dimension, int(rows))
}

// encodeColumns writes recs column by column into buf.
func encodeColumns(buf *bytes.Buffer, dimension int, recs []record) {
	for _, r := range recs {
		writeU32(buf, r.RowID)
	}
	for _, r := range recs {
		writeString(buf, r.Path)
	}
	for _, r := range recs {
		writeString(buf, r.BlockID)
	}
	for _, r := range recs {
		writeString(buf, r.BlockType)
	}
	for _, r := range recs {
		writeString(buf, r.Content)
	}
	for _, r := range recs {
		writeString(buf, r.ModelName)
	}
	for _, r := range recs {
		writeString(buf, r.Checksum)
	}
	for _, r := range recs {
		writeU32(buf, r.StartPos)
		writeU32(buf, r.EndPos)
	}
	for _, r := range recs {
		writeU64(buf, uint64(r.CreatedAt))
	}
	for _, r := range recs {
		for i := 0; i < dimension; i++ {
			var v float32
			if i < len(r.Vector) {
				v = r.Vector[i]
			}
			writeU32(buf, math.Float32bits(v))
		}
	}
}

// decodeColumns is the inverse of encodeColumns.
func decodeColumns(payload []byte, dimension, rows int) ([]record, error) {
	cur := &cursor{data: payload}
	recs := make([]record, rows)

	for i := range recs {
		recs[i].RowID = cur.u32()
	}
	for i := range recs {
		recs[i].Path = cur.str()
	}
	for i := range recs {
		recs[i].BlockID = cur.str()
	}
	for i := range recs {
		recs[i].BlockType = cur.str()
	}
	for i := range recs {
		recs[i].Content = cur.str()
	}
	for i := range recs {
		recs[i].ModelName = cur.str()
	}
	for i := range recs {
		recs[i].Checksum = cur.str()
	}
	for i := range recs {
		recs[i].StartPos = cur.u32()
		recs[i].EndPos = cur.u32()
	}
	for i := range recs {
		recs[i].CreatedAt = int64(cur.u64())
	}
	for i := range recs {
		vec := make([]float32, dimension)
		for j := 0; j < dimension; j++ {
			vec[j] = math.Float32frombits(cur.u32())
		}
		recs[i].Vector = vec
	}

	if cur.err != nil {
		return nil, fmt.Errorf("decoding fragment: %w", cur.err)
	}
	return recs, nil
}

// cursor is a little-endian reader over a byte slice that latches the
// first error instead of returning one per read.
type cursor struct {
	data []byte
	pos  int
	err  error
}

func (c *cursor) u32() uint32 {
	if c.err != nil {
		return 0
	}
	if c.pos+4 > len(c.data) {
		c.err = io.ErrUnexpectedEOF
		return 0
	}
	v := binary.LittleEndian.Uint32(c.data[c.pos:])
	c.pos += 4
	return v
}

func (c *cursor) u64() uint64 {
	if c.err != nil {
		return 0
	}
	if c.pos+8 > len(c.data) {
		c.err = io.ErrUnexpectedEOF
		return 0
	}
	v := binary.LittleEndian.Uint64(c.data[c.pos:])
	c.pos += 8
	return v
}

func (c *cursor) str() string {
	n := int(c.u32())
	if c.err != nil {
		return ""
	}
	if c.pos+n > len(c.data) {
		c.err = io.ErrUnexpectedEOF
		return ""
	}
	s := string(c.data[c.pos : c.pos+n])
	c.pos += n
	return s
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeU32(buf, uint32(len(s)))
	buf.WriteString(s)
}
