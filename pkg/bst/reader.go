package bst

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// fieldReader decodes consecutive big-endian header fields. The first error
// sticks; later reads return zero values.
type fieldReader struct {
	r   io.ReaderAt
	pos int64
	buf [8]byte
	err error
}

func newFieldReader(r io.ReaderAt) *fieldReader {
	return &fieldReader{r: r}
}

func (r *fieldReader) read(n int) []byte {
	if r.err != nil {
		return nil
	}
	b := r.buf[:n]
	if _, err := r.r.ReadAt(b, r.pos); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		r.err = fmt.Errorf("field at offset %d: %w", r.pos, err)
		return nil
	}
	r.pos += int64(n)
	return b
}

func (r *fieldReader) skip(n int64) {
	if r.err == nil {
		r.pos += n
	}
}

func (r *fieldReader) int32() int32 {
	b := r.read(4)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

func (r *fieldReader) float64() float64 {
	b := r.read(8)
	if b == nil {
		return 0
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b))
}
