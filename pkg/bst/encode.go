package bst

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"gonum.org/v1/gonum/spatial/r3"

	"imagestack/internal/expects"
	"imagestack/pkg/imagestack"
	"imagestack/pkg/multiindex"
)

// Encode writes size, resolution and data as a BST file of the given kind.
// data must hold exactly Product(size) elements, x fastest.
func Encode[T imagestack.Scalar](w io.Writer, kind Kind, size multiindex.Size3, res r3.Vec, data []T) error {
	expects.That(len(data) == multiindex.Product(size),
		"%d elements for a volume of size %s", len(data), size)
	for d := 0; d < 3; d++ {
		expects.That(size[d] >= 0 && size[d] <= math.MaxInt32, "dimension %d out of range", size[d])
	}

	var header []byte
	switch kind {
	case Image:
		header = imageHeader(size, res)
	case Mask:
		header = maskHeader(size, res)
	default:
		expects.That(false, "unknown header kind %v", kind)
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(header); err != nil {
		return fmt.Errorf("failed to write %s header: %w", kind, err)
	}
	if len(data) > 0 {
		payload := append([]byte(nil), asBytes(data)...)
		toHost(payload, sizeOf[T]())
		if _, err := bw.Write(payload); err != nil {
			return fmt.Errorf("failed to write payload: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}
	return nil
}

// EncodeFile writes the volume to path, replacing any existing file. A path
// ending in ".gz" is written as a gzip stream.
func EncodeFile[T imagestack.Scalar](path string, kind Kind, img *imagestack.ImageStack[T]) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file '%s': %w", path, err)
	}
	var data []T
	if !img.Empty() {
		data = img.Map().Data()
	}

	var w io.Writer = f
	var zw *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		zw = gzip.NewWriter(f)
		w = zw
	}
	if err := Encode(w, kind, img.Size(), img.Resolution(), data); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode '%s': %w", path, err)
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			f.Close()
			return fmt.Errorf("failed to compress '%s': %w", path, err)
		}
	}
	return f.Close()
}

func imageHeader(size multiindex.Size3, res r3.Vec) []byte {
	b := make([]byte, 0, imageHeaderSize)
	b = append(b, make([]byte, 6*4)...)
	for d := 0; d < 3; d++ {
		b = binary.BigEndian.AppendUint32(b, uint32(int32(size[d])))
	}
	b = append(b, make([]byte, 4)...)
	for _, v := range []float64{res.X, res.Y, res.Z} {
		b = binary.BigEndian.AppendUint64(b, math.Float64bits(v))
	}
	return b
}

func maskHeader(size multiindex.Size3, res r3.Vec) []byte {
	var sb strings.Builder
	sb.WriteString("0,0,0\n")
	sb.WriteString(strconv.Itoa(size[0]) + "," + strconv.Itoa(size[1]) + "," + strconv.Itoa(size[2]) + "\n")
	sb.WriteString("0\n")
	for d, v := range []float64{res.X, res.Y, res.Z} {
		if d > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	sb.WriteByte('\n')
	return []byte(sb.String())
}
