// Package bst reads and writes BST volume files.
//
// A BST file is a header followed by the voxel payload. The payload holds
// size.X()*size.Y()*size.Z() big-endian elements, x fastest, and is aligned
// to the end of the file: it starts at fileSize - payloadBytes, and any bytes
// between the header and that offset are ignored.
//
// Two header layouts exist. Image files use a binary header of big-endian
// fields: six unused int32, three int32 dimensions, one unused int32 and
// three float64 resolutions. Mask files use four newline-terminated text
// lines: an unused coordinate line, the dimensions, an unused measurement
// date and the resolution, with values separated by commas or whitespace.
//
// Files whose name ends in ".gz" are gzip streams of either layout; they are
// decompressed into memory when opened.
package bst

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"

	"imagestack/internal/expects"
	"imagestack/pkg/imagestack"
	"imagestack/pkg/multiindex"
)

// Kind selects the header layout.
type Kind int

const (
	// Image files have a binary header.
	Image Kind = iota
	// Mask files have a text header.
	Mask
)

func (k Kind) String() string {
	switch k {
	case Image:
		return "image"
	case Mask:
		return "mask"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// imageHeaderSize is the number of bytes in a binary image header.
const imageHeaderSize = 6*4 + 3*4 + 4 + 3*8

type state int

const (
	initialized state = iota
	headerRead
)

// Loader decodes a BST file into a volume of T. The header is parsed lazily
// on the first call to Size, Resolution or ReadData.
type Loader[T imagestack.Scalar] struct {
	path     string
	kind     Kind
	r        io.ReaderAt
	closer   io.Closer
	fileSize int64

	state      state
	size       multiindex.Size3
	resolution r3.Vec
	headerEnd  int64
	dataStart  int64
}

var (
	_ imagestack.Loader[float32]  = (*Loader[float32])(nil)
	_ imagestack.ResolutionSource = (*Loader[float32])(nil)
)

// Open opens path for decoding. The file stays open until Close.
func Open[T imagestack.Scalar](path string, kind Kind) (*Loader[T], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file '%s': %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat file '%s': %w", path, err)
	}
	if st.IsDir() {
		f.Close()
		return nil, fmt.Errorf("failed to open file '%s': is a directory", path)
	}
	l := &Loader[T]{
		path:     path,
		kind:     kind,
		r:        f,
		closer:   f,
		fileSize: st.Size(),
		state:    initialized,
	}
	if strings.HasSuffix(path, ".gz") {
		data, err := decompress(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to decompress file '%s': %w", path, err)
		}
		log.WithFields(log.Fields{
			"file":       path,
			"compressed": humanize.Bytes(uint64(st.Size())),
			"size":       humanize.Bytes(uint64(len(data))),
		}).Debug("decompressed BST file")
		l.r, l.closer, l.fileSize = bytes.NewReader(data), io.NopCloser(nil), int64(len(data))
	}
	return l, nil
}

func decompress(r io.Reader) ([]byte, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// OpenImage opens a file with a binary image header.
func OpenImage[T imagestack.Scalar](path string) (*Loader[T], error) {
	return Open[T](path, Image)
}

// OpenMask opens a file with a text mask header.
func OpenMask[T imagestack.Scalar](path string) (*Loader[T], error) {
	return Open[T](path, Mask)
}

// Close releases the file handle.
func (l *Loader[T]) Close() error {
	return l.closer.Close()
}

// Kind returns the header layout the loader decodes.
func (l *Loader[T]) Kind() Kind { return l.kind }

// Size returns the volume extent along x, y and z.
func (l *Loader[T]) Size() (multiindex.Size3, error) {
	if err := l.ensureHeader(); err != nil {
		return multiindex.Size3{}, err
	}
	return l.size, nil
}

// Resolution returns the physical voxel size along x, y and z.
func (l *Loader[T]) Resolution() (r3.Vec, error) {
	if err := l.ensureHeader(); err != nil {
		return r3.Vec{}, err
	}
	return l.resolution, nil
}

// ReadData decodes the payload into dst, converting every element from
// big-endian to host order. dst must hold at least Product(Size()) elements.
func (l *Loader[T]) ReadData(dst []T) error {
	if err := l.ensureHeader(); err != nil {
		return err
	}
	n := multiindex.Product(l.size)
	expects.That(len(dst) >= n, "destination of %d elements for %d voxels", len(dst), n)
	if n == 0 {
		return nil
	}

	buf := asBytes(dst[:n])
	read, err := l.r.ReadAt(buf, l.dataStart)
	if err != nil && !(errors.Is(err, io.EOF) && read == len(buf)) {
		return fmt.Errorf("failed to read payload of '%s': %w", l.path, err)
	}
	toHost(buf, sizeOf[T]())

	log.WithFields(log.Fields{
		"file":   l.path,
		"voxels": n,
		"bytes":  humanize.Bytes(uint64(len(buf))),
	}).Debug("read BST payload")
	return nil
}

func (l *Loader[T]) ensureHeader() error {
	if l.state == initialized {
		return l.readHeader()
	}
	return nil
}

func (l *Loader[T]) readHeader() error {
	expects.That(l.state == initialized, "must not re-read header of '%s'", l.path)

	var (
		dims [3]int64
		err  error
	)
	switch l.kind {
	case Image:
		dims, err = l.readImageHeader()
	case Mask:
		dims, err = l.readMaskHeader()
	default:
		expects.That(false, "unknown header kind %v", l.kind)
	}
	if err != nil {
		return fmt.Errorf("failed to read header of '%s': %w", l.path, err)
	}
	for d, v := range dims {
		if v < 0 {
			return fmt.Errorf("%w: negative dimension %d along axis %d in '%s'", ErrMalformedHeader, v, d, l.path)
		}
		l.size[d] = int(v)
	}

	payload, ok := payloadBytes(l.size, sizeOf[T]())
	if !ok {
		return fmt.Errorf("%w: dimensions %s of '%s' overflow the payload size", ErrMalformedHeader, l.size, l.path)
	}
	l.dataStart = l.fileSize - payload
	if l.dataStart < l.headerEnd {
		return fmt.Errorf("%w: header of '%s' announces %d payload bytes, file has %d bytes after its %d byte header",
			ErrSizeMismatch, l.path, payload, l.fileSize-l.headerEnd, l.headerEnd)
	}

	log.WithFields(log.Fields{
		"file":       l.path,
		"kind":       l.kind,
		"size":       l.size,
		"resolution": l.resolution,
		"payload":    humanize.Bytes(uint64(payload)),
		"padding":    l.dataStart - l.headerEnd,
	}).Debug("read BST header")

	l.state = headerRead
	return nil
}

// payloadBytes returns the byte size of a volume of the given extent. ok is
// false when the size does not fit in an int64.
func payloadBytes(size multiindex.Size3, width int) (n int64, ok bool) {
	n = int64(width)
	for _, d := range size {
		if d != 0 && n > math.MaxInt64/int64(d) {
			return 0, false
		}
		n *= int64(d)
	}
	return n, true
}

func (l *Loader[T]) readImageHeader() ([3]int64, error) {
	var dims [3]int64
	r := newFieldReader(l.r)
	r.skip(6 * 4)
	for d := range dims {
		dims[d] = int64(r.int32())
	}
	r.skip(4)
	l.resolution = r3.Vec{X: r.float64(), Y: r.float64(), Z: r.float64()}
	if r.err != nil {
		return dims, fmt.Errorf("%w: %w", ErrMalformedHeader, r.err)
	}
	l.headerEnd = r.pos
	return dims, nil
}

func (l *Loader[T]) readMaskHeader() ([3]int64, error) {
	var dims [3]int64
	l.headerEnd = 0
	br := bufio.NewReader(io.NewSectionReader(l.r, 0, l.fileSize))

	var lines [4]string
	for i := range lines {
		line, err := br.ReadString('\n')
		if err != nil {
			return dims, fmt.Errorf("%w: header line %d: %w", ErrMalformedHeader, i+1, err)
		}
		l.headerEnd += int64(len(line))
		lines[i] = line
	}

	fields, err := triple(lines[1])
	if err != nil {
		return dims, err
	}
	for d, f := range fields {
		v, err := strconv.ParseInt(f, 10, 32)
		if err != nil {
			return dims, fmt.Errorf("%w: dimension %q: %w", ErrMalformedHeader, f, err)
		}
		dims[d] = v
	}

	if fields, err = triple(lines[3]); err != nil {
		return dims, err
	}
	var res [3]float64
	for d, f := range fields {
		if res[d], err = strconv.ParseFloat(f, 64); err != nil {
			return dims, fmt.Errorf("%w: resolution %q: %w", ErrMalformedHeader, f, err)
		}
	}
	l.resolution = r3.Vec{X: res[0], Y: res[1], Z: res[2]}
	return dims, nil
}

// triple splits a header line into its first three comma or whitespace
// separated values.
func triple(line string) ([3]string, error) {
	var out [3]string
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	if len(fields) < 3 {
		return out, fmt.Errorf("%w: expected three values in %q", ErrMalformedHeader, strings.TrimSpace(line))
	}
	copy(out[:], fields)
	return out, nil
}
