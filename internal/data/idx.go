package data

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// idxUint8 is the IDX type code for unsigned bytes, the only type MNIST uses.
const idxUint8 = 0x08

// maxIDXElements bounds allocations for corrupt headers.
const maxIDXElements = 1 << 28

// IDX is a decoded IDX file: an n-dimensional array of bytes.
type IDX struct {
	Dims []int
	Data []byte
}

// ReadIDX decodes an IDX stream.
//
// Layout: two zero bytes, a type code, the number of dimensions, one
// big-endian uint32 per dimension, then the data in row-major order.
func ReadIDX(r io.Reader) (*IDX, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("idx: read header: %w", err)
	}
	if header[0] != 0 || header[1] != 0 {
		return nil, fmt.Errorf("idx: invalid magic %#x %#x", header[0], header[1])
	}
	if header[2] != idxUint8 {
		return nil, fmt.Errorf("idx: unsupported type code %#x", header[2])
	}
	ndim := int(header[3])
	if ndim == 0 {
		return nil, fmt.Errorf("idx: zero dimensions")
	}

	dims := make([]int, ndim)
	total := 1
	for i := range dims {
		var d uint32
		if err := binary.Read(r, binary.BigEndian, &d); err != nil {
			return nil, fmt.Errorf("idx: read dimension %d: %w", i, err)
		}
		dims[i] = int(d)
		total *= dims[i]
		if dims[i] == 0 || total > maxIDXElements {
			return nil, fmt.Errorf("idx: invalid dimensions %v", dims[:i+1])
		}
	}

	data := make([]byte, total)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("idx: read %d bytes of data: %w", total, err)
	}
	return &IDX{Dims: dims, Data: data}, nil
}

// ReadIDXFile decodes an IDX file. Files ending in .gz are decompressed.
func ReadIDXFile(path string) (*IDX, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	idx, err := ReadIDX(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return idx, nil
}
