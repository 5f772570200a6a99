package backup

import (
	"errors"
	"io"

	"github.com/zeebo/xxh3"
)

var errClosed = errors.New("backup writer closed")

// Writer compresses a stream into the backup format. Close must be called
// to write the end marker; it does not close the underlying writer.
type Writer struct {
	w      io.Writer
	c      Compression
	cd     codec
	raw    []byte
	stored []byte
	n      int64
	err    error
	closed bool
}

// NewWriter writes the stream header to w.
func NewWriter(w io.Writer, c Compression) (*Writer, error) {
	if !c.IsValid() {
		return nil, errors.New("invalid compression " + c.String())
	}
	bw := &Writer{
		w:   w,
		c:   c,
		raw: make([]byte, 0, BlockSize),
	}
	if err := bw.emit(appendHeader(nil, c)); err != nil {
		return nil, err
	}
	return bw, nil
}

func (bw *Writer) emit(b []byte) error {
	n, err := bw.w.Write(b)
	bw.n += int64(n)
	if err != nil && bw.err == nil {
		bw.err = err
	}
	return err
}

func (bw *Writer) Write(p []byte) (int, error) {
	if bw.closed {
		return 0, errClosed
	}
	if bw.err != nil {
		return 0, bw.err
	}
	var written int
	for len(p) > 0 {
		k := min(len(p), BlockSize-len(bw.raw))
		bw.raw = append(bw.raw, p[:k]...)
		p = p[k:]
		written += k
		if len(bw.raw) == BlockSize {
			if err := bw.flush(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

func (bw *Writer) flush() error {
	if len(bw.raw) == 0 {
		return nil
	}
	stored, err := bw.cd.compress(bw.c, bw.stored[:0], bw.raw)
	if err != nil {
		bw.err = err
		return err
	}
	bw.stored = stored

	var hdr [blockHeader]byte
	putBlockHeader(hdr[:], len(bw.raw), len(stored), xxh3.Hash(bw.raw))
	if err := bw.emit(hdr[:]); err != nil {
		return err
	}
	if err := bw.emit(stored); err != nil {
		return err
	}
	bw.raw = bw.raw[:0]
	return nil
}

// Close flushes the last block and writes the end marker.
func (bw *Writer) Close() error {
	if bw.closed {
		return bw.err
	}
	bw.closed = true
	defer bw.cd.close()
	if bw.err != nil {
		return bw.err
	}
	if err := bw.flush(); err != nil {
		return err
	}
	var end [4]byte
	return bw.emit(end[:])
}

// Written returns the number of stream bytes written to the underlying writer.
func (bw *Writer) Written() int64 {
	return bw.n
}
