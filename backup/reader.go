package backup

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/xxh3"

	"github.com/andreyvit/objdb/durable"
)

// Reader decompresses a backup stream, verifying every block checksum.
type Reader struct {
	r      io.Reader
	c      Compression
	cd     codec
	stored []byte
	raw    []byte
	pos    int
	eof    bool
}

// NewReader reads and validates the stream header.
func NewReader(r io.Reader) (*Reader, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, ErrFormat
		}
		return nil, err
	}
	if string(hdr[:len(magic)]) != magic {
		return nil, ErrFormat
	}
	if v := hdr[len(magic)]; v != version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrFormat, v)
	}
	c := Compression(hdr[len(magic)+1])
	if !c.IsValid() {
		return nil, fmt.Errorf("%w: unknown compression %d", ErrFormat, uint8(c))
	}
	return &Reader{r: r, c: c}, nil
}

func (br *Reader) Compression() Compression {
	return br.c
}

func (br *Reader) Read(p []byte) (int, error) {
	for br.pos == len(br.raw) {
		if br.eof {
			return 0, io.EOF
		}
		if err := br.next(); err != nil {
			return 0, err
		}
	}
	n := copy(p, br.raw[br.pos:])
	br.pos += n
	return n, nil
}

func (br *Reader) next() error {
	var hdr [blockHeader]byte
	if _, err := io.ReadFull(br.r, hdr[:4]); err != nil {
		return unexpected(err)
	}
	rawLen := int(binary.LittleEndian.Uint32(hdr[0:]))
	if rawLen == 0 {
		br.eof = true
		br.cd.close()
		br.raw, br.pos = br.raw[:0], 0
		return nil
	}
	if _, err := io.ReadFull(br.r, hdr[4:]); err != nil {
		return unexpected(err)
	}
	storedLen := int(binary.LittleEndian.Uint32(hdr[4:]))
	sum := binary.LittleEndian.Uint64(hdr[8:])
	if rawLen > BlockSize || storedLen > maxStoredLen {
		return fmt.Errorf("%w: block of %d/%d bytes", ErrFormat, rawLen, storedLen)
	}

	if cap(br.stored) < storedLen {
		br.stored = make([]byte, storedLen)
	}
	br.stored = br.stored[:storedLen]
	if _, err := io.ReadFull(br.r, br.stored); err != nil {
		return unexpected(err)
	}

	raw, err := br.cd.decompress(br.c, br.raw[:0], br.stored, rawLen)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if len(raw) != rawLen {
		return fmt.Errorf("%w: block decodes to %d bytes, expected %d", ErrFormat, len(raw), rawLen)
	}
	if xxh3.Hash(raw) != sum {
		return ErrChecksum
	}
	br.raw, br.pos = raw, 0
	return nil
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// Restore decodes a backup stream into a database file at path, replacing
// any existing file only once the whole stream has been verified.
func Restore(r io.Reader, path string) (int64, error) {
	br, err := NewReader(r)
	if err != nil {
		return 0, err
	}
	return durable.WriteFile(path, 0666, func(w io.Writer) (int64, error) {
		return io.Copy(w, br)
	})
}

// RestoreFile is Restore reading from the file at src.
func RestoreFile(src, path string) (int64, error) {
	f, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return Restore(f, path)
}
