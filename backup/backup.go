// Package backup implements the snapshot stream written by Instance.CopyTo
// and read back by Restore.
//
// The stream is as follows:
//
//	stream -> magic:64 version:8 compression:8 block... end
//	block  -> rawLen:32 storedLen:32 checksum:64 stored[storedLen]
//	end    -> rawLen:32 = 0
//
// Every block is compressed on its own; checksum is the xxh3 hash of the raw
// (uncompressed) bytes. Integers are little-endian.
package backup

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the block compression algorithm of a stream.
type Compression uint8

const (
	None   Compression = 0
	Snappy Compression = 1
	Zstd   Compression = 2
	LZ4    Compression = 3
)

const (
	magic       = "OBJDBBAK"
	version     = 1
	headerSize  = len(magic) + 2
	blockHeader = 16

	// BlockSize is the amount of raw data compressed as one block.
	BlockSize = 1 << 20

	maxStoredLen = BlockSize + BlockSize/2
)

var (
	ErrFormat   = errors.New("not a backup stream")
	ErrChecksum = errors.New("backup checksum mismatch")
)

func (c Compression) String() string {
	switch c {
	case None:
		return "none"
	case Snappy:
		return "snappy"
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	default:
		return fmt.Sprintf("Compression(%d)", uint8(c))
	}
}

func (c Compression) IsValid() bool {
	return c <= LZ4
}

// ParseCompression accepts the names returned by String.
func ParseCompression(s string) (Compression, error) {
	for c := None; c <= LZ4; c++ {
		if strings.EqualFold(s, c.String()) {
			return c, nil
		}
	}
	return None, fmt.Errorf("unknown compression %q", s)
}

type codec struct {
	zenc *zstd.Encoder
	zdec *zstd.Decoder
}

func (cd *codec) compress(c Compression, dst, data []byte) ([]byte, error) {
	switch c {
	case None:
		return append(dst, data...), nil
	case Snappy:
		return snappy.Encode(dst[:cap(dst)], data), nil
	case Zstd:
		if cd.zenc == nil {
			enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderConcurrency(1))
			if err != nil {
				return nil, fmt.Errorf("zstd encoder: %w", err)
			}
			cd.zenc = enc
		}
		return cd.zenc.EncodeAll(data, dst), nil
	case LZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if err := w.Apply(lz4.CompressionLevelOption(lz4.Fast)); err != nil {
			return nil, fmt.Errorf("lz4 apply level: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("lz4 write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lz4 close: %w", err)
		}
		return append(dst, buf.Bytes()...), nil
	default:
		return nil, fmt.Errorf("unsupported compression: %v", c)
	}
}

func (cd *codec) decompress(c Compression, dst, data []byte, rawLen int) ([]byte, error) {
	switch c {
	case None:
		return append(dst, data...), nil
	case Snappy:
		n, err := snappy.DecodedLen(data)
		if err != nil {
			return nil, err
		}
		if n != rawLen {
			return nil, fmt.Errorf("snappy block decodes to %d bytes, expected %d", n, rawLen)
		}
		return snappy.Decode(dst[:cap(dst)], data)
	case Zstd:
		if cd.zdec == nil {
			dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
			if err != nil {
				return nil, fmt.Errorf("zstd decoder: %w", err)
			}
			cd.zdec = dec
		}
		return cd.zdec.DecodeAll(data, dst)
	case LZ4:
		r := lz4.NewReader(bytes.NewReader(data))
		buf := bytes.NewBuffer(dst)
		if _, err := io.Copy(buf, r); err != nil {
			return nil, fmt.Errorf("lz4: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported compression: %v", c)
	}
}

func (cd *codec) close() {
	if cd.zenc != nil {
		cd.zenc.Close()
		cd.zenc = nil
	}
	if cd.zdec != nil {
		cd.zdec.Close()
		cd.zdec = nil
	}
}

func appendHeader(buf []byte, c Compression) []byte {
	buf = append(buf, magic...)
	return append(buf, version, byte(c))
}

func putBlockHeader(b []byte, rawLen, storedLen int, sum uint64) {
	binary.LittleEndian.PutUint32(b[0:], uint32(rawLen))
	binary.LittleEndian.PutUint32(b[4:], uint32(storedLen))
	binary.LittleEndian.PutUint64(b[8:], sum)
}
