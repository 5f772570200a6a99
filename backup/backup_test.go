package backup

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	sizes := []int{0, 1, 1000, BlockSize, BlockSize + 17}
	if !testing.Short() {
		sizes = append(sizes, 3*BlockSize+5)
	}
	for c := None; c <= LZ4; c++ {
		for _, size := range sizes {
			data := sampleData(size)
			var buf bytes.Buffer
			w := must(NewWriter(&buf, c))
			// uneven writes cross block boundaries
			for rem := data; len(rem) > 0; {
				k := min(len(rem), 70001)
				must(w.Write(rem[:k]))
				rem = rem[k:]
			}
			ensure(w.Close())
			if w.Written() != int64(buf.Len()) {
				t.Errorf("%v/%d: Written = %d, wanted %d", c, size, w.Written(), buf.Len())
			}

			r := must(NewReader(&buf))
			if r.Compression() != c {
				t.Errorf("%v/%d: Compression = %v", c, size, r.Compression())
			}
			got := must(io.ReadAll(r))
			if !bytes.Equal(got, data) {
				t.Errorf("%v/%d: got %d bytes back, data differs", c, size, len(got))
			}
		}
	}
}

func TestCompressionShrinksRedundantData(t *testing.T) {
	data := bytes.Repeat([]byte("objdb "), 50000)
	for _, c := range []Compression{Snappy, Zstd, LZ4} {
		var buf bytes.Buffer
		w := must(NewWriter(&buf, c))
		must(w.Write(data))
		ensure(w.Close())
		if buf.Len() >= len(data)/4 {
			t.Errorf("%v: %d bytes compressed to %d", c, len(data), buf.Len())
		}
	}
}

func TestChecksumMismatch(t *testing.T) {
	var buf bytes.Buffer
	w := must(NewWriter(&buf, None))
	must(w.Write([]byte("hello world")))
	ensure(w.Close())

	b := buf.Bytes()
	b[headerSize+blockHeader+2] ^= 0xFF

	_, err := io.ReadAll(must(NewReader(bytes.NewReader(b))))
	if !errors.Is(err, ErrChecksum) {
		t.Fatalf("err = %v, wanted %v", err, ErrChecksum)
	}
}

func TestTruncated(t *testing.T) {
	var buf bytes.Buffer
	w := must(NewWriter(&buf, Zstd))
	must(w.Write(sampleData(5000)))
	ensure(w.Close())

	b := buf.Bytes()
	_, err := io.ReadAll(must(NewReader(bytes.NewReader(b[:len(b)-10]))))
	if err == nil {
		t.Fatal("truncated stream read without error")
	}
}

func TestNotABackup(t *testing.T) {
	for _, in := range []string{"", "OBJDB", "NOTABACKUPSTREAM"} {
		_, err := NewReader(bytes.NewReader([]byte(in)))
		if !errors.Is(err, ErrFormat) {
			t.Errorf("NewReader(%q) err = %v, wanted %v", in, err, ErrFormat)
		}
	}
	_, err := NewReader(bytes.NewReader(append([]byte(magic), version, 42)))
	if !errors.Is(err, ErrFormat) {
		t.Errorf("unknown compression: err = %v", err)
	}
}

func TestParseCompression(t *testing.T) {
	for c := None; c <= LZ4; c++ {
		if a := must(ParseCompression(c.String())); a != c {
			t.Errorf("ParseCompression(%q) = %v", c.String(), a)
		}
	}
	if a := must(ParseCompression("ZSTD")); a != Zstd {
		t.Errorf("ParseCompression(ZSTD) = %v", a)
	}
	if _, err := ParseCompression("brotli"); err == nil {
		t.Error("ParseCompression(brotli) succeeded")
	}
	if _, err := NewWriter(io.Discard, Compression(9)); err == nil {
		t.Error("NewWriter accepted an invalid compression")
	}
}

func TestRestore(t *testing.T) {
	dir := t.TempDir()
	data := sampleData(BlockSize + 3)

	src := filepath.Join(dir, "backup")
	f := must(os.Create(src))
	w := must(NewWriter(f, Snappy))
	must(w.Write(data))
	ensure(w.Close())
	ensure(f.Close())

	dst := filepath.Join(dir, "restored.db")
	n := must(RestoreFile(src, dst))
	if n != int64(len(data)) {
		t.Errorf("n = %d, wanted %d", n, len(data))
	}
	if !bytes.Equal(must(os.ReadFile(dst)), data) {
		t.Error("restored file differs")
	}
}

func TestRestore_keepsOldFileOnError(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "db")
	ensure(os.WriteFile(dst, []byte("old"), 0644))

	var buf bytes.Buffer
	w := must(NewWriter(&buf, LZ4))
	must(w.Write(sampleData(100)))
	ensure(w.Close())
	b := buf.Bytes()[:buf.Len()-4] // no end marker

	_, err := Restore(bytes.NewReader(b), dst)
	if err == nil {
		t.Fatal("Restore succeeded on a truncated stream")
	}
	if a := string(must(os.ReadFile(dst))); a != "old" {
		t.Errorf("dst = %q, wanted old content", a)
	}
}

func sampleData(n int) []byte {
	rnd := rand.New(rand.NewSource(int64(n)))
	b := make([]byte, n)
	for i := range b {
		// half-compressible
		if i%2 == 0 {
			b[i] = byte(rnd.Intn(256))
		} else {
			b[i] = byte(i / 64)
		}
	}
	return b
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func ensure(err error) {
	if err != nil {
		panic(err)
	}
}
