package objdb

import (
	"bytes"
	"math"
	"testing"
)

func checkKeyOrder(t *testing.T, what string, keys [][]byte) {
	t.Helper()
	for i := 1; i < len(keys); i++ {
		if bytes.Compare(keys[i-1], keys[i]) >= 0 {
			t.Errorf("** %s: key %d (%x) does not sort before key %d (%x)", what, i-1, keys[i-1], i, keys[i])
		}
	}
}

func TestIntKeys(t *testing.T) {
	var keys [][]byte
	keys = append(keys, appendNullKey(nil))
	for _, v := range []int64{math.MinInt64 + 1, math.MinInt32, -1000, -1, 0, 1, 255, 256, math.MaxInt32, math.MaxInt64} {
		keys = append(keys, appendIntKey(nil, v))
	}
	checkKeyOrder(t, "ints", keys)

	deepEqual(t, appendIntKey(nil, 0), x("01 8000000000000000"))
	deepEqual(t, appendIntKey(nil, -1), x("01 7FFFFFFFFFFFFFFF"))
	deepEqual(t, appendNullKey(nil), x("00"))
}

func TestFloatKeys(t *testing.T) {
	var keys [][]byte
	keys = append(keys, appendNullKey(nil))
	for _, v := range []float64{math.Inf(-1), -math.MaxFloat64, -1.5, -1, -math.SmallestNonzeroFloat64, 0, math.SmallestNonzeroFloat64, 0.5, 1, 1e300, math.Inf(1)} {
		keys = append(keys, appendFloatKey(nil, v))
	}
	checkKeyOrder(t, "floats", keys)

	deepEqual(t, appendFloatKey(nil, math.Copysign(0, -1)), appendFloatKey(nil, 0))
	deepEqual(t, appendFloatKey(nil, 0), x("01 8000000000000000"))
}

func TestStringKeys(t *testing.T) {
	keys := [][]byte{
		appendNullKey(nil),
		appendStringKey(nil, "", true),
		appendStringKey(nil, "\x00", true),
		appendStringKey(nil, "\x00\x00", true),
		appendStringKey(nil, "\x01", true),
		appendStringKey(nil, "a", true),
		appendStringKey(nil, "a\x00", true),
		appendStringKey(nil, "a\x00b", true),
		appendStringKey(nil, "ab", true),
		appendStringKey(nil, "b", true),
		appendStringKey(nil, "\xff", true),
	}
	checkKeyOrder(t, "strings", keys)

	deepEqual(t, appendStringKey(nil, "a\x00b", true), x("01 61 00FF 62 0001"))
	deepEqual(t, appendStringKey(nil, "", true), x("01 0001"))

	// an unterminated key is a prefix of every longer string's key
	prefix := appendStringKey(nil, "ab", false)
	for _, s := range []string{"ab", "abc", "ab\x00"} {
		if !bytes.HasPrefix(appendStringKey(nil, s, true), prefix) {
			t.Errorf("** %q: key does not start with the prefix of ab", s)
		}
	}
	if bytes.HasPrefix(appendStringKey(nil, "a", true), prefix) {
		t.Errorf("** key of a starts with the prefix of ab")
	}

	// components stay ordered when followed by more components
	a := appendIntKey(appendStringKey(nil, "a", true), 99)
	ab := appendIntKey(appendStringKey(nil, "ab", true), 1)
	checkKeyOrder(t, "compound", [][]byte{a, ab})
}

func TestIDKeys(t *testing.T) {
	var keys [][]byte
	for _, id := range []int64{math.MinInt64, -1, 0, 1, math.MaxInt64} {
		k := idKey(id)
		deepEqual(t, len(k), idKeySize)
		deepEqual(t, must(decodeIDKey(k)), id)
		keys = append(keys, k)
	}
	checkKeyOrder(t, "ids", keys)

	deepEqual(t, idKey(1), x("8000000000000001"))
	deepEqual(t, must(decodeIDKey(x("01 61 0001 8000000000000005"))), int64(5))
	if _, err := decodeIDKey(x("0102")); err == nil {
		t.Errorf("** decodeIDKey of a short key succeeded")
	}
}

func TestBoolAndByteKeys(t *testing.T) {
	checkKeyOrder(t, "bools", [][]byte{appendNullKey(nil), appendBoolKey(nil, false), appendBoolKey(nil, true)})
	checkKeyOrder(t, "bytes", [][]byte{appendUint8Key(nil, 0), appendUint8Key(nil, 1), appendUint8Key(nil, 255)})
}

func TestNextPrefix(t *testing.T) {
	tests := []struct {
		input string
		e     string
		ok    bool
	}{
		{"00", "01", true},
		{"0AFF", "0B00", true},
		{"00FFFF", "010000", true},
		{"FFFF", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		data := x(tt.input)
		ok := nextPrefix(data)
		if ok != tt.ok || (ok && hexstr(data) != hexstr(x(tt.e))) {
			t.Errorf("** nextPrefix(%s) = %x, %v; wanted %s, %v", tt.input, data, ok, tt.e, tt.ok)
		}
	}

	// every key with the prefix sorts before the result
	p := appendStringKey(nil, "ab", false)
	next := bytes.Clone(p)
	nextPrefix(next)
	for _, s := range []string{"ab", "ab\xff\xff", "abz"} {
		if k := appendIntKey(appendStringKey(nil, s, true), 1); bytes.Compare(k, next) >= 0 {
			t.Errorf("** key of %q (%x) does not sort before %x", s, k, next)
		}
	}
}
