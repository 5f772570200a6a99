package objdb

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
)

const debugLogScans = false

// keyRange selects keys of one bucket in ascending order: the data bucket
// by id key, or an index bucket by value key. Keys must start with Prefix
// (if set) and lie between Lower and Upper (nil bounds are open).
type keyRange struct {
	Prefix   []byte
	Lower    []byte
	Upper    []byte
	LowerInc bool
	UpperInc bool
}

func prefixRange(p []byte) keyRange { return keyRange{Prefix: p} }

// halfOpenRange selects [l, u).
func halfOpenRange(l, u []byte) keyRange {
	return keyRange{Lower: l, Upper: u, LowerInc: true}
}

func (rang keyRange) String() string {
	var buf bytes.Buffer
	if rang.Prefix != nil {
		fmt.Fprintf(&buf, "prefix %s ", hexstr(rang.Prefix))
	}
	if rang.LowerInc {
		buf.WriteByte('[')
	} else {
		buf.WriteByte('(')
	}
	fmt.Fprintf(&buf, "%s, %s", hexstr(rang.Lower), hexstr(rang.Upper))
	if rang.UpperInc {
		buf.WriteByte(']')
	} else {
		buf.WriteByte(')')
	}
	return buf.String()
}

// contains reports whether k is inside the range.
func (rang *keyRange) contains(k []byte) bool {
	if rang.Prefix != nil && !bytes.HasPrefix(k, rang.Prefix) {
		return false
	}
	if rang.Lower != nil {
		if c := bytes.Compare(k, rang.Lower); c < 0 || (c == 0 && !rang.LowerInc) {
			return false
		}
	}
	if rang.Upper != nil {
		if c := bytes.Compare(k, rang.Upper); c > 0 || (c == 0 && !rang.UpperInc) {
			return false
		}
	}
	return true
}

// seek positions bcur at the first key that could be in the range.
func (rang *keyRange) seek(bcur storageCursor) ([]byte, []byte) {
	start := rang.Lower
	if start == nil {
		start = rang.Prefix
	} else if rang.Prefix != nil && bytes.Compare(start, rang.Prefix) < 0 {
		start = rang.Prefix
	}
	if start == nil {
		return bcur.First()
	}
	k, v := bcur.Seek(start)
	if k != nil && !rang.LowerInc && rang.Lower != nil && bytes.Equal(k, rang.Lower) {
		k, v = bcur.Next()
	}
	return k, v
}

func (rang *keyRange) newCursor(bcur storageCursor, logger *slog.Logger) *rangeCursor {
	return &rangeCursor{rang: *rang, bcur: bcur, logger: logger}
}

// rangeCursor walks the keys of a keyRange. Keys are sorted, so the first
// key past the range ends the walk.
type rangeCursor struct {
	rang    keyRange
	bcur    storageCursor
	logger  *slog.Logger
	k, v    []byte
	started bool
}

func (c *rangeCursor) Next() bool {
	if c.started {
		c.k, c.v = c.bcur.Next()
	} else {
		c.started = true
		c.k, c.v = c.rang.seek(c.bcur)
	}
	if c.k != nil && !c.rang.contains(c.k) {
		c.k, c.v = nil, nil
	}
	if debugLogScans {
		c.logger.LogAttrs(context.Background(), slog.LevelDebug, "objdb: scan", slog.String("range", c.rang.String()), hexAttr("key", c.k))
	}
	return c.k != nil
}

func (c *rangeCursor) Key() []byte   { return c.k }
func (c *rangeCursor) Value() []byte { return c.v }
