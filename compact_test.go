package objdb

import (
	"math"
	"strings"
	"testing"
)

func TestShouldCompact(t *testing.T) {
	tests := []struct {
		cond          *CompactCondition
		size, free    int64
		shouldCompact bool
	}{
		{nil, 1000, 1000, false},
		{&CompactCondition{MinRatio: float32(math.NaN())}, 1000, 1000, false},
		{&CompactCondition{MinFileSize: 100, MinBytes: 10, MinRatio: 0.5}, 0, 0, false},
		{&CompactCondition{MinFileSize: 100, MinBytes: 10, MinRatio: 0.5}, 99, 99, false},
		{&CompactCondition{MinFileSize: 100, MinBytes: 10, MinRatio: 0.5}, 100, 10, true},
		{&CompactCondition{MinFileSize: 100, MinBytes: 10, MinRatio: 0.5}, 100, 9, false},
		{&CompactCondition{MinFileSize: 100, MinBytes: 1000, MinRatio: 0.5}, 200, 100, true},
		{&CompactCondition{MinFileSize: 100, MinBytes: 1000, MinRatio: 0.5}, 200, 99, false},
	}
	for i, tt := range tests {
		if a := tt.cond.ShouldCompact(tt.size, tt.free); a != tt.shouldCompact {
			t.Errorf("** [%d] ShouldCompact(%d, %d) = %v, wanted %v", i, tt.size, tt.free, a, tt.shouldCompact)
		}
	}

	if c := NewCompactCondition(1, 2, float32(math.NaN())); c != nil {
		t.Errorf("** NewCompactCondition with NaN ratio = %+v, wanted nil", *c)
	}
	deepEqual(t, *NewCompactCondition(1, 2, 0.25), CompactCondition{1, 2, 0.25})
}

func fillAndClear(t testing.TB, inst *Instance) {
	t.Helper()
	long := strings.Repeat("x", 2000)
	var items []*item
	for i := 0; i < 1000; i++ {
		items = append(items, &item{Name: long, Price: int64(i)})
	}
	putItems(t, inst, items...)
	ensure(inst.Write(func(txn *Txn) error {
		_, err := inst.Clear(txn, 0)
		return err
	}))
}

func TestCompact(t *testing.T) {
	if testing.Short() {
		t.Skip("needs a file")
	}
	inst := setup(t, itemsSchema)
	fillAndClear(t, inst)
	putItems(t, inst, &item{Name: "survivor", SKU: "S"})

	before := inst.Size()
	ensure(inst.Compact())
	after := inst.Size()
	if after >= before {
		t.Errorf("** size after compaction %d, before %d", after, before)
	}

	items := queryItems(t, inst, must(must(inst.BuildQuery(0)).Build()))
	deepEqual(t, itemNames(items), "survivor")
	putItems(t, inst, &item{Name: "after"})
	deepEqual(t, itemNames(queryItems(t, inst, must(must(inst.BuildQuery(0)).Build()))), "survivor after")
}

func TestCompactWithOpenTxn(t *testing.T) {
	inst := setup(t, itemsSchema)
	txn := must(inst.BeginTxn(false))
	hasStatus(t, inst.Compact(), StatusTransactionConflict)
	txn.Abort()
	ensure(inst.Compact())
}

func TestCompactInMemory(t *testing.T) {
	inst := setupWith(t, Options{Schema: itemsSchema, InMemory: true})
	putItems(t, inst, &item{Name: "a"})
	ensure(inst.Compact())
	deepEqual(t, itemNames(queryItems(t, inst, must(must(inst.BuildQuery(0)).Build()))), "a")
}

func TestCompactOnOpen(t *testing.T) {
	if testing.Short() {
		t.Skip("needs a file")
	}
	dir := t.TempDir()
	inst := setupWith(t, Options{Schema: itemsSchema, Dir: dir})
	fillAndClear(t, inst)
	before := inst.Size()
	deepEqual(t, inst.Close(false), true)

	inst = setupWith(t, Options{Schema: itemsSchema, Dir: dir, Compact: NewCompactCondition(0, 1, 0)})
	if after := inst.Size(); after >= before {
		t.Errorf("** size after open %d, before %d", after, before)
	}
}
