package index

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"pagedb/internal/storage"
	"pagedb/pkg/types"
)

func testTree(t *testing.T, order int) *BPlusTree {
	t.Helper()
	pf, err := storage.OpenPageFile(filepath.Join(t.TempDir(), "data.db"), 512)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { pf.Close() })

	pool := storage.NewBufferPool(pf, 16)
	bt, err := Create(pool, pf, order)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return bt
}

func rid(n uint64) types.RID {
	return types.RID{PageNo: types.PageID(n), Slot: uint16(n % 100)}
}

func TestInsertAndSearch(t *testing.T) {
	bt := testTree(t, 4)

	for _, k := range []uint64{30, 10, 20} {
		if err := bt.Insert(k, rid(k)); err != nil {
			t.Fatalf("Insert(%d) error = %v", k, err)
		}
	}

	for _, k := range []uint64{10, 20, 30} {
		got, found, err := bt.Search(k)
		if err != nil || !found {
			t.Fatalf("Search(%d) = (%v, %v)", k, found, err)
		}
		if got != rid(k) {
			t.Errorf("Search(%d) = %v, want %v", k, got, rid(k))
		}
	}

	if _, found, _ := bt.Search(99); found {
		t.Error("Search(99) should miss")
	}
}

func TestDuplicateKeyRejected(t *testing.T) {
	bt := testTree(t, 4)

	if err := bt.Insert(5, rid(1)); err != nil {
		t.Fatal(err)
	}
	if err := bt.Insert(5, rid(2)); !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("duplicate insert error = %v, want ErrDuplicateKey", err)
	}

	// The original mapping survives.
	got, _, _ := bt.Search(5)
	if got != rid(1) {
		t.Errorf("Search(5) = %v after duplicate attempt", got)
	}
}

func TestSplitsKeepAllKeys(t *testing.T) {
	bt := testTree(t, 4)
	const n = 200

	// Interleaved insertion order exercises splits at both edges.
	for i := 0; i < n; i++ {
		k := uint64(i)
		if i%2 == 1 {
			k = uint64(n - i)
		}
		if err := bt.Insert(k*2+1, rid(k)); err != nil {
			t.Fatalf("Insert(%d) error = %v", k*2+1, err)
		}
	}

	all, err := bt.RangeScan(0, math.MaxUint64)
	if err != nil {
		t.Fatalf("RangeScan() error = %v", err)
	}
	if len(all) != n {
		t.Fatalf("RangeScan() = %d entries, want %d", len(all), n)
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Key >= all[i].Key {
			t.Fatalf("keys out of order at %d: %d >= %d", i, all[i-1].Key, all[i].Key)
		}
	}
}

func TestRangeScanBounds(t *testing.T) {
	bt := testTree(t, 4)
	for k := uint64(1); k <= 50; k++ {
		if err := bt.Insert(k*10, rid(k)); err != nil {
			t.Fatal(err)
		}
	}

	got, err := bt.RangeScan(95, 205)
	if err != nil {
		t.Fatal(err)
	}
	want := []uint64{100, 110, 120, 130, 140, 150, 160, 170, 180, 190, 200}
	if len(got) != len(want) {
		t.Fatalf("RangeScan(95, 205) = %d entries, want %d", len(got), len(want))
	}
	for i, kr := range got {
		if kr.Key != want[i] {
			t.Errorf("entry %d = %d, want %d", i, kr.Key, want[i])
		}
	}

	if got, _ := bt.RangeScan(501, 1000); len(got) != 0 {
		t.Errorf("out-of-range scan returned %d entries", len(got))
	}
	if got, _ := bt.RangeScan(30, 20); len(got) != 0 {
		t.Errorf("inverted range returned %d entries", len(got))
	}
}

// Many splits, then a full forward traversal across the leaf chain: the
// next-leaf policy (new sibling inherits the old right neighbor) must
// produce a complete, ordered chain.
func TestLeafChainAfterManySplits(t *testing.T) {
	bt := testTree(t, 2)
	const n = 64

	for i := n; i >= 1; i-- {
		if err := bt.Insert(uint64(i), rid(uint64(i))); err != nil {
			t.Fatalf("Insert(%d) error = %v", i, err)
		}
	}

	all, err := bt.RangeScan(0, math.MaxUint64)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != n {
		t.Fatalf("traversal found %d keys, want %d", len(all), n)
	}
	for i, kr := range all {
		if kr.Key != uint64(i+1) {
			t.Fatalf("position %d holds key %d", i, kr.Key)
		}
	}
}

func TestRootChangesOnSplit(t *testing.T) {
	bt := testTree(t, 2)
	oldRoot := bt.Root()

	for k := uint64(1); k <= 10; k++ {
		if err := bt.Insert(k, rid(k)); err != nil {
			t.Fatal(err)
		}
	}
	if bt.Root() == oldRoot {
		t.Error("root should change after splits")
	}

	// Reloading from the new root sees everything.
	reloaded := Load(bt.pool, bt.file, bt.Root(), 2)
	for k := uint64(1); k <= 10; k++ {
		if _, found, err := reloaded.Search(k); err != nil || !found {
			t.Errorf("Search(%d) after reload = (%v, %v)", k, found, err)
		}
	}
}

func TestScanPredicate(t *testing.T) {
	bt := testTree(t, 4)
	for k := uint64(1); k <= 9; k++ {
		bt.Insert(k, rid(k))
	}

	eq, err := bt.ScanPredicate(ScanEq, 5)
	if err != nil || len(eq) != 1 || eq[0].Key != 5 {
		t.Errorf("ScanPredicate(=5) = (%v, %v)", eq, err)
	}
	if miss, _ := bt.ScanPredicate(ScanEq, 100); len(miss) != 0 {
		t.Errorf("ScanPredicate(=100) = %v", miss)
	}

	lt, _ := bt.ScanPredicate(ScanLt, 4)
	if len(lt) != 3 {
		t.Errorf("ScanPredicate(<4) = %d entries, want 3", len(lt))
	}
	gt, _ := bt.ScanPredicate(ScanGt, 7)
	if len(gt) != 2 {
		t.Errorf("ScanPredicate(>7) = %d entries, want 2", len(gt))
	}

	if r, _ := bt.ScanPredicate(ScanLt, 0); len(r) != 0 {
		t.Errorf("ScanPredicate(<0) = %v", r)
	}
	if r, _ := bt.ScanPredicate(ScanGt, math.MaxUint64); len(r) != 0 {
		t.Errorf("ScanPredicate(>max) = %v", r)
	}
}

func TestEncodeKeyPreservesOrder(t *testing.T) {
	values := []int64{math.MinInt64, -100, -1, 0, 1, 100, math.MaxInt64}
	for i := 1; i < len(values); i++ {
		if EncodeKey(values[i-1]) >= EncodeKey(values[i]) {
			t.Errorf("EncodeKey(%d) >= EncodeKey(%d)", values[i-1], values[i])
		}
	}
	for _, v := range values {
		if DecodeKey(EncodeKey(v)) != v {
			t.Errorf("DecodeKey(EncodeKey(%d)) != %d", v, v)
		}
	}
}

func TestNodeRoundTrip(t *testing.T) {
	buf := make([]byte, 512)

	leaf := &node{
		pageNo: 9,
		isLeaf: true,
		parent: 3,
		keys:   []uint64{10, 20, 30},
		rids:   []types.RID{rid(1), rid(2), rid(3)},
		next:   17,
	}
	if err := leaf.serialize(buf); err != nil {
		t.Fatalf("serialize() error = %v", err)
	}
	got, err := deserializeNode(9, buf)
	if err != nil {
		t.Fatalf("deserializeNode() error = %v", err)
	}
	if !got.isLeaf || got.parent != 3 || got.next != 17 || len(got.keys) != 3 {
		t.Errorf("leaf round trip = %+v", got)
	}
	for i := range leaf.keys {
		if got.keys[i] != leaf.keys[i] || got.rids[i] != leaf.rids[i] {
			t.Errorf("entry %d mismatch", i)
		}
	}

	internal := &node{
		pageNo:   4,
		isLeaf:   false,
		parent:   0,
		keys:     []uint64{50},
		children: []types.PageID{9, 17},
	}
	if err := internal.serialize(buf); err != nil {
		t.Fatal(err)
	}
	got, err = deserializeNode(4, buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.isLeaf || len(got.children) != 2 || got.children[1] != 17 {
		t.Errorf("internal round trip = %+v", got)
	}
}
