package index

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"pagedb/internal/storage"
	"pagedb/pkg/types"
)

// DefaultOrder is the key budget per node when CREATE INDEX does not
// specify one.
const DefaultOrder = 4

var (
	ErrDuplicateKey = errors.New("duplicate key in index")
	ErrKeyNotFound  = errors.New("key not found in index")
)

// BPlusTree is a disk-resident index from u64 keys to RIDs. Order is the
// maximum number of keys a node may hold before it must split; the root
// page changes on root splits, so callers persist Root() after inserts.
type BPlusTree struct {
	pool  *storage.BufferPool
	file  *storage.PageFile
	root  types.PageID
	order int
}

// Create allocates and formats an empty leaf root.
func Create(pool *storage.BufferPool, file *storage.PageFile, order int) (*BPlusTree, error) {
	if order < 2 {
		return nil, fmt.Errorf("index order %d too small", order)
	}
	need := nodeHeaderSize + (order+1)*(keySize+ridSize) + nextLeafSize
	if need > file.PageSize() {
		return nil, fmt.Errorf("index order %d does not fit a %d-byte page", order, file.PageSize())
	}

	pageNo, err := file.AllocatePage()
	if err != nil {
		return nil, err
	}
	bt := &BPlusTree{pool: pool, file: file, root: pageNo, order: order}
	if err := bt.writeNode(&node{pageNo: pageNo, isLeaf: true}); err != nil {
		return nil, err
	}
	return bt, nil
}

// Load opens an existing tree rooted at root.
func Load(pool *storage.BufferPool, file *storage.PageFile, root types.PageID, order int) *BPlusTree {
	return &BPlusTree{pool: pool, file: file, root: root, order: order}
}

// Root returns the current root page.
func (bt *BPlusTree) Root() types.PageID {
	return bt.root
}

// readNode fetches a page and decodes it into an owned node image.
func (bt *BPlusTree) readNode(pageNo types.PageID) (*node, error) {
	frame, err := bt.pool.FetchPage(pageNo)
	if err != nil {
		return nil, err
	}
	n, err := deserializeNode(pageNo, frame.Data)
	bt.pool.Unpin(pageNo, false)
	return n, err
}

// writeNode serializes a node image back into its frame.
func (bt *BPlusTree) writeNode(n *node) error {
	frame, err := bt.pool.FetchPage(n.pageNo)
	if err != nil {
		return err
	}
	err = n.serialize(frame.Data)
	bt.pool.Unpin(n.pageNo, err == nil)
	return err
}

// findLeaf descends to the leaf that covers key, returning the leaf and
// the root-to-leaf path of page numbers (leaf included).
func (bt *BPlusTree) findLeaf(key uint64) (*node, []types.PageID, error) {
	path := []types.PageID{bt.root}
	n, err := bt.readNode(bt.root)
	if err != nil {
		return nil, nil, err
	}

	for !n.isLeaf {
		pos := sort.Search(len(n.keys), func(i int) bool { return n.keys[i] >= key })
		if pos < len(n.keys) && n.keys[pos] == key {
			pos++
		}
		child := n.children[pos]
		path = append(path, child)
		if n, err = bt.readNode(child); err != nil {
			return nil, nil, err
		}
	}
	return n, path, nil
}

// Search returns the RID stored under key.
func (bt *BPlusTree) Search(key uint64) (types.RID, bool, error) {
	leaf, _, err := bt.findLeaf(key)
	if err != nil {
		return types.RID{}, false, err
	}
	for i, k := range leaf.keys {
		if k == key {
			return leaf.rids[i], true, nil
		}
	}
	return types.RID{}, false, nil
}

// Insert adds (key, rid), splitting along the cached search path as
// needed. Duplicate keys are rejected.
func (bt *BPlusTree) Insert(key uint64, rid types.RID) error {
	leaf, path, err := bt.findLeaf(key)
	if err != nil {
		return err
	}

	pos := sort.Search(len(leaf.keys), func(i int) bool { return leaf.keys[i] >= key })
	if pos < len(leaf.keys) && leaf.keys[pos] == key {
		return fmt.Errorf("%w: %d", ErrDuplicateKey, key)
	}

	leaf.keys = append(leaf.keys, 0)
	copy(leaf.keys[pos+1:], leaf.keys[pos:])
	leaf.keys[pos] = key
	leaf.rids = append(leaf.rids, types.RID{})
	copy(leaf.rids[pos+1:], leaf.rids[pos:])
	leaf.rids[pos] = rid

	if len(leaf.keys) <= bt.order {
		return bt.writeNode(leaf)
	}
	return bt.splitLeaf(leaf, path)
}

// splitLeaf moves the upper half of an over-full leaf into a new right
// sibling, linking it into the leaf chain, and propagates the split key.
func (bt *BPlusTree) splitLeaf(leaf *node, path []types.PageID) error {
	rightPage, err := bt.file.AllocatePage()
	if err != nil {
		return err
	}

	n := len(leaf.keys)
	mid := (n + 1) / 2

	right := &node{
		pageNo: rightPage,
		isLeaf: true,
		parent: leaf.parent,
		keys:   append([]uint64(nil), leaf.keys[mid:]...),
		rids:   append([]types.RID(nil), leaf.rids[mid:]...),
		next:   leaf.next,
	}
	leaf.keys = leaf.keys[:mid]
	leaf.rids = leaf.rids[:mid]
	leaf.next = rightPage

	if err := bt.writeNode(leaf); err != nil {
		return err
	}
	if err := bt.writeNode(right); err != nil {
		return err
	}
	return bt.insertIntoParent(path, leaf.pageNo, right.keys[0], rightPage)
}

// insertIntoParent walks the cached path upward, inserting the split key
// and splitting internal nodes until one absorbs the insert or a new
// root is made.
func (bt *BPlusTree) insertIntoParent(path []types.PageID, leftPage types.PageID, key uint64, rightPage types.PageID) error {
	for {
		if len(path) == 1 {
			// The split node was the root: grow the tree by one level.
			rootPage, err := bt.file.AllocatePage()
			if err != nil {
				return err
			}
			root := &node{
				pageNo:   rootPage,
				isLeaf:   false,
				keys:     []uint64{key},
				children: []types.PageID{leftPage, rightPage},
			}
			if err := bt.writeNode(root); err != nil {
				return err
			}
			if err := bt.setParent(leftPage, rootPage); err != nil {
				return err
			}
			if err := bt.setParent(rightPage, rootPage); err != nil {
				return err
			}
			bt.root = rootPage
			return nil
		}

		parentPage := path[len(path)-2]
		parent, err := bt.readNode(parentPage)
		if err != nil {
			return err
		}

		pos := -1
		for i, c := range parent.children {
			if c == leftPage {
				pos = i
				break
			}
		}
		if pos < 0 {
			return fmt.Errorf("page %d not found in parent %d", leftPage, parentPage)
		}

		parent.keys = append(parent.keys, 0)
		copy(parent.keys[pos+1:], parent.keys[pos:])
		parent.keys[pos] = key
		parent.children = append(parent.children, 0)
		copy(parent.children[pos+2:], parent.children[pos+1:])
		parent.children[pos+1] = rightPage

		if err := bt.setParent(rightPage, parentPage); err != nil {
			return err
		}

		if len(parent.keys) <= bt.order {
			return bt.writeNode(parent)
		}

		// Internal split: push the middle key up, removed from both halves.
		siblingPage, err := bt.file.AllocatePage()
		if err != nil {
			return err
		}
		mid := len(parent.keys) / 2
		promote := parent.keys[mid]

		sibling := &node{
			pageNo:   siblingPage,
			isLeaf:   false,
			parent:   parent.parent,
			keys:     append([]uint64(nil), parent.keys[mid+1:]...),
			children: append([]types.PageID(nil), parent.children[mid+1:]...),
		}
		parent.keys = parent.keys[:mid]
		parent.children = parent.children[:mid+1]

		if err := bt.writeNode(parent); err != nil {
			return err
		}
		if err := bt.writeNode(sibling); err != nil {
			return err
		}
		for _, c := range sibling.children {
			if err := bt.setParent(c, siblingPage); err != nil {
				return err
			}
		}

		leftPage, key, rightPage = parentPage, promote, siblingPage
		path = path[:len(path)-1]
	}
}

// setParent rewrites a node's parent pointer.
func (bt *BPlusTree) setParent(pageNo, parent types.PageID) error {
	n, err := bt.readNode(pageNo)
	if err != nil {
		return err
	}
	n.parent = parent
	return bt.writeNode(n)
}

// KeyRID pairs a key with the RID stored under it.
type KeyRID struct {
	Key uint64
	RID types.RID
}

// RangeScan emits every (key, rid) with lo <= key <= hi in ascending key
// order, following the leaf chain.
func (bt *BPlusTree) RangeScan(lo, hi uint64) ([]KeyRID, error) {
	if lo > hi {
		return nil, nil
	}

	leaf, _, err := bt.findLeaf(lo)
	if err != nil {
		return nil, err
	}

	var out []KeyRID
	for {
		for i, k := range leaf.keys {
			if k > hi {
				return out, nil
			}
			if k >= lo {
				out = append(out, KeyRID{Key: k, RID: leaf.rids[i]})
			}
		}
		if leaf.next == 0 {
			return out, nil
		}
		if leaf, err = bt.readNode(leaf.next); err != nil {
			return nil, err
		}
	}
}

// ScanOp is the comparison shape an index scan supports.
type ScanOp int

const (
	ScanEq ScanOp = iota
	ScanLt
	ScanGt
)

// ScanPredicate resolves a `column OP literal` bound against the index
// key: a point lookup for =, the range [0, key-1] for <, and
// [key+1, MaxUint64] for >.
func (bt *BPlusTree) ScanPredicate(op ScanOp, key uint64) ([]KeyRID, error) {
	switch op {
	case ScanEq:
		rid, found, err := bt.Search(key)
		if err != nil || !found {
			return nil, err
		}
		return []KeyRID{{Key: key, RID: rid}}, nil
	case ScanLt:
		if key == 0 {
			return nil, nil
		}
		return bt.RangeScan(0, key-1)
	case ScanGt:
		if key == math.MaxUint64 {
			return nil, nil
		}
		return bt.RangeScan(key+1, math.MaxUint64)
	default:
		return nil, fmt.Errorf("unsupported index scan op %d", op)
	}
}
