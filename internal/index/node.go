// Package index implements the disk-resident B+Tree mapping u64 keys to
// row ids.
package index

import (
	"encoding/binary"
	"fmt"

	"pagedb/pkg/types"
)

// Node page layout. Header: NodeType(1) + KeyCount(2) + Parent(8).
//
//	Internal: [header][keys u64 x k][children u64 x k+1]
//	Leaf:     [header][keys u64 x k][rids (u64,u16) x k][nextLeaf u64]
const (
	nodeInternal byte = 0
	nodeLeaf     byte = 1

	nodeHeaderSize = 11
	keySize        = 8
	childSize      = 8
	ridSize        = 10
	nextLeafSize   = 8
)

// node is the in-memory image of one B+Tree page. Slices are owned
// copies; writing a node re-serializes it into its frame.
type node struct {
	pageNo   types.PageID
	isLeaf   bool
	parent   types.PageID
	keys     []uint64
	children []types.PageID // internal only, len(keys)+1
	rids     []types.RID    // leaf only, len(keys)
	next     types.PageID   // leaf only, 0 terminates the chain
}

// serialize writes the node into a page buffer, zero-filling the rest.
func (n *node) serialize(buf []byte) error {
	need := nodeHeaderSize + len(n.keys)*keySize
	if n.isLeaf {
		need += len(n.rids)*ridSize + nextLeafSize
	} else {
		need += len(n.children) * childSize
	}
	if need > len(buf) {
		return fmt.Errorf("node with %d keys does not fit page %d", len(n.keys), n.pageNo)
	}

	for i := range buf {
		buf[i] = 0
	}

	if n.isLeaf {
		buf[0] = nodeLeaf
	} else {
		buf[0] = nodeInternal
	}
	binary.LittleEndian.PutUint16(buf[1:3], uint16(len(n.keys)))
	binary.LittleEndian.PutUint64(buf[3:11], uint64(n.parent))

	offset := nodeHeaderSize
	for _, k := range n.keys {
		binary.LittleEndian.PutUint64(buf[offset:], k)
		offset += keySize
	}

	if n.isLeaf {
		for _, rid := range n.rids {
			binary.LittleEndian.PutUint64(buf[offset:], uint64(rid.PageNo))
			binary.LittleEndian.PutUint16(buf[offset+8:], rid.Slot)
			offset += ridSize
		}
		binary.LittleEndian.PutUint64(buf[offset:], uint64(n.next))
	} else {
		for _, c := range n.children {
			binary.LittleEndian.PutUint64(buf[offset:], uint64(c))
			offset += childSize
		}
	}
	return nil
}

// deserializeNode reads a node image back from a page buffer.
func deserializeNode(pageNo types.PageID, buf []byte) (*node, error) {
	if len(buf) < nodeHeaderSize {
		return nil, fmt.Errorf("page %d too small for node header", pageNo)
	}

	typ := buf[0]
	if typ != nodeInternal && typ != nodeLeaf {
		return nil, fmt.Errorf("page %d has invalid node type %d", pageNo, typ)
	}
	keyCount := int(binary.LittleEndian.Uint16(buf[1:3]))

	n := &node{
		pageNo: pageNo,
		isLeaf: typ == nodeLeaf,
		parent: types.PageID(binary.LittleEndian.Uint64(buf[3:11])),
	}

	need := nodeHeaderSize + keyCount*keySize
	if n.isLeaf {
		need += keyCount*ridSize + nextLeafSize
	} else {
		need += (keyCount + 1) * childSize
	}
	if need > len(buf) {
		return nil, fmt.Errorf("page %d truncated: %d keys need %d bytes", pageNo, keyCount, need)
	}

	offset := nodeHeaderSize
	n.keys = make([]uint64, keyCount)
	for i := range n.keys {
		n.keys[i] = binary.LittleEndian.Uint64(buf[offset:])
		offset += keySize
	}

	if n.isLeaf {
		n.rids = make([]types.RID, keyCount)
		for i := range n.rids {
			n.rids[i] = types.RID{
				PageNo: types.PageID(binary.LittleEndian.Uint64(buf[offset:])),
				Slot:   binary.LittleEndian.Uint16(buf[offset+8:]),
			}
			offset += ridSize
		}
		n.next = types.PageID(binary.LittleEndian.Uint64(buf[offset:]))
	} else {
		n.children = make([]types.PageID, keyCount+1)
		for i := range n.children {
			n.children[i] = types.PageID(binary.LittleEndian.Uint64(buf[offset:]))
			offset += childSize
		}
	}
	return n, nil
}

// EncodeKey maps an Int64 column value onto the tree's u64 key space so
// that unsigned comparison preserves signed order (sign bit flipped).
func EncodeKey(v int64) uint64 {
	return uint64(v) ^ (1 << 63)
}

// DecodeKey is the inverse of EncodeKey.
func DecodeKey(k uint64) int64 {
	return int64(k ^ (1 << 63))
}
