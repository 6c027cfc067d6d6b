package storage

import "pagedb/pkg/types"

// FreeList tracks free bytes per data page and hands out pages first-fit.
// O(pages) selection is fine at this scale and keeps placement
// deterministic.
type FreeList struct {
	order []types.PageID
	free  map[types.PageID]int
}

// NewFreeList returns an empty tracker.
func NewFreeList() *FreeList {
	return &FreeList{free: make(map[types.PageID]int)}
}

// Register upserts the free-byte count for a page. First registration
// fixes the page's position in first-fit order.
func (fl *FreeList) Register(pageNo types.PageID, freeBytes int) {
	if _, ok := fl.free[pageNo]; !ok {
		fl.order = append(fl.order, pageNo)
	}
	fl.free[pageNo] = freeBytes
}

// Remove drops a page from the tracker.
func (fl *FreeList) Remove(pageNo types.PageID) {
	if _, ok := fl.free[pageNo]; !ok {
		return
	}
	delete(fl.free, pageNo)
	for i, p := range fl.order {
		if p == pageNo {
			fl.order = append(fl.order[:i], fl.order[i+1:]...)
			break
		}
	}
}

// ChoosePage returns the first tracked page with at least minBytes free.
func (fl *FreeList) ChoosePage(minBytes int) (types.PageID, bool) {
	for _, p := range fl.order {
		if fl.free[p] >= minBytes {
			return p, true
		}
	}
	return 0, false
}

// Len returns the number of tracked pages.
func (fl *FreeList) Len() int {
	return len(fl.order)
}
