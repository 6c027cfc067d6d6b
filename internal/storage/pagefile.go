// Package storage implements the paged data file, the buffer pool, the
// slotted record pages, and the storage facade with its catalog.
package storage

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"pagedb/pkg/types"
)

// DefaultPageSize is the page size used when configuration does not
// override it.
const DefaultPageSize = 4096

// ErrPageOverflow reports page-offset arithmetic that would overflow.
var ErrPageOverflow = errors.New("page offset overflow")

// PageFile reads and writes fixed-size pages on a single file. The file
// has no header: page n occupies bytes [n*pageSize, (n+1)*pageSize).
type PageFile struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	pageSize int
}

// OpenPageFile opens or creates the data file at path.
func OpenPageFile(path string, pageSize int) (*PageFile, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("invalid page size %d", pageSize)
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}
	return &PageFile{file: file, path: path, pageSize: pageSize}, nil
}

// PageSize returns the configured page size.
func (pf *PageFile) PageSize() int {
	return pf.pageSize
}

func (pf *PageFile) offset(pageNo types.PageID) (int64, error) {
	if pageNo > math.MaxInt64/types.PageID(pf.pageSize) {
		return 0, fmt.Errorf("%w: page %d", ErrPageOverflow, pageNo)
	}
	return int64(pageNo) * int64(pf.pageSize), nil
}

// ReadPage reads exactly one page. A partial read fails with
// io.ErrUnexpectedEOF.
func (pf *PageFile) ReadPage(pageNo types.PageID) ([]byte, error) {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	off, err := pf.offset(pageNo)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, pf.pageSize)
	n, err := pf.file.ReadAt(buf, off)
	if n < pf.pageSize {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("failed to read page %d: %w", pageNo, err)
	}
	return buf, nil
}

// WritePage writes exactly one page and flushes the data to disk.
func (pf *PageFile) WritePage(pageNo types.PageID, buf []byte) error {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	return pf.writePageLocked(pageNo, buf)
}

func (pf *PageFile) writePageLocked(pageNo types.PageID, buf []byte) error {
	if len(buf) != pf.pageSize {
		return fmt.Errorf("write of %d bytes to page %d, want %d", len(buf), pageNo, pf.pageSize)
	}
	off, err := pf.offset(pageNo)
	if err != nil {
		return err
	}
	if _, err := pf.file.WriteAt(buf, off); err != nil {
		return fmt.Errorf("failed to write page %d: %w", pageNo, err)
	}
	if err := pf.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync page %d: %w", pageNo, err)
	}
	return nil
}

// NumPages returns ceil(fileSize / pageSize).
func (pf *PageFile) NumPages() (types.PageID, error) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	return pf.numPagesLocked()
}

func (pf *PageFile) numPagesLocked() (types.PageID, error) {
	info, err := pf.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat data file: %w", err)
	}
	size := info.Size()
	pages := size / int64(pf.pageSize)
	if size%int64(pf.pageSize) != 0 {
		pages++
	}
	return types.PageID(pages), nil
}

// AllocatePage appends a zero-filled page and returns its number.
func (pf *PageFile) AllocatePage() (types.PageID, error) {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	pageNo, err := pf.numPagesLocked()
	if err != nil {
		return 0, err
	}
	if err := pf.writePageLocked(pageNo, make([]byte, pf.pageSize)); err != nil {
		return 0, err
	}
	return pageNo, nil
}

// SyncAll flushes file data and metadata.
func (pf *PageFile) SyncAll() error {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	return pf.file.Sync()
}

// Close closes the underlying file.
func (pf *PageFile) Close() error {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	return pf.file.Close()
}
