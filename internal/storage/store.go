package storage

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"pagedb/pkg/types"
)

const (
	// DataFileName is the page file's name inside the data directory.
	DataFileName    = "data.db"
	catalogFileName = "catalog.yaml"
)

// UpdateLogger receives a WAL update record for a page mutation: equal
// length before/after images of the region starting at offset.
type UpdateLogger interface {
	LogUpdate(tx types.TxID, pageNo types.PageID, offset uint32, before, after []byte) (types.LSN, error)
}

// Storage is the facade over the page file, buffer pool, free list, and
// catalog. Callers serialize statements through the engine's write
// guard; Storage itself does not lock.
type Storage struct {
	dir      string
	file     *PageFile
	pool     *BufferPool
	freeList *FreeList
	catalog  *Catalog
	logger   UpdateLogger
}

// Open opens or creates a database directory with the given page size
// and buffer pool capacity, loading the catalog sidecar if present.
func Open(dir string, pageSize, poolFrames int) (*Storage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	file, err := OpenPageFile(filepath.Join(dir, DataFileName), pageSize)
	if err != nil {
		return nil, err
	}

	s := &Storage{
		dir:      dir,
		file:     file,
		pool:     NewBufferPool(file, poolFrames),
		freeList: NewFreeList(),
		catalog:  NewCatalog(),
	}

	if err := s.loadCatalog(); err != nil {
		file.Close()
		return nil, err
	}
	if err := s.rebuildFreeList(); err != nil {
		file.Close()
		return nil, err
	}
	return s, nil
}

// SetLogger wires the WAL; data mutations are logged from then on.
func (s *Storage) SetLogger(l UpdateLogger) {
	s.logger = l
}

// File exposes the page file (recovery writes through it directly).
func (s *Storage) File() *PageFile { return s.file }

// Pool exposes the buffer pool (the B+Tree runs over it).
func (s *Storage) Pool() *BufferPool { return s.pool }

// Catalog exposes the table and index catalog.
func (s *Storage) Catalog() *Catalog { return s.catalog }

// PageSize returns the configured page size.
func (s *Storage) PageSize() int { return s.file.PageSize() }

// loadCatalog reads the sidecar file, if any.
func (s *Storage) loadCatalog() error {
	buf, err := os.ReadFile(filepath.Join(s.dir, catalogFileName))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read catalog: %w", err)
	}
	var doc catalogDoc
	if err := yaml.Unmarshal(buf, &doc); err != nil {
		return fmt.Errorf("failed to parse catalog: %w", err)
	}
	catalog, err := catalogFromDoc(&doc)
	if err != nil {
		return err
	}
	s.catalog = catalog
	return nil
}

// SaveCatalog writes the sidecar atomically. Called after DDL and after
// committed row inserts so the row directory survives restart.
func (s *Storage) SaveCatalog() error {
	out, err := yaml.Marshal(s.catalog.toDoc())
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}
	path := filepath.Join(s.dir, catalogFileName)
	if err := atomic.WriteFile(path, bytes.NewReader(out)); err != nil {
		return fmt.Errorf("failed to write catalog: %w", err)
	}
	return nil
}

// rebuildFreeList re-registers the free space of every page that holds
// rows, in page order, restoring deterministic first-fit placement.
func (s *Storage) rebuildFreeList() error {
	seen := make(map[types.PageID]bool)
	var pages []types.PageID
	for _, name := range s.catalog.TableNames() {
		t, _ := s.catalog.GetTable(name)
		for _, rid := range t.Records {
			if !seen[rid.PageNo] {
				seen[rid.PageNo] = true
				pages = append(pages, rid.PageNo)
			}
		}
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i] < pages[j] })
	for _, pageNo := range pages {
		frame, err := s.pool.FetchPage(pageNo)
		if err != nil {
			return err
		}
		s.freeList.Register(pageNo, PageFromBytes(frame.Data).FreeSpace())
		s.pool.Unpin(pageNo, false)
	}
	return nil
}

// Insert stores a record on some data page, choosing first-fit from the
// free list and allocating a fresh slotted page when nothing fits. The
// mutation is WAL-logged with whole-page before/after images when a
// transaction is supplied.
func (s *Storage) Insert(tx types.TxID, data []byte) (types.RID, error) {
	need := len(data) + SlotEntrySize

	pageNo, ok := s.freeList.ChoosePage(need)
	fresh := false
	if !ok {
		var err error
		pageNo, err = s.file.AllocatePage()
		if err != nil {
			return types.RID{}, err
		}
		fresh = true
	}

	frame, err := s.pool.FetchPage(pageNo)
	if err != nil {
		return types.RID{}, err
	}

	var page *SlottedPage
	if fresh {
		page = NewSlottedPage(pageNo, frame.Data)
	} else {
		page = PageFromBytes(frame.Data)
	}

	before := make([]byte, len(frame.Data))
	copy(before, frame.Data)

	rid, err := page.InsertTuple(data)
	if err != nil {
		// Stale free-list entry: record reality and retry on a new page.
		s.freeList.Register(pageNo, page.FreeSpace())
		s.pool.Unpin(pageNo, false)
		if err == ErrPageFull && !fresh {
			return s.insertOnFreshPage(tx, data)
		}
		return types.RID{}, err
	}

	if s.logger != nil && tx != types.InvalidTxID {
		after := make([]byte, len(frame.Data))
		copy(after, frame.Data)
		if _, err := s.logger.LogUpdate(tx, pageNo, 0, before, after); err != nil {
			s.pool.Unpin(pageNo, true)
			return types.RID{}, err
		}
	}

	s.pool.Unpin(pageNo, true)
	s.freeList.Register(pageNo, page.FreeSpace())
	return rid, nil
}

func (s *Storage) insertOnFreshPage(tx types.TxID, data []byte) (types.RID, error) {
	pageNo, err := s.file.AllocatePage()
	if err != nil {
		return types.RID{}, err
	}
	frame, err := s.pool.FetchPage(pageNo)
	if err != nil {
		return types.RID{}, err
	}
	page := NewSlottedPage(pageNo, frame.Data)

	before := make([]byte, len(frame.Data))
	copy(before, frame.Data)

	rid, err := page.InsertTuple(data)
	if err != nil {
		s.pool.Unpin(pageNo, true)
		return types.RID{}, err
	}

	if s.logger != nil && tx != types.InvalidTxID {
		after := make([]byte, len(frame.Data))
		copy(after, frame.Data)
		if _, err := s.logger.LogUpdate(tx, pageNo, 0, before, after); err != nil {
			s.pool.Unpin(pageNo, true)
			return types.RID{}, err
		}
	}

	s.pool.Unpin(pageNo, true)
	s.freeList.Register(pageNo, page.FreeSpace())
	return rid, nil
}

// InsertRow validates, serializes, and stores one row, recording its RID
// in the table's row directory. The cols list is a validation artifact:
// values are positional over the table's declared columns.
func (s *Storage) InsertRow(tx types.TxID, table string, cols []string, values []types.Value) (types.RID, error) {
	t, ok := s.catalog.GetTable(table)
	if !ok {
		return types.RID{}, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	if len(cols) != len(values) {
		return types.RID{}, fmt.Errorf("insert into %s: %d columns but %d values", table, len(cols), len(values))
	}
	if len(values) != len(t.Columns) {
		return types.RID{}, fmt.Errorf("insert into %s: table has %d columns, got %d values", table, len(t.Columns), len(values))
	}

	rid, err := s.Insert(tx, types.SerializeRow(values))
	if err != nil {
		return types.RID{}, err
	}
	t.Records = append(t.Records, rid)
	return rid, nil
}

// Fetch returns an owned copy of the record payload at rid.
func (s *Storage) Fetch(rid types.RID) ([]byte, error) {
	frame, err := s.pool.FetchPage(rid.PageNo)
	if err != nil {
		return nil, err
	}
	defer s.pool.Unpin(rid.PageNo, false)

	data, ok := PageFromBytes(frame.Data).GetTuple(rid.Slot)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSlotNotFound, rid)
	}
	return data, nil
}

// FetchRow fetches and deserializes one row.
func (s *Storage) FetchRow(rid types.RID) ([]types.Value, error) {
	data, err := s.Fetch(rid)
	if err != nil {
		return nil, err
	}
	return types.DeserializeRow(data)
}

// ScanTable materializes every row of a table in row-directory order.
func (s *Storage) ScanTable(table string) ([][]types.Value, error) {
	t, ok := s.catalog.GetTable(table)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}

	rids := make([]types.RID, len(t.Records))
	copy(rids, t.Records)

	rows := make([][]types.Value, 0, len(rids))
	for _, rid := range rids {
		row, err := s.FetchRow(rid)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// CreateTable registers a table in the catalog and persists the sidecar.
func (s *Storage) CreateTable(name string, cols []ColumnInfo) error {
	if err := s.catalog.CreateTable(name, cols); err != nil {
		return err
	}
	return s.SaveCatalog()
}

// AddIndex registers index metadata (the root page has already been
// allocated and formatted by the index layer) and persists the sidecar.
func (s *Storage) AddIndex(info *IndexInfo) error {
	if err := s.catalog.AddIndex(info); err != nil {
		return err
	}
	return s.SaveCatalog()
}

// SetIndexRoot records a new root page after a root split.
func (s *Storage) SetIndexRoot(info *IndexInfo, root types.PageID) error {
	info.RootPage = root
	return s.SaveCatalog()
}

// FlushAll checkpoints the buffer pool.
func (s *Storage) FlushAll() error {
	return s.pool.FlushAll()
}

// Close flushes dirty state and closes the data file.
func (s *Storage) Close() error {
	if err := s.pool.FlushAll(); err != nil {
		s.file.Close()
		return err
	}
	if err := s.SaveCatalog(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
