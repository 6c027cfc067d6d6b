// Package wal implements the write-ahead log and crash recovery.
package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"pagedb/internal/metrics"
	"pagedb/pkg/types"
)

// RecordType discriminates log records.
type RecordType byte

const (
	RecordBegin  RecordType = 0
	RecordCommit RecordType = 1
	RecordAbort  RecordType = 2
	RecordUpdate RecordType = 3
)

func (t RecordType) String() string {
	switch t {
	case RecordBegin:
		return "BEGIN"
	case RecordCommit:
		return "COMMIT"
	case RecordAbort:
		return "ABORT"
	case RecordUpdate:
		return "UPDATE"
	default:
		return fmt.Sprintf("RecordType(%d)", byte(t))
	}
}

var ErrCorruptRecord = errors.New("malformed WAL record")

// Record is one WAL entry. On disk:
//
//	[total u32][lsn u64][prevLSN u64][txID u64][type u8][payloadLen u32][payload]
//
// total counts everything after itself, so records are self-delimiting.
type Record struct {
	LSN     types.LSN
	PrevLSN types.LSN
	TxID    types.TxID
	Type    RecordType
	Payload []byte
}

const recordFixedSize = 8 + 8 + 8 + 1 + 4

func encodeRecord(r *Record) []byte {
	total := recordFixedSize + len(r.Payload)
	buf := make([]byte, 4+total)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(total))
	binary.LittleEndian.PutUint64(buf[4:12], uint64(r.LSN))
	binary.LittleEndian.PutUint64(buf[12:20], uint64(r.PrevLSN))
	binary.LittleEndian.PutUint64(buf[20:28], uint64(r.TxID))
	buf[28] = byte(r.Type)
	binary.LittleEndian.PutUint32(buf[29:33], uint32(len(r.Payload)))
	copy(buf[33:], r.Payload)
	return buf
}

func decodeRecord(buf []byte) (*Record, error) {
	if len(buf) < recordFixedSize {
		return nil, fmt.Errorf("%w: body of %d bytes", ErrCorruptRecord, len(buf))
	}
	r := &Record{
		LSN:     types.LSN(binary.LittleEndian.Uint64(buf[0:8])),
		PrevLSN: types.LSN(binary.LittleEndian.Uint64(buf[8:16])),
		TxID:    types.TxID(binary.LittleEndian.Uint64(buf[16:24])),
		Type:    RecordType(buf[24]),
	}
	payloadLen := binary.LittleEndian.Uint32(buf[25:29])
	if int(payloadLen) != len(buf)-recordFixedSize {
		return nil, fmt.Errorf("%w: payload length %d in %d-byte body", ErrCorruptRecord, payloadLen, len(buf))
	}
	if payloadLen > 0 {
		r.Payload = make([]byte, payloadLen)
		copy(r.Payload, buf[recordFixedSize:])
	}
	return r, nil
}

// EncodeUpdatePayload builds an update payload:
//
//	[pageNo u64][offset u32][beforeImage][afterImage]
//
// with equal-length images.
func EncodeUpdatePayload(pageNo types.PageID, offset uint32, before, after []byte) ([]byte, error) {
	if len(before) != len(after) {
		return nil, fmt.Errorf("before image %d bytes, after %d", len(before), len(after))
	}
	buf := make([]byte, 12+len(before)+len(after))
	binary.LittleEndian.PutUint64(buf[0:8], uint64(pageNo))
	binary.LittleEndian.PutUint32(buf[8:12], offset)
	copy(buf[12:], before)
	copy(buf[12+len(before):], after)
	return buf, nil
}

// DecodeUpdatePayload splits an update payload back into its parts.
func DecodeUpdatePayload(payload []byte) (pageNo types.PageID, offset uint32, before, after []byte, err error) {
	if len(payload) < 12 || (len(payload)-12)%2 != 0 {
		return 0, 0, nil, nil, fmt.Errorf("%w: update payload of %d bytes", ErrCorruptRecord, len(payload))
	}
	pageNo = types.PageID(binary.LittleEndian.Uint64(payload[0:8]))
	offset = binary.LittleEndian.Uint32(payload[8:12])
	imgLen := (len(payload) - 12) / 2
	before = payload[12 : 12+imgLen]
	after = payload[12+imgLen:]
	return pageNo, offset, before, after, nil
}

// LogManager is the append-only WAL writer. Records are buffered in
// memory and drained in LSN order by Flush; LogCommit and LogAbort force
// the calling transaction's records to disk before returning.
type LogManager struct {
	mu         sync.Mutex
	file       *os.File
	path       string
	nextLSN    uint64
	flushedLSN types.LSN
	lastLSN    map[types.TxID]types.LSN
	buffer     []*Record
}

// OpenLog opens or creates the WAL at path. Existing records are scanned
// to restore LSN assignment and per-transaction chains; a partial
// trailing record is truncated away.
func OpenLog(path string) (*LogManager, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL: %w", err)
	}

	lm := &LogManager{
		file:    file,
		path:    path,
		nextLSN: 1,
		lastLSN: make(map[types.TxID]types.LSN),
	}

	records, end, err := scanRecords(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	if err := file.Truncate(end); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to truncate WAL tail: %w", err)
	}
	if _, err := file.Seek(end, io.SeekStart); err != nil {
		file.Close()
		return nil, err
	}

	for _, r := range records {
		lm.nextLSN = uint64(r.LSN) + 1
		lm.flushedLSN = r.LSN
		switch r.Type {
		case RecordCommit, RecordAbort:
			delete(lm.lastLSN, r.TxID)
		default:
			lm.lastLSN[r.TxID] = r.LSN
		}
	}
	return lm, nil
}

// scanRecords reads every complete record, stopping at the first short
// read, and reports the file offset where valid data ends.
func scanRecords(file *os.File) ([]*Record, int64, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, 0, err
	}

	var records []*Record
	var end int64
	sizeBuf := make([]byte, 4)
	for {
		if _, err := io.ReadFull(file, sizeBuf); err != nil {
			break
		}
		total := binary.LittleEndian.Uint32(sizeBuf)
		body := make([]byte, total)
		if _, err := io.ReadFull(file, body); err != nil {
			break
		}
		r, err := decodeRecord(body)
		if err != nil {
			break
		}
		records = append(records, r)
		end += int64(4 + total)
	}
	return records, end, nil
}

// ReadAll re-reads the log from disk, ignoring any partial trailing
// record. Used by recovery.
func (lm *LogManager) ReadAll() ([]*Record, error) {
	file, err := os.Open(lm.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL for reading: %w", err)
	}
	defer file.Close()

	records, _, err := scanRecords(file)
	return records, err
}

func (lm *LogManager) appendLocked(tx types.TxID, typ RecordType, payload []byte) types.LSN {
	lsn := types.LSN(lm.nextLSN)
	lm.nextLSN++

	r := &Record{
		LSN:     lsn,
		PrevLSN: lm.lastLSN[tx],
		TxID:    tx,
		Type:    typ,
		Payload: payload,
	}
	lm.buffer = append(lm.buffer, r)
	metrics.WALAppends.Inc()

	switch typ {
	case RecordCommit, RecordAbort:
		delete(lm.lastLSN, tx)
	default:
		lm.lastLSN[tx] = lsn
	}
	return lsn
}

// LogBegin buffers a Begin record.
func (lm *LogManager) LogBegin(tx types.TxID) types.LSN {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.appendLocked(tx, RecordBegin, nil)
}

// LogUpdate buffers an Update record for a page mutation.
func (lm *LogManager) LogUpdate(tx types.TxID, pageNo types.PageID, offset uint32, before, after []byte) (types.LSN, error) {
	payload, err := EncodeUpdatePayload(pageNo, offset, before, after)
	if err != nil {
		return 0, err
	}
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.appendLocked(tx, RecordUpdate, payload), nil
}

// LogCommit buffers a Commit record and forces the log through it. On
// return every record of the committing transaction is durable.
func (lm *LogManager) LogCommit(tx types.TxID) (types.LSN, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lsn := lm.appendLocked(tx, RecordCommit, nil)
	return lsn, lm.flushLocked(lsn)
}

// LogAbort buffers an Abort record and forces the log through it.
func (lm *LogManager) LogAbort(tx types.TxID) (types.LSN, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lsn := lm.appendLocked(tx, RecordAbort, nil)
	return lsn, lm.flushLocked(lsn)
}

// Flush drains buffered records with LSN <= target to disk.
func (lm *LogManager) Flush(target types.LSN) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.flushLocked(target)
}

func (lm *LogManager) flushLocked(target types.LSN) error {
	var kept []*Record
	flushed := false
	for _, r := range lm.buffer {
		if r.LSN > target {
			kept = append(kept, r)
			continue
		}
		if _, err := lm.file.Write(encodeRecord(r)); err != nil {
			return fmt.Errorf("failed to write WAL record %d: %w", r.LSN, err)
		}
		if r.LSN > lm.flushedLSN {
			lm.flushedLSN = r.LSN
		}
		flushed = true
	}
	lm.buffer = kept

	if !flushed {
		return nil
	}
	if err := lm.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync WAL: %w", err)
	}
	metrics.WALFlushes.Inc()
	return nil
}

// FlushedLSN returns the highest LSN known durable.
func (lm *LogManager) FlushedLSN() types.LSN {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.flushedLSN
}

// Close flushes any buffered records and closes the file.
func (lm *LogManager) Close() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if err := lm.flushLocked(types.LSN(lm.nextLSN)); err != nil {
		lm.file.Close()
		return err
	}
	return lm.file.Close()
}
