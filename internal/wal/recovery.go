package wal

import (
	"fmt"

	"github.com/rs/zerolog"

	"pagedb/internal/storage"
	"pagedb/pkg/types"
)

// txStatus is the recovery-time state of a transaction.
type txStatus int

const (
	statusActive txStatus = iota
	statusCommitted
	statusAborted
)

// RecoveryManager replays the WAL on startup: an analysis pass over the
// whole log, a redo pass applying after-images, and a backward undo pass
// rolling back transactions that never terminated. It writes through the
// page file directly and must run with exclusive access to storage,
// before any work is served. Running it twice yields the same state.
type RecoveryManager struct {
	lm   *LogManager
	file *storage.PageFile
	log  zerolog.Logger
}

// NewRecoveryManager builds a recovery pass over lm's log and file.
func NewRecoveryManager(lm *LogManager, file *storage.PageFile, logger zerolog.Logger) *RecoveryManager {
	return &RecoveryManager{lm: lm, file: file, log: logger}
}

// Recover runs analysis, redo, and undo.
func (rm *RecoveryManager) Recover() error {
	records, err := rm.lm.ReadAll()
	if err != nil {
		return fmt.Errorf("recovery: %w", err)
	}
	if len(records) == 0 {
		rm.log.Debug().Msg("empty WAL, nothing to recover")
		return nil
	}

	status := make(map[types.TxID]txStatus)
	lastLSN := make(map[types.TxID]types.LSN)
	dirty := make(map[types.PageID]bool)
	byLSN := make(map[types.LSN]*Record, len(records))

	// Analysis: transaction outcomes, per-tx chains, dirty page set.
	for _, r := range records {
		byLSN[r.LSN] = r
		lastLSN[r.TxID] = r.LSN
		switch r.Type {
		case RecordBegin:
			status[r.TxID] = statusActive
		case RecordCommit:
			status[r.TxID] = statusCommitted
		case RecordAbort:
			status[r.TxID] = statusAborted
		case RecordUpdate:
			pageNo, _, _, _, err := DecodeUpdatePayload(r.Payload)
			if err != nil {
				return fmt.Errorf("recovery analysis at LSN %d: %w", r.LSN, err)
			}
			dirty[pageNo] = true
		default:
			return fmt.Errorf("recovery analysis at LSN %d: %w: type %d", r.LSN, ErrCorruptRecord, r.Type)
		}
	}

	var losers []types.TxID
	for tx, st := range status {
		if st == statusActive {
			losers = append(losers, tx)
		}
	}
	rm.log.Info().
		Int("records", len(records)).
		Int("transactions", len(status)).
		Int("dirty_pages", len(dirty)).
		Int("losers", len(losers)).
		Msg("analysis complete")

	// Redo: reapply after-images of updates touching dirty pages. Updates
	// of transactions that already ended in Abort are skipped, so a
	// transaction rolled back by an earlier recovery stays rolled back.
	redone := 0
	for _, r := range records {
		if r.Type != RecordUpdate || status[r.TxID] == statusAborted {
			continue
		}
		pageNo, offset, _, after, err := DecodeUpdatePayload(r.Payload)
		if err != nil {
			return fmt.Errorf("recovery redo at LSN %d: %w", r.LSN, err)
		}
		if !dirty[pageNo] {
			continue
		}
		if err := rm.applyImage(pageNo, offset, after); err != nil {
			return fmt.Errorf("recovery redo at LSN %d: %w", r.LSN, err)
		}
		redone++
	}
	rm.log.Info().Int("updates", redone).Msg("redo complete")

	// Undo: walk each loser's chain backward applying before-images,
	// then close it with an Abort record.
	for _, tx := range losers {
		undone := 0
		for lsn := lastLSN[tx]; lsn != types.InvalidLSN; {
			r, ok := byLSN[lsn]
			if !ok {
				return fmt.Errorf("recovery undo: tx %d chain references missing LSN %d", tx, lsn)
			}
			if r.Type == RecordUpdate {
				pageNo, offset, before, _, err := DecodeUpdatePayload(r.Payload)
				if err != nil {
					return fmt.Errorf("recovery undo at LSN %d: %w", r.LSN, err)
				}
				if err := rm.applyImage(pageNo, offset, before); err != nil {
					return fmt.Errorf("recovery undo at LSN %d: %w", r.LSN, err)
				}
				undone++
			}
			lsn = r.PrevLSN
		}
		if _, err := rm.lm.LogAbort(tx); err != nil {
			return fmt.Errorf("recovery: abort of tx %d: %w", tx, err)
		}
		rm.log.Info().Uint64("tx", uint64(tx)).Int("updates", undone).Msg("rolled back")
	}

	return rm.file.SyncAll()
}

// applyImage writes an image over a page region, extending the file when
// the page was never flushed before the crash.
func (rm *RecoveryManager) applyImage(pageNo types.PageID, offset uint32, img []byte) error {
	numPages, err := rm.file.NumPages()
	if err != nil {
		return err
	}
	for numPages <= pageNo {
		if _, err := rm.file.AllocatePage(); err != nil {
			return err
		}
		numPages++
	}

	page, err := rm.file.ReadPage(pageNo)
	if err != nil {
		return err
	}
	if int(offset)+len(img) > len(page) {
		return fmt.Errorf("%w: image of %d bytes at offset %d", ErrCorruptRecord, len(img), offset)
	}
	copy(page[offset:], img)
	return rm.file.WritePage(pageNo, page)
}
