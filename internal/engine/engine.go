// Package engine drives statements through the full pipeline under the
// transaction protocol: begin, lock, execute, commit or abort, unlock.
package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pagedb/internal/log"
	"pagedb/internal/metrics"
	"pagedb/internal/query"
	"pagedb/internal/sql"
	"pagedb/internal/storage"
	"pagedb/internal/txn"
	"pagedb/internal/wal"
	"pagedb/pkg/types"
)

const walFileName = "wal.log"

// Config holds engine configuration.
type Config struct {
	DataDir      string
	PageSize     int
	BufferFrames int
}

// Engine owns storage, the WAL, and the lock manager. One statement
// mutates storage at a time: the whole bind/plan/execute/commit span
// runs under the engine's write guard, while lock waits happen before
// the guard is taken so a queued statement cannot block the holder's
// commit.
type Engine struct {
	mu    sync.Mutex // storage write guard
	st    *storage.Storage
	lm    *wal.LogManager
	locks *txn.LockManager
	log   zerolog.Logger
}

// Open opens the database directory, replays the WAL, and wires the
// components together. Recovery failure is fatal: the engine cannot
// safely serve work.
func Open(cfg Config) (*Engine, error) {
	if cfg.PageSize == 0 {
		cfg.PageSize = storage.DefaultPageSize
	}
	if cfg.BufferFrames == 0 {
		cfg.BufferFrames = 64
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	lm, err := wal.OpenLog(filepath.Join(cfg.DataDir, walFileName))
	if err != nil {
		return nil, err
	}

	// Recovery runs before the buffer pool sees any page, on a dedicated
	// file handle, so no frame can cache pre-recovery state.
	pf, err := storage.OpenPageFile(filepath.Join(cfg.DataDir, storage.DataFileName), cfg.PageSize)
	if err != nil {
		lm.Close()
		return nil, err
	}
	rm := wal.NewRecoveryManager(lm, pf, log.WithComponent("recovery"))
	if err := rm.Recover(); err != nil {
		pf.Close()
		lm.Close()
		return nil, fmt.Errorf("recovery failed: %w", err)
	}
	if err := pf.Close(); err != nil {
		lm.Close()
		return nil, err
	}

	st, err := storage.Open(cfg.DataDir, cfg.PageSize, cfg.BufferFrames)
	if err != nil {
		lm.Close()
		return nil, err
	}
	st.SetLogger(lm)

	e := &Engine{
		st:    st,
		lm:    lm,
		locks: txn.NewLockManager(),
		log:   log.WithComponent("engine"),
	}
	return e, nil
}

// Execute runs one SQL statement in its own transaction and returns the
// result rows rendered as strings.
func (e *Engine) Execute(sqlText string) ([][]string, error) {
	start := time.Now()

	tx := txn.NextTxID()
	e.lm.LogBegin(tx)

	rows, err := e.executeTx(tx, sqlText)

	metrics.QueryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.QueriesTotal.WithLabelValues("error").Inc()
		metrics.TxAborts.Inc()
		e.log.Debug().Uint64("tx", uint64(tx)).Err(err).Msg("statement failed")
		return nil, err
	}
	metrics.QueriesTotal.WithLabelValues("ok").Inc()
	metrics.TxCommits.Inc()
	return rows, nil
}

// executeTx is the statement body; any failure aborts the transaction
// and releases its locks before returning.
func (e *Engine) executeTx(tx types.TxID, sqlText string) ([][]string, error) {
	abort := func(err error) error {
		if _, aerr := e.lm.LogAbort(tx); aerr != nil {
			e.log.Warn().Uint64("tx", uint64(tx)).Err(aerr).Msg("abort record not durable")
		}
		e.locks.UnlockAll(tx)
		return err
	}

	parser, err := sql.NewParser(sqlText)
	if err != nil {
		return nil, abort(err)
	}
	stmt, err := parser.ParseStatement()
	if err != nil {
		return nil, abort(err)
	}

	table, mode := lockTarget(stmt)
	if err := e.locks.Lock(tx, txn.TableResource(strings.ToLower(table)), mode); err != nil {
		return nil, abort(err)
	}

	e.mu.Lock()
	result, err := e.runStatement(tx, stmt)
	if err != nil {
		e.mu.Unlock()
		return nil, abort(err)
	}

	if _, err := e.lm.LogCommit(tx); err != nil {
		// The WAL has no Commit record: whatever reached the buffer pool
		// will be rolled back by the next recovery.
		e.mu.Unlock()
		return nil, abort(fmt.Errorf("commit failed: %w", err))
	}

	if _, mutates := stmt.(*sql.InsertStmt); mutates {
		if err := e.st.SaveCatalog(); err != nil {
			e.log.Warn().Uint64("tx", uint64(tx)).Err(err).Msg("row directory not persisted")
		}
	}
	e.mu.Unlock()

	e.locks.UnlockAll(tx)
	return render(result), nil
}

// runStatement binds, plans, optimizes, and executes under the write
// guard.
func (e *Engine) runStatement(tx types.TxID, stmt sql.Statement) ([][]types.Value, error) {
	bound, err := query.NewBinder(e.st).Bind(stmt)
	if err != nil {
		return nil, err
	}

	logical := query.Plan(bound)
	optimized := query.Optimize(logical)

	physical, err := query.PlanPhysical(optimized, e.st.Catalog())
	if err != nil {
		return nil, err
	}

	root, err := query.Build(&query.ExecContext{Storage: e.st, Tx: tx}, physical)
	if err != nil {
		return nil, err
	}
	return query.NewExecutor(root).Execute()
}

// lockTarget maps a statement onto the table it addresses and the lock
// mode it needs: S for reads, X for DDL and DML.
func lockTarget(stmt sql.Statement) (string, txn.LockMode) {
	switch s := stmt.(type) {
	case *sql.SelectStmt:
		return s.Table, txn.Shared
	case *sql.InsertStmt:
		return s.Table, txn.Exclusive
	case *sql.CreateTableStmt:
		return s.Name, txn.Exclusive
	case *sql.CreateIndexStmt:
		return s.Table, txn.Exclusive
	default:
		return "", txn.Exclusive
	}
}

func render(rows [][]types.Value) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = v.String()
		}
		out[i] = cells
	}
	return out
}

// SweepDeadlocks breaks one wait-for cycle if present. The victim's
// pending lock request fails with a deadlock error; its own statement
// path writes the abort record and releases its locks.
func (e *Engine) SweepDeadlocks() {
	if victim, ok := e.locks.ResolveDeadlock(); ok {
		e.log.Warn().Uint64("victim", uint64(victim)).Msg("deadlock broken")
	}
}

// Checkpoint flushes every dirty buffer frame to disk.
func (e *Engine) Checkpoint() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.FlushAll()
}

// BufferStats reports buffer pool counters.
func (e *Engine) BufferStats() (hits, misses, evictions uint64, resident int) {
	return e.st.Pool().Stats()
}

// Close flushes and closes storage and the WAL.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	stErr := e.st.Close()
	lmErr := e.lm.Close()
	if stErr != nil {
		return stErr
	}
	return lmErr
}
