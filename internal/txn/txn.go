// Package txn provides transaction identity and the lock manager.
package txn

import (
	"sync/atomic"

	"pagedb/pkg/types"
)

// txCounter is the process-wide transaction id source. Ids start at 1,
// are never reused, and are not persisted across restarts.
var txCounter atomic.Uint64

// NextTxID returns a fresh transaction id.
func NextTxID() types.TxID {
	return types.TxID(txCounter.Add(1))
}

// Transaction is the per-statement transaction state.
type Transaction struct {
	ID      types.TxID
	LastLSN types.LSN
}

// Begin allocates a transaction with a fresh id.
func Begin() *Transaction {
	return &Transaction{ID: NextTxID()}
}
