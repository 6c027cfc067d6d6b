package txn

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"pagedb/internal/metrics"
	"pagedb/pkg/types"
)

// ErrDeadlock is returned from Lock to a transaction chosen as a
// deadlock victim.
var ErrDeadlock = errors.New("deadlock detected, transaction aborted")

// LockMode is the requested lock strength.
type LockMode int

const (
	Shared LockMode = iota
	Exclusive
)

func (m LockMode) String() string {
	if m == Exclusive {
		return "X"
	}
	return "S"
}

// resourceKind discriminates lockable resources.
type resourceKind int

const (
	resourceTable resourceKind = iota
	resourcePage
)

// Resource identifies something lockable: a table or a page.
type Resource struct {
	kind  resourceKind
	table string
	page  types.PageID
}

// TableResource names a table lock target.
func TableResource(name string) Resource {
	return Resource{kind: resourceTable, table: name}
}

// PageResource names a page lock target.
func PageResource(pageNo types.PageID) Resource {
	return Resource{kind: resourcePage, page: pageNo}
}

func (r Resource) String() string {
	if r.kind == resourceTable {
		return "table:" + r.table
	}
	return fmt.Sprintf("page:%d", r.page)
}

type holder struct {
	tx   types.TxID
	mode LockMode
}

type request struct {
	tx    types.TxID
	mode  LockMode
	grant chan error
}

type lockState struct {
	holders []holder
	queue   []*request
}

// canGrant reports whether a request is compatible with the current
// holders: an empty holder set admits anything, shared admits shared.
func (s *lockState) canGrant(mode LockMode) bool {
	if len(s.holders) == 0 {
		return true
	}
	if mode == Exclusive {
		return false
	}
	for _, h := range s.holders {
		if h.mode == Exclusive {
			return false
		}
	}
	return true
}

// LockManager is the central lock table: resource -> (holders, FIFO
// queue of waiters). The mutex protects only the table; waiters block on
// per-request channels signaled after the mutex is released, so the
// mutex is never held across a wait.
type LockManager struct {
	mu    sync.Mutex
	table map[Resource]*lockState
}

// NewLockManager returns an empty lock table.
func NewLockManager() *LockManager {
	return &LockManager{table: make(map[Resource]*lockState)}
}

// Lock acquires res in the given mode for tx, blocking in FIFO order
// behind incompatible holders. It returns ErrDeadlock if the transaction
// is chosen as a deadlock victim while waiting. Lock re-acquisition by
// the same transaction on the same resource is not supported; callers
// issue one lock per statement.
func (lm *LockManager) Lock(tx types.TxID, res Resource, mode LockMode) error {
	lm.mu.Lock()
	state, ok := lm.table[res]
	if !ok {
		state = &lockState{}
		lm.table[res] = state
	}

	if len(state.queue) == 0 && state.canGrant(mode) {
		state.holders = append(state.holders, holder{tx: tx, mode: mode})
		lm.mu.Unlock()
		return nil
	}

	req := &request{tx: tx, mode: mode, grant: make(chan error, 1)}
	state.queue = append(state.queue, req)
	lm.mu.Unlock()

	metrics.LockWaits.Inc()
	return <-req.grant
}

// UnlockAll releases every lock held by tx and grants queued waiters
// head-first while compatibility holds, stopping a resource's scan after
// granting an exclusive. Wakers fire after the table mutex is dropped.
func (lm *LockManager) UnlockAll(tx types.TxID) {
	lm.mu.Lock()
	var wake []*request
	for res, state := range lm.table {
		kept := state.holders[:0]
		for _, h := range state.holders {
			if h.tx != tx {
				kept = append(kept, h)
			}
		}
		state.holders = kept
		wake = append(wake, lm.grantQueuedLocked(state)...)
		if len(state.holders) == 0 && len(state.queue) == 0 {
			delete(lm.table, res)
		}
	}
	lm.mu.Unlock()

	for _, req := range wake {
		req.grant <- nil
	}
}

// grantQueuedLocked pops grantable requests off a resource's queue.
func (lm *LockManager) grantQueuedLocked(state *lockState) []*request {
	var granted []*request
	for len(state.queue) > 0 {
		req := state.queue[0]
		if !state.canGrant(req.mode) {
			break
		}
		state.queue = state.queue[1:]
		state.holders = append(state.holders, holder{tx: req.tx, mode: req.mode})
		granted = append(granted, req)
		if req.mode == Exclusive {
			break
		}
	}
	return granted
}

// DetectDeadlock builds the wait-for graph (waiter -> every holder of
// the resource it waits on) and returns one cycle, if any.
func (lm *LockManager) DetectDeadlock() []types.TxID {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.findCycleLocked()
}

func (lm *LockManager) findCycleLocked() []types.TxID {
	edges := make(map[types.TxID][]types.TxID)
	for _, state := range lm.table {
		for _, req := range state.queue {
			for _, h := range state.holders {
				if h.tx != req.tx {
					edges[req.tx] = append(edges[req.tx], h.tx)
				}
			}
		}
	}

	waiters := make([]types.TxID, 0, len(edges))
	for tx := range edges {
		waiters = append(waiters, tx)
	}
	sort.Slice(waiters, func(i, j int) bool { return waiters[i] < waiters[j] })

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	color := make(map[types.TxID]int)
	var stack []types.TxID
	var cycle []types.TxID

	var visit func(tx types.TxID) bool
	visit = func(tx types.TxID) bool {
		color[tx] = inStack
		stack = append(stack, tx)
		for _, next := range edges[tx] {
			switch color[next] {
			case inStack:
				for i, t := range stack {
					if t == next {
						cycle = append([]types.TxID(nil), stack[i:]...)
						return true
					}
				}
			case unvisited:
				if visit(next) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[tx] = done
		return false
	}

	for _, tx := range waiters {
		if color[tx] == unvisited && visit(tx) {
			return cycle
		}
	}
	return nil
}

// ResolveDeadlock looks for a cycle and, if one exists, aborts the
// youngest transaction in it (largest id, since ids are monotonic): the
// victim's pending requests fail with ErrDeadlock, and the victim's
// abort path releases whatever it already holds via UnlockAll. Returns
// the victim and true when a cycle was broken.
func (lm *LockManager) ResolveDeadlock() (types.TxID, bool) {
	lm.mu.Lock()
	cycle := lm.findCycleLocked()
	if len(cycle) == 0 {
		lm.mu.Unlock()
		return 0, false
	}

	victim := cycle[0]
	for _, tx := range cycle[1:] {
		if tx > victim {
			victim = tx
		}
	}

	var wake []*request
	for _, state := range lm.table {
		kept := state.queue[:0]
		for _, req := range state.queue {
			if req.tx == victim {
				wake = append(wake, req)
			} else {
				kept = append(kept, req)
			}
		}
		state.queue = kept
	}
	lm.mu.Unlock()

	for _, req := range wake {
		req.grant <- ErrDeadlock
	}
	metrics.DeadlocksResolved.Inc()
	return victim, true
}

// Holders reports the transactions holding locks on res, for tests and
// introspection.
func (lm *LockManager) Holders(res Resource) []types.TxID {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	state, ok := lm.table[res]
	if !ok {
		return nil
	}
	out := make([]types.TxID, 0, len(state.holders))
	for _, h := range state.holders {
		out = append(out, h.tx)
	}
	return out
}
