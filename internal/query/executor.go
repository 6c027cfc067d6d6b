package query

import (
	"fmt"

	"pagedb/internal/index"
	"pagedb/internal/storage"
	"pagedb/pkg/types"
)

// ExecContext carries what operators need at runtime: the storage
// facade and the statement's transaction (for WAL-logged mutations).
type ExecContext struct {
	Storage *storage.Storage
	Tx      types.TxID
}

// PhysicalOp is the Volcano iterator contract. Next returns nil when the
// operator is exhausted.
type PhysicalOp interface {
	Open() error
	Next() ([]types.Value, error)
	Close() error
}

// Executor drives an operator tree to completion.
type Executor struct {
	root PhysicalOp
}

// NewExecutor wraps a root operator.
func NewExecutor(root PhysicalOp) *Executor {
	return &Executor{root: root}
}

// Execute opens the tree, pulls every tuple, and closes it.
func (e *Executor) Execute() ([][]types.Value, error) {
	if err := e.root.Open(); err != nil {
		e.root.Close()
		return nil, err
	}

	var rows [][]types.Value
	for {
		row, err := e.root.Next()
		if err != nil {
			e.root.Close()
			return nil, err
		}
		if row == nil {
			break
		}
		rows = append(rows, row)
	}
	return rows, e.root.Close()
}

// Build constructs the operator tree for a physical plan.
func Build(ctx *ExecContext, plan PhysicalPlan) (PhysicalOp, error) {
	switch p := plan.(type) {
	case *PhysCreateTable, *PhysCreateIndex:
		// DDL took effect at bind time.
		return &nopOp{}, nil
	case *PhysInsert:
		return &insertOp{ctx: ctx, plan: p}, nil
	case *PhysSeqScan:
		return &seqScanOp{ctx: ctx, table: p.Table, predicate: p.Predicate}, nil
	case *PhysIndexScan:
		return &indexScanOp{ctx: ctx, plan: p}, nil
	case *PhysFilter:
		child, err := Build(ctx, p.Input)
		if err != nil {
			return nil, err
		}
		return &filterOp{child: child, predicate: p.Predicate}, nil
	case *PhysProjection:
		child, err := Build(ctx, p.Input)
		if err != nil {
			return nil, err
		}
		return &projectionOp{child: child, exprs: p.Exprs}, nil
	default:
		return nil, &PlanError{Msg: fmt.Sprintf("unsupported physical node %T", plan)}
	}
}

// nopOp produces no rows; DDL statements execute as this.
type nopOp struct{}

func (*nopOp) Open() error                 { return nil }
func (*nopOp) Next() ([]types.Value, error) { return nil, nil }
func (*nopOp) Close() error                { return nil }

// seqScanOp enumerates the table's row directory into a queue on open
// and fetches tuples on demand, applying an embedded predicate if set.
type seqScanOp struct {
	ctx       *ExecContext
	table     string
	predicate BoundExpr
	rids      []types.RID
	pos       int
}

func (op *seqScanOp) Open() error {
	t, ok := op.ctx.Storage.Catalog().GetTable(op.table)
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrTableNotFound, op.table)
	}
	op.rids = make([]types.RID, len(t.Records))
	copy(op.rids, t.Records)
	op.pos = 0
	return nil
}

func (op *seqScanOp) Next() ([]types.Value, error) {
	for op.pos < len(op.rids) {
		rid := op.rids[op.pos]
		op.pos++

		row, err := op.ctx.Storage.FetchRow(rid)
		if err != nil {
			return nil, err
		}
		if op.predicate != nil {
			keep, err := evalPredicate(op.predicate, row)
			if err != nil {
				return nil, err
			}
			if !keep {
				continue
			}
		}
		return row, nil
	}
	return nil, nil
}

func (op *seqScanOp) Close() error {
	op.rids = nil
	return nil
}

// indexScanOp resolves matching RIDs through the B+Tree on open, then
// fetches tuples on demand.
type indexScanOp struct {
	ctx     *ExecContext
	plan    *PhysIndexScan
	pending []types.RID
	pos     int
}

func (op *indexScanOp) Open() error {
	bt := index.Load(op.ctx.Storage.Pool(), op.ctx.Storage.File(),
		op.plan.Index.RootPage, op.plan.Index.Order)
	matches, err := bt.ScanPredicate(op.plan.Op, op.plan.Key)
	if err != nil {
		return err
	}
	op.pending = make([]types.RID, 0, len(matches))
	for _, m := range matches {
		op.pending = append(op.pending, m.RID)
	}
	op.pos = 0
	return nil
}

func (op *indexScanOp) Next() ([]types.Value, error) {
	if op.pos >= len(op.pending) {
		return nil, nil
	}
	rid := op.pending[op.pos]
	op.pos++
	return op.ctx.Storage.FetchRow(rid)
}

func (op *indexScanOp) Close() error {
	op.pending = nil
	return nil
}

// filterOp pulls from its child until a tuple satisfies the predicate.
type filterOp struct {
	child     PhysicalOp
	predicate BoundExpr
}

func (op *filterOp) Open() error { return op.child.Open() }

func (op *filterOp) Next() ([]types.Value, error) {
	for {
		row, err := op.child.Next()
		if err != nil || row == nil {
			return nil, err
		}
		keep, err := evalPredicate(op.predicate, row)
		if err != nil {
			return nil, err
		}
		if keep {
			return row, nil
		}
	}
}

func (op *filterOp) Close() error { return op.child.Close() }

// projectionOp evaluates each output expression per input tuple.
type projectionOp struct {
	child PhysicalOp
	exprs []BoundExpr
}

func (op *projectionOp) Open() error { return op.child.Open() }

func (op *projectionOp) Next() ([]types.Value, error) {
	row, err := op.child.Next()
	if err != nil || row == nil {
		return nil, err
	}
	out := make([]types.Value, len(op.exprs))
	for i, expr := range op.exprs {
		v, err := evalExpr(expr, row)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (op *projectionOp) Close() error { return op.child.Close() }

// insertOp performs the insert on open: it stores the row, maintains
// every index on the table, and persists a root change after splits.
type insertOp struct {
	ctx  *ExecContext
	plan *PhysInsert
	done bool
}

func (op *insertOp) Open() error {
	values := make([]types.Value, len(op.plan.Values))
	for i, expr := range op.plan.Values {
		v, err := evalExpr(expr, nil)
		if err != nil {
			return err
		}
		values[i] = v
	}

	st := op.ctx.Storage
	rid, err := st.InsertRow(op.ctx.Tx, op.plan.Table, op.plan.Columns, values)
	if err != nil {
		return err
	}

	for _, info := range st.Catalog().Indexes(op.plan.Table) {
		t, _ := st.Catalog().GetTable(op.plan.Table)
		ord, ok := t.ColumnIndex(info.Column)
		if !ok {
			return fmt.Errorf("index %s references missing column %s", info.Name, info.Column)
		}
		key := index.EncodeKey(values[ord].Int)

		bt := index.Load(st.Pool(), st.File(), info.RootPage, info.Order)
		if err := bt.Insert(key, rid); err != nil {
			return fmt.Errorf("index %s: %w", info.Name, err)
		}
		if bt.Root() != info.RootPage {
			if err := st.SetIndexRoot(info, bt.Root()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (op *insertOp) Next() ([]types.Value, error) { return nil, nil }
func (op *insertOp) Close() error                 { return nil }

// evalExpr evaluates a bound expression against a tuple (nil for
// constant contexts).
func evalExpr(expr BoundExpr, row []types.Value) (types.Value, error) {
	switch e := expr.(type) {
	case *BoundLiteral:
		return e.Value, nil

	case *BoundColumn:
		if e.Ordinal >= len(row) {
			return types.Value{}, fmt.Errorf("column %s (ordinal %d) out of range for %d-value tuple",
				e.Name, e.Ordinal, len(row))
		}
		return row[e.Ordinal], nil

	case *BoundBinary:
		left, err := evalExpr(e.Left, row)
		if err != nil {
			return types.Value{}, err
		}
		right, err := evalExpr(e.Right, row)
		if err != nil {
			return types.Value{}, err
		}
		return evalBinary(e.Op, left, right)

	default:
		return types.Value{}, fmt.Errorf("unsupported expression %T", expr)
	}
}

func boolValue(b bool) types.Value {
	if b {
		return types.NewInt(1)
	}
	return types.NewInt(0)
}

func evalBinary(op BinaryOp, left, right types.Value) (types.Value, error) {
	switch op {
	case OpAnd:
		if left.Type != types.Int64 || right.Type != types.Int64 {
			return types.Value{}, fmt.Errorf("AND requires integer operands")
		}
		return boolValue(left.Int != 0 && right.Int != 0), nil
	case OpOr:
		if left.Type != types.Int64 || right.Type != types.Int64 {
			return types.Value{}, fmt.Errorf("OR requires integer operands")
		}
		return boolValue(left.Int != 0 || right.Int != 0), nil
	}

	if left.Type == types.Int64 && right.Type == types.Int64 {
		switch op {
		case OpEq:
			return boolValue(left.Int == right.Int), nil
		case OpNe:
			return boolValue(left.Int != right.Int), nil
		case OpLt:
			return boolValue(left.Int < right.Int), nil
		case OpLe:
			return boolValue(left.Int <= right.Int), nil
		case OpGt:
			return boolValue(left.Int > right.Int), nil
		case OpGe:
			return boolValue(left.Int >= right.Int), nil
		}
	}
	if left.Type == types.Varchar && right.Type == types.Varchar {
		switch op {
		case OpEq:
			return boolValue(left.Str == right.Str), nil
		case OpNe:
			return boolValue(left.Str != right.Str), nil
		}
	}
	return types.Value{}, fmt.Errorf("unsupported operation %s %s %s", left.Type, op, right.Type)
}

// evalPredicate applies truthiness: a non-zero integer or a non-empty
// string keeps the row.
func evalPredicate(pred BoundExpr, row []types.Value) (bool, error) {
	v, err := evalExpr(pred, row)
	if err != nil {
		return false, err
	}
	switch v.Type {
	case types.Int64:
		return v.Int != 0, nil
	case types.Varchar:
		return v.Str != "", nil
	default:
		return false, nil
	}
}
