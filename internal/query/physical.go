package query

import (
	"fmt"

	"pagedb/internal/index"
	"pagedb/internal/storage"
	"pagedb/pkg/types"
)

// PlanError is a physical-planning failure, e.g. a predicate shape an
// index scan cannot serve.
type PlanError struct {
	Msg string
}

func (e *PlanError) Error() string {
	return "plan error: " + e.Msg
}

// PhysicalPlan is an executable operator tree description.
type PhysicalPlan interface {
	physicalPlan()
}

type PhysCreateTable struct {
	Name string
}

func (*PhysCreateTable) physicalPlan() {}

type PhysCreateIndex struct {
	Info *storage.IndexInfo
}

func (*PhysCreateIndex) physicalPlan() {}

type PhysInsert struct {
	Table       string
	Columns     []string
	ColOrdinals []int
	Values      []BoundExpr
}

func (*PhysInsert) physicalPlan() {}

type PhysSeqScan struct {
	Table     string
	Predicate BoundExpr // may be nil
}

func (*PhysSeqScan) physicalPlan() {}

// PhysIndexScan drives a B+Tree predicate scan. Op and Key are the
// translated bound of the original `column OP literal` predicate.
type PhysIndexScan struct {
	Table string
	Index *storage.IndexInfo
	Op    index.ScanOp
	Key   uint64
}

func (*PhysIndexScan) physicalPlan() {}

type PhysFilter struct {
	Input     PhysicalPlan
	Predicate BoundExpr
}

func (*PhysFilter) physicalPlan() {}

type PhysProjection struct {
	Input PhysicalPlan
	Exprs []BoundExpr
}

func (*PhysProjection) physicalPlan() {}

// PlanPhysical lowers an optimized logical tree, choosing IndexScan over
// SeqScan when a filter is a single-column equality with a matching
// index.
func PlanPhysical(logical LogicalPlan, catalog *storage.Catalog) (PhysicalPlan, error) {
	switch p := logical.(type) {
	case *LogicalCreateTable:
		return &PhysCreateTable{Name: p.Name}, nil

	case *LogicalCreateIndex:
		return &PhysCreateIndex{Info: p.Info}, nil

	case *LogicalInsert:
		return &PhysInsert{
			Table:       p.Table,
			Columns:     p.Columns,
			ColOrdinals: p.ColOrdinals,
			Values:      p.Values,
		}, nil

	case *LogicalSeqScan:
		return planScan(p.Table, p.Predicate, catalog)

	case *LogicalFilter:
		if scan, ok := p.Input.(*LogicalSeqScan); ok && scan.Predicate == nil {
			return planScan(scan.Table, p.Predicate, catalog)
		}
		input, err := PlanPhysical(p.Input, catalog)
		if err != nil {
			return nil, err
		}
		return &PhysFilter{Input: input, Predicate: p.Predicate}, nil

	case *LogicalProjection:
		input, err := PlanPhysical(p.Input, catalog)
		if err != nil {
			return nil, err
		}
		return &PhysProjection{Input: input, Exprs: p.Exprs}, nil

	default:
		return nil, &PlanError{Msg: fmt.Sprintf("unsupported logical node %T", logical)}
	}
}

// planScan emits an IndexScan for `col = literal` predicates covered by
// a single-column index, and SeqScan (plus Filter when a predicate
// exists) otherwise.
func planScan(table string, pred BoundExpr, catalog *storage.Catalog) (PhysicalPlan, error) {
	if pred == nil {
		return &PhysSeqScan{Table: table}, nil
	}

	if col, key, ok := extractEqPred(pred); ok {
		if info, found := catalog.FindIndex(table, col); found {
			return &PhysIndexScan{Table: table, Index: info, Op: index.ScanEq, Key: key}, nil
		}
	}
	return &PhysFilter{
		Input:     &PhysSeqScan{Table: table},
		Predicate: pred,
	}, nil
}

// extractEqPred matches `column = literal` (either orientation) over an
// integer column and returns the column name and the encoded key.
func extractEqPred(pred BoundExpr) (string, uint64, bool) {
	bin, ok := pred.(*BoundBinary)
	if !ok || bin.Op != OpEq {
		return "", 0, false
	}

	if col, ok := bin.Left.(*BoundColumn); ok {
		if lit, ok := bin.Right.(*BoundLiteral); ok && lit.Value.Type == types.Int64 {
			return col.Name, index.EncodeKey(lit.Value.Int), true
		}
	}
	if col, ok := bin.Right.(*BoundColumn); ok {
		if lit, ok := bin.Left.(*BoundLiteral); ok && lit.Value.Type == types.Int64 {
			return col.Name, index.EncodeKey(lit.Value.Int), true
		}
	}
	return "", 0, false
}
