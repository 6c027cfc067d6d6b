package query

import "pagedb/internal/storage"

// LogicalPlan is a relational tree before physical choice. Equal is
// structural equality, used by the optimizer to detect its fix point.
type LogicalPlan interface {
	Equal(LogicalPlan) bool
}

// LogicalCreateTable carries a bound CREATE TABLE (registration already
// happened at bind time).
type LogicalCreateTable struct {
	Name    string
	Columns []storage.ColumnInfo
}

func (p *LogicalCreateTable) Equal(other LogicalPlan) bool {
	o, ok := other.(*LogicalCreateTable)
	if !ok || p.Name != o.Name || len(p.Columns) != len(o.Columns) {
		return false
	}
	for i := range p.Columns {
		if p.Columns[i] != o.Columns[i] {
			return false
		}
	}
	return true
}

// LogicalCreateIndex carries a bound CREATE INDEX.
type LogicalCreateIndex struct {
	Info *storage.IndexInfo
}

func (p *LogicalCreateIndex) Equal(other LogicalPlan) bool {
	o, ok := other.(*LogicalCreateIndex)
	return ok && p.Info == o.Info
}

// LogicalInsert inserts one row.
type LogicalInsert struct {
	Table       string
	Columns     []string
	ColOrdinals []int
	Values      []BoundExpr
}

func (p *LogicalInsert) Equal(other LogicalPlan) bool {
	o, ok := other.(*LogicalInsert)
	if !ok || p.Table != o.Table || len(p.Values) != len(o.Values) {
		return false
	}
	for i := range p.Values {
		if !p.Values[i].Equal(o.Values[i]) {
			return false
		}
	}
	return true
}

// LogicalSeqScan reads a whole table, optionally with an embedded
// predicate.
type LogicalSeqScan struct {
	Table     string
	Predicate BoundExpr // may be nil
}

func (p *LogicalSeqScan) Equal(other LogicalPlan) bool {
	o, ok := other.(*LogicalSeqScan)
	if !ok || p.Table != o.Table {
		return false
	}
	return exprEqual(p.Predicate, o.Predicate)
}

// LogicalFilter keeps input rows satisfying a predicate.
type LogicalFilter struct {
	Input     LogicalPlan
	Predicate BoundExpr
}

func (p *LogicalFilter) Equal(other LogicalPlan) bool {
	o, ok := other.(*LogicalFilter)
	return ok && p.Input.Equal(o.Input) && p.Predicate.Equal(o.Predicate)
}

// LogicalProjection evaluates expressions over input rows.
type LogicalProjection struct {
	Input LogicalPlan
	Exprs []BoundExpr
}

func (p *LogicalProjection) Equal(other LogicalPlan) bool {
	o, ok := other.(*LogicalProjection)
	if !ok || len(p.Exprs) != len(o.Exprs) || !p.Input.Equal(o.Input) {
		return false
	}
	for i := range p.Exprs {
		if !p.Exprs[i].Equal(o.Exprs[i]) {
			return false
		}
	}
	return true
}

func exprEqual(a, b BoundExpr) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(b)
}

// Plan lowers a bound statement into a logical tree. SELECT becomes
// Projection over an optional Filter over a SeqScan.
func Plan(stmt BoundStatement) LogicalPlan {
	switch s := stmt.(type) {
	case *BoundCreateTable:
		return &LogicalCreateTable{Name: s.Name, Columns: s.Columns}
	case *BoundCreateIndex:
		return &LogicalCreateIndex{Info: s.Info}
	case *BoundInsert:
		return &LogicalInsert{
			Table:       s.Table,
			Columns:     s.Columns,
			ColOrdinals: s.ColOrdinals,
			Values:      s.Values,
		}
	case *BoundSelect:
		var plan LogicalPlan = &LogicalSeqScan{Table: s.Table}
		if s.Where != nil {
			plan = &LogicalFilter{Input: plan, Predicate: s.Where}
		}
		return &LogicalProjection{Input: plan, Exprs: s.Exprs}
	default:
		return nil
	}
}
