// Package query implements the plan-and-execute pipeline: binding,
// logical planning, rewrite-based optimization, physical planning, and
// the Volcano executor.
package query

import (
	"fmt"
	"strings"

	"pagedb/internal/index"
	"pagedb/internal/sql"
	"pagedb/internal/storage"
	"pagedb/pkg/types"
)

// BindError is a name-resolution or type-checking failure.
type BindError struct {
	Msg string
}

func (e *BindError) Error() string {
	return "bind error: " + e.Msg
}

func bindErrf(format string, args ...any) *BindError {
	return &BindError{Msg: fmt.Sprintf(format, args...)}
}

// BinaryOp is a bound binary operator.
type BinaryOp int

const (
	OpEq BinaryOp = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
)

var binaryOpNames = map[BinaryOp]string{
	OpEq: "=", OpNe: "<>", OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">=",
	OpAnd: "AND", OpOr: "OR",
}

func (op BinaryOp) String() string {
	if s, ok := binaryOpNames[op]; ok {
		return s
	}
	return fmt.Sprintf("BinaryOp(%d)", int(op))
}

func (op BinaryOp) isComparison() bool {
	return op >= OpEq && op <= OpGe
}

// BoundExpr is an expression with ordinals and types resolved. Equal is
// structural and drives the optimizer's fix-point check.
type BoundExpr interface {
	ResultType() types.ValueType
	Equal(BoundExpr) bool
}

// BoundColumn is a column reference carrying its ordinal in the table's
// column order.
type BoundColumn struct {
	Name    string
	Ordinal int
	Typ     types.ValueType
}

func (e *BoundColumn) ResultType() types.ValueType { return e.Typ }

func (e *BoundColumn) Equal(other BoundExpr) bool {
	o, ok := other.(*BoundColumn)
	return ok && e.Name == o.Name && e.Ordinal == o.Ordinal && e.Typ == o.Typ
}

// BoundLiteral is a constant with its type inferred from the token kind.
type BoundLiteral struct {
	Value types.Value
}

func (e *BoundLiteral) ResultType() types.ValueType { return e.Value.Type }

func (e *BoundLiteral) Equal(other BoundExpr) bool {
	o, ok := other.(*BoundLiteral)
	return ok && e.Value == o.Value
}

// BoundBinary is a binary operation; comparisons and logical connectives
// yield Int-typed 0/1 booleans.
type BoundBinary struct {
	Op    BinaryOp
	Left  BoundExpr
	Right BoundExpr
}

func (e *BoundBinary) ResultType() types.ValueType { return types.Int64 }

func (e *BoundBinary) Equal(other BoundExpr) bool {
	o, ok := other.(*BoundBinary)
	return ok && e.Op == o.Op && e.Left.Equal(o.Left) && e.Right.Equal(o.Right)
}

// BoundStatement is a statement after name resolution.
type BoundStatement interface {
	boundStmt()
}

type BoundCreateTable struct {
	Name    string
	Columns []storage.ColumnInfo
}

func (*BoundCreateTable) boundStmt() {}

type BoundCreateIndex struct {
	Info *storage.IndexInfo
}

func (*BoundCreateIndex) boundStmt() {}

type BoundInsert struct {
	Table       string
	Columns     []string
	ColOrdinals []int
	Values      []BoundExpr
}

func (*BoundInsert) boundStmt() {}

type BoundSelect struct {
	Table string
	Exprs []BoundExpr
	Where BoundExpr
}

func (*BoundSelect) boundStmt() {}

// Binder resolves names against the catalog and type-checks
// expressions. Binding DDL also applies it: CREATE TABLE registers the
// table, CREATE INDEX allocates the index root, enters the table's
// existing rows, and registers its metadata with the default order.
type Binder struct {
	st *storage.Storage
}

// NewBinder creates a binder over the storage facade.
func NewBinder(st *storage.Storage) *Binder {
	return &Binder{st: st}
}

// Bind resolves one parsed statement.
func (b *Binder) Bind(stmt sql.Statement) (BoundStatement, error) {
	switch s := stmt.(type) {
	case *sql.CreateTableStmt:
		return b.bindCreateTable(s)
	case *sql.CreateIndexStmt:
		return b.bindCreateIndex(s)
	case *sql.InsertStmt:
		return b.bindInsert(s)
	case *sql.SelectStmt:
		return b.bindSelect(s)
	default:
		return nil, bindErrf("unsupported statement %T", stmt)
	}
}

func (b *Binder) bindCreateTable(s *sql.CreateTableStmt) (BoundStatement, error) {
	if _, ok := b.st.Catalog().GetTable(s.Name); ok {
		return nil, bindErrf("table '%s' already exists", s.Name)
	}

	cols := make([]storage.ColumnInfo, 0, len(s.Columns))
	seen := make(map[string]bool)
	for _, c := range s.Columns {
		key := foldName(c.Name)
		if seen[key] {
			return nil, bindErrf("duplicate column '%s' in table '%s'", c.Name, s.Name)
		}
		seen[key] = true
		cols = append(cols, storage.ColumnInfo{Name: c.Name, Type: c.Type})
	}

	if err := b.st.CreateTable(s.Name, cols); err != nil {
		return nil, err
	}
	return &BoundCreateTable{Name: s.Name, Columns: cols}, nil
}

func (b *Binder) bindCreateIndex(s *sql.CreateIndexStmt) (BoundStatement, error) {
	table, ok := b.st.Catalog().GetTable(s.Table)
	if !ok {
		return nil, bindErrf("unknown table '%s'", s.Table)
	}
	ord, ok := table.ColumnIndex(s.Column)
	if !ok {
		return nil, bindErrf("unknown column '%s' in table '%s'", s.Column, s.Table)
	}
	if table.Columns[ord].Type != types.Int64 {
		return nil, bindErrf("index '%s' on non-integer column '%s'", s.Name, s.Column)
	}
	for _, idx := range b.st.Catalog().Indexes(s.Table) {
		if foldName(idx.Name) == foldName(s.Name) {
			return nil, bindErrf("index '%s' already exists", s.Name)
		}
	}

	bt, err := index.Create(b.st.Pool(), b.st.File(), index.DefaultOrder)
	if err != nil {
		return nil, err
	}
	// Rows already in the table enter the new index before it is registered.
	for _, rid := range table.Records {
		row, err := b.st.FetchRow(rid)
		if err != nil {
			return nil, err
		}
		if err := bt.Insert(index.EncodeKey(row[ord].Int), rid); err != nil {
			return nil, err
		}
	}
	info := &storage.IndexInfo{
		Name:     s.Name,
		Table:    table.Name,
		Column:   table.Columns[ord].Name,
		Order:    index.DefaultOrder,
		RootPage: bt.Root(),
	}
	if err := b.st.AddIndex(info); err != nil {
		return nil, err
	}
	return &BoundCreateIndex{Info: info}, nil
}

func (b *Binder) bindInsert(s *sql.InsertStmt) (BoundStatement, error) {
	table, ok := b.st.Catalog().GetTable(s.Table)
	if !ok {
		return nil, bindErrf("unknown table '%s'", s.Table)
	}
	if len(s.Columns) != len(s.Values) {
		return nil, bindErrf("insert into '%s': %d columns but %d values",
			s.Table, len(s.Columns), len(s.Values))
	}

	ordinals := make([]int, len(s.Columns))
	for i, col := range s.Columns {
		ord, ok := table.ColumnIndex(col)
		if !ok {
			return nil, bindErrf("unknown column '%s' in table '%s'", col, s.Table)
		}
		ordinals[i] = ord
	}

	if len(s.Values) != len(table.Columns) {
		return nil, bindErrf("insert into '%s': table has %d columns, got %d values",
			s.Table, len(table.Columns), len(s.Values))
	}

	// Values are positional over the table's declared column order; the
	// column list is validated for names and arity only.
	values := make([]BoundExpr, len(s.Values))
	for i, expr := range s.Values {
		bound, err := b.bindExpr(expr, nil)
		if err != nil {
			return nil, err
		}
		want := table.Columns[i]
		if bound.ResultType() != want.Type {
			return nil, bindErrf("value %d has type %s, column '%s' is %s",
				i+1, bound.ResultType(), want.Name, want.Type)
		}
		values[i] = bound
	}

	return &BoundInsert{
		Table:       table.Name,
		Columns:     s.Columns,
		ColOrdinals: ordinals,
		Values:      values,
	}, nil
}

func (b *Binder) bindSelect(s *sql.SelectStmt) (BoundStatement, error) {
	table, ok := b.st.Catalog().GetTable(s.Table)
	if !ok {
		return nil, bindErrf("unknown table '%s'", s.Table)
	}

	exprs := make([]BoundExpr, len(s.Exprs))
	for i, expr := range s.Exprs {
		bound, err := b.bindExpr(expr, table)
		if err != nil {
			return nil, err
		}
		exprs[i] = bound
	}

	var where BoundExpr
	if s.Where != nil {
		var err error
		if where, err = b.bindExpr(s.Where, table); err != nil {
			return nil, err
		}
	}

	return &BoundSelect{Table: table.Name, Exprs: exprs, Where: where}, nil
}

// bindExpr resolves one expression. A nil table means no columns are in
// scope (INSERT values).
func (b *Binder) bindExpr(expr sql.Expr, table *storage.TableInfo) (BoundExpr, error) {
	switch e := expr.(type) {
	case *sql.Ident:
		if table == nil {
			return nil, bindErrf("column reference '%s' is not allowed here", e.Name)
		}
		ord, ok := table.ColumnIndex(e.Name)
		if !ok {
			return nil, bindErrf("unknown column '%s' in table '%s'", e.Name, table.Name)
		}
		col := table.Columns[ord]
		return &BoundColumn{Name: col.Name, Ordinal: ord, Typ: col.Type}, nil

	case *sql.IntLit:
		return &BoundLiteral{Value: types.NewInt(e.Value)}, nil

	case *sql.StrLit:
		return &BoundLiteral{Value: types.NewString(e.Value)}, nil

	case *sql.BinaryExpr:
		left, err := b.bindExpr(e.Left, table)
		if err != nil {
			return nil, err
		}
		right, err := b.bindExpr(e.Right, table)
		if err != nil {
			return nil, err
		}

		op, err := bindOp(e.Op)
		if err != nil {
			return nil, err
		}
		if op.isComparison() && left.ResultType() != right.ResultType() {
			return nil, bindErrf("cannot compare %s with %s",
				left.ResultType(), right.ResultType())
		}
		if (op == OpAnd || op == OpOr) &&
			(left.ResultType() != types.Int64 || right.ResultType() != types.Int64) {
			return nil, bindErrf("%s requires integer operands", op)
		}
		return &BoundBinary{Op: op, Left: left, Right: right}, nil

	default:
		return nil, bindErrf("unsupported expression %T", expr)
	}
}

func foldName(name string) string {
	return strings.ToLower(name)
}

func bindOp(tok sql.TokenType) (BinaryOp, error) {
	switch tok {
	case sql.TokenEq:
		return OpEq, nil
	case sql.TokenNe:
		return OpNe, nil
	case sql.TokenLt:
		return OpLt, nil
	case sql.TokenLe:
		return OpLe, nil
	case sql.TokenGt:
		return OpGt, nil
	case sql.TokenGe:
		return OpGe, nil
	case sql.TokenAnd:
		return OpAnd, nil
	case sql.TokenOr:
		return OpOr, nil
	default:
		return 0, bindErrf("operator %s is not supported in expressions", tok)
	}
}
