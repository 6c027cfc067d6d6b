package sql

import "pagedb/pkg/types"

// Statement is a parsed SQL statement.
type Statement interface {
	statementNode()
}

// ColumnDef is a column declaration in CREATE TABLE.
type ColumnDef struct {
	Name string
	Type types.ValueType
}

// CreateTableStmt represents CREATE TABLE name(col type, ...).
type CreateTableStmt struct {
	Name    string
	Columns []ColumnDef
}

func (s *CreateTableStmt) statementNode() {}

// CreateIndexStmt represents CREATE INDEX idx ON table(col).
type CreateIndexStmt struct {
	Name   string
	Table  string
	Column string
}

func (s *CreateIndexStmt) statementNode() {}

// InsertStmt represents INSERT INTO name(col, ...) VALUES (expr, ...).
type InsertStmt struct {
	Table   string
	Columns []string
	Values  []Expr
}

func (s *InsertStmt) statementNode() {}

// SelectStmt represents SELECT expr, ... FROM name [WHERE expr].
type SelectStmt struct {
	Exprs []Expr
	Table string
	Where Expr
}

func (s *SelectStmt) statementNode() {}

// Expr is an expression node.
type Expr interface {
	exprNode()
}

// Ident is a column reference.
type Ident struct {
	Name string
	Line int
	Col  int
}

func (e *Ident) exprNode() {}

// IntLit is an integer literal.
type IntLit struct {
	Value int64
}

func (e *IntLit) exprNode() {}

// StrLit is a string literal.
type StrLit struct {
	Value string
}

func (e *StrLit) exprNode() {}

// BinaryExpr is a binary operation; Op is the operator's token type.
type BinaryExpr struct {
	Op    TokenType
	Left  Expr
	Right Expr
}

func (e *BinaryExpr) exprNode() {}
