package sql

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"pagedb/pkg/types"
)

func parse(t *testing.T, input string) Statement {
	t.Helper()
	p, err := NewParser(input)
	if err != nil {
		t.Fatalf("NewParser() error = %v", err)
	}
	stmt, err := p.ParseStatement()
	if err != nil {
		t.Fatalf("ParseStatement(%q) error = %v", input, err)
	}
	return stmt
}

// Positions on identifiers are irrelevant to tree shape comparisons.
var ignorePos = cmpopts.IgnoreFields(Ident{}, "Line", "Col")

func TestParseCreateTable(t *testing.T) {
	got := parse(t, "CREATE TABLE users(id INT, name VARCHAR);")

	want := &CreateTableStmt{
		Name: "users",
		Columns: []ColumnDef{
			{Name: "id", Type: types.Int64},
			{Name: "name", Type: types.Varchar},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
}

func TestParseCreateIndex(t *testing.T) {
	got := parse(t, "CREATE INDEX ix ON users(id);")
	want := &CreateIndexStmt{Name: "ix", Table: "users", Column: "id"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}

	// Keyword-identifiers are matched case-insensitively.
	got = parse(t, "create index ix2 on users(id);")
	if got.(*CreateIndexStmt).Name != "ix2" {
		t.Errorf("lowercase create index parsed as %+v", got)
	}
}

func TestParseInsert(t *testing.T) {
	got := parse(t, "INSERT INTO users(id, name) VALUES (1, 'alice');")

	want := &InsertStmt{
		Table:   "users",
		Columns: []string{"id", "name"},
		Values:  []Expr{&IntLit{Value: 1}, &StrLit{Value: "alice"}},
	}
	if diff := cmp.Diff(want, got, ignorePos); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSelect(t *testing.T) {
	got := parse(t, "SELECT id, name FROM users;")

	want := &SelectStmt{
		Exprs: []Expr{&Ident{Name: "id"}, &Ident{Name: "name"}},
		Table: "users",
	}
	if diff := cmp.Diff(want, got, ignorePos); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSelectWhere(t *testing.T) {
	got := parse(t, "SELECT name FROM users WHERE id = 2;")

	want := &SelectStmt{
		Exprs: []Expr{&Ident{Name: "name"}},
		Table: "users",
		Where: &BinaryExpr{
			Op:    TokenEq,
			Left:  &Ident{Name: "id"},
			Right: &IntLit{Value: 2},
		},
	}
	if diff := cmp.Diff(want, got, ignorePos); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
}

func TestParsePrecedence(t *testing.T) {
	// a = 1 OR b = 2 AND c = 3  parses as  (a=1) OR ((b=2) AND (c=3))
	got := parse(t, "SELECT x FROM t WHERE a = 1 OR b = 2 AND c = 3;")
	where := got.(*SelectStmt).Where.(*BinaryExpr)
	if where.Op != TokenOr {
		t.Fatalf("top operator = %s, want OR", where.Op)
	}
	right := where.Right.(*BinaryExpr)
	if right.Op != TokenAnd {
		t.Errorf("right operator = %s, want AND", right.Op)
	}
}

func TestParseParens(t *testing.T) {
	// Parentheses override precedence.
	got := parse(t, "SELECT x FROM t WHERE (a = 1 OR b = 2) AND c = 3;")
	where := got.(*SelectStmt).Where.(*BinaryExpr)
	if where.Op != TokenAnd {
		t.Fatalf("top operator = %s, want AND", where.Op)
	}
	if where.Left.(*BinaryExpr).Op != TokenOr {
		t.Errorf("left operator = %s, want OR", where.Left.(*BinaryExpr).Op)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []string{
		"SELECT id FROM users",       // missing semicolon
		"CREATE users(id INT);",      // missing TABLE/INDEX
		"CREATE TABLE t(id BLOB);",   // unknown type
		"INSERT INTO t VALUES (1);",  // missing column list
		"SELECT FROM t;",             // missing projection
		"UPDATE t SET x = 1;",        // unsupported statement
		"DELETE FROM t;",             // unsupported statement
		"SELECT a + 1 FROM t;",       // arithmetic has no production
		"SELECT x FROM t WHERE (a;",  // unbalanced paren
		";",                          // empty statement
	}
	for _, input := range cases {
		p, err := NewParser(input)
		if err == nil {
			_, err = p.ParseStatement()
		}
		if err == nil {
			t.Errorf("input %q parsed without error", input)
			continue
		}
		var serr *SyntaxError
		if !errors.As(err, &serr) {
			t.Errorf("input %q error type = %T", input, err)
		}
	}
}
