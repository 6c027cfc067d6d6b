package query

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"pagedb/internal/storage"
	"pagedb/pkg/types"
)

// run executes one statement through the whole pipeline against st.
func run(t *testing.T, st *storage.Storage, input string) [][]types.Value {
	t.Helper()
	rows, err := tryRun(t, st, input)
	require.NoError(t, err)
	return rows
}

func tryRun(t *testing.T, st *storage.Storage, input string) ([][]types.Value, error) {
	t.Helper()
	bound, err := NewBinder(st).Bind(parseStmt(t, input))
	if err != nil {
		return nil, err
	}
	phys, err := PlanPhysical(Optimize(Plan(bound)), st.Catalog())
	if err != nil {
		return nil, err
	}
	root, err := Build(&ExecContext{Storage: st, Tx: 0}, phys)
	if err != nil {
		return nil, err
	}
	return NewExecutor(root).Execute()
}

func TestExecuteInsertSelect(t *testing.T) {
	st := testStorage(t)
	run(t, st, "CREATE TABLE users(id INT, name VARCHAR);")
	run(t, st, "INSERT INTO users(id, name) VALUES (1, 'alice');")

	rows := run(t, st, "SELECT id, name FROM users;")
	require.Len(t, rows, 1)
	require.Equal(t, int64(1), rows[0][0].Int)
	require.Equal(t, "alice", rows[0][1].Str)
}

func TestExecuteFilterComparisons(t *testing.T) {
	st := testStorage(t)
	run(t, st, "CREATE TABLE nums(n INT, label VARCHAR);")
	for _, stmt := range []string{
		"INSERT INTO nums(n, label) VALUES (1, 'one');",
		"INSERT INTO nums(n, label) VALUES (2, 'two');",
		"INSERT INTO nums(n, label) VALUES (3, 'three');",
	} {
		run(t, st, stmt)
	}

	cases := []struct {
		where string
		want  int
	}{
		{"n = 2", 1},
		{"n <> 2", 2},
		{"n < 3", 2},
		{"n <= 3", 3},
		{"n > 1", 2},
		{"n >= 3", 1},
		{"label = 'two'", 1},
		{"n > 1 AND n < 3", 1},
		{"n = 1 OR n = 3", 2},
	}
	for _, c := range cases {
		rows := run(t, st, "SELECT n FROM nums WHERE "+c.where+";")
		require.Len(t, rows, c.want, "WHERE %s", c.where)
	}
}

func TestExecuteProjectionOrderAndLiterals(t *testing.T) {
	st := testStorage(t)
	run(t, st, "CREATE TABLE users(id INT, name VARCHAR);")
	run(t, st, "INSERT INTO users(id, name) VALUES (7, 'gina');")

	rows := run(t, st, "SELECT name, id, 99 FROM users;")
	require.Len(t, rows, 1)
	require.Equal(t, "gina", rows[0][0].Str)
	require.Equal(t, int64(7), rows[0][1].Int)
	require.Equal(t, int64(99), rows[0][2].Int)
}

func TestExecuteIndexScanReturnsRows(t *testing.T) {
	st := testStorage(t)
	run(t, st, "CREATE TABLE users(id INT, name VARCHAR);")
	run(t, st, "INSERT INTO users(id, name) VALUES (1, 'alice');")
	run(t, st, "INSERT INTO users(id, name) VALUES (2, 'bob');")
	run(t, st, "CREATE INDEX ix ON users(id);")
	run(t, st, "INSERT INTO users(id, name) VALUES (3, 'carol');")

	// Rows inserted after CREATE INDEX are in the tree; the plan for
	// id = 3 is an IndexScan and must find carol.
	rows := run(t, st, "SELECT name FROM users WHERE id = 3;")
	require.Equal(t, [][]types.Value{{types.NewString("carol")}}, rows)

	// Rows older than the index were entered when it was created; a point
	// query for them finds them through the index path.
	rows = run(t, st, "SELECT name FROM users WHERE id = 1;")
	require.Equal(t, [][]types.Value{{types.NewString("alice")}}, rows)

	// The full scan still sees everything.
	rows = run(t, st, "SELECT id FROM users;")
	require.Len(t, rows, 3)
}

func TestExecuteDuplicateIndexKeyFails(t *testing.T) {
	st := testStorage(t)
	run(t, st, "CREATE TABLE users(id INT, name VARCHAR);")
	run(t, st, "CREATE INDEX ix ON users(id);")
	run(t, st, "INSERT INTO users(id, name) VALUES (1, 'alice');")

	_, err := tryRun(t, st, "INSERT INTO users(id, name) VALUES (1, 'other');")
	require.Error(t, err, "duplicate index key rejects the insert")
}

func TestExecuteIndexSurvivesRootSplit(t *testing.T) {
	st := testStorage(t)
	run(t, st, "CREATE TABLE seq(k INT, v VARCHAR);")
	run(t, st, "CREATE INDEX ik ON seq(k);")

	// Order 4: enough inserts to split the root several times. The
	// catalog must track the moving root page.
	for i := 1; i <= 40; i++ {
		run(t, st, insertSeq(i))
	}

	for _, k := range []int{1, 17, 40} {
		rows := run(t, st, selectSeq(k))
		require.Len(t, rows, 1, "key %d", k)
	}
}

func insertSeq(i int) string {
	return fmt.Sprintf("INSERT INTO seq(k, v) VALUES (%d, 'v');", i)
}

func selectSeq(i int) string {
	return fmt.Sprintf("SELECT v FROM seq WHERE k = %d;", i)
}
