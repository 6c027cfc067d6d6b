package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"pagedb/internal/engine"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	eng, err := engine.Open(engine.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })

	srv := New(eng, Config{Addr: "127.0.0.1:0"})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func login(t *testing.T, ts *httptest.Server) *http.Cookie {
	t.Helper()
	body := `{"user":"admin","pass":"password"}`
	resp, err := http.Post(ts.URL+"/login", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for _, c := range resp.Cookies() {
		if c.Name == "session_token" {
			require.Equal(t, "secret-token", c.Value)
			require.True(t, c.HttpOnly)
			require.Equal(t, "/", c.Path)
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func postQuery(t *testing.T, ts *httptest.Server, cookie *http.Cookie, sql string) *http.Response {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"sql": sql})
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/query", bytes.NewReader(body))
	require.NoError(t, err)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeRows(t *testing.T, resp *http.Response) [][]string {
	t.Helper()
	defer resp.Body.Close()
	var qr struct {
		Rows [][]string `json:"rows"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&qr))
	return qr.Rows
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ts := testServer(t)

	body := `{"user":"admin","pass":"wrong"}`
	resp, err := http.Post(ts.URL+"/login", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestQueryRequiresSession(t *testing.T) {
	ts := testServer(t)

	resp := postQuery(t, ts, nil, "SELECT 1 FROM t;")
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	bad := &http.Cookie{Name: "session_token", Value: "forged"}
	resp = postQuery(t, ts, bad, "SELECT 1 FROM t;")
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestQueryEndToEnd(t *testing.T) {
	ts := testServer(t)
	cookie := login(t, ts)

	resp := postQuery(t, ts, cookie, "CREATE TABLE users(id INT, name VARCHAR);")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postQuery(t, ts, cookie, "INSERT INTO users(id, name) VALUES (1, 'alice');")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postQuery(t, ts, cookie, "SELECT id, name FROM users;")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, [][]string{{"1", "alice"}}, decodeRows(t, resp))
}

func TestQueryErrorStatuses(t *testing.T) {
	ts := testServer(t)
	cookie := login(t, ts)

	resp := postQuery(t, ts, cookie, "CREATE TABLE t(a INT);")
	resp.Body.Close()

	cases := []struct {
		sql    string
		status int
	}{
		{"SELEC nope;", http.StatusBadRequest},            // syntax
		{"SELECT a FROM missing;", http.StatusBadRequest}, // bind
		{"CREATE TABLE t(a INT);", http.StatusBadRequest}, // duplicate table
	}
	for _, c := range cases {
		resp := postQuery(t, ts, cookie, c.sql)
		require.Equal(t, c.status, resp.StatusCode, "sql: %s", c.sql)
		resp.Body.Close()
	}
}

func TestUnknownRoute404(t *testing.T) {
	ts := testServer(t)

	resp, err := http.Get(ts.URL + "/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Wrong method on a known route is a 404 too.
	resp2, err := http.Get(ts.URL + "/query")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestMetricsExposed(t *testing.T) {
	ts := testServer(t)
	cookie := login(t, ts)

	resp := postQuery(t, ts, cookie, "CREATE TABLE m(a INT);")
	resp.Body.Close()

	mresp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer mresp.Body.Close()
	require.Equal(t, http.StatusOK, mresp.StatusCode)

	buf := new(bytes.Buffer)
	buf.ReadFrom(mresp.Body)
	require.Contains(t, buf.String(), "pagedb_queries_total")
}

func TestEmptyResultIsJSONArray(t *testing.T) {
	ts := testServer(t)
	cookie := login(t, ts)

	resp := postQuery(t, ts, cookie, "CREATE TABLE e(a INT);")
	resp.Body.Close()

	resp = postQuery(t, ts, cookie, "SELECT a FROM e;")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rows := decodeRows(t, resp)
	require.NotNil(t, rows)
	require.Empty(t, rows)
}
