package sqlite

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/horn/reader"
	"github.com/chazu/horn/term"
	"github.com/chazu/horn/vm"
)

func newMachine(t *testing.T) *vm.Machine {
	t.Helper()
	m := vm.NewMachine(vm.NewRegistry(), vm.Options{})
	lib := Register(m.Registry())
	t.Cleanup(func() { lib.Close() })
	return m
}

func run(t *testing.T, m *vm.Machine, src string) (map[string]term.Term, bool, error) {
	t.Helper()
	goal, _, err := reader.ParseTerm(src)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return m.Once(goal)
}

func once(t *testing.T, m *vm.Machine, src string) map[string]term.Term {
	t.Helper()
	b, ok, err := run(t, m, src)
	if err != nil {
		t.Fatalf("%s: %v", src, err)
	}
	if !ok {
		t.Fatalf("%s: failed", src)
	}
	return b
}

// people opens a database file holding two rows and records the handle
// as db/1.
func people(t *testing.T, m *vm.Machine) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "people.db")
	once(t, m, fmt.Sprintf(`sql_open('%s', C),
		sql_exec(C, "create table people (name text, age integer, note text)", []),
		sql_exec(C, "insert into people values (?, ?, ?)", [alice, 30, null]),
		sql_exec(C, "insert into people values (?, ?, ?)", ["bob", 25, "likes sql"]),
		assertz(db(C))`, path))
}

func TestRows(t *testing.T) {
	m := newMachine(t)
	people(t, m)
	tests := []struct {
		goal string
		want string
	}{
		{`findall(N-A, sql_row(C, "select name, age from people order by age", [N, A]), L)`, `["bob"-25,"alice"-30]`},
		{`findall(N, sql_row(C, "select name from people where age > ?"-[26], [N]), L)`, `["alice"]`},
		{`findall(N, sql_row(C, "select name, age from people", [N, 30]), L)`, `["alice"]`},
		{`findall(X, sql_row(C, "select note from people order by age", [X]), L)`, `["likes sql",null]`},
		{`findall(R, sql_row(C, "select avg(age) from people", R), L)`, `[[27.5]]`},
		{`findall(R, sql_row(C, "select name from people where age > 99", R), L)`, `[]`},
	}
	for _, tt := range tests {
		b := once(t, m, "db(C), "+tt.goal)
		if got := term.Format(b["L"]); got != tt.want {
			t.Errorf("%s: L = %s, want %s", tt.goal, got, tt.want)
		}
	}
}

func TestCutClosesRows(t *testing.T) {
	m := newMachine(t)
	once(t, m, `sql_open(':memory:', C), assertz(db(C)),
		sql_exec(C, "create table t (x integer)", []),
		sql_exec(C, "insert into t values (1), (2)", [])`)
	b := once(t, m, `db(C), sql_row(C, "select x from t order by x", [X]), !,
		sql_exec(C, "insert into t values (3)", []),
		findall(Y, sql_row(C, "select x from t order by x", [Y]), L)`)
	if got := term.Format(b["L"]); got != "[1,2,3]" {
		t.Errorf("L = %s", got)
	}

	_, _, err := run(t, m, `db(C), sql_row(C, "select x from t", _), sql_exec(C, "delete from t", [])`)
	ball, ok := vm.BallOf(err)
	if !ok || !strings.HasPrefix(term.Format(ball), "error(permission_error(access,busy_sql_connection,") {
		t.Errorf("statement during iteration: %v", err)
	}
	b = once(t, m, `db(C), findall(Y, sql_row(C, "select x from t", [Y]), L)`)
	if got := term.Format(b["L"]); got != "[1,2,3]" {
		t.Errorf("after the error L = %s", got)
	}
}

func TestClose(t *testing.T) {
	m := newMachine(t)
	once(t, m, `sql_open(':memory:', C), sql_close(C), assertz(db(C))`)
	_, _, err := run(t, m, `db(C), sql_exec(C, "select 1", [])`)
	ball, ok := vm.BallOf(err)
	if !ok || !strings.HasPrefix(term.Format(ball), "error(existence_error(sql_connection,") {
		t.Errorf("use after close: %v", err)
	}
}

func TestErrors(t *testing.T) {
	m := newMachine(t)
	once(t, m, `sql_open(':memory:', C), assertz(db(C))`)
	tests := []struct {
		goal string
		want string
	}{
		{`sql_exec(_, "select 1", [])`, "error(instantiation_error"},
		{`sql_exec(nope, "select 1", [])`, "error(type_error(sql_connection,nope)"},
		{`db(C), sql_exec(C, _, [])`, "error(instantiation_error"},
		{`db(C), sql_exec(C, "select ?", [f(x)])`, "error(type_error(sql_value,f(x))"},
		{`db(C), sql_exec(C, "select 1", foo)`, "error(type_error(list,foo)"},
		{`db(C), sql_exec(C, "not sql at all", [])`, "error(system_error("},
		{`db(C), sql_row(C, "select * from missing", _)`, "error(system_error("},
	}
	for _, tt := range tests {
		_, _, err := run(t, m, tt.goal)
		ball, ok := vm.BallOf(err)
		if !ok {
			t.Errorf("%s: err = %v, want an exception", tt.goal, err)
			continue
		}
		if got := term.Format(ball); !strings.HasPrefix(got, tt.want) {
			t.Errorf("%s raised %s, want prefix %s", tt.goal, got, tt.want)
		}
	}
}

func TestValueConversion(t *testing.T) {
	params, err := toParams(term.List(term.Int(1), term.Float(2.5), term.Atom("null"), term.Atom("a"), term.String("s")))
	if err != nil {
		t.Fatal(err)
	}
	want := []any{int64(1), 2.5, nil, "a", "s"}
	if fmt.Sprint(params) != fmt.Sprint(want) {
		t.Errorf("params = %v, want %v", params, want)
	}
	if _, err := toParams(term.ListWithTail(term.Variable("T"), term.Int(1))); err == nil {
		t.Error("partial list accepted")
	}
	for _, tt := range []struct {
		in   any
		want string
	}{
		{nil, "null"},
		{int64(7), "7"},
		{[]byte("raw"), `"raw"`},
		{true, "true"},
	} {
		if got := term.Format(fromSQL(tt.in)); got != tt.want {
			t.Errorf("fromSQL(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
