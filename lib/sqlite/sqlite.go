// Package sqlite gives Prolog programs access to SQLite databases.
//
//	sql_open(+Path, -Conn)
//	sql_close(+Conn)
//	sql_exec(+Conn, +SQL, +Params)
//	sql_row(+Conn, +Query, -Row)
//
// Query is SQL text or SQL-Params. Parameters are integers, floats,
// atoms, strings, or the atom null. sql_row/3 enumerates result rows as
// lists on backtracking; text columns become strings and NULL becomes
// null.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chazu/horn/term"
	"github.com/chazu/horn/vm"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

var log = commonlog.GetLogger("horn.sqlite")

const handleName = "$sql"

// Memory is the path that opens a private in-memory database.
const Memory = ":memory:"

type conn struct {
	db     *sql.DB
	path   string
	memory bool
	open   int // row iterations in progress
}

// Library holds the connections opened through one registry.
type Library struct {
	mu    sync.Mutex
	conns map[int64]*conn
	next  int64
}

// Register defines the sql_* predicates in reg.
func Register(reg *vm.Registry) *Library {
	l := &Library{conns: make(map[int64]*conn)}
	reg.DefineForeign("sql_open", 2, l.open)
	reg.DefineForeign("sql_close", 1, l.close)
	reg.DefineForeign("sql_exec", 3, l.exec)
	reg.DefineNondet("sql_row", 3, l.row)
	return l
}

// Close closes every connection still open.
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var errs []error
	for id, c := range l.conns {
		errs = append(errs, c.db.Close())
		delete(l.conns, id)
	}
	return errors.Join(errs...)
}

func dsn(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)"
}

func (l *Library) open(c *vm.ForeignContext, a []vm.Word) (bool, error) {
	path, err := textArg(c, a[0])
	if err != nil {
		return false, err
	}
	if !c.IsVar(a[1]) {
		return false, vm.Throw(term.Comp("error", term.Comp("uninstantiation_error", c.Get(a[1])), term.Atom("sql_open/2")))
	}
	cn := &conn{path: path, memory: path == Memory}
	if cn.memory {
		cn.db, err = sql.Open("sqlite", Memory)
	} else {
		cn.db, err = sql.Open("sqlite", dsn(path))
	}
	if err != nil {
		return false, fmt.Errorf("sql_open %s: %w", path, err)
	}
	if cn.memory {
		// every pooled connection would see its own empty database
		cn.db.SetMaxOpenConns(1)
	}
	if err := cn.db.Ping(); err != nil {
		cn.db.Close()
		return false, fmt.Errorf("sql_open %s: %w", path, err)
	}

	l.mu.Lock()
	l.next++
	id := l.next
	l.conns[id] = cn
	l.mu.Unlock()
	log.Debugf("opened %s as connection %d", path, id)
	return c.UnifyTerm(a[1], term.Comp(handleName, term.Int(id)))
}

func (l *Library) close(c *vm.ForeignContext, a []vm.Word) (bool, error) {
	id, cn, err := l.lookup(c, a[0])
	if err != nil {
		return false, err
	}
	l.mu.Lock()
	delete(l.conns, id)
	l.mu.Unlock()
	if err := cn.db.Close(); err != nil {
		return false, fmt.Errorf("sql_close %s: %w", cn.path, err)
	}
	log.Debugf("closed connection %d", id)
	return true, nil
}

func (l *Library) exec(c *vm.ForeignContext, a []vm.Word) (bool, error) {
	_, cn, err := l.lookup(c, a[0])
	if err != nil {
		return false, err
	}
	stmt, err := textArg(c, a[1])
	if err != nil {
		return false, err
	}
	params, err := paramList(c, a[2])
	if err != nil {
		return false, err
	}
	if err := l.idle(c, cn, a[0]); err != nil {
		return false, err
	}
	res, err := cn.db.Exec(stmt, params...)
	if err != nil {
		return false, fmt.Errorf("sql_exec: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		log.Debugf("%s: %d rows affected", stmt, n)
	}
	return true, nil
}

// rowState is the resume token of sql_row/3.
type rowState struct {
	rows *sql.Rows
	conn *conn
	lib  *Library
}

func (s *rowState) finish() error {
	s.lib.mu.Lock()
	s.conn.open--
	s.lib.mu.Unlock()
	err := s.rows.Close()
	if err == nil {
		err = s.rows.Err()
	}
	return err
}

func (l *Library) row(c *vm.ForeignContext, a []vm.Word) (vm.Retry, error) {
	var st *rowState
	switch c.Control() {
	case vm.Pruned:
		if err := c.Token().(*rowState).finish(); err != nil {
			log.Warningf("closing pruned query: %s", err)
		}
		return vm.RetryFail, nil
	case vm.Redo:
		st = c.Token().(*rowState)
	default:
		_, cn, err := l.lookup(c, a[0])
		if err != nil {
			return vm.RetryFail, err
		}
		query, params, err := queryArg(c, a[1])
		if err != nil {
			return vm.RetryFail, err
		}
		if err := l.idle(c, cn, a[0]); err != nil {
			return vm.RetryFail, err
		}
		rows, err := cn.db.Query(query, params...)
		if err != nil {
			return vm.RetryFail, fmt.Errorf("sql_row: %w", err)
		}
		l.mu.Lock()
		cn.open++
		l.mu.Unlock()
		st = &rowState{rows: rows, conn: cn, lib: l}
	}

	cols, err := st.rows.Columns()
	if err != nil {
		st.finish()
		return vm.RetryFail, fmt.Errorf("sql_row: %w", err)
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for st.rows.Next() {
		if err := st.rows.Scan(ptrs...); err != nil {
			st.finish()
			return vm.RetryFail, fmt.Errorf("sql_row: %w", err)
		}
		elems := make([]term.Term, len(vals))
		for i, v := range vals {
			elems[i] = fromSQL(v)
		}
		w, err := c.Put(term.List(elems...))
		if err != nil {
			st.finish()
			return vm.RetryFail, err
		}
		if c.Unifiable(a[2], w) {
			c.Unify(a[2], w)
			return vm.RetryWith(st), nil
		}
	}
	if err := st.finish(); err != nil {
		return vm.RetryFail, fmt.Errorf("sql_row: %w", err)
	}
	return vm.RetryFail, nil
}

func (l *Library) lookup(c *vm.ForeignContext, w vm.Word) (int64, *conn, error) {
	if c.IsVar(w) {
		return 0, nil, vm.InstantiationError()
	}
	t := c.Get(w)
	h, ok := t.(*term.Compound)
	if !ok || h.Functor != handleName || len(h.Args) != 1 {
		return 0, nil, vm.TypeError("sql_connection", t)
	}
	id, ok := h.Args[0].(term.Int)
	if !ok {
		return 0, nil, vm.TypeError("sql_connection", t)
	}
	l.mu.Lock()
	cn := l.conns[int64(id)]
	l.mu.Unlock()
	if cn == nil {
		return 0, nil, vm.ExistenceError("sql_connection", t)
	}
	return int64(id), cn, nil
}

// idle rejects statements on an in-memory connection whose only pooled
// connection is held by a row iteration.
func (l *Library) idle(c *vm.ForeignContext, cn *conn, w vm.Word) error {
	l.mu.Lock()
	busy := cn.memory && cn.open > 0
	l.mu.Unlock()
	if busy {
		return vm.PermissionError("access", "busy_sql_connection", c.Get(w))
	}
	return nil
}

func textArg(c *vm.ForeignContext, w vm.Word) (string, error) {
	if c.IsVar(w) {
		return "", vm.InstantiationError()
	}
	s, ok := c.Text(w)
	if !ok {
		return "", vm.TypeError("text", c.Get(w))
	}
	return s, nil
}

func queryArg(c *vm.ForeignContext, w vm.Word) (string, []any, error) {
	if c.IsVar(w) {
		return "", nil, vm.InstantiationError()
	}
	t := c.Get(w)
	if p, ok := t.(*term.Compound); ok && p.Functor == "-" && len(p.Args) == 2 {
		q, err := textTerm(p.Args[0])
		if err != nil {
			return "", nil, err
		}
		params, err := toParams(p.Args[1])
		return q, params, err
	}
	q, err := textArg(c, w)
	return q, nil, err
}

func textTerm(t term.Term) (string, error) {
	switch x := t.(type) {
	case term.Atom:
		return string(x), nil
	case term.String:
		return string(x), nil
	case term.Variable:
		return "", vm.InstantiationError()
	}
	return "", vm.TypeError("text", t)
}

func paramList(c *vm.ForeignContext, w vm.Word) ([]any, error) {
	if c.IsVar(w) {
		return nil, vm.InstantiationError()
	}
	return toParams(c.Get(w))
}

// toParams converts a proper list of Prolog values to driver arguments.
func toParams(list term.Term) ([]any, error) {
	var out []any
	for t := list; ; {
		switch x := t.(type) {
		case term.Atom:
			if x != term.Nil {
				return nil, vm.TypeError("list", list)
			}
			return out, nil
		case term.Variable:
			return nil, vm.InstantiationError()
		case *term.Compound:
			if x.Functor != term.Dot || len(x.Args) != 2 {
				return nil, vm.TypeError("list", list)
			}
			v, err := toSQL(x.Args[0])
			if err != nil {
				return nil, err
			}
			out = append(out, v)
			t = x.Args[1]
		default:
			return nil, vm.TypeError("list", list)
		}
	}
}

func toSQL(t term.Term) (any, error) {
	switch x := t.(type) {
	case term.Int:
		return int64(x), nil
	case term.Float:
		return float64(x), nil
	case term.Atom:
		if x == "null" {
			return nil, nil
		}
		return string(x), nil
	case term.String:
		return string(x), nil
	case term.BigInt:
		return x.V.String(), nil
	case term.Variable:
		return nil, vm.InstantiationError()
	}
	return nil, vm.TypeError("sql_value", t)
}

func fromSQL(v any) term.Term {
	switch x := v.(type) {
	case nil:
		return term.Atom("null")
	case int64:
		return term.Int(x)
	case float64:
		return term.Float(x)
	case bool:
		if x {
			return term.True
		}
		return term.False
	case []byte:
		return term.String(string(x))
	case string:
		return term.String(x)
	case time.Time:
		return term.String(x.Format(time.RFC3339Nano))
	}
	return term.String(fmt.Sprint(v))
}
