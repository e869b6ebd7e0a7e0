package vm

import (
	"bytes"
	"sort"
	"strings"
	"testing"

	"github.com/chazu/horn/reader"
	"github.com/chazu/horn/term"
)

// newTestMachine returns a machine on a fresh registry with src consulted
// and output captured.
func newTestMachine(t *testing.T, src string, opts ...Options) (*Machine, *bytes.Buffer) {
	t.Helper()
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	m := NewMachine(NewRegistry(), o)
	var out bytes.Buffer
	m.Out = &out
	if src != "" {
		if err := m.Consult(src); err != nil {
			t.Fatalf("Consult: %v", err)
		}
	}
	return m, &out
}

func parseGoal(t *testing.T, src string) term.Term {
	t.Helper()
	g, _, err := reader.ParseTerm(src)
	if err != nil {
		t.Fatalf("ParseTerm(%q): %v", src, err)
	}
	return g
}

// formatBindings renders a solution as "X=1, Y=a" in name order.
func formatBindings(b map[string]term.Term) string {
	names := make([]string, 0, len(b))
	for name := range b {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + "=" + term.Format(b[name])
	}
	return strings.Join(parts, ", ")
}

// solveAll collects every solution of goal.
func solveAll(t *testing.T, m *Machine, goal string) ([]string, error) {
	t.Helper()
	var out []string
	err := m.Solve(parseGoal(t, goal), func(b map[string]term.Term) bool {
		out = append(out, formatBindings(b))
		return true
	})
	return out, err
}

// mustOnce runs goal and fails the test unless it succeeds.
func mustOnce(t *testing.T, m *Machine, goal string) map[string]term.Term {
	t.Helper()
	b, ok, err := m.Once(parseGoal(t, goal))
	if err != nil {
		t.Fatalf("%s: %v", goal, err)
	}
	if !ok {
		t.Fatalf("%s: failed", goal)
	}
	return b
}

// mustFail runs goal and fails the test unless it fails without error.
func mustFail(t *testing.T, m *Machine, goal string) {
	t.Helper()
	_, ok, err := m.Once(parseGoal(t, goal))
	if err != nil {
		t.Fatalf("%s: %v", goal, err)
	}
	if ok {
		t.Fatalf("%s: succeeded, want failure", goal)
	}
}

// uncaught runs goal and returns the ball it raised.
func uncaught(t *testing.T, m *Machine, goal string) term.Term {
	t.Helper()
	_, _, err := m.Once(parseGoal(t, goal))
	ball, ok := BallOf(err)
	if !ok {
		t.Fatalf("%s: err = %v, want an uncaught exception", goal, err)
	}
	return ball
}

// openFirst opens goal and advances it to its first solution.
func openFirst(t *testing.T, m *Machine, goal string) *Query {
	t.Helper()
	q, err := m.OpenQuery(parseGoal(t, goal))
	if err != nil {
		t.Fatalf("OpenQuery(%s): %v", goal, err)
	}
	ok, err := q.Next()
	if err != nil || !ok {
		q.Close()
		t.Fatalf("%s: Next = %v, %v", goal, ok, err)
	}
	return q
}

// deterministic reports whether the query left no choice points behind.
func (q *Query) deterministic() bool { return q.m.BFR == q.top }
