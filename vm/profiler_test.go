package vm

import (
	"testing"
)

func lookupUser(t *testing.T, m *Machine, name string, arity int) *Predicate {
	t.Helper()
	p := m.reg.Lookup(m.reg.User(), m.reg.Functor(m.reg.Atom(name), arity))
	if p == nil {
		t.Fatalf("%s/%d not defined", name, arity)
	}
	return p
}

func TestProfilerCountsPorts(t *testing.T) {
	m, _ := newTestMachine(t, countProgram+`
pick(a).
pick(b).
`)
	m.Profiler = NewProfiler()
	mustOnce(t, m, "count(3)")

	pp := m.Profiler.Profile(lookupUser(t, m, "count", 1))
	if pp == nil {
		t.Fatal("count/1 was not profiled")
	}
	if got := pp.Count(PortCall); got != 4 {
		t.Errorf("calls = %d, want 4", got)
	}
	if got := pp.Count(PortExit); got != 4 {
		t.Errorf("exits = %d, want 4", got)
	}
	if pp.Indicator != "count/1" {
		t.Errorf("indicator = %q", pp.Indicator)
	}

	mustFail(t, m, "pick(X), X == c")
	pick := m.Profiler.Profile(lookupUser(t, m, "pick", 1))
	if pick.Count(PortCall) != 1 || pick.Count(PortRedo) != 1 || pick.Count(PortExit) != 2 {
		t.Errorf("pick/1 call=%d redo=%d exit=%d, want 1 1 2",
			pick.Count(PortCall), pick.Count(PortRedo), pick.Count(PortExit))
	}
}

func TestProfilerTopAndReset(t *testing.T) {
	m, _ := newTestMachine(t, countProgram)
	m.Profiler = NewProfiler()
	mustOnce(t, m, "count(10), even(4)")
	top := m.Profiler.Top(1)
	if len(top) != 1 || top[0].Indicator != "count/1" {
		t.Fatalf("Top(1) = %v, want count/1", top)
	}
	if m.Profiler.Total() == 0 {
		t.Error("Total() = 0")
	}
	m.Profiler.Reset()
	if m.Profiler.Total() != 0 || len(m.Profiler.Top(10)) != 0 {
		t.Error("Reset left counters behind")
	}
}

func TestProfilerHotThreshold(t *testing.T) {
	m, _ := newTestMachine(t, countProgram)
	m.Profiler = NewProfiler()
	m.Profiler.HotThreshold = 50
	var hot []string
	m.Profiler.OnHot = func(p *Predicate, pp *PredicateProfile) { hot = append(hot, pp.Indicator) }
	mustOnce(t, m, "count(100)")
	if len(hot) != 1 || hot[0] != "count/1" {
		t.Errorf("hot = %v, want [count/1] once", hot)
	}
}
