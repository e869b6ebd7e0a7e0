package vm

import (
	"bytes"
	"strings"
	"testing"
)

func TestPortWriterPrintsPorts(t *testing.T) {
	m, _ := newTestMachine(t, countProgram, Options{Trace: true})
	var buf bytes.Buffer
	m.Tracer = NewPortWriter(&buf)
	mustOnce(t, m, "count(1)")
	out := buf.String()
	for _, want := range []string{"Call: (", "count(1)", "count(0)", "Exit: ("} {
		if !strings.Contains(out, want) {
			t.Errorf("trace output lacks %q:\n%s", want, out)
		}
	}
}

func TestTracerCanFailAFrame(t *testing.T) {
	m, _ := newTestMachine(t, countProgram, Options{Trace: true})
	w := NewPortWriter(&bytes.Buffer{})
	w.Decide = func(info FrameInfo, port Port) TraceAction {
		if info.Predicate == "count/1" && port == PortCall {
			return TraceFail
		}
		return TraceProceed
	}
	m.Tracer = w
	mustFail(t, m, "count(2)")
}

func TestTracerIgnore(t *testing.T) {
	m, _ := newTestMachine(t, "never :- fail.\n", Options{Trace: true})
	w := NewPortWriter(&bytes.Buffer{})
	w.Decide = func(info FrameInfo, port Port) TraceAction {
		if info.Predicate == "never/0" && port == PortCall {
			return TraceIgnore
		}
		return TraceProceed
	}
	m.Tracer = w
	mustOnce(t, m, "never")
}

func TestTracerRetryRunsFrameAgain(t *testing.T) {
	m, _ := newTestMachine(t, ":- dynamic(tick/1).\nstep :- assertz(tick(x)).\n", Options{Trace: true})
	retried := false
	w := NewPortWriter(&bytes.Buffer{})
	w.Decide = func(info FrameInfo, port Port) TraceAction {
		if info.Predicate == "step/0" && port == PortExit && !retried {
			retried = true
			return TraceRetry
		}
		return TraceProceed
	}
	m.Tracer = w
	mustOnce(t, m, "step")
	got, err := solveAll(t, m, "tick(X)")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("tick/1 has %d clauses, want 2 after one retry", len(got))
	}
}

func TestSpyTracesOnlySpiedPredicates(t *testing.T) {
	m, _ := newTestMachine(t, countProgram+"other.\n")
	var buf bytes.Buffer
	m.Tracer = NewPortWriter(&buf)
	mustOnce(t, m, "spy(other/0)")
	mustOnce(t, m, "count(2), other")
	out := buf.String()
	if !strings.Contains(out, "other") {
		t.Errorf("spied predicate not traced:\n%s", out)
	}
	if strings.Contains(out, "count(") {
		t.Errorf("unspied predicate traced:\n%s", out)
	}
	mustOnce(t, m, "nospy(other/0)")
	buf.Reset()
	mustOnce(t, m, "other")
	if buf.Len() != 0 {
		t.Errorf("trace output after nospy:\n%s", buf.String())
	}
}

func TestBacktrace(t *testing.T) {
	var frames []FrameInfo
	m, _ := newTestMachine(t, "outer :- inner, true.\ninner :- probe.\n")
	m.reg.DefineForeign("probe", 0, func(c *ForeignContext, _ []Word) (bool, error) {
		frames = c.Machine().Backtrace()
		return true, nil
	})
	mustOnce(t, m, "outer")
	var names []string
	for _, f := range frames {
		names = append(names, f.Predicate)
	}
	joined := strings.Join(names, " ")
	if !strings.Contains(joined, "inner/0") || !strings.Contains(joined, "outer/0") {
		t.Errorf("backtrace = %v", names)
	}
	if strings.Index(joined, "inner/0") > strings.Index(joined, "outer/0") {
		t.Errorf("backtrace should list the innermost frame first: %v", names)
	}
}
