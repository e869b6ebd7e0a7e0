package vm

import (
	"io"
	"testing"
)

// ---------------------------------------------------------------------------
// Last-call optimization
// ---------------------------------------------------------------------------

const countProgram = `
count(0) :- !.
count(N) :- N1 is N - 1, count(N1).

walk([]).
walk([_|T]) :- walk(T).

even(0) :- !.
even(N) :- N1 is N - 1, odd(N1).
odd(N) :- N1 is N - 1, even(N1).
`

func TestDepartKeepsLocalStackFlat(t *testing.T) {
	tests := []string{
		"count(100000)",
		"length(L, 50000), walk(L)",
		"even(100000)",
	}
	for _, goal := range tests {
		t.Run(goal, func(t *testing.T) {
			m, _ := newTestMachine(t, countProgram)
			mustOnce(t, m, goal)
			if s := m.Stats(); s.MaxFrames > 64 {
				t.Errorf("MaxFrames = %d, want a flat local stack", s.MaxFrames)
			}
			if m.Stats().Departs == 0 {
				t.Error("no departs recorded")
			}
		})
	}
}

func TestDepartWithinSmallLocalLimit(t *testing.T) {
	m, _ := newTestMachine(t, countProgram, Options{LocalLimit: 4096})
	mustOnce(t, m, "count(200000)")
}

func TestTracingDisablesDepart(t *testing.T) {
	m, _ := newTestMachine(t, countProgram, Options{Trace: true})
	m.Tracer = NewPortWriter(io.Discard)
	mustOnce(t, m, "count(300)")
	if s := m.Stats(); s.MaxFrames < 300 {
		t.Errorf("MaxFrames = %d under tracing, want one frame per call", s.MaxFrames)
	}
}

func TestChoicePointBlocksDepart(t *testing.T) {
	m, _ := newTestMachine(t, `
loop(0).
loop(N) :- N > 0, N1 is N - 1, loop(N1).
`)
	// The first argument is an integer in both directions, so loop(N)
	// leaves a choice point for loop(0) only when N is 0.
	mustOnce(t, m, "loop(1000)")
	if s := m.Stats(); s.MaxFrames > 64 {
		t.Errorf("MaxFrames = %d, want indexing to keep calls determinate", s.MaxFrames)
	}

	nondet, _ := newTestMachine(t, `
grow(_, 0) :- !.
grow(X, N) :- member(X, [a, b]), N1 is N - 1, grow(X, N1).
`)
	mustOnce(t, nondet, "grow(_, 200)")
	if s := nondet.Stats(); s.MaxFrames < 200 {
		t.Errorf("MaxFrames = %d, want frames kept alive by choice points", s.MaxFrames)
	}
}
