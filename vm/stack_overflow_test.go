package vm

import (
	"errors"
	"strings"
	"testing"

	"github.com/chazu/horn/term"
)

// ---------------------------------------------------------------------------
// Stack limits and the spare margin
// ---------------------------------------------------------------------------

const growProgram = `
grow(L) :- grow([x|L]).
deep(N) :- N1 is N + 1, deep(N1), true.
`

func TestGlobalOverflowIsCatchable(t *testing.T) {
	m, _ := newTestMachine(t, growProgram, Options{GlobalLimit: 8192})
	b := mustOnce(t, m, "catch(grow([]), error(resource_error(S), _), true)")
	if got := term.Format(b["S"]); got != "global" {
		t.Errorf("S = %s, want global", got)
	}
	// the margin is withdrawn once the stack is back under its limit
	if m.margins[StackGlobal] {
		t.Error("global margin still granted after recovery")
	}
	b = mustOnce(t, m, "catch(grow([]), error(resource_error(S), _), true)")
	if got := term.Format(b["S"]); got != "global" {
		t.Errorf("second overflow: S = %s, want global", got)
	}
}

func TestLocalOverflowIsCatchable(t *testing.T) {
	m, _ := newTestMachine(t, growProgram, Options{LocalLimit: 4096})
	b := mustOnce(t, m, "catch(deep(0), error(resource_error(S), _), true)")
	if got := term.Format(b["S"]); got != "local" {
		t.Errorf("S = %s, want local", got)
	}
}

func TestUncaughtOverflowLeavesMachineUsable(t *testing.T) {
	m, _ := newTestMachine(t, growProgram, Options{GlobalLimit: 8192})
	ball := uncaught(t, m, "grow([])")
	if got := term.Format(ball); !strings.HasPrefix(got, "error(resource_error(global)") {
		t.Errorf("ball = %s", got)
	}
	b := mustOnce(t, m, "length(L, 3), X = done")
	if got := term.Format(b["X"]); got != "done" {
		t.Errorf("X = %s", got)
	}
}

func TestOverflowInsideMarginIsFatal(t *testing.T) {
	m := NewMachine(NewRegistry(), Options{GlobalLimit: 100, Spare: 50})
	if m.require(StackGlobal, 1000) {
		t.Fatal("require past the limit succeeded")
	}
	if m.fatal != nil {
		t.Fatalf("first overflow was fatal: %v", m.fatal)
	}
	if got := term.Format(m.ball); !strings.HasPrefix(got, "error(resource_error(global)") {
		t.Errorf("pending ball = %s", got)
	}
	if !m.require(StackGlobal, 40) {
		t.Error("the spare margin was not granted")
	}
	if m.require(StackGlobal, 1000) {
		t.Fatal("require past the margin succeeded")
	}
	var ex *ErrStackExhausted
	if !errors.As(m.fatal, &ex) || ex.Stack != StackGlobal {
		t.Errorf("fatal = %v, want global exhaustion", m.fatal)
	}
	if m.overflow() != actFatal {
		t.Error("overflow() should abort once fatal")
	}
}

type recordingStorage struct {
	allow bool
	calls []Stack
}

func (s *recordingStorage) RequireCapacity(st Stack, used, want int) error {
	s.calls = append(s.calls, st)
	if s.allow {
		return nil
	}
	return errors.New("no room")
}

func TestStorageManagerMayGrantGrowth(t *testing.T) {
	m, _ := newTestMachine(t, "", Options{GlobalLimit: 4096})
	st := &recordingStorage{allow: true}
	m.Storage = st
	b := mustOnce(t, m, "length(L, 3000), length(L, N)")
	if got := term.Format(b["N"]); got != "3000" {
		t.Errorf("N = %s", got)
	}
	if len(st.calls) == 0 {
		t.Error("storage manager was never asked")
	}
}

func TestStorageManagerRefusal(t *testing.T) {
	m, _ := newTestMachine(t, "", Options{GlobalLimit: 4096})
	m.Storage = &recordingStorage{}
	ball := uncaught(t, m, "length(L, 3000)")
	if got := term.Format(ball); !strings.HasPrefix(got, "error(resource_error(global)") {
		t.Errorf("ball = %s", got)
	}
}

func TestTrailOverflowIsCatchable(t *testing.T) {
	m, _ := newTestMachine(t, "", Options{TrailLimit: 100, Spare: 10})
	b := mustOnce(t, m,
		"catch((length(L, 5000), member(_, [a, b]), maplist(=(x), L)), error(resource_error(S), _), true)")
	if got := term.Format(b["S"]); got != "trail" {
		t.Errorf("S = %s, want trail", got)
	}
	b = mustOnce(t, m, "length(L, 3), maplist(=(y), L)")
	if got := term.Format(b["L"]); got != "[y,y,y]" {
		t.Errorf("after recovery L = %s", got)
	}
}

// nested builds g(g(...g(a, z)..., z), z) so every level but the outermost
// sits in a non-final argument position.
func nested(depth int) string {
	return strings.Repeat("g(", depth) + "a" + strings.Repeat(", z)", depth)
}

func TestArgumentOverflowIsCatchable(t *testing.T) {
	src := "nest(" + nested(200) + ").\n" +
		"build(X) :- keep(" + nested(200) + ", X).\n" +
		"keep(T, T).\n"
	tests := []struct {
		name string
		goal string
	}{
		{"head", "catch(nest(_), error(resource_error(S), _), true)"},
		{"body", "catch(build(_), error(resource_error(S), _), true)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestMachine(t, src, Options{ArgumentLimit: 50, Spare: 10})
			b := mustOnce(t, m, tt.goal)
			if got := term.Format(b["S"]); got != "argument" {
				t.Errorf("S = %s, want argument", got)
			}
		})
	}
}
