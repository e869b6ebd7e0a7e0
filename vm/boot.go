package vm

import (
	"fmt"

	"github.com/chazu/horn/term"
)

// ---------------------------------------------------------------------------
// System bootstrap
// ---------------------------------------------------------------------------

// bootSystem fills the system module of reg: the hand-assembled control
// predicates, the Go builtins and the library written in Prolog. It runs
// once per registry.
func bootSystem(reg *Registry) {
	reg.boot.Do(func() {
		sys := reg.System()
		reg.queryPred = reg.assemble(sys, "$query", 1, func(b *BytecodeBuilder) {
			b.EmitUint16(OpBVar, 0)
			b.Emit(OpIUserCall0)
			b.Emit(OpIExitQuery)
		})
		reg.assemble(sys, "catch", 3, func(b *BytecodeBuilder) {
			recovery := b.NewLabel()
			b.Emit(OpIEnter)
			b.EmitJump(OpICatch, recovery)
			b.Emit(OpIExitCatch)
			b.Emit(OpIExit)
			b.Mark(recovery)
			b.EmitUint16(OpBVar, 2)
			b.Emit(OpIUserCall0)
			b.Emit(OpIExit)
		})
		// '$call_cleanup'(Goal, Catcher, Cleanup)
		reg.assemble(sys, "$call_cleanup", 3, func(b *BytecodeBuilder) {
			b.Emit(OpIEnter)
			b.Emit(OpICallCleanup)
			b.Emit(OpIExitCleanup)
			b.Emit(OpIExit)
		})
		registerBuiltins(reg)
		for _, lib := range []struct {
			src   string
			flags PredFlags
		}{
			{bootControl, PredSystem},
			{bootLibrary, PredLibrary},
		} {
			preds, err := reg.consultInto(sys, lib.src)
			if err != nil {
				panic(fmt.Sprintf("horn: boot library: %s", err))
			}
			for _, p := range preds {
				p.SetFlags(lib.flags)
			}
		}
	})
}

// assemble defines a system predicate with a single hand-written clause.
func (r *Registry) assemble(m *Module, name string, arity int, emit func(*BytecodeBuilder)) *Predicate {
	p := r.Define(m, r.Functor(r.Atom(name), arity))
	b := NewBytecodeBuilder()
	emit(b)
	r.AddClause(p, &Clause{Code: b.Bytes(), NVars: arity}, false)
	p.SetFlags(PredSystem)
	return p
}

// consultInto compiles every clause of src into m and returns the
// predicates it defined. Directives are not allowed.
func (r *Registry) consultInto(m *Module, src string) ([]*Predicate, error) {
	clauses, err := readClauses(src, r.Ops())
	if err != nil {
		return nil, err
	}
	var preds []*Predicate
	for _, t := range clauses {
		h, _ := SplitClause(t)
		name, _ := term.Name(h)
		p := r.Define(m, r.Functor(r.Atom(string(name)), term.Arity(h)))
		if p.Flags()&PredDeclared == 0 {
			p.SetFlags(PredDeclared)
			preds = append(preds, p)
		}
	}
	for _, t := range clauses {
		f, cl, err := r.Compile(t, m)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", term.Format(t), err)
		}
		r.AddClause(r.Define(m, f), cl, false)
	}
	return preds, nil
}

// bootControl holds control predicates that user code may not redefine.
const bootControl = `
true.
fail :- fail.
false :- fail.

call(G) :- call(G).
call(G, A) :- call(G, A).
call(G, A, B) :- call(G, A, B).
call(G, A, B, C) :- call(G, A, B, C).
call(G, A, B, C, D) :- call(G, A, B, C, D).
call(G, A, B, C, D, E) :- call(G, A, B, C, D, E).
call(G, A, B, C, D, E, F) :- call(G, A, B, C, D, E, F).
call(G, A, B, C, D, E, F, H) :- call(G, A, B, C, D, E, F, H).

throw(Ball) :- throw(Ball).

once(G) :- call(G), !.
ignore(G) :- ( call(G) -> true ; true ).
\+(G) :- \+ call(G).
not(G) :- \+ call(G).
forall(Cond, Action) :- \+ ( call(Cond), \+ call(Action) ).

call_cleanup(G, Cleanup) :- '$call_cleanup'(G, _, Cleanup).
call_cleanup(G, Catcher, Cleanup) :- '$call_cleanup'(G, Catcher, Cleanup).
setup_call_cleanup(S, G, Cleanup) :-
	once(S),
	'$call_cleanup'(G, _, Cleanup).
setup_call_catcher_cleanup(S, G, Catcher, Cleanup) :-
	once(S),
	'$call_cleanup'(G, Catcher, Cleanup).
`

// bootLibrary holds list utilities. A user definition of the same name
// shadows them.
const bootLibrary = `
append([], L, L).
append([H|T], L, [H|R]) :- append(T, L, R).

member(X, [X|_]).
member(X, [_|T]) :- member(X, T).

memberchk(X, L) :- member(X, L), !.

reverse(L, R) :- '$reverse'(L, [], R).
'$reverse'([], A, A).
'$reverse'([H|T], A, R) :- '$reverse'(T, [H|A], R).

length(L, N) :- var(N), !, '$length_enum'(L, 0, N).
length(L, N) :- integer(N), N >= 0, !, '$length_make'(L, N).
length(_, N) :- integer(N), !, throw(error(domain_error(not_less_than_zero, N), length/2)).
length(_, N) :- throw(error(type_error(integer, N), length/2)).
'$length_enum'([], N, N).
'$length_enum'([_|T], N0, N) :- N1 is N0 + 1, '$length_enum'(T, N1, N).
'$length_make'(L, 0) :- !, L = [].
'$length_make'([_|T], N) :- N1 is N - 1, '$length_make'(T, N1).

nth0(I, L, E) :- '$nth'(L, 0, I, E).
nth1(I, L, E) :- '$nth'(L, 1, I, E).
'$nth'(L, B, I, E) :- integer(I), !, Skip is I - B, Skip >= 0, '$nth_fixed'(Skip, L, E).
'$nth'([H|T], B, I, E) :- var(I), '$nth_enum'(T, H, B, I, E).
'$nth_fixed'(0, [E|_], E) :- !.
'$nth_fixed'(N, [_|T], E) :- N1 is N - 1, '$nth_fixed'(N1, T, E).
'$nth_enum'(_, H, B, B, H).
'$nth_enum'([H|T], _, B, I, E) :- B1 is B + 1, '$nth_enum'(T, H, B1, I, E).

last([X], X) :- !.
last([_|T], X) :- last(T, X).

select(X, [X|T], T).
select(X, [H|T], [H|R]) :- select(X, T, R).

sum_list(L, S) :- '$sum_list'(L, 0, S).
'$sum_list'([], S, S).
'$sum_list'([X|Xs], S0, S) :- S1 is S0 + X, '$sum_list'(Xs, S1, S).

maplist(_, []).
maplist(G, [X|Xs]) :- call(G, X), maplist(G, Xs).
maplist(_, [], []).
maplist(G, [X|Xs], [Y|Ys]) :- call(G, X, Y), maplist(G, Xs, Ys).
maplist(_, [], [], []).
maplist(G, [X|Xs], [Y|Ys], [Z|Zs]) :- call(G, X, Y, Z), maplist(G, Xs, Ys, Zs).

foldl(G, L, V0, V) :- '$foldl'(L, G, V0, V).
'$foldl'([], _, V, V).
'$foldl'([X|Xs], G, V0, V) :- call(G, X, V0, V1), '$foldl'(Xs, G, V1, V).
`
