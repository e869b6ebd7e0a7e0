package vm

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/chazu/horn/reader"
	"github.com/chazu/horn/term"
)

// ---------------------------------------------------------------------------
// Loading source text
// ---------------------------------------------------------------------------

// readClauses parses every clause of src. It stops at the first syntax
// error.
func readClauses(src string, ops *term.OpTable) ([]term.Term, error) {
	p := reader.NewParserWithOps(src, ops)
	var out []term.Term
	for {
		t, _, err := p.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
}

// Consult loads the clauses of src into the user module.
//
// Clauses are read one at a time, so an op/3 directive affects the text
// after it. A predicate that already has clauses loses them the first time
// src defines it again, unless it is dynamic. Syntax errors, compile
// errors and failing or raising directives are logged and loading carries
// on; the errors are returned joined. halt/0,1 in a directive stops the
// load and is returned as a *HaltError.
func (m *Machine) Consult(src string) error {
	return m.consult(src, "user")
}

// ConsultFile loads the file at path into the user module.
func (m *Machine) ConsultFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ExistenceError("source_sink", term.Atom(path))
		}
		return fmt.Errorf("consult %s: %w", path, err)
	}
	m.log.Infof("consulting %s", path)
	return m.consult(string(data), path)
}

type loader struct {
	m        *Machine
	name     string
	module   *Module
	seen     map[*Predicate]bool
	initGoal []term.Term
	errs     []error
}

func (m *Machine) consult(src, name string) error {
	ld := &loader{m: m, name: name, module: m.reg.User(), seen: make(map[*Predicate]bool)}
	p := reader.NewParserWithOps(src, m.reg.Ops())
	for {
		t, _, err := p.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			ld.fail(err)
			var se *reader.SyntaxError
			if !errors.As(err, &se) {
				// a lexer error at end of input cannot be skipped
				break
			}
			continue
		}
		if goal, ok := directive(t); ok {
			if err := ld.directive(goal); err != nil {
				return err
			}
			continue
		}
		if err := ld.clause(t); err != nil {
			ld.fail(fmt.Errorf("%s: %w", term.Format(t), err))
		}
	}
	for _, g := range ld.initGoal {
		if err := ld.run(g); err != nil {
			return err
		}
	}
	return errors.Join(ld.errs...)
}

// directive recognizes :- Goal and ?- Goal.
func directive(t term.Term) (term.Term, bool) {
	c, ok := t.(*term.Compound)
	if !ok || len(c.Args) != 1 || c.Functor != ":-" && c.Functor != "?-" {
		return nil, false
	}
	return c.Args[0], true
}

func (ld *loader) fail(err error) {
	ld.m.log.Errorf("%s: %s", ld.name, err)
	ld.errs = append(ld.errs, fmt.Errorf("%s: %w", ld.name, err))
}

// clause compiles t and adds it to the predicate it defines.
func (ld *loader) clause(t term.Term) error {
	reg := ld.m.reg
	f, cl, err := reg.Compile(t, ld.module)
	if err != nil {
		return err
	}
	p, err := reg.modifiable(ld.module, f)
	if err != nil {
		return err
	}
	if !ld.seen[p] {
		ld.seen[p] = true
		if !p.IsDynamic() && p.FirstClause() != nil {
			ld.m.log.Debugf("%s: redefining %s/%d", ld.name, reg.AtomName(p.Name), p.Arity)
			reg.Abolish(p)
		}
		p.SetFlags(PredDeclared)
	}
	reg.AddClause(p, cl, false)
	return nil
}

func (ld *loader) directive(goal term.Term) error {
	if c, ok := goal.(*term.Compound); ok && c.Functor == "initialization" && len(c.Args) == 1 {
		ld.initGoal = append(ld.initGoal, c.Args[0])
		return nil
	}
	return ld.run(goal)
}

// run executes a directive goal once. Only halt stops the load.
func (ld *loader) run(goal term.Term) error {
	_, ok, err := ld.m.Once(goal)
	var halt *HaltError
	switch {
	case errors.As(err, &halt):
		return err
	case err != nil:
		ld.fail(fmt.Errorf("directive %s: %w", term.Format(goal), err))
	case !ok:
		ld.m.log.Warningf("%s: directive failed: %s", ld.name, term.Format(goal))
	}
	return nil
}
