package vm

import (
	"errors"
	"fmt"

	"github.com/chazu/horn/term"
)

// ---------------------------------------------------------------------------
// Go-side errors
// ---------------------------------------------------------------------------

// ThrowError carries a Prolog exception ball. Foreign predicates return it
// to raise an exception; queries return it wrapped in UncaughtError.
type ThrowError struct {
	Ball term.Term
}

func (e *ThrowError) Error() string { return "unhandled exception: " + term.Format(e.Ball) }

// Throw returns an error that raises ball when returned from a foreign
// predicate.
func Throw(ball term.Term) error { return &ThrowError{Ball: ball} }

// UncaughtError is returned by Query.Next when no catch/3 handled an
// exception.
type UncaughtError struct {
	Ball term.Term
}

func (e *UncaughtError) Error() string { return "uncaught exception: " + term.Format(e.Ball) }

// HaltError is returned when halt/0,1 runs.
type HaltError struct {
	Code int
}

func (e *HaltError) Error() string { return fmt.Sprintf("halt(%d)", e.Code) }

// ErrQueryClosed is returned when a closed query is used.
var ErrQueryClosed = errors.New("query is closed")

// ErrNestedQuery is returned when a query other than the innermost open
// one is advanced.
var ErrNestedQuery = errors.New("query is not the innermost open query")

// BallOf returns the exception ball carried by err, if any.
func BallOf(err error) (term.Term, bool) {
	var te *ThrowError
	if errors.As(err, &te) {
		return te.Ball, true
	}
	var ue *UncaughtError
	if errors.As(err, &ue) {
		return ue.Ball, true
	}
	return nil, false
}

// ---------------------------------------------------------------------------
// ISO error terms
// ---------------------------------------------------------------------------

func isoError(formal term.Term) term.Term {
	return term.Comp("error", formal, term.Variable("_"))
}

func instantiationError() term.Term {
	return isoError(term.Atom("instantiation_error"))
}

func typeError(typ string, culprit term.Term) term.Term {
	return isoError(term.Comp("type_error", term.Atom(typ), culprit))
}

func domainError(domain string, culprit term.Term) term.Term {
	return isoError(term.Comp("domain_error", term.Atom(domain), culprit))
}

func existenceError(kind string, culprit term.Term) term.Term {
	return isoError(term.Comp("existence_error", term.Atom(kind), culprit))
}

func permissionError(action, typ string, culprit term.Term) term.Term {
	return isoError(term.Comp("permission_error", term.Atom(action), term.Atom(typ), culprit))
}

func representationError(what string) term.Term {
	return isoError(term.Comp("representation_error", term.Atom(what)))
}

func evaluationError(what string) term.Term {
	return isoError(term.Comp("evaluation_error", term.Atom(what)))
}

func resourceError(what string) term.Term {
	return isoError(term.Comp("resource_error", term.Atom(what)))
}

func systemError(msg string) term.Term {
	return isoError(term.Comp("system_error", term.String(msg)))
}

func indicator(name string, arity int) term.Term {
	return term.Comp("/", term.Atom(name), term.Int(arity))
}

// Exported builders for foreign predicates.

func InstantiationError() error                       { return Throw(instantiationError()) }
func TypeError(typ string, culprit term.Term) error   { return Throw(typeError(typ, culprit)) }
func DomainError(dom string, culprit term.Term) error { return Throw(domainError(dom, culprit)) }
func ExistenceError(kind string, culprit term.Term) error {
	return Throw(existenceError(kind, culprit))
}
func PermissionError(action, typ string, culprit term.Term) error {
	return Throw(permissionError(action, typ, culprit))
}
func EvaluationError(what string) error { return Throw(evaluationError(what)) }

// errorBall converts a foreign error into an exception ball.
func errorBall(err error) term.Term {
	if b, ok := BallOf(err); ok {
		return b
	}
	return systemError(err.Error())
}
