package server

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/chazu/horn/reader"
	"github.com/chazu/horn/term"
)

// indicator is a predicate name and arity.
type indicator struct {
	name  string
	arity int
}

func (i indicator) String() string {
	return fmt.Sprintf("%s/%d", term.QuoteAtom(term.Atom(i.name)), i.arity)
}

// clauseInfo describes one clause or directive of a document.
type clauseInfo struct {
	head      indicator // zero for directives and non-callable terms
	start     reader.Position
	calls     []indicator
	directive bool
}

// document is the analysis of one source text.
type document struct {
	text     string
	clauses  []clauseInfo
	declared map[indicator]bool // dynamic/1 and discontiguous/1 declarations
	errors   []*reader.SyntaxError
}

var opTypes = map[term.Atom]term.OpType{
	"xfx": term.XFX, "xfy": term.XFY, "yfx": term.YFX,
	"fy": term.FY, "fx": term.FX, "xf": term.XF, "yf": term.YF,
}

// analyze reads every clause of text. op/3 directives take effect for the
// rest of the text, as they would when consulting it.
func analyze(text string) *document {
	doc := &document{text: text, declared: make(map[indicator]bool)}
	ops := term.DefaultOps()
	p := reader.NewParserWithOps(text, ops)
	for {
		t, _, err := p.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var se *reader.SyntaxError
			if !errors.As(err, &se) {
				break
			}
			doc.errors = append(doc.errors, se)
			// a lexical error at the end of input does not advance
			if len(doc.errors) > 1 && doc.errors[len(doc.errors)-2].Pos == se.Pos {
				break
			}
			continue
		}
		doc.add(t, p.Start(), ops)
	}
	return doc
}

func (doc *document) add(t term.Term, start reader.Position, ops *term.OpTable) {
	info := clauseInfo{start: start}
	var body term.Term
	if c, ok := t.(*term.Compound); ok && c.Functor == ":-" {
		switch len(c.Args) {
		case 1:
			info.directive = true
			body = c.Args[0]
			doc.directive(body, ops)
			// consult runs the goal of initialization/1 itself
			if g, ok := body.(*term.Compound); ok && g.Functor == "initialization" && len(g.Args) == 1 {
				body = g.Args[0]
			}
		case 2:
			t, body = c.Args[0], c.Args[1]
		}
	}
	if !info.directive {
		if pi, ok := callable(t); ok {
			info.head = pi
		}
	}
	if body != nil {
		info.calls = goals(body, nil)
	}
	doc.clauses = append(doc.clauses, info)
}

func (doc *document) directive(d term.Term, ops *term.OpTable) {
	c, ok := d.(*term.Compound)
	if !ok {
		return
	}
	switch {
	case len(c.Args) == 1 && (c.Functor == "dynamic" || c.Functor == "discontiguous"):
		for _, pi := range indicators(c.Args[0]) {
			doc.declared[pi] = true
		}
	case len(c.Args) == 3 && c.Functor == "op":
		prio, ok1 := c.Args[0].(term.Int)
		name, ok2 := c.Args[1].(term.Atom)
		typ, ok3 := opTypes[name]
		if !ok1 || !ok2 || !ok3 {
			return
		}
		names := []term.Term{c.Args[2]}
		if l, ok := term.Slice(c.Args[2]); ok && c.Args[2] != term.Nil {
			names = l
		}
		for _, n := range names {
			if a, ok := n.(term.Atom); ok {
				ops.Add(a, int(prio), typ)
			}
		}
	}
}

// indicators reads Name/Arity terms from a single indicator, a comma
// sequence or a list.
func indicators(t term.Term) []indicator {
	if l, ok := term.Slice(t); ok {
		var out []indicator
		for _, e := range l {
			out = append(out, indicators(e)...)
		}
		return out
	}
	c, ok := t.(*term.Compound)
	if !ok || len(c.Args) != 2 {
		return nil
	}
	switch c.Functor {
	case ",":
		return append(indicators(c.Args[0]), indicators(c.Args[1])...)
	case "/":
		name, ok1 := c.Args[0].(term.Atom)
		arity, ok2 := c.Args[1].(term.Int)
		if ok1 && ok2 {
			return []indicator{{string(name), int(arity)}}
		}
	}
	return nil
}

func callable(t term.Term) (indicator, bool) {
	switch x := t.(type) {
	case term.Atom:
		return indicator{string(x), 0}, true
	case *term.Compound:
		return indicator{string(x.Functor), len(x.Args)}, true
	}
	return indicator{}, false
}

// goals lists the predicates a clause body calls, looking through the
// control constructs the compiler expands inline.
func goals(body term.Term, out []indicator) []indicator {
	switch x := body.(type) {
	case term.Atom:
		switch x {
		case term.True, term.False, "fail", "!":
			return out
		}
	case *term.Compound:
		if len(x.Args) == 2 {
			switch x.Functor {
			case ",", ";", "|", "->", "*->":
				return goals(x.Args[1], goals(x.Args[0], out))
			}
		}
		if len(x.Args) == 1 && x.Functor == "\\+" {
			return goals(x.Args[0], out)
		}
	}
	if pi, ok := callable(body); ok {
		out = append(out, pi)
	}
	return out
}

// defines reports whether the document has clauses for pi or declares it.
func (doc *document) defines(pi indicator) bool {
	if doc.declared[pi] {
		return true
	}
	for _, c := range doc.clauses {
		if !c.directive && c.head == pi {
			return true
		}
	}
	return false
}

// heads returns the predicates defined in the document, sorted.
func (doc *document) heads() []indicator {
	seen := make(map[indicator]bool)
	var out []indicator
	for _, c := range doc.clauses {
		if c.directive || c.head.name == "" || seen[c.head] {
			continue
		}
		seen[c.head] = true
		out = append(out, c.head)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].name != out[j].name {
			return out[i].name < out[j].name
		}
		return out[i].arity < out[j].arity
	})
	return out
}
