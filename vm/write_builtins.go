package vm

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chazu/horn/term"
)

// ---------------------------------------------------------------------------
// Term output
// ---------------------------------------------------------------------------

func registerWriteBuiltins(r *Registry) {
	for name, opts := range map[string]term.WriteOptions{
		"write":           {},
		"print":           {Quoted: true},
		"writeq":          {Quoted: true},
		"write_canonical": {Quoted: true, IgnoreOps: true},
	} {
		r.DefineForeign(name, 1, func(c *ForeignContext, a []Word) (bool, error) {
			return true, c.write(a[0], opts, "")
		})
	}
	r.DefineForeign("writeln", 1, func(c *ForeignContext, a []Word) (bool, error) {
		return true, c.write(a[0], term.WriteOptions{}, "\n")
	})
	r.DefineForeign("nl", 0, func(c *ForeignContext, _ []Word) (bool, error) {
		_, err := io.WriteString(c.Out(), "\n")
		return true, err
	})

	// tab/1 - write N spaces
	r.DefineForeign("tab", 1, func(c *ForeignContext, a []Word) (bool, error) {
		n, err := c.m.eval(a[0])
		if err != nil {
			return false, err
		}
		if err := mustInt(n); err != nil {
			return false, err
		}
		_, err = io.WriteString(c.Out(), strings.Repeat(" ", int(max(n.I, 0))))
		return true, err
	})

	// format/1 and format/2 - formatted output with ~ directives
	r.DefineForeign("format", 1, func(c *ForeignContext, a []Word) (bool, error) {
		return true, c.format(a[0], MakeAtom(AtomNil))
	})
	r.DefineForeign("format", 2, func(c *ForeignContext, a []Word) (bool, error) {
		return true, c.format(a[0], a[1])
	})
}

func (c *ForeignContext) write(w Word, opts term.WriteOptions, suffix string) error {
	opts.Ops = c.m.reg.Ops()
	_, err := io.WriteString(c.Out(), term.FormatWith(c.Get(w), opts)+suffix)
	return err
}

// format interprets the directives ~w ~p ~q ~a ~d ~D ~s ~e ~f ~g ~c ~r ~n
// ~i and ~~.
func (c *ForeignContext) format(fw, argw Word) error {
	m := c.m
	f, err := c.TextArg(fw)
	if err != nil {
		return err
	}
	args, err := m.listWords(argw)
	if err != nil {
		args = []Word{argw}
	}
	next := func() (Word, error) {
		if len(args) == 0 {
			return 0, Throw(isoError(term.Comp("format", term.String("not enough arguments"))))
		}
		w := args[0]
		args = args[1:]
		return w, nil
	}
	var sb strings.Builder
	rs := []rune(f)
	for i := 0; i < len(rs); i++ {
		if rs[i] != '~' {
			sb.WriteRune(rs[i])
			continue
		}
		i++
		num := -1
		start := i
		for i < len(rs) && rs[i] >= '0' && rs[i] <= '9' {
			i++
		}
		if i > start {
			num, _ = strconv.Atoi(string(rs[start:i]))
		}
		if i >= len(rs) {
			return Throw(isoError(term.Comp("format", term.String("truncated directive"))))
		}
		d := rs[i]
		switch d {
		case '~':
			sb.WriteByte('~')
			continue
		case 'n':
			sb.WriteString(strings.Repeat("\n", max(num, 1)))
			continue
		}
		w, err := next()
		if err != nil {
			return err
		}
		switch d {
		case 'w', 'a':
			sb.WriteString(term.FormatWith(c.Get(w), term.WriteOptions{Ops: m.reg.Ops()}))
		case 'p', 'q':
			sb.WriteString(term.FormatWith(c.Get(w), term.WriteOptions{Quoted: true, Ops: m.reg.Ops()}))
		case 'i':
		case 'd', 'D':
			n, err := m.eval(w)
			if err != nil {
				return err
			}
			if err := mustInt(n); err != nil {
				return err
			}
			s := n.toBig().String()
			if d == 'D' {
				s = groupDigits(s)
			}
			sb.WriteString(s)
		case 'e', 'f', 'g':
			n, err := m.eval(w)
			if err != nil {
				return err
			}
			if num < 0 {
				num = 6
			}
			sb.WriteString(strconv.FormatFloat(n.toFloat(), byte(d), num, 64))
		case 'c':
			code, err := c.IntArg(w)
			if err != nil {
				return err
			}
			sb.WriteString(strings.Repeat(string(rune(code)), max(num, 1)))
		case 'r':
			n, err := m.eval(w)
			if err != nil {
				return err
			}
			if err := mustInt(n); err != nil {
				return err
			}
			if num < 2 || num > 36 {
				num = 8
			}
			sb.WriteString(n.toBig().Text(num))
		case 's':
			s, err := c.TextArg(w)
			if err != nil {
				return err
			}
			sb.WriteString(s)
		default:
			return Throw(isoError(term.Comp("format", term.String(fmt.Sprintf("unknown directive ~%c", d)))))
		}
	}
	_, err = io.WriteString(c.Out(), sb.String())
	return err
}

// groupDigits inserts commas between groups of three digits.
func groupDigits(s string) string {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var sb strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(r)
	}
	if neg {
		return "-" + sb.String()
	}
	return sb.String()
}
