package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/chazu/horn/reader"
	"github.com/chazu/horn/term"
	"github.com/chazu/horn/vm"
)

const (
	promptMain  = "?- "
	promptCont  = "|    "
	historyFile = ".horn_history"
)

// runREPL reads queries until end of input or halt and returns the exit
// status.
func runREPL(m *vm.Machine, stdout, stderr io.Writer) int {
	fmt.Fprintln(stdout, "horn top level. Type :help for commands, halt. to exit.")

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if home, err := os.UserHomeDir(); err == nil {
		histPath := filepath.Join(home, historyFile)
		if f, err := os.Open(histPath); err == nil {
			_, _ = ln.ReadHistory(f)
			_ = f.Close()
		}
		defer func() {
			if f, err := os.Create(histPath); err == nil {
				_, _ = ln.WriteHistory(f)
				_ = f.Close()
			}
		}()
	}

	for {
		src, ok := readQuery(ln)
		if !ok {
			fmt.Fprintln(stdout)
			return 0
		}
		src = strings.TrimSpace(src)
		if src == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(src, "\n", " "))
		if strings.HasPrefix(src, ":") {
			if quit := replCommand(m, src, stdout, stderr); quit {
				return 0
			}
			continue
		}
		if code, halted := answer(m, ln, src, stdout, stderr); halted {
			return code
		}
	}
}

// readQuery collects lines until one ends in a full stop. Commands are a
// single line.
func readQuery(ln *liner.State) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, liner.ErrPromptAborted) {
			b.Reset()
			continue
		}
		if err != nil {
			return "", false
		}
		if b.Len() == 0 && strings.HasPrefix(strings.TrimSpace(line), ":") {
			return line, true
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		if strings.HasSuffix(strings.TrimSpace(line), ".") {
			return b.String(), true
		}
	}
}

// answer runs one query, offering further solutions while the user types
// ';'. It reports whether the query halted and with what code.
func answer(m *vm.Machine, ln *liner.State, src string, stdout, stderr io.Writer) (int, bool) {
	goal, vars, err := parseGoal(m.Registry(), src)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 0, false
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	m.SetContext(ctx)
	defer func() {
		stop()
		m.SetContext(context.Background())
	}()

	q, err := m.OpenQuery(goal)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 0, false
	}
	defer q.Close()
	for {
		ok, err := q.Next()
		var h *vm.HaltError
		switch {
		case errors.As(err, &h):
			return h.Code, true
		case err != nil:
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 0, false
		case !ok:
			fmt.Fprintln(stdout, "false.")
			return 0, false
		}
		lines := strings.Split(formatAnswer(m.Registry(), vars, q.Bindings()), "\n")
		for _, l := range lines[:len(lines)-1] {
			fmt.Fprintln(stdout, l)
		}
		resp, err := ln.Prompt(lines[len(lines)-1] + " ")
		if err != nil || strings.TrimSpace(resp) != ";" {
			fmt.Fprintln(stdout, ".")
			return 0, false
		}
	}
}

// formatAnswer lists the bindings of the query variables in source order.
func formatAnswer(reg *vm.Registry, vars []reader.VarBinding, b map[string]term.Term) string {
	opts := term.WriteOptions{Quoted: true, Ops: reg.Ops()}
	var parts []string
	for _, v := range vars {
		val, ok := b[v.Name]
		if !ok || strings.HasPrefix(v.Name, "_") {
			continue
		}
		if u, isVar := val.(term.Variable); isVar && (string(u) == v.Name || strings.HasPrefix(string(u), "_")) {
			continue
		}
		parts = append(parts, v.Name+" = "+term.FormatWith(val, opts))
	}
	if len(parts) == 0 {
		return "true"
	}
	return strings.Join(parts, ",\n")
}

func replCommand(m *vm.Machine, cmd string, stdout, stderr io.Writer) (quit bool) {
	name, arg, _ := strings.Cut(cmd, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case ":help", ":h", ":?":
		fmt.Fprintln(stdout, "Top level commands:")
		fmt.Fprintln(stdout, "  :help             Show this help")
		fmt.Fprintln(stdout, "  :consult FILE     Consult a Prolog file")
		fmt.Fprintln(stdout, "  :listing N/A      Show the compiled code of a predicate")
		fmt.Fprintln(stdout, "  :stats            Show engine counters")
		fmt.Fprintln(stdout, "  :profile          Show port counts (with -profile)")
		fmt.Fprintln(stdout, "  :quit             Leave the top level")
		fmt.Fprintln(stdout, "Queries end with a full stop. Type ; for more solutions.")
	case ":quit", ":q":
		return true
	case ":consult":
		if err := m.ConsultFile(arg); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
	case ":listing":
		if err := disassemble(stdout, m.Registry(), arg); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
	case ":stats":
		s := m.Stats()
		fmt.Fprintf(stdout, "calls %d, last calls %d, redos %d, foreign %d, max frames %d, max global %d\n",
			s.Calls, s.Departs, s.Redos, s.Foreign, s.MaxFrames, s.MaxGlobal)
	case ":profile":
		if m.Profiler == nil {
			fmt.Fprintln(stderr, "Profiling is off; start horn with -profile")
			break
		}
		printProfile(stdout, m.Profiler)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s (type :help for commands)\n", name)
	}
	return false
}
