package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/chazu/horn/vm"
)

// disassemble prints the live clauses of the user predicate named by an
// indicator such as append/3.
func disassemble(out io.Writer, reg *vm.Registry, indicator string) error {
	slash := strings.LastIndex(indicator, "/")
	if slash <= 0 {
		return fmt.Errorf("bad predicate indicator %q, want name/arity", indicator)
	}
	arity, err := strconv.Atoi(indicator[slash+1:])
	if err != nil || arity < 0 {
		return fmt.Errorf("bad arity in %q", indicator)
	}
	p := reg.Lookup(reg.User(), reg.Functor(reg.Atom(indicator[:slash]), arity))
	if p == nil {
		return fmt.Errorf("unknown procedure %s", indicator)
	}
	if p.IsForeign() {
		return fmt.Errorf("%s is implemented in Go", reg.Indicator(p))
	}
	gen := reg.Generation()
	n := 0
	for cl := p.FirstClause(); cl != nil; cl = cl.Next() {
		if !cl.Visible(gen) {
			continue
		}
		n++
		fmt.Fprintf(out, "%% %s clause %d (%d slots)\n%s\n", reg.Indicator(p), n, cl.NVars, vm.Disassemble(cl.Code, reg))
	}
	if n == 0 {
		fmt.Fprintf(out, "%% %s has no clauses\n", reg.Indicator(p))
	}
	return nil
}

const profileRows = 20

func printProfile(out io.Writer, pr *vm.Profiler) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "predicate\tcall\texit\tredo\tfail\texception\t\n")
	for _, pp := range pr.Top(profileRows) {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t\n", pp.Indicator,
			pp.Count(vm.PortCall), pp.Count(vm.PortExit), pp.Count(vm.PortRedo),
			pp.Count(vm.PortFail), pp.Count(vm.PortException))
	}
	tw.Flush()
	fmt.Fprintf(out, "%d port passes\n", pr.Total())
}
