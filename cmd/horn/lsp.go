package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/chazu/horn/lib/sqlite"
	"github.com/chazu/horn/server"
	"github.com/chazu/horn/vm"
)

// runLSP handles `horn lsp`: serve the language server protocol on stdio.
// stdout carries the protocol, so logging goes to stderr or -log.
func runLSP(args []string, stderr io.Writer) int {
	cfg := config{}
	fs := flag.NewFlagSet("horn lsp", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.IntVar(&cfg.verbosity, "v", 0, "Log verbosity")
	fs.StringVar(&cfg.logFile, "log", "", "Write the log to this file")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	configureLog(cfg, nil)

	reg := vm.NewRegistry()
	vm.NewMachine(reg, vm.Options{})
	// the sql_* predicates count as known calls
	lib := sqlite.Register(reg)
	defer lib.Close()

	if err := server.NewLSP(reg).Run(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
