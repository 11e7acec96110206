package main

import (
	"fmt"
	"os"

	"github.com/mimikastudio/mimika/internal/diag"
)

func main() {
	// The device probe re-execs this binary; answer before cobra gets a
	// chance to parse the argument.
	if len(os.Args) > 1 && os.Args[1] == diag.ProbeArg {
		diag.RunProbe()
		return
	}

	if err := NewRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)

		os.Exit(1)
	}
}
