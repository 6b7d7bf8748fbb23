package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	a := newApp(os.Stdout, os.Stderr)
	if err := newRootCmd(a).Execute(); err != nil {
		// errors of single entries were already printed as they happened
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "treefs: %v\n", err)
		}
		os.Exit(1)
	}
}
