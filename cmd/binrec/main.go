package main

import (
	"os"
)

var (
	// Version is the version of the binary, set at build time
	Version = "0.0.0"
)

func main() {
	if err := execute(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}
