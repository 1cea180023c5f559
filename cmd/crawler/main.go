package main

import (
	"os"
)

func main() {
	root, opts := newRootCmd()
	if err := execute(root, opts, os.Args[1:]); err != nil {
		os.Exit(1)
	}
}
