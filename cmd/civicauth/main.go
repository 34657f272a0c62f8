package main

import (
	"fmt"
	"os"

	"github.com/you/civicauth/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "civicauth:", err)
		os.Exit(1)
	}
}
