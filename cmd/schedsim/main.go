package main

import (
	"fmt"
	"os"

	"github.com/nanokernel/nanokernel/cmd/schedsim/cmd"
)

func main() {
	schedsimCmd := cmd.SetupCLI()
	if err := schedsimCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
