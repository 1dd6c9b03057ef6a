package main

import (
	"fmt"
	"os"

	"github.com/marzstat/marzstat/pkg/stats/cli"
)

// Main entry point for `mstat` app
func main() {
	report, err := cli.NewMarzstatReport()
	if err != nil {
		panic("Failed to create an instance of mstat App")
	}

	if err := report.Main(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
