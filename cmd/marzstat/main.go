package main

import (
	"fmt"
	"os"

	"github.com/marzstat/marzstat/pkg/stats/cli"
)

// Main entry point for `marzstat` app
func main() {
	server, err := cli.NewMarzstatServer()
	if err != nil {
		panic("Failed to create an instance of marzstat App")
	}

	if err := server.Main(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
