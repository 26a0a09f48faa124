// Package main is the entry point for the pcapstream capture file decoder.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/pcapstream/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
