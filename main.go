// Package main provides the entry point for RVSim.
// RVSim models the privileged architectural state of a RISC-V CPU:
// hart registers, CSR dispatch, trap classification, and the Linux
// user-mode signal-frame protocol.
//
// For the full CLI, use: go run ./cmd/rvsim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("RVSim - RISC-V CPU architectural-state model")
	fmt.Println("")
	fmt.Println("Usage: rvsim [options]")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config    Path to model configuration JSON file")
	fmt.Println("  -sigdemo   Run a signal delivery/return round trip")
	fmt.Println("  -cached    Route demo memory traffic through the cache model")
	fmt.Println("  -v         Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/rvsim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/rvsim' instead.")
	}
}
